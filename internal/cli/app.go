package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/scan-check/internal/cache"
	"github.com/example/scan-check/internal/classifier"
	"github.com/example/scan-check/internal/config"
	"github.com/example/scan-check/internal/logging"
	"github.com/example/scan-check/internal/repository"
	"github.com/example/scan-check/internal/selection"
	"github.com/example/scan-check/internal/session"
	"github.com/example/scan-check/internal/usecase"
)

// app holds the collaborators shared by every session a command creates.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	previews   *selection.Previews
	history    *usecase.HistoryUseCase
	classifier classifier.Client
	closers    []func() error
}

// newApp loads configuration and connects the classifier and storage.
// logPaths redirects logging away from stderr.
func newApp(ctx context.Context, cmd *cobra.Command, logPaths ...string) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}

	logger, err := logging.NewLogger(cfg.LogLevel, logPaths...)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	var kv cache.Cache
	if addr := a.cfg.Storage.RedisAddr; addr != "" {
		redisCache, err := cache.Connect(ctx, addr)
		if err != nil {
			a.logger.Error("redis connection failed", zap.String("addr", addr), zap.Error(err))
			return fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, redisCache.Close)
		kv = redisCache
	} else {
		kv = cache.NewMemory()
	}
	a.previews = selection.NewPreviews(kv, a.cfg.Storage.PreviewTTL)

	var repo usecase.AnalysisRepository
	if dsn := a.cfg.Storage.DatabaseDSN; dsn != "" {
		db, err := repository.Open(ctx, dsn)
		if err != nil {
			a.logger.Error("database connection failed", zap.Error(err))
			return fmt.Errorf("connect database: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		analysisRepo := repository.NewAnalysisRepository(db, a.logger)
		if err := analysisRepo.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		repo = analysisRepo
	}
	a.history = usecase.NewHistoryUseCase(repo, kv, a.logger)

	switch a.cfg.Classifier.Transport {
	case config.TransportGRPC:
		client, err := classifier.DialGRPC(ctx, a.cfg.Classifier.GRPCAddr, a.cfg.Classifier.GRPCMethod, a.logger)
		if err != nil {
			return fmt.Errorf("connect classifier: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.classifier = client
	default:
		a.classifier = classifier.NewHTTPClient(a.cfg.Classifier.Endpoint, nil, a.logger)
	}
	return nil
}

// newSession builds an idle session for owner.
func (a *app) newSession(owner string) *session.Session {
	return session.New(
		selection.NewStore(a.previews, a.logger),
		a.classifier,
		a.logger,
		session.WithOwner(owner),
		session.WithTimeout(a.cfg.Classifier.RequestTimeout),
		session.WithRecorder(a.history),
	)
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
