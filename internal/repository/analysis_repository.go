package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/scan-check/internal/retry"
)

// Outcomes stored on an AnalysisLog.
const (
	OutcomeSucceeded  = "succeeded"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
)

// ErrNotFound is returned when no log matches.
var ErrNotFound = errors.New("analysis not found")

// AnalysisLog represents one persisted classification attempt.
type AnalysisLog struct {
	ID        uint      `gorm:"primaryKey"`
	RequestID string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Owner     string    `gorm:"column:owner;index;size:128"`
	Filename  string    `gorm:"column:filename;size:255"`
	SHA1Hash  string    `gorm:"column:sha1_hash;index;size:40"`
	Verdict   string    `gorm:"column:verdict;size:128"`
	Category  string    `gorm:"column:category;size:16"`
	Outcome   string    `gorm:"column:outcome;size:16"`
	Error     string    `gorm:"column:error;type:text"`
	LatencyMs int64     `gorm:"column:latency_ms"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (AnalysisLog) TableName() string {
	return "analysis_logs"
}

// MetricsAggregation holds raw counters computed in SQL.
type MetricsAggregation struct {
	TotalCount       int64
	SuccessCount     int64
	PositiveCount    int64
	AverageLatencyMs float64
}

// AnalysisRepository provides persistence APIs for analysis logs.
type AnalysisRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Open connects to Postgres and checks the connection.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// NewAnalysisRepository creates a new repository instance.
func NewAnalysisRepository(db *gorm.DB, logger *zap.Logger) *AnalysisRepository {
	return &AnalysisRepository{
		db:             db,
		logger:         logger.Named("analysis_repository"),
		retryAttempts:  retry.DefaultPolicy.Attempts,
		initialBackoff: retry.DefaultPolicy.InitialBackoff,
		maxBackoff:     retry.DefaultPolicy.MaxBackoff,
	}
}

// AutoMigrate ensures the schema is available.
func (r *AnalysisRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&AnalysisLog{})
	})
}

// SaveLog persists an analysis log entry.
func (r *AnalysisRepository) SaveLog(ctx context.Context, log *AnalysisLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndOwner retrieves the log for a request made by owner.
func (r *AnalysisRepository) FindByRequestIDAndOwner(ctx context.Context, requestID, owner string) (*AnalysisLog, error) {
	var log AnalysisLog
	err := r.executeWithRetry(ctx, "repository.find_by_request", requestID, func() error {
		err := r.db.WithContext(ctx).First(&log, "request_id = ? AND owner = ?", requestID, owner).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// ListRecent returns owner's newest logs first.
func (r *AnalysisRepository) ListRecent(ctx context.Context, owner string, limit int) ([]*AnalysisLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []*AnalysisLog
	err := r.executeWithRetry(ctx, "repository.list_recent", "", func() error {
		return r.db.WithContext(ctx).
			Where("owner = ?", owner).
			Order("created_at DESC").
			Limit(limit).
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateMetrics counts attempts that were not superseded.
func (r *AnalysisRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&AnalysisLog{}).
			Select(
				"COUNT(*) AS total_count, "+
					"COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS success_count, "+
					"COALESCE(SUM(CASE WHEN outcome = ? AND category = ? THEN 1 ELSE 0 END), 0) AS positive_count, "+
					"COALESCE(AVG(latency_ms), 0) AS average_latency_ms",
				OutcomeSucceeded, OutcomeSucceeded, "positive",
			).
			Where("outcome <> ?", OutcomeSuperseded).
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *AnalysisRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	policy := retry.Policy{Attempts: r.retryAttempts, InitialBackoff: r.initialBackoff, MaxBackoff: r.maxBackoff}
	return retry.Do(ctx, r.logger, policy, operation, requestID, fn)
}
