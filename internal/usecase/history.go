package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/scan-check/internal/cache"
	"github.com/example/scan-check/internal/logging"
	"github.com/example/scan-check/internal/repository"
	"github.com/example/scan-check/internal/retry"
	"github.com/example/scan-check/internal/session"
	"github.com/example/scan-check/internal/verdict"
)

// ErrHistoryDisabled is returned for queries that need a database when none
// is configured.
var ErrHistoryDisabled = errors.New("analysis history is disabled")

// AnalysisRepository defines the persistence operations needed by the use case.
type AnalysisRepository interface {
	SaveLog(ctx context.Context, log *repository.AnalysisLog) error
	FindByRequestIDAndOwner(ctx context.Context, requestID, owner string) (*repository.AnalysisLog, error)
	ListRecent(ctx context.Context, owner string, limit int) ([]*repository.AnalysisLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// HistoryUseCase records finished attempts and serves them back. The
// repository is optional; without it attempts live only in the cache.
type HistoryUseCase struct {
	repo      AnalysisRepository
	cache     cache.Cache
	logger    *zap.Logger
	policy    retry.Policy
	recordTTL time.Duration
}

type cachedAnalysis struct {
	RequestID string    `json:"request_id"`
	Owner     string    `json:"owner"`
	Filename  string    `json:"filename"`
	Hash      string    `json:"sha1_hash"`
	Verdict   string    `json:"verdict,omitempty"`
	Category  string    `json:"category,omitempty"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// NewHistoryUseCase constructs a new use case instance. repo may be nil.
func NewHistoryUseCase(repo AnalysisRepository, c cache.Cache, logger *zap.Logger) *HistoryUseCase {
	return &HistoryUseCase{
		repo:      repo,
		cache:     c,
		logger:    logger.Named("history_usecase"),
		policy:    retry.DefaultPolicy,
		recordTTL: 30 * time.Minute,
	}
}

// Record implements session.Recorder.
func (uc *HistoryUseCase) Record(ctx context.Context, attempt session.Attempt) error {
	opLogger := logging.WithOperation(uc.logger, "usecase.record_attempt", attempt.RequestID)

	hash := sha1.Sum(attempt.File.Data)
	log := &repository.AnalysisLog{
		RequestID: attempt.RequestID,
		Owner:     attempt.Owner,
		Filename:  attempt.File.Name,
		SHA1Hash:  hex.EncodeToString(hash[:]),
		LatencyMs: attempt.Duration.Milliseconds(),
		CreatedAt: attempt.StartedAt,
	}
	switch {
	case attempt.Superseded:
		log.Outcome = repository.OutcomeSuperseded
	case attempt.Err != nil:
		log.Outcome = repository.OutcomeFailed
		log.Error = attempt.Err.Error()
	default:
		log.Outcome = repository.OutcomeSucceeded
		log.Verdict = string(attempt.Verdict)
		log.Category = string(verdict.Interpret(attempt.Verdict))
	}

	if uc.repo != nil {
		if err := uc.repo.SaveLog(ctx, log); err != nil {
			opLogger.Error("failed to persist analysis log", zap.Error(err))
			return err
		}
	}

	serialized, err := json.Marshal(toCached(log))
	if err != nil {
		opLogger.Error("failed to serialize analysis log", zap.Error(err))
		return err
	}

	if err := retry.Do(ctx, uc.logger, uc.policy, "cache.set.analysis", attempt.RequestID, func() error {
		return uc.cache.Set(ctx, cacheKey(attempt.RequestID), string(serialized), uc.recordTTL)
	}); err != nil {
		opLogger.Error("failed to cache analysis log", zap.Error(err))
		return err
	}
	return nil
}

// GetAttempt returns a recorded attempt, reading the cache first and falling
// back to the repository.
func (uc *HistoryUseCase) GetAttempt(ctx context.Context, owner, requestID string) (*repository.AnalysisLog, error) {
	var raw string
	err := retry.Do(ctx, uc.logger, uc.policy, "cache.get.analysis", requestID, func() error {
		value, err := uc.cache.Get(ctx, cacheKey(requestID))
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	switch {
	case err == nil:
		var payload cachedAnalysis
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_attempt", requestID).Warn("failed to decode cached analysis", zap.Error(err))
		} else if payload.Owner == owner {
			return fromCached(payload), nil
		}
	case !errors.Is(err, cache.ErrMiss):
		logging.WithOperation(uc.logger, "usecase.get_attempt", requestID).Warn("failed to read cache", zap.Error(err))
	}

	if uc.repo == nil {
		return nil, repository.ErrNotFound
	}
	return uc.repo.FindByRequestIDAndOwner(ctx, requestID, owner)
}

// ListRecent returns owner's newest attempts.
func (uc *HistoryUseCase) ListRecent(ctx context.Context, owner string, limit int) ([]*repository.AnalysisLog, error) {
	if uc.repo == nil {
		return nil, ErrHistoryDisabled
	}
	return uc.repo.ListRecent(ctx, owner, limit)
}

func cacheKey(requestID string) string {
	return fmt.Sprintf("analysis:%s", requestID)
}

func toCached(log *repository.AnalysisLog) cachedAnalysis {
	return cachedAnalysis{
		RequestID: log.RequestID,
		Owner:     log.Owner,
		Filename:  log.Filename,
		Hash:      log.SHA1Hash,
		Verdict:   log.Verdict,
		Category:  log.Category,
		Outcome:   log.Outcome,
		Error:     log.Error,
		LatencyMs: log.LatencyMs,
		CreatedAt: log.CreatedAt,
	}
}

func fromCached(c cachedAnalysis) *repository.AnalysisLog {
	return &repository.AnalysisLog{
		RequestID: c.RequestID,
		Owner:     c.Owner,
		Filename:  c.Filename,
		SHA1Hash:  c.Hash,
		Verdict:   c.Verdict,
		Category:  c.Category,
		Outcome:   c.Outcome,
		Error:     c.Error,
		LatencyMs: c.LatencyMs,
		CreatedAt: c.CreatedAt,
	}
}
