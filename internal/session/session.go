// Package session drives one user's select → analyze → verdict workflow.
//
// A Session owns a selection store and the request state. Submit moves the
// state to InFlight before returning and resolves it from a goroutine; only
// the newest request may resolve it, so a request overtaken by a new
// selection is cancelled and its outcome dropped.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/scan-check/internal/classifier"
	"github.com/example/scan-check/internal/logging"
	"github.com/example/scan-check/internal/selection"
)

const recordTimeout = 5 * time.Second

// Option customises a Session.
type Option func(*Session)

// WithTimeout bounds each classification call. Zero waits indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithRecorder attaches a sink for finished attempts.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithOwner names the user the session belongs to.
func WithOwner(owner string) Option {
	return func(s *Session) { s.owner = owner }
}

// Session is the single writer of one user's selection and request state.
type Session struct {
	owner      string
	selections *selection.Store
	classifier classifier.Client
	recorder   Recorder
	logger     *zap.Logger
	timeout    time.Duration

	mu      sync.Mutex
	state   State
	version uint64
	seq     uint64
	cancel  context.CancelFunc
	settled chan struct{}
	closed  bool

	// notifyMu serialises delivery; published is the newest version handed
	// to observers so a late delivery of an older state is skipped.
	notifyMu     sync.Mutex
	published    uint64
	observers    map[int]func(State)
	nextObserver int

	wg sync.WaitGroup
}

// New builds an idle session.
func New(store *selection.Store, client classifier.Client, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		selections: store,
		classifier: client,
		logger:     logger.Named("session"),
		observers:  make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.owner != "" {
		s.logger = s.logger.With(zap.String("owner", s.owner))
	}
	return s
}

// Owner returns the name given with WithOwner.
func (s *Session) Owner() string {
	return s.owner
}

// State returns the current request state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Selection returns the active selection, if any.
func (s *Session) Selection() (selection.Selection, bool) {
	return s.selections.Current()
}

// CanSubmit reports whether Submit would start a request right now. Bindings
// use it to decide whether to offer the analyze action.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.selections.Current(); !ok {
		return false
	}
	return s.state.Phase == Idle || s.state.Phase == Failed
}

// SelectFile replaces the selection and resets the state to Idle, dropping
// any verdict or error. An empty file changes nothing.
//
// A request still in flight is cancelled and its outcome discarded, so in
// this one case the state leaves InFlight for Idle rather than for
// Succeeded or Failed.
//
// The preview is acquired and the replaced one released without holding
// the state lock; only the in-memory swap happens under it.
func (s *Session) SelectFile(ctx context.Context, file selection.File) bool {
	next, ok := s.selections.Prepare(ctx, file)
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.selections.Release(ctx, next)
		return false
	}
	prev := s.selections.Commit(next)

	if s.state.Phase == InFlight {
		s.logger.Info("selection replaced during analysis, abandoning request", zap.String("request_id", s.state.RequestID))
	}
	s.abortLocked()
	s.state = State{Phase: Idle}
	s.publishAndUnlock()

	s.selections.Release(ctx, prev)
	return true
}

// Submit starts classifying the current selection. Without a selection it
// does nothing and returns nil. The state is InFlight by the time Submit
// returns; ctx is the parent of the classification call and should outlive
// the caller if the caller is short-lived.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	sel, ok := s.selections.Current()
	if !ok {
		s.mu.Unlock()
		return nil
	}
	switch s.state.Phase {
	case InFlight:
		s.mu.Unlock()
		return ErrInFlight
	case Succeeded:
		s.mu.Unlock()
		return ErrResultShown
	}

	requestID := uuid.NewString()
	reqCtx := classifier.WithRequestID(ctx, requestID)
	var cancel context.CancelFunc
	if s.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(reqCtx, s.timeout)
	} else {
		reqCtx, cancel = context.WithCancel(reqCtx)
	}

	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.settled = make(chan struct{})
	s.state = State{Phase: InFlight, RequestID: requestID}
	s.wg.Add(1)

	logging.WithOperation(s.logger, "session.submit", requestID).Info("analysis started",
		zap.String("file", sel.File.Name), zap.Int("bytes", len(sel.File.Data)))

	s.publishAndUnlock()

	go s.run(reqCtx, cancel, seq, requestID, sel.File)
	return nil
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, seq uint64, requestID string, file selection.File) {
	defer s.wg.Done()
	defer cancel()

	opLogger := logging.WithOperation(s.logger, "session.resolve", requestID)
	started := time.Now()
	label, err := s.classifier.Classify(ctx, file)

	attempt := Attempt{
		RequestID: requestID,
		Owner:     s.owner,
		File:      file,
		Verdict:   label,
		Err:       err,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
	}

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		attempt.Superseded = true
		opLogger.Debug("discarding outcome of superseded request")
		s.record(ctx, attempt)
		return
	}

	next := State{RequestID: requestID}
	if err != nil {
		next.Phase = Failed
		next.Error = FailureMessage
		attempt.Verdict = ""
		opLogger.Warn("analysis failed", zap.Error(err), zap.Duration("elapsed", attempt.Duration))
	} else {
		next.Phase = Succeeded
		next.Verdict = label
		category, _ := next.Category()
		opLogger.Info("analysis finished",
			zap.String("verdict", string(label)),
			zap.String("category", string(category)),
			zap.Duration("elapsed", attempt.Duration))
	}

	settled := s.settled
	s.cancel = nil
	s.settled = nil
	s.state = next
	s.publishAndUnlock()
	close(settled)

	s.record(ctx, attempt)
}

// Wait blocks until no request is in flight and returns the state then.
func (s *Session) Wait(ctx context.Context) (State, error) {
	s.mu.Lock()
	settled := s.settled
	s.mu.Unlock()

	if settled == nil {
		return s.State(), nil
	}
	select {
	case <-settled:
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// Subscribe registers fn to receive state transitions in order. A transition
// overtaken by a newer one before delivery may be skipped. fn runs on the
// goroutine that applied the transition; it may read the session but must
// not block or change it.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.notifyMu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.notifyMu.Unlock()

	return func() {
		s.notifyMu.Lock()
		delete(s.observers, id)
		s.notifyMu.Unlock()
	}
}

// Close cancels any outstanding request, waits for it to wind down and
// releases the selection's preview.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.abortLocked()
	s.state = State{Phase: Idle}
	s.publishAndUnlock()

	s.selections.Close(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abortLocked invalidates the outstanding request, if any.
func (s *Session) abortLocked() {
	s.seq++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.settled != nil {
		close(s.settled)
		s.settled = nil
	}
}

// publishAndUnlock bumps the state version, releases mu and hands the new
// state to observers.
func (s *Session) publishAndUnlock() {
	s.version++
	snapshot, version := s.state, s.version
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.published {
		return
	}
	s.published = version
	for _, fn := range s.observers {
		fn(snapshot)
	}
}

func (s *Session) record(parent context.Context, attempt Attempt) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), recordTimeout)
	defer cancel()
	if err := s.recorder.Record(ctx, attempt); err != nil {
		logging.WithOperation(s.logger, "session.record", attempt.RequestID).Warn("failed to record attempt", zap.Error(err))
	}
}
