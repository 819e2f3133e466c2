package session

import (
	"context"
	"errors"
	"time"

	"github.com/example/scan-check/internal/selection"
	"github.com/example/scan-check/internal/verdict"
)

// FailureMessage is the only error text ever shown to the user.
const FailureMessage = "Failed to analyze image. Please try again."

var (
	// ErrInFlight rejects a Submit while a request is outstanding.
	ErrInFlight = errors.New("analysis already in progress")
	// ErrResultShown rejects a Submit once a verdict is on screen; analysing
	// again requires a new selection.
	ErrResultShown = errors.New("result already shown, select an image to analyze again")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// Phase is the lifecycle of the current submission attempt.
type Phase int

const (
	Idle Phase = iota
	InFlight
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets JSON encoders emit the phase name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is a snapshot of the request state. Verdict is set only when
// Phase is Succeeded and Error only when Phase is Failed.
type State struct {
	Phase     Phase           `json:"phase"`
	Verdict   verdict.Verdict `json:"verdict,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Category interprets the verdict of a succeeded state.
func (s State) Category() (verdict.Category, bool) {
	if s.Phase != Succeeded {
		return "", false
	}
	return verdict.Interpret(s.Verdict), true
}

// Attempt describes one finished (or abandoned) classification call.
type Attempt struct {
	RequestID  string
	Owner      string
	File       selection.File
	Verdict    verdict.Verdict
	Err        error
	Superseded bool
	StartedAt  time.Time
	Duration   time.Duration
}

// Recorder is told about every attempt once it has finished.
type Recorder interface {
	Record(ctx context.Context, attempt Attempt) error
}
