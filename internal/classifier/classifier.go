// Package classifier talks to the remote brain-scan classification service.
package classifier

import (
	"context"
	"errors"

	"github.com/example/scan-check/internal/selection"
	"github.com/example/scan-check/internal/verdict"
)

// FieldName is the multipart field the image travels under.
const FieldName = "file"

// DefaultEndpoint is where the classification service listens by default.
const DefaultEndpoint = "http://127.0.0.1:5000/predict"

// ErrMalformedResponse covers any reply that does not carry a string result.
var ErrMalformedResponse = errors.New("malformed classifier response")

// Client exposes the single call the analysis flow needs.
type Client interface {
	Classify(ctx context.Context, file selection.File) (verdict.Verdict, error)
}

type requestIDKey struct{}

// WithRequestID tags ctx so transports can forward the analysis request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFrom returns the request id stored by WithRequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
