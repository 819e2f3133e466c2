package classifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/scan-check/internal/logging"
	"github.com/example/scan-check/internal/selection"
	"github.com/example/scan-check/internal/verdict"
)

// DefaultGRPCMethod is the unary method invoked when none is configured.
const DefaultGRPCMethod = "/classifier.Classifier/Predict"

// GRPCClient calls a classifier exposed over gRPC. The request is a
// google.protobuf.BytesValue with the image bytes; the reply is a
// google.protobuf.Struct carrying the same "result" field as the HTTP API.
type GRPCClient struct {
	conn   *grpc.ClientConn
	method string
	logger *zap.Logger
}

// DialGRPC connects to addr and verifies the standard health service reports
// SERVING before returning.
func DialGRPC(ctx context.Context, addr, method string, logger *zap.Logger) (*GRPCClient, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("classifier.grpc_dial", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}

	client := NewGRPCClient(conn, method, logger)
	if err := client.CheckHealth(dialCtx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return client, nil
}

// NewGRPCClient wraps an existing connection.
func NewGRPCClient(conn *grpc.ClientConn, method string, logger *zap.Logger) *GRPCClient {
	if method == "" {
		method = DefaultGRPCMethod
	}
	return &GRPCClient{conn: conn, method: method, logger: logger.Named("classifier_grpc")}
}

// CheckHealth asks the server's health service for overall status.
func (g *GRPCClient) CheckHealth(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(g.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return logging.NewOperationError("classifier.grpc_health", "", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return logging.NewOperationError("classifier.grpc_health", "", fmt.Errorf("classifier status %s", resp.GetStatus()))
	}
	return nil
}

func (g *GRPCClient) Classify(ctx context.Context, file selection.File) (verdict.Verdict, error) {
	requestID := RequestIDFrom(ctx)

	pairs := []string{"x-filename-bin", file.Name, "x-content-type", file.ContentType}
	if requestID != "" {
		pairs = append(pairs, "x-request-id", requestID)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, pairs...)

	var reply structpb.Struct
	if err := g.conn.Invoke(ctx, g.method, wrapperspb.Bytes(file.Data), &reply); err != nil {
		wrapped := logging.NewOperationError("classifier.grpc_invoke", requestID, err)
		g.logger.Error("classifier call failed", zap.Error(wrapped), zap.String("method", g.method))
		return "", wrapped
	}

	result, ok := reply.GetFields()["result"].GetKind().(*structpb.Value_StringValue)
	// Empty labels fail like the HTTP transport; they are not findings.
	if !ok || result.StringValue == "" {
		wrapped := logging.NewOperationError("classifier.grpc_decode", requestID, fmt.Errorf("%w: missing result", ErrMalformedResponse))
		g.logger.Error("classifier reply has no result", zap.Error(wrapped))
		return "", wrapped
	}
	return verdict.Verdict(result.StringValue), nil
}

// Close tears down the connection.
func (g *GRPCClient) Close() error {
	return g.conn.Close()
}
