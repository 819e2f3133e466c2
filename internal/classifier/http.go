package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"go.uber.org/zap"

	"github.com/example/scan-check/internal/logging"
	"github.com/example/scan-check/internal/selection"
	"github.com/example/scan-check/internal/verdict"
)

// maxResponseBytes caps how much of a reply is decoded.
const maxResponseBytes = 1 << 20

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// StatusError reports a non-2xx reply.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("classifier returned status %d", e.StatusCode)
}

// HTTPClient posts images as multipart forms to one endpoint.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

type predictResponse struct {
	Result *string `json:"result"`
}

// NewHTTPClient builds a client for endpoint. A nil httpClient uses a client
// without a timeout; deadlines come from the caller's context.
func NewHTTPClient(endpoint string, httpClient *http.Client, logger *zap.Logger) *HTTPClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPClient{endpoint: endpoint, httpClient: httpClient, logger: logger.Named("classifier_http")}
}

// Classify uploads file and returns the label found in the reply.
func (c *HTTPClient) Classify(ctx context.Context, file selection.File) (verdict.Verdict, error) {
	requestID := RequestIDFrom(ctx)
	opLogger := logging.WithOperation(c.logger, "classifier.http_post", requestID)

	body, contentType, err := encodeMultipart(file)
	if err != nil {
		return "", logging.NewOperationError("classifier.encode_multipart", requestID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", logging.NewOperationError("classifier.http_post", requestID, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := logging.NewOperationError("classifier.http_post", requestID, err)
		opLogger.Error("classifier request failed", zap.Error(wrapped))
		return "", wrapped
	}
	defer resp.Body.Close()

	opLogger.Debug("classifier responded", zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		wrapped := logging.NewOperationError("classifier.http_post", requestID, &StatusError{StatusCode: resp.StatusCode})
		opLogger.Error("classifier rejected request", zap.Error(wrapped))
		return "", wrapped
	}

	var payload predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		wrapped := logging.NewOperationError("classifier.decode_response", requestID, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
		opLogger.Error("classifier reply is not valid JSON", zap.Error(wrapped))
		return "", wrapped
	}
	// An empty label is not a classification, so it fails instead of counting
	// as a finding.
	if payload.Result == nil || *payload.Result == "" {
		wrapped := logging.NewOperationError("classifier.decode_response", requestID, fmt.Errorf("%w: missing result", ErrMalformedResponse))
		opLogger.Error("classifier reply has no result", zap.Error(wrapped))
		return "", wrapped
	}

	return verdict.Verdict(*payload.Result), nil
}

func encodeMultipart(file selection.File) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := file.Name
	if name == "" {
		name = "upload"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldName, quoteEscaper.Replace(name)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}
