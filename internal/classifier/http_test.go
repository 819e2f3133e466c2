package classifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/scan-check/internal/logging"
	"github.com/example/scan-check/internal/selection"
)

var testScan = selection.File{Name: "scan.png", ContentType: "image/png", Data: []byte("png-bytes")}

func TestHTTPClassifySendsMultipartFile(t *testing.T) {
	var (
		gotField  string
		gotBody   string
		gotType   string
		gotReqID  string
		gotMethod string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotReqID = r.Header.Get("X-Request-ID")
		file, header, err := r.FormFile(FieldName)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotField = header.Filename
		gotBody = string(data)
		gotType = header.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"Glioma"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, srv.Client(), zap.NewNop())
	got, err := client.Classify(WithRequestID(context.Background(), "req-1"), testScan)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got != "Glioma" {
		t.Fatalf("expected Glioma, got %q", got)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST, got %s", gotMethod)
	}
	if gotField != "scan.png" || gotBody != "png-bytes" || gotType != "image/png" {
		t.Fatalf("unexpected upload: name=%q body=%q type=%q", gotField, gotBody, gotType)
	}
	if gotReqID != "req-1" {
		t.Fatalf("expected request id header, got %q", gotReqID)
	}
}

func TestHTTPClassifyFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"result":"Glioma"}`},
		{name: "not found", status: http.StatusNotFound, body: `not here`},
		{name: "non json", status: http.StatusOK, body: `<html>oops</html>`, wantErr: ErrMalformedResponse},
		{name: "missing result", status: http.StatusOK, body: `{"label":"Glioma"}`, wantErr: ErrMalformedResponse},
		{name: "empty result", status: http.StatusOK, body: `{"result":""}`, wantErr: ErrMalformedResponse},
		{name: "non string result", status: http.StatusOK, body: `{"result":3}`, wantErr: ErrMalformedResponse},
		{name: "null body", status: http.StatusOK, body: `null`, wantErr: ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewHTTPClient(srv.URL, srv.Client(), zap.NewNop())
			got, err := client.Classify(context.Background(), testScan)
			if err == nil {
				t.Fatalf("expected error, got verdict %q", got)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.status >= 300 {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.status {
					t.Fatalf("expected StatusError %d, got %v", tt.status, err)
				}
			}
			var opErr *logging.OperationError
			if !errors.As(err, &opErr) {
				t.Fatalf("expected OperationError, got %T", err)
			}
		})
	}
}

func TestHTTPClassifyNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewHTTPClient(url, nil, zap.NewNop())
	if _, err := client.Classify(context.Background(), testScan); err == nil {
		t.Fatal("expected error from closed server")
	}
}

func TestHTTPClassifyHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewHTTPClient(srv.URL, srv.Client(), zap.NewNop())
	_, err := client.Classify(ctx, testScan)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEncodeMultipartDefaults(t *testing.T) {
	body, contentType, err := encodeMultipart(selection.File{Data: []byte("x")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	_, header, err := req.FormFile(FieldName)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if header.Filename != "upload" || header.Header.Get("Content-Type") != "application/octet-stream" {
		t.Fatalf("unexpected defaults: %q %q", header.Filename, header.Header.Get("Content-Type"))
	}
}
