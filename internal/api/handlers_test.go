package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brightclass/video-service/pkg/models"
)

func testHandlers() *Handlers {
	return &Handlers{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestWriteError(t *testing.T) {
	h := testHandlers()

	tests := []struct {
		err        error
		wantStatus int
	}{
		{models.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{models.ErrInvalidInput, http.StatusBadRequest},
		{models.ErrInvalidContainer, http.StatusBadRequest},
		{models.ErrFilenameTooLong, http.StatusBadRequest},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrLessonNotFound, http.StatusNotFound},
		{models.ErrAssetNotFound, http.StatusNotFound},
		{models.ErrPermissionDenied, http.StatusForbidden},
		{models.ErrConflictState, http.StatusConflict},
		{models.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{models.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{models.ErrProviderRejected, http.StatusBadGateway},
		{models.ErrStorageRejected, http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", models.ErrNotFound), http.StatusNotFound},
		{errors.New("database exploded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			rr := httptest.NewRecorder()

			h.writeError(rr, req, tt.err)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestWriteError_InternalErrorsAreGeneric(t *testing.T) {
	h := testHandlers()
	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()

	h.writeError(rr, req, errors.New("pk=LESSON#42 conditional check failed"))

	if strings.Contains(rr.Body.String(), "LESSON#42") {
		t.Errorf("internal error details leaked to the client: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Internal server error") {
		t.Errorf("body = %q, want generic message", rr.Body.String())
	}
}

func TestWriteError_KnownErrorsReturnJSON(t *testing.T) {
	h := testHandlers()
	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()

	h.writeError(rr, req, models.ErrLessonNotFound)

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Error("error field is empty")
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"a"}`))
		var p payload
		if err := decodeJSON(req, &p); err != nil {
			t.Fatalf("decodeJSON() error = %v", err)
		}
		if p.Name != "a" {
			t.Errorf("Name = %q, want a", p.Name)
		}
	})

	t.Run("empty body decodes to zero value", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(""))
		var p payload
		if err := decodeJSON(req, &p); err != nil {
			t.Fatalf("decodeJSON() error = %v", err)
		}
		if p.Name != "" {
			t.Errorf("Name = %q, want empty", p.Name)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{broken`))
		var p payload
		if err := decodeJSON(req, &p); !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("decodeJSON() error = %v, want ErrInvalidInput", err)
		}
	})
}

func TestCORSMiddleware(t *testing.T) {
	allowed := []string{"https://app.example.com"}
	handler := CORSMiddleware(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want unset", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/test", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want %d", rr.Code, http.StatusNoContent)
		}
	})
}

func TestInternalOnlyMiddleware(t *testing.T) {
	handler := internalOnlyMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		wantStatus int
	}{
		{"loopback", "127.0.0.1:54321", "", http.StatusOK},
		{"private 10.x", "10.1.2.3:54321", "", http.StatusOK},
		{"private 192.168", "192.168.1.5:54321", "", http.StatusOK},
		{"public address", "203.0.113.9:54321", "", http.StatusForbidden},
		{"forwarded through proxy", "127.0.0.1:54321", "203.0.113.9", http.StatusForbidden},
		{"no port", "127.0.0.1", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}
