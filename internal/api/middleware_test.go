package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/testutil"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestRecoveryMiddleware_Panic(t *testing.T) {
	t.Parallel()

	handler := recoveryMiddleware(testutil.DiscardLogger())(http.HandlerFunc(
		func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Error != "internal_error" {
		t.Errorf("error code = %q, want internal_error", body.Error)
	}
}

func TestRecoveryMiddleware_PanicAfterHeaders(t *testing.T) {
	t.Parallel()

	handler := recoveryMiddleware(testutil.DiscardLogger())(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			panic("late boom")
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query", nil))

	// Headers were already sent; the middleware must not write a second
	// status or a JSON body on top of the partial response.
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202 (already sent)", rec.Code)
	}
}

func TestRequestIDMiddleware_GeneratesUUID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := requestIDMiddleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("context request id %q is not a UUID: %v", seen, err)
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header X-Request-ID = %q, want %q", got, seen)
	}
}

func TestRequestIDMiddleware_HonorsIncoming(t *testing.T) {
	t.Parallel()

	handler := requestIDMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "upstream-id-123" {
		t.Errorf("X-Request-ID = %q, want upstream id preserved", got)
	}
}

func TestRequestIDMiddleware_RejectsOversized(t *testing.T) {
	t.Parallel()

	handler := requestIDMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 65))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	got := rec.Header().Get("X-Request-ID")
	if _, err := uuid.Parse(got); err != nil {
		t.Errorf("oversized incoming id should be replaced with a UUID, got %q", got)
	}
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		allowed   []string
		origin    string
		wantAllow string
	}{
		{
			name:      "allowed origin echoed",
			allowed:   []string{"https://app.example.com"},
			origin:    "https://app.example.com",
			wantAllow: "https://app.example.com",
		},
		{
			name:      "unknown origin gets no headers",
			allowed:   []string{"https://app.example.com"},
			origin:    "https://evil.example.com",
			wantAllow: "",
		},
		{
			name:      "wildcard allows any origin",
			allowed:   []string{"*"},
			origin:    "https://anything.example.com",
			wantAllow: "https://anything.example.com",
		},
		{
			name:      "no origin header",
			allowed:   []string{"*"},
			origin:    "",
			wantAllow: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := corsMiddleware(tt.allowed)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/documents", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	t.Parallel()

	called := false
	handler := corsMiddleware([]string{"*"})(http.HandlerFunc(
		func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/query", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if called {
		t.Error("preflight request must not reach the handler")
	}
}

func TestLoggingWriter_CapturesStatusAndBytes(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	lw := &loggingWriter{w: rec}

	lw.WriteHeader(http.StatusCreated)
	n, err := lw.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write = (%d, %v)", n, err)
	}

	if lw.statusCode != http.StatusCreated {
		t.Errorf("statusCode = %d, want 201", lw.statusCode)
	}
	if lw.bytesWritten != 5 {
		t.Errorf("bytesWritten = %d, want 5", lw.bytesWritten)
	}
}

func TestLoggingWriter_ImplicitOK(t *testing.T) {
	t.Parallel()

	lw := &loggingWriter{w: httptest.NewRecorder()}
	_, _ = lw.Write([]byte("x"))

	if lw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want implicit 200", lw.statusCode)
	}
}
