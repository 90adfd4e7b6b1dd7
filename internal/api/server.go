package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recallhq/recall/internal/chat"
	"github.com/recallhq/recall/internal/ingest"
	"github.com/recallhq/recall/internal/knowledge"
	"github.com/recallhq/recall/internal/session"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger    *slog.Logger
	Chat      *chat.Service    // Required
	Flow      *chat.Flow       // Required: streaming endpoint
	Ingestor  *ingest.Ingestor // Required
	Knowledge *knowledge.Store // Required
	Sessions  *session.Store   // Required

	Pool          *pgxpool.Pool // Optional: nil disables the DB ping in /ready
	CORSOrigins   []string      // Allowed origins ("*" allows any)
	TrustProxy    bool          // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst     int           // Per-IP burst size (0 = default 60)
	MaxUploadSize int64         // Upload body cap in bytes (0 = default 10 MiB)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Chat == nil:
		return nil, errors.New("chat service is required")
	case cfg.Flow == nil:
		return nil, errors.New("chat flow is required")
	case cfg.Ingestor == nil:
		return nil, errors.New("ingestor is required")
	case cfg.Knowledge == nil:
		return nil, errors.New("knowledge store is required")
	case cfg.Sessions == nil:
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxUpload := cfg.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}

	qh := &queryHandler{chat: cfg.Chat, flow: cfg.Flow, logger: logger}
	uh := &uploadHandler{ingestor: cfg.Ingestor, maxUpload: maxUpload, logger: logger}
	dh := &documentHandler{store: cfg.Knowledge, logger: logger}
	sh := &sessionHandler{store: cfg.Sessions, logger: logger}
	st := &statsHandler{knowledge: cfg.Knowledge, sessions: cfg.Sessions, pool: cfg.Pool, logger: logger}

	mux := http.NewServeMux()

	// Web UI
	mux.HandleFunc("GET /{$}", serveIndex)

	// Query
	mux.HandleFunc("POST /query", qh.query)
	mux.HandleFunc("POST /query/stream", qh.stream)

	// Ingestion
	mux.HandleFunc("POST /upload", uh.upload)
	mux.HandleFunc("POST /upload-batch", uh.uploadBatch)
	mux.HandleFunc("POST /upload-url", uh.uploadURL)

	// Documents
	mux.HandleFunc("GET /documents", dh.list)
	mux.HandleFunc("DELETE /documents/{id}", dh.delete)

	// Sessions
	mux.HandleFunc("GET /sessions", sh.list)
	mux.HandleFunc("POST /sessions", sh.create)
	mux.HandleFunc("GET /sessions/{id}/export", sh.export)
	mux.HandleFunc("DELETE /sessions/{id}", sh.delete)

	// Stats
	mux.HandleFunc("GET /stats", st.stats)

	// Per-IP token bucket, 1 token/sec refill.
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID precedes Logging so request_id is available in log
	// attributes; CORS precedes RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	// Health probes bypass the middleware stack so Kubernetes checks
	// never hit the rate limiter.
	hh := &healthHandler{knowledge: cfg.Knowledge, pool: cfg.Pool, logger: logger}
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", hh.health)
	topMux.HandleFunc("GET /ready", hh.ready)
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
