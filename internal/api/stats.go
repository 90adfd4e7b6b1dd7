package api

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recallhq/recall/internal/knowledge"
	"github.com/recallhq/recall/internal/session"
)

type statsHandler struct {
	knowledge *knowledge.Store
	sessions  *session.Store
	pool      *pgxpool.Pool
	logger    *slog.Logger
}

// statsResponse is the GET /stats payload.
type statsResponse struct {
	Documents int64      `json:"documents"`
	Chunks    int64      `json:"chunks"`
	Sessions  int64      `json:"sessions"`
	Messages  int64      `json:"messages"`
	Pool      *poolStats `json:"pool,omitempty"`
}

// poolStats is a snapshot of the pgx connection pool.
type poolStats struct {
	TotalConns    int32 `json:"totalConns"`
	IdleConns     int32 `json:"idleConns"`
	AcquiredConns int32 `json:"acquiredConns"`
	MaxConns      int32 `json:"maxConns"`
}

// stats reports index and conversation counts plus pool state.
func (h *statsHandler) stats(w http.ResponseWriter, r *http.Request) {
	docs, chunks, err := h.knowledge.Counts(r.Context())
	if err != nil {
		h.logger.Error("reading knowledge counts", "error", err)
		writeError(w, http.StatusInternalServerError, "stats_failed", "failed to read statistics", h.logger)
		return
	}

	sessions, messages, err := h.sessions.Counts(r.Context())
	if err != nil {
		h.logger.Error("reading session counts", "error", err)
		writeError(w, http.StatusInternalServerError, "stats_failed", "failed to read statistics", h.logger)
		return
	}

	resp := statsResponse{
		Documents: docs,
		Chunks:    chunks,
		Sessions:  sessions,
		Messages:  messages,
	}

	if h.pool != nil {
		s := h.pool.Stat()
		resp.Pool = &poolStats{
			TotalConns:    s.TotalConns(),
			IdleConns:     s.IdleConns(),
			AcquiredConns: s.AcquiredConns(),
			MaxConns:      s.MaxConns(),
		}
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}
