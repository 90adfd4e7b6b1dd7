package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recallhq/recall/internal/knowledge"
)

const healthSnapshotTimeout = 2 * time.Second

type healthHandler struct {
	knowledge *knowledge.Store
	pool      *pgxpool.Pool
	logger    *slog.Logger
}

// health is the liveness probe. It always answers 200 while the process
// is up; the index snapshot is best-effort and omitted when the store
// is unreachable, so a database outage does not look like a dead
// process.
func (h *healthHandler) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}

	if h.knowledge != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthSnapshotTimeout)
		defer cancel()
		if docs, chunks, err := h.knowledge.Counts(ctx); err == nil {
			body["documents"] = docs
			body["chunks"] = chunks
		} else {
			h.logger.Debug("health snapshot unavailable", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, body, h.logger)
}

// ready is the readiness probe: 200 only when the database answers a
// ping, 503 otherwise.
func (h *healthHandler) ready(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthSnapshotTimeout)
	defer cancel()
	if err := h.pool.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, h.logger)
}
