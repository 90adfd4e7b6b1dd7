package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/session"
)

type sessionHandler struct {
	store  *session.Store
	logger *slog.Logger
}

// list returns sessions newest first. Supports ?limit= and ?offset=.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseInt32Param(r, "limit", 50)
	offset := parseInt32Param(r, "offset", 0)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	sessions, err := h.store.Sessions(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list sessions", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	}, h.logger)
}

// createSessionRequest is the POST /sessions payload. Both fields are
// optional; a query against a fresh service may also create its session
// implicitly.
type createSessionRequest struct {
	Title     string `json:"title"`
	ModelName string `json:"modelName"`
}

func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	r.Body = http.MaxBytesReader(w, r.Body, queryBodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	title := req.Title
	if title == "" {
		title = "New conversation"
	}
	if len([]rune(title)) > session.TitleMaxLength {
		title = string([]rune(title)[:session.TitleMaxLength])
	}

	sess, err := h.store.CreateSession(r.Context(), title, req.ModelName)
	if err != nil {
		h.logger.Error("creating session", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create session", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, sess, h.logger)
}

// export returns a session with its full message history, oldest first.
func (h *sessionHandler) export(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.store.Session(r.Context(), id)
	if err != nil {
		h.writeSessionError(w, id, err, "export")
		return
	}

	limit := config.NormalizeMaxHistoryMessages(parseInt32Param(r, "limit", config.DefaultMaxHistoryMessages))
	messages, err := h.store.Messages(r.Context(), id, limit, 0)
	if err != nil {
		h.writeSessionError(w, id, err, "export")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"messages": messages,
	}, h.logger)
}

// delete removes a session and, via cascade, its messages.
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		h.writeSessionError(w, id, err, "delete")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"sessionId": id.String(),
		"status":    "deleted",
	}, h.logger)
}

// parseSessionID extracts and validates the {id} path segment. On
// failure the error response has already been written.
func (h *sessionHandler) parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", "session id must be a UUID", h.logger)
		return uuid.Nil, false
	}
	return id, true
}

// writeSessionError maps session store errors to HTTP statuses.
func (h *sessionHandler) writeSessionError(w http.ResponseWriter, id uuid.UUID, err error, op string) {
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
		return
	}
	h.logger.Error("session operation failed", "op", op, "session_id", id, "error", err)
	writeError(w, http.StatusInternalServerError, op+"_failed", "session operation failed", h.logger)
}

// parseInt32Param reads an int32 query parameter, returning def when
// absent or malformed.
func parseInt32Param(r *http.Request, name string, def int32) int32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return def
	}
	return int32(n)
}
