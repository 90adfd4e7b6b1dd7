package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/chat"
	"github.com/recallhq/recall/internal/session"
)

// queryBodyLimit bounds the /query request body. Queries are short
// text; anything near this limit is not a legitimate question.
const queryBodyLimit = 1 << 20

type queryHandler struct {
	chat   *chat.Service
	flow   *chat.Flow
	logger *slog.Logger
}

// queryRequest is the POST /query payload.
type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
	TopK      int    `json:"topK"`
}

// queryResponse is the POST /query result.
type queryResponse struct {
	Answer      string        `json:"answer"`
	SessionID   string        `json:"sessionId"`
	Model       string        `json:"model"`
	Sources     []chat.Source `json:"sources"`
	ContextUsed bool          `json:"contextUsed"`
}

// query answers one RAG query synchronously.
func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	var sessionID uuid.UUID
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session", "sessionId must be a UUID", h.logger)
			return
		}
		sessionID = id
	}

	resp, err := h.chat.Ask(r.Context(), chat.Request{
		SessionID: sessionID,
		Query:     req.Query,
		TopK:      req.TopK,
	})
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:      resp.Answer,
		SessionID:   resp.SessionID.String(),
		Model:       resp.Model,
		Sources:     resp.Sources,
		ContextUsed: resp.ContextUsed,
	}, h.logger)
}

// parseQuery decodes and validates the request body. On failure the
// error response has already been written.
func (h *queryHandler) parseQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	r.Body = http.MaxBytesReader(w, r.Body, queryBodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return req, false
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query is required", h.logger)
		return req, false
	}
	return req, true
}

// writeQueryError maps chat errors to HTTP statuses.
func (h *queryHandler) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "missing_query", "query is required", h.logger)
	case errors.Is(err, chat.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, "invalid_session", "sessionId must be a UUID", h.logger)
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
	case errors.Is(err, chat.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "model_unavailable", "model provider is unavailable, try again later", h.logger)
	default:
		h.logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "failed to execute query", h.logger)
	}
}

// SSE event types for query streaming.
const (
	eventChunk = "chunk" // partial answer text
	eventDone  = "done"  // stream completed, full response attached
	eventError = "error" // terminal failure
)

// chunkPayload is the SSE data payload for streaming text chunks.
type chunkPayload struct {
	Text string `json:"text"`
}

// errorPayload is the SSE data payload when the stream fails.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// stream answers one RAG query over SSE: chunk events while the model
// generates, then a done event carrying the complete response.
func (h *queryHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req queryRequest
	r.Body = http.MaxBytesReader(w, r.Body, queryBodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = writeEvent(w, flusher, eventError, errorPayload{Code: "invalid_body", Message: "invalid request body"})
		return
	}
	if req.Query == "" {
		_ = writeEvent(w, flusher, eventError, errorPayload{Code: "missing_query", Message: "query is required"})
		return
	}

	ctx := r.Context()
	h.logger.Debug("SSE stream started", "sessionId", req.SessionID)

	var finalOutput chat.Output
	var streamErr error

	for streamValue, err := range h.flow.Stream(ctx, chat.Input{
		Query:     req.Query,
		SessionID: req.SessionID,
		TopK:      req.TopK,
	}) {
		select {
		case <-ctx.Done():
			h.logger.Debug("client disconnected", "sessionId", req.SessionID)
			return
		default:
		}

		if err != nil {
			streamErr = err
			break
		}

		if streamValue.Done {
			finalOutput = streamValue.Output
			break
		}

		if streamValue.Stream.Text != "" {
			if err := writeEvent(w, flusher, eventChunk, chunkPayload{Text: streamValue.Stream.Text}); err != nil {
				// Write failure usually means the connection closed.
				h.logger.Debug("writing chunk", "error", err)
				return
			}
		}
	}

	if streamErr != nil {
		h.writeStreamError(w, flusher, streamErr)
		return
	}

	_ = writeEvent(w, flusher, eventDone, finalOutput)
	h.logger.Debug("SSE stream completed", "sessionId", finalOutput.SessionID)
}

// writeStreamError maps chat errors to SSE error events.
func (h *queryHandler) writeStreamError(w io.Writer, f http.Flusher, err error) {
	code := "stream_error"

	switch {
	case errors.Is(err, chat.ErrEmptyQuery):
		code = "missing_query"
	case errors.Is(err, chat.ErrInvalidSession):
		code = "invalid_session"
	case errors.Is(err, chat.ErrCircuitOpen):
		code = "model_unavailable"
	case errors.Is(err, chat.ErrExecutionFailed):
		code = "query_failed"
	}

	_ = writeEvent(w, f, eventError, errorPayload{
		Code:    code,
		Message: err.Error(),
	})
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
