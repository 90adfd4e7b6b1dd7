package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/recallhq/recall/internal/knowledge"
)

type documentHandler struct {
	store  *knowledge.Store
	logger *slog.Logger
}

// list returns all indexed documents, newest first.
func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.Documents(r.Context())
	if err != nil {
		h.logger.Error("listing documents", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list documents", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     len(docs),
	}, h.logger)
}

// delete removes a document and, via cascade, its chunks.
func (h *documentHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.store.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, knowledge.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document_not_found", "document does not exist", h.logger)
			return
		}
		h.logger.Error("deleting document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete document", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"documentId": id,
		"status":     "deleted",
	}, h.logger)
}
