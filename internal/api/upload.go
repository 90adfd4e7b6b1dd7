package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/recallhq/recall/internal/ingest"
	"github.com/recallhq/recall/internal/knowledge"
)

type uploadHandler struct {
	ingestor  *ingest.Ingestor
	maxUpload int64
	logger    *slog.Logger
}

// uploadResponse is the result of ingesting one document.
type uploadResponse struct {
	DocumentID    string `json:"documentId"`
	Filename      string `json:"filename"`
	Format        string `json:"format"`
	SizeBytes     int64  `json:"sizeBytes"`
	ChunksCreated int    `json:"chunksCreated"`
	Status        string `json:"status"`
}

// batchEntry is one file's outcome inside a batch upload.
type batchEntry struct {
	Filename string `json:"filename"`
	Status   string `json:"status"` // "indexed" or "error"
	Error    string `json:"error,omitempty"`

	DocumentID    string `json:"documentId,omitempty"`
	ChunksCreated int    `json:"chunksCreated,omitempty"`
}

// batchResponse summarizes a batch upload.
type batchResponse struct {
	Message     string       `json:"message"`
	TotalChunks int          `json:"totalChunks"`
	Results     []batchEntry `json:"results"`
}

func toUploadResponse(doc *knowledge.Document) uploadResponse {
	return uploadResponse{
		DocumentID:    doc.ID,
		Filename:      doc.Filename,
		Format:        doc.Format,
		SizeBytes:     doc.SizeBytes,
		ChunksCreated: doc.ChunkCount,
		Status:        "indexed",
	}
}

// upload ingests a single multipart file from the "file" field.
func (h *uploadHandler) upload(w http.ResponseWriter, r *http.Request) {
	file, header, ok := h.openMultipartFile(w, r, "file")
	if !ok {
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeReadError(w, err)
		return
	}

	doc, err := h.ingestor.IngestFile(r.Context(), header.Filename, data)
	if err != nil {
		h.writeIngestError(w, header.Filename, err)
		return
	}

	writeJSON(w, http.StatusOK, toUploadResponse(doc), h.logger)
}

// uploadBatch ingests every file in the "files" field. A failed file is
// reported in its results entry and never aborts the batch.
func (h *uploadHandler) uploadBatch(w http.ResponseWriter, r *http.Request) {
	// The whole batch shares one body cap: a batch of maximum-size
	// files is an abuse pattern, not a use case.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload*4)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.writeReadError(w, err)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "missing_file", `multipart field "files" is required`, h.logger)
		return
	}

	results := make([]batchEntry, 0, len(files))
	totalChunks := 0
	indexed := 0

	for _, header := range files {
		entry := h.ingestOne(r, header)
		if entry.Status == "indexed" {
			indexed++
			totalChunks += entry.ChunksCreated
		}
		results = append(results, entry)
	}

	writeJSON(w, http.StatusOK, batchResponse{
		Message:     fmt.Sprintf("indexed %d of %d documents", indexed, len(files)),
		TotalChunks: totalChunks,
		Results:     results,
	}, h.logger)
}

// ingestOne processes a single batch member, mapping its failure into
// the entry instead of an HTTP error.
func (h *uploadHandler) ingestOne(r *http.Request, header *multipart.FileHeader) batchEntry {
	entry := batchEntry{Filename: header.Filename, Status: "error"}

	file, err := header.Open()
	if err != nil {
		entry.Error = "reading upload failed"
		return entry
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		entry.Error = "reading upload failed"
		return entry
	}

	doc, err := h.ingestor.IngestFile(r.Context(), header.Filename, data)
	if err != nil {
		h.logger.Warn("batch member failed", "filename", header.Filename, "error", err)
		entry.Error = ingestErrorMessage(err)
		return entry
	}

	return batchEntry{
		Filename:      doc.Filename,
		Status:        "indexed",
		DocumentID:    doc.ID,
		ChunksCreated: doc.ChunkCount,
	}
}

// uploadURLRequest is the POST /upload-url payload.
type uploadURLRequest struct {
	URL string `json:"url"`
}

// uploadURL fetches a web page and ingests its readable text.
func (h *uploadHandler) uploadURL(w http.ResponseWriter, r *http.Request) {
	var req uploadURLRequest
	r.Body = http.MaxBytesReader(w, r.Body, queryBodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "invalid_url", "url must be absolute http(s)", h.logger)
		return
	}

	doc, err := h.ingestor.IngestURL(r.Context(), req.URL)
	if err != nil {
		h.writeIngestError(w, req.URL, err)
		return
	}

	writeJSON(w, http.StatusOK, toUploadResponse(doc), h.logger)
}

// openMultipartFile extracts the named file from the multipart form,
// enforcing the upload size cap. On failure the error response has
// already been written.
func (h *uploadHandler) openMultipartFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	// Cap slightly above the document limit so a too-large file surfaces
	// as 413 from the ingestor's own check rather than a parse error.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.writeReadError(w, err)
		return nil, nil, false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", fmt.Sprintf("multipart field %q is required", field), h.logger)
		return nil, nil, false
	}
	return file, header, true
}

// writeReadError maps body/multipart read failures. An exceeded
// MaxBytesReader surfaces as *http.MaxBytesError.
func (h *uploadHandler) writeReadError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "upload exceeds the size limit", h.logger)
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_body", "malformed multipart request", h.logger)
}

// writeIngestError maps ingestion failures to HTTP statuses.
func (h *uploadHandler) writeIngestError(w http.ResponseWriter, source string, err error) {
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "unsupported_format", "supported formats: pdf, docx, txt, md, html", h.logger)
	case errors.Is(err, ingest.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "upload exceeds the size limit", h.logger)
	case errors.Is(err, ingest.ErrEmptyDocument):
		writeError(w, http.StatusBadRequest, "empty_document", "no text could be extracted", h.logger)
	default:
		h.logger.Error("ingestion failed", "source", source, "error", err)
		writeError(w, http.StatusInternalServerError, "ingest_failed", "failed to ingest document", h.logger)
	}
}

// ingestErrorMessage renders an ingest error for a batch entry without
// leaking internals.
func ingestErrorMessage(err error) string {
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return "unsupported format"
	case errors.Is(err, ingest.ErrFileTooLarge):
		return "file exceeds the size limit"
	case errors.Is(err, ingest.ErrEmptyDocument):
		return "no text could be extracted"
	default:
		return "ingestion failed"
	}
}
