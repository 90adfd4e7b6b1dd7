// Package ingest turns uploaded files and fetched web pages into
// embedded chunks in the knowledge store.
//
// Pipeline: detect format, extract text, chunk, persist (the store
// embeds each chunk on save). Raw uploads are additionally kept on
// disk so documents can be re-processed after a chunking or schema
// change.
//
// Document ids are content-addressed: "doc_" plus the first 16 hex
// characters of SHA-256 over the source name and extracted text.
// Re-ingesting identical content is therefore idempotent, while
// changed content produces a new document.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/knowledge"
)

// Supported document formats, stored on knowledge.Document.Format.
const (
	FormatPDF      = "pdf"
	FormatDOCX     = "docx"
	FormatText     = "txt"
	FormatMarkdown = "md"
	FormatHTML     = "html"
	FormatURL      = "url"
)

var (
	// ErrUnsupportedFormat indicates the file extension is not ingestible.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrFileTooLarge indicates the upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file exceeds size limit")

	// ErrEmptyDocument indicates no text could be extracted.
	ErrEmptyDocument = errors.New("document has no extractable text")
)

// DetectFormat maps a filename extension to a supported format.
func DetectFormat(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	case ".txt":
		return FormatText, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".html", ".htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Ingestor runs the ingestion pipeline and writes the results to the
// knowledge store.
type Ingestor struct {
	store       *knowledge.Store
	storage     *Storage
	fetcher     *Fetcher
	chunker     *Chunker
	maxFileSize int64
	maxChunks   int
	logger      *slog.Logger
}

// NewIngestor builds an Ingestor. storage and fetcher may be nil:
// without storage no raw copies are kept, without fetcher IngestURL is
// unavailable.
func NewIngestor(store *knowledge.Store, storage *Storage, fetcher *Fetcher, cfg config.IngestConfig, logger *slog.Logger) (*Ingestor, error) {
	if store == nil {
		return nil, errors.New("knowledge store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxFileSize := cfg.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	maxChunks := cfg.MaxChunks
	if maxChunks <= 0 {
		maxChunks = 100
	}
	return &Ingestor{
		store:       store,
		storage:     storage,
		fetcher:     fetcher,
		chunker:     NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		maxFileSize: maxFileSize,
		maxChunks:   maxChunks,
		logger:      logger,
	}, nil
}

// IngestFile extracts, chunks and stores one uploaded file.
func (in *Ingestor) IngestFile(ctx context.Context, filename string, data []byte) (*knowledge.Document, error) {
	if int64(len(data)) > in.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, len(data), in.maxFileSize)
	}
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	text, err := extractText(format, data)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", filename, err)
	}

	doc, err := in.ingest(ctx, documentID(filename, text), filename, format, int64(len(data)), text)
	if err != nil {
		return nil, err
	}

	// Raw copy failure is not fatal; the document is already indexed.
	if in.storage != nil {
		if _, err := in.storage.Save(doc.ID, filename, data); err != nil {
			in.logger.Warn("keeping raw upload failed",
				"document_id", doc.ID, "error", err)
		}
	}
	return doc, nil
}

// IngestURL fetches a web page and stores its readable text. The page
// title becomes the document filename; identity is keyed on the URL.
func (in *Ingestor) IngestURL(ctx context.Context, rawURL string) (*knowledge.Document, error) {
	if in.fetcher == nil {
		return nil, errors.New("url ingestion is not configured")
	}
	page, err := in.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	name := page.Title
	if name == "" {
		name = page.URL
	}
	return in.ingest(ctx, documentID(page.URL, page.Text), name, FormatURL, int64(len(page.Text)), page.Text)
}

// ingest chunks text and saves the document. Documents over the chunk
// cap are truncated, not rejected.
func (in *Ingestor) ingest(ctx context.Context, id, filename, format string, sizeBytes int64, text string) (*knowledge.Document, error) {
	pieces := in.chunker.Split(text)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, filename)
	}
	if len(pieces) > in.maxChunks {
		in.logger.Warn("document truncated at chunk cap",
			"filename", filename,
			"chunks", len(pieces),
			"max_chunks", in.maxChunks)
		pieces = pieces[:in.maxChunks]
	}

	doc := &knowledge.Document{
		ID:        id,
		Filename:  filename,
		Format:    format,
		SizeBytes: sizeBytes,
	}
	chunks := make([]*knowledge.Chunk, len(pieces))
	for seq, content := range pieces {
		chunks[seq] = &knowledge.Chunk{
			ID:         fmt.Sprintf("%s_%d", id, seq),
			DocumentID: id,
			Seq:        seq,
			Content:    content,
			Metadata: map[string]string{
				"filename":    filename,
				"chunk_index": strconv.Itoa(seq),
			},
		}
	}

	if err := in.store.SaveDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("saving document %s: %w", id, err)
	}

	in.logger.Info("document ingested",
		"document_id", doc.ID,
		"filename", filename,
		"format", format,
		"chunks", doc.ChunkCount)
	return doc, nil
}

// extractText dispatches to the extractor for the detected format.
func extractText(format string, data []byte) (string, error) {
	switch format {
	case FormatPDF:
		return extractPDF(data)
	case FormatDOCX:
		return extractDOCX(data)
	case FormatHTML:
		return extractHTML(data)
	case FormatText, FormatMarkdown:
		return decodeText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// documentID derives a stable content-addressed id from the source name
// and extracted text.
func documentID(source, text string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "doc_" + hex.EncodeToString(h.Sum(nil))[:16]
}
