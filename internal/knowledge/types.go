// Package knowledge stores document chunks with their embeddings in
// PostgreSQL + pgvector and serves cosine similarity search over them.
//
// The Store owns the documents and chunks tables. Uploading the same
// content twice is idempotent: the document row is upserted and its
// chunk set replaced in one transaction. Search embeds the query text
// and ranks chunks with the pgvector `<=>` cosine distance operator,
// reporting similarity as 1 - distance.
//
// The store is exposed to the generation layer as a Genkit retriever
// via DefineRetriever.
package knowledge

import (
	"errors"
	"time"
)

// VectorDimension is the embedding width of the chunks table.
//
// gemini-embedding-001 emits 3072 dimensions by default; requesting 768
// via OutputDimensionality keeps the HNSW index small at near-identical
// retrieval quality (Matryoshka truncation). Changing this requires a
// schema migration.
const VectorDimension int32 = 768

// ErrDocumentNotFound is returned when a document id does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// Document is an uploaded file's bookkeeping row. The text itself lives
// in the document's chunks.
type Document struct {
	ID         string    `json:"documentId"`
	Filename   string    `json:"filename"`
	Format     string    `json:"format"`
	SizeBytes  int64     `json:"sizeBytes"`
	ChunkCount int       `json:"chunkCount"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Chunk is one embedded slice of a document.
type Chunk struct {
	ID         string
	DocumentID string
	Seq        int
	Content    string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Result is a single search hit.
type Result struct {
	Chunk      Chunk
	Filename   string  // owning document's filename
	Similarity float32 // 1 - cosine distance, higher is closer
}

const (
	defaultTopK          = 5
	defaultSearchTimeout = 10 * time.Second
)

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK       int
	timeout    time.Duration
	documentID string
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithTimeout bounds the whole search (query embedding + vector scan).
// Default is 10 seconds.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDocument restricts the search to chunks of a single document.
func WithDocument(documentID string) SearchOption {
	return func(c *searchConfig) {
		c.documentID = documentID
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    defaultTopK,
		timeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
