package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// documentCols is the standard SELECT column list for scanDocuments.
const documentCols = `id, filename, format, size_bytes, chunk_count, uploaded_at`

// resultCols is the SELECT column list for scanResults. Chunks are joined
// with their owning document so hits can report the source filename.
const resultCols = `c.id, c.document_id, c.seq, c.content, c.metadata, c.created_at,
	d.filename,
	1 - (c.embedding <=> $1) AS similarity`

// embedBatchSize caps how many chunks go into one embedding request.
const embedBatchSize = 100

// Store manages the vector index backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a knowledge Store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates a vector embedding for a single text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// embedBatch generates embeddings for many texts, batching requests so a
// large document does not exceed provider request limits.
func (s *Store) embedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vectors := make([]pgvector.Vector, 0, len(texts))

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))

		docs := make([]*ai.Document, 0, end-start)
		for _, text := range texts[start:end] {
			docs = append(docs, ai.DocumentFromText(text, nil))
		}

		dim := VectorDimension
		resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
			Input:   docs,
			Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
		})
		if err != nil {
			return nil, fmt.Errorf("embedding batch at offset %d: %w", start, err)
		}
		if len(resp.Embeddings) != len(docs) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d",
				len(resp.Embeddings), len(docs))
		}

		for i, emb := range resp.Embeddings {
			if len(emb.Embedding) == 0 {
				return nil, fmt.Errorf("empty embedding for text %d", start+i)
			}
			vectors = append(vectors, pgvector.NewVector(emb.Embedding))
		}
	}

	return vectors, nil
}

// SaveDocument embeds the given chunks and persists the document with its
// full chunk set in one transaction.
//
// Re-saving the same document id is idempotent: the document row is
// upserted and the previous chunk set replaced, so a re-upload never
// leaves stale chunks behind. Embeddings are generated before the
// transaction starts to keep the write window short.
func (s *Store) SaveDocument(ctx context.Context, doc *Document, chunks []*Chunk) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document with id is required")
	}
	if len(chunks) == 0 {
		return fmt.Errorf("document %q has no chunks", doc.ID)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := s.embedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks for %q: %w", doc.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", "documentId", doc.ID, "error", rbErr)
		}
	}()

	err = tx.QueryRow(ctx,
		`INSERT INTO documents (id, filename, format, size_bytes, chunk_count)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   filename = EXCLUDED.filename,
		   format = EXCLUDED.format,
		   size_bytes = EXCLUDED.size_bytes,
		   chunk_count = EXCLUDED.chunk_count,
		   uploaded_at = now()
		 RETURNING uploaded_at`,
		doc.ID, doc.Filename, doc.Format, doc.SizeBytes, len(chunks),
	).Scan(&doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	// Replace, not merge: a re-upload swaps the whole chunk set.
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("clearing chunks for %q: %w", doc.ID, err)
	}

	for i, chunk := range chunks {
		if err := insertChunk(ctx, tx, chunk, vectors[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing document %q: %w", doc.ID, err)
	}

	doc.ChunkCount = len(chunks)
	s.logger.Debug("indexed document",
		"documentId", doc.ID, "filename", doc.Filename, "chunks", len(chunks))
	return nil
}

// insertChunk inserts one chunk row using the provided querier (pool or tx).
func insertChunk(ctx context.Context, q querier, chunk *Chunk, vec pgvector.Vector) error {
	metadataJSON := []byte("{}")
	if len(chunk.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for chunk %q: %w", chunk.ID, err)
		}
	}

	_, err := q.Exec(ctx,
		`INSERT INTO chunks (id, document_id, seq, content, embedding, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		chunk.ID, chunk.DocumentID, chunk.Seq, chunk.Content, vec, metadataJSON)
	if err != nil {
		return fmt.Errorf("inserting chunk %q: %w", chunk.ID, err)
	}
	return nil
}

// Search embeds the query and returns the most similar chunks, closest
// first. The whole operation (embedding plus vector scan) runs under the
// configured timeout so a slow provider cannot block the caller.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vec, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, err
	}

	var rows pgx.Rows
	if cfg.documentID != "" {
		rows, err = s.pool.Query(queryCtx,
			`SELECT `+resultCols+`
			   FROM chunks c
			   JOIN documents d ON d.id = c.document_id
			  WHERE c.document_id = $2
			  ORDER BY c.embedding <=> $1
			  LIMIT $3`,
			vec, cfg.documentID, cfg.topK)
	} else {
		rows, err = s.pool.Query(queryCtx,
			`SELECT `+resultCols+`
			   FROM chunks c
			   JOIN documents d ON d.id = c.document_id
			  ORDER BY c.embedding <=> $1
			  LIMIT $2`,
			vec, cfg.topK)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	return s.scanResults(rows)
}

// Documents lists all indexed documents, newest upload first.
func (s *Store) Documents(ctx context.Context) ([]*Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentCols+` FROM documents ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// DeleteDocument removes a document; its chunks go with it (FK cascade).
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	s.logger.Debug("deleted document", "documentId", id)
	return nil
}

// Counts returns the total number of indexed documents and chunks.
func (s *Store) Counts(ctx context.Context) (documents, chunks int64, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT count(*) FROM documents),
		   (SELECT count(*) FROM chunks)`).Scan(&documents, &chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("counting index: %w", err)
	}
	return documents, chunks, nil
}

func scanDocuments(rows pgx.Rows) ([]*Document, error) {
	docs := make([]*Document, 0)
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.Format, &d.SizeBytes,
			&d.ChunkCount, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	return docs, nil
}

func (s *Store) scanResults(rows pgx.Rows) ([]Result, error) {
	results := make([]Result, 0)
	for rows.Next() {
		var (
			r            Result
			metadataJSON []byte
		)
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Seq,
			&r.Chunk.Content, &metadataJSON, &r.Chunk.CreatedAt,
			&r.Filename, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Chunk.Metadata); err != nil {
				s.logger.Warn("unreadable chunk metadata",
					"chunkId", r.Chunk.ID, "error", err)
				r.Chunk.Metadata = nil
			}
		}

		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	return results, nil
}
