//go:build integration
// +build integration

package knowledge

import (
	"context"
	"fmt"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/testutil"
)

// makeVector returns a unit vector pointing along the given axis.
// Distinct axes are orthogonal, so cosine similarity between them is 0.
func makeVector(dim, axis int) []float32 {
	vec := make([]float32, dim)
	vec[axis%dim] = 1
	return vec
}

type storeSetup struct {
	store    *Store
	embedder *testutil.MockEmbedder
	db       *testutil.TestDBContainer
}

func setupStore(t *testing.T) (*storeSetup, func()) {
	t.Helper()

	dbContainer, cleanup := testutil.SetupTestDB(t)

	g := genkit.Init(context.Background())
	mockEmb := testutil.NewMockEmbedder(int(VectorDimension))
	embedder := mockEmb.RegisterEmbedder(g)

	store, err := NewStore(dbContainer.Pool, embedder, testutil.DiscardLogger())
	require.NoError(t, err)

	return &storeSetup{store: store, embedder: mockEmb, db: dbContainer}, cleanup
}

func testDocument(id, filename string) *Document {
	return &Document{
		ID:        id,
		Filename:  filename,
		Format:    "txt",
		SizeBytes: 1024,
	}
}

func testChunks(docID string, contents ...string) []*Chunk {
	chunks := make([]*Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = &Chunk{
			ID:         fmt.Sprintf("%s_%d", docID, i),
			DocumentID: docID,
			Seq:        i,
			Content:    content,
			Metadata:   map[string]string{"filename": "notes.txt"},
		}
	}
	return chunks
}

// TestStore_SaveAndSearch_Integration tests the core index-then-retrieve path
func TestStore_SaveAndSearch_Integration(t *testing.T) {
	setup, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	dim := int(VectorDimension)

	// Pin vectors so ranking is under test control
	setup.embedder.SetVector("cats are mammals", makeVector(dim, 0))
	setup.embedder.SetVector("go is a language", makeVector(dim, 1))
	setup.embedder.SetVector("tell me about cats", makeVector(dim, 0))

	doc := testDocument("doc_pets", "pets.txt")
	err := setup.store.SaveDocument(ctx, doc,
		testChunks("doc_pets", "cats are mammals", "go is a language"))
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ChunkCount)
	assert.False(t, doc.UploadedAt.IsZero(), "SaveDocument should fill UploadedAt")

	results, err := setup.store.Search(ctx, "tell me about cats")
	require.NoError(t, err)
	require.NotEmpty(t, results)

	best := results[0]
	assert.Equal(t, "cats are mammals", best.Chunk.Content)
	assert.Equal(t, "doc_pets", best.Chunk.DocumentID)
	assert.Equal(t, "pets.txt", best.Filename)
	assert.InDelta(t, 1.0, best.Similarity, 0.001, "identical vectors should score ~1")
	assert.Equal(t, "notes.txt", best.Chunk.Metadata["filename"], "metadata should round-trip")

	// Results are ordered by similarity, descending
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Similarity, results[i-1].Similarity)
	}
}

// TestStore_SaveDocument_Replace_Integration tests idempotent re-upload
func TestStore_SaveDocument_Replace_Integration(t *testing.T) {
	setup, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()

	doc := testDocument("doc_replace", "v1.txt")
	err := setup.store.SaveDocument(ctx, doc,
		testChunks("doc_replace", "alpha", "beta", "gamma"))
	require.NoError(t, err)

	// Same id, new content: chunk set must be swapped, not appended
	doc2 := testDocument("doc_replace", "v2.txt")
	err = setup.store.SaveDocument(ctx, doc2,
		testChunks("doc_replace", "delta", "epsilon"))
	require.NoError(t, err)

	docs, err := setup.store.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1, "re-upload must not create a second document")
	assert.Equal(t, "v2.txt", docs[0].Filename)
	assert.Equal(t, 2, docs[0].ChunkCount)

	var chunkCount int
	err = setup.db.Pool.QueryRow(ctx,
		"SELECT count(*) FROM chunks WHERE document_id = $1", "doc_replace").Scan(&chunkCount)
	require.NoError(t, err)
	assert.Equal(t, 2, chunkCount, "old chunks must be gone")
}

// TestStore_SaveDocument_Validation_Integration tests input validation
func TestStore_SaveDocument_Validation_Integration(t *testing.T) {
	setup, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()

	err := setup.store.SaveDocument(ctx, nil, testChunks("doc_x", "content"))
	assert.Error(t, err)

	err = setup.store.SaveDocument(ctx, testDocument("", "x.txt"), testChunks("doc_x", "content"))
	assert.Error(t, err)

	err = setup.store.SaveDocument(ctx, testDocument("doc_empty", "x.txt"), nil)
	assert.Error(t, err)
}

// TestStore_Documents_Integration tests listing order
func TestStore_Documents_Integration(t *testing.T) {
	setup, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("doc_%d", i)
		err := setup.store.SaveDocument(ctx, testDocument(id, id+".txt"),
			testChunks(id, fmt.Sprintf("content %d", i)))
		require.NoError(t, err)
	}

	docs, err := setup.store.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	// Newest upload first
	for i := 1; i < len(docs); i++ {
		assert.False(t, docs[i].UploadedAt.After(docs[i-1].UploadedAt),
			"documents should be ordered by uploaded_at DESC")
	}

	// Empty store returns empty slice, not nil
	for _, d := range docs {
		require.NoError(t, setup.store.DeleteDocument(ctx, d.ID))
	}
	docs, err = setup.store.Documents(ctx)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

// TestStore_DeleteDocument_Integration tests delete with chunk cascade
func TestStore_DeleteDocument_Integration(t *testing.T) {
	setup, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()

	err := setup.store.SaveDocument(ctx, testDocument("doc_del", "del.txt"),
		testChunks("doc_del", "one", "two"))
	require.NoError(t, err)

	require.NoError(t, setup.store.DeleteDocument(ctx, "doc_del"))

	var chunkCount int
	err = setup.db.Pool.QueryRow(ctx,
		"SELECT count(*) FROM chunks WHERE document_id = $1", "doc_del").Scan(&chunkCount)
	require.NoError(t, err)
	assert.Zero(t, chunkCount, "chunks should cascade on document delete")

	err = setup.store.DeleteDocument(ctx, "doc_del")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	err = setup.store.DeleteDocument(ctx, "doc_never_existed")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

// TestStore_Counts_Integration tests aggregate counts
func TestStore_Counts_Integration(t *testing.T) {
	setup, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()

	docs, chunks, err := setup.store.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, docs)
	assert.Zero(t, chunks)

	err = setup.store.SaveDocument(ctx, testDocument("doc_a", "a.txt"),
		testChunks("doc_a", "a1", "a2", "a3"))
	require.NoError(t, err)
	err = setup.store.SaveDocument(ctx, testDocument("doc_b", "b.txt"),
		testChunks("doc_b", "b1"))
	require.NoError(t, err)

	docs, chunks, err = setup.store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), docs)
	assert.Equal(t, int64(4), chunks)
}

// TestStore_Search_Options_Integration tests top-k and document filters
func TestStore_Search_Options_Integration(t *testing.T) {
	setup, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()

	err := setup.store.SaveDocument(ctx, testDocument("doc_a", "a.txt"),
		testChunks("doc_a", "a1", "a2", "a3"))
	require.NoError(t, err)
	err = setup.store.SaveDocument(ctx, testDocument("doc_b", "b.txt"),
		testChunks("doc_b", "b1", "b2"))
	require.NoError(t, err)

	// Top-k caps the result set
	results, err := setup.store.Search(ctx, "anything", WithTopK(2))
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// Document filter restricts to one document's chunks
	results, err = setup.store.Search(ctx, "anything", WithTopK(10), WithDocument("doc_b"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "doc_b", r.Chunk.DocumentID)
	}
}

// TestDefineRetriever_Integration tests the Genkit retriever bridge
func TestDefineRetriever_Integration(t *testing.T) {
	setup, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	dim := int(VectorDimension)

	setup.embedder.SetVector("pgvector stores embeddings", makeVector(dim, 2))
	setup.embedder.SetVector("what stores embeddings?", makeVector(dim, 2))

	err := setup.store.SaveDocument(ctx, testDocument("doc_pg", "pg.md"),
		testChunks("doc_pg", "pgvector stores embeddings", "unrelated filler text"))
	require.NoError(t, err)

	g := genkit.Init(ctx)
	retriever := DefineRetriever(g, setup.store, "recall/chunks")
	require.NotNil(t, retriever)

	resp, err := retriever.Retrieve(ctx, &ai.RetrieverRequest{
		Query:   ai.DocumentFromText("what stores embeddings?", nil),
		Options: map[string]any{"k": 1},
	})
	require.NoError(t, err)
	require.Len(t, resp.Documents, 1)

	doc := resp.Documents[0]
	assert.Equal(t, "pgvector stores embeddings", doc.Content[0].Text)
	assert.Equal(t, "doc_pg", doc.Metadata["documentId"])
	assert.Equal(t, "pg.md", doc.Metadata["filename"])
	assert.InDelta(t, 1.0, doc.Metadata["similarity"].(float32), 0.001)
}
