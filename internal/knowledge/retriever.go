package knowledge

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// DefineRetriever registers the store's vector search as a Genkit
// retriever under the given name. Retrieved documents carry the chunk
// text plus documentId, filename, seq and similarity metadata.
//
// Options accepted on the request: {"k": <1..10>} to override how many
// chunks are returned.
func DefineRetriever(g *genkit.Genkit, store *Store, name string) ai.Retriever {
	return genkit.DefineRetriever(
		g, name, nil,
		func(ctx context.Context, req *ai.RetrieverRequest) (*ai.RetrieverResponse, error) {
			queryText := extractQueryText(req)
			topK := extractTopK(req, defaultTopK)

			results, err := store.Search(ctx, queryText, WithTopK(topK))
			if err != nil {
				return nil, err
			}

			return &ai.RetrieverResponse{
				Documents: convertResults(results),
			}, nil
		},
	)
}

// extractQueryText extracts text from RetrieverRequest.Query.
func extractQueryText(req *ai.RetrieverRequest) string {
	if req.Query != nil && len(req.Query.Content) > 0 {
		return req.Query.Content[0].Text
	}
	return ""
}

// extractTopK extracts "k" from request options, returning defaultK when
// absent. Values outside [1, 10] fall back to the default. Numeric types
// and numeric strings are accepted because options often arrive as
// JSON-decoded map[string]any.
func extractTopK(req *ai.RetrieverRequest, defaultK int) int {
	opts, ok := req.Options.(map[string]any)
	if !ok {
		return defaultK
	}
	k, exists := opts["k"]
	if !exists {
		return defaultK
	}

	var kInt int
	switch v := k.(type) {
	case int:
		kInt = v
	case int32:
		kInt = int(v)
	case int64:
		kInt = int(v)
	case float64:
		kInt = int(v)
	case float32:
		kInt = int(v)
	case string:
		kInt = parseIntSafe(v)
	default:
		return defaultK
	}

	if kInt < 1 || kInt > 10 {
		return defaultK
	}
	return kInt
}

// parseIntSafe parses a small positive decimal, returning 0 on anything else.
func parseIntSafe(s string) int {
	if s == "" {
		return 0
	}
	var result int
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0
		}
		result = result*10 + int(ch-'0')
		if result > 10 {
			return 0
		}
	}
	return result
}

// convertResults converts search Results to Genkit documents.
func convertResults(results []Result) []*ai.Document {
	docs := make([]*ai.Document, len(results))
	for i, result := range results {
		metadata := make(map[string]any, len(result.Chunk.Metadata)+4)
		for k, v := range result.Chunk.Metadata {
			metadata[k] = v
		}
		metadata["documentId"] = result.Chunk.DocumentID
		metadata["filename"] = result.Filename
		metadata["seq"] = result.Chunk.Seq
		metadata["similarity"] = result.Similarity

		docs[i] = ai.DocumentFromText(result.Chunk.Content, metadata)
	}
	return docs
}
