// Package mcp exposes the knowledge service over the Model Context
// Protocol, so IDEs and agent hosts can search the index, ask questions
// with conversation memory, and inspect indexed documents.
//
// Tools:
//   - search_knowledge: semantic search over indexed document chunks
//   - ask: a full RAG query (retrieval + conversation memory + LLM)
//   - list_documents: the indexed document inventory
//
// The server speaks MCP over any transport the SDK supports; `recall
// mcp` runs it on stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/recallhq/recall/internal/chat"
	"github.com/recallhq/recall/internal/knowledge"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string

	Chat      *chat.Service    // Required
	Knowledge *knowledge.Store // Required
	Logger    *slog.Logger
}

// Server wraps the MCP SDK server around the chat and knowledge
// services.
type Server struct {
	mcpServer *mcp.Server
	chat      *chat.Service
	knowledge *knowledge.Store
	logger    *slog.Logger
}

// NewServer creates the MCP server and registers all tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Knowledge == nil {
		return nil, errors.New("knowledge store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		chat:      cfg.Chat,
		knowledge: cfg.Knowledge,
		logger:    logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	return s, nil
}

// Run serves MCP on the given transport. Blocks until the transport
// closes or ctx is canceled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	searchSchema, err := jsonschema.For[SearchInput](nil)
	if err != nil {
		return fmt.Errorf("schema for search_knowledge: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "search_knowledge",
		Description: "Search the indexed documents using semantic similarity. " +
			"Returns the most relevant chunks with their source filenames and similarity scores.",
		InputSchema: searchSchema,
	}, s.searchKnowledge)

	askSchema, err := jsonschema.For[AskInput](nil)
	if err != nil {
		return fmt.Errorf("schema for ask: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "ask",
		Description: "Ask a question over the indexed documents. Retrieves relevant chunks, " +
			"merges them with the session's conversation history, and answers with the configured model. " +
			"Omit sessionId to start a new conversation; reuse the returned sessionId to continue it.",
		InputSchema: askSchema,
	}, s.ask)

	listSchema, err := jsonschema.For[ListDocumentsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for list_documents: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_documents",
		Description: "List all indexed documents with format, size, and chunk counts.",
		InputSchema: listSchema,
	}, s.listDocuments)

	return nil
}

// SearchInput is the search_knowledge tool input.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search text"`
	TopK  int    `json:"topK,omitempty" jsonschema:"number of chunks to return (default 5, max 10)"`
}

func (s *Server) searchKnowledge(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Query) == "" {
		return errorResult("query is required"), nil, nil
	}

	topK := in.TopK
	if topK <= 0 {
		topK = 5
	}
	if topK > chat.MaxTopK {
		topK = chat.MaxTopK
	}

	results, err := s.knowledge.Search(ctx, in.Query, knowledge.WithTopK(topK))
	if err != nil {
		return nil, nil, fmt.Errorf("searching knowledge: %w", err)
	}

	if len(results) == 0 {
		return textResult("No matching chunks found."), nil, nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [%s] (similarity %.3f)\n%s\n\n", i+1, r.Filename, r.Similarity, r.Chunk.Content)
	}
	return textResult(b.String()), nil, nil
}

// AskInput is the ask tool input.
type AskInput struct {
	Query     string `json:"query" jsonschema:"the question to answer"`
	SessionID string `json:"sessionId,omitempty" jsonschema:"conversation session UUID; omit to start a new session"`
	TopK      int    `json:"topK,omitempty" jsonschema:"number of chunks to retrieve (default 5, max 10)"`
}

// askResult is the structured payload returned alongside the answer
// text, so hosts can persist the session id.
type askResult struct {
	Answer      string        `json:"answer"`
	SessionID   string        `json:"sessionId"`
	Sources     []chat.Source `json:"sources,omitempty"`
	ContextUsed bool          `json:"contextUsed"`
}

func (s *Server) ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, any, error) {
	var sessionID uuid.UUID
	if in.SessionID != "" {
		id, err := uuid.Parse(in.SessionID)
		if err != nil {
			return errorResult("sessionId must be a UUID"), nil, nil
		}
		sessionID = id
	}

	resp, err := s.chat.Ask(ctx, chat.Request{
		SessionID: sessionID,
		Query:     in.Query,
		TopK:      in.TopK,
	})
	if err != nil {
		if errors.Is(err, chat.ErrEmptyQuery) {
			return errorResult("query is required"), nil, nil
		}
		return nil, nil, fmt.Errorf("asking: %w", err)
	}

	structured := askResult{
		Answer:      resp.Answer,
		SessionID:   resp.SessionID.String(),
		Sources:     resp.Sources,
		ContextUsed: resp.ContextUsed,
	}

	payload, err := json.Marshal(structured)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding result: %w", err)
	}
	return textResult(string(payload)), structured, nil
}

// ListDocumentsInput is the list_documents tool input (none).
type ListDocumentsInput struct{}

func (s *Server) listDocuments(ctx context.Context, _ *mcp.CallToolRequest, _ ListDocumentsInput) (*mcp.CallToolResult, any, error) {
	docs, err := s.knowledge.Documents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing documents: %w", err)
	}

	if len(docs) == 0 {
		return textResult("No documents indexed."), nil, nil
	}

	var b strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&b, "%s  %s (%s, %d bytes, %d chunks, uploaded %s)\n",
			d.ID, d.Filename, d.Format, d.SizeBytes, d.ChunkCount,
			d.UploadedAt.Format("2006-01-02 15:04"))
	}
	return textResult(b.String()), nil, nil
}

// textResult builds a plain-text MCP tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// errorResult builds an MCP tool error result for agent-visible
// failures (bad input, empty query). System failures propagate as Go
// errors instead.
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
	}
}
