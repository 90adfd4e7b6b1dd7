// Package app assembles the service: configuration, database pool,
// Genkit provider plugins, the knowledge and session stores, the
// ingestion pipeline, and the chat service. Entry points (serve, cli,
// mcp) call Setup once and share the resulting App.
package app

import (
	"errors"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recallhq/recall/internal/chat"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/ingest"
	"github.com/recallhq/recall/internal/knowledge"
	"github.com/recallhq/recall/internal/session"
)

// App is the assembled application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	Knowledge *knowledge.Store
	Sessions  *session.Store
	Ingestor  *ingest.Ingestor
	Chat      *chat.Service

	// Retriever is the knowledge store bridged into Genkit's retriever
	// API, for the DevUI and MCP surfaces.
	Retriever ai.Retriever

	otelCleanup func()
	dbCleanup   func()
	storage     *ingest.Storage
}

// Close releases all resources acquired in Setup, in reverse order.
// Safe to call on a partially constructed App.
func (a *App) Close() error {
	var errs []error

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return errors.Join(errs...)
}
