package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recallhq/recall/db"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/session"
)

// sessionsListLimit bounds the list output.
const sessionsListLimit = 100

// runSessions dispatches the sessions subcommands. These are local
// management commands; they talk to PostgreSQL directly and never
// touch the model provider.
func runSessions(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: recall sessions <list|show|delete> [id]")
	}

	ctx := context.Background()

	store, pool, err := openSessionStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	switch args[0] {
	case "list":
		return runSessionsList(ctx, store)
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: recall sessions show <session-id>")
		}
		return runSessionsShow(ctx, store, args[1])
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: recall sessions delete <session-id>")
		}
		return runSessionsDelete(ctx, store, args[1])
	default:
		return fmt.Errorf("unknown sessions subcommand: %s", args[0])
	}
}

// openSessionStore connects to PostgreSQL and builds a session store.
func openSessionStore(ctx context.Context) (*session.Store, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	store, err := session.NewStore(pool, slog.Default())
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("creating session store: %w", err)
	}
	return store, pool, nil
}

func runSessionsList(ctx context.Context, store *session.Store) error {
	sessions, err := store.Sessions(ctx, sessionsListLimit, 0)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions yet. Start one with `recall cli` or `recall ask`.")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  %-30s  %3d messages  updated %s\n",
			s.ID, s.Title, s.MessageCount, formatTime(s.UpdatedAt))
	}
	return nil
}

func runSessionsShow(ctx context.Context, store *session.Store, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid session ID: %s", rawID)
	}

	s, err := store.Session(ctx, id)
	if err != nil {
		return fmt.Errorf("getting session: %w", err)
	}

	messages, err := store.Messages(ctx, id, config.NormalizeMaxHistoryMessages(0), 0)
	if err != nil {
		return fmt.Errorf("getting messages: %w", err)
	}

	fmt.Printf("Session ID: %s\n", s.ID)
	fmt.Printf("Title: %s\n", s.Title)
	fmt.Printf("Model: %s\n", s.ModelName)
	fmt.Printf("Created: %s\n", formatTime(s.CreatedAt))
	fmt.Printf("Updated: %s\n", formatTime(s.UpdatedAt))
	fmt.Printf("Messages: %d\n", len(messages))
	fmt.Println()
	fmt.Println("───────────────────────────────────────")
	fmt.Println()

	for _, msg := range messages {
		role := "You"
		if msg.Role == session.RoleAssistant {
			role = "Recall"
		}
		fmt.Printf("%s> %s\n", role, msg.Content)
		fmt.Println()
	}
	return nil
}

func runSessionsDelete(ctx context.Context, store *session.Store, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid session ID: %s", rawID)
	}

	if err := store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	// Forget the saved state if it pointed at the deleted session.
	if current, loadErr := session.LoadCurrentSessionID(); loadErr == nil && current != nil && *current == id {
		if clearErr := session.ClearCurrentSessionID(); clearErr != nil {
			slog.Warn("clearing session state", "error", clearErr)
		}
	}

	fmt.Printf("Deleted session %s\n", id)
	return nil
}

// formatTime formats time in a human-readable format.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
