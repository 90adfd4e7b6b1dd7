package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/app"
	"github.com/recallhq/recall/internal/chat"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/session"
	"github.com/recallhq/recall/internal/tui"
)

// runCLI initializes and starts the interactive chat with the Bubble
// Tea TUI.
func runCLI() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Warn("shutdown error", "error", closeErr)
		}
	}()

	flow := chat.NewFlow(a.Genkit, a.Chat)

	sessionID, err := resumeSessionID(ctx, a.Sessions)
	if err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}

	model, err := tui.New(ctx, flow, sessionID)
	if err != nil {
		return fmt.Errorf("creating TUI: %w", err)
	}
	program := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err = program.Run(); err != nil {
		return fmt.Errorf("TUI exited: %w", err)
	}

	// Remember the conversation for the next `recall cli` run.
	if id := model.SessionID(); id != uuid.Nil {
		if saveErr := session.SaveCurrentSessionID(id); saveErr != nil {
			slog.Warn("saving session state", "error", saveErr)
		}
	}
	return nil
}

// resumeSessionID returns the previously used session if it still
// exists, or uuid.Nil to let the first question start a fresh one.
func resumeSessionID(ctx context.Context, store *session.Store) (uuid.UUID, error) {
	currentID, err := session.LoadCurrentSessionID()
	if err != nil {
		return uuid.Nil, err
	}
	if currentID == nil {
		return uuid.Nil, nil
	}

	if _, err = store.Session(ctx, *currentID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			// Stale state file; forget it and start fresh.
			if clearErr := session.ClearCurrentSessionID(); clearErr != nil {
				slog.Warn("clearing stale session state", "error", clearErr)
			}
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	return *currentID, nil
}
