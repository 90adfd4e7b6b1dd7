package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/app"
	"github.com/recallhq/recall/internal/chat"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/session"
)

// runAsk answers a single question and exits. The conversation
// continues across invocations through the saved session state;
// --new starts a fresh conversation.
func runAsk(args []string) error {
	askFlags := flag.NewFlagSet("ask", flag.ContinueOnError)
	askFlags.SetOutput(os.Stderr)
	fresh := askFlags.Bool("new", false, "Start a new conversation")
	topK := askFlags.Int("top-k", 0, "Number of chunks to retrieve (0 = configured default)")

	if err := askFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing ask flags: %w", err)
	}

	question := strings.TrimSpace(strings.Join(askFlags.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: recall ask [--new] [--top-k N] <question>")
	}

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

	sessionID := uuid.Nil
	if !*fresh {
		sessionID, err = resumeSessionID(ctx, a.Sessions)
		if err != nil {
			return fmt.Errorf("restoring session: %w", err)
		}
	}

	resp, err := a.Chat.Ask(ctx, chat.Request{
		SessionID: sessionID,
		Query:     question,
		TopK:      *topK,
	})
	if err != nil {
		return fmt.Errorf("asking: %w", err)
	}

	fmt.Println(resp.Answer)

	if len(resp.Sources) > 0 {
		seen := make(map[string]struct{}, len(resp.Sources))
		var names []string
		for _, s := range resp.Sources {
			if _, ok := seen[s.Filename]; ok {
				continue
			}
			seen[s.Filename] = struct{}{}
			names = append(names, s.Filename)
		}
		fmt.Fprintf(os.Stderr, "\nSources: %s\n", strings.Join(names, ", "))
	}

	if saveErr := session.SaveCurrentSessionID(resp.SessionID); saveErr != nil {
		slog.Warn("saving session state", "error", saveErr)
	}
	return nil
}
