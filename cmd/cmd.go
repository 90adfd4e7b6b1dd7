// Package cmd provides the CLI commands for Recall.
//
// Commands:
//   - serve: HTTP API server with the embedded web UI and SSE streaming
//   - cli: Interactive terminal chat with Bubble Tea TUI
//   - mcp: Model Context Protocol server for IDE integration
//   - ask: One-shot question from the command line
//   - sessions: List, show, and delete conversation sessions
//
// Signal handling and graceful shutdown are implemented for all
// long-running commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/recallhq/recall/internal/log"
)

// Execute is the main entry point for the Recall CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	args := os.Args[2:]

	switch os.Args[1] {
	case "serve":
		return runServe(args)
	case "cli":
		return runCLI()
	case "mcp":
		return runMCP()
	case "ask":
		return runAsk(args)
	case "sessions":
		return runSessions(args)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Recall - Chat with your documents")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  recall serve [addr]          Start HTTP API server (default: 127.0.0.1:8080)")
	fmt.Println("  recall cli                   Start interactive chat mode")
	fmt.Println("  recall mcp                   Start MCP server (stdio, for IDE hosts)")
	fmt.Println("  recall ask <question>        Ask a one-shot question")
	fmt.Println("  recall sessions <subcmd>     Manage sessions (list, show, delete)")
	fmt.Println("  recall --version             Show version information")
	fmt.Println("  recall --help                Show this help")
	fmt.Println()
	fmt.Println("CLI Commands (in interactive mode):")
	fmt.Println("  /help                        Show available commands")
	fmt.Println("  /new                         Start a new conversation")
	fmt.Println("  /clear                       Clear the screen")
	fmt.Println("  /exit, /quit                 Exit Recall")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY               Gemini API key (default provider)")
	fmt.Println("  DATABASE_URL                 PostgreSQL connection URL")
	fmt.Println("  DEBUG                        Enable debug logging")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/recallhq/recall")
}
