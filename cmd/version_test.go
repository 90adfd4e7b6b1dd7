package cmd

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

// captureStdout redirects os.Stdout for the duration of fn.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()
	w.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("reading captured output: %v", err)
	}
	return buf.String()
}

func TestRunVersion(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	out := captureStdout(t, runVersion)

	if !strings.Contains(out, "Recall") {
		t.Errorf("version output missing product name: %q", out)
	}
	if !strings.Contains(out, Version) {
		t.Errorf("version output missing version string: %q", out)
	}
	if !strings.Contains(out, "not set") {
		t.Errorf("version output should report missing API key: %q", out)
	}
}

func TestRunVersion_MasksAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "AIzaSyExampleExampleExample")

	out := captureStdout(t, runVersion)

	if strings.Contains(out, "AIzaSyExampleExampleExample") {
		t.Error("version output must not print the full API key")
	}
	if !strings.Contains(out, "configured") {
		t.Errorf("version output should report the key as configured: %q", out)
	}
}

func TestRunHelp_ListsCommands(t *testing.T) {
	out := captureStdout(t, runHelp)

	for _, want := range []string{"serve", "cli", "mcp", "ask", "sessions"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q command", want)
		}
	}
}
