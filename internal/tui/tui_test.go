package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/chat"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	m, err := New(context.Background(), new(chat.Flow), uuid.Nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if m.ctxCancel != nil {
			m.ctxCancel()
		}
	})
	return m
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(context.Background(), nil, uuid.Nil); err == nil {
		t.Error("New() with nil flow should fail")
	}
	//nolint:staticcheck // Verifying the nil-context guard.
	if _, err := New(nil, new(chat.Flow), uuid.Nil); err == nil {
		t.Error("New() with nil ctx should fail")
	}
}

func TestNew_NilSessionAllowed(t *testing.T) {
	m := newTestModel(t)
	if m.SessionID() != uuid.Nil {
		t.Errorf("SessionID() = %v, want uuid.Nil", m.SessionID())
	}
}

func TestAddMessage_EnforcesBound(t *testing.T) {
	m := newTestModel(t)

	for i := range maxMessages + 20 {
		m.addMessage(Message{Role: roleUser, Text: fmt.Sprintf("msg %d", i)})
	}

	if len(m.messages) != maxMessages {
		t.Errorf("len(messages) = %d, want %d", len(m.messages), maxMessages)
	}
	// Oldest messages must be evicted first.
	if got := m.messages[0].Text; got != "msg 20" {
		t.Errorf("messages[0].Text = %q, want %q", got, "msg 20")
	}
}

func TestHandleSubmit_TransitionsToThinking(t *testing.T) {
	m := newTestModel(t)

	m.input.SetValue("what is in the handbook?")
	_, cmd := m.handleSubmit()

	if m.state != StateThinking {
		t.Errorf("state = %v, want StateThinking", m.state)
	}
	if cmd == nil {
		t.Error("handleSubmit() should return a command to start streaming")
	}
	if len(m.messages) != 1 || m.messages[0].Role != roleUser {
		t.Fatalf("messages = %+v, want single user message", m.messages)
	}
	if m.input.Value() != "" {
		t.Error("input should be cleared after submit")
	}
	if len(m.history) != 1 {
		t.Errorf("len(history) = %d, want 1", len(m.history))
	}
}

func TestHandleSubmit_IgnoresEmpty(t *testing.T) {
	m := newTestModel(t)

	m.input.SetValue("   ")
	_, cmd := m.handleSubmit()

	if m.state != StateInput {
		t.Errorf("state = %v, want StateInput", m.state)
	}
	if cmd != nil {
		t.Error("empty submit should not produce a command")
	}
}

func TestSlashCommands(t *testing.T) {
	t.Run("help", func(t *testing.T) {
		m := newTestModel(t)
		m.input.SetValue(cmdHelp)
		m.handleSubmit()
		if len(m.messages) != 1 || m.messages[0].Role != roleSystem {
			t.Fatalf("messages = %+v, want single system message", m.messages)
		}
	})

	t.Run("clear", func(t *testing.T) {
		m := newTestModel(t)
		m.addMessage(Message{Role: roleUser, Text: "hi"})
		m.input.SetValue(cmdClear)
		m.handleSubmit()
		if len(m.messages) != 0 {
			t.Errorf("len(messages) = %d after /clear, want 0", len(m.messages))
		}
	})

	t.Run("new resets session", func(t *testing.T) {
		m := newTestModel(t)
		m.sessionID = uuid.New()
		m.addMessage(Message{Role: roleUser, Text: "hi"})
		m.input.SetValue(cmdNew)
		m.handleSubmit()
		if m.sessionID != uuid.Nil {
			t.Error("/new should reset the session")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		m := newTestModel(t)
		m.input.SetValue("/bogus")
		m.handleSubmit()
		if len(m.messages) != 1 || m.messages[0].Role != roleError {
			t.Fatalf("messages = %+v, want single error message", m.messages)
		}
	})

	t.Run("exit quits", func(t *testing.T) {
		m := newTestModel(t)
		m.input.SetValue(cmdExit)
		_, cmd := m.handleSubmit()
		if cmd == nil {
			t.Fatal("/exit should return the quit command")
		}
	})
}

func TestNavigateHistory(t *testing.T) {
	m := newTestModel(t)
	m.history = []string{"first", "second", "third"}
	m.historyIdx = len(m.history)

	m.navigateHistory(-1)
	if got := m.input.Value(); got != "third" {
		t.Errorf("after up, input = %q, want %q", got, "third")
	}

	m.navigateHistory(-1)
	m.navigateHistory(-1)
	m.navigateHistory(-1) // Past the start clamps to oldest
	if got := m.input.Value(); got != "first" {
		t.Errorf("after repeated up, input = %q, want %q", got, "first")
	}

	for range 3 {
		m.navigateHistory(1)
	}
	if got := m.input.Value(); got != "" {
		t.Errorf("past the end, input = %q, want empty", got)
	}
}

func TestStreamDone_AdoptsSession(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming

	assigned := uuid.New()
	m.Update(streamDoneMsg{output: chat.Output{
		Answer:    "The handbook covers onboarding.",
		SessionID: assigned.String(),
	}})

	if m.state != StateInput {
		t.Errorf("state = %v, want StateInput", m.state)
	}
	if m.SessionID() != assigned {
		t.Errorf("SessionID() = %v, want %v", m.SessionID(), assigned)
	}
	if len(m.messages) != 1 || m.messages[0].Role != roleAssistant {
		t.Fatalf("messages = %+v, want single assistant message", m.messages)
	}
}

func TestStreamDone_FallsBackToChunks(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming
	m.output.WriteString("partial answer")

	m.Update(streamDoneMsg{output: chat.Output{}})

	if got := m.messages[0].Text; got != "partial answer" {
		t.Errorf("answer = %q, want accumulated chunks", got)
	}
	if m.output.Len() != 0 {
		t.Error("output buffer should be reset after completion")
	}
}

func TestStreamDone_ShowsSources(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming

	m.Update(streamDoneMsg{output: chat.Output{
		Answer:    "answer",
		SessionID: uuid.New().String(),
		Sources: []chat.Source{
			{Filename: "handbook.pdf"},
			{Filename: "handbook.pdf"},
			{Filename: "notes.md"},
		},
	}})

	if len(m.messages) != 2 {
		t.Fatalf("len(messages) = %d, want answer plus sources line", len(m.messages))
	}
	got := m.messages[1].Text
	if got != "Sources: handbook.pdf, notes.md" {
		t.Errorf("sources line = %q", got)
	}
}

func TestStreamError_Canceled(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming

	m.Update(streamErrorMsg{err: context.Canceled})

	if m.state != StateInput {
		t.Errorf("state = %v, want StateInput", m.state)
	}
	if len(m.messages) != 1 || m.messages[0].Role != roleSystem {
		t.Fatalf("messages = %+v, want single system message", m.messages)
	}
}

func TestStreamError_Generic(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming

	m.Update(streamErrorMsg{err: errors.New("model unavailable")})

	if len(m.messages) != 1 || m.messages[0].Role != roleError {
		t.Fatalf("messages = %+v, want single error message", m.messages)
	}
	if !strings.Contains(m.messages[0].Text, "model unavailable") {
		t.Errorf("error text = %q", m.messages[0].Text)
	}
}

func TestSourcesLine(t *testing.T) {
	if got := sourcesLine(nil); got != "" {
		t.Errorf("sourcesLine(nil) = %q, want empty", got)
	}
	got := sourcesLine([]chatSource{{Filename: "a.txt"}, {Filename: "b.txt"}, {Filename: "a.txt"}})
	if got != "Sources: a.txt, b.txt" {
		t.Errorf("sourcesLine() = %q", got)
	}
}

func TestListenForStream_NilChannel(t *testing.T) {
	cmd := listenForStream(nil)
	if msg := cmd(); msg != nil {
		t.Errorf("listenForStream(nil)() = %v, want nil", msg)
	}
}

func TestListenForStream_Dispatch(t *testing.T) {
	ch := make(chan streamEvent, 4)
	ch <- streamEvent{} // empty event is skipped
	ch <- streamEvent{text: "hello"}

	msg := listenForStream(ch)()
	text, ok := msg.(streamTextMsg)
	if !ok {
		t.Fatalf("msg type = %T, want streamTextMsg", msg)
	}
	if text.text != "hello" {
		t.Errorf("text = %q, want %q", text.text, "hello")
	}

	ch <- streamEvent{done: true, output: chat.Output{Answer: "done"}}
	if _, ok := listenForStream(ch)().(streamDoneMsg); !ok {
		t.Error("done event should dispatch streamDoneMsg")
	}

	close(ch)
	if _, ok := listenForStream(ch)().(streamErrorMsg); !ok {
		t.Error("closed channel should dispatch streamErrorMsg")
	}
}

func TestWindowSize_ResizesViewport(t *testing.T) {
	m := newTestModel(t)

	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	if m.width != 100 || m.height != 40 {
		t.Errorf("dimensions = %dx%d, want 100x40", m.width, m.height)
	}
	if m.viewport.Width() != 100 {
		t.Errorf("viewport width = %d, want 100", m.viewport.Width())
	}
}

func TestWindowSize_MinimumViewport(t *testing.T) {
	m := newTestModel(t)

	m.Update(tea.WindowSizeMsg{Width: 20, Height: 4})

	if h := m.viewport.Height(); h < minViewport {
		t.Errorf("viewport height = %d, want >= %d", h, minViewport)
	}
}

func TestMarkdownRenderer_NilSafe(t *testing.T) {
	var r *markdownRenderer
	if got := r.Render("**bold**"); got != "**bold**" {
		t.Errorf("nil renderer should pass text through, got %q", got)
	}
	if r.UpdateWidth(100) {
		t.Error("nil renderer UpdateWidth should report unchanged")
	}
}

func TestMarkdownRenderer_UpdateWidth(t *testing.T) {
	r := newMarkdownRenderer(80)
	if r == nil {
		t.Skip("glamour unavailable in this environment")
	}
	if r.UpdateWidth(80) {
		t.Error("same width should not recreate the renderer")
	}
	if !r.UpdateWidth(120) {
		t.Error("new width should recreate the renderer")
	}
}

func TestRenderBanner(t *testing.T) {
	banner := DefaultStyles().RenderBanner()
	if banner == "" {
		t.Fatal("banner is empty")
	}
	if got := strings.Count(banner, "\n"); got != len(recallArt) {
		t.Errorf("banner lines = %d, want %d", got, len(recallArt))
	}
}
