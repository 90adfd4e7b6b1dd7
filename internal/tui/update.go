package tui

import (
	"context"
	"errors"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"

	"github.com/google/uuid"
)

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // Bubble Tea Update requires type switch on all message types
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Calculate viewport height: total - input - separators - help
		inputHeight := m.input.Height() + promptLines
		fixedHeight := separatorLines + inputHeight + helpLines
		vpHeight := max(msg.Height-fixedHeight, minViewport)

		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(vpHeight)
		m.input.SetWidth(msg.Width - 4) // Room for "> " prompt
		m.help.SetWidth(msg.Width)
		m.markdown.UpdateWidth(msg.Width)

		// Rebuild viewport content with new dimensions
		m.rebuildViewportContent()
		return m, nil

	case tea.MouseWheelMsg:
		// Forward mouse wheel to viewport for scrolling
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		// Rebuild viewport to update spinner animation
		if m.state == StateThinking {
			m.rebuildViewportContent()
		}
		return m, cmd

	case streamStartedMsg:
		m.streamCancel = msg.cancel
		m.streamEventCh = msg.eventCh
		m.state = StateStreaming
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForStream(msg.eventCh)

	case streamTextMsg:
		m.output.WriteString(msg.text)
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForStream(m.streamEventCh)

	case streamDoneMsg:
		m.state = StateInput

		// Cancel context to release timer resources
		if m.streamCancel != nil {
			m.streamCancel()
			m.streamCancel = nil
		}
		m.streamEventCh = nil

		// Adopt the session the server assigned so the conversation
		// continues across questions.
		if id, err := uuid.Parse(msg.output.SessionID); err == nil && id != uuid.Nil {
			m.sessionID = id
		}

		// Prefer msg.output.Answer (the complete answer) over the
		// accumulated chunks; models that don't stream only fill Output.
		finalText := msg.output.Answer
		if finalText == "" {
			finalText = m.output.String()
		}

		m.addMessage(Message{
			Role: roleAssistant,
			Text: finalText,
		})
		if line := sourcesLine(msg.output.Sources); line != "" {
			m.addMessage(Message{Role: roleSystem, Text: line})
		}
		m.output.Reset()
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		// Re-focus textarea after stream completes
		return m, m.input.Focus()

	case streamErrorMsg:
		m.state = StateInput

		// Cancel context to release timer resources
		if m.streamCancel != nil {
			m.streamCancel()
			m.streamCancel = nil
		}
		m.streamEventCh = nil

		switch {
		case errors.Is(msg.err, context.Canceled):
			m.addMessage(Message{Role: roleSystem, Text: "(Canceled)"})
		case errors.Is(msg.err, context.DeadlineExceeded):
			m.addMessage(Message{Role: roleError, Text: "Answer timeout (>5 min). Try a simpler question."})
		default:
			m.addMessage(Message{Role: roleError, Text: msg.err.Error()})
		}
		m.output.Reset()
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		// Re-focus textarea after error
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// sourcesLine formats retrieved source filenames for display under an
// answer. Duplicate filenames (multiple chunks of one document) are
// collapsed. Empty when the answer used no retrieved context.
func sourcesLine(sources []chatSource) string {
	if len(sources) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(sources))
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s.Filename]; ok {
			continue
		}
		seen[s.Filename] = struct{}{}
		names = append(names, s.Filename)
	}
	return "Sources: " + strings.Join(names, ", ")
}
