package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const defaultRenderWidth = 80

// markdownRenderer wraps glamour for answer rendering. A nil receiver
// or failed initialization degrades to plain text.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

func newGlamour(width int) (*glamour.TermRenderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
}

func newMarkdownRenderer(width int) *markdownRenderer {
	if width <= 0 {
		width = defaultRenderWidth
	}
	r, err := newGlamour(width)
	if err != nil {
		return nil
	}
	return &markdownRenderer{renderer: r, width: width}
}

// UpdateWidth rebuilds the renderer when the wrap width changes.
// Reports whether a rebuild happened.
func (m *markdownRenderer) UpdateWidth(width int) bool {
	if m == nil || width <= 0 || m.width == width {
		return false
	}
	r, err := newGlamour(width)
	if err != nil {
		return false
	}
	m.renderer = r
	m.width = width
	return true
}

// Render converts Markdown to styled terminal output, falling back to
// the raw text when rendering is unavailable.
func (m *markdownRenderer) Render(markdown string) string {
	if m == nil || m.renderer == nil {
		return markdown
	}
	rendered, err := m.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimSuffix(rendered, "\n")
}
