package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// SSEEvent is one event from a text/event-stream response, as emitted
// by the streaming query endpoint ("chunk" events followed by "done").
type SSEEvent struct {
	Type string
	Data string
}

// ParseSSEEvents parses a complete event-stream body into events.
// Multiple data: lines within one event are joined with newlines, a
// blank line terminates an event, data without an event: line gets the
// default "message" type, and ":" comment lines are skipped. Anything
// else fails the test: the handler emitted a malformed stream.
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	var (
		events  []SSEEvent
		current SSEEvent
		data    []string
		lineNum int
	)

	flush := func() {
		if current.Type == "" {
			return
		}
		current.Data = strings.Join(data, "\n")
		events = append(events, current)
		current = SSEEvent{}
		data = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event: "):
			if len(data) > 0 {
				t.Fatalf("line %d: event %q started before previous event was terminated", lineNum, line)
			}
			current.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if current.Type == "" {
				current.Type = "message"
			}
			data = append(data, strings.TrimPrefix(line, "data: "))
		case strings.HasPrefix(line, ":"):
			// comment line
		default:
			t.Fatalf("line %d: unexpected event-stream line %q", lineNum, line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanning event stream: %v", err)
	}
	if current.Type != "" {
		t.Fatalf("stream ended inside event %q (missing blank line)", current.Type)
	}

	return events
}

// FindEvent returns the first event of the given type, or nil.
func FindEvent(events []SSEEvent, eventType string) *SSEEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// FindAllEvents returns every event of the given type in order.
func FindAllEvents(events []SSEEvent, eventType string) []SSEEvent {
	var found []SSEEvent
	for _, e := range events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}
