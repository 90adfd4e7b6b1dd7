package testutil

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// expectPollInterval is how often ExpectString re-checks the buffer.
const expectPollInterval = 50 * time.Millisecond

// Terminal drives an interactive subprocess over its pipes: writes go
// to stdin, stdout and stderr are drained into a shared buffer, and
// ExpectString polls that buffer. Used by the end-to-end tests to talk
// JSON-RPC to `recall mcp`.
type Terminal struct {
	stdin io.WriteCloser

	mu  sync.Mutex
	buf strings.Builder

	closers []io.Closer
	wg      sync.WaitGroup
}

// NewTerminal starts draining stdout and stderr. Either reader may be
// nil, but they must not be the same object: two goroutines reading
// one pipe would race.
func NewTerminal(stdin io.WriteCloser, stdout, stderr io.ReadCloser) (*Terminal, error) {
	if stdin == nil {
		return nil, errors.New("stdin cannot be nil")
	}
	if stdout != nil && stderr != nil && stdout == stderr {
		return nil, errors.New("stdout and stderr must be distinct readers")
	}

	t := &Terminal{stdin: stdin, closers: []io.Closer{stdin}}
	for _, r := range []io.ReadCloser{stdout, stderr} {
		if r == nil {
			continue
		}
		t.closers = append(t.closers, r)
		t.wg.Add(1)
		go t.drain(r)
	}
	return t, nil
}

// drain copies a pipe into the shared buffer until EOF or close.
func (t *Terminal) drain(r io.Reader) {
	defer t.wg.Done()

	chunk := make([]byte, 1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			t.mu.Lock()
			t.buf.Write(chunk[:n])
			t.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// SendLine writes one newline-terminated line to the process.
func (t *Terminal) SendLine(input string) error {
	if _, err := fmt.Fprintf(t.stdin, "%s\n", input); err != nil {
		return fmt.Errorf("writing to stdin: %w", err)
	}
	return nil
}

// ExpectString blocks until the captured output contains expected or
// the timeout elapses. On timeout the error carries the full output
// seen so far.
func (t *Terminal) ExpectString(expected string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if strings.Contains(t.Output(), expected) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %q, output so far:\n%s", expected, t.Output())
		}
		time.Sleep(expectPollInterval)
	}
}

// Output returns everything captured from stdout and stderr so far.
func (t *Terminal) Output() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// Close closes all pipes and waits for the drain goroutines.
func (t *Terminal) Close() error {
	var errs []error
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.wg.Wait()
	return errors.Join(errs...)
}
