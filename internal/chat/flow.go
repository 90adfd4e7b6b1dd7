package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
)

// Input defines the request payload for the chat flow.
type Input struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"` // Optional: empty starts a new session
	TopK      int    `json:"topK"`      // Optional: 0 uses the configured default
}

// Output defines the response payload from the chat flow.
type Output struct {
	Answer      string   `json:"answer"`
	SessionID   string   `json:"sessionId"`
	Model       string   `json:"model"`
	Sources     []Source `json:"sources"`
	ContextUsed bool     `json:"contextUsed"`
}

// StreamChunk is the streaming output type for the chat flow. Each
// chunk carries partial answer text for immediate display.
type StreamChunk struct {
	Text string `json:"text"`
}

// FlowName is the registered name of the chat flow in Genkit.
const FlowName = "recall/chat"

// Flow is the type alias for the chat service's Genkit streaming flow.
// Exported for use with genkit.Handler().
type Flow = core.Flow[Input, Output, StreamChunk]

// Package-level singleton: genkit.DefineStreamingFlow panics on
// re-registration, so the flow is defined at most once per process.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the chat flow singleton, initializing it on first
// call. Subsequent calls return the existing flow (parameters are
// ignored).
func NewFlow(g *genkit.Genkit, svc *Service) *Flow {
	flowOnce.Do(func() {
		flow = svc.DefineFlow(g)
	})
	return flow
}

// ResetFlowForTesting resets the flow singleton so tests can
// re-initialize with different configurations.
// WARNING: only use in tests; not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

// DefineFlow registers the Genkit streaming flow wrapping
// Service.AskStream. Use NewFlow instead of calling this directly;
// defining the flow twice panics inside Genkit.
//
// The flow gives the service a typed Input/Output schema, DevUI
// tracing, and streaming support over genkit.Handler.
func (s *Service) DefineFlow(g *genkit.Genkit) *Flow {
	return genkit.DefineStreamingFlow(g, FlowName,
		func(ctx context.Context, input Input, streamCb func(context.Context, StreamChunk) error) (Output, error) {
			var sessionID uuid.UUID
			if input.SessionID != "" {
				id, err := uuid.Parse(input.SessionID)
				if err != nil {
					return Output{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
				}
				sessionID = id
			}

			// When streamCb is nil (invoked via Run instead of Stream),
			// AskStream operates in non-streaming mode.
			var callback StreamCallback
			if streamCb != nil {
				callback = func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
					if chunk == nil {
						return nil
					}
					for _, part := range chunk.Content {
						if part.Text != "" {
							if streamErr := streamCb(ctx, StreamChunk{Text: part.Text}); streamErr != nil {
								return streamErr
							}
						}
					}
					return nil
				}
			}

			resp, err := s.AskStream(ctx, Request{
				SessionID: sessionID,
				Query:     input.Query,
				TopK:      input.TopK,
			}, callback)
			if err != nil {
				return Output{}, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
			}

			return Output{
				Answer:      resp.Answer,
				SessionID:   resp.SessionID.String(),
				Model:       resp.Model,
				Sources:     resp.Sources,
				ContextUsed: resp.ContextUsed,
			}, nil
		},
	)
}
