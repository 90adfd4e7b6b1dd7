package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
)

// RetryConfig configures the retry behavior for LLM calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// String matching is used because Genkit and the provider SDKs expose
// no typed errors for transient failures. Re-evaluate if Genkit grows
// structured error types.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, group := range retryablePatterns {
		if containsAny(errStr, group...) {
			return true
		}
	}
	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// executeWithRetry executes the prompt with exponential backoff on
// transient errors. Every attempt, including the first, waits on the
// client-side rate limiter so retries cannot amplify provider load.
func (s *Service) executeWithRetry(
	ctx context.Context,
	opts []ai.PromptExecuteOption,
) (*ai.ModelResponse, error) {
	var lastErr error
	delay := s.retryConfig.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= s.retryConfig.MaxRetries; attempt++ {
		if s.rateLimiter != nil {
			if err := s.rateLimiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := s.prompt.Execute(ctx, opts...)
		if err == nil {
			s.logger.Debug("prompt executed",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}

		lastErr = err

		// Non-retryable errors fail immediately.
		if !retryableError(err) {
			return nil, fmt.Errorf("prompt execute: %w", err)
		}

		// Last attempt: report instead of sleeping.
		if attempt == s.retryConfig.MaxRetries {
			break
		}

		s.logger.Debug("retrying after error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, s.retryConfig.MaxInterval)
		}
	}

	return nil, fmt.Errorf("prompt execute after %d retries (elapsed: %v): %w",
		s.retryConfig.MaxRetries, time.Since(start), lastErr)
}
