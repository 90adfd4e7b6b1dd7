// Package chat orchestrates retrieval-augmented conversations.
//
// For each query the [Service] resolves the session (creating one when
// the caller has none), loads the recent conversation window and
// searches the knowledge index in parallel, renders the strongest hits
// into the prompt context, and executes the Dotprompt against the
// configured model. Both turns are appended to the session afterwards.
//
// LLM calls run behind a client-side rate limiter, exponential-backoff
// retry, and a circuit breaker, so a struggling provider degrades the
// service instead of taking it down.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/recallhq/recall/internal/knowledge"
	"github.com/recallhq/recall/internal/session"
)

const (
	// RecallPromptName is the name of the Dotprompt file for the chat
	// service. This corresponds to prompts/recall.prompt. The Dotprompt
	// carries the default generation settings; Config.Temperature and
	// Config.MaxTokens override them when set.
	RecallPromptName = "recall"

	// retrievalTimeout bounds the knowledge search per request. On
	// timeout the query proceeds without document context.
	retrievalTimeout = 5 * time.Second

	// historyWindow is the number of stored messages (3 turns) included
	// in the prompt.
	historyWindow int32 = 6

	// MaxTopK caps the per-request retrieval size.
	MaxTopK = 10

	// promptSourceCount and promptSourceMaxRunes bound how much
	// retrieved text is rendered into the prompt context.
	promptSourceCount    = 3
	promptSourceMaxRunes = 300

	// sourcePreviewMaxRunes bounds the chunk preview reported back to
	// the caller alongside the answer.
	sourcePreviewMaxRunes = 200

	// fallbackAnswer is returned when the model produces an empty response.
	fallbackAnswer = "I apologize, but I couldn't generate a response. Please try rephrasing your question."
)

// Sentinel errors for chat operations.
var (
	// ErrEmptyQuery indicates the query was blank.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrInvalidSession indicates the session ID is malformed.
	ErrInvalidSession = errors.New("invalid session")

	// ErrExecutionFailed indicates query execution failed.
	ErrExecutionFailed = errors.New("execution failed")
)

// Request is a single query against the service.
type Request struct {
	// SessionID selects the conversation. uuid.Nil (or an unknown id)
	// starts a new session; the created id is reported in the Response.
	SessionID uuid.UUID

	// Query is the user's question.
	Query string

	// TopK overrides how many chunks are retrieved. Zero uses the
	// configured default; values above MaxTopK are clamped.
	TopK int
}

// Response is the complete result of one query.
type Response struct {
	Answer      string
	SessionID   uuid.UUID
	Model       string
	Sources     []Source
	ContextUsed bool
}

// Source is one retrieved chunk reported back with the answer.
type Source struct {
	Content    string  `json:"content"`    // chunk text preview
	Filename   string  `json:"filename"`   // owning document
	Similarity float32 `json:"similarity"` // 1 - cosine distance
}

// StreamCallback is called for each chunk of a streaming response.
// Return an error to abort the stream.
type StreamCallback func(ctx context.Context, chunk *ai.ModelResponseChunk) error

// Config contains all required parameters for the chat Service.
type Config struct {
	Genkit       *genkit.Genkit
	SessionStore *session.Store
	Knowledge    *knowledge.Store
	Logger       *slog.Logger

	// ModelName is the provider-qualified model name
	// (e.g. "googleai/gemini-2.5-flash", "ollama/llama3.3").
	ModelName string

	// Language is the response language preference ("auto" detects from
	// the user's input).
	Language string

	// TopK is the default retrieval size. Zero means 5.
	TopK int

	// Temperature and MaxTokens override the Dotprompt's generation
	// settings when non-zero.
	Temperature float64
	MaxTokens   int

	// Resilience configuration (zero-values use defaults).
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
	RateLimiter          *rate.Limiter // nil = default 10 req/s, burst 30
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.SessionStore == nil {
		return errors.New("session store is required")
	}
	if cfg.Knowledge == nil {
		return errors.New("knowledge store is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Service answers queries over the knowledge index with conversation
// memory.
//
// Service is stateless across requests; all configuration is captured
// immutably at construction time, so it is safe for concurrent use.
type Service struct {
	modelName      string
	languagePrompt string
	topK           int
	temperature    float64
	maxTokens      int

	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	rateLimiter    *rate.Limiter

	g         *genkit.Genkit
	sessions  *session.Store
	knowledge *knowledge.Store
	logger    *slog.Logger
	prompt    ai.Prompt
}

// New creates a chat Service from cfg.
//
// The Dotprompt (prompts/recall.prompt) must be loadable through the
// Genkit instance.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	// Resolve language once at construction.
	languagePrompt := cfg.Language
	if languagePrompt == "" || languagePrompt == "auto" {
		languagePrompt = "the same language as the user's input (auto-detect)"
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	cbConfig := cfg.CircuitBreakerConfig
	if cbConfig.FailureThreshold == 0 {
		cbConfig = DefaultCircuitBreakerConfig()
	}

	// Default: 10 requests/sec sustained, burst of 30.
	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	s := &Service{
		modelName:      cfg.ModelName,
		languagePrompt: languagePrompt,
		topK:           topK,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,

		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(cbConfig),
		rateLimiter:    rl,

		g:         cfg.Genkit,
		sessions:  cfg.SessionStore,
		knowledge: cfg.Knowledge,
		logger:    cfg.Logger,
	}

	s.prompt = genkit.LookupPrompt(s.g, RecallPromptName)
	if s.prompt == nil {
		return nil, fmt.Errorf("dotprompt %q not found: ensure the prompts directory is configured correctly", RecallPromptName)
	}

	s.logger.Info("chat service initialized", "model", s.modelName, "topK", s.topK)
	return s, nil
}

// Ask runs one query without streaming.
// This is a convenience wrapper around AskStream with nil callback.
func (s *Service) Ask(ctx context.Context, req Request) (*Response, error) {
	return s.AskStream(ctx, req, nil)
}

// AskStream runs one query with optional streaming output. If callback
// is non-nil it receives each response chunk as it is generated; the
// complete Response is returned either way.
func (s *Service) AskStream(ctx context.Context, req Request, callback StreamCallback) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	sess, created, err := s.ensureSession(ctx, req.SessionID, query)
	if err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	s.logger.Debug("executing query",
		"sessionId", sess.ID,
		"topK", topK,
		"streaming", callback != nil)

	// Load the conversation window and search the index in parallel;
	// both need only the query text. Buffered channels (cap 1) keep the
	// goroutines from blocking if the caller returns early.
	type historyResult struct {
		msgs []*session.Message
		err  error
	}
	type searchResult struct {
		results []knowledge.Result
		err     error
	}

	historyCh := make(chan historyResult, 1)
	searchCh := make(chan searchResult, 1)

	go func() {
		msgs, err := s.sessions.RecentMessages(ctx, sess.ID, historyWindow)
		historyCh <- historyResult{msgs, err}
	}()

	go func() {
		results, err := s.knowledge.Search(ctx, query,
			knowledge.WithTopK(topK),
			knowledge.WithTimeout(retrievalTimeout))
		searchCh <- searchResult{results, err}
	}()

	hr := <-historyCh
	if hr.err != nil {
		return nil, fmt.Errorf("loading history: %w", hr.err)
	}

	sr := <-searchCh
	if sr.err != nil {
		// Degraded: answer from conversation alone.
		s.logger.Warn("retrieval failed, answering without document context",
			"sessionId", sess.ID, "error", sr.err)
		sr.results = nil
	}

	resp, err := s.generate(ctx, query, messagesFromHistory(hr.msgs), contextBlock(sr.results), callback)
	if err != nil {
		return nil, err
	}

	answer := resp.Text()
	if strings.TrimSpace(answer) == "" {
		s.logger.Warn("model returned an empty response", "sessionId", sess.ID)
		answer = fallbackAnswer
	}

	turns := []*session.Message{
		{Role: session.RoleUser, Content: query},
		{Role: session.RoleAssistant, Content: answer},
	}
	if err := s.sessions.AddMessages(ctx, sess.ID, turns); err != nil {
		// Best-effort: the user already has the answer.
		s.logger.Warn("appending turns to session", "sessionId", sess.ID, "error", err)
	}

	if created {
		s.retitleSession(ctx, sess.ID, query)
	}

	return &Response{
		Answer:      answer,
		SessionID:   sess.ID,
		Model:       s.modelName,
		Sources:     sourcesFromResults(sr.results),
		ContextUsed: len(sr.results) > 0,
	}, nil
}

// ensureSession resolves id to an existing session or creates a new one
// titled after the query, reporting whether it created one. Unknown ids
// fall through to creation rather than failing, so clients can hold on
// to an id across a server reset.
func (s *Service) ensureSession(ctx context.Context, id uuid.UUID, query string) (*session.Session, bool, error) {
	if id != uuid.Nil {
		sess, err := s.sessions.Session(ctx, id)
		if err == nil {
			return sess, false, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			return nil, false, fmt.Errorf("loading session: %w", err)
		}
		s.logger.Debug("session not found, creating a new one", "sessionId", id)
	}

	sess, err := s.sessions.CreateSession(ctx, deriveTitle(query), s.modelName)
	if err != nil {
		return nil, false, fmt.Errorf("creating session: %w", err)
	}
	return sess, true, nil
}

// retitleSession replaces a freshly created session's derived title with
// a model-generated one. Best-effort: on failure the derived title stays.
func (s *Service) retitleSession(ctx context.Context, id uuid.UUID, query string) {
	title := s.GenerateTitle(ctx, query)
	if title == "" {
		return
	}
	if err := s.sessions.SetTitle(ctx, id, title); err != nil {
		s.logger.Warn("updating session title", "sessionId", id, "error", err)
	}
}

// generate executes the Dotprompt behind the circuit breaker and retry
// loop. documents is the rendered context block; empty means the prompt
// omits the document section.
func (s *Service) generate(ctx context.Context, query string, history []*ai.Message, documents string, callback StreamCallback) (*ai.ModelResponse, error) {
	messages := append(history, ai.NewUserMessage(ai.NewTextPart(query)))

	promptInput := map[string]any{
		"language":     s.languagePrompt,
		"current_date": time.Now().Format("2006-01-02"),
	}
	if documents != "" {
		promptInput["documents"] = documents
	}

	opts := []ai.PromptExecuteOption{
		ai.WithInput(promptInput),
		ai.WithMessagesFn(func(_ context.Context, _ any) ([]*ai.Message, error) {
			return messages, nil
		}),
	}

	// Override the model from the Dotprompt if configured (supports
	// multi-provider setups).
	if s.modelName != "" {
		opts = append(opts, ai.WithModelName(s.modelName))
	}

	if gc := s.generationConfig(); gc != nil {
		opts = append(opts, ai.WithConfig(gc))
	}

	if callback != nil {
		opts = append(opts, ai.WithStreaming(callback))
	}

	// Check the circuit breaker before attempting the request.
	if err := s.circuitBreaker.Allow(); err != nil {
		s.logger.Warn("circuit breaker is open, rejecting request",
			"state", s.circuitBreaker.State().String())
		return nil, fmt.Errorf("service unavailable: %w", err)
	}

	resp, err := s.executeWithRetry(ctx, opts)
	if err != nil {
		s.circuitBreaker.Failure()
		return nil, err
	}

	s.circuitBreaker.Success()
	return resp, nil
}

// generationConfig returns the configured overrides for the Dotprompt's
// generation settings, or nil when none are set.
func (s *Service) generationConfig() *ai.GenerationCommonConfig {
	if s.temperature <= 0 && s.maxTokens <= 0 {
		return nil
	}
	gc := &ai.GenerationCommonConfig{}
	if s.temperature > 0 {
		gc.Temperature = s.temperature
	}
	if s.maxTokens > 0 {
		gc.MaxOutputTokens = s.maxTokens
	}
	return gc
}

// messagesFromHistory renders stored turns as model messages.
func messagesFromHistory(history []*session.Message) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case session.RoleAssistant:
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		}
	}
	return msgs
}

// contextBlock renders the strongest hits into the numbered document
// list injected into the prompt. Only the top promptSourceCount results
// are included, each capped at promptSourceMaxRunes.
func contextBlock(results []knowledge.Result) string {
	if len(results) == 0 {
		return ""
	}

	n := min(len(results), promptSourceCount)
	entries := make([]string, 0, n)
	for i, r := range results[:n] {
		entries = append(entries, fmt.Sprintf("Document %d (%s): %s",
			i+1, r.Filename, truncateRunes(r.Chunk.Content, promptSourceMaxRunes)))
	}
	return strings.Join(entries, "\n\n")
}

// sourcesFromResults converts search hits into the previews reported
// back to the caller.
func sourcesFromResults(results []knowledge.Result) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			Content:    truncateRunes(r.Chunk.Content, sourcePreviewMaxRunes),
			Filename:   r.Filename,
			Similarity: r.Similarity,
		})
	}
	return sources
}

// truncateRunes caps s at max runes, appending an ellipsis when cut.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// deriveTitle builds a session title from the first query, truncating
// at a word boundary when one exists past the half-way point.
func deriveTitle(query string) string {
	title := strings.Join(strings.Fields(query), " ")
	runes := []rune(title)
	if len(runes) <= session.TitleMaxLength {
		return title
	}

	truncated := string(runes[:session.TitleMaxLength])
	if i := strings.LastIndex(truncated, " "); i > session.TitleMaxLength/2 {
		truncated = truncated[:i]
	}
	return truncated + "..."
}

// Title generation constants.
const (
	titleGenerationTimeout = 5 * time.Second
	titleInputMaxRunes     = 500
)

var titlePrompt = fmt.Sprintf(`Generate a concise title (max %d characters) for a chat session based on this first message.`, session.TitleMaxLength) + `
The title should capture the main topic or intent.
Return ONLY the title text, no quotes, no explanations, no punctuation at the end.

Message: %s

Title:`

// GenerateTitle generates a concise session title from the user's first
// message. Returns empty string on failure (best-effort); the caller
// keeps the title derived from the query instead.
func (s *Service) GenerateTitle(ctx context.Context, userMessage string) string {
	ctx, cancel := context.WithTimeout(ctx, titleGenerationTimeout)
	defer cancel()

	inputRunes := []rune(userMessage)
	if len(inputRunes) > titleInputMaxRunes {
		userMessage = string(inputRunes[:titleInputMaxRunes]) + "..."
	}

	opts := []ai.GenerateOption{
		ai.WithPrompt(titlePrompt, userMessage),
	}
	if s.modelName != "" {
		opts = append(opts, ai.WithModelName(s.modelName))
	}

	response, err := genkit.Generate(ctx, s.g, opts...)
	if err != nil {
		s.logger.Debug("title generation failed", "error", err)
		return ""
	}

	title := strings.TrimSpace(response.Text())
	if title == "" {
		return ""
	}

	titleRunes := []rune(title)
	if len(titleRunes) > session.TitleMaxLength {
		title = string(titleRunes[:session.TitleMaxLength-3]) + "..."
	}

	return title
}
