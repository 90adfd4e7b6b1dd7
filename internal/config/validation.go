package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider validation
	validProviders := []string{"", ProviderGemini, ProviderGoogleAI, ProviderOllama, ProviderOpenAI}
	if !slices.Contains(validProviders, c.Provider) {
		return fmt.Errorf("%w: %q is not supported, must be one of: gemini, ollama, openai",
			ErrInvalidProvider, c.Provider)
	}

	// 2. API key validation (provider-dependent; keys are read directly by
	// the Genkit plugins, we only check presence here for fail-fast startup)
	switch c.Provider {
	case "", ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required",
				ErrMissingAPIKey)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty when provider is ollama",
				ErrInvalidOllamaHost)
		}
	}

	// 3. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// MaxTokens range: 1 to 2097152 (Gemini 2.5 max context window)
	// Reference: https://ai.google.dev/gemini-api/docs/models
	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// 4. Retrieval configuration validation
	if c.TopK <= 0 || c.TopK > MaxTopK {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidTopK, MaxTopK, c.TopK)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 5. Ingestion configuration validation
	if c.Ingest.ChunkSize < 50 || c.Ingest.ChunkSize > 8192 {
		return fmt.Errorf("%w: chunk_size must be between 50 and 8192, got %d",
			ErrInvalidChunking, c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be between 0 and chunk_size-1, got %d",
			ErrInvalidChunking, c.Ingest.ChunkOverlap)
	}
	if c.Ingest.MaxFileSize < 1 || c.Ingest.MaxFileSize > 100<<20 {
		return fmt.Errorf("%w: max_file_size must be between 1 byte and 100 MiB, got %d",
			ErrInvalidUploadLimit, c.Ingest.MaxFileSize)
	}
	if c.Ingest.MaxChunks < 1 || c.Ingest.MaxChunks > 10000 {
		return fmt.Errorf("%w: max_chunks must be between 1 and 10,000, got %d",
			ErrInvalidUploadLimit, c.Ingest.MaxChunks)
	}

	// 6. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	// Warn on the default dev password but don't block, user might be in dev.
	if c.PostgresPassword == "recall_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// 7. PostgreSQL SSL mode validation
	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	// Reference: https://www.postgresql.org/docs/current/libpq-ssl.html
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}

	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v\n"+
			"Note: 'allow' and 'prefer' modes are deprecated (vulnerable to MITM attacks)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

// ValidateServe runs Validate plus serve-mode checks.
// Called before starting the HTTP server.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	// CORS origins must be "*" or absolute http(s) origins.
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q must be \"*\" or an absolute http(s) origin",
				ErrInvalidCORSOrigin, origin)
		}
		if u.Path != "" && u.Path != "/" {
			return fmt.Errorf("%w: %q must not include a path", ErrInvalidCORSOrigin, origin)
		}
	}

	return nil
}

// NormalizeTopK clamps a user-supplied retrieval depth to [1, MaxTopK],
// falling back to the configured default when the value is unset.
func (c *Config) NormalizeTopK(k int) int {
	if k <= 0 {
		return c.TopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

// NormalizeMaxHistoryMessages normalizes the max history messages value.
func NormalizeMaxHistoryMessages(limit int32) int32 {
	if limit <= 0 {
		return DefaultMaxHistoryMessages
	}
	if limit < MinHistoryMessages {
		return MinHistoryMessages
	}
	if limit > MaxAllowedHistoryMessages {
		return MaxAllowedHistoryMessages
	}
	return limit
}
