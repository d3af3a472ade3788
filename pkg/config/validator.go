package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	switch c.LLM.Provider {
	case "gemini":
		if c.LLM.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.api_key",
				Message: "Gemini API key is required",
			})
		}
	case "ollama":
		if c.LLM.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "Ollama base URL is required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.LLM.Provider),
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate Embedder config
	switch c.Embedder.Provider {
	case "huggingface":
		if c.Embedder.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "embedder.api_key",
				Message: "Hugging Face API token is required",
			})
		}
	case "ollama":
		if c.Embedder.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "embedder.base_url",
				Message: "Ollama base URL is required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.Embedder.Provider),
		})
	}

	// Validate Database config
	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "database URL is required",
		})
	} else if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Database.MatchThreshold < -1 || c.Database.MatchThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "database.match_threshold",
			Message: "match_threshold must be between -1 and 1",
		})
	}

	if c.Database.MatchCount < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.match_count",
			Message: "match_count must be positive",
		})
	}

	// Validate Storage config
	if c.Storage.Endpoint == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.endpoint",
			Message: "storage endpoint is required",
		})
	} else if strings.Contains(c.Storage.Endpoint, "://") {
		errors = append(errors, ValidationError{
			Field:   "storage.endpoint",
			Message: "storage endpoint must be host[:port] without a scheme",
		})
	}

	// Validate Scraper config
	if c.Scraper.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must not be negative",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate extensions format
	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Validate Processor config
	errors = append(errors, validateChunking("processor.chunk", c.Processor.ChunkSize, c.Processor.ChunkOverlap)...)
	errors = append(errors, validateChunking("processor.web_chunk", c.Processor.WebChunkSize, c.Processor.WebChunkOverlap)...)

	if c.Cache.RedisURL != "" {
		if u, err := url.Parse(c.Cache.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, ValidationError{
				Field:   "cache.redis_url",
				Message: "invalid Redis URL",
			})
		}
	}

	return errors
}

func validateChunking(prefix string, size, overlap int) []ValidationError {
	var errors []ValidationError
	if size < 1 {
		errors = append(errors, ValidationError{
			Field:   prefix + "_size",
			Message: "chunk size must be positive",
		})
	}
	if overlap < 0 || overlap >= size {
		errors = append(errors, ValidationError{
			Field:   prefix + "_overlap",
			Message: "chunk overlap must be non-negative and less than chunk size",
		})
	}
	return errors
}
