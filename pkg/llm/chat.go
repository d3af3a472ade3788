package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/pkg/logger"
)

const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"

	DefaultSystemTemplate = "You are a helpful assistant. Answer ONLY using the provided context. " +
		"If the answer cannot be found in the context, say you do not know."
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string // Ollama server URL
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
}

// ChatEngine answers questions from retrieved chunks using an LLM.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	log    *logrus.Entry
}

func withDefaults(config ChatConfig) (ChatConfig, error) {
	if config.Temperature < 0 || config.Temperature > 2 {
		return config, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = DefaultSystemTemplate
	}
	return config, nil
}

// NewWithConfig creates a ChatEngine backed by the configured provider.
func NewWithConfig(ctx context.Context, config ChatConfig) (*ChatEngine, error) {
	config, err := withDefaults(config)
	if err != nil {
		return nil, err
	}

	var model llms.Model
	switch config.Provider {
	case ProviderGemini, "":
		config.Provider = ProviderGemini
		if config.Model == "" {
			config.Model = "gemini-2.5-flash"
		}
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(config.APIKey),
			googleai.WithDefaultModel(config.Model),
		)
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "mistral"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		model, err = ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(model, config)
}

// NewWithModel wraps an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if model == nil {
		return nil, fmt.Errorf("llm model is required")
	}
	config, err := withDefaults(config)
	if err != nil {
		return nil, err
	}

	return &ChatEngine{
		config: config,
		llm:    model,
		log:    logger.New("llm").WithField("model", config.Model),
	}, nil
}

// BuildContext numbers the retrieved chunks and separates them with rules.
func BuildContext(matches []models.SearchMatch) string {
	parts := make([]string, len(matches))
	for i, match := range matches {
		parts[i] = fmt.Sprintf("Chunk %d:\n%s", i+1, match.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func (ce *ChatEngine) messages(query string, matches []models.SearchMatch) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(schema.ChatMessageTypeHuman,
			fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", BuildContext(matches), query)),
	}
}

func (ce *ChatEngine) generate(ctx context.Context, query string, matches []models.SearchMatch, opts ...llms.CallOption) (string, error) {
	opts = append([]llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}, opts...)

	resp, err := ce.llm.GenerateContent(ctx, ce.messages(query, matches), opts...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat error: no response from LLM")
	}

	ce.log.WithFields(logrus.Fields{
		"chunks":      len(matches),
		"stop_reason": resp.Choices[0].StopReason,
	}).Debug("Generated answer")

	return resp.Choices[0].Content, nil
}

// Answer generates a complete answer to query grounded on matches.
func (ce *ChatEngine) Answer(ctx context.Context, query string, matches []models.SearchMatch) (string, error) {
	return ce.generate(ctx, query, matches)
}

// AnswerStream is Answer with every generated token passed to onToken as it
// arrives. Returning an error from onToken aborts generation.
func (ce *ChatEngine) AnswerStream(ctx context.Context, query string, matches []models.SearchMatch, onToken func(string) error) (string, error) {
	streamed := false
	answer, err := ce.generate(ctx, query, matches, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		streamed = true
		return onToken(string(chunk))
	}))
	if err != nil {
		return "", err
	}

	// Providers without streaming support return everything at once.
	if !streamed && answer != "" {
		if err := onToken(answer); err != nil {
			return "", err
		}
	}
	return answer, nil
}
