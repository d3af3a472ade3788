package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	hfembeddings "github.com/tmc/langchaingo/embeddings/huggingface"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	ProviderHuggingFace = "huggingface"
)

type EmbedderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string // Ollama server URL
}

// NewEmbedder builds the embedder for the configured provider. The model
// must produce vectors of the dimensionality the chunk table was created with.
func NewEmbedder(config EmbedderConfig) (embeddings.Embedder, error) {
	switch config.Provider {
	case ProviderHuggingFace, "":
		if config.Model == "" {
			config.Model = "sentence-transformers/all-MiniLM-L6-v2"
		}
		client, err := huggingface.New(
			huggingface.WithToken(config.APIKey),
			huggingface.WithModel(config.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		emb, err := hfembeddings.NewHuggingface(
			hfembeddings.WithClient(*client),
			hfembeddings.WithModel(config.Model),
			hfembeddings.WithTask("feature-extraction"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		return emb, nil

	case ProviderOllama:
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		client, err := ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		emb, err := embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		return emb, nil

	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", config.Provider)
	}
}
