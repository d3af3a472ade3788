// Package app builds the service and its backing clients from configuration.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/xhad/docqa/internal/service"
	"github.com/xhad/docqa/pkg/cache"
	"github.com/xhad/docqa/pkg/config"
	"github.com/xhad/docqa/pkg/extractor"
	"github.com/xhad/docqa/pkg/llm"
	"github.com/xhad/docqa/pkg/logger"
	"github.com/xhad/docqa/pkg/processor"
	"github.com/xhad/docqa/pkg/scraper"
	"github.com/xhad/docqa/pkg/storage"
	"github.com/xhad/docqa/pkg/store"
)

type App struct {
	Config  *config.Config
	Service *service.Service

	store *store.VectorStore
	cache *cache.CachedEmbedder
	log   *logrus.Entry
}

// Validate turns configuration problems into a single error.
func Validate(cfg *config.Config) error {
	errs := cfg.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// New connects to every backing service. Failures close whatever was
// already opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, log: logger.New("app")}

	vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
		BatchSize:  cfg.Database.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	a.store = vs

	objects, err := storage.New(ctx, storage.Config{
		Endpoint:      cfg.Storage.Endpoint,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		Bucket:        cfg.Storage.Bucket,
		Secure:        cfg.Storage.Secure,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	var embedder embeddings.Embedder
	embedder, err = llm.NewEmbedder(llm.EmbedderConfig{
		Provider: cfg.Embedder.Provider,
		Model:    cfg.Embedder.Model,
		APIKey:   cfg.Embedder.APIKey,
		BaseURL:  cfg.Embedder.BaseURL,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Cache.RedisURL != "" {
		kv, err := cache.NewRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			// The cache only saves embedding calls; run without it.
			a.log.WithError(err).Warn("Query embedding cache disabled")
		} else {
			a.cache = cache.NewCachedEmbedder(embedder, kv, cfg.Embedder.Model,
				time.Duration(cfg.Cache.TTLSecs)*time.Second)
			embedder = a.cache
		}
	}

	chat, err := llm.NewWithConfig(ctx, llm.ChatConfig{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		SystemTemplate: cfg.LLM.SystemTemplate,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Service = service.New(service.Deps{
		Store:     vs,
		Objects:   objects,
		Extractor: extractor.New(),
		Scraper: scraper.NewWithConfig(scraper.ScraperConfig{
			MaxDepth:           cfg.Scraper.MaxDepth,
			RateLimit:          cfg.Scraper.RateLimit,
			IgnorePatterns:     cfg.Scraper.IgnorePatterns,
			AllowedExtensions:  cfg.Scraper.AllowedExtensions,
			Timeout:            time.Duration(cfg.Scraper.TimeoutSecs) * time.Second,
			UserAgent:          cfg.Scraper.UserAgent,
			MinParagraphLength: cfg.Scraper.MinParagraphLength,
		}),
		Embedder: embedder,
		Answerer: chat,
		Processor: processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:       cfg.Processor.ChunkSize,
			ChunkOverlap:    cfg.Processor.ChunkOverlap,
			WebChunkSize:    cfg.Processor.WebChunkSize,
			WebChunkOverlap: cfg.Processor.WebChunkOverlap,
		}),
	}, service.Options{
		MatchThreshold: cfg.Database.MatchThreshold,
		MatchCount:     cfg.Database.MatchCount,
		BatchSize:      cfg.Database.BatchSize,
	})

	a.log.WithFields(logrus.Fields{
		"llm":      cfg.LLM.Provider + "/" + cfg.LLM.Model,
		"embedder": cfg.Embedder.Provider + "/" + cfg.Embedder.Model,
		"cache":    a.cache != nil,
	}).Info("Application initialised")

	return a, nil
}

func (a *App) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close cache")
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}
