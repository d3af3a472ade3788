package types

import (
	"context"
	"io"

	"github.com/xhad/docqa/internal/models"
)

// Core interfaces
type ChunkStore interface {
	Insert(ctx context.Context, chunks []models.Chunk) error
	ListMetadata(ctx context.Context) ([]models.ChunkMetadata, error)
	DocumentChunks(ctx context.Context, documentID string) ([]models.Chunk, error)
	FirstMetadata(ctx context.Context, documentID string) (*models.ChunkMetadata, error)
	DeleteDocument(ctx context.Context, documentID string) (int64, error)
	Match(ctx context.Context, embedding []float32, threshold float64, count int) ([]models.SearchMatch, error)
	Close()
}

type ObjectStore interface {
	Upload(ctx context.Context, path string, body io.Reader, size int64, contentType string) error
	Download(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, path string) error
	PublicURL(path string) string
}

type Extractor interface {
	Extract(fileName string, data []byte) (string, error)
}

type Scraper interface {
	Scrape(ctx context.Context, url string) ([]models.Page, error)
}

type Answerer interface {
	Answer(ctx context.Context, query string, matches []models.SearchMatch) (string, error)
	AnswerStream(ctx context.Context, query string, matches []models.SearchMatch, onToken func(string) error) (string, error)
}
