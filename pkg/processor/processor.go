package processor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

type ProcessorConfig struct {
	// ChunkSize and ChunkOverlap drive the recursive splitter used for uploads.
	ChunkSize    int
	ChunkOverlap int
	// WebChunkSize and WebChunkOverlap drive the fixed window chunker used for
	// scraped paragraphs.
	WebChunkSize    int
	WebChunkOverlap int
}

type Processor struct {
	config   ProcessorConfig
	splitter textsplitter.RecursiveCharacter
}

var citationMarker = regexp.MustCompile(`\[\d+\]`)

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 800
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 4
	}
	if config.WebChunkSize <= 0 {
		config.WebChunkSize = 800
	}
	if config.WebChunkOverlap < 0 {
		config.WebChunkOverlap = 0
	}
	if config.WebChunkOverlap >= config.WebChunkSize {
		config.WebChunkOverlap = config.WebChunkSize / 4
	}

	return Processor{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
		),
	}
}

func (p *Processor) Config() ProcessorConfig {
	return p.config
}

// CleanText strips citation markers like "[12]", collapses whitespace and trims.
func CleanText(text string) string {
	text = citationMarker.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// SplitDocument splits extracted file text on paragraph, line and word
// boundaries, keeping each chunk within ChunkSize.
func (p *Processor) SplitDocument(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	chunks, err := p.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	return chunks, nil
}

// ChunkParagraphs windows every paragraph independently and concatenates the
// results in paragraph order.
func (p *Processor) ChunkParagraphs(paragraphs []string) []string {
	var chunks []string
	for _, paragraph := range paragraphs {
		chunks = append(chunks, SplitFixed(paragraph, p.config.WebChunkSize, p.config.WebChunkOverlap)...)
	}
	return chunks
}

// SplitFixed cuts text into windows of size runes, each starting size-overlap
// runes after the previous one. The final window may be shorter.
func SplitFixed(text string, size, overlap int) []string {
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)

	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}
