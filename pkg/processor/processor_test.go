package processor_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/docqa/pkg/processor"
)

func TestSplitFixed(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{"empty", "", 4, 1, nil},
		{"shorter than window", "abc", 4, 1, []string{"abc"}},
		{"exact windows", "abcdefgh", 4, 0, []string{"abcd", "efgh"}},
		{"overlap", "abcdefghij", 4, 2, []string{"abcd", "cdef", "efgh", "ghij", "ij"}},
		{"overlap not smaller than size", "abcdef", 3, 3, []string{"abc", "def"}},
		{"multibyte runes stay intact", "héllo wörld", 5, 1, []string{"héllo", "o wör", "rld"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := processor.SplitFixed(tt.text, tt.size, tt.overlap)
			assert.Equal(t, tt.want, got)
			for _, chunk := range got {
				assert.True(t, utf8.ValidString(chunk))
			}
		})
	}
}

func TestSplitFixedCoversText(t *testing.T) {
	text := strings.Repeat("0123456789", 250)
	chunks := processor.SplitFixed(text, 800, 150)

	require.Len(t, chunks, 4)
	assert.Equal(t, text[:800], chunks[0])
	assert.Equal(t, text[650:1450], chunks[1])
	assert.Equal(t, text[1950:], chunks[3])
}

func TestCleanText(t *testing.T) {
	got := processor.CleanText("  Go[1] is a   language\n\tdesigned at Google.[23] ")
	assert.Equal(t, "Go is a language designed at Google.", got)
}

func TestChunkParagraphs(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		WebChunkSize:    10,
		WebChunkOverlap: 2,
	})

	chunks := p.ChunkParagraphs([]string{"abcdefghijkl", "short"})
	assert.Equal(t, []string{"abcdefghij", "ijkl", "short"}, chunks)
}

func TestNewWithConfigClampsOverlap(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:       100,
		ChunkOverlap:    150,
		WebChunkSize:    40,
		WebChunkOverlap: 40,
	})

	cfg := p.Config()
	assert.Equal(t, 25, cfg.ChunkOverlap)
	assert.Equal(t, 10, cfg.WebChunkOverlap)
}

func TestSplitDocument(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    60,
		ChunkOverlap: 10,
	})

	t.Run("blank text", func(t *testing.T) {
		chunks, err := p.SplitDocument("  \n ")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("short text is one chunk", func(t *testing.T) {
		chunks, err := p.SplitDocument("A single short paragraph.")
		require.NoError(t, err)
		assert.Equal(t, []string{"A single short paragraph."}, chunks)
	})

	t.Run("long text respects chunk size", func(t *testing.T) {
		text := strings.Repeat("Retrieval augmented generation grounds answers in documents. ", 5) +
			"\n\n" + strings.Repeat("Chunks are embedded and stored in a vector table. ", 5)

		chunks, err := p.SplitDocument(text)
		require.NoError(t, err)
		assert.Greater(t, len(chunks), 1)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 60)
			assert.NotEmpty(t, strings.TrimSpace(chunk))
		}
	})
}
