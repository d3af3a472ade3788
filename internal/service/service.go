// Package service implements document ingestion, listing and question
// answering on top of the storage, embedding and LLM ports.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/internal/types"
	"github.com/xhad/docqa/pkg/extractor"
	"github.com/xhad/docqa/pkg/logger"
	"github.com/xhad/docqa/pkg/processor"
	"github.com/xhad/docqa/pkg/scraper"
)

// NoMatchAnswer is returned without consulting the LLM when retrieval finds nothing.
const NoMatchAnswer = "I could not find relevant information in the uploaded documents."

const unsupportedMessage = "Unsupported file type. Upload PDF, DOCX, or TXT."

type Options struct {
	MatchThreshold float64
	MatchCount     int
	BatchSize      int
}

type Deps struct {
	Store     types.ChunkStore
	Objects   types.ObjectStore
	Extractor types.Extractor
	Scraper   types.Scraper
	Embedder  embeddings.Embedder
	Answerer  types.Answerer
	Processor processor.Processor
}

type Service struct {
	Deps
	opts  Options
	now   func() time.Time
	newID func() string
	log   *logrus.Entry
}

func New(deps Deps, opts Options) *Service {
	if opts.MatchCount <= 0 {
		opts.MatchCount = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Service{
		Deps:  deps,
		opts:  opts,
		now:   time.Now,
		newID: uuid.NewString,
		log:   logger.New("service"),
	}
}

type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

type IngestResult struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	Chunks     int    `json:"chunks"`
	TextLength int    `json:"textLength"`
	FileURL    string `json:"fileUrl"`
}

type ScrapeResult struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"chunks"`
}

type SearchResult struct {
	Answer  string               `json:"answer"`
	Sources []models.SearchMatch `json:"sources"`
}

type DeleteResult struct {
	Success     bool `json:"success"`
	FileDeleted bool `json:"fileDeleted"`
}

// fileExtension is the part after the last dot, or "bin" when there is none.
func fileExtension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return "bin"
	}
	return name[i+1:]
}

// embedAll embeds texts in batches and checks the provider returned one
// vector per text.
func (s *Service) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.Embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("failed to create embeddings: got %d vectors for %d chunks", len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// IngestFile extracts, stores, chunks and embeds one uploaded file.
func (s *Service) IngestFile(ctx context.Context, file Upload) (*IngestResult, error) {
	if file.Name == "" || len(file.Data) == 0 {
		return nil, invalid("No file provided")
	}

	text, err := s.Extractor.Extract(file.Name, file.Data)
	if errors.Is(err, ErrUnsupportedType) {
		return nil, &RequestError{Kind: ErrUnsupportedType, Message: unsupportedMessage}
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, noText("No text could be extracted from file")
	}

	documentID := s.newID()
	uploadDate := s.now().UTC().Format(time.RFC3339)
	filePath := documentID + "." + fileExtension(file.Name)
	contentType := file.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = extractor.DetectContentType(file.Data)
	}

	log := s.log.WithFields(logrus.Fields{"document_id": documentID, "file_name": file.Name})

	if err := s.Objects.Upload(ctx, filePath, bytes.NewReader(file.Data), int64(len(file.Data)), contentType); err != nil {
		return nil, err
	}
	fileURL := s.Objects.PublicURL(filePath)

	// The stored object is removed again if anything after the upload fails.
	cleanup := func(cause error) error {
		if err := s.Objects.Remove(ctx, filePath); err != nil {
			log.WithError(err).Warn("Failed to remove orphaned file")
		}
		return cause
	}

	texts, err := s.Processor.SplitDocument(text)
	if err != nil {
		return nil, cleanup(err)
	}

	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return nil, cleanup(err)
	}

	chunks := make([]models.Chunk, len(texts))
	for i, content := range texts {
		chunks[i] = models.Chunk{
			Content:   content,
			Embedding: vectors[i],
			Metadata: models.ChunkMetadata{
				DocumentID:  documentID,
				FileName:    file.Name,
				FileType:    contentType,
				FileSize:    int64(len(file.Data)),
				UploadDate:  uploadDate,
				ChunkIndex:  i,
				TotalChunks: len(texts),
				FilePath:    filePath,
				FileURL:     fileURL,
			},
		}
	}

	if err := s.Store.Insert(ctx, chunks); err != nil {
		return nil, cleanup(err)
	}

	log.WithField("chunks", len(chunks)).Info("Ingested file")

	return &IngestResult{
		Success:    true,
		DocumentID: documentID,
		FileName:   file.Name,
		Chunks:     len(chunks),
		TextLength: utf8.RuneCountInString(text),
		FileURL:    fileURL,
	}, nil
}

// ScrapeURL ingests the readable paragraphs of a web page as one document.
func (s *Service) ScrapeURL(ctx context.Context, rawURL string) (*ScrapeResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, invalid("URL required")
	}
	if _, err := scraper.ValidateURL(rawURL); err != nil {
		return nil, invalid("Invalid URL")
	}

	pages, err := s.Scraper.Scrape(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var paragraphs []string
	for _, page := range pages {
		paragraphs = append(paragraphs, page.Paragraphs...)
	}
	if len(paragraphs) == 0 {
		return nil, noText("No readable text extracted")
	}

	texts := s.Processor.ChunkParagraphs(paragraphs)
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	documentID := s.newID()
	now := s.now().UTC().Format(time.RFC3339)

	chunks := make([]models.Chunk, len(texts))
	for i, content := range texts {
		chunks[i] = models.Chunk{
			Content:   content,
			Embedding: vectors[i],
			Metadata: models.ChunkMetadata{
				DocumentID:  documentID,
				Source:      rawURL,
				FileName:    rawURL,
				FileType:    models.FileTypeWeb,
				UploadDate:  now,
				ChunkIndex:  i,
				TotalChunks: len(texts),
			},
		}
	}

	if err := s.Store.Insert(ctx, chunks); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"document_id": documentID,
		"url":         rawURL,
		"pages":       len(pages),
		"chunks":      len(chunks),
	}).Info("Ingested web page")

	return &ScrapeResult{Success: true, DocumentID: documentID, Chunks: len(chunks)}, nil
}

func (s *Service) retrieve(ctx context.Context, query string) ([]models.SearchMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, invalid("Query is required")
	}

	vector, err := s.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.Store.Match(ctx, vector, s.opts.MatchThreshold, s.opts.MatchCount)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []models.SearchMatch{}
	}
	return matches, nil
}

// Search answers query from the most similar stored chunks.
func (s *Service) Search(ctx context.Context, query string) (*SearchResult, error) {
	matches, err := s.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &SearchResult{Answer: NoMatchAnswer, Sources: matches}, nil
	}

	answer, err := s.Answerer.Answer(ctx, query, matches)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Answer: answer, Sources: matches}, nil
}

// SearchStream is Search delivered incrementally: onSources is called once
// with the retrieved chunks, then onToken for each piece of the answer.
func (s *Service) SearchStream(ctx context.Context, query string, onSources func([]models.SearchMatch) error, onToken func(string) error) (*SearchResult, error) {
	matches, err := s.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := onSources(matches); err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		if err := onToken(NoMatchAnswer); err != nil {
			return nil, err
		}
		return &SearchResult{Answer: NoMatchAnswer, Sources: matches}, nil
	}

	answer, err := s.Answerer.AnswerStream(ctx, query, matches, onToken)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Answer: answer, Sources: matches}, nil
}

// ListDocuments returns one entry per document id in first-seen order.
func (s *Service) ListDocuments(ctx context.Context) ([]models.DocumentSummary, error) {
	metas, err := s.Store.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	documents := []models.DocumentSummary{}
	for _, m := range metas {
		if m.DocumentID == "" || seen[m.DocumentID] {
			continue
		}
		seen[m.DocumentID] = true
		documents = append(documents, models.SummaryFromMetadata(m))
	}
	return documents, nil
}

// GetDocument reassembles a document's text from its chunks.
func (s *Service) GetDocument(ctx context.Context, id string) (*models.DocumentDetail, error) {
	if id == "" {
		return nil, invalid("Document ID is required")
	}

	chunks, err := s.Store.DocumentChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, notFound("Document not found")
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	summary := models.SummaryFromMetadata(chunks[0].Metadata)
	summary.ID = id
	summary.TotalChunks = len(chunks)

	return &models.DocumentDetail{
		DocumentSummary: summary,
		FullText:        strings.Join(contents, "\n\n"),
	}, nil
}

// DownloadFile fetches the original upload of a document.
func (s *Service) DownloadFile(ctx context.Context, id string) (*models.DocumentFile, error) {
	if id == "" {
		return nil, invalid("Document ID is required")
	}

	meta, err := s.Store.FirstMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, notFound("Document not found")
	}
	if meta.FilePath == "" {
		return nil, notFound("File not found in storage")
	}

	data, err := s.Objects.Download(ctx, meta.FilePath)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("File not found in storage")
	}
	if err != nil {
		return nil, err
	}

	file := &models.DocumentFile{
		Name:        meta.FileName,
		ContentType: meta.FileType,
		Data:        data,
	}
	if file.Name == "" {
		file.Name = "document"
	}
	if file.ContentType == "" {
		file.ContentType = "application/octet-stream"
	}
	return file, nil
}

// DeleteDocument removes a document's stored file, if any, and its chunks.
// Storage failures are logged and do not stop the chunk deletion.
func (s *Service) DeleteDocument(ctx context.Context, id string) (*DeleteResult, error) {
	if id == "" {
		return nil, invalid("Document ID is required")
	}

	meta, err := s.Store.FirstMetadata(ctx, id)
	if err != nil {
		return nil, err
	}

	fileDeleted := false
	if meta != nil && meta.FilePath != "" {
		fileDeleted = true
		if err := s.Objects.Remove(ctx, meta.FilePath); err != nil {
			s.log.WithError(err).WithField("document_id", id).Warn("Failed to remove stored file")
		}
	}

	removed, err := s.Store.DeleteDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"document_id": id, "chunks": removed}).Info("Deleted document")
	return &DeleteResult{Success: true, FileDeleted: fileDeleted}, nil
}
