package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	uploaded service.Upload
	scraped  string
	queries  []string
	matches  []models.SearchMatch
	answer   string
	docs     []models.DocumentSummary
	detail   *models.DocumentDetail
	file     *models.DocumentFile
	err      error
}

func (f *fakeService) IngestFile(_ context.Context, file service.Upload) (*service.IngestResult, error) {
	f.uploaded = file
	if f.err != nil {
		return nil, f.err
	}
	return &service.IngestResult{Success: true, DocumentID: "doc-1", FileName: file.Name, Chunks: 2, TextLength: len(file.Data), FileURL: "http://objects/doc-1.txt"}, nil
}

func (f *fakeService) ScrapeURL(_ context.Context, url string) (*service.ScrapeResult, error) {
	f.scraped = url
	if f.err != nil {
		return nil, f.err
	}
	return &service.ScrapeResult{Success: true, DocumentID: "doc-2", Chunks: 3}, nil
}

func (f *fakeService) Search(_ context.Context, query string) (*service.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return &service.SearchResult{Answer: f.answer, Sources: f.matches}, nil
}

func (f *fakeService) SearchStream(_ context.Context, query string, onSources func([]models.SearchMatch) error, onToken func(string) error) (*service.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if err := onSources(f.matches); err != nil {
		return nil, err
	}
	for _, tok := range strings.SplitAfter(f.answer, " ") {
		if err := onToken(tok); err != nil {
			return nil, err
		}
	}
	return &service.SearchResult{Answer: f.answer, Sources: f.matches}, nil
}

func (f *fakeService) ListDocuments(context.Context) ([]models.DocumentSummary, error) {
	return f.docs, f.err
}

func (f *fakeService) GetDocument(_ context.Context, id string) (*models.DocumentDetail, error) {
	if f.detail == nil || f.detail.ID != id {
		return nil, &service.RequestError{Kind: service.ErrNotFound, Message: "Document not found"}
	}
	return f.detail, nil
}

func (f *fakeService) DownloadFile(_ context.Context, id string) (*models.DocumentFile, error) {
	if f.file == nil {
		return nil, &service.RequestError{Kind: service.ErrNotFound, Message: "File not found in storage"}
	}
	return f.file, nil
}

func (f *fakeService) DeleteDocument(_ context.Context, id string) (*service.DeleteResult, error) {
	if id == "" {
		return nil, &service.RequestError{Kind: service.ErrInvalidInput, Message: "Document ID is required"}
	}
	return &service.DeleteResult{Success: true, FileDeleted: true}, nil
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := New(&fakeService{}, Config{})
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&service.RequestError{Kind: service.ErrInvalidInput, Message: "x"}, http.StatusBadRequest},
		{&service.RequestError{Kind: service.ErrUnsupportedType, Message: "x"}, http.StatusBadRequest},
		{&service.RequestError{Kind: service.ErrNoText, Message: "x"}, http.StatusBadRequest},
		{&service.RequestError{Kind: service.ErrNotFound, Message: "x"}, http.StatusNotFound},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestListDocuments(t *testing.T) {
	svc := &fakeService{docs: []models.DocumentSummary{{ID: "doc-1", FileName: "a.pdf", TotalChunks: 3}}}
	s := New(svc, Config{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Documents []models.DocumentSummary `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, svc.docs, body.Documents)

	svc.err = errors.New("db down")
	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "db down", decode(t, rec)["error"])
}

func TestGetDocument(t *testing.T) {
	svc := &fakeService{detail: &models.DocumentDetail{
		DocumentSummary: models.DocumentSummary{ID: "doc-1", FileName: "a.txt", TotalChunks: 2},
		FullText:        "one\n\ntwo",
	}}
	s := New(svc, Config{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents?id=doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "doc-1", body["id"])
	assert.Equal(t, "one\n\ntwo", body["fullText"])
	assert.Equal(t, float64(2), body["total_chunks"])

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents?id=missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Document not found", decode(t, rec)["error"])
}

func TestDownloadFile(t *testing.T) {
	svc := &fakeService{file: &models.DocumentFile{Name: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}}
	s := New(svc, Config{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents?id=doc-1&file=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="report.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "8", rec.Header().Get("Content-Length"))
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents?id=doc-1&file=true&view=true", nil))
	assert.Equal(t, `inline; filename="report.pdf"`, rec.Header().Get("Content-Disposition"))

	svc.file = nil
	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents?id=doc-1&file=true", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found in storage", decode(t, rec)["error"])
}

func TestDeleteDocument(t *testing.T) {
	s := New(&fakeService{}, Config{})

	rec := do(t, s, httptest.NewRequest(http.MethodDelete, "/api/documents?id=doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"success": true, "fileDeleted": true}, decode(t, rec))

	rec = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/documents", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Document ID is required", decode(t, rec)["error"])
}

func multipartUpload(t *testing.T, field, name, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + name + `"`}
		h["Content-Type"] = []string{contentType}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, w.WriteField("other", "value"))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, Config{})

	rec := do(t, s, multipartUpload(t, "file", "notes.txt", "text/plain", []byte("hello world")))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "doc-1", body["documentId"])
	assert.Equal(t, "notes.txt", body["fileName"])
	assert.Equal(t, float64(11), body["textLength"])
	assert.Equal(t, "http://objects/doc-1.txt", body["fileUrl"])

	assert.Equal(t, "notes.txt", svc.uploaded.Name)
	assert.Equal(t, "text/plain", svc.uploaded.ContentType)
	assert.Equal(t, []byte("hello world"), svc.uploaded.Data)
}

func TestUploadErrors(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		s := New(&fakeService{}, Config{})
		rec := do(t, s, multipartUpload(t, "", "", "", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No file provided", decode(t, rec)["error"])
	})

	t.Run("unsupported type", func(t *testing.T) {
		svc := &fakeService{err: &service.RequestError{Kind: service.ErrUnsupportedType, Message: "Unsupported file type. Upload PDF, DOCX, or TXT."}}
		s := New(svc, Config{})
		rec := do(t, s, multipartUpload(t, "file", "deck.pptx", "application/octet-stream", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Unsupported file type. Upload PDF, DOCX, or TXT.", decode(t, rec)["error"])
	})

	t.Run("too large", func(t *testing.T) {
		s := New(&fakeService{}, Config{MaxUploadBytes: 64})
		rec := do(t, s, multipartUpload(t, "file", "big.txt", "text/plain", bytes.Repeat([]byte("a"), 1024)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestScrape(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(`{"url":"https://en.wikipedia.org/wiki/Go"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := do(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"success": true, "documentId": "doc-2", "chunks": float64(3)}, decode(t, rec))
	assert.Equal(t, "https://en.wikipedia.org/wiki/Go", svc.scraped)

	svc.err = &service.RequestError{Kind: service.ErrInvalidInput, Message: "URL required"}
	req = httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(`{}`))
	rec = do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "URL required", decode(t, rec)["error"])
}

func TestSearch(t *testing.T) {
	svc := &fakeService{
		answer:  "Go was designed at Google.",
		matches: []models.SearchMatch{{ID: 4, Content: "Go was designed at Google.", Similarity: 0.83}},
	}
	s := New(svc, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"who designed go?"}`))
	rec := do(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body service.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Go was designed at Google.", body.Answer)
	assert.Equal(t, svc.matches, body.Sources)

	rec = do(t, s, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Query is required", decode(t, rec)["error"])
}

func TestRateLimit(t *testing.T) {
	s := New(&fakeService{}, Config{RateLimit: 0.001, RateBurst: 1})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Health checks are not limited.
	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntilTerminal(t *testing.T, conn *websocket.Conn) []Message {
	t.Helper()
	var msgs []Message
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		msgs = append(msgs, msg)
		if msg.Type == MessageDone || msg.Type == MessageError {
			return msgs
		}
	}
}

func TestWebSocketStreaming(t *testing.T) {
	svc := &fakeService{
		answer:  "Go is from Google",
		matches: []models.SearchMatch{{ID: 1, Content: "Go was designed at Google."}},
	}
	conn := dialWS(t, New(svc, Config{Streaming: true}))

	require.NoError(t, conn.WriteJSON(Message{Type: MessageQuery, Content: "who made go?"}))
	msgs := readUntilTerminal(t, conn)

	require.Len(t, msgs, 6)
	assert.Equal(t, MessageSources, msgs[0].Type)
	assert.NotNil(t, msgs[0].Data)
	var answer strings.Builder
	for _, m := range msgs[1:5] {
		assert.Equal(t, MessageStream, m.Type)
		answer.WriteString(m.Content)
	}
	assert.Equal(t, "Go is from Google", answer.String())
	assert.Equal(t, MessageDone, msgs[5].Type)

	// The connection stays open for further queries.
	require.NoError(t, conn.WriteJSON(Message{Type: MessageQuery, Content: "again"}))
	msgs = readUntilTerminal(t, conn)
	assert.Equal(t, MessageDone, msgs[len(msgs)-1].Type)
	assert.Equal(t, []string{"who made go?", "again"}, svc.queries)
}

func TestWebSocketNonStreaming(t *testing.T) {
	svc := &fakeService{answer: "An answer."}
	conn := dialWS(t, New(svc, Config{Streaming: false}))

	require.NoError(t, conn.WriteJSON(Message{Type: MessageQuery, Content: "q"}))
	msgs := readUntilTerminal(t, conn)

	require.Len(t, msgs, 3)
	assert.Equal(t, MessageSources, msgs[0].Type)
	assert.Equal(t, Message{Type: MessageResponse, Content: "An answer."}, msgs[1])
	assert.Equal(t, MessageDone, msgs[2].Type)
}

func TestWebSocketErrors(t *testing.T) {
	svc := &fakeService{err: &service.RequestError{Kind: service.ErrInvalidInput, Message: "Query is required"}}
	conn := dialWS(t, New(svc, Config{Streaming: true}))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	msgs := readUntilTerminal(t, conn)
	assert.Equal(t, Message{Type: MessageError, Content: "Invalid message"}, msgs[0])

	require.NoError(t, conn.WriteJSON(Message{Type: "subscribe"}))
	msgs = readUntilTerminal(t, conn)
	assert.Equal(t, "Unsupported message type: subscribe", msgs[0].Content)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageQuery, Content: " "}))
	msgs = readUntilTerminal(t, conn)
	assert.Equal(t, Message{Type: MessageError, Content: "Query is required"}, msgs[0])
}
