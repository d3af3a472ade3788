package models

// FileTypeWeb marks chunks that came from a scraped page rather than an upload.
const FileTypeWeb = "web"

// ChunkMetadata is the JSON object stored next to every chunk. A document's
// metadata is whatever its first chunk carries.
type ChunkMetadata struct {
	DocumentID  string `json:"document_id"`
	Source      string `json:"source,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileType    string `json:"file_type,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
	UploadDate  string `json:"upload_date,omitempty"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	FilePath    string `json:"file_path,omitempty"`
	FileURL     string `json:"file_url,omitempty"`
}

// Chunk is one row of the chunk table.
type Chunk struct {
	ID        int64
	Content   string
	Embedding []float32
	Metadata  ChunkMetadata
}

// SearchMatch is a chunk returned by similarity search.
type SearchMatch struct {
	ID         int64         `json:"id"`
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
	Similarity float64       `json:"similarity"`
}

// DocumentSummary is a document as shown in the listing.
type DocumentSummary struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type"`
	FileSize    int64  `json:"file_size"`
	UploadDate  string `json:"upload_date"`
	TotalChunks int    `json:"total_chunks"`
	FileURL     string `json:"file_url"`
	FilePath    string `json:"file_path"`
}

// SummaryFromMetadata builds the listing entry for a document.
func SummaryFromMetadata(m ChunkMetadata) DocumentSummary {
	return DocumentSummary{
		ID:          m.DocumentID,
		FileName:    m.FileName,
		FileType:    m.FileType,
		FileSize:    m.FileSize,
		UploadDate:  m.UploadDate,
		TotalChunks: m.TotalChunks,
		FileURL:     m.FileURL,
		FilePath:    m.FilePath,
	}
}

// DocumentDetail is a document with all of its chunks joined back together.
type DocumentDetail struct {
	DocumentSummary
	FullText string `json:"fullText"`
}

// DocumentFile is the original upload of a document.
type DocumentFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Page is the readable text extracted from one scraped URL.
type Page struct {
	URL        string
	Title      string
	Paragraphs []string
	Metadata   map[string]interface{}
}
