// Package extractor turns uploaded PDF, DOCX and plain-text files into text.
package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/xhad/docqa/internal/models"
)

const (
	KindPDF  = "pdf"
	KindDOCX = "docx"
	KindTXT  = "txt"

	docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Extractor dispatches on file kind. It holds no state and is safe for
// concurrent use.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Kind resolves the file kind from the name's extension, falling back to
// content sniffing when the name has no recognised extension.
func Kind(fileName string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDOCX, nil
	case ".txt":
		return KindTXT, nil
	case "":
		mtype := mimetype.Detect(data)
		switch {
		case mtype.Is("application/pdf"):
			return KindPDF, nil
		case mtype.Is(docxMIME):
			return KindDOCX, nil
		case mtype.Is("text/plain"):
			return KindTXT, nil
		}
	}
	return "", fmt.Errorf("%w: %s", models.ErrUnsupportedType, fileName)
}

// DetectContentType sniffs the MIME type of data.
func DetectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

func (e *Extractor) Extract(fileName string, data []byte) (string, error) {
	kind, err := Kind(fileName, data)
	if err != nil {
		return "", err
	}

	switch kind {
	case KindPDF:
		return extractPDF(data)
	case KindDOCX:
		return extractDOCX(data)
	default:
		return strings.ToValidUTF8(string(data), ""), nil
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("PDF parsing error: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("text extraction error: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("text extraction error: %w", err)
	}

	return strings.TrimSpace(strings.ToValidUTF8(buf.String(), "")), nil
}

func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("DOCX parsing error: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("DOCX parsing error: %w", err)
		}
		defer rc.Close()

		return parseDocumentXML(rc)
	}

	return "", fmt.Errorf("DOCX parsing error: word/document.xml not found")
}

// parseDocumentXML walks WordprocessingML and emits run text, with a newline
// per paragraph and tabs/breaks preserved.
func parseDocumentXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var result strings.Builder
	inText := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("DOCX parsing error: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				result.WriteString("\t")
			case "br", "cr":
				result.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				result.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				result.Write(t)
			}
		}
	}

	return strings.TrimSpace(result.String()), nil
}
