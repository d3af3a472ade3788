package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xhad/docqa/internal/service"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUnsupportedType),
		errors.Is(err, service.ErrNoText):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleGetDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Query("id")

	if id != "" && c.Query("file") == "true" {
		file, err := s.svc.DownloadFile(ctx, id)
		if err != nil {
			s.fail(c, err)
			return
		}

		disposition := "attachment"
		if c.Query("view") == "true" {
			disposition = "inline"
		}
		c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, file.Name))
		c.Header("Content-Length", strconv.Itoa(len(file.Data)))
		c.Data(http.StatusOK, file.ContentType, file.Data)
		return
	}

	if id != "" {
		doc, err := s.svc.GetDocument(ctx, id)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
		return
	}

	docs, err := s.svc.ListDocuments(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	res, err := s.svc.DeleteDocument(c.Request.Context(), c.Query("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleUpload(c *gin.Context) {
	if c.Request.ContentLength > s.config.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}

	f, err := header.Open()
	if err != nil {
		s.fail(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	res, err := s.svc.IngestFile(c.Request.Context(), service.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type scrapeRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleScrape(c *gin.Context) {
	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	res, err := s.svc.ScrapeURL(c.Request.Context(), req.URL)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
		return
	}

	res, err := s.svc.Search(c.Request.Context(), req.Query)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
