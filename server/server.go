// Package server exposes the document service over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/internal/service"
	"github.com/xhad/docqa/pkg/logger"
)

// Service is the subset of *service.Service the handlers call.
type Service interface {
	IngestFile(ctx context.Context, file service.Upload) (*service.IngestResult, error)
	ScrapeURL(ctx context.Context, url string) (*service.ScrapeResult, error)
	Search(ctx context.Context, query string) (*service.SearchResult, error)
	SearchStream(ctx context.Context, query string, onSources func([]models.SearchMatch) error, onToken func(string) error) (*service.SearchResult, error)
	ListDocuments(ctx context.Context) ([]models.DocumentSummary, error)
	GetDocument(ctx context.Context, id string) (*models.DocumentDetail, error)
	DownloadFile(ctx context.Context, id string) (*models.DocumentFile, error)
	DeleteDocument(ctx context.Context, id string) (*service.DeleteResult, error)
}

type Config struct {
	RateLimit      float64 // requests per second across all clients
	RateBurst      int
	MaxUploadBytes int64
	Streaming      bool
}

type Server struct {
	config   Config
	svc      Service
	upgrader websocket.Upgrader
	router   *gin.Engine
	log      *logrus.Entry
}

func New(svc Service, config Config) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 32 << 20
	}

	s := &Server{
		config: config,
		svc:    svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.New("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.log))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := router.Group("/api")
	if s.config.RateLimit > 0 {
		api.Use(rateLimit(s.config.RateLimit, s.config.RateBurst))
	}
	{
		api.GET("/documents", s.handleGetDocuments)
		api.DELETE("/documents", s.handleDeleteDocument)
		api.POST("/upload", s.handleUpload)
		api.POST("/scrape", s.handleScrape)
		api.POST("/search", s.handleSearch)
	}

	router.GET("/ws", s.handleWebSocket)

	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
