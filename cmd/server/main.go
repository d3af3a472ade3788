package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/xhad/docqa/internal/app"
	"github.com/xhad/docqa/pkg/config"
	"github.com/xhad/docqa/pkg/logger"
	"github.com/xhad/docqa/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logrus.Fatal(err)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logrus.Fatal(err)
	}
	defer a.Close()

	srv := server.New(a.Service, server.Config{
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
		Streaming:      cfg.Server.Streaming,
	})

	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		logrus.WithError(err).Error("Server stopped")
		a.Close()
		os.Exit(1)
	}
}
