package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/neurodx-mcp-server/internal/api"
	"github.com/neurodx-mcp-server/internal/app"
	"github.com/neurodx-mcp-server/internal/config"
	"github.com/neurodx-mcp-server/internal/logging"
)

func main() {
	configFile := pflag.String("config", "", "config file (default: search ., ./config, /etc/neurodx/)")
	pflag.Parse()

	// Load configuration
	configManager, err := config.NewManagerWithFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	cfg.MCP.ServerVersion = app.Version

	logger, logCloser, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logCloser.Close()

	if used := configManager.ConfigFileUsed(); used != "" {
		logger.WithField("config_file", used).Info("Configuration loaded")
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	defer a.Close()

	server, err := api.NewServer(configManager, logger, a.Diagnosis, a.Feedback)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create HTTP server")
	}

	logger.WithFields(logrus.Fields{
		"environment": cfg.Server.Environment,
		"production":  configManager.IsProduction(),
	}).Info("Starting neurodx HTTP server")
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("HTTP server stopped with error")
		return
	}

	logger.Info("Server stopped")
}
