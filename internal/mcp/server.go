// Package mcp exposes the diagnosis and feedback services as Model Context
// Protocol tools, resources and prompts.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/neurodx-mcp-server/internal/domain"
	"github.com/neurodx-mcp-server/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Transport types
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Server represents the neurodx MCP server
type Server struct {
	config    *domain.Config
	logger    *logrus.Logger
	diagnosis *service.DiagnosisService
	feedback  *service.FeedbackService
	mcpServer *mcp.Server
}

// NewServer creates an MCP server and registers its capabilities. feedback may
// be nil, in which case the feedback tools report the store as disabled.
func NewServer(
	config *domain.Config,
	logger *logrus.Logger,
	diagnosis *service.DiagnosisService,
	feedback *service.FeedbackService,
) (*Server, error) {
	if diagnosis == nil {
		return nil, errors.New("diagnosis service is required")
	}
	if feedback == nil {
		feedback = service.NewFeedbackService(logger, diagnosis, nil)
	}

	serverInfo := &mcp.Implementation{
		Name:    config.MCP.ServerName,
		Version: config.MCP.ServerVersion,
	}

	s := &Server{
		config:    config,
		logger:    logger,
		diagnosis: diagnosis,
		feedback:  feedback,
		mcpServer: mcp.NewServer(serverInfo, nil),
	}

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	logger.WithFields(logrus.Fields{
		"server_name": serverInfo.Name,
		"version":     serverInfo.Version,
		"feedback":    feedback.Enabled(),
	}).Info("MCP capabilities registered")

	return s, nil
}

// Start runs the configured transport until ctx is cancelled or the client
// disconnects.
func (s *Server) Start(ctx context.Context) error {
	switch s.config.MCP.TransportType {
	case TransportStdio, "":
		s.logger.Info("MCP server listening on stdio")
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	case TransportHTTP:
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("unsupported transport type: %s", s.config.MCP.TransportType)
	}
}

// Handler returns the streamable HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}

func (s *Server) serveHTTP(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.MCP.HTTPHost, s.config.MCP.HTTPPort)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.MCP.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("MCP server listening on streamable HTTP")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP HTTP transport: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("MCP HTTP transport shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
