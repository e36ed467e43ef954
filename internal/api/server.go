package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/neurodx-mcp-server/internal/domain"
	"github.com/neurodx-mcp-server/internal/middleware"
	"github.com/neurodx-mcp-server/internal/service"
)

// shutdownTimeout bounds graceful shutdown after the start context ends.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	config        *domain.Config
	logger    *logrus.Logger
	diagnosis *service.DiagnosisService
	feedback  *service.FeedbackService
	router    *gin.Engine
	server    *http.Server
	startTime time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(
	configManager domain.ConfigManager,
	logger *logrus.Logger,
	diagnosis *service.DiagnosisService,
	feedback *service.FeedbackService,
) (*Server, error) {
	config := configManager.GetConfig()
	production := configManager.IsProduction()

	// Set Gin mode based on environment
	if production {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders(production))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestTimeout(config.MCP.RequestTimeout))

	if config.RateLimit.Enabled {
		limiter, err := middleware.NewRateLimiter(config.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("creating rate limiter: %w", err)
		}
		router.Use(limiter.Middleware())
	}

	server := &Server{
		configManager: configManager,
		config:        config,
		logger:        logger,
		diagnosis:     diagnosis,
		feedback:      feedback,
		router:        router,
		startTime:     time.Now(),
	}

	server.setupRoutes()

	return server, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/findings", s.handleListFindings)
		v1.GET("/findings/:id", s.handleGetFinding)
		v1.GET("/diseases", s.handleListDiseases)
		v1.GET("/diseases/:id", s.handleGetDisease)
		v1.POST("/diagnosis", s.handleDiagnosis)
		v1.POST("/feedback", s.handleSubmitFeedback)
		v1.GET("/feedback", s.handleListFeedback)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    s.config.MCP.ServerVersion,
		"production": s.configManager.IsProduction(),
		"uptime":     time.Since(s.startTime).String(),
		"diseases":   len(s.diagnosis.Diseases()),
		"feedback":   s.feedback != nil && s.feedback.Enabled(),
	}
	if stats, ok := s.diagnosis.CacheStats(); ok {
		body["cache"] = stats
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleListFindings(c *gin.Context) {
	findings, err := s.diagnosis.Findings(c.Query("type"), c.Query("region"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"findings": findings, "count": len(findings)})
}

func (s *Server) handleGetFinding(c *gin.Context) {
	finding, err := s.diagnosis.Finding(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, finding)
}

func (s *Server) handleListDiseases(c *gin.Context) {
	diseases := s.diagnosis.Diseases()
	c.JSON(http.StatusOK, gin.H{"diseases": diseases, "count": len(diseases)})
}

func (s *Server) handleGetDisease(c *gin.Context) {
	disease, err := s.diagnosis.Disease(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, disease)
}

// DiagnosisRequest is the body of POST /api/v1/diagnosis.
type DiagnosisRequest struct {
	Findings []service.FindingInput `json:"findings"`
}

func (s *Server) handleDiagnosis(c *gin.Context) {
	var req DiagnosisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Malformed request body", err.Error())
		return
	}

	report, err := s.diagnosis.Diagnose(c.Request.Context(), req.Findings)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSubmitFeedback(c *gin.Context) {
	var req service.FeedbackInput
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Malformed request body", err.Error())
		return
	}

	fb, err := s.feedbackService().Submit(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleListFeedback(c *gin.Context) {
	limit, err := queryInt(c, "limit", service.DefaultFeedbackLimit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.writeError(c, err)
		return
	}

	entries, total, err := s.feedbackService().List(c.Request.Context(), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": entries, "count": len(entries), "total": total})
}

func (s *Server) feedbackService() *service.FeedbackService {
	if s.feedback == nil {
		return service.NewFeedbackService(s.logger, s.diagnosis, nil)
	}
	return s.feedback
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(key, "must be an integer", raw)
	}
	return n, nil
}

// writeError maps service errors onto HTTP statuses and MCPError bodies.
func (s *Server) writeError(c *gin.Context, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		middleware.AbortWithError(c, http.StatusBadRequest, domain.ErrValidation, vErr.Error(), vErr.Field)
	case errors.Is(err, domain.ErrNotFound):
		middleware.AbortWithError(c, http.StatusNotFound, domain.ErrNotFoundCode, err.Error(), "")
	case errors.Is(err, service.ErrFeedbackDisabled):
		middleware.AbortWithError(c, http.StatusServiceUnavailable, domain.ErrUnavailable, err.Error(), "")
	default:
		s.logger.WithError(err).WithField("correlation_id", c.GetString(middleware.CorrelationKey)).Error("Request failed")
		middleware.AbortWithError(c, http.StatusInternalServerError, domain.ErrInternalServer, "Internal server error", "")
	}
}
