// Package app assembles the knowledge base, engine, cache and feedback store
// shared by the HTTP server, the MCP server and the command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/neurodx-mcp-server/internal/cache"
	"github.com/neurodx-mcp-server/internal/domain"
	"github.com/neurodx-mcp-server/internal/feedback"
	"github.com/neurodx-mcp-server/internal/knowledge"
	"github.com/neurodx-mcp-server/internal/service"
)

// Version is reported by the servers and the CLI. Overridden at build time
// with -ldflags "-X github.com/neurodx-mcp-server/internal/app.Version=...".
var Version = "1.0.0"

// App holds the wired services.
type App struct {
	Config    *domain.Config
	Logger    *logrus.Logger
	Knowledge *knowledge.Knowledge
	Diagnosis *service.DiagnosisService
	Feedback  *service.FeedbackService

	closers []io.Closer
}

type options struct {
	feedback bool
	cache    bool
}

// Option adjusts what New wires.
type Option func(*options)

// WithoutFeedback skips opening the feedback store even when enabled in
// config. Feedback operations then return service.ErrFeedbackDisabled.
func WithoutFeedback() Option {
	return func(o *options) { o.feedback = false }
}

// WithoutCache disables the result cache.
func WithoutCache() Option {
	return func(o *options) { o.cache = false }
}

// New loads the embedded knowledge base and wires the services described by
// config.
func New(ctx context.Context, config *domain.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	o := options{feedback: true, cache: true}
	for _, opt := range opts {
		opt(&o)
	}

	k, err := knowledge.Default()
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	a := &App{Config: config, Logger: logger, Knowledge: k}

	engine := service.NewDiagnosisEngine(logger, k.Base,
		service.WithParallelism(config.Engine.Parallelism),
		service.WithParallelThreshold(config.Engine.ParallelThreshold),
	)

	var resultCache domain.ResultCache
	if o.cache {
		resultCache, err = cache.New(config.Cache, logger)
		if err != nil {
			return nil, err
		}
		a.track(resultCache)
	}

	a.Diagnosis = service.NewDiagnosisService(logger, k, engine, resultCache)
	if config.Engine.AuditKnowledge {
		a.Diagnosis.AuditKnowledge()
	}

	var store feedback.Store
	if o.feedback && config.Feedback.Enabled {
		store, err = feedback.Open(ctx, config.Feedback, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening feedback store: %w", err)
		}
		a.closers = append(a.closers, store)
		logger.WithField("driver", config.Feedback.Driver).Info("Feedback store opened")
	}
	a.Feedback = service.NewFeedbackService(logger, a.Diagnosis, store)

	return a, nil
}

func (a *App) track(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

// Close releases the feedback store and cache connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
