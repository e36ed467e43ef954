package logging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// CorrelationID extracts the correlation ID from ctx, or "" when unset.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID returns a context carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// EnsureCorrelationID returns ctx with a correlation ID, generating one when
// ctx has none.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return WithCorrelationID(ctx, id), id
}

// Operation types
const (
	OperationToolCall    = "tool_call"
	OperationHTTPRequest = "http_request"
	OperationCLICommand  = "cli_command"
	OperationHealthCheck = "health_check"
)

// Operation tracks one logged unit of work.
type Operation struct {
	logger        *logrus.Logger
	ID            string
	CorrelationID string
	Type          string
	Name          string
	StartTime     time.Time
}

// StartOperation logs the start of an operation and returns the context it
// should run under.
func StartOperation(ctx context.Context, logger *logrus.Logger, operationType, name string, fields logrus.Fields) (context.Context, *Operation) {
	ctx, correlationID := EnsureCorrelationID(ctx)
	op := &Operation{
		logger:        logger,
		ID:            uuid.New().String(),
		CorrelationID: correlationID,
		Type:          operationType,
		Name:          name,
		StartTime:     time.Now(),
	}

	op.entry().WithFields(fields).Debug("Operation started")
	return ctx, op
}

func (op *Operation) entry() *logrus.Entry {
	return op.logger.WithFields(logrus.Fields{
		"correlation_id": op.CorrelationID,
		"operation_id":   op.ID,
		"operation_type": op.Type,
		"operation_name": op.Name,
	})
}

// End logs completion with the elapsed time. A non-nil err is logged at
// error level.
func (op *Operation) End(err error, fields logrus.Fields) time.Duration {
	duration := time.Since(op.StartTime)
	entry := op.entry().WithFields(fields).WithField("duration", duration)

	if err != nil {
		entry.WithError(err).Error("Operation failed")
	} else {
		entry.Info("Operation completed")
	}
	return duration
}
