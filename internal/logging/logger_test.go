package logging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurodx-mcp-server/internal/domain"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		config    domain.LoggingConfig
		level     logrus.Level
		formatter logrus.Formatter
		wantErr   bool
	}{
		{"json default", domain.LoggingConfig{Level: "info"}, logrus.InfoLevel, &logrus.JSONFormatter{}, false},
		{"text stdout", domain.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"}, logrus.DebugLevel, &logrus.TextFormatter{}, false},
		{"bad level", domain.LoggingConfig{Level: "loud"}, 0, nil, true},
		{"bad format", domain.LoggingConfig{Level: "info", Format: "xml"}, 0, nil, true},
		{"bad output", domain.LoggingConfig{Level: "info", Output: "syslog"}, 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, closer, err := NewLogger(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer closer.Close()

			assert.Equal(t, tt.level, logger.GetLevel())
			assert.IsType(t, tt.formatter, logger.Formatter)
		})
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neurodx.log")

	logger, closer, err := NewLogger(domain.LoggingConfig{Level: "info", Output: "file", Filename: path})
	require.NoError(t, err)

	logger.Info("Knowledge base loaded")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Knowledge base loaded"`)
}

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationID(ctx))

	ctx, id := EnsureCorrelationID(ctx)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, CorrelationID(ctx))

	same, again := EnsureCorrelationID(ctx)
	assert.Equal(t, id, again)
	assert.Equal(t, id, CorrelationID(same))

	assert.Equal(t, "req-1", CorrelationID(WithCorrelationID(context.Background(), "req-1")))
}

func TestOperation(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	ctx, op := StartOperation(WithCorrelationID(context.Background(), "req-7"), logger, OperationToolCall, "compute_diagnosis", logrus.Fields{"finding_count": 2})
	assert.Equal(t, "req-7", CorrelationID(ctx))
	assert.Equal(t, "req-7", op.CorrelationID)
	assert.Equal(t, "Operation started", hook.LastEntry().Message)

	op.End(nil, logrus.Fields{"result_count": 3})
	entry := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "compute_diagnosis", entry.Data["operation_name"])
	assert.Equal(t, 3, entry.Data["result_count"])

	op.End(errors.New("boom"), nil)
	entry = hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Operation failed", entry.Message)
}
