package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurodx-mcp-server/internal/domain"
	"github.com/neurodx-mcp-server/internal/service"
)

func testConfig(t *testing.T) *domain.Config {
	return &domain.Config{
		Engine: domain.EngineConfig{Parallelism: 4, ParallelThreshold: 8, AuditKnowledge: true},
		Cache:  domain.CacheConfig{Enabled: true, MemorySize: 16, DefaultTTL: time.Minute},
		Feedback: domain.FeedbackConfig{
			Enabled:    true,
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "feedback.db"),
		},
	}
}

func TestNew(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)

	a, err := New(context.Background(), testConfig(t), logger)
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Feedback.Enabled())
	assert.Equal(t, 33, a.Knowledge.Base.Len())

	var audited bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Knowledge base loaded" {
			audited = true
		}
	}
	assert.True(t, audited)

	ctx := context.Background()
	inputs := []service.FindingInput{{ID: "fatigable_weakness"}}
	first, err := a.Diagnosis.Diagnose(ctx, inputs)
	require.NoError(t, err)
	second, err := a.Diagnosis.Diagnose(ctx, inputs)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
}

func TestNew_Options(t *testing.T) {
	logger, _ := test.NewNullLogger()

	a, err := New(context.Background(), testConfig(t), logger, WithoutFeedback(), WithoutCache())
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Feedback.Enabled())

	inputs := []service.FindingInput{{ID: "fatigable_weakness"}}
	_, err = a.Diagnosis.Diagnose(context.Background(), inputs)
	require.NoError(t, err)
	report, err := a.Diagnosis.Diagnose(context.Background(), inputs)
	require.NoError(t, err)
	assert.False(t, report.CacheHit)
}

func TestNew_BadFeedbackDriver(t *testing.T) {
	logger, _ := test.NewNullLogger()
	config := testConfig(t)
	config.Feedback.Driver = "mongo"

	_, err := New(context.Background(), config, logger)
	assert.ErrorContains(t, err, "opening feedback store")
}

func TestClose_Idempotent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a, err := New(context.Background(), testConfig(t), logger)
	require.NoError(t, err)

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
