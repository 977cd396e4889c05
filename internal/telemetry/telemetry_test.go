package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Deployer/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithStepID(WithDeploymentID(NewLogger(&buf, "info", "json"), "d-1"), "deploy")
	logger.Debug("hidden")
	logger.Info("step started")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "step started", rec["msg"])
	assert.Equal(t, "d-1", rec["deployment_id"])
	assert.Equal(t, "deploy", rec["step_id"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "debug", "text").Debug("visible", "k", "v")
	assert.Contains(t, buf.String(), "k=v")
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	d := domain.NewDeployment(domain.DeploymentConfig{Environment: domain.EnvironmentProd}, "ci")
	d.MarkRunning()
	m.DeploymentStarted(d)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deploymentsActive))

	start := time.Now()
	s := &domain.Step{ID: "deploy", Kind: domain.StepKindDeploy, Status: domain.StepStatusPending}
	s.MarkRunning(start)
	m.StepStarted(s)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsRunning))

	s.MarkCompleted(start.Add(time.Second), "", 1)
	m.StepFinished(s)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.stepsRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsFinished.WithLabelValues("deploy", "completed")))

	skipped := &domain.Step{ID: "seed", Kind: domain.StepKindSeed, Status: domain.StepStatusPending}
	skipped.MarkSkipped(start, "dependency failed")
	m.StepFinished(skipped)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.stepsRunning), "skipped steps never ran")

	d.MarkRolledBack("deploy failed")
	m.DeploymentFinished(d, true)
	m.RollbackFinished(true)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.deploymentsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deploymentsFinished.WithLabelValues("prod", "rolled_back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rollbacks.WithLabelValues("success")))

	m.HTTPRequest("GET", 404)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "4xx")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	d := &domain.Deployment{}
	s := &domain.Step{}

	assert.NotPanics(t, func() {
		m.DeploymentStarted(d)
		m.DeploymentFinished(d, true)
		m.StepStarted(s)
		m.StepFinished(s)
		m.RollbackFinished(false)
		m.HTTPRequest("GET", 200)
	})
}
