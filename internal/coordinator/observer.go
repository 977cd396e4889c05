package coordinator

import (
	"context"
	"log/slog"

	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/repo"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// stepObserver сохраняет переходы шагов и обновляет метрики.
// Ошибки Store не останавливают выполнение.
type stepObserver struct {
	ctx     context.Context
	store   repo.Store
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func (o *stepObserver) StepStarted(s *domain.Step) {
	o.metrics.StepStarted(s)
	o.persist(s)
}

func (o *stepObserver) StepFinished(s *domain.Step) {
	o.metrics.StepFinished(s)
	o.persist(s)

	logger := telemetry.WithStepID(o.logger, s.ID)
	switch s.Status {
	case domain.StepStatusFailed:
		logger.Error("step failed", "attempts", s.Attempts, "error", s.Error)
	case domain.StepStatusSkipped:
		logger.Warn("step skipped", "reason", s.Error)
	default:
		logger.Info("step completed", "attempts", s.Attempts, "duration", s.Duration())
	}
}

func (o *stepObserver) persist(s *domain.Step) {
	if err := o.store.UpdateStep(o.ctx, s); err != nil {
		o.logger.Warn("failed to persist step", "step_id", s.ID, "status", s.Status, "error", err)
	}
}
