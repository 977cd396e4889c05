package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/runner"
)

// Config — конфигурация Controller.
type Config struct {
	// Runner — выполняет компенсирующие команды (обязательно).
	Runner runner.Runner

	// Timeout — таймаут одной компенсации, если у шага не задан свой.
	Timeout time.Duration

	WorkDir string
	Env     map[string]string

	Logger *slog.Logger
}

// Controller выполняет откат деплоя.
type Controller struct {
	runner  runner.Runner
	timeout time.Duration
	workDir string
	env     map[string]string
	logger  *slog.Logger
}

// New создаёт Controller.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		runner:  cfg.Runner,
		timeout: cfg.Timeout,
		workDir: cfg.WorkDir,
		env:     cfg.Env,
		logger:  cfg.Logger,
	}
}

// Report — итог отката.
type Report struct {
	// Invoked — шаги, для которых запускалась компенсация, в порядке запуска.
	Invoked []string

	// Compensated — шаги, компенсация которых прошла успешно.
	Compensated []string

	// Failures — неудачные компенсации.
	Failures []*Failure
}

// Succeeded возвращает true, если все компенсации прошли.
func (r *Report) Succeeded() bool {
	return len(r.Failures) == 0
}

// Err объединяет ошибки компенсаций, nil при успехе.
func (r *Report) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Summary — краткое описание для Deployment.Error.
func (r *Report) Summary() string {
	if r.Succeeded() {
		return fmt.Sprintf("rolled back %d step(s)", len(r.Compensated))
	}
	ids := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		ids = append(ids, f.StepID)
	}
	return fmt.Sprintf("rollback failed for %s", strings.Join(ids, ", "))
}

// Plan возвращает шаги для отката: выполнявшиеся шаги с компенсацией
// в порядке, обратном order.
func Plan(steps []*domain.Step, order []string) []*domain.Step {
	byID := make(map[string]*domain.Step, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	plan := make([]*domain.Step, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		s, ok := byID[order[i]]
		if !ok {
			continue
		}
		if s.Status != domain.StepStatusCompleted && s.Status != domain.StepStatusFailed {
			continue
		}
		if !s.HasCompensation() {
			continue
		}
		plan = append(plan, s)
	}
	return plan
}

// Rollback выполняет компенсации последовательно. Неудача одной
// компенсации не останавливает остальные.
//
// order — порядок завершения шагов (executor.Summary.CompletionOrder).
func (c *Controller) Rollback(ctx context.Context, steps []*domain.Step, order []string) *Report {
	report := &Report{}
	plan := Plan(steps, order)

	c.logger.Info("rollback started", "steps", len(plan))

	for _, s := range plan {
		report.Invoked = append(report.Invoked, s.ID)

		if err := c.compensate(ctx, s); err != nil {
			c.logger.Error("step compensation failed", "step_id", s.ID, "error", err)
			report.Failures = append(report.Failures, &Failure{StepID: s.ID, Err: err})
			continue
		}

		c.logger.Info("step compensated", "step_id", s.ID)
		report.Compensated = append(report.Compensated, s.ID)
	}

	c.logger.Info("rollback finished",
		"compensated", len(report.Compensated),
		"failed", len(report.Failures),
	)
	return report
}

func (c *Controller) compensate(ctx context.Context, s *domain.Step) (err error) {
	if c.runner == nil {
		return errors.New("no runner configured")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	timeout := s.Timeout()
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := c.runner.Execute(ctx, *s.Compensate, runner.Options{
		WorkDir: c.workDir,
		Env:     c.env,
		Timeout: timeout,
	})
	if err != nil {
		return err
	}
	if !res.Success {
		if res.Error == "" {
			return errors.New("compensation command failed")
		}
		return errors.New(res.Error)
	}
	return nil
}
