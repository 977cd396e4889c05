package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/engine"
	"github.com/shaiso/Deployer/internal/executor"
	"github.com/shaiso/Deployer/internal/notify"
	"github.com/shaiso/Deployer/internal/rollback"
	"github.com/shaiso/Deployer/internal/runner"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// Run выполняет деплой синхронно до финального статуса.
//
// d должен быть сохранён в Store и находиться в pending. Неудача деплоя
// не является ошибкой Run: она отражается в d.Status и d.Error. Ошибка
// возвращается, только если не удалось сохранить состояние.
func (c *Coordinator) Run(ctx context.Context, d *domain.Deployment) error {
	if d.Status != domain.DeploymentStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrDeploymentNotPending, d.ID, d.Status)
	}

	logger := telemetry.WithDeploymentID(c.logger, d.ID.String())
	// Записи в Store переживают отмену деплоя.
	persistCtx := context.WithoutCancel(ctx)

	graph, err := c.plan(d)
	if err != nil {
		logger.Error("deployment plan rejected", "error", err)
		return c.finalize(persistCtx, logger, d, nil, err.Error(), false)
	}
	steps := graph.Steps()

	for _, s := range steps {
		s.DeploymentID = d.ID
		if err := c.store.CreateStep(persistCtx, s); err != nil {
			return c.abort(persistCtx, logger, d, fmt.Errorf("create step %s: %w", s.ID, err))
		}
	}

	before := *d
	d.MarkRunning()
	d.SetCounts(steps)
	if err := c.store.UpdateDeployment(persistCtx, d); err != nil {
		return c.abort(persistCtx, logger, d, fmt.Errorf("update deployment: %w", err))
	}
	c.audit(persistCtx, d, domain.AuditActionStarted, domain.AuditOutcomeSuccess, before, d)
	c.metrics.DeploymentStarted(d)
	c.notify(persistCtx, logger, notify.EventStarted, d)

	logger.Info("deployment started",
		"steps", len(steps),
		"max_concurrency", d.Config.Parallelization.EffectiveConcurrency(),
	)

	summary, err := c.executor(persistCtx, logger, d).Run(ctx, graph)
	if err != nil {
		// Граф только что построен из pending шагов, сюда попасть нельзя
		// без ошибки в коде.
		return c.finalize(persistCtx, logger, d, steps, err.Error(), true)
	}

	var problems []string
	switch {
	case summary.Cancelled:
		problems = append(problems, "deployment cancelled")
		problems = append(problems, stepProblems(summary)...)
	case !summary.Succeeded():
		problems = append(problems, stepProblems(summary)...)
	default:
		if err := c.checkDeployment(ctx, d); err != nil {
			logger.Error("deployment health check failed", "error", err)
			problems = append(problems, err.Error())
		}
	}

	// Отмена во время проверки здоровья деплоя: граф уже завершён,
	// но проверка оборвана отменой, а не упала сама.
	cancelled := summary.Cancelled
	if !cancelled && len(problems) > 0 && ctx.Err() != nil {
		cancelled = true
		problems = append([]string{"deployment cancelled"}, problems...)
	}

	c.runHooks(persistCtx, logger, d, len(problems) == 0)

	if len(problems) > 0 && !cancelled && d.Config.Rollback.ShouldRollback() {
		report := c.rollbackController(logger).Rollback(persistCtx, summary.Steps, summary.CompletionOrder)
		c.metrics.RollbackFinished(report.Succeeded())
		problems = append(problems, report.Summary())
		return c.finalizeRolledBack(persistCtx, logger, d, summary.Steps, strings.Join(problems, "; "), report)
	}

	return c.finalize(persistCtx, logger, d, summary.Steps, strings.Join(problems, "; "), true)
}

// plan строит план и граф. Ошибки здесь фатальны: ни один шаг не запустится.
func (c *Coordinator) plan(d *domain.Deployment) (*engine.Graph, error) {
	steps, err := engine.BuildPlan(&d.Config)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 && d.Config.Policy.RequireSteps {
		return nil, &engine.ConfigurationError{Problems: []error{engine.ErrEmptyPlan}}
	}
	return engine.BuildGraph(steps)
}

func (c *Coordinator) executor(persistCtx context.Context, logger *slog.Logger, d *domain.Deployment) *executor.Executor {
	cfg := d.Config
	var gate executor.HealthGate
	if c.gate != nil {
		gate = c.gate
	}

	return executor.New(executor.Config{
		Runner:         c.runner,
		Gate:           gate,
		MaxConcurrency: cfg.Parallelization.EffectiveConcurrency(),
		FailFast:       cfg.Parallelization.FailFast,
		Backoff:        cfg.Policy.RetryBackoff,
		RetryDelay:     cfg.Policy.RetryDelay(),
		MaxRetryDelay:  c.maxRetryDelay,
		WorkDir:        c.workDir,
		Env:            c.env,
		Observer: &stepObserver{
			ctx:     persistCtx,
			store:   c.store,
			metrics: c.metrics,
			logger:  logger,
		},
		Logger: logger,
	})
}

func (c *Coordinator) rollbackController(logger *slog.Logger) *rollback.Controller {
	return rollback.New(rollback.Config{
		Runner:  c.runner,
		Timeout: c.hookTimeout,
		WorkDir: c.workDir,
		Env:     c.env,
		Logger:  logger,
	})
}

func (c *Coordinator) checkDeployment(ctx context.Context, d *domain.Deployment) error {
	if c.gate == nil || !d.Config.HealthChecks.Enabled {
		return nil
	}
	return c.gate.CheckDeployment(ctx, d.Config.HealthChecks)
}

// runHooks выполняет onSuccess или onFailure. Ошибки хуков не меняют
// исход деплоя.
func (c *Coordinator) runHooks(ctx context.Context, logger *slog.Logger, d *domain.Deployment, succeeded bool) {
	hooks, name := d.Config.Hooks.OnFailure, "on_failure"
	if succeeded {
		hooks, name = d.Config.Hooks.OnSuccess, "on_success"
	}

	tmplCtx := engine.NewContext(&d.Config)
	for i, hook := range hooks {
		hookLogger := logger.With("hook", name, "index", i+1)

		cmd, err := engine.RenderCommand(hook, tmplCtx.ForStep(fmt.Sprintf("%s-%d", name, i+1), ""))
		if err != nil {
			hookLogger.Warn("hook template failed", "error", err)
			continue
		}

		res, err := c.runHook(ctx, cmd)
		switch {
		case err != nil:
			hookLogger.Warn("hook failed", "error", err)
		case !res.Success:
			hookLogger.Warn("hook failed", "error", res.Error)
		default:
			hookLogger.Info("hook completed")
		}
	}
}

func (c *Coordinator) runHook(ctx context.Context, cmd domain.Command) (res *runner.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.hookTimeout)
	defer cancel()
	return c.runner.Execute(ctx, cmd, runner.Options{
		WorkDir: c.workDir,
		Env:     c.env,
		Timeout: c.hookTimeout,
	})
}

// abort завершает деплой как failed, если до запуска графа не удалось
// сохранить состояние. Запись итога best-effort, возвращается исходная
// ошибка.
func (c *Coordinator) abort(ctx context.Context, logger *slog.Logger, d *domain.Deployment, cause error) error {
	logger.Error("failed to persist deployment state", "error", cause)
	_ = c.finalize(ctx, logger, d, nil, cause.Error(), false)
	return cause
}

// finalize переводит деплой в completed или failed и сохраняет итог.
func (c *Coordinator) finalize(ctx context.Context, logger *slog.Logger, d *domain.Deployment, steps []*domain.Step, problem string, wasRunning bool) error {
	before := *d
	if steps != nil {
		d.SetCounts(steps)
	}

	action, outcome, event := domain.AuditActionCompleted, domain.AuditOutcomeSuccess, notify.EventCompleted
	if problem == "" {
		d.MarkCompleted()
	} else {
		d.MarkFailed(problem)
		action, outcome, event = domain.AuditActionFailed, domain.AuditOutcomeFailure, notify.EventFailed
	}

	return c.persistFinal(ctx, logger, &before, d, action, outcome, event, wasRunning, nil)
}

// finalizeRolledBack переводит деплой в rolled_back.
func (c *Coordinator) finalizeRolledBack(ctx context.Context, logger *slog.Logger, d *domain.Deployment, steps []*domain.Step, problem string, report *rollback.Report) error {
	before := *d
	d.SetCounts(steps)
	d.MarkRolledBack(problem)

	meta := map[string]any{
		"compensated":      report.Compensated,
		"rollback_success": report.Succeeded(),
	}
	return c.persistFinal(ctx, logger, &before, d, domain.AuditActionRolledBack, domain.AuditOutcomeFailure, notify.EventFailed, true, meta)
}

func (c *Coordinator) persistFinal(ctx context.Context, logger *slog.Logger, before, d *domain.Deployment, action, outcome string, event notify.EventType, wasRunning bool, meta map[string]any) error {
	err := c.store.UpdateDeployment(ctx, d)
	if err != nil {
		logger.Error("failed to persist deployment result", "error", err)
	}

	entry := domain.NewAuditEntry(d, action, outcome, before, d)
	for k, v := range meta {
		entry.Metadata[k] = v
	}
	c.appendAudit(ctx, entry)
	c.metrics.DeploymentFinished(d, wasRunning)
	c.notify(ctx, logger, event, d)

	logger.Info("deployment finished",
		"status", d.Status,
		"completed", d.CompletedSteps,
		"failed", d.FailedSteps,
		"skipped", d.SkippedSteps,
		"duration", d.Duration(),
	)

	if err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	return nil
}

// stepProblems описывает упавшие шаги для Deployment.Error.
func stepProblems(s *executor.Summary) []string {
	problems := make([]string, 0, len(s.Errors))
	for _, err := range s.Errors {
		problems = append(problems, err.Error())
	}
	return problems
}

func (c *Coordinator) audit(ctx context.Context, d *domain.Deployment, action, outcome string, before, after any) {
	c.appendAudit(ctx, domain.NewAuditEntry(d, action, outcome, before, after))
}

func (c *Coordinator) appendAudit(ctx context.Context, e *domain.AuditEntry) {
	if err := c.store.AppendAudit(ctx, e); err != nil {
		c.logger.Warn("failed to append audit entry",
			"deployment_id", e.ResourceID,
			"action", e.Action,
			"error", err,
		)
	}
}

// notify отправляет уведомление, если оно включено в конфигурации.
// Ошибка доставки только логируется.
func (c *Coordinator) notify(ctx context.Context, logger *slog.Logger, t notify.EventType, d *domain.Deployment) {
	if !notify.Wanted(t, d.Config.Notifications) {
		return
	}
	if err := c.sink.Notify(ctx, notify.NewEvent(t, d)); err != nil {
		logger.Warn("notification failed", "event", t, "error", err)
	}
}
