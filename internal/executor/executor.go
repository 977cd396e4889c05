package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/engine"
	"github.com/shaiso/Deployer/internal/runner"
)

// HealthGate проверяет здоровье после успешной команды шага.
type HealthGate interface {
	CheckStep(ctx context.Context, hc *domain.HealthCheck) error
}

// Observer получает переходы шагов. Методы вызываются только из
// координирующей горутины, шаг можно читать без блокировок, но нельзя
// сохранять указатель после возврата.
type Observer interface {
	StepStarted(step *domain.Step)
	StepFinished(step *domain.Step)
}

// Config — конфигурация Executor.
type Config struct {
	// Runner — выполняет команды шагов (обязательно).
	Runner runner.Runner

	// Gate — проверка здоровья шагов, nil — проверки пропускаются.
	Gate HealthGate

	// MaxConcurrency — граница N одновременно выполняемых шагов.
	// Значения меньше 1 означают последовательный режим.
	MaxConcurrency int

	// FailFast — после первой ошибки не запускать новых шагов.
	// В последовательном режиме включается всегда.
	FailFast bool

	// Backoff — "fixed" или "exponential".
	Backoff string

	// RetryDelay — базовая задержка между попытками.
	RetryDelay time.Duration

	// MaxRetryDelay — верхняя граница задержки.
	MaxRetryDelay time.Duration

	// WorkDir и Env передаются runner'у для каждой команды.
	WorkDir string
	Env     map[string]string

	// Observer — получатель переходов шагов (персистентность, метрики).
	Observer Observer

	Logger *slog.Logger
}

// Executor выполняет граф шагов одного деплоя.
type Executor struct {
	runner        runner.Runner
	gate          HealthGate
	maxConcurrent int
	failFast      bool
	backoff       string
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	workDir       string
	env           map[string]string
	observer      Observer
	logger        *slog.Logger
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxConcurrency == 1 {
		cfg.FailFast = true
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	return &Executor{
		runner:        cfg.Runner,
		gate:          cfg.Gate,
		maxConcurrent: cfg.MaxConcurrency,
		failFast:      cfg.FailFast,
		backoff:       cfg.Backoff,
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
		workDir:       cfg.WorkDir,
		env:           cfg.Env,
		observer:      cfg.Observer,
		logger:        cfg.Logger,
	}
}

// Summary — итог выполнения графа.
type Summary struct {
	// Steps — шаги в порядке плана с итоговыми статусами.
	Steps []*domain.Step

	Completed int
	Failed    int
	Skipped   int

	// CompletionOrder — шаги, которые запускались, в порядке завершения.
	CompletionOrder []string

	// Cancelled — выполнение остановлено отменой ctx.
	Cancelled bool

	// MaxInFlight — максимум одновременно выполнявшихся шагов.
	MaxInFlight int

	// Errors — ошибки упавших шагов в порядке завершения.
	Errors []error
}

// Succeeded возвращает true, если ни один шаг не упал и не было отмены.
func (s *Summary) Succeeded() bool {
	return s.Failed == 0 && !s.Cancelled
}

// Err объединяет ошибки шагов и отмену в одну ошибку, nil при успехе.
func (s *Summary) Err() error {
	errs := append([]error(nil), s.Errors...)
	if s.Cancelled {
		errs = append(errs, ErrCancelled)
	}
	return errors.Join(errs...)
}

// job — всё, что нужно горутине шага. Горутина не видит *domain.Step.
type job struct {
	stepID      string
	cmd         domain.Command
	healthCheck *domain.HealthCheck
	retries     int
	timeout     time.Duration
}

// outcome — результат выполнения шага, отправляется в канал done.
type outcome struct {
	stepID   string
	attempts int
	output   string
	err      error
	at       time.Time
}

// Run выполняет граф до тех пор, пока все шаги не станут терминальными.
//
// Отмена ctx останавливает запуск новых шагов. Уже запущенные шаги
// доводятся до конца с контекстом, отвязанным от отмены, оставшиеся
// помечаются skipped.
//
// Ошибка возвращается только при неверных входных данных; неудачи
// шагов отражаются в Summary.
func (e *Executor) Run(ctx context.Context, g *engine.Graph) (*Summary, error) {
	if e.runner == nil {
		return nil, ErrNoRunner
	}
	for _, node := range g.Plan {
		if node.Step.Status != domain.StepStatusPending {
			return nil, fmt.Errorf("%w: %s is %s", ErrStepNotPending, node.ID, node.Step.Status)
		}
	}

	rec := newRecord(g)
	done := make(chan outcome, g.Size())
	workCtx := context.WithoutCancel(ctx)
	stop := ctx.Done()

	halted := false
	haltReason := ""
	cancelled := false
	var stepErrs []error

	e.logger.Info("executing plan",
		"steps", g.Size(),
		"max_concurrency", e.maxConcurrent,
		"fail_fast", e.failFast,
	)

	for {
		if !halted && ctx.Err() != nil {
			halted, cancelled, haltReason = true, true, "deployment cancelled"
			stop = nil
		}

		e.skipBlocked(rec)
		if halted {
			e.skipRemaining(rec, haltReason)
		} else {
			e.startReady(workCtx, rec, done)
		}

		if rec.running == 0 {
			break
		}

		select {
		case out := <-done:
			if err := e.finish(rec, out); err != nil {
				stepErrs = append(stepErrs, err)
				if e.failFast && !halted {
					halted = true
					haltReason = fmt.Sprintf("deployment stopped after step %s failed", out.stepID)
				}
			}
		case <-stop:
			halted, cancelled, haltReason = true, true, "deployment cancelled"
			stop = nil
			e.logger.Warn("cancellation requested, waiting for in-flight steps", "in_flight", rec.running)
		}
	}

	// В ацикличном графе сюда не доходят недостижимые шаги, но запись
	// не должна оставить pending после выхода.
	e.skipRemaining(rec, "step was not reachable")

	summary := e.summarize(g, rec, stepErrs, cancelled)
	e.logger.Info("plan finished",
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"cancelled", summary.Cancelled,
	)
	return summary, nil
}

// skipBlocked помечает skipped шаги, у которых упала или пропущена
// зависимость. Обход в топологическом порядке даёт транзитивность за
// один проход.
func (e *Executor) skipBlocked(rec *record) {
	for _, node := range rec.graph.Order {
		if !rec.notStarted(node.ID) {
			continue
		}
		dep, blocked := rec.blockedBy(node)
		if !blocked {
			continue
		}
		e.skip(rec, node, fmt.Sprintf("dependency %s %s", dep.ID, dep.Status))
	}
}

// skipRemaining помечает skipped все незапущенные шаги.
func (e *Executor) skipRemaining(rec *record, reason string) {
	for _, node := range rec.graph.Plan {
		if rec.notStarted(node.ID) {
			e.skip(rec, node, reason)
		}
	}
}

func (e *Executor) skip(rec *record, node *engine.Node, reason string) {
	if !node.Step.MarkSkipped(time.Now().UTC(), reason) {
		return
	}
	rec.markSkipped(node.ID)
	e.logger.Info("step skipped", "step_id", node.ID, "reason", reason)
	e.observer.StepFinished(node.Step)
}

// startReady запускает готовые шаги в порядке плана, пока есть слоты.
func (e *Executor) startReady(ctx context.Context, rec *record, done chan<- outcome) {
	for _, node := range rec.graph.Plan {
		if rec.running >= e.maxConcurrent {
			return
		}
		if !rec.notStarted(node.ID) || !rec.eligible(node) {
			continue
		}
		e.start(ctx, rec, node, done)
	}
}

func (e *Executor) start(ctx context.Context, rec *record, node *engine.Node, done chan<- outcome) {
	step := node.Step
	if !step.MarkRunning(time.Now().UTC()) {
		return
	}
	rec.markInFlight(node.ID)

	e.logger.Info("step started",
		"step_id", step.ID,
		"kind", step.Kind,
		"in_flight", rec.running,
	)
	e.observer.StepStarted(step)

	j := job{
		stepID:  step.ID,
		cmd:     step.Command,
		retries: step.Retries,
		timeout: step.Timeout(),
	}
	if step.HealthCheck != nil {
		hc := *step.HealthCheck
		j.healthCheck = &hc
	}

	go func() {
		done <- e.execute(ctx, j)
	}()
}

// finish применяет outcome к шагу. Возвращает ошибку шага, если он упал.
func (e *Executor) finish(rec *record, out outcome) error {
	node := rec.graph.GetNode(out.stepID)
	step := node.Step
	rec.markFinished(out.stepID)

	if out.err == nil {
		step.MarkCompleted(out.at, out.output, out.attempts)
		e.logger.Info("step completed",
			"step_id", step.ID,
			"attempts", out.attempts,
			"duration_ms", step.DurationMs,
		)
		e.observer.StepFinished(step)
		return nil
	}

	step.MarkFailed(out.at, out.output, out.err.Error(), out.attempts)
	e.logger.Error("step failed",
		"step_id", step.ID,
		"attempts", out.attempts,
		"error", out.err,
	)
	e.observer.StepFinished(step)
	return out.err
}

// execute выполняет шаг с повторами. Работает в своей горутине.
func (e *Executor) execute(ctx context.Context, j job) (out outcome) {
	out.stepID = j.stepID

	defer func() {
		if r := recover(); r != nil {
			out.err = &StepExecutionError{StepID: j.stepID, Attempts: out.attempts, Err: fmt.Errorf("panic: %v", r)}
		}
		out.at = time.Now().UTC()
	}()

	opts := runner.Options{WorkDir: e.workDir, Env: e.env, Timeout: j.timeout}

	for attempt := 1; attempt <= j.retries+1; attempt++ {
		if attempt > 1 {
			delay := calculateBackoff(attempt-1, e.backoff, e.retryDelay, e.maxRetryDelay)
			e.logger.Info("retrying step", "step_id", j.stepID, "attempt", attempt, "delay", delay)
			time.Sleep(delay)
		}
		out.attempts = attempt

		res, err := e.runOnce(ctx, j, opts)
		if res != nil {
			out.output = res.Output
		}

		switch {
		case err != nil && errors.Is(err, context.DeadlineExceeded):
			out.err = &TimeoutError{StepID: j.stepID, Attempts: attempt, Timeout: j.timeout}

		case err != nil:
			out.err = &StepExecutionError{StepID: j.stepID, Attempts: attempt, Err: err}
			if isPermanent(err) {
				return out
			}

		case !res.Success:
			out.err = &StepExecutionError{StepID: j.stepID, Attempts: attempt, Err: errors.New(res.Error)}

		default:
			if j.healthCheck != nil && e.gate != nil {
				if gerr := e.gate.CheckStep(ctx, j.healthCheck); gerr != nil {
					out.err = &StepExecutionError{StepID: j.stepID, Attempts: attempt, Err: gerr}
					break
				}
			}
			out.err = nil
			return out
		}

		e.logger.Warn("step attempt failed",
			"step_id", j.stepID,
			"attempt", attempt,
			"max_attempts", j.retries+1,
			"error", out.err,
		)
	}

	return out
}

// runOnce выполняет одну попытку с таймаутом шага.
func (e *Executor) runOnce(ctx context.Context, j job, opts runner.Options) (*runner.Result, error) {
	if j.timeout <= 0 {
		return e.runner.Execute(ctx, j.cmd, opts)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	res, err := e.runner.Execute(attemptCtx, j.cmd, opts)
	if err == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && (res == nil || !res.Success) {
		err = context.DeadlineExceeded
	}
	return res, err
}

// isPermanent — ошибки дескриптора не лечатся повтором.
func isPermanent(err error) bool {
	return errors.Is(err, runner.ErrInvalidCommand) || errors.Is(err, runner.ErrUnknownCommandType)
}

func (e *Executor) summarize(g *engine.Graph, rec *record, errs []error, cancelled bool) *Summary {
	s := &Summary{
		Steps:           g.Steps(),
		CompletionOrder: rec.order,
		Cancelled:       cancelled,
		MaxInFlight:     rec.maxRunning,
		Errors:          errs,
	}
	for _, step := range s.Steps {
		switch step.Status {
		case domain.StepStatusCompleted:
			s.Completed++
		case domain.StepStatusFailed:
			s.Failed++
		case domain.StepStatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// calculateBackoff вычисляет задержку перед повтором номер attempt (с 1).
func calculateBackoff(attempt int, backoff string, initialDelay, maxDelay time.Duration) time.Duration {
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	delay := initialDelay
	if backoff == domain.BackoffExponential {
		// delay = initialDelay * 2^(attempt-1)
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxDelay {
				break
			}
		}
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

type nopObserver struct{}

func (nopObserver) StepStarted(*domain.Step)  {}
func (nopObserver) StepFinished(*domain.Step) {}
