package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/notify"
	"github.com/shaiso/Deployer/internal/repo"
	"github.com/shaiso/Deployer/internal/runner"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// Gate — проверки здоровья шага и всего деплоя.
type Gate interface {
	CheckStep(ctx context.Context, hc *domain.HealthCheck) error
	CheckDeployment(ctx context.Context, cfg domain.HealthChecksConfig) error
}

// Config — конфигурация Coordinator.
type Config struct {
	// Store — хранилище деплоев (обязательно).
	Store repo.Store

	// Runner — выполняет команды шагов, хуков и компенсаций (обязательно).
	Runner runner.Runner

	// Gate — проверки здоровья, nil — проверки не выполняются.
	Gate Gate

	// Sink — уведомления, nil — уведомления только в лог.
	Sink notify.Sink

	// Metrics — Prometheus метрики, nil — без метрик.
	Metrics *telemetry.Metrics

	// WorkDir и Env передаются всем командам.
	WorkDir string
	Env     map[string]string

	// MaxRetryDelay — верхняя граница backoff между попытками шага.
	MaxRetryDelay time.Duration

	// HookTimeout — таймаут onSuccess/onFailure хуков и компенсаций без
	// собственного таймаута (default: 5m).
	HookTimeout time.Duration

	Logger *slog.Logger
}

const defaultHookTimeout = 5 * time.Minute

// Coordinator запускает деплои и следит за ними.
type Coordinator struct {
	store   repo.Store
	runner  runner.Runner
	gate    Gate
	sink    notify.Sink
	metrics *telemetry.Metrics

	workDir       string
	env           map[string]string
	maxRetryDelay time.Duration
	hookTimeout   time.Duration

	logger *slog.Logger

	// Активные деплои (deploymentID → handle).
	mu      sync.Mutex
	active  map[uuid.UUID]*Handle
	stopped bool
	wg      sync.WaitGroup
}

// New создаёт Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.LogSink{Logger: cfg.Logger}
	}
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = defaultHookTimeout
	}

	return &Coordinator{
		store:         cfg.Store,
		runner:        cfg.Runner,
		gate:          cfg.Gate,
		sink:          cfg.Sink,
		metrics:       cfg.Metrics,
		workDir:       cfg.WorkDir,
		env:           cfg.Env,
		maxRetryDelay: cfg.MaxRetryDelay,
		hookTimeout:   cfg.HookTimeout,
		logger:        cfg.Logger,
		active:        make(map[uuid.UUID]*Handle),
	}
}

// Request — запрос на деплой.
type Request struct {
	Config domain.DeploymentConfig
	Actor  string
}

// Submit создаёт pending деплой и запускает его в фоне.
//
// Конфигурация здесь не валидируется: невалидный деплой сохраняется и
// становится failed в Run, чтобы попасть в историю и аудит.
func (c *Coordinator) Submit(ctx context.Context, req Request) (*Handle, error) {
	if c.isStopped() {
		return nil, ErrCoordinatorStopped
	}

	d := domain.NewDeployment(req.Config, req.Actor)
	if err := c.store.CreateDeployment(ctx, d); err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}
	c.audit(ctx, d, domain.AuditActionRequested, domain.AuditOutcomeSuccess, nil, d)

	c.logger.Info("deployment submitted",
		"deployment_id", d.ID,
		"environment", d.Environment,
		"version", d.Version,
		"actor", d.CreatedBy,
	)
	return c.Start(d)
}

// Start запускает уже сохранённый pending деплой в фоне.
//
// Выполнение не привязано к контексту вызывающего (например, HTTP
// запроса): остановить деплой можно через Handle.Cancel, Cancel или Stop.
func (c *Coordinator) Start(d *domain.Deployment) (*Handle, error) {
	if d.Status != domain.DeploymentStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrDeploymentNotPending, d.ID, d.Status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil, ErrCoordinatorStopped
	}
	if _, ok := c.active[d.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDeploymentAlreadyActive, d.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := newHandle(d.ID, cancel)
	c.active[d.ID] = h

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		err := c.Run(ctx, d)

		c.mu.Lock()
		delete(c.active, d.ID)
		c.mu.Unlock()

		h.finish(d, err)
	}()

	return h, nil
}

// Cancel отменяет активный деплой.
func (c *Coordinator) Cancel(ctx context.Context, id uuid.UUID, actor string) error {
	c.mu.Lock()
	h, ok := c.active[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeploymentNotActive, id)
	}
	if h.CancelRequested() {
		return nil
	}

	h.Cancel()
	c.logger.Warn("deployment cancel requested", "deployment_id", id, "actor", actor)

	if d, err := c.store.GetDeployment(ctx, id); err == nil {
		entry := domain.NewAuditEntry(d, domain.AuditActionCancelled, domain.AuditOutcomeSuccess, nil, nil)
		entry.Actor = actor
		c.appendAudit(ctx, entry)
	}
	return nil
}

// Handle возвращает handle активного деплоя.
func (c *Coordinator) Handle(id uuid.UUID) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.active[id]
	return h, ok
}

// Active возвращает ID активных деплоев.
func (c *Coordinator) Active() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	return ids
}

// Stop перестаёт принимать деплои, отменяет активные и ждёт их
// завершения (или отмены ctx).
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	handles := make([]*Handle, 0, len(c.active))
	for _, h := range c.active {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("coordinator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
