package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/coordinator"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/repo"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// Deployer запускает и отменяет деплои.
type Deployer interface {
	Submit(ctx context.Context, req coordinator.Request) (*coordinator.Handle, error)
	Cancel(ctx context.Context, id uuid.UUID, actor string) error
}

// ScheduleLister отдаёт текущее состояние расписаний.
type ScheduleLister interface {
	Schedules() []domain.Schedule
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store     repo.Store
	deployer  Deployer
	schedules ScheduleLister
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store    repo.Store
	Deployer Deployer

	// Schedules — nil, если планировщик выключен.
	Schedules ScheduleLister

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		store:     cfg.Store,
		deployer:  cfg.Deployer,
		schedules: cfg.Schedules,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}
