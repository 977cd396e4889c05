package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/shaiso/Deployer/internal/config"
	"github.com/shaiso/Deployer/internal/coordinator"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/engine"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// Submitter запускает деплой.
type Submitter interface {
	Submit(ctx context.Context, req coordinator.Request) (*coordinator.Handle, error)
}

// Scheduler отправляет деплои по расписаниям.
type Scheduler struct {
	submitter Submitter
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu        sync.Mutex
	schedules []*domain.Schedule
	// inFlight — последний деплой каждого расписания.
	inFlight map[string]*coordinator.Handle
}

// Config — конфигурация Scheduler.
type Config struct {
	Submitter Submitter
	Schedules []*domain.Schedule

	// TickInterval — период проверки расписаний (default: 1s).
	TickInterval time.Duration

	// Now — источник времени, по умолчанию time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт Scheduler. Расписаниям без NextDueAt вычисляется первый
// запуск от текущего времени.
func New(cfg Config) (*Scheduler, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	now := cfg.Now()
	for _, sched := range cfg.Schedules {
		if sched.NextDueAt != nil {
			continue
		}
		next, err := CalculateNextDue(sched, now)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", sched.Name, err)
		}
		sched.NextDueAt = &next
	}

	return &Scheduler{
		submitter: cfg.Submitter,
		interval:  cfg.TickInterval,
		now:       cfg.Now,
		logger:    cfg.Logger,
		schedules: cfg.Schedules,
		inFlight:  make(map[string]*coordinator.Handle),
	}, nil
}

// Run вызывает Tick каждые TickInterval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "schedules", len(s.schedules), "tick_interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick отправляет деплои для всех расписаний, чьё время подошло.
// Возвращает количество отправленных деплоев.
//
// Если предыдущий деплой расписания ещё идёт, запуск пропускается, но
// NextDueAt всё равно сдвигается. Ошибка одного расписания не мешает
// остальным.
func (s *Scheduler) Tick(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	submitted := 0
	for _, sched := range s.schedules {
		if !sched.IsDue(now) {
			continue
		}
		if s.process(ctx, sched, now) {
			submitted++
		}
	}

	if submitted > 0 {
		s.logger.Info("scheduler tick completed", "submitted", submitted)
	}
	return submitted
}

func (s *Scheduler) process(ctx context.Context, sched *domain.Schedule, now time.Time) bool {
	logger := telemetry.WithSchedule(s.logger, sched.Name)

	next, err := CalculateNextDue(sched, now)
	if err != nil {
		// Некорректное расписание больше не запускается
		logger.Error("failed to calculate next due, disabling schedule", "error", err)
		sched.Enabled = false
		return false
	}

	if h, ok := s.inFlight[sched.Name]; ok {
		select {
		case <-h.Done():
			delete(s.inFlight, sched.Name)
		default:
			logger.Warn("previous deployment still running, skipping",
				"deployment_id", h.ID,
				"next_due_at", next,
			)
			sched.NextDueAt = &next
			return false
		}
	}

	h, err := s.submitter.Submit(ctx, coordinator.Request{
		Config: sched.Config,
		Actor:  sched.Actor,
	})
	if err != nil {
		// NextDueAt не сдвигаем, попробуем на следующем тике
		logger.Error("failed to submit scheduled deployment", "error", err)
		return false
	}

	s.inFlight[sched.Name] = h
	sched.RecordRun(h.ID, now, next)
	logger.Info("scheduled deployment submitted",
		"deployment_id", h.ID,
		"next_due_at", next,
	)
	return true
}

// Schedules возвращает копии расписаний в текущем состоянии.
func (s *Scheduler) Schedules() []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, *sched)
	}
	return out
}

// LoadSchedules строит расписания из конфигурации сервиса. Относительные
// пути config_file считаются от baseDir.
func LoadSchedules(cfgs []config.ScheduleConfig, baseDir string) ([]*domain.Schedule, error) {
	out := make([]*domain.Schedule, 0, len(cfgs))
	for _, c := range cfgs {
		if c.Cron != "" {
			if err := ValidateCronExpr(c.Cron); err != nil {
				return nil, fmt.Errorf("schedule %s: %w", c.Name, err)
			}
		}

		path := c.ConfigFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		dc, err := engine.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", c.Name, err)
		}

		tz := c.Timezone
		if tz == "" {
			tz = "UTC"
		}
		actor := c.Actor
		if actor == "" {
			actor = "scheduler:" + c.Name
		}

		out = append(out, &domain.Schedule{
			Name:        c.Name,
			CronExpr:    c.Cron,
			IntervalSec: c.IntervalSec,
			Timezone:    tz,
			Enabled:     c.IsEnabled(),
			Actor:       actor,
			Config:      *dc,
		})
	}

	slices.SortStableFunc(out, func(a, b *domain.Schedule) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out, nil
}
