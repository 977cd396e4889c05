package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Deployer/internal/domain"
)

// DefaultTimeout — таймаут проверки по умолчанию.
const DefaultTimeout = 10 * time.Second

// Config — конфигурация Gate.
type Config struct {
	// Probe — реализация проверки, по умолчанию HTTPProbe.
	Probe Probe

	// DefaultTimeout — таймаут проверки, если не задан в конфигурации.
	DefaultTimeout time.Duration

	// Interval — пауза между повторными проверками, 0 — без паузы.
	Interval time.Duration

	Logger *slog.Logger
}

// Gate решает, можно ли считать шаг или деплой здоровым.
type Gate struct {
	probe          Probe
	defaultTimeout time.Duration
	interval       time.Duration
	logger         *slog.Logger
}

// NewGate создаёт Gate.
func NewGate(cfg Config) *Gate {
	if cfg.Probe == nil {
		cfg.Probe = &HTTPProbe{}
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gate{
		probe:          cfg.Probe,
		defaultTimeout: cfg.DefaultTimeout,
		interval:       cfg.Interval,
		logger:         cfg.Logger,
	}
}

// CheckStep проверяет здоровье после шага. Одна попытка: повтор шага
// целиком управляется его бюджетом retries.
func (g *Gate) CheckStep(ctx context.Context, hc *domain.HealthCheck) error {
	if hc == nil {
		return nil
	}
	return g.check(ctx, hc.URL, hc.ExpectedStatus, seconds(hc.TimeoutSec), 0, 0)
}

// CheckDeployment проверяет все endpoints деплоя параллельно.
// Каждый endpoint получает 1 + cfg.Retries попыток.
func (g *Gate) CheckDeployment(ctx context.Context, cfg domain.HealthChecksConfig) error {
	if !cfg.Enabled || len(cfg.Endpoints) == 0 {
		return nil
	}

	interval := g.interval
	if cfg.IntervalSec > 0 {
		interval = seconds(cfg.IntervalSec)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, url := range cfg.Endpoints {
		eg.Go(func() error {
			return g.check(egCtx, url, cfg.ExpectedStatus, seconds(cfg.TimeoutSec), cfg.Retries, interval)
		})
	}
	return eg.Wait()
}

func (g *Gate) check(ctx context.Context, url string, expected int, timeout time.Duration, retries int, interval time.Duration) error {
	if expected == 0 {
		expected = http.StatusOK
	}
	if timeout <= 0 {
		timeout = g.defaultTimeout
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, interval); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		lastErr = g.probe.Check(ctx, url, expected, timeout)
		if lastErr == nil {
			g.logger.Debug("health check passed", "url", url, "attempt", attempts)
			return nil
		}

		g.logger.Warn("health check attempt failed",
			"url", url,
			"attempt", attempts,
			"error", lastErr,
		)
	}

	return &CheckFailure{URL: url, Attempts: attempts, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
