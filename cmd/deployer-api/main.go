// Deployer API — HTTP сервер, координатор деплоев и планировщик.
//
// Процесс:
//   - Принимает деплои через REST API и выполняет их в фоне
//   - Хранит состояние в PostgreSQL (или в памяти без database.dsn)
//   - Публикует уведомления в RabbitMQ (или пишет их в лог)
//   - Запускает деплои по расписаниям из конфигурации
//
// Путь к файлу конфигурации задаётся через DEPLOYER_CONFIG.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Deployer/internal/api"
	"github.com/shaiso/Deployer/internal/config"
	"github.com/shaiso/Deployer/internal/coordinator"
	"github.com/shaiso/Deployer/internal/health"
	"github.com/shaiso/Deployer/internal/mq"
	"github.com/shaiso/Deployer/internal/notify"
	"github.com/shaiso/Deployer/internal/repo"
	"github.com/shaiso/Deployer/internal/runner"
	"github.com/shaiso/Deployer/internal/scheduler"
	"github.com/shaiso/Deployer/internal/telemetry"
)

var startTime = time.Now()

func main() {
	configPath := os.Getenv("DEPLOYER_CONFIG")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting deployer-api", "config", configPath)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Хранилище
	store, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Уведомления
	sink, closeSink := openSink(ctx, cfg.RabbitMQ, logger)
	defer closeSink()

	metrics := telemetry.NewMetrics(nil)

	coord := coordinator.New(coordinator.Config{
		Store:  store,
		Runner: runner.NewRegistry(),
		Gate: health.NewGate(health.Config{
			DefaultTimeout: cfg.Health.DefaultTimeout,
			Interval:       cfg.Health.Interval,
			Logger:         logger,
		}),
		Sink:          sink,
		Metrics:       metrics,
		WorkDir:       cfg.Executor.WorkDir,
		Env:           cfg.Executor.Env,
		MaxRetryDelay: cfg.Executor.MaxRetryDelay,
		HookTimeout:   cfg.Executor.HookTimeout,
		Logger:        logger,
	})

	// Планировщик
	var schedules api.ScheduleLister
	if cfg.Scheduler.Enabled {
		sched, err := newScheduler(cfg, configPath, coord, logger)
		if err != nil {
			logger.Error("failed to load schedules", "error", err)
			os.Exit(1)
		}
		schedules = sched
		go func() {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("scheduler stopped", "error", err)
			}
		}()
	}

	handler := api.NewHandler(api.Config{
		Store:     store,
		Deployer:  coord,
		Schedules: schedules,
		Metrics:   metrics,
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s active=%d", time.Since(startTime), len(coord.Active()))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Активные деплои отменяются и доводятся до финального статуса
	if err := coord.Stop(shutdownCtx); err != nil {
		logger.Error("coordinator stop error", "error", err)
	}

	logger.Info("deployer-api stopped")
}

// openStore открывает PostgreSQL хранилище или, без DSN, хранилище в памяти.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (repo.Store, func(), error) {
	if cfg.DSN == "" {
		logger.Warn("database.dsn is empty, using in-memory store")
		return repo.NewMemoryStore(), func() {}, nil
	}

	pool, err := repo.NewPool(ctx, repo.PoolConfig{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to database")

	if cfg.Migrate {
		if err := repo.Migrate(pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("migrations applied")
	}

	return repo.NewPgStore(pool), pool.Close, nil
}

// openSink подключает RabbitMQ. Если брокер выключен или недоступен,
// уведомления только пишутся в лог.
func openSink(ctx context.Context, cfg config.RabbitMQConfig, logger *slog.Logger) (notify.Sink, func()) {
	logSink := notify.LogSink{Logger: logger}
	if !cfg.Enabled {
		return logSink, func() {}
	}

	conn, err := mq.NewConnection(cfg.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, notifications go to log only", "error", err)
		return logSink, func() {}
	}
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}

	sink := notify.Multi{
		logSink,
		notify.MQSink{Publisher: mq.NewPublisher(conn, logger)},
	}
	return sink, func() { conn.Close() }
}

func newScheduler(cfg *config.Config, configPath string, coord *coordinator.Coordinator, logger *slog.Logger) (*scheduler.Scheduler, error) {
	baseDir := "."
	if configPath != "" {
		baseDir = filepath.Dir(configPath)
	}

	schedules, err := scheduler.LoadSchedules(cfg.Schedules, baseDir)
	if err != nil {
		return nil, err
	}
	logger.Info("schedules loaded", "count", len(schedules))

	return scheduler.New(scheduler.Config{
		Submitter:    coord,
		Schedules:    schedules,
		TickInterval: cfg.Scheduler.TickInterval,
		Logger:       logger,
	})
}
