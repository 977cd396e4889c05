// Deployer Relay — доставляет уведомления о деплоях во внешние каналы.
//
// Relay:
//   - Получает deployment.status сообщения из RabbitMQ
//   - Отправляет их на webhook канала (notifications.webhooks)
//   - 4xx ответ считается окончательным, сообщение уходит в DLQ
//   - 5xx, 429 и сетевые ошибки повторяются через requeue
//
// Relay масштабируется горизонтально.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Deployer/internal/config"
	"github.com/shaiso/Deployer/internal/mq"
	"github.com/shaiso/Deployer/internal/notify"
	"github.com/shaiso/Deployer/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("DEPLOYER_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting deployer-relay", "webhooks", len(cfg.Notifications.Webhooks))

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	webhooks := &notify.WebhookSink{
		URLs:   cfg.Notifications.Webhooks,
		Client: &http.Client{Timeout: cfg.Notifications.Timeout},
		Logger: logger,
	}

	consumer := mq.NewConsumer(conn, mq.ConsumerConfig{
		Queue:    mq.QueueNotificationsRelay,
		Prefetch: cfg.Notifications.Prefetch,
		Logger:   logger,
		Handler: func(ctx context.Context, msg *mq.Message) error {
			payload, err := mq.ParsePayload[mq.DeploymentStatusPayload](msg)
			if err != nil {
				return mq.Permanent(err)
			}

			err = webhooks.Deliver(ctx, payload)
			var delivery *notify.DeliveryError
			if errors.As(err, &delivery) && !delivery.Retryable() {
				return mq.Permanent(err)
			}
			return err
		},
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !conn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("rabbitmq disconnected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := cfg.Server.RelayAddress()
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "error", err)
	}

	logger.Info("deployer-relay stopped")
}
