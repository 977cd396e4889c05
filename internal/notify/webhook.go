package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shaiso/Deployer/internal/mq"
)

// DeliveryError — webhook ответил не 2xx.
type DeliveryError struct {
	Channel    string
	StatusCode int
}

// Error реализует интерфейс error.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook for channel %s returned HTTP %d", e.Channel, e.StatusCode)
}

// Retryable — 5xx и 429 имеет смысл повторить.
func (e *DeliveryError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// WebhookSink отправляет уведомления на URL каналов.
type WebhookSink struct {
	// URLs — адрес webhook'а для каждого канала.
	URLs map[string]string

	Client *http.Client
	Logger *slog.Logger
}

// Notify реализует Sink.
func (s *WebhookSink) Notify(ctx context.Context, e Event) error {
	for _, channel := range e.Channels {
		if err := s.Deliver(ctx, Payload(e, channel)); err != nil {
			return err
		}
	}
	return nil
}

// Deliver отправляет одно сообщение канала. Канал без URL пропускается.
func (s *WebhookSink) Deliver(ctx context.Context, payload mq.DeploymentStatusPayload) error {
	url, ok := s.URLs[payload.Channel]
	if !ok {
		s.logger().Debug("no webhook for channel", "channel", payload.Channel)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client().Do(req)
	if err != nil {
		return fmt.Errorf("post webhook for channel %s: %w", payload.Channel, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Channel: payload.Channel, StatusCode: resp.StatusCode}
	}

	s.logger().Info("notification delivered",
		"channel", payload.Channel,
		"deployment_id", payload.DeploymentID,
		"event", payload.Event,
	)
	return nil
}

func (s *WebhookSink) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (s *WebhookSink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
