package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/domain"
)

// EventType — вид уведомления.
type EventType string

// Виды уведомлений.
const (
	EventStarted   EventType = "deployment.started"
	EventCompleted EventType = "deployment.completed"
	EventFailed    EventType = "deployment.failed"
)

// Event — уведомление о деплое.
type Event struct {
	Type           EventType               `json:"type"`
	DeploymentID   uuid.UUID               `json:"deployment_id"`
	Environment    domain.Environment      `json:"environment"`
	Version        string                  `json:"version"`
	Status         domain.DeploymentStatus `json:"status"`
	TotalSteps     int                     `json:"total_steps"`
	CompletedSteps int                     `json:"completed_steps"`
	FailedSteps    int                     `json:"failed_steps"`
	SkippedSteps   int                     `json:"skipped_steps"`
	Error          string                  `json:"error,omitempty"`
	Actor          string                  `json:"actor,omitempty"`
	Channels       []string                `json:"channels,omitempty"`
	At             time.Time               `json:"at"`
}

// NewEvent снимает состояние деплоя в событие.
func NewEvent(t EventType, d *domain.Deployment) Event {
	return Event{
		Type:           t,
		DeploymentID:   d.ID,
		Environment:    d.Environment,
		Version:        d.Version,
		Status:         d.Status,
		TotalSteps:     d.TotalSteps,
		CompletedSteps: d.CompletedSteps,
		FailedSteps:    d.FailedSteps,
		SkippedSteps:   d.SkippedSteps,
		Error:          d.Error,
		Actor:          d.CreatedBy,
		Channels:       append([]string(nil), d.Config.Notifications.Channels...),
		At:             time.Now().UTC(),
	}
}

// Wanted решает, нужно ли уведомление по настройкам деплоя.
func Wanted(t EventType, cfg domain.NotificationsConfig) bool {
	if len(cfg.Channels) == 0 {
		return false
	}
	switch t {
	case EventStarted:
		return cfg.OnStart
	case EventCompleted:
		return cfg.OnComplete
	case EventFailed:
		return cfg.OnFailure
	default:
		return false
	}
}

// Sink принимает уведомления.
type Sink interface {
	Notify(ctx context.Context, e Event) error
}

// LogSink пишет уведомления в лог.
type LogSink struct {
	Logger *slog.Logger
}

// Notify реализует Sink.
func (s LogSink) Notify(_ context.Context, e Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("deployment notification",
		"event", e.Type,
		"deployment_id", e.DeploymentID,
		"environment", e.Environment,
		"status", e.Status,
		"channels", e.Channels,
	)
	return nil
}

// Multi рассылает событие всем sink'ам и объединяет их ошибки.
type Multi []Sink

// Notify реализует Sink.
func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
