package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Deployer/internal/mq"
)

// StatusPublisher — часть mq.Publisher, нужная MQSink.
type StatusPublisher interface {
	PublishDeploymentStatus(ctx context.Context, payload mq.DeploymentStatusPayload) error
}

// MQSink публикует событие в RabbitMQ отдельным сообщением на каждый канал.
type MQSink struct {
	Publisher StatusPublisher
}

// Notify реализует Sink.
func (s MQSink) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, channel := range e.Channels {
		err := s.Publisher.PublishDeploymentStatus(ctx, Payload(e, channel))
		if err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

// Payload переводит событие в сообщение для канала.
func Payload(e Event, channel string) mq.DeploymentStatusPayload {
	return mq.DeploymentStatusPayload{
		DeploymentID:   e.DeploymentID,
		Channel:        channel,
		Event:          string(e.Type),
		Environment:    string(e.Environment),
		Version:        e.Version,
		Status:         string(e.Status),
		TotalSteps:     e.TotalSteps,
		CompletedSteps: e.CompletedSteps,
		FailedSteps:    e.FailedSteps,
		SkippedSteps:   e.SkippedSteps,
		Error:          e.Error,
		Actor:          e.Actor,
	}
}
