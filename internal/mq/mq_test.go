package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTopology(t *testing.T) {
	topo := DefaultTopology()

	exchanges := make(map[Exchange]string)
	for _, ex := range topo.Exchanges {
		exchanges[ex.Name] = ex.Kind
	}
	assert.Equal(t, "topic", exchanges[ExchangeNotifications])
	assert.Equal(t, "direct", exchanges[ExchangeDLQ])

	declared := make(map[Queue]bool)
	for _, q := range topo.Queues {
		declared[q.Name] = true
		if q.Name == QueueNotificationsRelay {
			assert.Equal(t, string(ExchangeDLQ), q.Args["x-dead-letter-exchange"])
		}
	}

	for _, b := range topo.Bindings {
		assert.True(t, declared[b.Queue], "binding to undeclared queue %s", b.Queue)
		_, ok := exchanges[b.Exchange]
		assert.True(t, ok, "binding to undeclared exchange %s", b.Exchange)
	}
}

func TestParsePayload(t *testing.T) {
	id := uuid.New()
	msg := NewMessage(MessageTypeDeploymentStatus, DeploymentStatusPayload{
		DeploymentID: id,
		Channel:      "slack-deploys",
		Status:       "failed",
		FailedSteps:  1,
	})

	// Сообщение проходит через JSON, как при доставке из очереди.
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	var delivered Message
	require.NoError(t, json.Unmarshal(body, &delivered))

	payload, err := ParsePayload[DeploymentStatusPayload](&delivered)
	require.NoError(t, err)
	assert.Equal(t, id, payload.DeploymentID)
	assert.Equal(t, "slack-deploys", payload.Channel)
	assert.Equal(t, 1, payload.FailedSteps)
	assert.Equal(t, MessageTypeDeploymentStatus, delivered.Type)
}

func TestPermanent(t *testing.T) {
	base := errors.New("webhook returned 400")
	err := Permanent(base)

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestConsumer_Process(t *testing.T) {
	handled := 0
	c := NewConsumer(nil, ConsumerConfig{
		Queue: QueueNotificationsRelay,
		Handler: func(_ context.Context, msg *Message) error {
			handled++
			switch msg.ID {
			case "retry":
				return errors.New("temporary")
			case "reject":
				return Permanent(errors.New("bad request"))
			}
			return nil
		},
	})

	body := func(id string) []byte {
		data, _ := json.Marshal(Message{ID: id, Type: MessageTypeDeploymentStatus})
		return data
	}

	ctx := context.Background()
	assert.Equal(t, verdictAck, c.process(ctx, body("ok")))
	assert.Equal(t, verdictRequeue, c.process(ctx, body("retry")))
	assert.Equal(t, verdictDeadLetter, c.process(ctx, body("reject")))
	assert.Equal(t, verdictDeadLetter, c.process(ctx, []byte("{not json")))
	assert.Equal(t, 3, handled)
}
