package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/mq"
)

func sampleDeployment() *domain.Deployment {
	d := domain.NewDeployment(domain.DeploymentConfig{
		Environment:    domain.EnvironmentProd,
		DeploymentType: domain.DeploymentTypeHotfix,
		Version:        "v2.0.1",
		Notifications: domain.NotificationsConfig{
			Channels:  []string{"slack-deploys", "pager"},
			OnFailure: true,
		},
	}, "release-bot")
	d.MarkRunning()
	d.MarkFailed("step migrate failed")
	return d
}

func TestWanted(t *testing.T) {
	cfg := domain.NotificationsConfig{Channels: []string{"c"}, OnStart: true, OnFailure: true}

	assert.True(t, Wanted(EventStarted, cfg))
	assert.False(t, Wanted(EventCompleted, cfg))
	assert.True(t, Wanted(EventFailed, cfg))
	assert.False(t, Wanted(EventFailed, domain.NotificationsConfig{OnFailure: true}), "no channels")
}

func TestNewEvent(t *testing.T) {
	d := sampleDeployment()
	e := NewEvent(EventFailed, d)

	assert.Equal(t, d.ID, e.DeploymentID)
	assert.Equal(t, domain.DeploymentStatusFailed, e.Status)
	assert.Equal(t, "step migrate failed", e.Error)
	assert.Equal(t, []string{"slack-deploys", "pager"}, e.Channels)

	e.Channels[0] = "changed"
	assert.Equal(t, "slack-deploys", d.Config.Notifications.Channels[0], "event must not alias the config")
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []mq.DeploymentStatusPayload
	failOn   string
}

func (p *recordingPublisher) PublishDeploymentStatus(_ context.Context, payload mq.DeploymentStatusPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if payload.Channel == p.failOn {
		return errors.New("channel closed")
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestMQSink_OneMessagePerChannel(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEvent(EventFailed, sampleDeployment())

	require.NoError(t, MQSink{Publisher: pub}.Notify(context.Background(), e))
	require.Len(t, pub.payloads, 2)
	assert.Equal(t, "slack-deploys", pub.payloads[0].Channel)
	assert.Equal(t, "pager", pub.payloads[1].Channel)
	assert.Equal(t, "deployment.failed", pub.payloads[0].Event)
	assert.Equal(t, "prod", pub.payloads[0].Environment)
}

func TestMQSink_ContinuesAfterError(t *testing.T) {
	pub := &recordingPublisher{failOn: "slack-deploys"}
	err := MQSink{Publisher: pub}.Notify(context.Background(), NewEvent(EventFailed, sampleDeployment()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack-deploys")
	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "pager", pub.payloads[0].Channel)
}

type countingSink struct {
	calls int
	err   error
}

func (s *countingSink) Notify(context.Context, Event) error {
	s.calls++
	return s.err
}

func TestMulti(t *testing.T) {
	ok := &countingSink{}
	bad := &countingSink{err: errors.New("down")}

	err := Multi{ok, nil, bad, LogSink{}}.Notify(context.Background(), NewEvent(EventStarted, sampleDeployment()))
	assert.EqualError(t, err, "down")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)
}

func TestWebhookSink(t *testing.T) {
	var mu sync.Mutex
	var got []mq.DeploymentStatusPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var p mq.DeploymentStatusPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink := &WebhookSink{URLs: map[string]string{
		"slack-deploys": server.URL + "/slack",
		"broken":        server.URL + "/broken",
	}}
	ctx := context.Background()

	e := NewEvent(EventFailed, sampleDeployment())
	require.NoError(t, sink.Notify(ctx, e), "channel without URL is skipped")
	require.Len(t, got, 1)
	assert.Equal(t, e.DeploymentID, got[0].DeploymentID)

	err := sink.Deliver(ctx, mq.DeploymentStatusPayload{Channel: "broken"})
	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	assert.Equal(t, http.StatusBadRequest, delivery.StatusCode)
	assert.False(t, delivery.Retryable())
}
