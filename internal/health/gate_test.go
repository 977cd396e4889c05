package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Deployer/internal/domain"
)

// scriptedProbe возвращает заранее заданные ответы по URL.
type scriptedProbe struct {
	mu      sync.Mutex
	results map[string][]error
	calls   map[string]int
}

func newScriptedProbe(results map[string][]error) *scriptedProbe {
	return &scriptedProbe{results: results, calls: make(map[string]int)}
}

func (p *scriptedProbe) Check(_ context.Context, url string, _ int, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.calls[url]
	p.calls[url]++
	seq := p.results[url]
	if len(seq) == 0 {
		return nil
	}
	if n >= len(seq) {
		return seq[len(seq)-1]
	}
	return seq[n]
}

func (p *scriptedProbe) count(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[url]
}

func TestHTTPProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	probe := &HTTPProbe{}
	ctx := context.Background()

	assert.NoError(t, probe.Check(ctx, server.URL+"/ok", http.StatusOK, time.Second))
	assert.Error(t, probe.Check(ctx, server.URL+"/down", http.StatusOK, time.Second))
	assert.NoError(t, probe.Check(ctx, server.URL+"/down", http.StatusServiceUnavailable, time.Second))

	err := probe.Check(ctx, server.URL+"/slow", http.StatusOK, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_CheckStep(t *testing.T) {
	probe := newScriptedProbe(map[string][]error{
		"http://bad": {errors.New("connection refused")},
	})
	gate := NewGate(Config{Probe: probe})
	ctx := context.Background()

	assert.NoError(t, gate.CheckStep(ctx, nil))
	assert.NoError(t, gate.CheckStep(ctx, &domain.HealthCheck{URL: "http://good"}))

	err := gate.CheckStep(ctx, &domain.HealthCheck{URL: "http://bad"})
	require.ErrorIs(t, err, ErrHealthCheckFailed)

	var failure *CheckFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "http://bad", failure.URL)
	assert.Equal(t, 1, failure.Attempts)
}

func TestGate_CheckDeployment_Retries(t *testing.T) {
	probe := newScriptedProbe(map[string][]error{
		"http://a": {errors.New("warming up"), nil},
		"http://b": nil,
	})
	gate := NewGate(Config{Probe: probe})

	err := gate.CheckDeployment(context.Background(), domain.HealthChecksConfig{
		Enabled:   true,
		Endpoints: []string{"http://a", "http://b"},
		Retries:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, probe.count("http://a"))
	assert.Equal(t, 1, probe.count("http://b"))
}

func TestGate_CheckDeployment_Failure(t *testing.T) {
	probe := newScriptedProbe(map[string][]error{
		"http://down": {errors.New("503")},
	})
	gate := NewGate(Config{Probe: probe})

	err := gate.CheckDeployment(context.Background(), domain.HealthChecksConfig{
		Enabled:   true,
		Endpoints: []string{"http://down"},
		Retries:   1,
	})
	require.ErrorIs(t, err, ErrHealthCheckFailed)
	assert.Equal(t, 2, probe.count("http://down"))
}

func TestGate_CheckDeployment_Disabled(t *testing.T) {
	probe := newScriptedProbe(nil)
	gate := NewGate(Config{Probe: probe})

	err := gate.CheckDeployment(context.Background(), domain.HealthChecksConfig{
		Enabled:   false,
		Endpoints: []string{"http://x"},
	})
	require.NoError(t, err)
	assert.Zero(t, probe.count("http://x"))
}

// Endpoints проверяются одновременно, а не по очереди.
func TestGate_CheckDeployment_Concurrent(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gate := NewGate(Config{})
	err := gate.CheckDeployment(context.Background(), domain.HealthChecksConfig{
		Enabled:   true,
		Endpoints: []string{server.URL + "/1", server.URL + "/2", server.URL + "/3"},
	})
	require.NoError(t, err)
	assert.Greater(t, maxInFlight.Load(), int32(1))
}
