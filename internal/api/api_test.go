package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Deployer/internal/coordinator"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/repo"
	"github.com/shaiso/Deployer/internal/runner"
	"github.com/shaiso/Deployer/internal/telemetry"
)

const validConfig = `
environment: staging
deploymentType: full
version: v2.0.0
scope:
  core: true
  migrations: true
commands:
  deploy:
    command: ./deploy.sh {{ .Version }}
  migrate:
    command: ./migrate.sh
`

// holdRunner держит "./deploy.sh v2.0.0", пока открыт hold.
type holdRunner struct {
	hold    chan struct{}
	started chan struct{}
}

func (r *holdRunner) Execute(_ context.Context, cmd domain.Command, _ runner.Options) (*runner.Result, error) {
	if r.hold != nil && strings.HasPrefix(cmd.Run, "./deploy.sh") {
		close(r.started)
		<-r.hold
	}
	return &runner.Result{Success: true}, nil
}

type testServer struct {
	srv      *httptest.Server
	store    *repo.MemoryStore
	coord    *coordinator.Coordinator
	registry *prometheus.Registry
}

type fixedSchedules []domain.Schedule

func (s fixedSchedules) Schedules() []domain.Schedule { return s }

func newTestServer(t *testing.T, r runner.Runner, schedules ScheduleLister) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	store := repo.NewMemoryStore()
	coord := coordinator.New(coordinator.Config{Store: store, Runner: r, Metrics: metrics, Logger: logger})

	h := NewHandler(Config{
		Store:     store,
		Deployer:  coord,
		Schedules: schedules,
		Metrics:   metrics,
		Logger:    logger,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Stop(ctx)
	})
	return &testServer{srv: srv, store: store, coord: coord, registry: reg}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(ActorHeader, "alice")

	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (s *testServer) waitFinished(t *testing.T, id uuid.UUID) {
	t.Helper()
	if h, ok := s.coord.Handle(id); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := h.Wait(ctx)
		require.NoError(t, err)
	}
}

func TestCreateDeployment(t *testing.T) {
	s := newTestServer(t, &holdRunner{}, nil)

	resp, body := s.do(t, http.MethodPost, "/api/v1/deployments", validConfig)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	created := decode[DeploymentResponse](t, body["data"])
	assert.Equal(t, "staging", created.Environment)
	assert.Equal(t, "v2.0.0", created.Version)
	assert.Equal(t, "alice", created.CreatedBy)
	assert.Equal(t, "/api/v1/deployments/"+created.ID.String(), resp.Header.Get("Location"))

	s.waitFinished(t, created.ID)

	resp, body = s.do(t, http.MethodGet, "/api/v1/deployments/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[DeploymentResponse](t, body["data"])
	assert.Equal(t, string(domain.DeploymentStatusCompleted), got.Status)
	assert.Equal(t, 2, got.CompletedSteps)
	require.NotNil(t, got.Config)
	assert.True(t, got.Config.Scope.Migrations)

	resp, body = s.do(t, http.MethodGet, "/api/v1/deployments/"+created.ID.String()+"/steps", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	steps := decode[[]StepResponse](t, body["data"])
	require.Len(t, steps, 2)
	assert.Equal(t, "deploy", steps[0].ID)
	assert.Equal(t, "./deploy.sh v2.0.0", steps[0].Command)
	assert.Equal(t, []string{"deploy"}, steps[1].DependsOn)
	assert.Equal(t, "completed", steps[1].Status)

	resp, body = s.do(t, http.MethodGet, "/api/v1/deployments/"+created.ID.String()+"/audit", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	audit := decode[[]AuditResponse](t, body["data"])
	require.Len(t, audit, 3)
	assert.Equal(t, domain.AuditActionRequested, audit[0].Action)
	assert.Equal(t, domain.AuditActionCompleted, audit[2].Action)

	assert.Equal(t, 1, testutil.CollectAndCount(s.registry, "deployer_deployments_finished_total"))
}

func TestCreateDeployment_InvalidConfig(t *testing.T) {
	s := newTestServer(t, &holdRunner{}, nil)

	resp, body := s.do(t, http.MethodPost, "/api/v1/deployments", `
environment: moon
deploymentType: full
scope:
  core: true
`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	detail := decode[ErrorDetail](t, body["error"])
	assert.Equal(t, ErrCodeInvalidConfig, detail.Code)
	assert.Len(t, detail.Details, 2, "unknown environment and missing deploy command")

	list, err := s.store.ListDeployments(context.Background(), repo.DeploymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "rejected configs are not recorded")
}

func TestCreateDeployment_UnknownField(t *testing.T) {
	s := newTestServer(t, &holdRunner{}, nil)

	resp, body := s.do(t, http.MethodPost, "/api/v1/deployments", validConfig+"surprise: true\n")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body["error"]), "surprise")
}

func TestListDeployments(t *testing.T) {
	s := newTestServer(t, &holdRunner{}, nil)
	ctx := context.Background()

	for _, env := range []domain.Environment{domain.EnvironmentDev, domain.EnvironmentProd, domain.EnvironmentDev} {
		d := domain.NewDeployment(domain.DeploymentConfig{Environment: env, DeploymentType: domain.DeploymentTypeFull}, "bob")
		require.NoError(t, s.store.CreateDeployment(ctx, d))
	}

	resp, body := s.do(t, http.MethodGet, "/api/v1/deployments?environment=dev", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]DeploymentResponse](t, body["data"]), 2)

	resp, body = s.do(t, http.MethodGet, "/api/v1/deployments?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]DeploymentResponse](t, body["data"]), 1)

	resp, _ = s.do(t, http.MethodGet, "/api/v1/deployments?status=unknown", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/api/v1/deployments?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetDeployment_Errors(t *testing.T) {
	s := newTestServer(t, &holdRunner{}, nil)

	resp, body := s.do(t, http.MethodGet, "/api/v1/deployments/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrCodeBadRequest, decode[ErrorDetail](t, body["error"]).Code)

	resp, body = s.do(t, http.MethodGet, "/api/v1/deployments/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrCodeNotFound, decode[ErrorDetail](t, body["error"]).Code)

	resp, _ = s.do(t, http.MethodGet, "/api/v1/deployments/"+uuid.NewString()+"/steps", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// Конфигурация из GET принимается POST без изменений.
func TestGetDeployment_ConfigRoundTrip(t *testing.T) {
	s := newTestServer(t, &holdRunner{}, nil)

	resp, body := s.do(t, http.MethodPost, "/api/v1/deployments", `
environment: prod
deploymentType: hotfix
version: v2.0.1
scope:
  core: true
  components: [api]
parallelization:
  enabled: true
  maxConcurrency: 2
  failFast: true
hooks:
  onFailure: [./page.sh]
healthChecks:
  expectedStatus: 204
rollback:
  enabled: true
  autoRollbackOnFailure: true
commands:
  deploy:
    command: ./deploy.sh {{ .Version }}
    rollback: ./deploy.sh --revert
    healthCheck:
      url: http://svc/healthz
      timeoutSec: 3
  component:
    command:
      type: http
      url: http://deployer.internal/{{ .Component }}
      workDir: /srv
policy:
  stepTimeoutSec: 60
  retryBackoff: exponential
`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	created := decode[DeploymentResponse](t, body["data"])
	s.waitFinished(t, created.ID)

	resp, body = s.do(t, http.MethodGet, "/api/v1/deployments/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decode[map[string]json.RawMessage](t, body["data"])
	rawConfig := string(data["config"])
	assert.Contains(t, rawConfig, `"deploymentType":"hotfix"`)
	assert.Contains(t, rawConfig, `"maxConcurrency":2`)

	resp, body = s.do(t, http.MethodPost, "/api/v1/deployments", rawConfig)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body["error"]))
	again := decode[DeploymentResponse](t, body["data"])
	s.waitFinished(t, again.ID)

	stored, err := s.store.GetDeployment(context.Background(), again.ID)
	require.NoError(t, err)
	original, err := s.store.GetDeployment(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, original.Config, stored.Config)
}

func TestCancelDeployment(t *testing.T) {
	r := &holdRunner{hold: make(chan struct{}), started: make(chan struct{})}
	s := newTestServer(t, r, nil)

	resp, body := s.do(t, http.MethodPost, "/api/v1/deployments", validConfig)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := decode[DeploymentResponse](t, body["data"]).ID
	<-r.started

	resp, _ = s.do(t, http.MethodPost, "/api/v1/deployments/"+id.String()+"/cancel", `{"actor":"bob"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	close(r.hold)
	s.waitFinished(t, id)

	d, err := s.store.GetDeployment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.DeploymentStatusFailed, d.Status)

	resp, body = s.do(t, http.MethodPost, "/api/v1/deployments/"+id.String()+"/cancel", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, ErrCodeInvalidState, decode[ErrorDetail](t, body["error"]).Code)

	entries, err := s.store.ListAudit(context.Background(), domain.AuditResourceDeployment, id.String())
	require.NoError(t, err)
	var cancelActor string
	for _, e := range entries {
		if e.Action == domain.AuditActionCancelled {
			cancelActor = e.Actor
		}
	}
	assert.Equal(t, "bob", cancelActor)
}

func TestCreatePlan(t *testing.T) {
	s := newTestServer(t, &holdRunner{}, nil)

	resp, body := s.do(t, http.MethodPost, "/api/v1/plans", `
environment: prod
deploymentType: full
version: v3
parallelization:
  enabled: true
  maxConcurrency: 4
scope:
  components: [api, worker]
commands:
  component:
    command: ./ship.sh {{ .Component }}
    rollback: ./unship.sh {{ .Component }}
`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	plan := decode[PlanResponse](t, body["data"])
	assert.Equal(t, 4, plan.MaxConcurrency)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "component-api", plan.Steps[0].ID)
	assert.Equal(t, "./ship.sh api", plan.Steps[0].Command)
	assert.Equal(t, "./unship.sh api", plan.Steps[0].Compensate)
	assert.Equal(t, "pending", plan.Steps[0].Status)
	assert.ElementsMatch(t, []string{"component-api", "component-worker"}, plan.Order)

	list, err := s.store.ListDeployments(context.Background(), repo.DeploymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "plans are not executed")
}

func TestListSchedules(t *testing.T) {
	next := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)
	s := newTestServer(t, &holdRunner{}, fixedSchedules{{
		Name:      "nightly",
		CronExpr:  "0 3 * * *",
		Timezone:  "UTC",
		Enabled:   true,
		NextDueAt: &next,
		Config:    domain.DeploymentConfig{Environment: domain.EnvironmentDev, Version: "nightly"},
	}})

	resp, body := s.do(t, http.MethodGet, "/api/v1/schedules", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	schedules := decode[[]ScheduleResponse](t, body["data"])
	require.Len(t, schedules, 1)
	assert.Equal(t, "nightly", schedules[0].Name)
	assert.Equal(t, "dev", schedules[0].Environment)
	assert.Equal(t, next, *schedules[0].NextDueAt)
}

func TestListSchedules_Disabled(t *testing.T) {
	s := newTestServer(t, &holdRunner{}, nil)

	resp, body := s.do(t, http.MethodGet, "/api/v1/schedules", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body["data"]))
}

func TestMiddleware_RecoveryAndStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	h := Chain(Recovery(logger), Metrics(metrics), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	h = Chain(Metrics(metrics))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		NotFound(w, "nope")
	}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "deployer_api_http_requests_total"))
}
