package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/repo"
	"github.com/shaiso/Deployer/internal/runner"
	"github.com/shaiso/Deployer/internal/telemetry"
)

const testConfig = `
environment: staging
deploymentType: full
version: v2.0.0
scope:
  core: true
  components: [api]
rollback:
  enabled: true
commands:
  deploy:
    command: ./deploy.sh {{ .Version }}
    rollback: ./deploy.sh --revert
  component:
    command: ./component.sh {{ .Component }}
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return path
}

type apiStub struct {
	mu       sync.Mutex
	body     string
	actor    string
	cancelBy string
}

func newAPIStub(t *testing.T) (*apiStub, *Client) {
	t.Helper()
	stub := &apiStub{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/deployments", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		stub.mu.Lock()
		stub.body = string(data)
		stub.actor = r.Header.Get("X-Deployer-Actor")
		stub.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"data":{"id":"d-1","environment":"staging","version":"v2.0.0","status":"pending"}}`)
	})
	mux.HandleFunc("GET /api/v1/deployments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "failed", r.URL.Query().Get("status"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		io.WriteString(w, `{"data":[{"id":"d-1","status":"failed"}],"total":1}`)
	})
	mux.HandleFunc("GET /api/v1/deployments/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "d-1" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"code":"NOT_FOUND","message":"deployment not found"}}`)
			return
		}
		io.WriteString(w, `{"data":{"id":"d-1","status":"completed","total_steps":2,"completed_steps":2}}`)
	})
	mux.HandleFunc("GET /api/v1/deployments/{id}/steps", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[{"id":"deploy","status":"completed"},{"id":"component-api","status":"completed","depends_on":["deploy"]}],"total":2}`)
	})
	mux.HandleFunc("POST /api/v1/deployments/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Actor string `json:"actor"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		stub.mu.Lock()
		stub.cancelBy = req.Actor
		stub.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"data":{"id":"d-1","status":"running"}}`)
	})
	mux.HandleFunc("POST /api/v1/plans", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":"INVALID_CONFIG","message":"invalid deployment config","details":["environment: required","version: required"]}}`)
	})
	mux.HandleFunc("GET /api/v1/schedules", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[{"name":"nightly","cron_expr":"0 3 * * *","enabled":true}],"total":1}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return stub, NewClient(srv.URL+"/", "alice")
}

func TestClient_CreateDeployment(t *testing.T) {
	stub, client := newAPIStub(t)

	d, err := client.CreateDeployment([]byte(testConfig))
	require.NoError(t, err)

	assert.Equal(t, "d-1", d.ID)
	assert.Equal(t, "pending", d.Status)
	assert.False(t, d.IsFinished())
	assert.Equal(t, testConfig, stub.body, "config is sent as is")
	assert.Equal(t, "alice", stub.actor)
}

func TestClient_Reads(t *testing.T) {
	_, client := newAPIStub(t)

	list, err := client.ListDeployments(ListDeploymentsOpts{Status: "failed", Limit: 5})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "failed", list[0].Status)

	d, err := client.GetDeployment("d-1")
	require.NoError(t, err)
	assert.True(t, d.IsFinished())
	assert.Equal(t, "2/2", stepCounts(d))

	steps, err := client.ListSteps("d-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, []string{"deploy"}, steps[1].DependsOn)

	schedules, err := client.ListSchedules()
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "nightly", schedules[0].Name)
}

func TestClient_WaitDeployment(t *testing.T) {
	_, client := newAPIStub(t)

	d, err := client.WaitDeployment("d-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "completed", d.Status)
}

func TestClient_CancelSendsActor(t *testing.T) {
	stub, client := newAPIStub(t)

	_, err := client.CancelDeployment("d-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", stub.cancelBy)
}

func TestClient_Errors(t *testing.T) {
	_, client := newAPIStub(t)

	_, err := client.GetDeployment("missing")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND: deployment not found", err.Error())

	_, err = client.Plan([]byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_CONFIG")
	assert.Contains(t, err.Error(), "  - version: required")
}

func TestDeployShowCmd(t *testing.T) {
	_, client := newAPIStub(t)
	var stdout bytes.Buffer

	cmd := NewDeployCmd(
		func() *Client { return client },
		func() *Output { return NewOutputTo(false, &stdout, io.Discard) },
	)
	cmd.SetArgs([]string{"show", "d-1"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stdout.String(), "completed")
	assert.Contains(t, stdout.String(), "2/2")
}

func TestPlanCmd(t *testing.T) {
	var stdout bytes.Buffer

	cmd := NewPlanCmd(func() *Output { return NewOutputTo(true, &stdout, io.Discard) })
	cmd.SetArgs([]string{"-f", writeConfig(t)})
	require.NoError(t, cmd.Execute())

	var plan struct {
		Version string        `json:"version"`
		Steps   []domain.Step `json:"steps"`
		Order   []string      `json:"order"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &plan))

	assert.Equal(t, "v2.0.0", plan.Version)
	assert.Equal(t, []string{"deploy", "component-api"}, plan.Order)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "./deploy.sh --revert", plan.Steps[0].Compensate.Run)
}

func TestPlanCmd_MissingFile(t *testing.T) {
	cmd := NewPlanCmd(func() *Output { return NewOutputTo(false, io.Discard, io.Discard) })
	cmd.SetArgs([]string{"-f", filepath.Join(t.TempDir(), "nope.yaml")})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	assert.Error(t, cmd.Execute())
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingRunner) Execute(_ context.Context, cmd domain.Command, _ runner.Options) (*runner.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd.Run)
	return &runner.Result{Success: true}, nil
}

func TestRunLocal(t *testing.T) {
	cfg := domain.DeploymentConfig{
		Environment:    domain.EnvironmentStaging,
		DeploymentType: domain.DeploymentTypeFull,
		Version:        "v2.0.0",
		Scope:          domain.ScopeConfig{Core: true},
		Commands: domain.CommandsConfig{
			Deploy: &domain.StageConfig{Command: domain.Command{Run: "./deploy.sh {{ .Version }}"}},
		},
	}
	r := &recordingRunner{}
	store := repo.NewMemoryStore()
	logger := telemetry.NewLogger(io.Discard, "error", "text")

	d, err := runLocal(context.Background(), store, r, logger, cfg, "tester")
	require.NoError(t, err)

	assert.Equal(t, domain.DeploymentStatusCompleted, d.Status)
	assert.Equal(t, "tester", d.CreatedBy)
	assert.Equal(t, []string{"./deploy.sh v2.0.0"}, r.calls)
}
