package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, Client не импортирует internal/api) ---

// DeploymentResponse — деплой из API.
type DeploymentResponse struct {
	ID             string         `json:"id"`
	Environment    string         `json:"environment"`
	Type           string         `json:"type"`
	Version        string         `json:"version"`
	Status         string         `json:"status"`
	TotalSteps     int            `json:"total_steps"`
	CompletedSteps int            `json:"completed_steps"`
	FailedSteps    int            `json:"failed_steps"`
	SkippedSteps   int            `json:"skipped_steps"`
	Error          string         `json:"error,omitempty"`
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedAt      string         `json:"created_at"`
	StartedAt      string         `json:"started_at,omitempty"`
	CompletedAt    string         `json:"completed_at,omitempty"`
	DurationMs     int64          `json:"duration_ms"`
	Config         map[string]any `json:"config,omitempty"`
}

// IsFinished возвращает true для терминального статуса.
func (d *DeploymentResponse) IsFinished() bool {
	switch d.Status {
	case "completed", "failed", "rolled_back":
		return true
	default:
		return false
	}
}

// StepResponse — шаг из API.
type StepResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Ordinal     int      `json:"ordinal"`
	Command     string   `json:"command"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Compensate  string   `json:"compensate,omitempty"`
	HealthCheck string   `json:"health_check,omitempty"`
	Retries     int      `json:"retries"`
	TimeoutSec  int      `json:"timeout_sec"`
	Status      string   `json:"status"`
	Attempts    int      `json:"attempts"`
	Output      string   `json:"output,omitempty"`
	Error       string   `json:"error,omitempty"`
	StartedAt   string   `json:"started_at,omitempty"`
	FinishedAt  string   `json:"finished_at,omitempty"`
	DurationMs  int64    `json:"duration_ms"`
}

// AuditResponse — запись аудита из API.
type AuditResponse struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor,omitempty"`
	Outcome    string         `json:"outcome"`
	DurationMs int64          `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// PlanResponse — план из API.
type PlanResponse struct {
	Environment    string         `json:"environment"`
	Version        string         `json:"version"`
	MaxConcurrency int            `json:"max_concurrency"`
	Steps          []StepResponse `json:"steps"`
	Order          []string       `json:"order"`
}

// ScheduleResponse — расписание из API.
type ScheduleResponse struct {
	Name             string `json:"name"`
	CronExpr         string `json:"cron_expr,omitempty"`
	IntervalSec      int    `json:"interval_sec,omitempty"`
	Timezone         string `json:"timezone"`
	Enabled          bool   `json:"enabled"`
	Environment      string `json:"environment"`
	Version          string `json:"version"`
	NextDueAt        string `json:"next_due_at,omitempty"`
	LastRunAt        string `json:"last_run_at,omitempty"`
	LastDeploymentID string `json:"last_deployment_id,omitempty"`
}

// ListDeploymentsOpts — параметры фильтрации деплоев.
type ListDeploymentsOpts struct {
	Environment string
	Status      string
	Limit       int
	Offset      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Deployer API.
type Client struct {
	baseURL    string
	actor      string
	httpClient *http.Client
}

// NewClient создаёт клиент для API. actor передаётся в заголовке
// X-Deployer-Actor и попадает в аудит.
func NewClient(baseURL, actor string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		actor:   actor,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Deployments ---

// CreateDeployment запускает деплой. config — YAML или JSON документ.
func (c *Client) CreateDeployment(config []byte) (*DeploymentResponse, error) {
	var d DeploymentResponse
	err := c.doData(http.MethodPost, "/api/v1/deployments", rawBody(config), &d)
	return &d, err
}

// ListDeployments возвращает деплои, новые первыми.
func (c *Client) ListDeployments(opts ListDeploymentsOpts) ([]DeploymentResponse, error) {
	params := url.Values{}
	if opts.Environment != "" {
		params.Set("environment", opts.Environment)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var deployments []DeploymentResponse
	err := c.list("/api/v1/deployments", params, &deployments)
	return deployments, err
}

// GetDeployment возвращает деплой по ID.
func (c *Client) GetDeployment(id string) (*DeploymentResponse, error) {
	var d DeploymentResponse
	err := c.get("/api/v1/deployments/"+id, &d)
	return &d, err
}

// ListSteps возвращает шаги деплоя.
func (c *Client) ListSteps(id string) ([]StepResponse, error) {
	var steps []StepResponse
	err := c.list("/api/v1/deployments/"+id+"/steps", nil, &steps)
	return steps, err
}

// ListAudit возвращает журнал аудита деплоя.
func (c *Client) ListAudit(id string) ([]AuditResponse, error) {
	var entries []AuditResponse
	err := c.list("/api/v1/deployments/"+id+"/audit", nil, &entries)
	return entries, err
}

// CancelDeployment запрашивает отмену деплоя.
func (c *Client) CancelDeployment(id string) (*DeploymentResponse, error) {
	var d DeploymentResponse
	err := c.post("/api/v1/deployments/"+id+"/cancel", map[string]string{"actor": c.actor}, &d)
	return &d, err
}

// WaitDeployment опрашивает деплой, пока он не завершится.
func (c *Client) WaitDeployment(id string, interval, timeout time.Duration) (*DeploymentResponse, error) {
	deadline := time.Now().Add(timeout)
	for {
		d, err := c.GetDeployment(id)
		if err != nil {
			return nil, err
		}
		if d.IsFinished() {
			return d, nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return d, fmt.Errorf("deployment %s is still %s after %s", id, d.Status, timeout)
		}
		time.Sleep(interval)
	}
}

// --- Plans ---

// Plan строит план на сервере без запуска.
func (c *Client) Plan(config []byte) (*PlanResponse, error) {
	var p PlanResponse
	err := c.doData(http.MethodPost, "/api/v1/plans", rawBody(config), &p)
	return &p, err
}

// --- Schedules ---

// ListSchedules возвращает расписания.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// --- HTTP helpers ---

// rawBody — тело запроса, которое отправляется как есть.
type rawBody []byte

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case rawBody:
		bodyReader = bytes.NewReader(b)
		contentType = "application/yaml"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.actor != "" {
		req.Header.Set("X-Deployer-Actor", c.actor)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	msg := fmt.Sprintf("%s: %s", er.Error.Code, er.Error.Message)
	if len(er.Error.Details) > 0 {
		msg += "\n  - " + strings.Join(er.Error.Details, "\n  - ")
	}
	return fmt.Errorf("%s", msg)
}
