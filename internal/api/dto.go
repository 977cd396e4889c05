package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/domain"
)

// Deployment DTOs

// DeploymentResponse — ответ с деплоем.
type DeploymentResponse struct {
	ID             uuid.UUID                `json:"id"`
	Environment    string                   `json:"environment"`
	Type           string                   `json:"type"`
	Version        string                   `json:"version"`
	Status         string                   `json:"status"`
	TotalSteps     int                      `json:"total_steps"`
	CompletedSteps int                      `json:"completed_steps"`
	FailedSteps    int                      `json:"failed_steps"`
	SkippedSteps   int                      `json:"skipped_steps"`
	Error          string                   `json:"error,omitempty"`
	CreatedBy      string                   `json:"created_by,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	StartedAt      *time.Time               `json:"started_at,omitempty"`
	CompletedAt    *time.Time               `json:"completed_at,omitempty"`
	DurationMs     int64                    `json:"duration_ms"`
	Config         *domain.DeploymentConfig `json:"config,omitempty"`
}

// DeploymentFromDomain конвертирует domain.Deployment в DeploymentResponse.
// Конфигурация включается только при withConfig.
func DeploymentFromDomain(d *domain.Deployment, withConfig bool) DeploymentResponse {
	resp := DeploymentResponse{
		ID:             d.ID,
		Environment:    string(d.Environment),
		Type:           string(d.Type),
		Version:        d.Version,
		Status:         string(d.Status),
		TotalSteps:     d.TotalSteps,
		CompletedSteps: d.CompletedSteps,
		FailedSteps:    d.FailedSteps,
		SkippedSteps:   d.SkippedSteps,
		Error:          d.Error,
		CreatedBy:      d.CreatedBy,
		CreatedAt:      d.CreatedAt,
		StartedAt:      d.StartedAt,
		CompletedAt:    d.CompletedAt,
		DurationMs:     d.Duration().Milliseconds(),
	}
	if withConfig {
		cfg := d.Config
		resp.Config = &cfg
	}
	return resp
}

// Step DTOs

// StepResponse — ответ с шагом.
type StepResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Ordinal     int        `json:"ordinal"`
	Command     string     `json:"command"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	Compensate  string     `json:"compensate,omitempty"`
	HealthCheck string     `json:"health_check,omitempty"`
	Retries     int        `json:"retries"`
	TimeoutSec  int        `json:"timeout_sec"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
}

// StepFromDomain конвертирует domain.Step в StepResponse.
func StepFromDomain(s *domain.Step) StepResponse {
	resp := StepResponse{
		ID:         s.ID,
		Name:       s.Name,
		Kind:       string(s.Kind),
		Ordinal:    s.Ordinal,
		Command:    s.Command.String(),
		DependsOn:  s.DependsOn,
		Retries:    s.Retries,
		TimeoutSec: s.TimeoutSec,
		Status:     string(s.Status),
		Attempts:   s.Attempts,
		Output:     s.Output,
		Error:      s.Error,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		DurationMs: s.DurationMs,
	}
	if s.Compensate != nil {
		resp.Compensate = s.Compensate.String()
	}
	if s.HealthCheck != nil {
		resp.HealthCheck = s.HealthCheck.URL
	}
	return resp
}

// PlanResponse — результат dry-run планирования.
type PlanResponse struct {
	Environment    string         `json:"environment"`
	Version        string         `json:"version"`
	MaxConcurrency int            `json:"max_concurrency"`
	Steps          []StepResponse `json:"steps"`

	// Order — топологический порядок ID шагов.
	Order []string `json:"order"`
}

// Audit DTOs

// AuditResponse — запись журнала аудита.
type AuditResponse struct {
	ID         uuid.UUID       `json:"id"`
	Action     string          `json:"action"`
	Actor      string          `json:"actor,omitempty"`
	Outcome    string          `json:"outcome"`
	DurationMs int64           `json:"duration_ms"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditFromDomain конвертирует domain.AuditEntry в AuditResponse.
func AuditFromDomain(e *domain.AuditEntry) AuditResponse {
	return AuditResponse{
		ID:         e.ID,
		Action:     e.Action,
		Actor:      e.Actor,
		Outcome:    e.Outcome,
		DurationMs: e.DurationMs,
		Before:     e.Before,
		After:      e.After,
		Metadata:   e.Metadata,
		CreatedAt:  e.CreatedAt,
	}
}

// CancelRequest — необязательное тело запроса отмены.
type CancelRequest struct {
	Actor string `json:"actor,omitempty"`
}

// Schedule DTOs

// ScheduleResponse — ответ с расписанием.
type ScheduleResponse struct {
	Name             string     `json:"name"`
	CronExpr         string     `json:"cron_expr,omitempty"`
	IntervalSec      int        `json:"interval_sec,omitempty"`
	Timezone         string     `json:"timezone"`
	Enabled          bool       `json:"enabled"`
	Environment      string     `json:"environment"`
	Version          string     `json:"version"`
	NextDueAt        *time.Time `json:"next_due_at,omitempty"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
	LastDeploymentID *uuid.UUID `json:"last_deployment_id,omitempty"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		Name:             s.Name,
		CronExpr:         s.CronExpr,
		IntervalSec:      s.IntervalSec,
		Timezone:         s.Timezone,
		Enabled:          s.Enabled,
		Environment:      string(s.Config.Environment),
		Version:          s.Config.Version,
		NextDueAt:        s.NextDueAt,
		LastRunAt:        s.LastRunAt,
		LastDeploymentID: s.LastDeploymentID,
	}
}
