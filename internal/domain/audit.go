package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Действия, которые попадают в журнал аудита.
const (
	AuditActionRequested  = "deployment.requested"
	AuditActionStarted    = "deployment.started"
	AuditActionCompleted  = "deployment.completed"
	AuditActionFailed     = "deployment.failed"
	AuditActionRolledBack = "deployment.rolled_back"
	AuditActionCancelled  = "deployment.cancel_requested"
)

// Исходы действий.
const (
	AuditOutcomeSuccess = "success"
	AuditOutcomeFailure = "failure"
)

// AuditResourceDeployment — тип ресурса для записей о деплоях.
const AuditResourceDeployment = "deployment"

// AuditEntry — запись журнала аудита. Журнал только дописывается.
type AuditEntry struct {
	ID           uuid.UUID       `json:"id"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Action       string          `json:"action"`
	Actor        string          `json:"actor,omitempty"`
	Before       json.RawMessage `json:"before,omitempty"`
	After        json.RawMessage `json:"after,omitempty"`
	Outcome      string          `json:"outcome"`
	DurationMs   int64           `json:"duration_ms"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewAuditEntry создаёт запись аудита для деплоя.
// before и after сериализуются в JSON, nil пропускается.
func NewAuditEntry(d *Deployment, action, outcome string, before, after any) *AuditEntry {
	e := &AuditEntry{
		ID:           uuid.New(),
		ResourceType: AuditResourceDeployment,
		ResourceID:   d.ID.String(),
		Action:       action,
		Actor:        d.CreatedBy,
		Outcome:      outcome,
		DurationMs:   d.Duration().Milliseconds(),
		Metadata: map[string]any{
			"environment": string(d.Environment),
			"version":     d.Version,
		},
		CreatedAt: time.Now().UTC(),
	}
	e.Before = snapshot(before)
	e.After = snapshot(after)
	return e
}

func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
