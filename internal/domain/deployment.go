package domain

import (
	"time"

	"github.com/google/uuid"
)

// Deployment — один запуск деплоя в окружение.
//
// Deployment создаётся при отправке конфигурации (API, CLI, scheduler)
// и изменяется только координатором, который его ведёт.
type Deployment struct {
	// ID — уникальный идентификатор деплоя.
	ID uuid.UUID `json:"id"`

	// Environment — целевое окружение.
	Environment Environment `json:"environment"`

	// Type — вид деплоя.
	Type DeploymentType `json:"type"`

	// Version — метка версии (git sha, semver).
	Version string `json:"version"`

	// Status — текущий статус.
	Status DeploymentStatus `json:"status"`

	// Счётчики шагов, заполняются по ходу выполнения.
	TotalSteps     int `json:"total_steps"`
	CompletedSteps int `json:"completed_steps"`
	FailedSteps    int `json:"failed_steps"`
	SkippedSteps   int `json:"skipped_steps"`

	// Config — снимок конфигурации, с которой запущен деплой.
	Config DeploymentConfig `json:"config"`

	// Error — сводка ошибок, включая ошибки отката.
	Error string `json:"error,omitempty"`

	// CreatedBy — кто запустил деплой.
	CreatedBy string `json:"created_by,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewDeployment создаёт деплой в статусе pending.
func NewDeployment(cfg DeploymentConfig, actor string) *Deployment {
	return &Deployment{
		ID:          uuid.New(),
		Environment: cfg.Environment,
		Type:        cfg.DeploymentType,
		Version:     cfg.Version,
		Status:      DeploymentStatusPending,
		Config:      cfg,
		CreatedBy:   actor,
		CreatedAt:   time.Now().UTC(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если деплой ещё не завершён.
func (d *Deployment) Duration() time.Duration {
	if d.StartedAt == nil || d.CompletedAt == nil {
		return 0
	}
	return d.CompletedAt.Sub(*d.StartedAt)
}

// IsFinished возвращает true, если деплой завершён.
func (d *Deployment) IsFinished() bool {
	return d.Status.IsTerminal()
}

// MarkRunning переводит деплой в running.
func (d *Deployment) MarkRunning() {
	now := time.Now().UTC()
	d.Status = DeploymentStatusRunning
	d.StartedAt = &now
}

// MarkCompleted переводит деплой в completed.
func (d *Deployment) MarkCompleted() {
	d.finish(DeploymentStatusCompleted, "")
}

// MarkFailed переводит деплой в failed.
func (d *Deployment) MarkFailed(err string) {
	d.finish(DeploymentStatusFailed, err)
}

// MarkRolledBack переводит деплой в rolled_back.
func (d *Deployment) MarkRolledBack(err string) {
	d.finish(DeploymentStatusRolledBack, err)
}

func (d *Deployment) finish(status DeploymentStatus, err string) {
	now := time.Now().UTC()
	d.Status = status
	d.CompletedAt = &now
	d.Error = err
}

// SetCounts пересчитывает счётчики по списку шагов.
func (d *Deployment) SetCounts(steps []*Step) {
	d.TotalSteps = len(steps)
	d.CompletedSteps, d.FailedSteps, d.SkippedSteps = 0, 0, 0
	for _, s := range steps {
		switch s.Status {
		case StepStatusCompleted:
			d.CompletedSteps++
		case StepStatusFailed:
			d.FailedSteps++
		case StepStatusSkipped:
			d.SkippedSteps++
		}
	}
}
