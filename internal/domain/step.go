package domain

import (
	"time"

	"github.com/google/uuid"
)

// Step — узел графа деплоя.
//
// Step создаётся Plan Builder'ом из конфигурации деплоя. Статус шага
// меняет только executor (в своей координирующей горутине), переходы
// проверяются через StepStatus.CanTransition.
type Step struct {
	// DeploymentID — родительский деплой.
	DeploymentID uuid.UUID `json:"deployment_id"`

	// ID — уникальный в рамках деплоя идентификатор ("deploy", "component-api").
	ID string `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// Kind — категория шага.
	Kind StepKind `json:"kind"`

	// Ordinal — позиция в плане (порядок Plan Builder'а).
	Ordinal int `json:"ordinal"`

	// Command — работа, которую выполняет runner.
	Command Command `json:"command"`

	// DependsOn — ID шагов, которые должны завершиться успешно до старта.
	DependsOn []string `json:"depends_on,omitempty"`

	// Compensate — компенсирующая команда для отката.
	Compensate *Command `json:"compensate,omitempty"`

	// HealthCheck — проверка после успешного выполнения команды.
	HealthCheck *HealthCheck `json:"health_check,omitempty"`

	// Retries — сколько раз повторить шаг после первой неудачи.
	Retries int `json:"retries"`

	// TimeoutSec — таймаут одной попытки.
	TimeoutSec int `json:"timeout_sec"`

	// Status — текущий статус.
	Status StepStatus `json:"status"`

	// Attempts — сколько попыток сделано.
	Attempts int `json:"attempts"`

	// Output — вывод runner'а последней попытки.
	Output string `json:"output,omitempty"`

	// Error — текст ошибки или причина пропуска.
	Error string `json:"error,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// DurationMs — длительность выполнения в миллисекундах.
	DurationMs int64 `json:"duration_ms"`
}

// Timeout возвращает таймаут попытки, 0 — без ограничения.
func (s *Step) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// HasCompensation возвращает true, если у шага есть команда отката.
func (s *Step) HasCompensation() bool {
	return s.Compensate != nil && !s.Compensate.IsZero()
}

// Duration возвращает продолжительность выполнения.
func (s *Step) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}

// IsFinished возвращает true, если шаг в терминальном статусе.
func (s *Step) IsFinished() bool {
	return s.Status.IsTerminal()
}

// MarkRunning переводит шаг в running.
func (s *Step) MarkRunning(at time.Time) bool {
	if !s.Status.CanTransition(StepStatusRunning) {
		return false
	}
	s.Status = StepStatusRunning
	s.StartedAt = &at
	return true
}

// MarkCompleted переводит шаг в completed.
func (s *Step) MarkCompleted(at time.Time, output string, attempts int) bool {
	if !s.Status.CanTransition(StepStatusCompleted) {
		return false
	}
	s.Status = StepStatusCompleted
	s.Output = output
	s.Attempts = attempts
	s.finish(at)
	return true
}

// MarkFailed переводит шаг в failed.
func (s *Step) MarkFailed(at time.Time, output, errMsg string, attempts int) bool {
	if !s.Status.CanTransition(StepStatusFailed) {
		return false
	}
	s.Status = StepStatusFailed
	s.Output = output
	s.Error = errMsg
	s.Attempts = attempts
	s.finish(at)
	return true
}

// MarkSkipped переводит шаг в skipped с причиной.
func (s *Step) MarkSkipped(at time.Time, reason string) bool {
	if !s.Status.CanTransition(StepStatusSkipped) {
		return false
	}
	s.Status = StepStatusSkipped
	s.Error = reason
	s.FinishedAt = &at
	return true
}

func (s *Step) finish(at time.Time) {
	s.FinishedAt = &at
	if s.StartedAt != nil {
		s.DurationMs = at.Sub(*s.StartedAt).Milliseconds()
	}
}

// Clone возвращает глубокую копию шага.
func (s *Step) Clone() *Step {
	c := *s
	if s.DependsOn != nil {
		c.DependsOn = append([]string(nil), s.DependsOn...)
	}
	c.Command = s.Command.clone()
	if s.Compensate != nil {
		comp := s.Compensate.clone()
		c.Compensate = &comp
	}
	if s.HealthCheck != nil {
		hc := *s.HealthCheck
		c.HealthCheck = &hc
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

func (c Command) clone() Command {
	if c.Env != nil {
		env := make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			env[k] = v
		}
		c.Env = env
	}
	return c
}
