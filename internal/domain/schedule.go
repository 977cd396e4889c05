package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание регулярного деплоя (например, ночной деплой в dev).
//
// Расписания задаются в конфигурации сервиса. Scheduler проверяет
// NextDueAt и отправляет деплой координатору, когда время подошло.
type Schedule struct {
	// Name — уникальное имя расписания.
	Name string `json:"name"`

	// CronExpr — cron-выражение в формате "минуты часы дни месяцы дни_недели".
	// Если задан CronExpr, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между запусками.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для cron, по умолчанию "UTC".
	Timezone string `json:"timezone"`

	// Enabled — если false, scheduler игнорирует расписание.
	Enabled bool `json:"enabled"`

	// Actor — от чьего имени создаётся деплой.
	Actor string `json:"actor,omitempty"`

	// Config — конфигурация деплоя.
	Config DeploymentConfig `json:"config"`

	NextDueAt        *time.Time `json:"next_due_at,omitempty"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
	LastDeploymentID *uuid.UUID `json:"last_deployment_id,omitempty"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(deploymentID uuid.UUID, now, nextDue time.Time) {
	s.LastRunAt = &now
	s.LastDeploymentID = &deploymentID
	s.NextDueAt = &nextDue
}
