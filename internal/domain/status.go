package domain

// DeploymentStatus — статус деплоя.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ failed
//	                  ↘ rolled_back (failed + выполнен откат)
//	pending → failed (ошибка планирования, ни один шаг не запускался)
type DeploymentStatus string

const (
	// DeploymentStatusPending — деплой создан, ещё не запущен.
	DeploymentStatusPending DeploymentStatus = "pending"

	// DeploymentStatusRunning — граф шагов выполняется.
	DeploymentStatusRunning DeploymentStatus = "running"

	// DeploymentStatusCompleted — все шаги и health checks прошли.
	DeploymentStatusCompleted DeploymentStatus = "completed"

	// DeploymentStatusFailed — хотя бы один шаг упал, либо деплой отменён.
	DeploymentStatusFailed DeploymentStatus = "failed"

	// DeploymentStatusRolledBack — деплой упал и был выполнен компенсирующий откат.
	DeploymentStatusRolledBack DeploymentStatus = "rolled_back"
)

// IsTerminal возвращает true, если статус финальный.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case DeploymentStatusCompleted, DeploymentStatusFailed, DeploymentStatusRolledBack:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус известен.
func (s DeploymentStatus) IsValid() bool {
	switch s {
	case DeploymentStatusPending, DeploymentStatusRunning,
		DeploymentStatusCompleted, DeploymentStatusFailed, DeploymentStatusRolledBack:
		return true
	default:
		return false
	}
}

// StepStatus — статус шага.
//
// Жизненный цикл (решётка, статус только растёт):
//
//	pending → running → completed
//	                  ↘ failed
//	pending → skipped (упала или пропущена зависимость, либо деплой остановлен)
type StepStatus string

const (
	// StepStatusPending — шаг ждёт своих зависимостей.
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning — шаг выполняется (включая повторные попытки).
	StepStatusRunning StepStatus = "running"

	// StepStatusCompleted — runner и health gate завершились успешно.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusFailed — шаг упал после исчерпания попыток.
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped — шаг не запускался.
	StepStatusSkipped StepStatus = "skipped"
)

// IsTerminal возвращает true, если шаг больше не изменится.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// CanTransition проверяет допустимость перехода s → next.
func (s StepStatus) CanTransition(next StepStatus) bool {
	switch s {
	case StepStatusPending:
		return next == StepStatusRunning || next == StepStatusSkipped
	case StepStatusRunning:
		return next == StepStatusCompleted || next == StepStatusFailed
	default:
		return false
	}
}

// Environment — целевое окружение.
type Environment string

const (
	EnvironmentDev     Environment = "dev"
	EnvironmentStaging Environment = "staging"
	EnvironmentProd    Environment = "prod"
	EnvironmentDR      Environment = "dr"
)

// IsValid проверяет, что окружение известно.
func (e Environment) IsValid() bool {
	switch e {
	case EnvironmentDev, EnvironmentStaging, EnvironmentProd, EnvironmentDR:
		return true
	default:
		return false
	}
}

// DeploymentType — вид деплоя.
type DeploymentType string

const (
	DeploymentTypeFull     DeploymentType = "full"
	DeploymentTypePartial  DeploymentType = "partial"
	DeploymentTypeRollback DeploymentType = "rollback"
	DeploymentTypeHotfix   DeploymentType = "hotfix"
)

// IsValid проверяет, что тип деплоя известен.
func (t DeploymentType) IsValid() bool {
	switch t {
	case DeploymentTypeFull, DeploymentTypePartial, DeploymentTypeRollback, DeploymentTypeHotfix:
		return true
	default:
		return false
	}
}

// StepKind — категория шага.
type StepKind string

const (
	StepKindPreHook     StepKind = "pre_hook"
	StepKindDeploy      StepKind = "deploy"
	StepKindMigrate     StepKind = "migrate"
	StepKindSeed        StepKind = "seed"
	StepKindHealthCheck StepKind = "health_check"
	StepKindPostHook    StepKind = "post_hook"
	StepKindCleanup     StepKind = "cleanup"
)
