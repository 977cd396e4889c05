package domain

import "time"

// DeploymentConfig — декларативная конфигурация деплоя.
//
// Набор полей закрыт: неизвестные ключи отвергаются парсером, вся
// валидация выполняется до построения плана (engine.ValidateConfig).
//
// Пример:
//
//	environment: staging
//	deploymentType: full
//	version: v1.4.2
//	scope:
//	  core: true
//	  migrations: true
//	  components: [api, worker]
//	parallelization:
//	  enabled: true
//	  maxConcurrency: 3
//	commands:
//	  deploy:
//	    command: ./deploy.sh {{ .Version }}
//	    rollback: ./deploy.sh --revert
type DeploymentConfig struct {
	Environment     Environment           `json:"environment" yaml:"environment"`
	DeploymentType  DeploymentType        `json:"deploymentType" yaml:"deploymentType"`
	Version         string                `json:"version" yaml:"version"`
	Scope           ScopeConfig           `json:"scope" yaml:"scope"`
	Parallelization ParallelizationConfig `json:"parallelization" yaml:"parallelization"`
	Hooks           HooksConfig           `json:"hooks" yaml:"hooks"`
	HealthChecks    HealthChecksConfig    `json:"healthChecks" yaml:"healthChecks"`
	Rollback        RollbackConfig        `json:"rollback" yaml:"rollback"`
	Notifications   NotificationsConfig   `json:"notifications" yaml:"notifications"`
	Commands        CommandsConfig        `json:"commands" yaml:"commands"`
	Policy          PolicyConfig          `json:"policy" yaml:"policy"`
}

// ScopeConfig — что именно деплоится.
type ScopeConfig struct {
	Core       bool     `json:"core" yaml:"core"`
	Migrations bool     `json:"migrations" yaml:"migrations"`
	Seed       bool     `json:"seed,omitempty" yaml:"seed,omitempty"`
	Components []string `json:"components,omitempty" yaml:"components,omitempty"`
	Config     bool     `json:"config" yaml:"config"`
	Assets     bool     `json:"assets" yaml:"assets"`
}

// ParallelizationConfig — режим исполнения графа.
type ParallelizationConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	MaxConcurrency int  `json:"maxConcurrency" yaml:"maxConcurrency"`

	// FailFast — после первой ошибки не стартовать никаких новых шагов,
	// а не только зависимые.
	FailFast bool `json:"failFast,omitempty" yaml:"failFast,omitempty"`
}

// EffectiveConcurrency возвращает границу N для executor'а.
func (p ParallelizationConfig) EffectiveConcurrency() int {
	if !p.Enabled || p.MaxConcurrency <= 1 {
		return 1
	}
	return p.MaxConcurrency
}

// HooksConfig — хуки деплоя.
//
// Pre и Post становятся шагами графа. OnSuccess и OnFailure выполняются
// координатором после завершения графа, их ошибки только логируются.
type HooksConfig struct {
	Pre       []Command `json:"pre,omitempty" yaml:"pre,omitempty"`
	Post      []Command `json:"post,omitempty" yaml:"post,omitempty"`
	OnFailure []Command `json:"onFailure,omitempty" yaml:"onFailure,omitempty"`
	OnSuccess []Command `json:"onSuccess,omitempty" yaml:"onSuccess,omitempty"`

	// ChainPre — основной deploy ждёт последний pre-хук.
	ChainPre bool `json:"chainPre,omitempty" yaml:"chainPre,omitempty"`
}

// HealthChecksConfig — проверки здоровья всего деплоя после графа.
type HealthChecksConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Endpoints      []string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	ExpectedStatus int      `json:"expectedStatus,omitempty" yaml:"expectedStatus,omitempty"`
	TimeoutSec     int      `json:"timeoutSec,omitempty" yaml:"timeoutSec,omitempty"`
	Retries        int      `json:"retries,omitempty" yaml:"retries,omitempty"`
	IntervalSec    int      `json:"intervalSec,omitempty" yaml:"intervalSec,omitempty"`
}

// RollbackConfig — политика отката.
type RollbackConfig struct {
	Enabled                bool `json:"enabled" yaml:"enabled"`
	BackupBeforeDeployment bool `json:"backupBeforeDeployment" yaml:"backupBeforeDeployment"`
	AutoRollbackOnFailure  bool `json:"autoRollbackOnFailure" yaml:"autoRollbackOnFailure"`
}

// ShouldRollback возвращает true, если упавший деплой нужно откатывать.
func (r RollbackConfig) ShouldRollback() bool {
	return r.Enabled && r.AutoRollbackOnFailure
}

// NotificationsConfig — куда и когда отправлять уведомления.
type NotificationsConfig struct {
	Channels   []string `json:"channels,omitempty" yaml:"channels,omitempty"`
	OnStart    bool     `json:"onStart" yaml:"onStart"`
	OnComplete bool     `json:"onComplete" yaml:"onComplete"`
	OnFailure  bool     `json:"onFailure" yaml:"onFailure"`
}

// CommandsConfig — команды для каждой стадии плана.
type CommandsConfig struct {
	Backup    *Command     `json:"backup,omitempty" yaml:"backup,omitempty"`
	Deploy    *StageConfig `json:"deploy,omitempty" yaml:"deploy,omitempty"`
	Config    *StageConfig `json:"config,omitempty" yaml:"config,omitempty"`
	Migrate   *StageConfig `json:"migrate,omitempty" yaml:"migrate,omitempty"`
	Seed      *StageConfig `json:"seed,omitempty" yaml:"seed,omitempty"`
	Component *StageConfig `json:"component,omitempty" yaml:"component,omitempty"`
	Assets    *StageConfig `json:"assets,omitempty" yaml:"assets,omitempty"`
	Cleanup   *Command     `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
}

// StageConfig — команда стадии с откатом и проверкой.
type StageConfig struct {
	Command     Command      `json:"command" yaml:"command"`
	Rollback    *Command     `json:"rollback,omitempty" yaml:"rollback,omitempty"`
	HealthCheck *HealthCheck `json:"healthCheck,omitempty" yaml:"healthCheck,omitempty"`

	// Retries переопределяет policy.stepRetries, nil — взять из политики.
	Retries *int `json:"retries,omitempty" yaml:"retries,omitempty"`

	// TimeoutSec переопределяет policy.stepTimeoutSec.
	TimeoutSec int `json:"timeoutSec,omitempty" yaml:"timeoutSec,omitempty"`
}

// Стратегии backoff между попытками шага.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// PolicyConfig — общие параметры исполнения.
type PolicyConfig struct {
	// RequireSteps — пустой план считается ошибкой конфигурации.
	RequireSteps bool `json:"requireSteps,omitempty" yaml:"requireSteps,omitempty"`

	StepTimeoutSec int    `json:"stepTimeoutSec,omitempty" yaml:"stepTimeoutSec,omitempty"`
	StepRetries    int    `json:"stepRetries,omitempty" yaml:"stepRetries,omitempty"`
	RetryBackoff   string `json:"retryBackoff,omitempty" yaml:"retryBackoff,omitempty"`
	RetryDelayMs   int    `json:"retryDelayMs,omitempty" yaml:"retryDelayMs,omitempty"`
}

// RetryDelay возвращает базовую задержку между попытками.
func (p PolicyConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMs) * time.Millisecond
}
