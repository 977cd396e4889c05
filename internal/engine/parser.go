package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Deployer/internal/domain"
)

// componentNamePattern — имя компонента становится частью ID шага.
var componentNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// ParseConfig разбирает конфигурацию деплоя из YAML или JSON
// (JSON — подмножество YAML) и сразу её валидирует.
//
// Неизвестные ключи считаются ошибкой.
func ParseConfig(data []byte) (*domain.DeploymentConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg domain.DeploymentConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ConfigurationError{Problems: []error{
				NewValidationError("", "", "config is empty", ErrInvalidConfig),
			}}
		}
		return nil, &ConfigurationError{Problems: []error{
			NewValidationError("", "", fmt.Sprintf("parse config: %v", err), ErrInvalidConfig),
		}}
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFile читает и разбирает конфигурацию из файла.
func LoadConfigFile(path string) (*domain.DeploymentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ValidateConfig выполняет полную валидацию конфигурации деплоя.
//
// Собирает все нарушения сразу и возвращает *ConfigurationError,
// либо nil, если конфигурация корректна.
func ValidateConfig(cfg *domain.DeploymentConfig) error {
	if cfg == nil {
		return &ConfigurationError{Problems: []error{
			NewValidationError("", "", "config is nil", ErrInvalidConfig),
		}}
	}

	v := &validator{}

	if !cfg.Environment.IsValid() {
		v.addf("environment", "unknown environment %q (expected dev, staging, prod or dr)", cfg.Environment)
	}
	if !cfg.DeploymentType.IsValid() {
		v.addf("deploymentType", "unknown deployment type %q (expected full, partial, rollback or hotfix)", cfg.DeploymentType)
	}

	v.validateScope(cfg)
	v.validateParallelization(cfg.Parallelization)
	v.validateHooks(cfg.Hooks)
	v.validateHealthChecks(cfg.HealthChecks)
	v.validateCommands(cfg.Commands)
	v.validatePolicy(cfg.Policy)

	for i, ch := range cfg.Notifications.Channels {
		if ch == "" {
			v.addf(fmt.Sprintf("notifications.channels[%d]", i), "channel name is empty")
		}
	}

	return v.err()
}

type validator struct {
	problems []error
}

func (v *validator) addf(field, format string, args ...any) {
	v.problems = append(v.problems, NewValidationError("", field, fmt.Sprintf(format, args...), ErrInvalidConfig))
}

func (v *validator) missing(field string) {
	v.problems = append(v.problems, NewValidationError("", field,
		"command is required for the requested scope", ErrMissingCommand))
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return &ConfigurationError{Problems: v.problems}
}

func (v *validator) validateScope(cfg *domain.DeploymentConfig) {
	scope, cmds := cfg.Scope, cfg.Commands

	if scope.Core && cmds.Deploy == nil {
		v.missing("commands.deploy")
	}
	if scope.Config && cmds.Config == nil {
		v.missing("commands.config")
	}
	if scope.Migrations && cmds.Migrate == nil {
		v.missing("commands.migrate")
	}
	if scope.Seed && cmds.Seed == nil {
		v.missing("commands.seed")
	}
	if scope.Assets && cmds.Assets == nil {
		v.missing("commands.assets")
	}
	if len(scope.Components) > 0 && cmds.Component == nil {
		v.missing("commands.component")
	}

	seen := make(map[string]bool, len(scope.Components))
	for i, name := range scope.Components {
		field := fmt.Sprintf("scope.components[%d]", i)
		switch {
		case name == "":
			v.addf(field, "component name is empty")
		case !componentNamePattern.MatchString(name):
			v.addf(field, "invalid component name %q", name)
		case seen[name]:
			v.addf(field, "duplicate component %q", name)
		}
		seen[name] = true
	}
}

func (v *validator) validateParallelization(p domain.ParallelizationConfig) {
	if p.MaxConcurrency < 0 {
		v.addf("parallelization.maxConcurrency", "must not be negative")
	}
	if p.Enabled && p.MaxConcurrency == 0 {
		v.addf("parallelization.maxConcurrency", "must be at least 1 when parallelization is enabled")
	}
}

func (v *validator) validateHooks(h domain.HooksConfig) {
	groups := []struct {
		name  string
		hooks []domain.Command
	}{
		{"hooks.pre", h.Pre},
		{"hooks.post", h.Post},
		{"hooks.onFailure", h.OnFailure},
		{"hooks.onSuccess", h.OnSuccess},
	}
	for _, g := range groups {
		for i, cmd := range g.hooks {
			v.validateCommand(fmt.Sprintf("%s[%d]", g.name, i), cmd)
		}
	}
}

func (v *validator) validateHealthChecks(h domain.HealthChecksConfig) {
	if h.Enabled && len(h.Endpoints) == 0 {
		v.addf("healthChecks.endpoints", "at least one endpoint is required when health checks are enabled")
	}
	for i, ep := range h.Endpoints {
		if ep == "" {
			v.addf(fmt.Sprintf("healthChecks.endpoints[%d]", i), "endpoint is empty")
		}
	}
	v.validateStatus("healthChecks.expectedStatus", h.ExpectedStatus)
	if h.TimeoutSec < 0 {
		v.addf("healthChecks.timeoutSec", "must not be negative")
	}
	if h.Retries < 0 {
		v.addf("healthChecks.retries", "must not be negative")
	}
	if h.IntervalSec < 0 {
		v.addf("healthChecks.intervalSec", "must not be negative")
	}
}

func (v *validator) validateCommands(c domain.CommandsConfig) {
	if c.Backup != nil {
		v.validateCommand("commands.backup", *c.Backup)
	}
	if c.Cleanup != nil {
		v.validateCommand("commands.cleanup", *c.Cleanup)
	}

	stages := []struct {
		name  string
		stage *domain.StageConfig
	}{
		{"commands.deploy", c.Deploy},
		{"commands.config", c.Config},
		{"commands.migrate", c.Migrate},
		{"commands.seed", c.Seed},
		{"commands.component", c.Component},
		{"commands.assets", c.Assets},
	}
	for _, s := range stages {
		if s.stage == nil {
			continue
		}
		v.validateCommand(s.name+".command", s.stage.Command)
		if s.stage.Rollback != nil {
			v.validateCommand(s.name+".rollback", *s.stage.Rollback)
		}
		if hc := s.stage.HealthCheck; hc != nil {
			if hc.URL == "" {
				v.addf(s.name+".healthCheck.url", "url is required")
			}
			v.validateStatus(s.name+".healthCheck.expectedStatus", hc.ExpectedStatus)
			if hc.TimeoutSec < 0 {
				v.addf(s.name+".healthCheck.timeoutSec", "must not be negative")
			}
		}
		if s.stage.Retries != nil && *s.stage.Retries < 0 {
			v.addf(s.name+".retries", "must not be negative")
		}
		if s.stage.TimeoutSec < 0 {
			v.addf(s.name+".timeoutSec", "must not be negative")
		}
	}
}

func (v *validator) validateCommand(field string, cmd domain.Command) {
	switch cmd.Kind() {
	case domain.CommandTypeShell:
		if cmd.Run == "" {
			v.addf(field, "shell command has empty run")
		}
	case domain.CommandTypeHTTP:
		if cmd.URL == "" {
			v.addf(field, "http command has empty url")
		}
	case domain.CommandTypeDelay:
		if _, err := time.ParseDuration(cmd.Duration); err != nil {
			v.addf(field, "invalid delay duration %q", cmd.Duration)
		}
	default:
		v.addf(field, "unknown command type %q", cmd.Type)
	}
}

func (v *validator) validatePolicy(p domain.PolicyConfig) {
	if p.StepTimeoutSec < 0 {
		v.addf("policy.stepTimeoutSec", "must not be negative")
	}
	if p.StepRetries < 0 {
		v.addf("policy.stepRetries", "must not be negative")
	}
	if p.RetryDelayMs < 0 {
		v.addf("policy.retryDelayMs", "must not be negative")
	}
	switch p.RetryBackoff {
	case "", domain.BackoffFixed, domain.BackoffExponential:
	default:
		v.addf("policy.retryBackoff", "unknown backoff %q (expected fixed or exponential)", p.RetryBackoff)
	}
}

func (v *validator) validateStatus(field string, status int) {
	if status != 0 && (status < 100 || status > 599) {
		v.addf(field, "invalid HTTP status %d", status)
	}
}
