package engine

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shaiso/Deployer/internal/domain"
)

const sampleConfig = `
environment: staging
deploymentType: full
version: v1.4.2
scope:
  core: true
  migrations: true
  components: [api, worker]
parallelization:
  enabled: true
  maxConcurrency: 3
hooks:
  pre:
    - ./scripts/drain.sh
  post:
    - type: http
      url: https://hooks.internal/deployed
rollback:
  enabled: true
  autoRollbackOnFailure: true
notifications:
  channels: [ops]
  onFailure: true
commands:
  deploy:
    command: ./deploy.sh {{ .Environment }} {{ .Version }}
    rollback: ./deploy.sh --revert
  migrate:
    command: ./migrate up
  component:
    command: ./deploy-component.sh {{ .Component }}
    retries: 2
policy:
  stepTimeoutSec: 60
`

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Environment != domain.EnvironmentStaging {
		t.Errorf("expected staging, got %s", cfg.Environment)
	}
	if len(cfg.Scope.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(cfg.Scope.Components))
	}
	if cfg.Parallelization.EffectiveConcurrency() != 3 {
		t.Errorf("expected concurrency 3, got %d", cfg.Parallelization.EffectiveConcurrency())
	}

	// Строка превращается в shell-команду
	if cfg.Hooks.Pre[0].Kind() != domain.CommandTypeShell || cfg.Hooks.Pre[0].Run != "./scripts/drain.sh" {
		t.Errorf("unexpected pre hook: %+v", cfg.Hooks.Pre[0])
	}
	if cfg.Hooks.Post[0].Kind() != domain.CommandTypeHTTP {
		t.Errorf("expected http post hook, got %s", cfg.Hooks.Post[0].Kind())
	}
	if cfg.Commands.Deploy.Rollback == nil || cfg.Commands.Deploy.Rollback.Run != "./deploy.sh --revert" {
		t.Error("deploy rollback command not parsed")
	}
	if cfg.Commands.Component.Retries == nil || *cfg.Commands.Component.Retries != 2 {
		t.Error("component retries not parsed")
	}
}

func TestParseConfig_JSON(t *testing.T) {
	data := `{"environment": "dev", "deploymentType": "hotfix", "version": "abc",
		"scope": {"core": true}, "commands": {"deploy": {"command": "echo ok"}}}`

	cfg, err := ParseConfig([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DeploymentType != domain.DeploymentTypeHotfix {
		t.Errorf("expected hotfix, got %s", cfg.DeploymentType)
	}
	if cfg.Parallelization.EffectiveConcurrency() != 1 {
		t.Error("parallelization is disabled, mode should be sequential")
	}
}

func TestParseConfig_UnknownField(t *testing.T) {
	data := "environment: dev\ndeploymentType: full\nunknownKey: 1\n"

	_, err := ParseConfig([]byte(data))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknownKey") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestParseConfig_Empty(t *testing.T) {
	_, err := ParseConfig(nil)

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *domain.DeploymentConfig {
		return &domain.DeploymentConfig{
			Environment:    domain.EnvironmentProd,
			DeploymentType: domain.DeploymentTypeFull,
			Scope:          domain.ScopeConfig{Core: true},
			Commands: domain.CommandsConfig{
				Deploy: &domain.StageConfig{Command: domain.Command{Run: "deploy"}},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *domain.DeploymentConfig)
		wantErr error
		field   string
	}{
		{"valid", func(c *domain.DeploymentConfig) {}, nil, ""},
		{"unknown environment", func(c *domain.DeploymentConfig) { c.Environment = "qa" }, ErrInvalidConfig, "environment"},
		{"unknown type", func(c *domain.DeploymentConfig) { c.DeploymentType = "canary" }, ErrInvalidConfig, "deploymentType"},
		{"missing deploy command", func(c *domain.DeploymentConfig) { c.Commands.Deploy = nil }, ErrMissingCommand, "commands.deploy"},
		{"missing component command", func(c *domain.DeploymentConfig) {
			c.Scope.Components = []string{"api"}
		}, ErrMissingCommand, "commands.component"},
		{"duplicate component", func(c *domain.DeploymentConfig) {
			c.Scope.Components = []string{"api", "api"}
			c.Commands.Component = &domain.StageConfig{Command: domain.Command{Run: "x"}}
		}, ErrInvalidConfig, "scope.components[1]"},
		{"bad component name", func(c *domain.DeploymentConfig) {
			c.Scope.Components = []string{"Bad Name"}
			c.Commands.Component = &domain.StageConfig{Command: domain.Command{Run: "x"}}
		}, ErrInvalidConfig, "scope.components[0]"},
		{"parallel without bound", func(c *domain.DeploymentConfig) {
			c.Parallelization.Enabled = true
		}, ErrInvalidConfig, "parallelization.maxConcurrency"},
		{"health checks without endpoints", func(c *domain.DeploymentConfig) {
			c.HealthChecks.Enabled = true
		}, ErrInvalidConfig, "healthChecks.endpoints"},
		{"bad expected status", func(c *domain.DeploymentConfig) {
			c.HealthChecks.ExpectedStatus = 42
		}, ErrInvalidConfig, "healthChecks.expectedStatus"},
		{"unknown command type", func(c *domain.DeploymentConfig) {
			c.Hooks.Pre = []domain.Command{{Type: "ssh", Run: "x"}}
		}, ErrInvalidConfig, "hooks.pre[0]"},
		{"bad delay", func(c *domain.DeploymentConfig) {
			c.Hooks.Post = []domain.Command{{Type: "delay", Duration: "soon"}}
		}, ErrInvalidConfig, "hooks.post[0]"},
		{"unknown backoff", func(c *domain.DeploymentConfig) {
			c.Policy.RetryBackoff = "random"
		}, ErrInvalidConfig, "policy.retryBackoff"},
		{"negative retries", func(c *domain.DeploymentConfig) {
			c.Policy.StepRetries = -1
		}, ErrInvalidConfig, "policy.stepRetries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error should mention %q: %v", tt.field, err)
			}
		})
	}
}

func TestValidateConfig_CollectsAllProblems(t *testing.T) {
	err := ValidateConfig(&domain.DeploymentConfig{Environment: "qa", DeploymentType: "canary"})

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if len(cfgErr.Problems) != 2 {
		t.Errorf("expected 2 problems, got %d: %v", len(cfgErr.Problems), cfgErr.Problems)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Version != "v1.4.2" {
		t.Errorf("expected v1.4.2, got %s", cfg.Version)
	}

	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
