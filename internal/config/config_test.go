package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Empty(t, cfg.Database.DSN)
	assert.True(t, cfg.Database.Migrate)
	assert.False(t, cfg.RabbitMQ.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5*time.Minute, cfg.Executor.HookTimeout)
	assert.Equal(t, 10*time.Second, cfg.Health.DefaultTimeout)
	assert.Equal(t, time.Second, cfg.Scheduler.TickInterval)
	assert.Empty(t, cfg.Schedules)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9000
database:
  dsn: postgres://deployer@localhost/deployer
  max_conns: 4
rabbitmq:
  enabled: true
  url: amqp://mq:5672/
log:
  level: debug
  format: text
executor:
  work_dir: /srv/app
  env:
    REGION: eu-1
  max_retry_delay: 30s
notifications:
  webhooks:
    ops: https://hooks.example.com/ops
scheduler:
  enabled: true
schedules:
  - name: nightly-dev
    cron: "0 3 * * *"
    timezone: Europe/Berlin
    config_file: deploy/dev.yaml
  - name: hourly-staging
    interval_sec: 3600
    enabled: false
    config_file: deploy/staging.yaml
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address())
	assert.Equal(t, "postgres://deployer@localhost/deployer", cfg.Database.DSN)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
	assert.True(t, cfg.RabbitMQ.Enabled)
	assert.Equal(t, "amqp://mq:5672/", cfg.RabbitMQ.URL)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "/srv/app", cfg.Executor.WorkDir)
	assert.Equal(t, map[string]string{"region": "eu-1"}, cfg.Executor.Env, "viper lowercases map keys")
	assert.Equal(t, 30*time.Second, cfg.Executor.MaxRetryDelay)
	assert.Equal(t, "https://hooks.example.com/ops", cfg.Notifications.Webhooks["ops"])

	require.Len(t, cfg.Schedules, 2)
	assert.Equal(t, "nightly-dev", cfg.Schedules[0].Name)
	assert.Equal(t, "0 3 * * *", cfg.Schedules[0].Cron)
	assert.True(t, cfg.Schedules[0].IsEnabled())
	assert.Equal(t, 3600, cfg.Schedules[1].IntervalSec)
	assert.False(t, cfg.Schedules[1].IsEnabled())
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("DEPLOYER_SERVER_PORT", "3000")
	t.Setenv("DEPLOYER_DATABASE_DSN", "postgres://env/deployer")
	t.Setenv("DEPLOYER_LOG_LEVEL", "warn")
	t.Setenv("DEPLOYER_RABBITMQ_ENABLED", "true")

	path := writeConfig(t, "server:\n  port: 9000\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "postgres://env/deployer", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.RabbitMQ.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [port\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name: "rabbitmq without url",
			mutate: func(c *Config) {
				c.RabbitMQ = RabbitMQConfig{Enabled: true}
			},
			wantErr: "rabbitmq.url",
		},
		{
			name: "schedule without timing",
			mutate: func(c *Config) {
				c.Schedules = []ScheduleConfig{{Name: "x", ConfigFile: "x.yaml"}}
			},
			wantErr: "either cron or interval_sec",
		},
		{
			name: "duplicate schedule",
			mutate: func(c *Config) {
				s := ScheduleConfig{Name: "x", IntervalSec: 60, ConfigFile: "x.yaml"}
				c.Schedules = []ScheduleConfig{s, s}
			},
			wantErr: "duplicate schedule",
		},
		{
			name: "schedule without config file",
			mutate: func(c *Config) {
				c.Schedules = []ScheduleConfig{{Name: "x", IntervalSec: 60}}
			},
			wantErr: "config_file",
		},
		{
			name: "empty webhook",
			mutate: func(c *Config) {
				c.Notifications.Webhooks = map[string]string{"ops": ""}
			},
			wantErr: "notifications.webhooks.ops",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
