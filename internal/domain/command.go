package domain

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Типы команд, которые понимает runner.
const (
	CommandTypeShell = "shell"
	CommandTypeHTTP  = "http"
	CommandTypeDelay = "delay"
)

// Command — непрозрачный дескриптор работы шага.
//
// Оркестратор не интерпретирует команду, он только передаёт её runner'у.
// В YAML/JSON можно записать строку, тогда это shell-команда:
//
//	command: "./bin/migrate up"
//
// или объект:
//
//	command:
//	  type: http
//	  url: https://deploy.internal/api/release
//	  method: POST
type Command struct {
	// Type — тип runner'а: "shell" (по умолчанию), "http", "delay".
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Run — shell-команда (для type=shell).
	Run string `json:"run,omitempty" yaml:"run,omitempty"`

	// URL — адрес RPC (для type=http).
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Method — HTTP метод, по умолчанию POST.
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// Body — тело запроса.
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Duration — длительность паузы (для type=delay), например "5s".
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// WorkDir — рабочая директория.
	WorkDir string `json:"workDir,omitempty" yaml:"workDir,omitempty"`

	// Env — дополнительные переменные окружения.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Kind возвращает тип команды с учётом значения по умолчанию.
func (c Command) Kind() string {
	if c.Type == "" {
		return CommandTypeShell
	}
	return c.Type
}

// IsZero возвращает true для пустой команды.
func (c Command) IsZero() bool {
	return c.Run == "" && c.URL == "" && c.Duration == ""
}

// String возвращает короткое описание команды для логов.
func (c Command) String() string {
	switch c.Kind() {
	case CommandTypeHTTP:
		method := c.Method
		if method == "" {
			method = "POST"
		}
		return method + " " + c.URL
	case CommandTypeDelay:
		return "delay " + c.Duration
	default:
		return c.Run
	}
}

// UnmarshalYAML позволяет задавать команду строкой.
func (c *Command) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*c = Command{Type: CommandTypeShell, Run: value.Value}
		return nil
	}

	type plain Command
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}
	*c = Command(p)
	return nil
}

// UnmarshalJSON позволяет задавать команду строкой.
func (c *Command) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Command{Type: CommandTypeShell, Run: s}
		return nil
	}

	type plain Command
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}
	*c = Command(p)
	return nil
}

// HealthCheck — проверка здоровья, привязанная к шагу.
type HealthCheck struct {
	// URL — адрес проверки.
	URL string `json:"url" yaml:"url"`

	// ExpectedStatus — ожидаемый HTTP статус, по умолчанию 200.
	ExpectedStatus int `json:"expectedStatus,omitempty" yaml:"expectedStatus,omitempty"`

	// TimeoutSec — таймаут одной проверки.
	TimeoutSec int `json:"timeoutSec,omitempty" yaml:"timeoutSec,omitempty"`
}
