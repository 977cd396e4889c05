package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Deployer/internal/domain"
)

// maxOutput — сколько байт вывода сохраняется в шаге (хвост).
const maxOutput = 64 * 1024

// Runner выполняет одну команду.
//
// Ожидаемая неудача (ненулевой код выхода, HTTP 5xx) возвращается в
// Result с Success=false. Ошибка возвращается только для невалидного
// дескриптора и при завершении ctx (таймаут или отмена).
type Runner interface {
	Execute(ctx context.Context, cmd domain.Command, opts Options) (*Result, error)
}

// Options — параметры запуска.
type Options struct {
	// WorkDir — рабочая директория, если не задана в команде.
	WorkDir string

	// Env — переменные окружения, команда может их переопределить.
	Env map[string]string

	// Timeout — таймаут выполнения, 0 — без ограничения.
	Timeout time.Duration
}

// Result — результат выполнения команды.
type Result struct {
	Success bool
	Output  string
	Error   string
}

// Registry — реестр runner'ов по типу команды.
type Registry struct {
	runners map[string]Runner
}

// NewRegistry создаёт реестр с runner'ами по умолчанию: shell, http, delay.
func NewRegistry() *Registry {
	r := &Registry{runners: make(map[string]Runner)}
	r.Register(domain.CommandTypeShell, &ShellRunner{})
	r.Register(domain.CommandTypeHTTP, &HTTPRunner{})
	r.Register(domain.CommandTypeDelay, &DelayRunner{})
	return r
}

// Register добавляет runner для типа команды.
func (r *Registry) Register(cmdType string, runner Runner) {
	r.runners[cmdType] = runner
}

// Get возвращает runner для типа команды.
func (r *Registry) Get(cmdType string) (Runner, error) {
	runner, ok := r.runners[cmdType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommandType, cmdType)
	}
	return runner, nil
}

// Execute выбирает runner по типу команды и выполняет её.
func (r *Registry) Execute(ctx context.Context, cmd domain.Command, opts Options) (*Result, error) {
	runner, err := r.Get(cmd.Kind())
	if err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	return runner.Execute(ctx, cmd, opts)
}

// truncate оставляет хвост строки не длиннее maxLen.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
