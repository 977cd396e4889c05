package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/shaiso/Deployer/internal/domain"
)

// waitDelay — сколько ждать закрытия вывода после завершения процесса,
// если дочерние процессы sh продолжают держать pipe.
const waitDelay = 500 * time.Millisecond

// ShellRunner — runner для команд типа "shell".
//
// Выполняет cmd.Run через `sh -c` и собирает stdout и stderr вместе.
// Ненулевой код выхода — неудача шага, а не ошибка runner'а.
type ShellRunner struct {
	// Shell — интерпретатор, по умолчанию "sh".
	Shell string
}

// Execute выполняет shell-команду.
func (r *ShellRunner) Execute(ctx context.Context, cmd domain.Command, opts Options) (*Result, error) {
	if cmd.Run == "" {
		return nil, fmt.Errorf("%w: shell command has empty run", ErrInvalidCommand)
	}

	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}

	c := exec.CommandContext(ctx, shell, "-c", cmd.Run)
	c.Dir = cmd.WorkDir
	if c.Dir == "" {
		c.Dir = opts.WorkDir
	}
	c.Env = mergeEnv(os.Environ(), opts.Env, cmd.Env)
	c.WaitDelay = waitDelay

	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	err := c.Run()
	output := truncate(out.String(), maxOutput)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Result{Output: output, Error: ctxErr.Error()}, ctxErr
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{
				Output: output,
				Error:  fmt.Sprintf("exit code %d", exitErr.ExitCode()),
			}, nil
		}
		// Не удалось запустить интерпретатор или директория не существует
		return &Result{Output: output, Error: err.Error()}, nil
	}

	return &Result{Success: true, Output: output}, nil
}

// mergeEnv накладывает переменные слоями, последний слой выигрывает.
func mergeEnv(base []string, layers ...map[string]string) []string {
	if len(layers) == 0 {
		return base
	}

	extra := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return base
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(keys))
	env = append(env, base...)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
