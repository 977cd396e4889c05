package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Deployer/internal/domain"
)

// DelayRunner — runner для команд типа "delay".
//
// Ожидает cmd.Duration ("30s", "2m"). Поддерживает отмену через context.
type DelayRunner struct{}

// Execute выполняет задержку.
func (r *DelayRunner) Execute(ctx context.Context, cmd domain.Command, _ Options) (*Result, error) {
	d, err := time.ParseDuration(cmd.Duration)
	if err != nil {
		return nil, fmt.Errorf("%w: duration %q: %v", ErrInvalidCommand, cmd.Duration, err)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return &Result{Success: true, Output: "waited " + d.String()}, nil
	case <-ctx.Done():
		return &Result{Error: ctx.Err().Error()}, ctx.Err()
	}
}
