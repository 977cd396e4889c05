package rollback

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/runner"
)

type compensationRunner struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
}

func (r *compensationRunner) Execute(_ context.Context, cmd domain.Command, _ runner.Options) (*runner.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd.Run)
	if r.failOn[cmd.Run] {
		return &runner.Result{Error: "exit code 1"}, nil
	}
	return &runner.Result{Success: true}, nil
}

func step(id string, status domain.StepStatus, compensate string) *domain.Step {
	s := &domain.Step{ID: id, Status: status, Command: domain.Command{Run: id}}
	if compensate != "" {
		s.Compensate = &domain.Command{Run: compensate}
	}
	return s
}

func TestRollback_SingleFailedStep(t *testing.T) {
	r := &compensationRunner{}
	c := New(Config{Runner: r})

	a := step("A", domain.StepStatusFailed, "undo-A")
	report := c.Rollback(context.Background(), []*domain.Step{a}, []string{"A"})

	assert.Equal(t, []string{"undo-A"}, r.calls, "compensation invoked exactly once")
	assert.Equal(t, []string{"A"}, report.Invoked)
	assert.True(t, report.Succeeded())
	assert.NoError(t, report.Err())
}

// Компенсации идут в порядке, обратном завершению, а не порядку плана.
func TestRollback_ReverseCompletionOrder(t *testing.T) {
	r := &compensationRunner{}
	c := New(Config{Runner: r})

	steps := []*domain.Step{
		step("A", domain.StepStatusCompleted, "undo-A"),
		step("B", domain.StepStatusCompleted, "undo-B"),
		step("C", domain.StepStatusFailed, "undo-C"),
		step("D", domain.StepStatusCompleted, "undo-D"),
	}
	report := c.Rollback(context.Background(), steps, []string{"B", "A", "D", "C"})

	assert.Equal(t, []string{"undo-C", "undo-D", "undo-A", "undo-B"}, r.calls)
	assert.Equal(t, []string{"C", "D", "A", "B"}, report.Compensated)
}

func TestRollback_OnlyStepsWithCompensationThatRan(t *testing.T) {
	r := &compensationRunner{}
	c := New(Config{Runner: r})

	steps := []*domain.Step{
		step("A", domain.StepStatusCompleted, ""),
		step("B", domain.StepStatusCompleted, "undo-B"),
		step("C", domain.StepStatusSkipped, "undo-C"),
		step("D", domain.StepStatusFailed, "undo-D"),
		step("E", domain.StepStatusPending, "undo-E"),
	}
	report := c.Rollback(context.Background(), steps, []string{"A", "B", "D"})

	assert.Equal(t, []string{"undo-D", "undo-B"}, r.calls)
	assert.Equal(t, []string{"D", "B"}, report.Invoked)
}

func TestRollback_FailureDoesNotStopOthers(t *testing.T) {
	r := &compensationRunner{failOn: map[string]bool{"undo-B": true}}
	c := New(Config{Runner: r})

	steps := []*domain.Step{
		step("A", domain.StepStatusCompleted, "undo-A"),
		step("B", domain.StepStatusCompleted, "undo-B"),
		step("C", domain.StepStatusFailed, "undo-C"),
	}
	report := c.Rollback(context.Background(), steps, []string{"A", "B", "C"})

	assert.Equal(t, []string{"undo-C", "undo-B", "undo-A"}, r.calls, "no recursion, no early stop")
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "B", report.Failures[0].StepID)
	assert.ErrorIs(t, report.Err(), ErrRollbackFailed)
	assert.False(t, report.Succeeded())
	assert.Equal(t, "rollback failed for B", report.Summary())
	assert.Equal(t, []string{"C", "A"}, report.Compensated)
}

type errRunner struct{ err error }

func (r errRunner) Execute(context.Context, domain.Command, runner.Options) (*runner.Result, error) {
	return nil, r.err
}

func TestRollback_RunnerError(t *testing.T) {
	boom := errors.New("unknown command type")
	c := New(Config{Runner: errRunner{err: boom}})

	report := c.Rollback(context.Background(), []*domain.Step{step("A", domain.StepStatusFailed, "undo")}, []string{"A"})

	require.Len(t, report.Failures, 1)
	var failure *Failure
	require.ErrorAs(t, report.Err(), &failure)
	assert.ErrorIs(t, failure, boom)
}

func TestRollback_Empty(t *testing.T) {
	r := &compensationRunner{}
	report := New(Config{Runner: r}).Rollback(context.Background(), nil, nil)

	assert.Empty(t, r.calls)
	assert.True(t, report.Succeeded())
	assert.Equal(t, "rolled back 0 step(s)", report.Summary())
}
