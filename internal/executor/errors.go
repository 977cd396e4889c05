package executor

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки выполнения шагов.
var (
	// ErrStepFailed — шаг завершился неудачей.
	ErrStepFailed = errors.New("step failed")

	// ErrStepTimeout — попытка шага превысила таймаут.
	ErrStepTimeout = errors.New("step timed out")

	// ErrCancelled — выполнение остановлено отменой деплоя.
	ErrCancelled = errors.New("deployment cancelled")

	// ErrNoRunner — executor создан без runner'а.
	ErrNoRunner = errors.New("executor has no runner")

	// ErrStepNotPending — граф содержит уже выполнявшиеся шаги.
	ErrStepNotPending = errors.New("step is not pending")
)

// StepExecutionError — шаг упал: runner вернул неудачу, ошибку
// или не прошла проверка здоровья.
type StepExecutionError struct {
	StepID   string
	Attempts int
	Err      error
}

// Error реализует интерфейс error.
func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.StepID, e.Attempts, e.Err)
}

// Unwrap возвращает ErrStepFailed и причину.
func (e *StepExecutionError) Unwrap() []error {
	return []error{ErrStepFailed, e.Err}
}

// TimeoutError — последняя попытка шага не уложилась в таймаут.
type TimeoutError struct {
	StepID   string
	Attempts int
	Timeout  time.Duration
}

// Error реализует интерфейс error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s (attempt %d)", e.StepID, e.Timeout, e.Attempts)
}

// Unwrap возвращает ErrStepTimeout и ErrStepFailed.
func (e *TimeoutError) Unwrap() []error {
	return []error{ErrStepTimeout, ErrStepFailed}
}
