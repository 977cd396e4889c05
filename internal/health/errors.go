package health

import (
	"errors"
	"fmt"
)

// ErrHealthCheckFailed — проверка здоровья не прошла.
var ErrHealthCheckFailed = errors.New("health check failed")

// CheckFailure — детали неудачной проверки.
type CheckFailure struct {
	URL      string
	Attempts int
	Err      error
}

// Error реализует интерфейс error.
func (e *CheckFailure) Error() string {
	return fmt.Sprintf("health check %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

// Unwrap возвращает ErrHealthCheckFailed и исходную причину.
func (e *CheckFailure) Unwrap() []error {
	return []error{ErrHealthCheckFailed, e.Err}
}
