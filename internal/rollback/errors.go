package rollback

import (
	"errors"
	"fmt"
)

// ErrRollbackFailed — компенсирующая команда шага не выполнилась.
var ErrRollbackFailed = errors.New("rollback failed")

// Failure — неудачная компенсация одного шага.
type Failure struct {
	StepID string
	Err    error
}

// Error реализует интерфейс error.
func (e *Failure) Error() string {
	return fmt.Sprintf("rollback of step %s: %v", e.StepID, e.Err)
}

// Unwrap возвращает ErrRollbackFailed и причину.
func (e *Failure) Unwrap() []error {
	return []error{ErrRollbackFailed, e.Err}
}
