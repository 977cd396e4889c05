package engine

import (
	"errors"
	"strings"
)

// Ошибки валидации конфигурации деплоя.
var (
	// ErrInvalidConfig — конфигурация не прошла валидацию.
	ErrInvalidConfig = errors.New("invalid deployment config")

	// ErrEmptyPlan — план пуст, а policy.requireSteps требует шагов.
	ErrEmptyPlan = errors.New("deployment plan has no steps")

	// ErrMissingCommand — для запрошенной стадии не задана команда.
	ErrMissingCommand = errors.New("stage command is not configured")
)

// Ошибки построения графа.
var (
	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrMissingDependency — шаг зависит от несуществующего шага.
	ErrMissingDependency = errors.New("step depends on unknown step")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — шаг зависит от самого себя.
	ErrSelfDependency = errors.New("step depends on itself")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// ConfigurationError — конфигурация деплоя невалидна.
// Деплой с такой ошибкой сразу становится failed, ни один шаг не запускается.
type ConfigurationError struct {
	// Problems — все найденные нарушения.
	Problems []error
}

// Error реализует интерфейс error.
func (e *ConfigurationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}
	return "configuration error: " + strings.Join(msgs, "; ")
}

// Unwrap позволяет errors.Is/As добраться до конкретных нарушений.
func (e *ConfigurationError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.Problems...)
}

// DependencyCycleError — в графе шагов есть цикл.
type DependencyCycleError struct {
	// StepIDs — шаги, участвующие в цикле или заблокированные им.
	StepIDs []string
}

// Error реализует интерфейс error.
func (e *DependencyCycleError) Error() string {
	return "cyclic dependency detected between steps: " + strings.Join(e.StepIDs, ", ")
}

// Unwrap возвращает ErrCyclicDependency.
func (e *DependencyCycleError) Unwrap() error {
	return ErrCyclicDependency
}
