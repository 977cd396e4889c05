package runner

import "errors"

// Ошибки runner'а.
var (
	// ErrInvalidCommand — дескриптор команды неполный.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrUnknownCommandType — нет runner'а для данного типа команды.
	ErrUnknownCommandType = errors.New("unknown command type")
)
