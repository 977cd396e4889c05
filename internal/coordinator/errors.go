package coordinator

import "errors"

// Ошибки координатора.
var (
	// ErrDeploymentAlreadyActive — деплой с таким ID уже выполняется.
	ErrDeploymentAlreadyActive = errors.New("deployment already active")

	// ErrDeploymentNotActive — деплой не выполняется этим координатором.
	ErrDeploymentNotActive = errors.New("deployment not active")

	// ErrDeploymentNotPending — запускать можно только pending деплой.
	ErrDeploymentNotPending = errors.New("deployment is not pending")

	// ErrCoordinatorStopped — координатор остановлен и не принимает деплои.
	ErrCoordinatorStopped = errors.New("coordinator stopped")
)
