package coordinator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/domain"
)

// Handle — ссылка на выполняющийся деплой.
type Handle struct {
	// ID — идентификатор деплоя.
	ID uuid.UUID

	cancel     context.CancelFunc
	cancelOnce sync.Once
	cancelled  chan struct{}
	done       chan struct{}

	// result и err записываются до закрытия done.
	result *domain.Deployment
	err    error
}

func newHandle(id uuid.UUID, cancel context.CancelFunc) *Handle {
	return &Handle{
		ID:        id,
		cancel:    cancel,
		cancelled: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Done закрывается, когда деплой достиг финального статуса.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait ждёт завершения деплоя и возвращает его итоговое состояние.
// Ошибка — инфраструктурная (Store); неудача деплоя отражается в статусе.
func (h *Handle) Wait(ctx context.Context) (*domain.Deployment, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.result, h.err
	}
}

// Cancel запрашивает отмену. Запущенные шаги доводятся до конца,
// новые не стартуют. Повторный вызов ничего не делает.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		close(h.cancelled)
		h.cancel()
	})
}

// CancelRequested возвращает true, если Cancel уже вызывался.
func (h *Handle) CancelRequested() bool {
	select {
	case <-h.cancelled:
		return true
	default:
		return false
	}
}

func (h *Handle) finish(d *domain.Deployment, err error) {
	h.result, h.err = d, err
	close(h.done)
}
