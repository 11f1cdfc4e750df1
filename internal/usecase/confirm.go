package usecase

import (
	"time"

	"github.com/totegamma/bookshelf/internal/domain"
)

// DefaultConfirmTimeout bounds how long a submitted transaction may stay pending.
const DefaultConfirmTimeout = 60 * time.Second

// watchConfirmation fails h if it is still pending after timeout.
func watchConfirmation(h *domain.TransactionHandle, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-h.Done():
		case <-timer.C:
			h.Fail(domain.TransactionError{Op: h.Kind, Err: domain.ErrTimeout})
		}
	}()
}
