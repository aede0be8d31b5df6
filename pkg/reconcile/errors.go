package reconcile

import (
	"errors"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/locks"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
)

var (
	// ErrIntegrity marks a canonical-store inconsistency. Fatal to the record, never to the batch.
	ErrIntegrity = models.ErrIntegrity
	// ErrConcurrentWrite marks a lost race on an entity. Retried with backoff.
	ErrConcurrentWrite = errors.New("concurrent write")
	// ErrNotPending is returned when resolving a candidate that was already resolved
	ErrNotPending = errors.New("candidate is not pending review")
	// ErrInvalidRecord marks a raw record that cannot be reconciled at all
	ErrInvalidRecord = errors.New("invalid raw record")
)

// retryable reports whether err is worth another attempt
func retryable(err error) bool {
	return errors.Is(err, ErrConcurrentWrite) ||
		errors.Is(err, store.ErrVersionConflict) ||
		errors.Is(err, store.ErrTxConflict) ||
		errors.Is(err, locks.ErrNotAcquired)
}
