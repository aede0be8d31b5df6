package database

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/lib/pq"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
)

// postgres codes for a transaction aborted in favour of a concurrent one
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// IsTxConflict reports whether err is postgres aborting a transaction that
// lost a race
func IsTxConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// QueryError is what a repository returns for a failed statement. Lost races
// wrap store.ErrTxConflict so the whole transaction can be retried.
func QueryError(err error, message string) error {
	if IsTxConflict(err) {
		return fmt.Errorf("%w: %s: %v", store.ErrTxConflict, message, err)
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}
