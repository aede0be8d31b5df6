package database

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
)

func TestQueryError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, conflict: true},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, conflict: true},
		{name: "lock timeout", err: &pq.Error{Code: "55P03"}, conflict: true},
		{name: "wrapped commit failure", err: fmt.Errorf("error while committing transaction: %w", &pq.Error{Code: "40001"}), conflict: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}},
		{name: "not a driver error", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.conflict, IsTxConflict(tt.err))

			err := QueryError(tt.err, "failed to update competitor")
			assert.Equal(t, tt.conflict, errors.Is(err, store.ErrTxConflict))
			if !tt.conflict {
				assert.True(t, httperror.IsHTTPError(err))
				assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))
			}
		})
	}
}
