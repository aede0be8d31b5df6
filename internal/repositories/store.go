// Package repositories is the postgres implementation of the canonical store.
package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/internal/repositories/competitor"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/internal/repositories/contest"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/internal/repositories/event"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/internal/repositories/historyview"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/internal/repositories/pending"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/internal/repositories/provenance"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/database"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
)

// Transactor runs store work in one postgres transaction carried on ctx
type Transactor struct {
	db     database.DB
	logger ectologger.Logger
}

func NewTransactor(db database.DB, logger ectologger.Logger) *Transactor {
	return &Transactor{db: db, logger: logger}
}

// WithinTx runs fn in a transaction. A commit that postgres aborts in favour
// of a concurrent transaction is reported as store.ErrTxConflict.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := database.WithTx(ctx, t.db, t.logger, fn)
	if err != nil && !errors.Is(err, store.ErrTxConflict) && database.IsTxConflict(err) {
		return fmt.Errorf("%w: %v", store.ErrTxConflict, err)
	}
	return err
}

// NewStore wires every postgres repository into a store
func NewStore(db database.DB, logger ectologger.Logger) *store.Store {
	return &store.Store{
		Competitors:  competitor.NewRepository(db, logger),
		Events:       event.NewRepository(db, logger),
		Contests:     contest.NewRepository(db, logger),
		HistoryViews: historyview.NewRepository(db, logger),
		Pending:      pending.NewRepository(db, logger),
		Provenance:   provenance.NewRepository(db, logger),
		Tx:           NewTransactor(db, logger),
	}
}
