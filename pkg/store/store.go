// Package store defines the canonical store the reconciliation engine reads
// and writes. Implementations live in internal/repositories (postgres) and
// pkg/store/memory.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
)

var (
	// ErrVersionConflict is returned when an optimistic update loses a race
	ErrVersionConflict = errors.New("version conflict")
	// ErrTxConflict is returned when the database aborts a transaction that
	// lost a race with another: a serialization failure, deadlock or lock timeout
	ErrTxConflict = errors.New("transaction conflict")
)

// IsNotFound reports whether err is a repository 404
func IsNotFound(err error) bool {
	return err != nil && httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound
}

// NotFound builds the repository 404 error
func NotFound(kind, id string) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("%s %s not found", kind, id))
}

type CompetitorRepository interface {
	Create(ctx context.Context, competitor *models.Competitor) error
	Get(ctx context.Context, id string) (*models.Competitor, error)
	Update(ctx context.Context, competitor *models.Competitor) error
	// AdjustRecord adds delta to the tally for result in place, so concurrent
	// adjustments never overwrite each other
	AdjustRecord(ctx context.Context, id string, result models.Result, delta int) error
	// FindByNameKey returns active competitors whose display name or any
	// alternate name has the key
	FindByNameKey(ctx context.Context, key string) ([]*models.Competitor, error)
	// Search returns active competitors plausibly similar to name, best first
	Search(ctx context.Context, name string, limit int) ([]*models.Competitor, error)
	AddAlternateName(ctx context.Context, alt *models.AlternateName) error
}

type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	Get(ctx context.Context, id string) (*models.Event, error)
	FindByNameKey(ctx context.Context, key string) ([]*models.Event, error)
	ListByDate(ctx context.Context, day time.Time) ([]*models.Event, error)
}

type ContestRepository interface {
	Create(ctx context.Context, contest *models.Contest) error
	Get(ctx context.Context, id string) (*models.Contest, error)
	// Update bumps Version and fails with ErrVersionConflict when the stored
	// version differs from contest.Version
	Update(ctx context.Context, contest *models.Contest) error
	ListByEvent(ctx context.Context, eventID string) ([]*models.Contest, error)
	// FindDuplicateGroups returns groups of active contests sharing an event and
	// an unordered participant pair, each group ordered oldest first
	FindDuplicateGroups(ctx context.Context) ([][]*models.Contest, error)
}

type HistoryViewRepository interface {
	Create(ctx context.Context, view *models.HistoryView) error
	Get(ctx context.Context, id string) (*models.HistoryView, error)
	Update(ctx context.Context, view *models.HistoryView) error
	GetByContestAndCompetitor(ctx context.Context, contestID, competitorID string) (*models.HistoryView, error)
	ListByContest(ctx context.Context, contestID string) ([]*models.HistoryView, error)
	// ListLegacyByCompetitor returns unlinked views that were never superseded
	ListLegacyByCompetitor(ctx context.Context, competitorID string) ([]*models.HistoryView, error)
}

type PendingRepository interface {
	Create(ctx context.Context, pending *models.PendingCandidate) error
	Get(ctx context.Context, id string) (*models.PendingCandidate, error)
	Update(ctx context.Context, pending *models.PendingCandidate) error
	ListPending(ctx context.Context, limit int) ([]*models.PendingCandidate, error)
}

type ProvenanceRepository interface {
	Get(ctx context.Context, fingerprint string) (*models.RawRecordLink, error)
	Upsert(ctx context.Context, link *models.RawRecordLink) error
}

// Transactor runs fn atomically: every write made through ctx inside fn
// commits together or not at all
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles the repositories of one canonical store
type Store struct {
	Competitors  CompetitorRepository
	Events       EventRepository
	Contests     ContestRepository
	HistoryViews HistoryViewRepository
	Pending      PendingRepository
	Provenance   ProvenanceRepository
	Tx           Transactor
}
