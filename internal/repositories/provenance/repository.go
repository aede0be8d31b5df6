package provenance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/database"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

var columns = []string{
	"fingerprint", "raw_record_id", "source", "state", "competitor_id", "opponent_id", "contest_id",
	"history_view_id", "pending_id", "payload", "created_at", "updated_at",
}

// Repository stores the provenance entry of every processed raw record
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new provenance repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get returns the provenance entry of a record fingerprint
func (r *Repository) Get(ctx context.Context, fingerprint string) (*models.RawRecordLink, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("raw_record_links")
	sb.Where(sb.Equal("fingerprint", fingerprint))

	query, args := sb.Build()
	var link models.RawRecordLink
	if err := r.db.Conn(ctx).GetContext(ctx, &link, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("raw record", fingerprint)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get raw record link")
		return nil, database.QueryError(err, "failed to get raw record link")
	}
	return &link, nil
}

// Upsert writes the entry, keeping the original creation time
func (r *Repository) Upsert(ctx context.Context, link *models.RawRecordLink) error {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now

	payload := []byte(link.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	l := link
	ib := database.NewInsertBuilder()
	ib.InsertInto("raw_record_links")
	ib.Cols(columns...)
	ib.Values(l.Fingerprint, l.RawRecordID, l.Source, l.State, l.CompetitorID, l.OpponentID, l.ContestID,
		l.HistoryViewID, l.PendingID, payload, l.CreatedAt, l.UpdatedAt)

	ub := ib.OnConflict("fingerprint")
	ub.Set(
		ub.Assign("raw_record_id", database.Excluded("raw_record_id")),
		ub.Assign("source", database.Excluded("source")),
		ub.Assign("state", database.Excluded("state")),
		ub.Assign("competitor_id", database.Excluded("competitor_id")),
		ub.Assign("opponent_id", database.Excluded("opponent_id")),
		ub.Assign("contest_id", database.Excluded("contest_id")),
		ub.Assign("history_view_id", database.Excluded("history_view_id")),
		ub.Assign("pending_id", database.Excluded("pending_id")),
		ub.Assign("payload", database.Excluded("payload")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)
	ib.Returning("created_at")

	query, args := ib.Build()
	if err := r.db.Conn(ctx).GetContext(ctx, &link.CreatedAt, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"fingerprint": l.Fingerprint}).Error("Failed to upsert raw record link")
		return database.QueryError(err, "failed to upsert raw record link")
	}
	return nil
}
