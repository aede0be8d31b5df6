package pending

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/database"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

var columns = []string{
	"id", "fingerprint", "subject", "raw_name", "raw_date", "raw_event", "raw_record", "candidates",
	"band", "suggested_competitor_id", "pinned_competitor_id", "pinned_opponent_id", "status",
	"resolution", "resolved_by", "resolved_at", "created_at", "updated_at",
}

type row struct {
	ID                    string                             `db:"id"`
	Fingerprint           string                             `db:"fingerprint"`
	Subject               models.Subject                     `db:"subject"`
	RawName               string                             `db:"raw_name"`
	RawDate               *string                            `db:"raw_date"`
	RawEvent              *string                            `db:"raw_event"`
	RawRecord             database.JSONB[models.RawRecord]   `db:"raw_record"`
	Candidates            database.JSONB[[]models.Candidate] `db:"candidates"`
	Band                  models.Band                        `db:"band"`
	SuggestedCompetitorID *string                            `db:"suggested_competitor_id"`
	PinnedCompetitorID    *string                            `db:"pinned_competitor_id"`
	PinnedOpponentID      *string                            `db:"pinned_opponent_id"`
	Status                models.PendingStatus               `db:"status"`
	Resolution            *string                            `db:"resolution"`
	ResolvedBy            *string                            `db:"resolved_by"`
	ResolvedAt            *time.Time                         `db:"resolved_at"`
	CreatedAt             time.Time                          `db:"created_at"`
	UpdatedAt             time.Time                          `db:"updated_at"`
}

func (r row) model() *models.PendingCandidate {
	return &models.PendingCandidate{
		ID:                    r.ID,
		Fingerprint:           r.Fingerprint,
		Subject:               r.Subject,
		RawName:               r.RawName,
		RawDate:               r.RawDate,
		RawEvent:              r.RawEvent,
		RawRecord:             r.RawRecord.GetValue(),
		Candidates:            r.Candidates.GetValue(),
		Band:                  r.Band,
		SuggestedCompetitorID: r.SuggestedCompetitorID,
		PinnedCompetitorID:    r.PinnedCompetitorID,
		PinnedOpponentID:      r.PinnedOpponentID,
		Status:                r.Status,
		Resolution:            r.Resolution,
		ResolvedBy:            r.ResolvedBy,
		ResolvedAt:            r.ResolvedAt,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

// Repository handles the review queue
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new pending candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create queues a pending candidate
func (r *Repository) Create(ctx context.Context, pending *models.PendingCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "pending.Repository.Create")
	defer span.End()

	if pending.ID == "" {
		pending.ID = uuid.New().String()
	}
	if pending.Status == "" {
		pending.Status = models.PendingStatusPending
	}
	pending.CreatedAt = time.Now().UTC()
	pending.UpdatedAt = pending.CreatedAt

	p := pending
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("pending_candidates")
	sb.Cols(columns...)
	sb.Values(p.ID, p.Fingerprint, p.Subject, p.RawName, p.RawDate, p.RawEvent,
		database.JSONB[models.RawRecord]{Data: p.RawRecord}, database.JSONB[[]models.Candidate]{Data: candidates(p)},
		p.Band, p.SuggestedCompetitorID, p.PinnedCompetitorID, p.PinnedOpponentID, p.Status,
		p.Resolution, p.ResolvedBy, p.ResolvedAt, p.CreatedAt, p.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"pending_id": p.ID}).Error("Failed to create pending candidate")
		return database.QueryError(err, "failed to create pending candidate")
	}
	return nil
}

// Get retrieves a pending candidate by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.PendingCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "pending.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("pending_candidates")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var p row
	if err := r.db.Conn(ctx).GetContext(ctx, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("pending candidate", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get pending candidate")
		return nil, database.QueryError(err, "failed to get pending candidate")
	}
	return p.model(), nil
}

// Update records review progress on a pending candidate
func (r *Repository) Update(ctx context.Context, pending *models.PendingCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "pending.Repository.Update")
	defer span.End()

	pending.UpdatedAt = time.Now().UTC()

	p := pending
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("pending_candidates")
	ub.Set(
		ub.Assign("candidates", database.JSONB[[]models.Candidate]{Data: candidates(p)}),
		ub.Assign("band", p.Band),
		ub.Assign("suggested_competitor_id", p.SuggestedCompetitorID),
		ub.Assign("pinned_competitor_id", p.PinnedCompetitorID),
		ub.Assign("pinned_opponent_id", p.PinnedOpponentID),
		ub.Assign("status", p.Status),
		ub.Assign("resolution", p.Resolution),
		ub.Assign("resolved_by", p.ResolvedBy),
		ub.Assign("resolved_at", p.ResolvedAt),
		ub.Assign("updated_at", p.UpdatedAt),
	)
	ub.Where(ub.Equal("id", p.ID))

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"pending_id": p.ID}).Error("Failed to update pending candidate")
		return database.QueryError(err, "failed to update pending candidate")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return store.NotFound("pending candidate", p.ID)
	}
	return nil
}

// ListPending retrieves candidates awaiting review, oldest first
func (r *Repository) ListPending(ctx context.Context, limit int) ([]*models.PendingCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "pending.Repository.ListPending")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("pending_candidates")
	sb.Where(sb.Equal("status", models.PendingStatusPending))
	sb.OrderBy("created_at", "id")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []row
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending candidates")
		return nil, database.QueryError(err, "failed to list pending candidates")
	}

	out := make([]*models.PendingCandidate, len(rows))
	for i, p := range rows {
		out[i] = p.model()
	}
	return out, nil
}

func candidates(p *models.PendingCandidate) []models.Candidate {
	if p.Candidates == nil {
		return []models.Candidate{}
	}
	return p.Candidates
}
