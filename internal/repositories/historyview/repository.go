package historyview

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
	"id", "competitor_id", "contest_id", "opponent_id", "snapshot", "has_conflict", "conflicts",
	"raw_record_id", "superseded_by", "created_at", "updated_at",
}

// row is the table shape of a history view; snapshot and conflicts are jsonb
type row struct {
	ID           string                                 `db:"id"`
	CompetitorID string                                 `db:"competitor_id"`
	ContestID    *string                                `db:"contest_id"`
	OpponentID   *string                                `db:"opponent_id"`
	Snapshot     database.JSONB[models.ViewFields]      `db:"snapshot"`
	HasConflict  bool                                   `db:"has_conflict"`
	Conflicts    database.JSONB[[]models.FieldConflict] `db:"conflicts"`
	RawRecordID  *string                                `db:"raw_record_id"`
	SupersededBy *string                                `db:"superseded_by"`
	CreatedAt    time.Time                              `db:"created_at"`
	UpdatedAt    time.Time                              `db:"updated_at"`
}

func (r row) model() *models.HistoryView {
	return &models.HistoryView{
		ID:           r.ID,
		CompetitorID: r.CompetitorID,
		ContestID:    r.ContestID,
		OpponentID:   r.OpponentID,
		Snapshot:     r.Snapshot.GetValue(),
		HasConflict:  r.HasConflict,
		Conflicts:    r.Conflicts.GetValue(),
		RawRecordID:  r.RawRecordID,
		SupersededBy: r.SupersededBy,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Repository handles history view persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new history view repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a history view
func (r *Repository) Create(ctx context.Context, view *models.HistoryView) error {
	ctx, span := tracing.StartSpan(ctx, "historyview.Repository.Create")
	defer span.End()

	if view.ID == "" {
		view.ID = uuid.New().String()
	}
	view.CreatedAt = time.Now().UTC()
	view.UpdatedAt = view.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("history_views")
	sb.Cols(columns...)
	sb.Values(view.ID, view.CompetitorID, view.ContestID, view.OpponentID,
		database.JSONB[models.ViewFields]{Data: view.Snapshot}, view.HasConflict,
		database.JSONB[[]models.FieldConflict]{Data: conflicts(view)},
		view.RawRecordID, view.SupersededBy, view.CreatedAt, view.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"history_view_id": view.ID}).Error("Failed to create history view")
		return database.QueryError(err, "failed to create history view")
	}
	return nil
}

// Get retrieves a history view by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.HistoryView, error) {
	ctx, span := tracing.StartSpan(ctx, "historyview.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("history_views")
	sb.Where(sb.Equal("id", id))

	return r.get(ctx, sb, id)
}

// Update rewrites a history view
func (r *Repository) Update(ctx context.Context, view *models.HistoryView) error {
	ctx, span := tracing.StartSpan(ctx, "historyview.Repository.Update")
	defer span.End()

	view.UpdatedAt = time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("history_views")
	ub.Set(
		ub.Assign("competitor_id", view.CompetitorID),
		ub.Assign("contest_id", view.ContestID),
		ub.Assign("opponent_id", view.OpponentID),
		ub.Assign("snapshot", database.JSONB[models.ViewFields]{Data: view.Snapshot}),
		ub.Assign("has_conflict", view.HasConflict),
		ub.Assign("conflicts", database.JSONB[[]models.FieldConflict]{Data: conflicts(view)}),
		ub.Assign("raw_record_id", view.RawRecordID),
		ub.Assign("superseded_by", view.SupersededBy),
		ub.Assign("updated_at", view.UpdatedAt),
	)
	ub.Where(ub.Equal("id", view.ID))

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"history_view_id": view.ID}).Error("Failed to update history view")
		return database.QueryError(err, "failed to update history view")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return store.NotFound("history view", view.ID)
	}
	return nil
}

// GetByContestAndCompetitor returns the competitor's view of a contest
func (r *Repository) GetByContestAndCompetitor(ctx context.Context, contestID, competitorID string) (*models.HistoryView, error) {
	ctx, span := tracing.StartSpan(ctx, "historyview.Repository.GetByContestAndCompetitor")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("history_views")
	sb.Where(
		sb.Equal("contest_id", contestID),
		sb.Equal("competitor_id", competitorID),
	)
	sb.OrderBy("created_at")
	sb.Limit(1)

	return r.get(ctx, sb, contestID+"/"+competitorID)
}

// ListByContest returns every view attached to a contest, oldest first
func (r *Repository) ListByContest(ctx context.Context, contestID string) ([]*models.HistoryView, error) {
	ctx, span := tracing.StartSpan(ctx, "historyview.Repository.ListByContest")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("history_views")
	sb.Where(sb.Equal("contest_id", contestID))
	sb.OrderBy("created_at", "id")

	return r.list(ctx, sb)
}

// ListLegacyByCompetitor returns the competitor's views without a contest,
// leaving out superseded ones
func (r *Repository) ListLegacyByCompetitor(ctx context.Context, competitorID string) ([]*models.HistoryView, error) {
	ctx, span := tracing.StartSpan(ctx, "historyview.Repository.ListLegacyByCompetitor")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("history_views")
	sb.Where(
		sb.Equal("competitor_id", competitorID),
		sb.IsNull("contest_id"),
		sb.IsNull("superseded_by"),
	)
	sb.OrderBy("created_at", "id")

	return r.list(ctx, sb)
}

func (r *Repository) get(ctx context.Context, sb *sqlbuilder.SelectBuilder, id string) (*models.HistoryView, error) {
	query, args := sb.Build()
	var v row
	if err := r.db.Conn(ctx).GetContext(ctx, &v, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("history view", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get history view")
		return nil, database.QueryError(err, "failed to get history view")
	}
	return v.model(), nil
}

func (r *Repository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]*models.HistoryView, error) {
	query, args := sb.Build()
	var rows []row
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list history views")
		return nil, database.QueryError(err, "failed to list history views")
	}

	views := make([]*models.HistoryView, len(rows))
	for i, v := range rows {
		views[i] = v.model()
	}
	return views, nil
}

func conflicts(view *models.HistoryView) []models.FieldConflict {
	if view.Conflicts == nil {
		return []models.FieldConflict{}
	}
	return view.Conflicts
}
