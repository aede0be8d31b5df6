package contest

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
	"id", "event_id", "fight_order", "competitor_a_id", "competitor_b_id", "result_a", "result_b",
	"method", "ending_round", "ending_time", "is_title_fight", "is_interim_title", "weight_class",
	"is_active", "version", "created_at", "updated_at",
}

// Repository handles contest persistence. Updates are optimistic on version.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new contest repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a contest at version 1
func (r *Repository) Create(ctx context.Context, contest *models.Contest) error {
	ctx, span := tracing.StartSpan(ctx, "contest.Repository.Create")
	defer span.End()

	if contest.ID == "" {
		contest.ID = uuid.New().String()
	}
	if contest.Version == 0 {
		contest.Version = 1
	}
	contest.CreatedAt = time.Now().UTC()
	contest.UpdatedAt = contest.CreatedAt

	c := contest
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("contests")
	sb.Cols(columns...)
	sb.Values(c.ID, c.EventID, c.FightOrder, c.CompetitorAID, c.CompetitorBID, c.ResultA, c.ResultB,
		c.Method, c.EndingRound, c.EndingTime, c.IsTitleFight, c.IsInterimTitle, c.WeightClass,
		c.IsActive, c.Version, c.CreatedAt, c.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contest_id": c.ID}).Error("Failed to create contest")
		return database.QueryError(err, "failed to create contest")
	}
	return nil
}

// Get retrieves a contest by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Contest, error) {
	ctx, span := tracing.StartSpan(ctx, "contest.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("contests")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var contest models.Contest
	if err := r.db.Conn(ctx).GetContext(ctx, &contest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("contest", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get contest")
		return nil, database.QueryError(err, "failed to get contest")
	}
	return &contest, nil
}

// Update writes the contest when the stored version still equals
// contest.Version, then bumps it
func (r *Repository) Update(ctx context.Context, contest *models.Contest) error {
	ctx, span := tracing.StartSpan(ctx, "contest.Repository.Update")
	defer span.End()

	now := time.Now().UTC()
	c := contest

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("contests")
	ub.Set(
		ub.Assign("event_id", c.EventID),
		ub.Assign("fight_order", c.FightOrder),
		ub.Assign("competitor_a_id", c.CompetitorAID),
		ub.Assign("competitor_b_id", c.CompetitorBID),
		ub.Assign("result_a", c.ResultA),
		ub.Assign("result_b", c.ResultB),
		ub.Assign("method", c.Method),
		ub.Assign("ending_round", c.EndingRound),
		ub.Assign("ending_time", c.EndingTime),
		ub.Assign("is_title_fight", c.IsTitleFight),
		ub.Assign("is_interim_title", c.IsInterimTitle),
		ub.Assign("weight_class", c.WeightClass),
		ub.Assign("is_active", c.IsActive),
		ub.Incr("version"),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", c.ID),
		ub.Equal("version", c.Version),
	)

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contest_id": c.ID}).Error("Failed to update contest")
		return database.QueryError(err, "failed to update contest")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := r.Get(ctx, c.ID); err != nil {
			return err
		}
		return store.ErrVersionConflict
	}

	c.Version++
	c.UpdatedAt = now
	return nil
}

// ListByEvent returns the active contests of an event, oldest first
func (r *Repository) ListByEvent(ctx context.Context, eventID string) ([]*models.Contest, error) {
	ctx, span := tracing.StartSpan(ctx, "contest.Repository.ListByEvent")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("contests")
	sb.Where(
		sb.Equal("event_id", eventID),
		sb.Equal("is_active", true),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var contests []*models.Contest
	if err := r.db.Conn(ctx).SelectContext(ctx, &contests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list contests by event")
		return nil, database.QueryError(err, "failed to list contests")
	}
	return contests, nil
}

const duplicateGroupsQuery = `
	SELECT c.id, c.event_id, c.fight_order, c.competitor_a_id, c.competitor_b_id, c.result_a, c.result_b,
		c.method, c.ending_round, c.ending_time, c.is_title_fight, c.is_interim_title, c.weight_class,
		c.is_active, c.version, c.created_at, c.updated_at
	FROM contests c
	JOIN (
		SELECT event_id, LEAST(competitor_a_id, competitor_b_id) AS low, GREATEST(competitor_a_id, competitor_b_id) AS high
		FROM contests
		WHERE is_active
		GROUP BY 1, 2, 3
		HAVING COUNT(*) > 1
	) d ON d.event_id = c.event_id
		AND d.low = LEAST(c.competitor_a_id, c.competitor_b_id)
		AND d.high = GREATEST(c.competitor_a_id, c.competitor_b_id)
	WHERE c.is_active
	ORDER BY c.event_id, d.low, d.high, c.created_at, c.id
`

// FindDuplicateGroups returns groups of active contests sharing an event and
// an unordered participant pair, each group ordered oldest first
func (r *Repository) FindDuplicateGroups(ctx context.Context) ([][]*models.Contest, error) {
	ctx, span := tracing.StartSpan(ctx, "contest.Repository.FindDuplicateGroups")
	defer span.End()

	var contests []*models.Contest
	if err := r.db.Conn(ctx).SelectContext(ctx, &contests, duplicateGroupsQuery); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find duplicate contests")
		return nil, database.QueryError(err, "failed to find duplicate contests")
	}

	var groups [][]*models.Contest
	for _, c := range contests {
		n := len(groups)
		if n > 0 {
			head := groups[n-1][0]
			if head.EventID == c.EventID && head.SamePair(c) {
				groups[n-1] = append(groups[n-1], c)
				continue
			}
		}
		groups = append(groups, []*models.Contest{c})
	}
	return groups, nil
}
