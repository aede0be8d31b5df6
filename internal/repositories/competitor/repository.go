package competitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/database"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/normalizers"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

var columns = []string{
	"id", "given_name", "family_name", "display_name", "name_key", "is_single_name",
	"nationality", "height_cm", "weight_kg", "reach_cm", "stance", "date_of_birth",
	"wins", "losses", "draws", "no_contests", "is_active", "created_at", "updated_at",
}

var tallyColumns = map[models.Result]string{
	models.ResultWin:       "wins",
	models.ResultLoss:      "losses",
	models.ResultDraw:      "draws",
	models.ResultNoContest: "no_contests",
}

var altColumns = []string{"id", "competitor_id", "name", "name_key", "type", "source", "created_at", "updated_at"}

// Repository handles competitor and alternate name persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new competitor repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a competitor together with its alternate names
func (r *Repository) Create(ctx context.Context, competitor *models.Competitor) error {
	ctx, span := tracing.StartSpan(ctx, "competitor.Repository.Create")
	defer span.End()

	if competitor.ID == "" {
		competitor.ID = uuid.New().String()
	}
	if competitor.NameKey == "" {
		competitor.NameKey = normalizers.NameKey(competitor.DisplayName)
	}
	competitor.CreatedAt = time.Now().UTC()
	competitor.UpdatedAt = competitor.CreatedAt

	c := competitor
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("competitors")
	sb.Cols(columns...)
	sb.Values(c.ID, c.GivenName, c.FamilyName, c.DisplayName, c.NameKey, c.IsSingleName,
		c.Nationality, c.HeightCm, c.WeightKg, c.ReachCm, c.Stance, c.DateOfBirth,
		c.Wins, c.Losses, c.Draws, c.NoContests, c.IsActive, c.CreatedAt, c.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"competitor_id": c.ID}).Error("Failed to create competitor")
		return database.QueryError(err, "failed to create competitor")
	}

	for i := range competitor.AlternateNames {
		competitor.AlternateNames[i].CompetitorID = competitor.ID
		if err := r.AddAlternateName(ctx, &competitor.AlternateNames[i]); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a competitor by ID, with alternate names
func (r *Repository) Get(ctx context.Context, id string) (*models.Competitor, error) {
	ctx, span := tracing.StartSpan(ctx, "competitor.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("competitors")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var competitor models.Competitor
	if err := r.db.Conn(ctx).GetContext(ctx, &competitor, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("competitor", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get competitor")
		return nil, database.QueryError(err, "failed to get competitor")
	}

	loaded := []*models.Competitor{&competitor}
	if err := r.loadAlternateNames(ctx, loaded); err != nil {
		return nil, err
	}
	return &competitor, nil
}

// Update writes the competitor's own columns. Alternate names are append-only
// through AddAlternateName.
func (r *Repository) Update(ctx context.Context, competitor *models.Competitor) error {
	ctx, span := tracing.StartSpan(ctx, "competitor.Repository.Update")
	defer span.End()

	competitor.UpdatedAt = time.Now().UTC()

	c := competitor
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("competitors")
	ub.Set(
		ub.Assign("given_name", c.GivenName),
		ub.Assign("family_name", c.FamilyName),
		ub.Assign("display_name", c.DisplayName),
		ub.Assign("name_key", c.NameKey),
		ub.Assign("is_single_name", c.IsSingleName),
		ub.Assign("nationality", c.Nationality),
		ub.Assign("height_cm", c.HeightCm),
		ub.Assign("weight_kg", c.WeightKg),
		ub.Assign("reach_cm", c.ReachCm),
		ub.Assign("stance", c.Stance),
		ub.Assign("date_of_birth", c.DateOfBirth),
		ub.Assign("wins", c.Wins),
		ub.Assign("losses", c.Losses),
		ub.Assign("draws", c.Draws),
		ub.Assign("no_contests", c.NoContests),
		ub.Assign("is_active", c.IsActive),
		ub.Assign("updated_at", c.UpdatedAt),
	)
	ub.Where(ub.Equal("id", c.ID))

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"competitor_id": c.ID}).Error("Failed to update competitor")
		return database.QueryError(err, "failed to update competitor")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return store.NotFound("competitor", c.ID)
	}
	return nil
}

// AdjustRecord adds delta to one tally column in a single statement
func (r *Repository) AdjustRecord(ctx context.Context, id string, result models.Result, delta int) error {
	ctx, span := tracing.StartSpan(ctx, "competitor.Repository.AdjustRecord")
	defer span.End()

	column, ok := tallyColumns[result]
	if !ok {
		return fmt.Errorf("cannot tally result %q", result)
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("competitors")
	ub.Set(
		ub.Add(column, delta),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	res, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"competitor_id": id}).Error("Failed to adjust competitor record")
		return database.QueryError(err, "failed to adjust competitor record")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.NotFound("competitor", id)
	}
	return nil
}

// FindByNameKey returns active competitors whose display name or any
// alternate name has the key
func (r *Repository) FindByNameKey(ctx context.Context, key string) ([]*models.Competitor, error) {
	ctx, span := tracing.StartSpan(ctx, "competitor.Repository.FindByNameKey")
	defer span.End()

	sub := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sub.Select("competitor_id").From("alternate_names")
	sub.Where(sub.Equal("name_key", key))

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("competitors")
	sb.Where(
		sb.Equal("is_active", true),
		sb.Or(
			sb.Equal("name_key", key),
			sb.In("id", sub),
		),
	)
	sb.OrderBy("id")

	return r.list(ctx, sb, "Failed to find competitors by name")
}

// Search ranks active competitors by pg_trgm similarity of their best
// matching name, best first
func (r *Repository) Search(ctx context.Context, name string, limit int) ([]*models.Competitor, error) {
	ctx, span := tracing.StartSpan(ctx, "competitor.Repository.Search")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 50
	}
	key := normalizers.NameKey(name)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(prefixed("c", columns)...)
	sb.From("competitors c")
	sb.Join(fmt.Sprintf(
		"LATERAL (SELECT GREATEST(similarity(c.name_key, %s), COALESCE(MAX(similarity(a.name_key, %s)), 0)) AS score FROM alternate_names a WHERE a.competitor_id = c.id) s",
		sb.Var(key), sb.Var(key),
	), "TRUE")
	sb.Where(
		"c.is_active",
		"s.score > 0",
	)
	sb.OrderBy("s.score DESC", "c.id")
	sb.Limit(limit)

	return r.list(ctx, sb, "Failed to search competitors")
}

// AddAlternateName records another name for an existing competitor
func (r *Repository) AddAlternateName(ctx context.Context, alt *models.AlternateName) error {
	ctx, span := tracing.StartSpan(ctx, "competitor.Repository.AddAlternateName")
	defer span.End()

	if alt.ID == "" {
		alt.ID = uuid.New().String()
	}
	if alt.NameKey == "" {
		alt.NameKey = normalizers.NameKey(alt.Name)
	}
	alt.CreatedAt = time.Now().UTC()
	alt.UpdatedAt = alt.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("alternate_names")
	sb.Cols(altColumns...)
	sb.Values(alt.ID, alt.CompetitorID, alt.Name, alt.NameKey, alt.Type, alt.Source, alt.CreatedAt, alt.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return store.NotFound("competitor", alt.CompetitorID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"competitor_id": alt.CompetitorID}).Error("Failed to add alternate name")
		return database.QueryError(err, "failed to add alternate name")
	}
	return nil
}

func (r *Repository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder, failure string) ([]*models.Competitor, error) {
	query, args := sb.Build()
	var competitors []*models.Competitor
	if err := r.db.Conn(ctx).SelectContext(ctx, &competitors, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error(failure)
		return nil, database.QueryError(err, "failed to list competitors")
	}
	if err := r.loadAlternateNames(ctx, competitors); err != nil {
		return nil, err
	}
	return competitors, nil
}

func (r *Repository) loadAlternateNames(ctx context.Context, competitors []*models.Competitor) error {
	if len(competitors) == 0 {
		return nil
	}

	ids := make([]string, len(competitors))
	byID := make(map[string]*models.Competitor, len(competitors))
	for i, c := range competitors {
		ids[i] = c.ID
		byID[c.ID] = c
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(altColumns...)
	sb.From("alternate_names")
	sb.Where("competitor_id = ANY(" + sb.Var(pq.Array(ids)) + "::uuid[])")
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var alts []models.AlternateName
	if err := r.db.Conn(ctx).SelectContext(ctx, &alts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load alternate names")
		return database.QueryError(err, "failed to load alternate names")
	}
	for _, alt := range alts {
		if c, ok := byID[alt.CompetitorID]; ok {
			c.AlternateNames = append(c.AlternateNames, alt)
		}
	}
	return nil
}

func prefixed(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, col := range cols {
		out[i] = alias + "." + col
	}
	return out
}
