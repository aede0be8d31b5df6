package event

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
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/normalizers"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

var columns = []string{"id", "name", "name_key", "date", "location", "organization", "created_at", "updated_at"}

// Repository handles event persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new event repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an event
func (r *Repository) Create(ctx context.Context, event *models.Event) error {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.Create")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.NameKey == "" {
		event.NameKey = normalizers.TextKey(event.Name)
	}
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("events")
	sb.Cols(columns...)
	sb.Values(event.ID, event.Name, event.NameKey, event.Date, event.Location, event.Organization, event.CreatedAt, event.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"event_id": event.ID}).Error("Failed to create event")
		return database.QueryError(err, "failed to create event")
	}
	return nil
}

// Get retrieves an event by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("events")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var event models.Event
	if err := r.db.Conn(ctx).GetContext(ctx, &event, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("event", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get event")
		return nil, database.QueryError(err, "failed to get event")
	}
	return &event, nil
}

// FindByNameKey returns events with the normalized name, oldest first
func (r *Repository) FindByNameKey(ctx context.Context, key string) ([]*models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.FindByNameKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("events")
	sb.Where(sb.Equal("name_key", key))
	sb.OrderBy("created_at", "id")

	return r.list(ctx, sb)
}

// ListByDate returns events held on the given calendar day, oldest first
func (r *Repository) ListByDate(ctx context.Context, day time.Time) ([]*models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.ListByDate")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("events")
	sb.Where(sb.Equal("date", normalizers.Day(day).Format(time.DateOnly)))
	sb.OrderBy("created_at", "id")

	return r.list(ctx, sb)
}

func (r *Repository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]*models.Event, error) {
	query, args := sb.Build()
	var events []*models.Event
	if err := r.db.Conn(ctx).SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list events")
		return nil, database.QueryError(err, "failed to list events")
	}
	return events, nil
}
