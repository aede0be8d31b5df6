package repositories

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/database"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
)

// newTestStore connects to the postgres named by DB_HOST and migrates it
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping postgres repository test in short mode")
	}
	host := os.Getenv("DB_HOST")
	if host == "" {
		t.Skip("DB_HOST not set")
	}

	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	cfg := database.ConnectionConfig{
		Host:            host,
		Port:            envOr("DB_PORT", "5432"),
		User:            envOr("DB_USER_NAME", "postgres"),
		Password:        os.Getenv("DB_PASSWORD"),
		Name:            envOr("DB_NAME", "pugna_test"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}

	ctx := context.Background()
	conn, err := database.Connect(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: "../../db/pg"})
	require.NoError(t, migrations.MigratePostgres(conn, cfg.Name))

	return NewStore(database.NewDatabaseInstance(conn, logger), logger)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newCompetitor(given, family string) *models.Competitor {
	return &models.Competitor{
		GivenName:   given,
		FamilyName:  family,
		DisplayName: given + " " + family,
		IsActive:    true,
	}
}

func TestStore_CompetitorLookups(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	suffix := uuid.NewString()[:8]
	c := newCompetitor("Mauricio", "Rua"+suffix)
	c.AlternateNames = []models.AlternateName{{Name: "Shogun" + suffix, Type: models.AlternateNameNickname}}
	require.NoError(t, st.Competitors.Create(ctx, c))

	loaded, err := st.Competitors.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, loaded.AlternateNames, 1)
	assert.Equal(t, c.ID, loaded.AlternateNames[0].CompetitorID)

	byAlt, err := st.Competitors.FindByNameKey(ctx, loaded.AlternateNames[0].NameKey)
	require.NoError(t, err)
	require.Len(t, byAlt, 1)
	assert.Equal(t, c.ID, byAlt[0].ID)

	hits, err := st.Competitors.Search(ctx, "Mauricio Rua"+suffix, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, c.ID, hits[0].ID)

	_, err = st.Competitors.Get(ctx, uuid.NewString())
	assert.True(t, store.IsNotFound(err))
}

func TestStore_ContestVersionConflict(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := newCompetitor("Jon", "Jones")
	b := newCompetitor("Daniel", "Cormier")
	require.NoError(t, st.Competitors.Create(ctx, a))
	require.NoError(t, st.Competitors.Create(ctx, b))

	day := time.Date(2015, 1, 3, 0, 0, 0, 0, time.UTC)
	event := &models.Event{Name: "UFC 182 " + uuid.NewString()[:8], Date: &day}
	require.NoError(t, st.Events.Create(ctx, event))

	contest := &models.Contest{
		EventID:       event.ID,
		CompetitorAID: a.ID,
		CompetitorBID: b.ID,
		ResultA:       models.ResultWin,
		ResultB:       models.ResultLoss,
		IsActive:      true,
	}
	require.NoError(t, st.Contests.Create(ctx, contest))
	assert.Equal(t, 1, contest.Version)

	stale := *contest
	require.NoError(t, st.Contests.Update(ctx, contest))
	assert.Equal(t, 2, contest.Version)

	err := st.Contests.Update(ctx, &stale)
	assert.True(t, errors.Is(err, store.ErrVersionConflict))

	onDay, err := st.Events.ListByDate(ctx, day)
	require.NoError(t, err)
	assert.NotEmpty(t, onDay)
}

func TestStore_ConcurrentAdjustRecord(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c := newCompetitor("Jon", "Jones"+uuid.NewString()[:8])
	require.NoError(t, st.Competitors.Create(ctx, c))

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.Tx.WithinTx(ctx, func(ctx context.Context) error {
				return st.Competitors.AdjustRecord(ctx, c.ID, models.ResultWin, 1)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := st.Competitors.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, got.Wins)

	err = st.Competitors.AdjustRecord(ctx, uuid.NewString(), models.ResultWin, 1)
	assert.True(t, store.IsNotFound(err))
}

func TestStore_TransactionRollback(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c := newCompetitor("Rolled", "Back")
	boom := errors.New("boom")
	err := st.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := st.Competitors.Create(ctx, c); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.Competitors.Get(ctx, c.ID)
	assert.True(t, store.IsNotFound(err))
}

func TestStore_ProvenanceUpsertKeepsCreatedAt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	link := &models.RawRecordLink{
		Fingerprint: uuid.NewString(),
		RawRecordID: "r-1",
		State:       models.RecordStatePendingReview,
		Payload:     []byte(`{"raw_name":"Jon Jones"}`),
	}
	require.NoError(t, st.Provenance.Upsert(ctx, link))
	created := link.CreatedAt

	next := *link
	next.CreatedAt = time.Time{}
	next.State = models.RecordStateRejected
	require.NoError(t, st.Provenance.Upsert(ctx, &next))

	stored, err := st.Provenance.Get(ctx, link.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStateRejected, stored.State)
	assert.WithinDuration(t, created, stored.CreatedAt, time.Millisecond)
}
