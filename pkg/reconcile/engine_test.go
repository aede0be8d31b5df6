package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/events"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/locks"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/matching"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/normalizers"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/reconcile"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store/memory"
)

type harness struct {
	engine    *reconcile.Engine
	mem       *memory.Memory
	store     *store.Store
	collector *events.Collector
}

func testConfig() reconcile.Config {
	cfg := reconcile.DefaultConfig()
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	cfg.LockWait = time.Second
	return cfg
}

func newHarness(t *testing.T, opts ...reconcile.Option) *harness {
	t.Helper()
	return newHarnessWithStore(t, nil, opts...)
}

// newHarnessWithStore lets a test wrap the memory repositories before the engine sees them
func newHarnessWithStore(t *testing.T, wrap func(*store.Store), opts ...reconcile.Option) *harness {
	t.Helper()
	return newHarnessWithConfig(t, testConfig(), wrap, opts...)
}

func newHarnessWithConfig(t *testing.T, cfg reconcile.Config, wrap func(*store.Store), opts ...reconcile.Option) *harness {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	mem := memory.New()
	st := mem.Store()
	if wrap != nil {
		wrap(st)
	}
	collector := &events.Collector{}

	opts = append([]reconcile.Option{reconcile.WithSink(collector)}, opts...)
	engine, err := reconcile.NewEngine(logger, st, cfg, opts...)
	require.NoError(t, err)

	return &harness{engine: engine, mem: mem, store: st, collector: collector}
}

func (h *harness) seedCompetitor(t *testing.T, displayName string, alternates ...string) *models.Competitor {
	t.Helper()
	name := normalizers.ParseName(displayName)
	c := &models.Competitor{
		GivenName:    name.GivenName,
		FamilyName:   name.FamilyName,
		DisplayName:  name.DisplayName,
		NameKey:      normalizers.NameKey(name.DisplayName),
		IsSingleName: name.IsSingleName,
		IsActive:     true,
	}
	for _, alt := range alternates {
		c.AlternateNames = append(c.AlternateNames, models.AlternateName{
			Name:    alt,
			NameKey: normalizers.NameKey(alt),
			Type:    models.AlternateNameLegalName,
		})
	}
	require.NoError(t, h.store.Competitors.Create(context.Background(), c))
	return c
}

func str(s string) *string { return &s }

func contestRecord(id, name, opponent, event, date, result string) models.RawRecord {
	return models.RawRecord{
		ID:              id,
		Source:          "test",
		RawName:         name,
		RawOpponentName: str(opponent),
		RawEventName:    str(event),
		RawDate:         str(date),
		RawLocation:     str("Anaheim, California"),
		RawMethod:       str("KO (head kick)"),
		RawResult:       result,
		RawRound:        str("3"),
		RawTime:         str("3:01"),
	}
}

func TestProcessRecord_ExactIdentityViaAlternateName(t *testing.T) {
	h := newHarness(t)
	jones := h.seedCompetitor(t, "Jon Jones", "Jonathan Jones")

	for _, name := range []string{"Jon Jones", "Jonathan Jones", "JONES, Jon"} {
		t.Run(name, func(t *testing.T) {
			out, err := h.engine.ProcessRecord(context.Background(), models.RawRecord{RawName: name, RawResult: "win"})
			require.NoError(t, err)

			assert.Equal(t, models.RecordStateAutoLinked, out.State)
			assert.Equal(t, models.BandHigh, out.Band)
			assert.Equal(t, matching.StrategyExactIdentity, out.Strategy)
			assert.Equal(t, jones.ID, out.CompetitorID)
			assert.NotEmpty(t, out.HistoryViewID)
			assert.Empty(t, out.ContestID)
		})
	}

	assert.Equal(t, 1, h.mem.Counts().Competitors)
	assert.Empty(t, h.collector.OfType(events.EventTypeCompetitorCreated))
}

func TestProcessBatch_BothSidesShareOneContest(t *testing.T) {
	h := newHarness(t)
	records := []models.RawRecord{
		contestRecord("r1", "Jon Jones", "Daniel Cormier", "Contest X", "2017-07-29", "win"),
		contestRecord("r2", "Daniel Cormier", "Jon Jones", "Contest X", "2017-07-29", "loss"),
	}

	report, err := h.engine.ProcessBatch(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Linked)
	assert.Equal(t, 1, report.ContestsCreated)
	assert.Zero(t, report.Conflicts)

	counts := h.mem.Counts()
	assert.Equal(t, 2, counts.Competitors)
	assert.Equal(t, 1, counts.Events)
	assert.Equal(t, 1, counts.Contests)
	assert.Equal(t, 2, counts.HistoryViews)
	assert.Zero(t, counts.Pending)

	contests := h.mem.Contests()
	require.Len(t, contests, 1)
	contest := contests[0]
	require.NoError(t, contest.Validate())
	assert.Equal(t, "KO (head kick)", *contest.Method)
	assert.Equal(t, 3, *contest.EndingRound)

	views := h.mem.HistoryViews()
	require.Len(t, views, 2)
	results := map[string]models.Result{}
	for _, v := range views {
		require.NotNil(t, v.ContestID)
		assert.Equal(t, contest.ID, *v.ContestID)
		assert.NotNil(t, v.RawRecordID, "both views carry their record's evidence")
		assert.False(t, v.HasConflict)
		result, opponentID, ok := contest.Side(v.CompetitorID)
		require.True(t, ok)
		assert.Equal(t, opponentID, *v.OpponentID)
		results[v.CompetitorID] = result
	}
	assert.ElementsMatch(t, []models.Result{models.ResultWin, models.ResultLoss}, []models.Result{results[contest.CompetitorAID], results[contest.CompetitorBID]})

	winner, err := h.store.Competitors.Get(context.Background(), contest.CompetitorAID)
	require.NoError(t, err)
	assert.Equal(t, 1, winner.Wins)

	assert.Len(t, h.collector.OfType(events.EventTypeContestCreated), 1)
	assert.Len(t, h.collector.OfType(events.EventTypeCompetitorCreated), 2)
}

func TestProcessBatch_RerunOnlyRevalidates(t *testing.T) {
	h := newHarness(t)
	records := []models.RawRecord{
		contestRecord("r1", "Jon Jones", "Daniel Cormier", "Contest X", "2017-07-29", "win"),
		contestRecord("r2", "Daniel Cormier", "Jon Jones", "Contest X", "2017-07-29", "loss"),
		{ID: "r3", RawName: "Jon Jones", RawResult: "win", RawEventName: str("Contest Y")},
	}

	_, err := h.engine.ProcessBatch(context.Background(), records)
	require.NoError(t, err)
	before := h.mem.Counts()
	emitted := len(h.collector.Events())

	report, err := h.engine.ProcessBatch(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Revalidated)
	assert.Zero(t, report.Linked+report.Created+report.Queued)
	assert.Equal(t, before, h.mem.Counts())
	assert.Len(t, h.collector.Events(), emitted)
	for _, out := range report.Outcomes {
		assert.True(t, out.Revalidated)
		assert.NotEmpty(t, out.CompetitorID)
	}
}

func TestProcessBatch_ConflictingAccountIsFlagged(t *testing.T) {
	h := newHarness(t)
	second := contestRecord("r2", "Daniel Cormier", "Jon Jones", "Contest X", "2017-07-29", "loss")
	second.RawMethod = str("Submission (rear-naked choke)")
	second.RawRound = str("2")

	report, err := h.engine.ProcessBatch(context.Background(), []models.RawRecord{
		contestRecord("r1", "Jon Jones", "Daniel Cormier", "Contest X", "2017-07-29", "win"),
		second,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Conflicts)

	contest := h.mem.Contests()[0]
	assert.Equal(t, "KO (head kick)", *contest.Method, "the contest keeps its first account")

	var flagged *models.HistoryView
	for _, v := range h.mem.HistoryViews() {
		if v.HasConflict {
			require.Nil(t, flagged, "only one view disagrees")
			flagged = v
		}
	}
	require.NotNil(t, flagged)
	assert.Equal(t, "Submission (rear-naked choke)", flagged.Snapshot.Method)

	fields := map[string]models.FieldConflict{}
	for _, c := range flagged.Conflicts {
		fields[c.Field] = c
	}
	assert.Contains(t, fields, "method")
	assert.Contains(t, fields, "round")
	assert.Equal(t, "KO (head kick)", fields["method"].Live)

	assert.Len(t, h.collector.OfType(events.EventTypeViewConflict), 1)
}

func TestProcessRecord_SimilarNameWithoutContextIsQueued(t *testing.T) {
	scorer := matching.NewScorer()
	tests := []struct {
		name     string
		rawName  string
		band     models.Band
		minScore float64
		maxScore float64
	}{
		{name: "medium", rawName: "Jan Janssen", band: models.BandMedium, minScore: 0.60, maxScore: 0.85},
		{name: "low", rawName: "Bones", band: models.BandLow, minScore: 0.30, maxScore: 0.60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := scorer.NameSimilarity(tt.rawName, "Jon Jones")
			require.GreaterOrEqual(t, score, tt.minScore)
			require.Less(t, score, tt.maxScore)

			h := newHarness(t)
			jones := h.seedCompetitor(t, "Jon Jones")

			out, err := h.engine.ProcessRecord(context.Background(), models.RawRecord{ID: "r1", RawName: tt.rawName, RawResult: "loss"})
			require.NoError(t, err)
			assert.Equal(t, models.RecordStatePendingReview, out.State)
			assert.Equal(t, tt.band, out.Band)
			assert.Empty(t, out.CompetitorID)

			pending, err := h.engine.ListPending(context.Background(), 10)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, out.PendingID, pending[0].ID)
			assert.Equal(t, models.SubjectCompetitor, pending[0].Subject)
			require.NotEmpty(t, pending[0].Candidates)
			assert.Equal(t, jones.ID, pending[0].Candidates[0].CompetitorID)
			if tt.band == models.BandMedium {
				require.NotNil(t, pending[0].SuggestedCompetitorID)
				assert.Equal(t, jones.ID, *pending[0].SuggestedCompetitorID)
			} else {
				assert.Nil(t, pending[0].SuggestedCompetitorID)
			}

			counts := h.mem.Counts()
			assert.Equal(t, 1, counts.Competitors, "nothing is created for a queued record")
			assert.Zero(t, counts.HistoryViews)
			assert.Len(t, h.collector.OfType(events.EventTypeRecordQueued), 1)
		})
	}
}

func TestProcessRecord_SingleName(t *testing.T) {
	h := newHarness(t)

	out, err := h.engine.ProcessRecord(context.Background(), models.RawRecord{RawName: "Shogun", RawResult: "win"})
	require.NoError(t, err)
	require.Equal(t, models.RecordStateCreated, out.State)

	shogun, err := h.store.Competitors.Get(context.Background(), out.CompetitorID)
	require.NoError(t, err)
	assert.Equal(t, "Shogun", shogun.GivenName)
	assert.Empty(t, shogun.FamilyName)
	assert.True(t, shogun.IsSingleName)

	again, err := h.engine.ProcessRecord(context.Background(), models.RawRecord{RawName: "shogun", RawResult: "loss"})
	require.NoError(t, err)
	assert.Equal(t, models.RecordStateAutoLinked, again.State)
	assert.Equal(t, shogun.ID, again.CompetitorID)
}

func TestProcessRecord_NewFightersOnKnownCard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first, err := h.engine.ProcessRecord(ctx, contestRecord("r1", "Jon Jones", "Daniel Cormier", "Contest X", "2017-07-29", "win"))
	require.NoError(t, err)
	require.Equal(t, models.RecordStateCreated, first.State)
	known := []string{first.CompetitorID, first.OpponentID}

	// a similar name sharing the card is never linked on context alone
	similar, err := h.engine.ProcessRecord(ctx, contestRecord("r2", "Jon Smith", "Mark Hunt", "Contest X", "2017-07-29", "win"))
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatePendingReview, similar.State)
	assert.NotEqual(t, matching.StrategyTemporalFuzzy, similar.Strategy)
	assert.Empty(t, similar.CompetitorID)

	jones, err := h.store.Competitors.Get(ctx, first.CompetitorID)
	require.NoError(t, err)
	assert.False(t, jones.HasName(normalizers.NameKey("Jon Smith")))
	assert.Equal(t, 2, h.mem.Counts().Competitors)

	unrelated, err := h.engine.ProcessRecord(ctx, contestRecord("r3", "Mark Hunt", "Stipe Miocic", "Contest X", "2017-07-29", "loss"))
	require.NoError(t, err)
	assert.Equal(t, models.RecordStateCreated, unrelated.State)
	assert.NotContains(t, known, unrelated.CompetitorID)
	assert.NotContains(t, known, unrelated.OpponentID)
	assert.True(t, unrelated.ContestCreated)

	counts := h.mem.Counts()
	assert.Equal(t, 4, counts.Competitors)
	assert.Equal(t, 1, counts.Events, "both contests share the card")
	assert.Equal(t, 2, counts.Contests)
	for _, id := range known {
		c, err := h.store.Competitors.Get(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, c.AlternateNames)
	}
}

func TestProcessRecord_QueuedOpponentPinsLinkedCompetitor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	jones := h.seedCompetitor(t, "Jon Jones")
	cormier := h.seedCompetitor(t, "Daniel Cormier")

	out, err := h.engine.ProcessRecord(ctx, contestRecord("r1", "Daniel Cormier", "Jan Janssen", "Contest Z", "2019-01-05", "loss"))
	require.NoError(t, err)
	require.Equal(t, models.RecordStatePendingReview, out.State)

	pending, err := h.store.Pending.Get(ctx, out.PendingID)
	require.NoError(t, err)
	assert.Equal(t, models.SubjectOpponent, pending.Subject)
	require.NotNil(t, pending.PinnedCompetitorID, "the auto-linked side is pinned for the reviewer")
	assert.Equal(t, cormier.ID, *pending.PinnedCompetitorID)
	assert.Nil(t, pending.PinnedOpponentID)

	resolved, err := h.engine.Resolve(ctx, out.PendingID, reconcile.LinkTo(jones.ID), "reviewer")
	require.NoError(t, err)
	assert.Equal(t, models.RecordStateAutoLinked, resolved.State)
	assert.Equal(t, cormier.ID, resolved.CompetitorID)
	assert.Equal(t, jones.ID, resolved.OpponentID)
	assert.True(t, resolved.ContestCreated)
}

func TestResolve(t *testing.T) {
	queue := func(t *testing.T, record models.RawRecord) (*harness, *models.Competitor, string) {
		h := newHarness(t)
		jones := h.seedCompetitor(t, "Jon Jones")
		out, err := h.engine.ProcessRecord(context.Background(), record)
		require.NoError(t, err)
		require.Equal(t, models.RecordStatePendingReview, out.State)
		return h, jones, out.PendingID
	}
	legacy := models.RawRecord{ID: "r1", RawName: "Jan Janssen", RawResult: "win"}

	t.Run("link to existing competitor", func(t *testing.T) {
		h, jones, pendingID := queue(t, legacy)

		out, err := h.engine.Resolve(context.Background(), pendingID, reconcile.LinkTo(jones.ID), "reviewer")
		require.NoError(t, err)
		assert.Equal(t, models.RecordStateAutoLinked, out.State)
		assert.Equal(t, jones.ID, out.CompetitorID)

		linked, err := h.store.Competitors.Get(context.Background(), jones.ID)
		require.NoError(t, err)
		assert.True(t, linked.HasName(normalizers.NameKey("Jan Janssen")))

		pending, err := h.store.Pending.Get(context.Background(), pendingID)
		require.NoError(t, err)
		assert.Equal(t, models.PendingStatusMerged, pending.Status)
		assert.Equal(t, "reviewer", *pending.ResolvedBy)

		rerun, err := h.engine.ProcessRecord(context.Background(), legacy)
		require.NoError(t, err)
		assert.True(t, rerun.Revalidated)
		assert.Equal(t, jones.ID, rerun.CompetitorID)
	})

	t.Run("create new competitor", func(t *testing.T) {
		h, jones, pendingID := queue(t, legacy)

		out, err := h.engine.Resolve(context.Background(), pendingID, reconcile.CreateNew(), "reviewer")
		require.NoError(t, err)
		assert.Equal(t, models.RecordStateCreated, out.State)
		assert.NotEqual(t, jones.ID, out.CompetitorID)
		assert.Equal(t, 2, h.mem.Counts().Competitors)

		pending, err := h.store.Pending.Get(context.Background(), pendingID)
		require.NoError(t, err)
		assert.Equal(t, models.PendingStatusApproved, pending.Status)
	})

	t.Run("reject keeps provenance only", func(t *testing.T) {
		h, _, pendingID := queue(t, legacy)

		out, err := h.engine.Resolve(context.Background(), pendingID, reconcile.Reject(), "reviewer")
		require.NoError(t, err)
		assert.Equal(t, models.RecordStateRejected, out.State)

		counts := h.mem.Counts()
		assert.Equal(t, 1, counts.Competitors)
		assert.Zero(t, counts.HistoryViews)
		assert.Equal(t, 1, counts.Provenance)

		rerun, err := h.engine.ProcessRecord(context.Background(), legacy)
		require.NoError(t, err)
		assert.True(t, rerun.Revalidated)
		assert.Equal(t, models.RecordStateRejected, rerun.State)
		assert.Len(t, h.collector.OfType(events.EventTypeRecordRejected), 1)
	})

	t.Run("second decision is refused", func(t *testing.T) {
		h, _, pendingID := queue(t, legacy)

		_, err := h.engine.Resolve(context.Background(), pendingID, reconcile.CreateNew(), "reviewer")
		require.NoError(t, err)

		_, err = h.engine.Resolve(context.Background(), pendingID, reconcile.Reject(), "reviewer")
		assert.ErrorIs(t, err, reconcile.ErrNotPending)
	})

	t.Run("link places the record in a contest", func(t *testing.T) {
		h, jones, pendingID := queue(t, contestRecord("r9", "Jan Janssen", "Daniel Cormier", "Contest X", "2017-07-29", "win"))
		cormier := h.seedCompetitor(t, "Daniel Cormier")

		out, err := h.engine.Resolve(context.Background(), pendingID, reconcile.LinkTo(jones.ID), "reviewer")
		require.NoError(t, err)
		assert.Equal(t, models.RecordStateAutoLinked, out.State)
		assert.Equal(t, jones.ID, out.CompetitorID)
		assert.Equal(t, cormier.ID, out.OpponentID)
		assert.NotEmpty(t, out.ContestID)
		assert.True(t, out.ContestCreated)
		assert.Equal(t, 2, h.mem.Counts().HistoryViews)
	})

	t.Run("invalid decisions", func(t *testing.T) {
		h, _, pendingID := queue(t, legacy)

		_, err := h.engine.Resolve(context.Background(), pendingID, reconcile.Decision{Kind: reconcile.DecisionLinkTo}, "reviewer")
		assert.Error(t, err)

		_, err = h.engine.Resolve(context.Background(), pendingID, reconcile.LinkTo("missing"), "reviewer")
		assert.True(t, store.IsNotFound(err))

		_, err = h.engine.Resolve(context.Background(), "missing", reconcile.Reject(), "reviewer")
		assert.True(t, store.IsNotFound(err))
	})
}

func TestMergeDuplicateContests(t *testing.T) {
	tests := []struct {
		name            string
		projectSurvivor bool
		wantRepointed   int
		wantSuperseded  int
		wantEvidence    int
	}{
		{name: "only the duplicate has views", wantRepointed: 2},
		{name: "both contests have views", projectSurvivor: true, wantSuperseded: 2, wantEvidence: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			jones := h.seedCompetitor(t, "Jon Jones")
			cormier := h.seedCompetitor(t, "Daniel Cormier")

			date := time.Date(2017, 7, 29, 0, 0, 0, 0, time.UTC)
			event := &models.Event{Name: "Contest X", NameKey: normalizers.TextKey("Contest X"), Date: &date}
			require.NoError(t, h.store.Events.Create(ctx, event))

			tally := func(c *models.Contest) {
				for _, id := range []string{c.CompetitorAID, c.CompetitorBID} {
					result, _, _ := c.Side(id)
					require.NoError(t, h.store.Competitors.AdjustRecord(ctx, id, result, 1))
				}
			}

			survivor := &models.Contest{
				EventID: event.ID, CompetitorAID: jones.ID, CompetitorBID: cormier.ID,
				ResultA: models.ResultWin, ResultB: models.ResultLoss, IsActive: true,
			}
			require.NoError(t, h.store.Contests.Create(ctx, survivor))
			tally(survivor)
			if tt.projectSurvivor {
				_, err := h.engine.OnContestChanged(ctx, survivor.ID)
				require.NoError(t, err)
			}

			method := "KO (head kick)"
			duplicate := &models.Contest{
				EventID: event.ID, CompetitorAID: cormier.ID, CompetitorBID: jones.ID,
				ResultA: models.ResultLoss, ResultB: models.ResultWin, Method: &method, IsActive: true,
			}
			require.NoError(t, h.store.Contests.Create(ctx, duplicate))
			tally(duplicate)
			_, err := h.engine.OnContestChanged(ctx, duplicate.ID)
			require.NoError(t, err)

			evidence, err := h.store.HistoryViews.GetByContestAndCompetitor(ctx, duplicate.ID, jones.ID)
			require.NoError(t, err)
			evidence.RawRecordID = str("r2")
			require.NoError(t, h.store.HistoryViews.Update(ctx, evidence))

			report, err := h.engine.MergeDuplicateContests(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Groups)
			assert.Equal(t, 1, report.Deactivated)
			assert.Equal(t, tt.wantRepointed, report.ViewsRepointed)
			assert.Equal(t, tt.wantSuperseded, report.Superseded)
			assert.Equal(t, tt.wantEvidence, report.Evidence)
			assert.Equal(t, []string{survivor.ID}, report.Survivors)

			merged, err := h.store.Contests.Get(ctx, survivor.ID)
			require.NoError(t, err)
			assert.True(t, merged.IsActive)
			require.NotNil(t, merged.Method)
			assert.Equal(t, method, *merged.Method)

			retired, err := h.store.Contests.Get(ctx, duplicate.ID)
			require.NoError(t, err)
			assert.False(t, retired.IsActive)

			views, err := h.store.HistoryViews.ListByContest(ctx, survivor.ID)
			require.NoError(t, err)
			assert.Len(t, views, 2)
			stale, err := h.store.HistoryViews.ListByContest(ctx, duplicate.ID)
			require.NoError(t, err)
			assert.Empty(t, stale, "no view stays on the retired contest")

			for _, c := range []*models.Competitor{jones, cormier} {
				linked := 0
				for _, v := range h.mem.HistoryViews() {
					if v.CompetitorID == c.ID && v.IsLinked() {
						linked++
					}
				}
				assert.Equal(t, 1, linked, "one linked view per competitor for the one fight")

				legacy, err := h.store.HistoryViews.ListLegacyByCompetitor(ctx, c.ID)
				require.NoError(t, err)
				assert.Empty(t, legacy, "superseded views are not legacy history")
			}

			jonesView, err := h.store.HistoryViews.GetByContestAndCompetitor(ctx, survivor.ID, jones.ID)
			require.NoError(t, err)
			require.NotNil(t, jonesView.RawRecordID, "the record's evidence survives the merge")
			assert.Equal(t, "r2", *jonesView.RawRecordID)

			winner, err := h.store.Competitors.Get(ctx, jones.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, winner.Wins)
			loser, err := h.store.Competitors.Get(ctx, cormier.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, loser.Losses)

			assert.Equal(t, 1, h.mem.Counts().ActiveContests)
			assert.Len(t, h.collector.OfType(events.EventTypeContestMerged), 1)

			again, err := h.engine.MergeDuplicateContests(ctx)
			require.NoError(t, err)
			assert.Zero(t, again.Groups)
		})
	}
}

func TestProcessBatch_SkipsBadRecords(t *testing.T) {
	h := newHarness(t)
	jones := h.seedCompetitor(t, "Jon Jones")

	broken := models.RawRecord{ID: "broken", RawName: "Daniel Cormier", RawResult: "win"}
	missing := "no-such-competitor"
	require.NoError(t, h.store.Provenance.Upsert(context.Background(), &models.RawRecordLink{
		Fingerprint:  broken.Fingerprint(),
		RawRecordID:  broken.ID,
		State:        models.RecordStateAutoLinked,
		CompetitorID: &missing,
	}))

	report, err := h.engine.ProcessBatch(context.Background(), []models.RawRecord{
		{ID: "no-name", RawName: "", RawResult: "win"},
		{ID: "bad-result", RawName: "Jon Jones", RawResult: "maybe"},
		{ID: "self", RawName: "Jon Jones", RawOpponentName: str("jones, jon"), RawEventName: str("Contest X"), RawResult: "win"},
		broken,
		{ID: "ok", RawName: "Jon Jones", RawResult: "win"},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 4, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Equal(t, report.Total, report.Processed+report.Skipped+report.Failed)

	kinds := map[string]reconcile.IssueKind{}
	for _, issue := range report.Issues {
		kinds[issue.RecordID] = issue.Kind
	}
	assert.Equal(t, reconcile.IssueInvalid, kinds["no-name"])
	assert.Equal(t, reconcile.IssueInvalid, kinds["bad-result"])
	assert.Equal(t, reconcile.IssueInvalid, kinds["self"])
	assert.Equal(t, reconcile.IssueIntegrity, kinds["broken"])

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, jones.ID, report.Outcomes[0].CompetitorID)
}

func TestProcessBatch_Cancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.engine.ProcessBatch(ctx, []models.RawRecord{
		contestRecord("r1", "Jon Jones", "Daniel Cormier", "Contest X", "2017-07-29", "win"),
		{ID: "r2", RawName: "Shogun", RawResult: "win"},
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Skipped)
	for _, issue := range report.Issues {
		assert.Equal(t, reconcile.IssueCancelled, issue.Kind)
	}
	assert.Zero(t, h.mem.Counts().Competitors)
}

// flakyLocker refuses the first n lock attempts
type flakyLocker struct {
	inner    locks.Locker
	failures int32
	attempts atomic.Int32
}

func (l *flakyLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	if l.attempts.Add(1) <= l.failures {
		return nil, locks.ErrNotAcquired
	}
	return l.inner.Lock(ctx, keys...)
}

func TestProcessRecord_RetriesLostLocks(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		locker := &flakyLocker{inner: locks.NewLocal(time.Second), failures: 2}
		h := newHarness(t, reconcile.WithLocker(locker))

		out, err := h.engine.ProcessRecord(context.Background(), models.RawRecord{RawName: "Jon Jones", RawResult: "win"})
		require.NoError(t, err)
		assert.Equal(t, models.RecordStateCreated, out.State)
		assert.Equal(t, int32(3), locker.attempts.Load())
	})

	t.Run("gives up", func(t *testing.T) {
		locker := &flakyLocker{inner: locks.NewLocal(time.Second), failures: 100}
		h := newHarness(t, reconcile.WithLocker(locker))

		report, err := h.engine.ProcessBatch(context.Background(), []models.RawRecord{{ID: "r1", RawName: "Jon Jones", RawResult: "win"}})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Failed)
		require.Len(t, report.Issues, 1)
		assert.Equal(t, reconcile.IssueConcurrentWrite, report.Issues[0].Kind)
		assert.Equal(t, int32(testConfig().MaxRetries+1), locker.attempts.Load())
	})
}

type failingProvenance struct {
	store.ProvenanceRepository
	err error
}

func (f failingProvenance) Upsert(ctx context.Context, link *models.RawRecordLink) error {
	return f.err
}

func TestProcessRecord_FailureRollsBackAndEmitsNothing(t *testing.T) {
	diskFull := errors.New("disk full")
	h := newHarnessWithStore(t, func(st *store.Store) {
		st.Provenance = failingProvenance{ProvenanceRepository: st.Provenance, err: diskFull}
	})

	_, err := h.engine.ProcessRecord(context.Background(),
		contestRecord("r1", "Jon Jones", "Daniel Cormier", "Contest X", "2017-07-29", "win"))
	assert.ErrorIs(t, err, diskFull)

	counts := h.mem.Counts()
	assert.Zero(t, counts.Competitors)
	assert.Zero(t, counts.Contests)
	assert.Zero(t, counts.HistoryViews)
	assert.Empty(t, h.collector.Events())
}

func TestProcessBatch_ManyWorkersSameCompetitors(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 8
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	mem := memory.New()
	engine, err := reconcile.NewEngine(logger, mem.Store(), cfg)
	require.NoError(t, err)

	var records []models.RawRecord
	day := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		event := fmt.Sprintf("Contest %d", i)
		date := day.AddDate(0, 0, 7*i).Format(time.DateOnly)
		records = append(records,
			contestRecord(fmt.Sprintf("a%d", i), "Jon Jones", "Daniel Cormier", event, date, "win"),
			contestRecord(fmt.Sprintf("b%d", i), "Daniel Cormier", "Jon Jones", event, date, "loss"),
		)
	}

	report, err := engine.ProcessBatch(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 40, report.Processed)
	assert.Equal(t, 20, report.ContestsCreated)
	assert.Zero(t, report.Queued)

	counts := mem.Counts()
	assert.Equal(t, 2, counts.Competitors)
	assert.Equal(t, 20, counts.Events)
	assert.Equal(t, 20, counts.Contests)
	assert.Equal(t, 40, counts.HistoryViews)

	for _, c := range mem.Contests() {
		require.NoError(t, c.Validate())
	}
}

// passThroughTx runs work without serializing it, so concurrent records
// interleave the way separate postgres transactions do
type passThroughTx struct{}

func (passThroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestProcessBatch_ConcurrentSpellingVariants(t *testing.T) {
	day := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("known competitors tally every contest", func(t *testing.T) {
		cfg := testConfig()
		cfg.Workers = 8
		h := newHarnessWithConfig(t, cfg, func(st *store.Store) { st.Tx = passThroughTx{} })
		jones := h.seedCompetitor(t, "Jon Jones", "Bones")
		cormier := h.seedCompetitor(t, "Daniel Cormier", "DC")

		// the two spellings share no name lock, only the competitor ids
		var records []models.RawRecord
		for i := 0; i < 24; i++ {
			name, opponent := "Jon Jones", "Daniel Cormier"
			if i%2 == 1 {
				name, opponent = "Bones", "DC"
			}
			date := day.AddDate(0, 0, 7*i).Format(time.DateOnly)
			records = append(records, contestRecord(fmt.Sprintf("r%d", i), name, opponent, fmt.Sprintf("Contest %d", i), date, "win"))
		}

		report, err := h.engine.ProcessBatch(context.Background(), records)
		require.NoError(t, err)
		assert.Equal(t, 24, report.Processed)
		assert.Equal(t, 24, report.ContestsCreated)
		assert.Equal(t, 2, h.mem.Counts().Competitors)

		winner, err := h.store.Competitors.Get(context.Background(), jones.ID)
		require.NoError(t, err)
		assert.Equal(t, 24, winner.Wins)
		loser, err := h.store.Competitors.Get(context.Background(), cormier.ID)
		require.NoError(t, err)
		assert.Equal(t, 24, loser.Losses)
	})

	t.Run("a new competitor is created once", func(t *testing.T) {
		cfg := testConfig()
		cfg.Workers = 8
		h := newHarnessWithConfig(t, cfg, func(st *store.Store) { st.Tx = passThroughTx{} })

		var records []models.RawRecord
		for i := 0; i < 12; i++ {
			name := "Jon Jones"
			if i%2 == 1 {
				name = "Jonny Jones"
			}
			records = append(records, models.RawRecord{ID: fmt.Sprintf("r%d", i), RawName: name, RawResult: "win"})
		}

		report, err := h.engine.ProcessBatch(context.Background(), records)
		require.NoError(t, err)
		assert.Equal(t, 12, report.Processed)
		assert.Equal(t, 1, report.Created)
		assert.Equal(t, 11, report.Linked)
		assert.Zero(t, report.Queued)
		assert.Equal(t, 1, h.mem.Counts().Competitors)
	})
}

func TestProcessBatch_AutoLinksShrinkAsHighRises(t *testing.T) {
	names := []string{"Jon Jones", "Daniel Cormier", "Dan Cormier", "Jonny Jones", "Jonathan Jones", "Jan Janssen", "Stipe Miocic"}

	autoLinked := func(t *testing.T, high float64) map[string]bool {
		t.Helper()
		cfg := testConfig()
		cfg.Workers = 1
		cfg.Thresholds.High = high
		h := newHarnessWithConfig(t, cfg, nil)
		h.seedCompetitor(t, "Jon Jones")
		h.seedCompetitor(t, "Daniel Cormier")

		records := make([]models.RawRecord, len(names))
		for i, name := range names {
			records[i] = models.RawRecord{ID: fmt.Sprintf("r%d", i), RawName: name, RawResult: "win"}
		}
		report, err := h.engine.ProcessBatch(context.Background(), records)
		require.NoError(t, err)
		require.Equal(t, len(names), report.Processed)

		linked := map[string]bool{}
		for _, out := range report.Outcomes {
			if out.State == models.RecordStateAutoLinked {
				linked[out.RecordID] = true
			}
		}
		return linked
	}

	tests := []struct {
		name   string
		loose  float64
		strict float64
	}{
		{name: "85 to 92", loose: 85, strict: 92},
		{name: "85 to 96", loose: 85, strict: 96},
		{name: "92 to 96", loose: 92, strict: 96},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loose := autoLinked(t, tt.loose)
			strict := autoLinked(t, tt.strict)

			for id := range strict {
				assert.True(t, loose[id], "record %s auto-linked only under the stricter threshold", id)
			}
			assert.Less(t, len(strict), len(loose))
		})
	}
}

func TestNewEngine_RejectsInvalidConfig(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	tests := []struct {
		name   string
		mutate func(*reconcile.Config)
	}{
		{name: "thresholds out of order", mutate: func(c *reconcile.Config) { c.Thresholds.Medium = 95 }},
		{name: "no workers", mutate: func(c *reconcile.Config) { c.Workers = 0 }},
		{name: "negative weight", mutate: func(c *reconcile.Config) { c.Matching.Weights.Date = -1 }},
		{name: "retry interval inverted", mutate: func(c *reconcile.Config) { c.RetryMaxInterval = time.Microsecond }},
		{name: "no lock wait", mutate: func(c *reconcile.Config) { c.LockWait = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := reconcile.NewEngine(logger, memory.New().Store(), cfg)
			assert.Error(t, err)
		})
	}
}
