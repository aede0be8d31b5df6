package matching_test

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/matching"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/normalizers"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store/memory"
)

func TestScorer_StringAlgorithms(t *testing.T) {
	s := matching.NewScorer()

	assert.InDelta(t, 0.944, s.Jaro("MARTHA", "MARHTA"), 0.001)
	assert.InDelta(t, 0.961, s.JaroWinkler("MARTHA", "MARHTA"), 0.001)
	assert.Equal(t, 0.0, s.Jaro("", "abc"))
	assert.Equal(t, 1.0, s.JaroWinkler("José", "José"))

	assert.Equal(t, 3, s.LevenshteinDistance("kitten", "sitting"))
	assert.InDelta(t, 1-3.0/7, s.Levenshtein("kitten", "sitting"), 1e-9)
	assert.Equal(t, 1.0, s.Levenshtein("", ""))

	assert.Equal(t, 1.0, s.ExactMatch("Jon", "jon", false))
	assert.Equal(t, 0.0, s.ExactMatch("Jon", "jon", true))
}

func TestScorer_NameSimilarity(t *testing.T) {
	s := matching.NewScorer()

	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{name: "identical", a: "Jon Jones", b: "Jon Jones", min: 1, max: 1},
		{name: "case and punctuation", a: "JON-JONES", b: "jon jones", min: 1, max: 1},
		{name: "comma order", a: "Jones, Jon", b: "Jon Jones", min: 1, max: 1},
		{name: "extra middle name", a: "Jon Dwayne Jones", b: "Jon Jones", min: 0.85, max: 1},
		{name: "close spelling", a: "Jan Janssen", b: "Jon Jones", min: 0.60, max: 0.85},
		{name: "unrelated", a: "Daniel Cormier", b: "Jon Jones", min: 0, max: 0.60},
		{name: "empty", a: "", b: "Jon Jones", min: 0, max: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.NameSimilarity(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
			assert.InDelta(t, got, s.NameSimilarity(tt.b, tt.a), 1e-9, "similarity is symmetric")
		})
	}
}

func TestScorer_RecordSimilarity(t *testing.T) {
	s := matching.NewScorer()
	w := matching.DefaultWeights()
	day := time.Date(2017, 7, 29, 0, 0, 0, 0, time.UTC)
	nextDay := day.AddDate(0, 0, 1)

	full := matching.RecordSignature{Name: "Jon Jones", EventName: "UFC 214", Date: &day, Location: "Anaheim"}
	assert.InDelta(t, 100, s.RecordSimilarity(full, full, w), 1e-9)

	// absent fields are left out, not counted as mismatches
	nameOnly := matching.RecordSignature{Name: "Jon Jones"}
	assert.InDelta(t, 100, s.RecordSimilarity(nameOnly, full, w), 1e-9)

	shifted := full
	shifted.Date = &nextDay
	assert.InDelta(t, 80, s.RecordSimilarity(full, shifted, w), 1e-9)

	w.DateTolerance = 24 * time.Hour
	assert.InDelta(t, 100, s.RecordSimilarity(full, shifted, w), 1e-9)

	assert.Equal(t, 0.0, s.SameDay(time.Time{}, day, 0))
}

type fixture struct {
	store   *store.Store
	jones   *models.Competitor
	cormier *models.Competitor
	event   *models.Event
	contest *models.Contest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New().Store()

	competitor := func(given, family string, alternates ...string) *models.Competitor {
		c := &models.Competitor{
			GivenName:   given,
			FamilyName:  family,
			DisplayName: given + " " + family,
			NameKey:     normalizers.NameKey(given + " " + family),
			IsActive:    true,
		}
		for _, alt := range alternates {
			c.AlternateNames = append(c.AlternateNames, models.AlternateName{Name: alt, NameKey: normalizers.NameKey(alt), Type: models.AlternateNameNickname})
		}
		require.NoError(t, st.Competitors.Create(ctx, c))
		return c
	}

	f := &fixture{store: st}
	f.jones = competitor("Jon", "Jones", "Bones Jones")
	f.cormier = competitor("Daniel", "Cormier")

	day := time.Date(2017, 7, 29, 0, 0, 0, 0, time.UTC)
	location := "Anaheim, California"
	f.event = &models.Event{Name: "UFC 214", NameKey: normalizers.TextKey("UFC 214"), Date: &day, Location: &location}
	require.NoError(t, st.Events.Create(ctx, f.event))

	f.contest = &models.Contest{
		EventID:       f.event.ID,
		CompetitorAID: f.jones.ID,
		CompetitorBID: f.cormier.ID,
		ResultA:       models.ResultWin,
		ResultB:       models.ResultLoss,
		IsActive:      true,
	}
	require.NoError(t, st.Contests.Create(ctx, f.contest))
	return f
}

func newFinder(f *fixture) *matching.Finder {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	return matching.NewFinder(logger, f.store, matching.DefaultConfig())
}

func TestFinder_Strategies(t *testing.T) {
	f := newFixture(t)
	finder := newFinder(f)
	day := *f.event.Date

	tests := []struct {
		name     string
		req      matching.FindRequest
		strategy string
		top      func() string
		score    float64
	}{
		{
			name:     "exact identity on alternate name",
			req:      matching.FindRequest{Name: "bones jones"},
			strategy: matching.StrategyExactIdentity,
			top:      func() string { return f.jones.ID },
			score:    100,
		},
		{
			name:     "contextual through the opponent",
			req:      matching.FindRequest{Name: "J. Jones", OpponentName: "Daniel Cormier", EventName: "UFC 214", Date: &day},
			strategy: matching.StrategyContextual,
			top:      func() string { return f.jones.ID },
		},
		{
			name:     "temporal fuzzy on the contest date",
			req:      matching.FindRequest{Name: "Jonny Jones", EventName: "UFC 214", Date: &day, Location: "Anaheim, California"},
			strategy: matching.StrategyTemporalFuzzy,
			top:      func() string { return f.jones.ID },
		},
		{
			name:     "global fuzzy without context",
			req:      matching.FindRequest{Name: "Jan Janssen"},
			strategy: matching.StrategyGlobalFuzzy,
			top:      func() string { return f.jones.ID },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := finder.Find(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, result.Strategy)

			top, ok := result.Top()
			require.True(t, ok)
			assert.Equal(t, tt.top(), top.CompetitorID)
			assert.GreaterOrEqual(t, top.Score, matching.DefaultConfig().MinScore)
			if tt.score > 0 {
				assert.Equal(t, tt.score, top.Score)
			}
			for i := 1; i < len(result.Candidates); i++ {
				assert.GreaterOrEqual(t, result.Candidates[i-1].Score, result.Candidates[i].Score)
			}
		})
	}
}

func TestFinder_TemporalContextNeverCarriesAWeakName(t *testing.T) {
	f := newFixture(t)
	finder := newFinder(f)
	scorer := matching.NewScorer()
	day := *f.event.Date

	tests := []struct {
		name     string
		rawName  string
		proposed bool
	}{
		{name: "close spelling is ranked by context", rawName: "Jonny Jones", proposed: true},
		{name: "different person on the same card", rawName: "Jon Smith", proposed: false},
		{name: "unrelated name on the same card", rawName: "Mark Hunt", proposed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := finder.Find(context.Background(), matching.FindRequest{
				Name:      tt.rawName,
				EventName: "UFC 214",
				Date:      &day,
				Location:  "Anaheim, California",
			})
			require.NoError(t, err)

			var temporal []models.Candidate
			for _, c := range result.All {
				if c.Strategy == matching.StrategyTemporalFuzzy {
					temporal = append(temporal, c)
				}
			}
			if !tt.proposed {
				assert.Empty(t, temporal)
				assert.NotEqual(t, matching.StrategyTemporalFuzzy, result.Strategy)
				return
			}

			require.NotEmpty(t, temporal)
			for _, c := range temporal {
				competitor, err := f.store.Competitors.Get(context.Background(), c.CompetitorID)
				require.NoError(t, err)
				nameScore := 100 * matching.BestNameSimilarity(scorer, tt.rawName, competitor)
				assert.GreaterOrEqual(t, nameScore, 100*matching.DefaultConfig().TemporalNameMin)
				assert.LessOrEqual(t, c.Score, nameScore)
			}
		})
	}
}

func TestFinder_ContextualPointsAtContest(t *testing.T) {
	f := newFixture(t)

	result, err := newFinder(f).Find(context.Background(), matching.FindRequest{
		Name:         "J. Jones",
		OpponentName: "Daniel Cormier",
		EventName:    "UFC 214",
	})
	require.NoError(t, err)

	top, ok := result.Top()
	require.True(t, ok)
	require.NotNil(t, top.ContestID)
	assert.Equal(t, f.contest.ID, *top.ContestID)
}

func TestFinder_ExcludesOtherSide(t *testing.T) {
	f := newFixture(t)

	result, err := newFinder(f).Find(context.Background(), matching.FindRequest{
		Name:       "Jon Jones",
		ExcludeIDs: []string{f.jones.ID},
	})
	require.NoError(t, err)
	for _, c := range result.Candidates {
		assert.NotEqual(t, f.jones.ID, c.CompetitorID)
	}
	for _, c := range result.All {
		assert.NotEqual(t, f.jones.ID, c.CompetitorID)
	}
}

func TestFinder_NothingFound(t *testing.T) {
	f := newFixture(t)

	result, err := newFinder(f).Find(context.Background(), matching.FindRequest{Name: "Xu Qy"})
	require.NoError(t, err)
	assert.Empty(t, result.Strategy)
	for _, c := range result.Candidates {
		assert.Less(t, c.Score, matching.DefaultConfig().MinScore)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, matching.DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*matching.Config)
	}{
		{name: "min score above range", mutate: func(c *matching.Config) { c.MinScore = 101 }},
		{name: "no top k", mutate: func(c *matching.Config) { c.TopK = 0 }},
		{name: "no search factor", mutate: func(c *matching.Config) { c.SearchFactor = 0 }},
		{name: "opponent minimum", mutate: func(c *matching.Config) { c.OpponentMatchMin = 0 }},
		{name: "temporal name minimum above range", mutate: func(c *matching.Config) { c.TemporalNameMin = 1.5 }},
		{name: "all weights zero", mutate: func(c *matching.Config) { c.Weights = matching.Weights{} }},
		{name: "negative tolerance", mutate: func(c *matching.Config) { c.Weights.DateTolerance = -time.Hour }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := matching.DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
