package matching

import (
	"context"
	"math"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/normalizers"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
)

const (
	StrategyExactIdentity = "exact_identity"
	StrategyContextual    = "contextual"
	StrategyTemporalFuzzy = "temporal_fuzzy"
	StrategyGlobalFuzzy   = "global_fuzzy"
)

// DefaultStrategies returns the standard strategy order
func DefaultStrategies(st *store.Store, scorer *Scorer, config Config) []Strategy {
	return []Strategy{
		&ExactIdentity{store: st},
		&Contextual{store: st, scorer: scorer, config: config},
		&TemporalFuzzy{store: st, scorer: scorer, config: config},
		&GlobalFuzzy{store: st, scorer: scorer, config: config},
	}
}

// ExactIdentity matches the name key against display and alternate names
type ExactIdentity struct {
	store *store.Store
}

func (s *ExactIdentity) Name() string { return StrategyExactIdentity }

func (s *ExactIdentity) Propose(ctx context.Context, req *FindRequest) ([]models.Candidate, error) {
	key := normalizers.NameKey(req.Name)
	if key == "" {
		return nil, nil
	}
	competitors, err := s.store.Competitors.FindByNameKey(ctx, key)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(competitors))
	for _, c := range competitors {
		candidates = append(candidates, models.Candidate{
			CompetitorID: c.ID,
			Score:        100,
			Strategy:     StrategyExactIdentity,
		})
	}
	return candidates, nil
}

// Contextual uses the two-in-a-match constraint: when the named event already
// has a contest against the named opponent, the other participant of that
// contest is the only plausible identity and is scored directly
type Contextual struct {
	store  *store.Store
	scorer *Scorer
	config Config
}

func (s *Contextual) Name() string { return StrategyContextual }

func (s *Contextual) Propose(ctx context.Context, req *FindRequest) ([]models.Candidate, error) {
	if req.EventName == "" || (req.OpponentName == "" && req.OpponentID == "") {
		return nil, nil
	}

	events, err := s.store.Events.FindByNameKey(ctx, normalizers.TextKey(req.EventName))
	if err != nil {
		return nil, err
	}

	var candidates []models.Candidate
	for _, event := range events {
		if req.Date != nil && event.Date != nil && !normalizers.Day(*req.Date).Equal(normalizers.Day(*event.Date)) {
			continue
		}
		contests, err := s.store.Contests.ListByEvent(ctx, event.ID)
		if err != nil {
			return nil, err
		}

		for _, contest := range contests {
			for _, side := range [][2]string{
				{contest.CompetitorAID, contest.CompetitorBID},
				{contest.CompetitorBID, contest.CompetitorAID},
			} {
				opponent, err := s.store.Competitors.Get(ctx, side[0])
				if err != nil {
					return nil, err
				}
				if !s.isOpponent(req, opponent) {
					continue
				}
				other, err := s.store.Competitors.Get(ctx, side[1])
				if err != nil {
					return nil, err
				}
				contestID := contest.ID
				candidates = append(candidates, models.Candidate{
					CompetitorID: other.ID,
					Score:        100 * BestNameSimilarity(s.scorer, req.Name, other),
					Strategy:     StrategyContextual,
					ContestID:    &contestID,
				})
			}
		}
	}
	return candidates, nil
}

func (s *Contextual) isOpponent(req *FindRequest, c *models.Competitor) bool {
	if req.OpponentID != "" {
		return c.ID == req.OpponentID
	}
	return BestNameSimilarity(s.scorer, req.OpponentName, c) >= s.config.OpponentMatchMin
}

// TemporalFuzzy ranks competitors who fought on the record's date by record
// similarity. Shared context only orders participants whose names already
// clear TemporalNameMin, and never lifts a score above the name score.
type TemporalFuzzy struct {
	store  *store.Store
	scorer *Scorer
	config Config
}

func (s *TemporalFuzzy) Name() string { return StrategyTemporalFuzzy }

func (s *TemporalFuzzy) Propose(ctx context.Context, req *FindRequest) ([]models.Candidate, error) {
	if req.Date == nil {
		return nil, nil
	}

	events, err := s.store.Events.ListByDate(ctx, *req.Date)
	if err != nil {
		return nil, err
	}

	subject := RecordSignature{
		Name:      req.Name,
		EventName: req.EventName,
		Date:      req.Date,
		Location:  req.Location,
	}

	best := map[string]float64{}
	var order []string
	for _, event := range events {
		contests, err := s.store.Contests.ListByEvent(ctx, event.ID)
		if err != nil {
			return nil, err
		}
		for _, contest := range contests {
			for _, id := range []string{contest.CompetitorAID, contest.CompetitorBID} {
				competitor, err := s.store.Competitors.Get(ctx, id)
				if err != nil {
					return nil, err
				}
				name, nameSim := bestMatchingName(s.scorer, req.Name, competitor)
				if nameSim < s.config.TemporalNameMin {
					continue
				}
				sig := RecordSignature{
					Name:      name,
					EventName: event.Name,
					Date:      event.Date,
					Location:  deref(event.Location),
				}
				score := math.Min(s.scorer.RecordSimilarity(subject, sig, s.config.Weights), 100*nameSim)
				if prev, ok := best[id]; !ok {
					order = append(order, id)
					best[id] = score
				} else {
					best[id] = math.Max(prev, score)
				}
			}
		}
	}

	candidates := make([]models.Candidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, models.Candidate{
			CompetitorID: id,
			Score:        best[id],
			Strategy:     StrategyTemporalFuzzy,
		})
	}
	return candidates, nil
}

// GlobalFuzzy compares the name against the whole active population, bounded to TopK
type GlobalFuzzy struct {
	store  *store.Store
	scorer *Scorer
	config Config
}

func (s *GlobalFuzzy) Name() string { return StrategyGlobalFuzzy }

func (s *GlobalFuzzy) Propose(ctx context.Context, req *FindRequest) ([]models.Candidate, error) {
	competitors, err := s.store.Competitors.Search(ctx, req.Name, s.config.TopK*s.config.SearchFactor)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(competitors))
	for _, c := range competitors {
		if req.excluded(c.ID) {
			continue
		}
		candidates = append(candidates, models.Candidate{
			CompetitorID: c.ID,
			Score:        100 * BestNameSimilarity(s.scorer, req.Name, c),
			Strategy:     StrategyGlobalFuzzy,
		})
	}

	candidates = rank(candidates)
	if len(candidates) > s.config.TopK {
		candidates = candidates[:s.config.TopK]
	}
	return candidates, nil
}

// BestNameSimilarity is the best similarity of name against the competitor's
// display name and alternate names
func BestNameSimilarity(scorer *Scorer, name string, c *models.Competitor) float64 {
	best := scorer.NameSimilarity(name, c.DisplayName)
	for _, alt := range c.AlternateNames {
		best = math.Max(best, scorer.NameSimilarity(name, alt.Name))
	}
	return best
}

func bestMatchingName(scorer *Scorer, name string, c *models.Competitor) (string, float64) {
	bestName, best := c.DisplayName, scorer.NameSimilarity(name, c.DisplayName)
	for _, alt := range c.AlternateNames {
		if s := scorer.NameSimilarity(name, alt.Name); s > best {
			bestName, best = alt.Name, s
		}
	}
	return bestName, best
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
