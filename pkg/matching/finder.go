// Package matching scores names and records and finds candidate competitors
package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

// FindRequest describes the name to resolve and the context it was seen in
type FindRequest struct {
	Name         string
	OpponentName string
	// OpponentID pins the opponent when it is already resolved
	OpponentID string
	EventName  string
	Date       *time.Time
	Location   string
	// ExcludeIDs are never proposed, e.g. the other side of the same record
	ExcludeIDs []string
}

func (r *FindRequest) excluded(id string) bool {
	for _, ex := range r.ExcludeIDs {
		if ex == id {
			return true
		}
	}
	return false
}

// FindResult holds the ranking of the strategy that stopped the search and
// everything evaluated on the way, for audit
type FindResult struct {
	Candidates []models.Candidate
	All        []models.Candidate
	Strategy   string
}

// Top returns the best candidate, if any
func (r *FindResult) Top() (models.Candidate, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return models.Candidate{}, false
	}
	return r.Candidates[0], true
}

// Strategy proposes scored candidates for a request
type Strategy interface {
	Name() string
	Propose(ctx context.Context, req *FindRequest) ([]models.Candidate, error)
}

// Finder runs an ordered list of strategies against the canonical store
type Finder struct {
	logger     ectologger.Logger
	config     Config
	strategies []Strategy
}

// NewFinder creates a finder. With no strategies given it uses the default
// order: exact identity, contextual, temporal fuzzy, global fuzzy.
func NewFinder(logger ectologger.Logger, st *store.Store, config Config, strategies ...Strategy) *Finder {
	if len(strategies) == 0 {
		strategies = DefaultStrategies(st, NewScorer(), config)
	}
	return &Finder{
		logger:     logger,
		config:     config,
		strategies: strategies,
	}
}

// Find evaluates strategies in order and stops at the first one producing a
// candidate at or above MinScore
func (f *Finder) Find(ctx context.Context, req FindRequest) (*FindResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Finder.Find")
	defer span.End()

	log := f.logger.WithContext(ctx).WithFields(map[string]any{
		"name":  req.Name,
		"event": req.EventName,
	})

	result := &FindResult{}
	for _, strategy := range f.strategies {
		proposed, err := strategy.Propose(ctx, &req)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", strategy.Name(), err)
		}

		ranked := rank(filterExcluded(&req, proposed))
		result.All = append(result.All, ranked...)

		if len(ranked) > 0 && ranked[0].Score >= f.config.MinScore {
			result.Candidates = ranked
			result.Strategy = strategy.Name()
			break
		}
	}

	sortCandidates(result.All)
	if result.Strategy == "" {
		result.Candidates = dedupe(result.All)
	}

	log.WithFields(map[string]any{
		"strategy":        result.Strategy,
		"candidate_count": len(result.Candidates),
		"evaluated_count": len(result.All),
	}).Debug("Found candidates")

	return result, nil
}

func filterExcluded(req *FindRequest, candidates []models.Candidate) []models.Candidate {
	if len(req.ExcludeIDs) == 0 {
		return candidates
	}
	kept := candidates[:0:0]
	for _, c := range candidates {
		if !req.excluded(c.CompetitorID) {
			kept = append(kept, c)
		}
	}
	return kept
}

// rank keeps the best entry per competitor and sorts by score descending
func rank(candidates []models.Candidate) []models.Candidate {
	ranked := dedupe(candidates)
	sortCandidates(ranked)
	return ranked
}

func dedupe(candidates []models.Candidate) []models.Candidate {
	best := make(map[string]int, len(candidates))
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if i, ok := best[c.CompetitorID]; ok {
			if c.Score > out[i].Score {
				out[i] = c
			}
			continue
		}
		best[c.CompetitorID] = len(out)
		out = append(out, c)
	}
	return out
}

func sortCandidates(candidates []models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].CompetitorID < candidates[j].CompetitorID
	})
}
