// Package perspective keeps one history view per participant of every contest
package perspective

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/normalizers"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

// ProjectionResult summarizes one OnContestChanged call
type ProjectionResult struct {
	ContestID string                `json:"contest_id"`
	Views     []*models.HistoryView `json:"views"`
	Created   int                   `json:"created"`
	Updated   int                   `json:"updated"`
	Linked    int                   `json:"linked"`
	Conflicts int                   `json:"conflicts"`
}

type Manager struct {
	logger ectologger.Logger
	store  *store.Store
}

func NewManager(logger ectologger.Logger, st *store.Store) *Manager {
	return &Manager{
		logger: logger,
		store:  st,
	}
}

// contestState is a contest with everything needed to project it
type contestState struct {
	contest     *models.Contest
	event       *models.Event
	competitors map[string]*models.Competitor
}

func (m *Manager) load(ctx context.Context, contestID string) (*contestState, error) {
	contest, err := m.store.Contests.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if err := contest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIntegrity, err)
	}

	event, err := m.store.Events.Get(ctx, contest.EventID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: contest %s references missing event %s", models.ErrIntegrity, contest.ID, contest.EventID)
		}
		return nil, err
	}

	state := &contestState{
		contest:     contest,
		event:       event,
		competitors: make(map[string]*models.Competitor, 2),
	}
	for _, id := range []string{contest.CompetitorAID, contest.CompetitorBID} {
		c, err := m.store.Competitors.Get(ctx, id)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, fmt.Errorf("%w: contest %s references missing competitor %s", models.ErrIntegrity, contest.ID, id)
			}
			return nil, err
		}
		state.competitors[id] = c
	}
	return state, nil
}

// project derives the live view fields for one participant
func (s *contestState) project(competitorID string) (models.ViewFields, string) {
	result, opponentID, _ := s.contest.Side(competitorID)
	return models.ViewFields{
		OpponentName: s.competitors[opponentID].DisplayName,
		EventName:    s.event.Name,
		EventDate:    s.event.Date,
		Location:     deref(s.event.Location),
		Method:       deref(s.contest.Method),
		Result:       result,
		Round:        s.contest.EndingRound,
		Time:         deref(s.contest.EndingTime),
	}, opponentID
}

// OnContestChanged projects both history views of a contest. It must be called
// by whichever component creates or mutates a contest, inside the same
// transaction as the mutation.
func (m *Manager) OnContestChanged(ctx context.Context, contestID string) (*ProjectionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "perspective.Manager.OnContestChanged")
	defer span.End()

	log := m.logger.WithContext(ctx).WithFields(map[string]any{"contest_id": contestID})

	state, err := m.load(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if err := m.checkViews(ctx, state.contest); err != nil {
		return nil, err
	}

	result := &ProjectionResult{ContestID: contestID}
	for _, competitorID := range []string{state.contest.CompetitorAID, state.contest.CompetitorBID} {
		view, err := m.projectSide(ctx, state, competitorID, result)
		if err != nil {
			return nil, err
		}
		if view.HasConflict {
			result.Conflicts++
		}
		result.Views = append(result.Views, view)
	}

	log.WithFields(map[string]any{
		"created":   result.Created,
		"updated":   result.Updated,
		"linked":    result.Linked,
		"conflicts": result.Conflicts,
	}).Debug("Projected contest perspectives")

	return result, nil
}

// checkViews rejects views attached to the contest by a non-participant and
// duplicate views of one participant
func (m *Manager) checkViews(ctx context.Context, contest *models.Contest) error {
	views, err := m.store.HistoryViews.ListByContest(ctx, contest.ID)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, 2)
	for _, v := range views {
		if !contest.Involves(v.CompetitorID) {
			return fmt.Errorf("%w: history view %s of competitor %s is orphaned from contest %s", models.ErrIntegrity, v.ID, v.CompetitorID, contest.ID)
		}
		if seen[v.CompetitorID] {
			return fmt.Errorf("%w: contest %s has more than one history view for competitor %s", models.ErrIntegrity, contest.ID, v.CompetitorID)
		}
		seen[v.CompetitorID] = true
	}
	return nil
}

func (m *Manager) projectSide(ctx context.Context, state *contestState, competitorID string, result *ProjectionResult) (*models.HistoryView, error) {
	live, opponentID := state.project(competitorID)
	contestID := state.contest.ID

	existing, err := m.store.HistoryViews.GetByContestAndCompetitor(ctx, contestID, competitorID)
	if err != nil && !store.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		existing.OpponentID = &opponentID
		applyConflicts(existing, live)
		if err := m.store.HistoryViews.Update(ctx, existing); err != nil {
			return nil, err
		}
		result.Updated++
		return existing, nil
	}

	legacy, err := m.findLegacy(ctx, competitorID, live, state.competitors[opponentID])
	if err != nil {
		return nil, err
	}
	if legacy != nil {
		legacy.ContestID = &contestID
		legacy.OpponentID = &opponentID
		applyConflicts(legacy, live)
		if err := m.store.HistoryViews.Update(ctx, legacy); err != nil {
			return nil, err
		}
		result.Linked++
		return legacy, nil
	}

	view := &models.HistoryView{
		CompetitorID: competitorID,
		ContestID:    &contestID,
		OpponentID:   &opponentID,
		Snapshot:     live,
	}
	if err := m.store.HistoryViews.Create(ctx, view); err != nil {
		return nil, err
	}
	result.Created++
	return view, nil
}

// findLegacy picks the unlinked view describing the same contest: same
// opponent on the same date, or failing that the same event name
func (m *Manager) findLegacy(ctx context.Context, competitorID string, live models.ViewFields, opponent *models.Competitor) (*models.HistoryView, error) {
	legacy, err := m.store.HistoryViews.ListLegacyByCompetitor(ctx, competitorID)
	if err != nil {
		return nil, err
	}

	for _, v := range legacy {
		if v.Snapshot.OpponentName != "" && opponent.HasName(normalizers.NameKey(v.Snapshot.OpponentName)) && sameDay(v.Snapshot.EventDate, live.EventDate) {
			return v, nil
		}
	}
	for _, v := range legacy {
		if v.Snapshot.EventName != "" && normalizers.TextKey(v.Snapshot.EventName) == normalizers.TextKey(live.EventName) &&
			(v.Snapshot.EventDate == nil || live.EventDate == nil || sameDay(v.Snapshot.EventDate, live.EventDate)) {
			return v, nil
		}
	}
	return nil, nil
}

// LegacyMatch returns the unlinked view of competitorID that OnContestChanged
// would link to the contest, if any
func (m *Manager) LegacyMatch(ctx context.Context, contestID, competitorID string) (*models.HistoryView, error) {
	state, err := m.load(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if !state.contest.Involves(competitorID) {
		return nil, fmt.Errorf("competitor %s does not take part in contest %s", competitorID, contestID)
	}
	live, opponentID := state.project(competitorID)
	return m.findLegacy(ctx, competitorID, live, state.competitors[opponentID])
}

// Read returns what a reader sees for a view: live contest-derived fields for
// linked views, the stored snapshot for legacy ones
func (m *Manager) Read(ctx context.Context, viewID string) (*models.ResolvedView, error) {
	ctx, span := tracing.StartSpan(ctx, "perspective.Manager.Read")
	defer span.End()

	view, err := m.store.HistoryViews.Get(ctx, viewID)
	if err != nil {
		return nil, err
	}

	resolved := &models.ResolvedView{
		ViewID:       view.ID,
		CompetitorID: view.CompetitorID,
		ContestID:    view.ContestID,
		Linked:       view.IsLinked(),
		Fields:       view.Snapshot,
		Snapshot:     view.Snapshot,
	}
	if !view.IsLinked() {
		return resolved, nil
	}

	state, err := m.load(ctx, *view.ContestID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: history view %s references missing contest %s", models.ErrIntegrity, view.ID, *view.ContestID)
		}
		return nil, err
	}
	if !state.contest.Involves(view.CompetitorID) {
		return nil, fmt.Errorf("%w: history view %s of competitor %s is orphaned from contest %s", models.ErrIntegrity, view.ID, view.CompetitorID, state.contest.ID)
	}

	live, _ := state.project(view.CompetitorID)
	resolved.Fields = live
	resolved.Conflicts = DetectConflicts(view.Snapshot, live)
	resolved.HasConflict = len(resolved.Conflicts) > 0
	return resolved, nil
}

func applyConflicts(view *models.HistoryView, live models.ViewFields) {
	view.Conflicts = DetectConflicts(view.Snapshot, live)
	view.HasConflict = len(view.Conflicts) > 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
