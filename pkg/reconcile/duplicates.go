package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/events"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

// MergeReport summarizes a duplicate-contest pass
type MergeReport struct {
	Groups         int           `json:"groups"`
	Deactivated    int           `json:"deactivated"`
	ViewsRepointed int           `json:"views_repointed"`
	Superseded     int           `json:"views_superseded"`
	Evidence       int           `json:"evidence_moved"`
	Survivors      []string      `json:"survivors,omitempty"`
	Issues         []RecordIssue `json:"issues,omitempty"`
}

type groupMerge struct {
	deactivated int
	repointed   int
	superseded  int
	evidence    int
}

// MergeDuplicateContests finds active contests in one event with the same
// participant pair, keeps the oldest and deactivates the rest. Views of a
// duplicate move to the survivor when it has none for that competitor.
// Otherwise the survivor's view adopts their record evidence and they are
// marked superseded, leaving one linked view per competitor.
func (e *Engine) MergeDuplicateContests(ctx context.Context) (*MergeReport, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Engine.MergeDuplicateContests")
	defer span.End()

	log := e.logger.WithContext(ctx)

	groups, err := e.store.Contests.FindDuplicateGroups(ctx)
	if err != nil {
		return nil, err
	}

	report := &MergeReport{}
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		ids := make([]string, len(group))
		keys := make([]string, 0, 3*len(group))
		for i, c := range group {
			ids[i] = c.ID
			keys = append(keys, "contest-id:"+c.ID, competitorLockKey(c.CompetitorAID), competitorLockKey(c.CompetitorBID))
		}

		var merged groupMerge
		_, err := e.execute(ctx, keys, func(ctx context.Context, emit emitFunc) (*Outcome, error) {
			merged = groupMerge{}
			return nil, e.mergeGroup(ctx, ids, &merged, emit)
		})
		if err != nil {
			if errors.Is(err, ErrIntegrity) {
				report.Issues = append(report.Issues, RecordIssue{RecordID: ids[0], Kind: IssueIntegrity, Reason: err.Error()})
				log.WithError(err).WithFields(map[string]any{"contest_id": ids[0]}).Warn("Skipping duplicate group")
				continue
			}
			return report, err
		}

		report.Groups++
		report.Deactivated += merged.deactivated
		report.ViewsRepointed += merged.repointed
		report.Superseded += merged.superseded
		report.Evidence += merged.evidence
		report.Survivors = append(report.Survivors, ids[0])
	}

	log.WithFields(map[string]any{
		"groups":      report.Groups,
		"deactivated": report.Deactivated,
	}).Info("Merged duplicate contests")
	return report, nil
}

func (e *Engine) mergeGroup(ctx context.Context, ids []string, merged *groupMerge, emit emitFunc) error {
	var contests []*models.Contest
	for _, id := range ids {
		c, err := e.store.Contests.Get(ctx, id)
		if err != nil {
			return err
		}
		if c.IsActive {
			contests = append(contests, c)
		}
	}
	if len(contests) < 2 {
		return nil
	}

	survivor := contests[0]
	var retired []string
	for _, dup := range contests[1:] {
		if !survivor.SamePair(dup) || dup.EventID != survivor.EventID {
			continue
		}
		if err := e.moveViews(ctx, survivor, dup, merged); err != nil {
			return err
		}

		mergeDetails(survivor, dup)

		dup.IsActive = false
		if err := e.store.Contests.Update(ctx, dup); err != nil {
			return err
		}
		for _, id := range []string{dup.CompetitorAID, dup.CompetitorBID} {
			result, _, _ := dup.Side(id)
			if err := e.store.Competitors.AdjustRecord(ctx, id, result, -1); err != nil {
				return err
			}
		}
		merged.deactivated++
		retired = append(retired, dup.ID)
	}
	if len(retired) == 0 {
		return nil
	}

	if err := e.store.Contests.Update(ctx, survivor); err != nil {
		return err
	}
	if _, err := e.perspective.OnContestChanged(ctx, survivor.ID); err != nil {
		return err
	}

	emit(
		events.New(events.EventTypeContestMerged, "contest", survivor.ID, events.ContestMerge{SurvivorID: survivor.ID, DuplicateIDs: retired}),
		events.New(events.EventTypeContestProjected, "contest", survivor.ID, survivor),
	)
	return nil
}

func (e *Engine) moveViews(ctx context.Context, survivor, dup *models.Contest, merged *groupMerge) error {
	views, err := e.store.HistoryViews.ListByContest(ctx, dup.ID)
	if err != nil {
		return err
	}
	for _, view := range views {
		target, err := e.store.HistoryViews.GetByContestAndCompetitor(ctx, survivor.ID, view.CompetitorID)
		if err != nil && !store.IsNotFound(err) {
			return err
		}

		if target == nil {
			_, opponentID, ok := survivor.Side(view.CompetitorID)
			if !ok {
				return fmt.Errorf("%w: history view %s of competitor %s is orphaned from contest %s", ErrIntegrity, view.ID, view.CompetitorID, dup.ID)
			}
			view.ContestID = &survivor.ID
			view.OpponentID = &opponentID
			if err := e.store.HistoryViews.Update(ctx, view); err != nil {
				return err
			}
			merged.repointed++
			continue
		}

		if target.RawRecordID == nil && view.RawRecordID != nil {
			target.Snapshot = view.Snapshot
			target.RawRecordID = view.RawRecordID
			if err := e.store.HistoryViews.Update(ctx, target); err != nil {
				return err
			}
			merged.evidence++
		}

		view.ContestID = nil
		view.OpponentID = nil
		view.SupersededBy = &target.ID
		if err := e.store.HistoryViews.Update(ctx, view); err != nil {
			return err
		}
		merged.superseded++
	}
	return nil
}

// mergeDetails fills details the survivor lacks from a duplicate
func mergeDetails(survivor, dup *models.Contest) {
	if survivor.Method == nil {
		survivor.Method = dup.Method
	}
	if survivor.EndingRound == nil {
		survivor.EndingRound = dup.EndingRound
	}
	if survivor.EndingTime == nil {
		survivor.EndingTime = dup.EndingTime
	}
	if survivor.WeightClass == nil {
		survivor.WeightClass = dup.WeightClass
	}
	if survivor.FightOrder == nil {
		survivor.FightOrder = dup.FightOrder
	}
	survivor.IsTitleFight = survivor.IsTitleFight || dup.IsTitleFight
	survivor.IsInterimTitle = survivor.IsInterimTitle || dup.IsInterimTitle
}
