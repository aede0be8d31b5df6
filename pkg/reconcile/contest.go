package reconcile

import (
	"context"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/events"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/metrics"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/perspective"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

// OnContestChanged reprojects both history views of a contest in its own
// transaction. Callers that edit contests outside the engine invoke it after
// every change.
func (e *Engine) OnContestChanged(ctx context.Context, contestID string) (*perspective.ProjectionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Engine.OnContestChanged")
	defer span.End()

	var result *perspective.ProjectionResult
	_, err := e.execute(ctx, []string{"contest-id:" + contestID}, func(ctx context.Context, emit emitFunc) (*Outcome, error) {
		projection, err := e.perspective.OnContestChanged(ctx, contestID)
		if err != nil {
			return nil, err
		}
		contest, err := e.store.Contests.Get(ctx, contestID)
		if err != nil {
			return nil, err
		}

		emit(events.New(events.EventTypeContestProjected, "contest", contest.ID, contest))
		for _, view := range projection.Views {
			if view.HasConflict {
				emit(events.New(events.EventTypeViewConflict, "history_view", view.ID, view))
			}
		}
		result = projection
		return nil, nil
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contest_id": contestID,
		}).Warn("Failed to project contest")
		return nil, err
	}

	metrics.ViewConflictsTotal.Add(float64(result.Conflicts))
	return result, nil
}
