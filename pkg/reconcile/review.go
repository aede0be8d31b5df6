package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/events"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

// DecisionKind is a reviewer's verdict on a pending candidate
type DecisionKind string

const (
	DecisionLinkTo    DecisionKind = "link_to"
	DecisionCreateNew DecisionKind = "create_new"
	DecisionReject    DecisionKind = "reject"
)

// Decision resolves a pending candidate
type Decision struct {
	Kind         DecisionKind `json:"kind"`
	CompetitorID string       `json:"competitor_id,omitempty"`
}

// LinkTo attaches the ambiguous name to an existing competitor
func LinkTo(competitorID string) Decision {
	return Decision{Kind: DecisionLinkTo, CompetitorID: competitorID}
}

// CreateNew treats the ambiguous name as a new competitor
func CreateNew() Decision {
	return Decision{Kind: DecisionCreateNew}
}

// Reject keeps the raw record as provenance but links nothing
func Reject() Decision {
	return Decision{Kind: DecisionReject}
}

func (d Decision) Validate() error {
	switch d.Kind {
	case DecisionLinkTo:
		if d.CompetitorID == "" {
			return errors.New("link_to requires a competitor id")
		}
	case DecisionCreateNew, DecisionReject:
	default:
		return fmt.Errorf("unknown decision %q", d.Kind)
	}
	return nil
}

func (d Decision) String() string {
	if d.Kind == DecisionLinkTo {
		return string(d.Kind) + ":" + d.CompetitorID
	}
	return string(d.Kind)
}

// ListPending returns candidates awaiting review, oldest first
func (e *Engine) ListPending(ctx context.Context, limit int) ([]*models.PendingCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Engine.ListPending")
	defer span.End()

	return e.store.Pending.ListPending(ctx, limit)
}

// Resolve applies a reviewer's decision. Linking or creating re-runs the
// record with the reviewed side pinned; if the other side is ambiguous the
// record is queued again for that side.
func (e *Engine) Resolve(ctx context.Context, pendingID string, decision Decision, resolvedBy string) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Engine.Resolve")
	defer span.End()

	if err := decision.Validate(); err != nil {
		return nil, err
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"pending_id":  pendingID,
		"decision":    decision.String(),
		"resolved_by": resolvedBy,
	})

	pending, err := e.store.Pending.Get(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if pending.Status != models.PendingStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, pendingID, pending.Status)
	}

	p, err := e.parse(ctx, pending.RawRecord)
	if err != nil {
		if decision.Kind != DecisionReject {
			return nil, err
		}
		p = &parsedRecord{
			raw:         pending.RawRecord,
			recordID:    pending.RawRecord.RecordID(),
			fingerprint: pending.Fingerprint,
		}
	}

	var keys []string
	if p.nameKey != "" {
		keys = p.lockKeys()
	}

	out, err := e.execute(ctx, keys, func(ctx context.Context, emit emitFunc) (*Outcome, error) {
		pending, err := e.store.Pending.Get(ctx, pendingID)
		if err != nil {
			return nil, err
		}
		if pending.Status != models.PendingStatusPending {
			return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, pendingID, pending.Status)
		}

		now := time.Now().UTC()
		resolution := decision.String()
		pending.Resolution = &resolution
		pending.ResolvedBy = &resolvedBy
		pending.ResolvedAt = &now

		out := &Outcome{RecordID: p.recordID, Fingerprint: p.fingerprint}

		if decision.Kind == DecisionReject {
			pending.Status = models.PendingStatusRejected
			if err := e.store.Pending.Update(ctx, pending); err != nil {
				return nil, err
			}
			if err := e.reject(ctx, p, pending); err != nil {
				return nil, err
			}
			out.State = models.RecordStateRejected
			out.PendingID = pending.ID
			emit(events.New(events.EventTypeRecordRejected, "pending_candidate", pending.ID, pending))
			return out, nil
		}

		pinned := pins{}
		if pending.PinnedCompetitorID != nil {
			pinned.competitor = &pin{id: *pending.PinnedCompetitorID}
		}
		if pending.PinnedOpponentID != nil {
			pinned.opponent = &pin{id: *pending.PinnedOpponentID}
		}

		chosen := &pin{create: true}
		pending.Status = models.PendingStatusApproved
		if decision.Kind == DecisionLinkTo {
			competitor, err := e.store.Competitors.Get(ctx, decision.CompetitorID)
			if err != nil {
				return nil, err
			}
			if !competitor.IsActive {
				return nil, fmt.Errorf("cannot link to inactive competitor %s", competitor.ID)
			}
			chosen = &pin{id: competitor.ID}
			pending.Status = models.PendingStatusMerged
		}
		if pending.Subject == models.SubjectOpponent {
			pinned.opponent = chosen
		} else {
			pinned.competitor = chosen
		}

		if err := e.store.Pending.Update(ctx, pending); err != nil {
			return nil, err
		}
		if err := e.apply(ctx, p, pinned, out, emit); err != nil {
			return nil, err
		}
		emit(events.New(events.EventTypeRecordResolved, "pending_candidate", pending.ID, pending))
		return out, nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to resolve pending candidate")
		return nil, err
	}

	log.WithFields(map[string]any{"state": out.State}).Info("Resolved pending candidate")
	return out, nil
}

// reject marks the record's provenance rejected without touching canonical data
func (e *Engine) reject(ctx context.Context, p *parsedRecord, pending *models.PendingCandidate) error {
	link, err := e.store.Provenance.Get(ctx, p.fingerprint)
	if err != nil && !store.IsNotFound(err) {
		return err
	}
	if link == nil {
		link = &models.RawRecordLink{
			Fingerprint: p.fingerprint,
			RawRecordID: p.recordID,
			Source:      optionalString(p.raw.Source),
			Payload:     p.raw.JSON(),
		}
	}
	link.State = models.RecordStateRejected
	link.PendingID = &pending.ID
	return e.store.Provenance.Upsert(ctx, link)
}
