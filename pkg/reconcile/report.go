package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
)

// IssueKind classifies why a record did not reach an outcome
type IssueKind string

const (
	IssueInvalid         IssueKind = "invalid"
	IssueIntegrity       IssueKind = "integrity"
	IssueConcurrentWrite IssueKind = "concurrent_write"
	IssueCancelled       IssueKind = "cancelled"
	IssueFailed          IssueKind = "failed"
)

// RecordIssue is a record that was skipped or failed, with the reason
type RecordIssue struct {
	RecordID string    `json:"record_id" yaml:"record_id"`
	Kind     IssueKind `json:"kind" yaml:"kind"`
	Reason   string    `json:"reason" yaml:"reason"`
}

// Report summarizes one batch run. Every input record is accounted for:
// Total == Processed + Skipped + Failed.
type Report struct {
	Total       int `json:"total" yaml:"total"`
	Processed   int `json:"processed" yaml:"processed"`
	Linked      int `json:"linked" yaml:"linked"`
	Created     int `json:"created" yaml:"created"`
	Queued      int `json:"queued" yaml:"queued"`
	Revalidated int `json:"revalidated" yaml:"revalidated"`
	Conflicts   int `json:"conflicts" yaml:"conflicts"`
	Skipped     int `json:"skipped" yaml:"skipped"`
	Failed      int `json:"failed" yaml:"failed"`

	ContestsCreated int `json:"contests_created" yaml:"contests_created"`

	Issues   []RecordIssue `json:"issues,omitempty" yaml:"issues,omitempty"`
	Outcomes []*Outcome    `json:"outcomes,omitempty" yaml:"-"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

func (r *Report) record(out *Outcome) {
	r.Processed++
	r.Outcomes = append(r.Outcomes, out)
	r.Conflicts += out.Conflicts
	if out.ContestCreated {
		r.ContestsCreated++
	}
	if out.Revalidated {
		r.Revalidated++
		return
	}
	switch out.State {
	case models.RecordStateAutoLinked:
		r.Linked++
	case models.RecordStateCreated:
		r.Created++
	case models.RecordStatePendingReview:
		r.Queued++
	}
}

func (r *Report) fail(recordID string, err error) {
	kind := classify(err)
	switch kind {
	case IssueInvalid, IssueIntegrity, IssueCancelled:
		r.Skipped++
	default:
		r.Failed++
	}
	r.Issues = append(r.Issues, RecordIssue{RecordID: recordID, Kind: kind, Reason: err.Error()})
}

// Merge folds another report into r, e.g. across consumer batches
func (r *Report) Merge(other *Report) {
	r.Total += other.Total
	r.Processed += other.Processed
	r.Linked += other.Linked
	r.Created += other.Created
	r.Queued += other.Queued
	r.Revalidated += other.Revalidated
	r.Conflicts += other.Conflicts
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.ContestsCreated += other.ContestsCreated
	r.Issues = append(r.Issues, other.Issues...)
	r.Outcomes = append(r.Outcomes, other.Outcomes...)
	if r.StartedAt.IsZero() || other.StartedAt.Before(r.StartedAt) {
		r.StartedAt = other.StartedAt
	}
	if other.FinishedAt.After(r.FinishedAt) {
		r.FinishedAt = other.FinishedAt
	}
}

func classify(err error) IssueKind {
	switch {
	case errors.Is(err, ErrInvalidRecord):
		return IssueInvalid
	case errors.Is(err, ErrIntegrity):
		return IssueIntegrity
	case errors.Is(err, ErrConcurrentWrite):
		return IssueConcurrentWrite
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return IssueCancelled
	}
	return IssueFailed
}
