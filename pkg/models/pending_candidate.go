package models

import (
	"time"
)

// Band is a discrete confidence classification
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
	BandNone   Band = "none"
)

// PendingStatus is the review status of a pending candidate
type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "pending"
	PendingStatusApproved PendingStatus = "approved"
	PendingStatusRejected PendingStatus = "rejected"
	PendingStatusMerged   PendingStatus = "merged"
)

// Subject identifies which name of a raw record a pending candidate is about
type Subject string

const (
	SubjectCompetitor Subject = "competitor"
	SubjectOpponent   Subject = "opponent"
)

// Candidate is one ranked identity proposal for a raw name
type Candidate struct {
	CompetitorID string  `json:"competitor_id"`
	Score        float64 `json:"score"`
	Strategy     string  `json:"strategy"`
	ContestID    *string `json:"contest_id,omitempty"`
}

// PendingCandidate is a raw record awaiting human review
type PendingCandidate struct {
	ID                    string        `json:"id"`
	Fingerprint           string        `json:"fingerprint"`
	Subject               Subject       `json:"subject"`
	RawName               string        `json:"raw_name"`
	RawDate               *string       `json:"raw_date,omitempty"`
	RawEvent              *string       `json:"raw_event,omitempty"`
	RawRecord             RawRecord     `json:"raw_record"`
	Candidates            []Candidate   `json:"candidates"`
	Band                  Band          `json:"band"`
	SuggestedCompetitorID *string       `json:"suggested_competitor_id,omitempty"`
	// Pinned ids carry earlier review decisions for the other side of the record
	PinnedCompetitorID    *string       `json:"pinned_competitor_id,omitempty"`
	PinnedOpponentID      *string       `json:"pinned_opponent_id,omitempty"`
	Status                PendingStatus `json:"status"`
	Resolution            *string       `json:"resolution,omitempty"`
	ResolvedBy            *string       `json:"resolved_by,omitempty"`
	ResolvedAt            *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}
