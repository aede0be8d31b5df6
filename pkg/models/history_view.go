package models

import (
	"time"
)

// ViewFields are the display fields of one competitor's record of a contest
type ViewFields struct {
	OpponentName string     `json:"opponent_name,omitempty"`
	EventName    string     `json:"event_name,omitempty"`
	EventDate    *time.Time `json:"event_date,omitempty"`
	Location     string     `json:"location,omitempty"`
	Method       string     `json:"method,omitempty"`
	Result       Result     `json:"result,omitempty"`
	Round        *int       `json:"round,omitempty"`
	Time         string     `json:"time,omitempty"`
}

// FieldConflict is one tracked field whose live value diverges from the stored snapshot
type FieldConflict struct {
	Field    string `json:"field"`
	Snapshot string `json:"snapshot"`
	Live     string `json:"live"`
}

// HistoryView is one competitor's perspective of a contest.
// A view without ContestID is a legacy record and its snapshot is the only source of truth.
type HistoryView struct {
	ID           string          `json:"id"`
	CompetitorID string          `json:"competitor_id"`
	ContestID    *string         `json:"contest_id,omitempty"`
	OpponentID   *string         `json:"opponent_id,omitempty"`
	Snapshot     ViewFields      `json:"snapshot"`
	HasConflict  bool            `json:"has_conflict"`
	Conflicts    []FieldConflict `json:"conflicts,omitempty"`
	RawRecordID  *string         `json:"raw_record_id,omitempty"`
	// SupersededBy is the view that took over this one's contest when its
	// contest was merged away. Superseded views are kept for provenance only.
	SupersededBy *string   `json:"superseded_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (v *HistoryView) IsLinked() bool {
	return v.ContestID != nil && *v.ContestID != ""
}

func (v *HistoryView) IsSuperseded() bool {
	return v.SupersededBy != nil && *v.SupersededBy != ""
}

// ResolvedView is what a reader sees: live fields for linked views, the snapshot otherwise
type ResolvedView struct {
	ViewID       string          `json:"view_id"`
	CompetitorID string          `json:"competitor_id"`
	ContestID    *string         `json:"contest_id,omitempty"`
	Linked       bool            `json:"linked"`
	Fields       ViewFields      `json:"fields"`
	Snapshot     ViewFields      `json:"snapshot"`
	HasConflict  bool            `json:"has_conflict"`
	Conflicts    []FieldConflict `json:"conflicts,omitempty"`
}
