package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/fingerprint"
)

// RawRecord is one scraped fight-history line as supplied by an ingestion collaborator
type RawRecord struct {
	ID              string  `json:"id,omitempty" yaml:"id,omitempty"`
	Source          string  `json:"source,omitempty" yaml:"source,omitempty"`
	RawName         string  `json:"raw_name" yaml:"raw_name" validate:"required,max=256"`
	RawOpponentName *string `json:"raw_opponent_name,omitempty" yaml:"raw_opponent_name,omitempty" validate:"omitempty,max=256"`
	RawEventName    *string `json:"raw_event_name,omitempty" yaml:"raw_event_name,omitempty" validate:"omitempty,max=512"`
	RawDate         *string `json:"raw_date,omitempty" yaml:"raw_date,omitempty"`
	RawLocation     *string `json:"raw_location,omitempty" yaml:"raw_location,omitempty"`
	RawMethod       *string `json:"raw_method,omitempty" yaml:"raw_method,omitempty"`
	RawResult       string  `json:"raw_result" yaml:"raw_result" validate:"required,fight_result"`
	RawRound        *string `json:"raw_round,omitempty" yaml:"raw_round,omitempty"`
	RawTime         *string `json:"raw_time,omitempty" yaml:"raw_time,omitempty"`
	RawWeightClass  *string `json:"raw_weight_class,omitempty" yaml:"raw_weight_class,omitempty"`
	RawTitleFight   *bool   `json:"raw_title_fight,omitempty" yaml:"raw_title_fight,omitempty"`
}

// Fingerprint identifies the record's content independently of its id and source,
// so the same line scraped twice resolves to the same provenance entry.
func (r RawRecord) Fingerprint() string {
	data := map[string]any{
		"name":   squash(r.RawName),
		"result": squash(r.RawResult),
	}
	optional := map[string]*string{
		"opponent":     r.RawOpponentName,
		"event":        r.RawEventName,
		"date":         r.RawDate,
		"location":     r.RawLocation,
		"method":       r.RawMethod,
		"round":        r.RawRound,
		"time":         r.RawTime,
		"weight_class": r.RawWeightClass,
	}
	for key, value := range optional {
		if value != nil && strings.TrimSpace(*value) != "" {
			data[key] = squash(*value)
		}
	}
	if r.RawTitleFight != nil {
		data["title_fight"] = *r.RawTitleFight
	}
	return fingerprint.Generate(data)
}

// RecordID returns the caller-supplied id, falling back to the fingerprint.
func (r RawRecord) RecordID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Fingerprint()
}

// HasContestContext reports whether the record names both an opponent and an event.
func (r RawRecord) HasContestContext() bool {
	return nonEmpty(r.RawOpponentName) && nonEmpty(r.RawEventName)
}

func (r RawRecord) JSON() json.RawMessage {
	b, _ := json.Marshal(r)
	return b
}

func squash(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// RecordState is the terminal (or waiting) state of a processed raw record
type RecordState string

const (
	RecordStateAutoLinked    RecordState = "auto_linked"
	RecordStateCreated       RecordState = "created"
	RecordStatePendingReview RecordState = "pending_review"
	RecordStateRejected      RecordState = "rejected"
)

// RawRecordLink is the provenance entry of a processed raw record. It survives
// rejection so the original evidence is never lost.
type RawRecordLink struct {
	Fingerprint   string          `json:"fingerprint" db:"fingerprint"`
	RawRecordID   string          `json:"raw_record_id" db:"raw_record_id"`
	Source        *string         `json:"source,omitempty" db:"source"`
	State         RecordState     `json:"state" db:"state"`
	CompetitorID  *string         `json:"competitor_id,omitempty" db:"competitor_id"`
	OpponentID    *string         `json:"opponent_id,omitempty" db:"opponent_id"`
	ContestID     *string         `json:"contest_id,omitempty" db:"contest_id"`
	HistoryViewID *string         `json:"history_view_id,omitempty" db:"history_view_id"`
	PendingID     *string         `json:"pending_id,omitempty" db:"pending_id"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}
