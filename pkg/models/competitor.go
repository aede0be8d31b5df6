package models

import (
	"time"
)

// AlternateNameType tags where an alternate name came from
type AlternateNameType string

const (
	AlternateNameSpellingVariant AlternateNameType = "spelling_variant"
	AlternateNameLegalName       AlternateNameType = "legal_name"
	AlternateNameNickname        AlternateNameType = "nickname"
	AlternateNameTranslation     AlternateNameType = "translation"
)

// FightRecord is the aggregate win/loss record of a competitor
type FightRecord struct {
	Wins       int `json:"wins" db:"wins"`
	Losses     int `json:"losses" db:"losses"`
	Draws      int `json:"draws" db:"draws"`
	NoContests int `json:"no_contests" db:"no_contests"`
}

// Tally adds delta contests with the given result to the record
func (r *FightRecord) Tally(result Result, delta int) {
	switch result {
	case ResultWin:
		r.Wins += delta
	case ResultLoss:
		r.Losses += delta
	case ResultDraw:
		r.Draws += delta
	case ResultNoContest:
		r.NoContests += delta
	}
}

// Competitor is the canonical identity of a participant.
// GivenName is never empty; FamilyName is empty only when IsSingleName is set.
type Competitor struct {
	ID             string     `json:"id" db:"id"`
	GivenName      string     `json:"given_name" db:"given_name"`
	FamilyName     string     `json:"family_name" db:"family_name"`
	DisplayName    string     `json:"display_name" db:"display_name"`
	NameKey        string     `json:"name_key" db:"name_key"`
	IsSingleName   bool       `json:"is_single_name" db:"is_single_name"`
	Nationality    *string    `json:"nationality,omitempty" db:"nationality"`
	HeightCm       *float64   `json:"height_cm,omitempty" db:"height_cm"`
	WeightKg       *float64   `json:"weight_kg,omitempty" db:"weight_kg"`
	ReachCm        *float64   `json:"reach_cm,omitempty" db:"reach_cm"`
	Stance         *string    `json:"stance,omitempty" db:"stance"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	FightRecord
	IsActive       bool            `json:"is_active" db:"is_active"`
	AlternateNames []AlternateName `json:"alternate_names,omitempty" db:"-"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Deactivate marks the competitor inactive. Competitors are never deleted.
func (c *Competitor) Deactivate(now time.Time) {
	c.IsActive = false
	c.UpdatedAt = now
}

// HasName reports whether key matches the competitor's display name or any alternate name.
func (c *Competitor) HasName(key string) bool {
	if c.NameKey == key {
		return true
	}
	for _, alt := range c.AlternateNames {
		if alt.NameKey == key {
			return true
		}
	}
	return false
}

// AlternateName is a name historically associated with a Competitor
type AlternateName struct {
	ID           string            `json:"id" db:"id"`
	CompetitorID string            `json:"competitor_id" db:"competitor_id"`
	Name         string            `json:"name" db:"name"`
	NameKey      string            `json:"name_key" db:"name_key"`
	Type         AlternateNameType `json:"type" db:"type"`
	Source       *string           `json:"source,omitempty" db:"source"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}
