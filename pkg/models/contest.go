package models

import (
	"fmt"
	"strings"
	"time"
)

// Result is one participant's outcome of a contest
type Result string

const (
	ResultWin       Result = "win"
	ResultLoss      Result = "loss"
	ResultDraw      Result = "draw"
	ResultNoContest Result = "no_contest"
)

// Complement returns the result the opposing participant must have.
func (r Result) Complement() Result {
	switch r {
	case ResultWin:
		return ResultLoss
	case ResultLoss:
		return ResultWin
	default:
		return r
	}
}

func (r Result) Valid() bool {
	switch r {
	case ResultWin, ResultLoss, ResultDraw, ResultNoContest:
		return true
	}
	return false
}

// ParseResult maps the loose spellings found in scraped records to a Result.
func ParseResult(raw string) (Result, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", " ", "_", " ", ".", "").Replace(s)
	switch s {
	case "win", "w", "won", "victory":
		return ResultWin, true
	case "loss", "l", "lost", "defeat":
		return ResultLoss, true
	case "draw", "d", "drew", "tie":
		return ResultDraw, true
	case "no contest", "nc", "nocontest", "no decision", "nd":
		return ResultNoContest, true
	}
	return "", false
}

// Event is a canonical contest-gathering
type Event struct {
	ID           string     `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	NameKey      string     `json:"name_key" db:"name_key"`
	Date         *time.Time `json:"date,omitempty" db:"date"`
	Location     *string    `json:"location,omitempty" db:"location"`
	Organization *string    `json:"organization,omitempty" db:"organization"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Contest is the authoritative record of one match between two competitors
type Contest struct {
	ID             string    `json:"id" db:"id"`
	EventID        string    `json:"event_id" db:"event_id"`
	FightOrder     *int      `json:"fight_order,omitempty" db:"fight_order"`
	CompetitorAID  string    `json:"competitor_a_id" db:"competitor_a_id"`
	CompetitorBID  string    `json:"competitor_b_id" db:"competitor_b_id"`
	ResultA        Result    `json:"result_a" db:"result_a"`
	ResultB        Result    `json:"result_b" db:"result_b"`
	Method         *string   `json:"method,omitempty" db:"method"`
	EndingRound    *int      `json:"ending_round,omitempty" db:"ending_round"`
	EndingTime     *string   `json:"ending_time,omitempty" db:"ending_time"`
	IsTitleFight   bool      `json:"is_title_fight" db:"is_title_fight"`
	IsInterimTitle bool      `json:"is_interim_title" db:"is_interim_title"`
	WeightClass    *string   `json:"weight_class,omitempty" db:"weight_class"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	Version        int       `json:"version" db:"version"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks the two-distinct-participants and complementary-results invariants.
func (c *Contest) Validate() error {
	if c.CompetitorAID == "" || c.CompetitorBID == "" {
		return fmt.Errorf("contest %s is missing a participant", c.ID)
	}
	if c.CompetitorAID == c.CompetitorBID {
		return fmt.Errorf("contest %s has duplicate participant %s", c.ID, c.CompetitorAID)
	}
	if !c.ResultA.Valid() || !c.ResultB.Valid() {
		return fmt.Errorf("contest %s has invalid results %q/%q", c.ID, c.ResultA, c.ResultB)
	}
	if c.ResultA.Complement() != c.ResultB {
		return fmt.Errorf("contest %s has non-complementary results %s/%s", c.ID, c.ResultA, c.ResultB)
	}
	return nil
}

// Involves reports whether the competitor is one of the two participants.
func (c *Contest) Involves(competitorID string) bool {
	return c.CompetitorAID == competitorID || c.CompetitorBID == competitorID
}

// Side returns the competitor's result and opponent id.
func (c *Contest) Side(competitorID string) (result Result, opponentID string, ok bool) {
	switch competitorID {
	case c.CompetitorAID:
		return c.ResultA, c.CompetitorBID, true
	case c.CompetitorBID:
		return c.ResultB, c.CompetitorAID, true
	}
	return "", "", false
}

// SamePair reports whether both contests are between the same two competitors, in any order.
func (c *Contest) SamePair(other *Contest) bool {
	return (c.CompetitorAID == other.CompetitorAID && c.CompetitorBID == other.CompetitorBID) ||
		(c.CompetitorAID == other.CompetitorBID && c.CompetitorBID == other.CompetitorAID)
}
