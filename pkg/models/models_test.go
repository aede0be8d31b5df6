package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestRawRecord_Fingerprint(t *testing.T) {
	base := RawRecord{
		ID:              "a",
		Source:          "wiki",
		RawName:         "Jon Jones",
		RawOpponentName: strPtr("Daniel Cormier"),
		RawEventName:    strPtr("UFC 214"),
		RawResult:       "win",
	}

	rescraped := base
	rescraped.ID = "b"
	rescraped.Source = "sherdog"
	rescraped.RawName = "  jon   JONES "
	rescraped.RawDate = strPtr("   ")
	assert.Equal(t, base.Fingerprint(), rescraped.Fingerprint(), "id, source, case and blank fields do not change identity")

	other := base
	other.RawResult = "loss"
	assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())

	titled := base
	yes := true
	titled.RawTitleFight = &yes
	assert.NotEqual(t, base.Fingerprint(), titled.Fingerprint())
}

func TestRawRecord_RecordID(t *testing.T) {
	r := RawRecord{RawName: "Jon Jones", RawResult: "win"}
	assert.Equal(t, r.Fingerprint(), r.RecordID())

	r.ID = "line-7"
	assert.Equal(t, "line-7", r.RecordID())
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		raw  string
		want Result
		ok   bool
	}{
		{raw: "Win", want: ResultWin, ok: true},
		{raw: " L ", want: ResultLoss, ok: true},
		{raw: "Draw", want: ResultDraw, ok: true},
		{raw: "NC", want: ResultNoContest, ok: true},
		{raw: "no-contest", want: ResultNoContest, ok: true},
		{raw: "n.c.", want: ResultNoContest, ok: true},
		{raw: "pending", ok: false},
	}

	for _, tt := range tests {
		got, ok := ParseResult(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestContest_Validate(t *testing.T) {
	valid := Contest{ID: "k", CompetitorAID: "a", CompetitorBID: "b", ResultA: ResultWin, ResultB: ResultLoss}
	assert.NoError(t, valid.Validate())

	draw := valid
	draw.ResultA, draw.ResultB = ResultDraw, ResultDraw
	assert.NoError(t, draw.Validate())

	tests := []struct {
		name   string
		mutate func(*Contest)
	}{
		{name: "missing participant", mutate: func(c *Contest) { c.CompetitorBID = "" }},
		{name: "same participant twice", mutate: func(c *Contest) { c.CompetitorBID = c.CompetitorAID }},
		{name: "two winners", mutate: func(c *Contest) { c.ResultB = ResultWin }},
		{name: "unknown result", mutate: func(c *Contest) { c.ResultA = "maybe" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestContest_Sides(t *testing.T) {
	c := Contest{CompetitorAID: "a", CompetitorBID: "b", ResultA: ResultLoss, ResultB: ResultWin}

	result, opponent, ok := c.Side("b")
	assert.True(t, ok)
	assert.Equal(t, ResultWin, result)
	assert.Equal(t, "a", opponent)

	_, _, ok = c.Side("c")
	assert.False(t, ok)

	assert.True(t, c.SamePair(&Contest{CompetitorAID: "b", CompetitorBID: "a"}))
	assert.False(t, c.SamePair(&Contest{CompetitorAID: "a", CompetitorBID: "c"}))
}

func TestFightRecord_Tally(t *testing.T) {
	var r FightRecord
	r.Tally(ResultWin, 1)
	r.Tally(ResultWin, 1)
	r.Tally(ResultNoContest, 1)
	r.Tally(ResultWin, -1)
	assert.Equal(t, FightRecord{Wins: 1, NoContests: 1}, r)
}

func TestCompetitor_HasName(t *testing.T) {
	c := Competitor{NameKey: "jon jones", AlternateNames: []AlternateName{{NameKey: "bones jones"}}}
	assert.True(t, c.HasName("jon jones"))
	assert.True(t, c.HasName("bones jones"))
	assert.False(t, c.HasName("daniel cormier"))
}
