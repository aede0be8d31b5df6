package perspective

import (
	"strconv"
	"strings"
	"time"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/normalizers"
)

// Tracked fields, in report order
const (
	FieldOpponent = "opponent"
	FieldEvent    = "event"
	FieldDate     = "date"
	FieldMethod   = "method"
	FieldResult   = "result"
	FieldRound    = "round"
	FieldTime     = "time"
	FieldLocation = "location"
)

// DetectConflicts compares a stored snapshot with the live projection field by
// field. Case and whitespace differences are cosmetic. A field the snapshot
// never recorded is not evidence against the contest and is skipped.
func DetectConflicts(snapshot, live models.ViewFields) []models.FieldConflict {
	var conflicts []models.FieldConflict
	add := func(field, snap, cur string) {
		conflicts = append(conflicts, models.FieldConflict{Field: field, Snapshot: snap, Live: cur})
	}

	if snapshot.OpponentName != "" && normalizers.NameKey(snapshot.OpponentName) != normalizers.NameKey(live.OpponentName) {
		add(FieldOpponent, snapshot.OpponentName, live.OpponentName)
	}
	if snapshot.EventName != "" && cosmetic(snapshot.EventName) != cosmetic(live.EventName) {
		add(FieldEvent, snapshot.EventName, live.EventName)
	}
	if snapshot.EventDate != nil && !sameDay(snapshot.EventDate, live.EventDate) {
		add(FieldDate, formatDate(snapshot.EventDate), formatDate(live.EventDate))
	}
	if snapshot.Method != "" && cosmetic(snapshot.Method) != cosmetic(live.Method) {
		add(FieldMethod, snapshot.Method, live.Method)
	}
	if snapshot.Result != "" && snapshot.Result != live.Result {
		add(FieldResult, string(snapshot.Result), string(live.Result))
	}
	if snapshot.Round != nil && (live.Round == nil || *snapshot.Round != *live.Round) {
		add(FieldRound, formatInt(snapshot.Round), formatInt(live.Round))
	}
	if snapshot.Time != "" && cosmetic(snapshot.Time) != cosmetic(live.Time) {
		add(FieldTime, snapshot.Time, live.Time)
	}
	if snapshot.Location != "" && cosmetic(snapshot.Location) != cosmetic(live.Location) {
		add(FieldLocation, snapshot.Location, live.Location)
	}
	return conflicts
}

func cosmetic(s string) string {
	return strings.ToLower(normalizers.CollapseWhitespace(s))
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return normalizers.Day(*a).Equal(normalizers.Day(*b))
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
