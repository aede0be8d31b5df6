package normalizers

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2 2006",
	"Jan 2 2006",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
}

// ParseDate parses the date formats seen in scraped fight records.
// The result is truncated to the calendar day in UTC.
func ParseDate(raw string) (time.Time, bool) {
	s := StripCitations(raw)
	s = strings.ReplaceAll(s, ".,", ",")
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return time.Time{}, false
	}
	// "Jan. 2, 2006"
	if i := strings.Index(s, ". "); i > 0 && i <= 4 {
		s = s[:i] + s[i+1:]
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}

// Day truncates t to midnight UTC of its calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var roundRe = regexp.MustCompile(`(\d+)`)

// ParseRound extracts a round number from "3", "R3" or "Round 3"
func ParseRound(raw string) (int, bool) {
	m := roundRe.FindString(StripCitations(raw))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

var timeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseFightTime validates an ending time of the form "m:ss"
func ParseFightTime(raw string) (string, bool) {
	s := StripCitations(raw)
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	secs, _ := strconv.Atoi(m[2])
	if secs >= 60 {
		return "", false
	}
	mins, _ := strconv.Atoi(m[1])
	return strconv.Itoa(mins) + ":" + m[2], true
}

// CleanText strips citations and collapses whitespace, returning nil when nothing remains
func CleanText(raw *string) *string {
	if raw == nil {
		return nil
	}
	s := StripCitations(*raw)
	if s == "" {
		return nil
	}
	return &s
}
