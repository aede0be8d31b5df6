package matching

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/normalizers"
)

// Scorer provides string and value comparison algorithms.
// All string algorithms operate on runes so accented names compare correctly.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// ExactMatch returns 1.0 for exact match, 0.0 otherwise
func (s *Scorer) ExactMatch(a, b string, caseSensitive bool) float64 {
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings
// Returns a value between 0.0 (no similarity) and 1.0 (exact match)
func (s *Scorer) JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	jaro := s.Jaro(a, b)

	ra, rb := []rune(a), []rune(b)
	prefixLen := 0
	for i := 0; i < len(ra) && i < len(rb) && i < 4; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefixLen++
	}

	return jaro + float64(prefixLen)*0.1*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	matchDist := max(len(ra), len(rb))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(ra))
	bMatches := make([]bool, len(rb))

	matches := 0
	for i := range ra {
		start := max(0, i-matchDist)
		end := min(len(rb), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || ra[i] != rb[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := range ra {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if ra[i] != rb[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(ra)) + m/float64(len(rb)) + (m-t)/m) / 3
}

// Levenshtein calculates a similarity score between 0.0 and 1.0 from the edit distance
func (s *Scorer) Levenshtein(a, b string) float64 {
	distance := s.LevenshteinDistance(a, b)
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	row := make([]int, len(rb)+1)
	prevRow := make([]int, len(rb)+1)
	for j := range prevRow {
		prevRow[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			row[j] = min(row[j-1]+1, prevRow[j]+1, prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(rb)]
}

// SameDay returns 1.0 when the dates are within tolerance of each other, 0.0 otherwise.
// A zero tolerance means the same calendar day.
func (s *Scorer) SameDay(a, b time.Time, tolerance time.Duration) float64 {
	if a.IsZero() || b.IsZero() {
		return 0.0
	}
	diff := math.Abs(float64(normalizers.Day(a).Sub(normalizers.Day(b))))
	if time.Duration(diff) <= tolerance {
		return 1.0
	}
	return 0.0
}

// WeightedScore calculates a weighted average of scores. Only fields present
// in scores contribute, so weights are renormalized over what was compared.
func (s *Scorer) WeightedScore(scores map[string]float64, weights map[string]float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}

	var totalWeight float64
	var weightedSum float64

	for field, score := range scores {
		weight := 1.0
		if w, ok := weights[field]; ok {
			weight = w
		}
		weightedSum += score * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0.0
	}

	return weightedSum / totalWeight
}

// NameSimilarity compares two person names in [0,1]. It takes the best of an
// order-preserving comparison, a token-sorted comparison ("Jones, Jon" vs
// "Jon Jones") and a token-set comparison that tolerates extra middle names.
func (s *Scorer) NameSimilarity(a, b string) float64 {
	na, nb := normalizers.NormalizeName(a), normalizers.NormalizeName(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	ta, tb := strings.Fields(na), strings.Fields(nb)
	best := s.JaroWinkler(na, nb)
	best = math.Max(best, s.JaroWinkler(sortedJoin(ta), sortedJoin(tb)))
	best = math.Max(best, s.tokenSetRatio(ta, tb))
	return math.Min(best, 1.0)
}

// tokenSetRatio compares "shared tokens + remainder" of each side, scaled by how
// much of both names the shared tokens cover so "Jon" does not match "Jon Jones" outright.
func (s *Scorer) tokenSetRatio(ta, tb []string) float64 {
	inB := make(map[string]bool, len(tb))
	for _, t := range tb {
		inB[t] = true
	}

	var shared, onlyA, onlyB []string
	seen := make(map[string]bool)
	for _, t := range ta {
		if inB[t] && !seen[t] {
			shared = append(shared, t)
			seen[t] = true
		} else if !inB[t] {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range tb {
		if !seen[t] {
			onlyB = append(onlyB, t)
		}
	}
	if len(shared) == 0 {
		return 0.0
	}

	base := sortedJoin(shared)
	left := strings.TrimSpace(base + " " + sortedJoin(onlyA))
	right := strings.TrimSpace(base + " " + sortedJoin(onlyB))

	coverage := 2 * float64(len(shared)) / float64(len(ta)+len(tb))
	return s.JaroWinkler(left, right) * (0.7 + 0.3*coverage)
}

func sortedJoin(tokens []string) string {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

// RecordSignature is the comparable part of a fight record
type RecordSignature struct {
	Name      string
	EventName string
	Date      *time.Time
	Location  string
}

const (
	fieldName     = "name"
	fieldEvent    = "event"
	fieldDate     = "date"
	fieldLocation = "location"
)

// RecordSimilarity is the weighted composite of name, event, date and location
// similarity in [0,100]. Fields absent on either side are left out and the
// remaining weights renormalized.
func (s *Scorer) RecordSimilarity(a, b RecordSignature, w Weights) float64 {
	scores := make(map[string]float64, 4)
	if a.Name != "" && b.Name != "" {
		scores[fieldName] = s.NameSimilarity(a.Name, b.Name)
	}
	if a.EventName != "" && b.EventName != "" {
		scores[fieldEvent] = s.JaroWinkler(normalizers.TextKey(a.EventName), normalizers.TextKey(b.EventName))
	}
	if a.Date != nil && b.Date != nil {
		scores[fieldDate] = s.SameDay(*a.Date, *b.Date, w.DateTolerance)
	}
	if a.Location != "" && b.Location != "" {
		scores[fieldLocation] = s.JaroWinkler(normalizers.TextKey(a.Location), normalizers.TextKey(b.Location))
	}

	score := 100 * s.WeightedScore(scores, w.asMap())
	return math.Min(score, 100)
}
