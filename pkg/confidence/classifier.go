// Package confidence turns candidate scores into a confidence band and a recommended action
package confidence

import (
	"fmt"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
)

// Action is what the engine should do with a classified record
type Action string

const (
	ActionAutoLink Action = "auto_link"
	ActionReview   Action = "review"
	ActionCreate   Action = "create"
)

// Thresholds are score boundaries on the 0..100 scale.
// The defaults are calibration values, not derived constants.
type Thresholds struct {
	High   float64 `json:"high" yaml:"high"`
	Medium float64 `json:"medium" yaml:"medium"`
	Low    float64 `json:"low" yaml:"low"`
	// MinGap is the lead over the runner-up required for a High band
	MinGap float64 `json:"min_gap" yaml:"min_gap"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: 85, Medium: 60, Low: 30, MinGap: 10}
}

func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{"high": t.High, "medium": t.Medium, "low": t.Low, "min_gap": t.MinGap} {
		if v < 0 || v > 100 {
			return fmt.Errorf("threshold %s must be in [0,100], got %v", name, v)
		}
	}
	if t.Low > t.Medium || t.Medium > t.High {
		return fmt.Errorf("thresholds must satisfy low <= medium <= high, got %v/%v/%v", t.Low, t.Medium, t.High)
	}
	return nil
}

// Decision is the classification of one ranked candidate list
type Decision struct {
	Band   models.Band       `json:"band"`
	Action Action            `json:"action"`
	Top    *models.Candidate `json:"top,omitempty"`
	Gap    float64           `json:"gap"`
	// Suggestion is pre-selected for reviewers on Medium decisions only
	Suggestion *string `json:"suggestion,omitempty"`
}

type Classifier struct {
	thresholds Thresholds
}

func NewClassifier(thresholds Thresholds) *Classifier {
	return &Classifier{thresholds: thresholds}
}

func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify maps the top score and its gap to the runner-up to a band.
// candidates must be sorted best first.
func (c *Classifier) Classify(candidates []models.Candidate) Decision {
	if len(candidates) == 0 {
		return Decision{Band: models.BandNone, Action: ActionCreate}
	}

	top := candidates[0]
	gap := top.Score
	if len(candidates) > 1 {
		gap = top.Score - candidates[1].Score
	}

	t := c.thresholds
	decision := Decision{Top: &top, Gap: gap}
	switch {
	case top.Score < t.Low:
		decision.Band = models.BandNone
		decision.Action = ActionCreate
		decision.Top = nil
	case top.Score >= t.High && gap >= t.MinGap:
		decision.Band = models.BandHigh
		decision.Action = ActionAutoLink
	case top.Score >= t.Medium:
		decision.Band = models.BandMedium
		decision.Action = ActionReview
		suggestion := top.CompetitorID
		decision.Suggestion = &suggestion
	default:
		decision.Band = models.BandLow
		decision.Action = ActionReview
	}
	return decision
}
