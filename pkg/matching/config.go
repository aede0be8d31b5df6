package matching

import (
	"fmt"
	"time"
)

// Weights configures record similarity. The defaults are calibration values
// and should be tuned per deployment against reviewed data.
type Weights struct {
	Name          float64       `json:"name" yaml:"name"`
	Event         float64       `json:"event" yaml:"event"`
	Date          float64       `json:"date" yaml:"date"`
	Location      float64       `json:"location" yaml:"location"`
	DateTolerance time.Duration `json:"date_tolerance" yaml:"date_tolerance"`
}

func DefaultWeights() Weights {
	return Weights{
		Name:     0.4,
		Event:    0.2,
		Date:     0.2,
		Location: 0.2,
	}
}

func (w Weights) asMap() map[string]float64 {
	return map[string]float64{
		fieldName:     w.Name,
		fieldEvent:    w.Event,
		fieldDate:     w.Date,
		fieldLocation: w.Location,
	}
}

func (w Weights) Validate() error {
	for field, weight := range w.asMap() {
		if weight < 0 {
			return fmt.Errorf("weight %s must not be negative, got %v", field, weight)
		}
	}
	if w.Name+w.Event+w.Date+w.Location <= 0 {
		return fmt.Errorf("at least one record similarity weight must be positive")
	}
	if w.DateTolerance < 0 {
		return fmt.Errorf("date tolerance must not be negative, got %s", w.DateTolerance)
	}
	return nil
}

// Config contains configuration for the candidate finder
type Config struct {
	MinScore         float64 // floor a strategy must reach to stop the search (default: 30)
	TopK             int     // global fuzzy result bound (default: 20)
	SearchFactor     int     // store prefilter size as a multiple of TopK (default: 5)
	OpponentMatchMin float64 // name similarity for a contest participant to count as the named opponent (default: 0.85)
	TemporalNameMin  float64 // name similarity a same-day participant needs before context is scored (default: 0.85)
	Weights          Weights
}

// DefaultConfig returns default finder configuration
func DefaultConfig() Config {
	return Config{
		MinScore:         30,
		TopK:             20,
		SearchFactor:     5,
		OpponentMatchMin: 0.85,
		TemporalNameMin:  0.85,
		Weights:          DefaultWeights(),
	}
}

func (c Config) Validate() error {
	if c.MinScore < 0 || c.MinScore > 100 {
		return fmt.Errorf("min score must be in [0,100], got %v", c.MinScore)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top k must be positive, got %d", c.TopK)
	}
	if c.SearchFactor <= 0 {
		return fmt.Errorf("search factor must be positive, got %d", c.SearchFactor)
	}
	if c.OpponentMatchMin <= 0 || c.OpponentMatchMin > 1 {
		return fmt.Errorf("opponent match minimum must be in (0,1], got %v", c.OpponentMatchMin)
	}
	if c.TemporalNameMin <= 0 || c.TemporalNameMin > 1 {
		return fmt.Errorf("temporal name minimum must be in (0,1], got %v", c.TemporalNameMin)
	}
	return c.Weights.Validate()
}
