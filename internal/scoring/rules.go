// Package scoring rates candidate/position pairs with a fixed weighted formula
// and ranks the results.
package scoring

import (
	"errors"
	"fmt"
	"math"
)

const RulesV1 = "v1"

// Weights are the maximum points of each component. They must sum to 100.
type Weights struct {
	Primary    float64 `mapstructure:"primary" json:"primary"`
	Secondary  float64 `mapstructure:"secondary" json:"secondary"`
	Experience float64 `mapstructure:"experience" json:"experience"`
	Location   float64 `mapstructure:"location" json:"location"`
	Education  float64 `mapstructure:"education" json:"education"`
}

func (w Weights) Total() float64 {
	return w.Primary + w.Secondary + w.Experience + w.Location + w.Education
}

type Rules struct {
	Version string  `json:"version"`
	Weights Weights `json:"weights"`
	// ApprovalThreshold is inclusive: a total equal to it is approved.
	ApprovalThreshold float64 `json:"approval_threshold"`
	// UnspecifiedLocations are position locations that accept any candidate.
	// Compared after lowercasing and trimming; the empty string always counts.
	UnspecifiedLocations []string `json:"unspecified_locations"`
}

func DefaultRules() Rules {
	return Rules{
		Version: RulesV1,
		Weights: Weights{
			Primary:    50,
			Secondary:  20,
			Experience: 15,
			Location:   5,
			Education:  10,
		},
		ApprovalThreshold:    50,
		UnspecifiedLocations: []string{"not specified"},
	}
}

func (r Rules) Validate() error {
	w := r.Weights
	for name, v := range map[string]float64{
		"primary": w.Primary, "secondary": w.Secondary, "experience": w.Experience,
		"location": w.Location, "education": w.Education,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%s weight must be non-negative, got %v", name, v)
		}
	}
	if math.Abs(w.Total()-100) > 1e-9 {
		return fmt.Errorf("weights must sum to 100, got %v", w.Total())
	}
	if r.ApprovalThreshold < 0 || r.ApprovalThreshold > 100 {
		return fmt.Errorf("approval threshold must be within [0, 100], got %v", r.ApprovalThreshold)
	}
	if r.Version == "" {
		return errors.New("rules version is required")
	}
	return nil
}
