package scoring

import (
	"math"
	"slices"
	"strings"

	"github.com/spigell/resume-matcher/internal/normalize"
	"github.com/spigell/resume-matcher/internal/records"
)

// Breakdown holds the points earned per component.
type Breakdown struct {
	Primary    float64 `json:"primary"`
	Secondary  float64 `json:"secondary"`
	Experience float64 `json:"experience"`
	Location   float64 `json:"location"`
	Education  float64 `json:"education"`
	// Total is the component sum rounded to two decimals.
	Total  float64        `json:"total"`
	Status records.Status `json:"status"`

	MatchedPrimary   []string `json:"matched_primary"`
	MatchedSecondary []string `json:"matched_secondary"`
}

// Score rates one pair. Skills are compared as exact normalized tokens.
func Score(r Rules, c records.Candidate, p records.Position) Breakdown {
	w := r.Weights
	candidateSkills := normalize.SkillSet(c.Skills())

	var b Breakdown
	b.Primary, b.MatchedPrimary = skillPoints(w.Primary, p.PrimarySkills, candidateSkills)
	b.Secondary, b.MatchedSecondary = skillPoints(w.Secondary, p.SecondarySkills, candidateSkills)
	b.Experience = experiencePoints(w.Experience, c.ExperienceYears, p.MinimumExperienceInYears)
	b.Location = locationPoints(w.Location, r.UnspecifiedLocations, c.Location, p.Location)
	b.Education = educationPoints(w.Education, c.Education, p.Education)

	b.Total = round2(b.Primary + b.Secondary + b.Experience + b.Location + b.Education)
	b.Status = records.StatusRejected
	if b.Total >= r.ApprovalThreshold {
		b.Status = records.StatusApproved
	}
	return b
}

// skillPoints awards weight in proportion to the required skills covered. No
// required skills means no points.
func skillPoints(weight float64, required []string, have map[string]struct{}) (float64, []string) {
	want := normalize.SkillSet(required)
	if len(want) == 0 {
		return 0, []string{}
	}
	matched := normalize.Intersect(want, have)
	return weight * float64(len(matched)) / float64(len(want)), matched
}

func experiencePoints(weight, years float64, minimum int) float64 {
	if math.IsNaN(years) || years < 0 {
		years = 0
	}
	need := float64(max(minimum, 0))
	if years >= need {
		return weight
	}
	return min(max(years/max(need, 1)*weight, 0), weight)
}

// locationPoints gives full points when the position does not restrict the
// location or when either location contains the other.
func locationPoints(weight float64, unspecified []string, candidate, position string) float64 {
	pos := normalize.Location(position)
	if pos == "" || slices.Contains(unspecifiedSet(unspecified), pos) {
		return weight
	}
	cand := normalize.Location(candidate)
	if cand == "" {
		return 0
	}
	if strings.Contains(cand, pos) || strings.Contains(pos, cand) {
		return weight
	}
	return 0
}

func unspecifiedSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, normalize.Location(s))
	}
	return out
}

func educationPoints(weight float64, candidate, position records.Education) float64 {
	need := educationLevel(position)
	if need == normalize.LevelNone || educationLevel(candidate) >= need {
		return weight
	}
	return 0
}

// educationLevel infers the level from the text, falling back to the stored
// level when there is no text.
func educationLevel(e records.Education) int {
	if strings.TrimSpace(e.Text) != "" {
		return normalize.EducationLevel(e.Text)
	}
	return e.Level
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
