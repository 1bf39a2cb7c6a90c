package extract

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// MandatorySkillScore is the importance score from which a required skill of a
// position counts as primary.
const MandatorySkillScore = 8

// Fields is the loosely typed output of one extraction. Numeric and free-text
// fields stay untyped because models return them as numbers, strings or lists;
// the accessor methods coerce them.
type Fields struct {
	Name  string `mapstructure:"name" json:"name,omitempty"`
	Email string `mapstructure:"email" json:"email,omitempty"`

	Skills           []string      `mapstructure:"skills" json:"skills,omitempty"`
	PrimarySkills    []string      `mapstructure:"primary_skills" json:"primary_skills,omitempty"`
	SecondarySkills  []string      `mapstructure:"secondary_skills" json:"secondary_skills,omitempty"`
	RequiredSkills   []ScoredSkill `mapstructure:"required_skills_with_scores" json:"required_skills_with_scores,omitempty"`
	GoodToHaveSkills []string      `mapstructure:"good_to_have_skills" json:"good_to_have_skills,omitempty"`

	ExperienceYears   any `mapstructure:"experience_years" json:"experience_years,omitempty"`
	MinimumExperience any `mapstructure:"minimum_experience_in_years" json:"minimum_experience_in_years,omitempty"`
	Location          any `mapstructure:"location" json:"location,omitempty"`
	Education         any `mapstructure:"education" json:"education,omitempty"`

	Summary    any `mapstructure:"job_summary" json:"job_summary,omitempty"`
	Technology any `mapstructure:"technology" json:"technology,omitempty"`
	Category   any `mapstructure:"category" json:"category,omitempty"`
}

type ScoredSkill struct {
	Name  string  `mapstructure:"skill_name" json:"skill_name"`
	Score float64 `mapstructure:"score" json:"score"`
}

// Experience returns the candidate's years of experience, 0 when missing,
// negative or unparseable.
func (f *Fields) Experience() float64 {
	return nonNegative(coerceFloat(f.ExperienceYears))
}

// MinExperience returns the position's minimum years, truncated to a whole
// number, 0 when missing or unparseable.
func (f *Fields) MinExperience() int {
	return int(nonNegative(coerceFloat(f.MinimumExperience)))
}

func (f *Fields) LocationText() string   { return coerceString(f.Location) }
func (f *Fields) EducationText() string  { return coerceString(f.Education) }
func (f *Fields) SummaryText() string    { return coerceString(f.Summary) }
func (f *Fields) TechnologyText() string { return coerceString(f.Technology) }
func (f *Fields) CategoryText() string   { return coerceString(f.Category) }

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

var (
	stringSliceType = reflect.TypeOf([]string{})
	scoredSliceType = reflect.TypeOf([]ScoredSkill{})
)

// DecodeFields maps a decoded JSON object onto Fields.
func DecodeFields(data map[string]any) (*Fields, error) {
	var out Fields
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(stringListHook, scoredSkillsHook),
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return nil, fmt.Errorf("create fields decoder: %w", err)
	}
	if err := dec.Decode(data); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return &out, nil
}

// stringListHook accepts "a, b; c" strings and lists that mix strings with
// {"skill_name": ...} or {"name": ...} objects wherever []string is expected.
func stringListHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != stringSliceType {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		return splitList(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch it := item.(type) {
			case nil:
			case string:
				out = append(out, it)
			case map[string]any:
				if name := firstString(it, "skill_name", "name", "skill"); name != "" {
					out = append(out, name)
				}
			default:
				out = append(out, fmt.Sprint(it))
			}
		}
		return out, nil
	default:
		return data, nil
	}
}

// scoredSkillsHook accepts {"go": 9, "sql": 6} and plain string lists (scored
// as mandatory) in place of the list of objects.
func scoredSkillsHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != scoredSliceType {
		return data, nil
	}

	switch v := data.(type) {
	case map[string]any:
		out := make([]map[string]any, 0, len(v))
		for name, score := range v {
			out = append(out, map[string]any{"skill_name": name, "score": score})
		}
		return out, nil
	case string:
		return scoredFromNames(splitList(v)), nil
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if name, ok := item.(string); ok {
				out = append(out, map[string]any{"skill_name": name, "score": MandatorySkillScore})
				continue
			}
			out = append(out, item)
		}
		return out, nil
	default:
		return data, nil
	}
}

func scoredFromNames(names []string) []map[string]any {
	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]any{"skill_name": name, "score": MandatorySkillScore})
	}
	return out
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
