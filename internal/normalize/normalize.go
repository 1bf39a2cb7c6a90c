// Package normalize canonicalizes skill tokens and education descriptions so
// that comparisons between candidates and positions are order and case insensitive.
package normalize

import (
	"slices"
	"strings"
	"unicode"
)

// Education levels, higher means more advanced.
const (
	LevelNone = iota
	LevelAssociate
	LevelBachelor
	LevelMaster
	LevelDoctorate
)

// Text lowercases s, replaces every non alphanumeric rune with a space,
// collapses whitespace runs and trims.
func Text(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Skill returns the canonical form of a single skill, "" when nothing is left.
func Skill(s string) string {
	return Text(s)
}

// Skills normalizes every entry, drops empties and duplicates and returns the
// result sorted.
func Skills(in []string) []string {
	set := SkillSet(in)
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// SkillSet is like Skills but returns a membership set.
func SkillSet(in []string) map[string]struct{} {
	set := make(map[string]struct{}, len(in))
	for _, raw := range in {
		if s := Skill(raw); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// Without returns the sorted normalized skills of in that are absent from exclude.
func Without(in, exclude []string) []string {
	drop := SkillSet(exclude)
	out := make([]string, 0, len(in))
	for _, s := range Skills(in) {
		if _, ok := drop[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// Intersect returns the sorted members of a that also belong to b.
func Intersect(a, b map[string]struct{}) []string {
	out := make([]string, 0)
	for s := range a {
		if _, ok := b[s]; ok {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

var educationKeywords = []struct {
	level    int
	keywords []string
}{
	{LevelDoctorate, []string{"phd", "ph d", "doctorate", "doctoral", "doctor of philosophy", "dphil"}},
	{LevelMaster, []string{"master", "masters", "mtech", "m tech", "msc", "m sc", "mba", "mca", "postgraduate", "post graduate"}},
	{LevelBachelor, []string{"bachelor", "bachelors", "btech", "b tech", "bsc", "b sc", "bca", "bcom", "b com", "undergraduate"}},
	{LevelAssociate, []string{"associate", "diploma", "polytechnic"}},
}

// EducationLevel infers the highest level mentioned in text. Keywords match on
// whole tokens, so "mba" matches but "embassy" does not.
func EducationLevel(text string) int {
	padded := " " + Text(text) + " "
	if padded == "  " {
		return LevelNone
	}
	for _, group := range educationKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				return group.level
			}
		}
	}
	return LevelNone
}

// Location is the comparison form of a location string.
func Location(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
