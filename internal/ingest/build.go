package ingest

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/spigell/resume-matcher/internal/document"
	"github.com/spigell/resume-matcher/internal/extract"
	"github.com/spigell/resume-matcher/internal/normalize"
	"github.com/spigell/resume-matcher/internal/records"
)

func buildCandidate(f *extract.Fields, id string, doc document.Document, now time.Time) (records.Candidate, error) {
	email, err := parseEmail(f.Email)
	if err != nil {
		return records.Candidate{}, err
	}

	primary := normalize.Skills(slices.Concat(f.Skills, f.PrimarySkills))
	education := f.EducationText()

	return records.Candidate{
		CandidateID:     id,
		Name:            strings.TrimSpace(f.Name),
		Email:           email,
		PrimarySkills:   primary,
		SecondarySkills: normalize.Without(f.SecondarySkills, primary),
		ExperienceYears: f.Experience(),
		Location:        normalize.Location(f.LocationText()),
		Education:       records.Education{Level: normalize.EducationLevel(education), Text: education},
		Source:          doc.Path,
		IngestedAt:      now,
	}, nil
}

func parseEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: candidate email is missing", records.ErrValidation)
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", fmt.Errorf("%w: candidate email %q is malformed: %v", records.ErrValidation, raw, err)
	}
	return strings.ToLower(addr.Address), nil
}

// buildPosition splits required skills at extract.MandatorySkillScore: mandatory
// ones become primary, the rest join good-to-have skills as secondary.
func buildPosition(f *extract.Fields, doc document.Document, now time.Time) (records.Position, error) {
	jobID := strings.TrimSpace(doc.Stem())
	if jobID == "" {
		return records.Position{}, fmt.Errorf("%w: cannot derive job id from %q", records.ErrValidation, doc.Path)
	}

	primaryRaw := slices.Concat(f.Skills, f.PrimarySkills)
	secondaryRaw := slices.Concat(f.GoodToHaveSkills, f.SecondarySkills)
	for _, s := range f.RequiredSkills {
		if s.Score >= extract.MandatorySkillScore {
			primaryRaw = append(primaryRaw, s.Name)
		} else {
			secondaryRaw = append(secondaryRaw, s.Name)
		}
	}
	primary := normalize.Skills(primaryRaw)
	education := f.EducationText()

	return records.Position{
		JobID:                    jobID,
		PrimarySkills:            primary,
		SecondarySkills:          normalize.Without(secondaryRaw, primary),
		MinimumExperienceInYears: f.MinExperience(),
		Location:                 normalize.Location(f.LocationText()),
		Education:                records.Education{Level: normalize.EducationLevel(education), Text: education},
		Summary:                  f.SummaryText(),
		Technology:               f.TechnologyText(),
		Category:                 f.CategoryText(),
		Source:                   doc.Path,
		IngestedAt:               now,
	}, nil
}
