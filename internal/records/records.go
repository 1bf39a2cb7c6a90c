// Package records holds the persisted shapes shared by ingestion, storage and scoring.
package records

import (
	"fmt"
	"strings"
	"time"
)

// Kind names the document type a batch is ingesting.
type Kind string

const (
	KindCandidate Kind = "candidate"
	KindPosition  Kind = "position"
)

// ParseKind accepts the singular and the plural directory-style spellings.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "candidate", "candidates", "resume", "resumes":
		return KindCandidate, nil
	case "position", "positions", "jd", "job", "jobs":
		return KindPosition, nil
	default:
		return "", fmt.Errorf("%w: unknown document kind %q", ErrValidation, s)
	}
}

// Education keeps the raw text next to the level inferred from it.
type Education struct {
	Level int    `json:"level" bson:"level"`
	Text  string `json:"text" bson:"text"`
}

type Candidate struct {
	CandidateID     string    `json:"candidate_id" bson:"candidate_id"`
	Name            string    `json:"name" bson:"name"`
	Email           string    `json:"email" bson:"email"`
	PrimarySkills   []string  `json:"primary_skills" bson:"primary_skills"`
	SecondarySkills []string  `json:"secondary_skills" bson:"secondary_skills"`
	ExperienceYears float64   `json:"experience_years" bson:"experience_years"`
	Location        string    `json:"location" bson:"location"`
	Education       Education `json:"education" bson:"education"`
	Source          string    `json:"source,omitempty" bson:"source,omitempty"`
	IngestedAt      time.Time `json:"ingested_at" bson:"ingested_at"`
}

// Skills returns primary and secondary skills together.
func (c Candidate) Skills() []string {
	out := make([]string, 0, len(c.PrimarySkills)+len(c.SecondarySkills))
	out = append(out, c.PrimarySkills...)
	return append(out, c.SecondarySkills...)
}

type Position struct {
	JobID                    string    `json:"job_id" bson:"job_id"`
	PrimarySkills            []string  `json:"primary_skills" bson:"primary_skills"`
	SecondarySkills          []string  `json:"secondary_skills" bson:"secondary_skills"`
	MinimumExperienceInYears int       `json:"min_experience" bson:"min_experience"`
	Location                 string    `json:"location" bson:"location"`
	Education                Education `json:"education" bson:"education"`

	// Informational only, never scored.
	Summary    string `json:"job_summary,omitempty" bson:"job_summary,omitempty"`
	Technology string `json:"technology,omitempty" bson:"technology,omitempty"`
	Category   string `json:"category,omitempty" bson:"category,omitempty"`

	Source     string    `json:"source,omitempty" bson:"source,omitempty"`
	IngestedAt time.Time `json:"ingested_at" bson:"ingested_at"`
}

type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Approval is keyed by the (CandidateID, JobID) pair.
type Approval struct {
	CandidateID   string  `json:"candidate_id" bson:"candidate_id"`
	JobID         string  `json:"job_id" bson:"job_id"`
	CandidateName string  `json:"candidate_name,omitempty" bson:"candidate_name,omitempty"`
	Score         float64 `json:"score_total" bson:"score_total"`

	PrimaryScore    float64 `json:"primary_score" bson:"primary_score"`
	SecondaryScore  float64 `json:"secondary_score" bson:"secondary_score"`
	ExperienceScore float64 `json:"experience_score" bson:"experience_score"`
	LocationScore   float64 `json:"location_score" bson:"location_score"`
	EducationScore  float64 `json:"education_score" bson:"education_score"`

	Status       Status    `json:"status" bson:"status"`
	RulesVersion string    `json:"rules_version,omitempty" bson:"rules_version,omitempty"`
	ScoredAt     time.Time `json:"scored_at" bson:"scored_at"`
}
