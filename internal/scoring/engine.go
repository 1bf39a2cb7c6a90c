package scoring

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/records"
)

// Store is the part of the record store scoring reads from and writes to.
type Store interface {
	FindCandidate(ctx context.Context, candidateID string) (*records.Candidate, error)
	FindPosition(ctx context.Context, jobID string) (*records.Position, error)
	ListCandidates(ctx context.Context) iter.Seq2[records.Candidate, error]
	ListPositions(ctx context.Context) iter.Seq2[records.Position, error]
	ReplaceApprovalsForPosition(ctx context.Context, jobID string, approvals []records.Approval) error
	UpsertApproval(ctx context.Context, a records.Approval) error
}

type Mode string

const (
	ModePosition  Mode = "position"
	ModeCandidate Mode = "candidate"
)

type Match struct {
	Rank          int    `json:"rank"`
	CandidateID   string `json:"candidate_id"`
	CandidateName string `json:"candidate_name,omitempty"`
	Email         string `json:"email,omitempty"`
	JobID         string `json:"job_id"`
	Breakdown
}

// Ranking is the outcome of one scoring run. Matches holds at most the
// requested top N, while Evaluated and Approved count every scored pair.
type Ranking struct {
	Mode         Mode      `json:"mode"`
	Subject      string    `json:"subject"`
	RulesVersion string    `json:"rules_version"`
	Threshold    float64   `json:"threshold"`
	Evaluated    int       `json:"evaluated"`
	Approved     int       `json:"approved"`
	Matches      []Match   `json:"matches"`
	ScoredAt     time.Time `json:"scored_at"`
}

type Engine struct {
	store  Store
	rules  Rules
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(store Store, rules Rules, log *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring rules: %w", err)
	}
	return &Engine{
		store:  store,
		rules:  rules,
		logger: logger.WithFields(log, zap.String("component", "scoring"), zap.String("rules_version", rules.Version)),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (e *Engine) Rules() Rules { return e.rules }

// MatchPosition scores every candidate against jobID and makes the approved
// pairs the complete approval set of that position. topN <= 0 returns all.
func (e *Engine) MatchPosition(ctx context.Context, jobID string, topN int) (*Ranking, error) {
	position, err := e.store.FindPosition(ctx, jobID)
	if err != nil {
		return nil, err
	}

	ranking := e.newRanking(ModePosition, position.JobID)
	var matches []Match
	for c, err := range e.store.ListCandidates(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list candidates: %w", err)
		}
		matches = append(matches, e.match(c, *position))
	}

	approvals := e.approvals(matches, ranking.ScoredAt)
	if err := e.store.ReplaceApprovalsForPosition(ctx, position.JobID, approvals); err != nil {
		return nil, fmt.Errorf("replace approvals for %s: %w", position.JobID, err)
	}

	e.finish(ranking, matches, len(approvals), topN)
	return ranking, nil
}

// MatchCandidate scores candidateID against every position and upserts the
// approved pairs. Approvals from earlier runs are left in place.
func (e *Engine) MatchCandidate(ctx context.Context, candidateID string, topN int) (*Ranking, error) {
	candidate, err := e.store.FindCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	ranking := e.newRanking(ModeCandidate, candidate.CandidateID)
	var matches []Match
	for p, err := range e.store.ListPositions(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list positions: %w", err)
		}
		matches = append(matches, e.match(*candidate, p))
	}

	approvals := e.approvals(matches, ranking.ScoredAt)
	for _, a := range approvals {
		if err := e.store.UpsertApproval(ctx, a); err != nil {
			return nil, fmt.Errorf("store approval for %s: %w", a.JobID, err)
		}
	}

	e.finish(ranking, matches, len(approvals), topN)
	return ranking, nil
}

func (e *Engine) newRanking(mode Mode, subject string) *Ranking {
	return &Ranking{
		Mode:         mode,
		Subject:      subject,
		RulesVersion: e.rules.Version,
		Threshold:    e.rules.ApprovalThreshold,
		Matches:      []Match{},
		ScoredAt:     e.now(),
	}
}

func (e *Engine) match(c records.Candidate, p records.Position) Match {
	return Match{
		CandidateID:   c.CandidateID,
		CandidateName: c.Name,
		Email:         c.Email,
		JobID:         p.JobID,
		Breakdown:     Score(e.rules, c, p),
	}
}

func (e *Engine) approvals(matches []Match, at time.Time) []records.Approval {
	out := make([]records.Approval, 0)
	for _, m := range matches {
		if m.Status != records.StatusApproved {
			continue
		}
		out = append(out, records.Approval{
			CandidateID:     m.CandidateID,
			JobID:           m.JobID,
			CandidateName:   m.CandidateName,
			Score:           m.Total,
			PrimaryScore:    m.Primary,
			SecondaryScore:  m.Secondary,
			ExperienceScore: m.Experience,
			LocationScore:   m.Location,
			EducationScore:  m.Education,
			Status:          m.Status,
			RulesVersion:    e.rules.Version,
			ScoredAt:        at,
		})
	}
	return out
}

// finish ranks matches by total, keeping enumeration order among equal totals.
func (e *Engine) finish(r *Ranking, matches []Match, approved, topN int) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Total > matches[j].Total
	})
	for i := range matches {
		matches[i].Rank = i + 1
	}

	r.Evaluated = len(matches)
	r.Approved = approved
	if topN > 0 && topN < len(matches) {
		matches = matches[:topN]
	}
	if matches != nil {
		r.Matches = matches
	}

	log := logger.WithFields(e.logger, zap.String("mode", string(r.Mode)), zap.String("subject", r.Subject))
	log.Info("scoring finished",
		zap.Int("evaluated", r.Evaluated),
		zap.Int("approved", r.Approved),
		zap.Int("returned", len(r.Matches)),
	)
}
