package store

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/spigell/resume-matcher/internal/records"
)

type approvalKey struct {
	candidateID string
	jobID       string
}

// Memory keeps every collection in maps guarded by one mutex. Order slices
// preserve insertion order for listing.
type Memory struct {
	mu sync.RWMutex

	candidates     map[string]records.Candidate
	candidateOrder []string
	emails         map[string]string

	positions     map[string]records.Position
	positionOrder []string

	approvals     map[approvalKey]records.Approval
	approvalOrder []approvalKey
}

func NewMemory() *Memory {
	return &Memory{
		candidates: make(map[string]records.Candidate),
		emails:     make(map[string]string),
		positions:  make(map[string]records.Position),
		approvals:  make(map[approvalKey]records.Approval),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close(context.Context) error { return nil }

func (m *Memory) UpsertCandidate(ctx context.Context, c records.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(c.CandidateID) == "" {
		return fmt.Errorf("%w: candidate id is required", records.ErrValidation)
	}
	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" {
		return fmt.Errorf("%w: candidate email is required", records.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, ok := m.emails[email]; ok && owner != c.CandidateID {
		return fmt.Errorf("%w: email %q already belongs to candidate %s", records.ErrDuplicateKey, email, owner)
	}

	if prev, ok := m.candidates[c.CandidateID]; ok {
		delete(m.emails, strings.ToLower(prev.Email))
	} else {
		m.candidateOrder = append(m.candidateOrder, c.CandidateID)
	}
	c.Email = email
	m.candidates[c.CandidateID] = cloneCandidate(c)
	m.emails[email] = c.CandidateID
	return nil
}

func (m *Memory) UpsertPosition(ctx context.Context, p records.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(p.JobID) == "" {
		return fmt.Errorf("%w: job id is required", records.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.positions[p.JobID]; !ok {
		m.positionOrder = append(m.positionOrder, p.JobID)
	}
	m.positions[p.JobID] = clonePosition(p)
	return nil
}

func (m *Memory) FindCandidate(ctx context.Context, candidateID string) (*records.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.candidates[candidateID]
	if !ok {
		return nil, fmt.Errorf("candidate %q: %w", candidateID, records.ErrNotFound)
	}
	c = cloneCandidate(c)
	return &c, nil
}

func (m *Memory) FindPosition(ctx context.Context, jobID string) (*records.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.positions[jobID]
	if !ok {
		return nil, fmt.Errorf("position %q: %w", jobID, records.ErrNotFound)
	}
	p = clonePosition(p)
	return &p, nil
}

// ListCandidates snapshots the order when iteration starts, so writes made
// while ranging do not disturb the current pass.
func (m *Memory) ListCandidates(ctx context.Context) iter.Seq2[records.Candidate, error] {
	return func(yield func(records.Candidate, error) bool) {
		m.mu.RLock()
		ids := slices.Clone(m.candidateOrder)
		m.mu.RUnlock()

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(records.Candidate{}, err)
				return
			}
			m.mu.RLock()
			c, ok := m.candidates[id]
			m.mu.RUnlock()
			if !ok {
				continue
			}
			if !yield(cloneCandidate(c), nil) {
				return
			}
		}
	}
}

func (m *Memory) ListPositions(ctx context.Context) iter.Seq2[records.Position, error] {
	return func(yield func(records.Position, error) bool) {
		m.mu.RLock()
		ids := slices.Clone(m.positionOrder)
		m.mu.RUnlock()

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(records.Position{}, err)
				return
			}
			m.mu.RLock()
			p, ok := m.positions[id]
			m.mu.RUnlock()
			if !ok {
				continue
			}
			if !yield(clonePosition(p), nil) {
				return
			}
		}
	}
}

func (m *Memory) ReplaceApprovalsForPosition(ctx context.Context, jobID string, approvals []records.Approval) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, a := range approvals {
		if a.JobID != jobID {
			return fmt.Errorf("%w: approval for job %q passed to replace for %q", records.ErrValidation, a.JobID, jobID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.approvalOrder[:0]
	for _, key := range m.approvalOrder {
		if key.jobID == jobID {
			delete(m.approvals, key)
			continue
		}
		kept = append(kept, key)
	}
	m.approvalOrder = kept

	for _, a := range approvals {
		m.putApproval(a)
	}
	return nil
}

func (m *Memory) UpsertApproval(ctx context.Context, a records.Approval) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.CandidateID == "" || a.JobID == "" {
		return fmt.Errorf("%w: approval requires candidate id and job id", records.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.putApproval(a)
	return nil
}

func (m *Memory) ApprovalsForPosition(ctx context.Context, jobID string) ([]records.Approval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]records.Approval, 0)
	for _, key := range m.approvalOrder {
		if key.jobID == jobID {
			out = append(out, m.approvals[key])
		}
	}
	return out, nil
}

// putApproval must be called with m.mu held.
func (m *Memory) putApproval(a records.Approval) {
	key := approvalKey{candidateID: a.CandidateID, jobID: a.JobID}
	if _, ok := m.approvals[key]; !ok {
		m.approvalOrder = append(m.approvalOrder, key)
	}
	m.approvals[key] = a
}

func cloneCandidate(c records.Candidate) records.Candidate {
	c.PrimarySkills = slices.Clone(c.PrimarySkills)
	c.SecondarySkills = slices.Clone(c.SecondarySkills)
	return c
}

func clonePosition(p records.Position) records.Position {
	p.PrimarySkills = slices.Clone(p.PrimarySkills)
	p.SecondarySkills = slices.Clone(p.SecondarySkills)
	return p
}
