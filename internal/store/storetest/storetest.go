// Package storetest runs the same behavioural checks against every store implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/spigell/resume-matcher/internal/records"
	"github.com/spigell/resume-matcher/internal/store"
)

// Factory returns an empty store. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("candidate email uniqueness", func(t *testing.T) { testCandidateEmailUniqueness(t, newStore(t)) })
	t.Run("candidate reupsert keeps email", func(t *testing.T) { testCandidateReupsert(t, newStore(t)) })
	t.Run("concurrent duplicate emails", func(t *testing.T) { testConcurrentDuplicateEmails(t, newStore(t)) })
	t.Run("position upsert replaces", func(t *testing.T) { testPositionUpsert(t, newStore(t)) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("listing is ordered and restartable", func(t *testing.T) { testListing(t, newStore(t)) })
	t.Run("replace approvals for position", func(t *testing.T) { testReplaceApprovals(t, newStore(t)) })
	t.Run("upsert approval", func(t *testing.T) { testUpsertApproval(t, newStore(t)) })
}

func candidate(id, email string) records.Candidate {
	return records.Candidate{
		CandidateID:   id,
		Name:          "Candidate " + id,
		Email:         email,
		PrimarySkills: []string{"go"},
	}
}

func testCandidateEmailUniqueness(t *testing.T, s store.Store) {
	ctx := context.Background()

	if err := s.UpsertCandidate(ctx, candidate("c1", "a@example.com")); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err := s.UpsertCandidate(ctx, candidate("c2", "a@example.com"))
	if !errors.Is(err, records.ErrDuplicateKey) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}

	if _, err := s.FindCandidate(ctx, "c2"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("rejected candidate must not be stored, got %v", err)
	}
}

func testCandidateReupsert(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := candidate("c1", "a@example.com")
	if err := s.UpsertCandidate(ctx, c); err != nil {
		t.Fatalf("insert: %v", err)
	}

	c.Name = "Renamed"
	if err := s.UpsertCandidate(ctx, c); err != nil {
		t.Fatalf("same id, same email must be accepted: %v", err)
	}

	got, err := s.FindCandidate(ctx, "c1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Name != "Renamed" {
		t.Fatalf("expected updated name, got %q", got.Name)
	}
}

func testConcurrentDuplicateEmails(t *testing.T, s store.Store) {
	ctx := context.Background()

	const writers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		dupes    int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.UpsertCandidate(ctx, candidate(fmt.Sprintf("c%d", i), "same@example.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, records.ErrDuplicateKey):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 || dupes != writers-1 {
		t.Fatalf("expected exactly one accepted write, got accepted=%d duplicates=%d", accepted, dupes)
	}
}

func testPositionUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()

	p := records.Position{JobID: "JD1", PrimarySkills: []string{"go"}, Location: "berlin"}
	if err := s.UpsertPosition(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	p.PrimarySkills = []string{"rust"}
	p.Location = ""
	if err := s.UpsertPosition(ctx, p); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := s.FindPosition(ctx, "JD1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got.PrimarySkills) != 1 || got.PrimarySkills[0] != "rust" || got.Location != "" {
		t.Fatalf("expected full replacement, got %+v", got)
	}

	all, err := store.Collect(s.ListPositions(ctx))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one position after upsert, got %d", len(all))
	}
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.FindCandidate(ctx, "missing"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected not found for candidate, got %v", err)
	}
	if _, err := s.FindPosition(ctx, "missing"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected not found for position, got %v", err)
	}
}

func testListing(t *testing.T, s store.Store) {
	ctx := context.Background()

	ids := []string{"c3", "c1", "c2"}
	for _, id := range ids {
		if err := s.UpsertCandidate(ctx, candidate(id, id+"@example.com")); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	for pass := range 2 {
		got, err := store.Collect(s.ListCandidates(ctx))
		if err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
		if len(got) != len(ids) {
			t.Fatalf("pass %d: expected %d candidates, got %d", pass, len(ids), len(got))
		}
		for i, c := range got {
			if c.CandidateID != ids[i] {
				t.Fatalf("pass %d: expected insertion order %v, got %s at %d", pass, ids, c.CandidateID, i)
			}
		}
	}

	// Breaking out early must not break the next pass.
	for range s.ListCandidates(ctx) {
		break
	}
	got, err := store.Collect(s.ListCandidates(ctx))
	if err != nil || len(got) != len(ids) {
		t.Fatalf("restart after early stop: %d items, err %v", len(got), err)
	}
}

func testReplaceApprovals(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := []records.Approval{
		{CandidateID: "c1", JobID: "JD1", Score: 70, Status: records.StatusApproved},
		{CandidateID: "c2", JobID: "JD1", Score: 60, Status: records.StatusApproved},
	}
	if err := s.ReplaceApprovalsForPosition(ctx, "JD1", first); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := s.UpsertApproval(ctx, records.Approval{CandidateID: "c1", JobID: "JD2", Score: 55, Status: records.StatusApproved}); err != nil {
		t.Fatalf("upsert other job: %v", err)
	}

	second := []records.Approval{
		{CandidateID: "c3", JobID: "JD1", Score: 90, Status: records.StatusApproved},
	}
	if err := s.ReplaceApprovalsForPosition(ctx, "JD1", second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got, err := s.ApprovalsForPosition(ctx, "JD1")
	if err != nil {
		t.Fatalf("approvals: %v", err)
	}
	if len(got) != 1 || got[0].CandidateID != "c3" {
		t.Fatalf("expected only c3 for JD1, got %+v", got)
	}

	other, err := s.ApprovalsForPosition(ctx, "JD2")
	if err != nil {
		t.Fatalf("approvals JD2: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("replace for JD1 must not touch JD2, got %+v", other)
	}

	if err := s.ReplaceApprovalsForPosition(ctx, "JD1", nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err = s.ApprovalsForPosition(ctx, "JD1")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no approvals after empty replace, got %+v (%v)", got, err)
	}
}

func testUpsertApproval(t *testing.T, s store.Store) {
	ctx := context.Background()

	a := records.Approval{CandidateID: "c1", JobID: "JD1", Score: 51, Status: records.StatusApproved}
	if err := s.UpsertApproval(ctx, a); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	a.Score = 77
	a.PrimaryScore, a.ExperienceScore, a.EducationScore = 50, 15, 12
	if err := s.UpsertApproval(ctx, a); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.ApprovalsForPosition(ctx, "JD1")
	if err != nil {
		t.Fatalf("approvals: %v", err)
	}
	if len(got) != 1 || got[0].Score != 77 {
		t.Fatalf("expected a single updated approval, got %+v", got)
	}
	if got[0].PrimaryScore != 50 || got[0].ExperienceScore != 15 || got[0].EducationScore != 12 {
		t.Fatalf("component scores not stored: %+v", got[0])
	}
}
