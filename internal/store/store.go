// Package store defines the record store contract and an in-process implementation.
//
// Implementations enforce uniqueness atomically: candidates by email, positions
// by job id and approvals by the (candidate id, job id) pair. Listing returns a
// lazy sequence that can be ranged over again to restart from the beginning, in
// insertion order.
package store

import (
	"context"
	"iter"

	"github.com/spigell/resume-matcher/internal/records"
)

type Store interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	// UpsertCandidate inserts or replaces by candidate id and returns
	// records.ErrDuplicateKey when the email belongs to another candidate.
	UpsertCandidate(ctx context.Context, c records.Candidate) error
	// UpsertPosition inserts or fully replaces by job id.
	UpsertPosition(ctx context.Context, p records.Position) error

	FindCandidate(ctx context.Context, candidateID string) (*records.Candidate, error)
	FindPosition(ctx context.Context, jobID string) (*records.Position, error)

	ListCandidates(ctx context.Context) iter.Seq2[records.Candidate, error]
	ListPositions(ctx context.Context) iter.Seq2[records.Position, error]

	// ReplaceApprovalsForPosition makes approvals the complete set for jobID.
	ReplaceApprovalsForPosition(ctx context.Context, jobID string, approvals []records.Approval) error
	UpsertApproval(ctx context.Context, a records.Approval) error
	ApprovalsForPosition(ctx context.Context, jobID string) ([]records.Approval, error)
}

// Collect drains a listing into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}
