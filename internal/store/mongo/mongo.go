// Package mongo stores candidates, positions and approvals in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/records"
)

const (
	DefaultDatabase = "job_matcher_db"

	collCandidates = "resumes"
	collPositions  = "jobs"
	collApprovals  = "approved_candidates"
)

type Store struct {
	client     *mongo.Client
	candidates *mongo.Collection
	positions  *mongo.Collection
	approvals  *mongo.Collection
	logger     *zap.Logger
}

// Open connects, verifies connectivity and creates the unique indexes.
func Open(ctx context.Context, uri, database string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database = strings.TrimSpace(database); database == "" {
		database = DefaultDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:     client,
		candidates: db.Collection(collCandidates),
		positions:  db.Collection(collPositions),
		approvals:  db.Collection(collApprovals),
		logger:     logger.With(zap.String("store", "mongo"), zap.String("database", database)),
	}

	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	s.logger.Debug("mongo store ready")
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
	}

	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.candidates, []mongo.IndexModel{
			unique(bson.D{{Key: "email", Value: 1}}),
			unique(bson.D{{Key: "candidate_id", Value: 1}}),
		}},
		{s.positions, []mongo.IndexModel{
			unique(bson.D{{Key: "job_id", Value: 1}}),
		}},
		{s.approvals, []mongo.IndexModel{
			unique(bson.D{{Key: "candidate_id", Value: 1}, {Key: "job_id", Value: 1}}),
			{Keys: bson.D{{Key: "job_id", Value: 1}}},
		}},
	}

	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateMany(ctx, idx.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) UpsertCandidate(ctx context.Context, c records.Candidate) error {
	if strings.TrimSpace(c.CandidateID) == "" {
		return fmt.Errorf("%w: candidate id is required", records.ErrValidation)
	}
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.Email == "" {
		return fmt.Errorf("%w: candidate email is required", records.ErrValidation)
	}

	_, err := s.candidates.ReplaceOne(ctx,
		bson.D{{Key: "candidate_id", Value: c.CandidateID}},
		c,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: email %q: %v", records.ErrDuplicateKey, c.Email, err)
		}
		return fmt.Errorf("upsert candidate %s: %w", c.CandidateID, err)
	}
	return nil
}

func (s *Store) UpsertPosition(ctx context.Context, p records.Position) error {
	if strings.TrimSpace(p.JobID) == "" {
		return fmt.Errorf("%w: job id is required", records.ErrValidation)
	}

	_, err := s.positions.ReplaceOne(ctx,
		bson.D{{Key: "job_id", Value: p.JobID}},
		p,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		// Two concurrent upserts of a new job id can both miss and race on insert.
		if mongo.IsDuplicateKeyError(err) {
			_, err = s.positions.ReplaceOne(ctx, bson.D{{Key: "job_id", Value: p.JobID}}, p)
		}
		if err != nil {
			return fmt.Errorf("upsert position %s: %w", p.JobID, err)
		}
	}
	return nil
}

func (s *Store) FindCandidate(ctx context.Context, candidateID string) (*records.Candidate, error) {
	var c records.Candidate
	err := s.candidates.FindOne(ctx, bson.D{{Key: "candidate_id", Value: candidateID}}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("candidate %q: %w", candidateID, records.ErrNotFound)
		}
		return nil, fmt.Errorf("find candidate %s: %w", candidateID, err)
	}
	return &c, nil
}

func (s *Store) FindPosition(ctx context.Context, jobID string) (*records.Position, error) {
	var p records.Position
	err := s.positions.FindOne(ctx, bson.D{{Key: "job_id", Value: jobID}}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("position %q: %w", jobID, records.ErrNotFound)
		}
		return nil, fmt.Errorf("find position %s: %w", jobID, err)
	}
	return &p, nil
}

func (s *Store) ListCandidates(ctx context.Context) iter.Seq2[records.Candidate, error] {
	return list[records.Candidate](ctx, s.candidates, bson.D{})
}

func (s *Store) ListPositions(ctx context.Context) iter.Seq2[records.Position, error] {
	return list[records.Position](ctx, s.positions, bson.D{})
}

// list opens a new cursor on every range, sorted by _id which follows insertion.
func list[T any](ctx context.Context, coll *mongo.Collection, filter bson.D) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		cur, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			yield(zero, fmt.Errorf("list %s: %w", coll.Name(), err))
			return
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var item T
			if err := cur.Decode(&item); err != nil {
				if !yield(zero, fmt.Errorf("decode %s: %w", coll.Name(), err)) {
					return
				}
				continue
			}
			if !yield(item, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(zero, fmt.Errorf("iterate %s: %w", coll.Name(), err))
		}
	}
}

// ReplaceApprovalsForPosition writes the new set before deleting leftovers, so
// readers never observe an empty set for a job that still has approvals.
func (s *Store) ReplaceApprovalsForPosition(ctx context.Context, jobID string, approvals []records.Approval) error {
	keep := make([]string, 0, len(approvals))
	for _, a := range approvals {
		if a.JobID != jobID {
			return fmt.Errorf("%w: approval for job %q passed to replace for %q", records.ErrValidation, a.JobID, jobID)
		}
		if err := s.UpsertApproval(ctx, a); err != nil {
			return err
		}
		keep = append(keep, a.CandidateID)
	}

	res, err := s.approvals.DeleteMany(ctx, bson.D{
		{Key: "job_id", Value: jobID},
		{Key: "candidate_id", Value: bson.D{{Key: "$nin", Value: keep}}},
	})
	if err != nil {
		return fmt.Errorf("delete stale approvals for %s: %w", jobID, err)
	}

	s.logger.Debug("approvals replaced",
		zap.String("job_id", jobID),
		zap.Int("written", len(approvals)),
		zap.Int64("removed", res.DeletedCount),
	)
	return nil
}

func (s *Store) UpsertApproval(ctx context.Context, a records.Approval) error {
	if a.CandidateID == "" || a.JobID == "" {
		return fmt.Errorf("%w: approval requires candidate id and job id", records.ErrValidation)
	}
	if a.ScoredAt.IsZero() {
		a.ScoredAt = time.Now().UTC()
	}

	filter := bson.D{{Key: "candidate_id", Value: a.CandidateID}, {Key: "job_id", Value: a.JobID}}
	_, err := s.approvals.ReplaceOne(ctx, filter, a, options.Replace().SetUpsert(true))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		_, err = s.approvals.ReplaceOne(ctx, filter, a)
	}
	if err != nil {
		return fmt.Errorf("upsert approval %s/%s: %w", a.CandidateID, a.JobID, err)
	}
	return nil
}

func (s *Store) ApprovalsForPosition(ctx context.Context, jobID string) ([]records.Approval, error) {
	out := make([]records.Approval, 0)
	for a, err := range list[records.Approval](ctx, s.approvals, bson.D{{Key: "job_id", Value: jobID}}) {
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
