// Package postgres stores candidates, positions and approvals in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/records"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Open connects to url and applies the schema.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("postgres url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &Store{pool: pool, logger: logger.With(zap.String("store", "postgres"))}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

const upsertCandidate = `
INSERT INTO candidates (candidate_id, name, email, primary_skills, secondary_skills,
    experience_years, location, education_level, education_text, source, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (candidate_id) DO UPDATE SET
    name = EXCLUDED.name,
    email = EXCLUDED.email,
    primary_skills = EXCLUDED.primary_skills,
    secondary_skills = EXCLUDED.secondary_skills,
    experience_years = EXCLUDED.experience_years,
    location = EXCLUDED.location,
    education_level = EXCLUDED.education_level,
    education_text = EXCLUDED.education_text,
    source = EXCLUDED.source,
    ingested_at = EXCLUDED.ingested_at`

func (s *Store) UpsertCandidate(ctx context.Context, c records.Candidate) error {
	if strings.TrimSpace(c.CandidateID) == "" {
		return fmt.Errorf("%w: candidate id is required", records.ErrValidation)
	}
	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" {
		return fmt.Errorf("%w: candidate email is required", records.ErrValidation)
	}

	_, err := s.pool.Exec(ctx, upsertCandidate,
		c.CandidateID, c.Name, email, nonNil(c.PrimarySkills), nonNil(c.SecondarySkills),
		c.ExperienceYears, c.Location, c.Education.Level, c.Education.Text, c.Source, stamp(c.IngestedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %q: %v", records.ErrDuplicateKey, email, err)
		}
		return fmt.Errorf("upsert candidate %s: %w", c.CandidateID, err)
	}
	return nil
}

const upsertPosition = `
INSERT INTO positions (job_id, primary_skills, secondary_skills, min_experience, location,
    education_level, education_text, job_summary, technology, category, source, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (job_id) DO UPDATE SET
    primary_skills = EXCLUDED.primary_skills,
    secondary_skills = EXCLUDED.secondary_skills,
    min_experience = EXCLUDED.min_experience,
    location = EXCLUDED.location,
    education_level = EXCLUDED.education_level,
    education_text = EXCLUDED.education_text,
    job_summary = EXCLUDED.job_summary,
    technology = EXCLUDED.technology,
    category = EXCLUDED.category,
    source = EXCLUDED.source,
    ingested_at = EXCLUDED.ingested_at`

func (s *Store) UpsertPosition(ctx context.Context, p records.Position) error {
	if strings.TrimSpace(p.JobID) == "" {
		return fmt.Errorf("%w: job id is required", records.ErrValidation)
	}

	_, err := s.pool.Exec(ctx, upsertPosition,
		p.JobID, nonNil(p.PrimarySkills), nonNil(p.SecondarySkills), p.MinimumExperienceInYears, p.Location,
		p.Education.Level, p.Education.Text, p.Summary, p.Technology, p.Category, p.Source, stamp(p.IngestedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.JobID, err)
	}
	return nil
}

const candidateColumns = `candidate_id, name, email, primary_skills, secondary_skills,
    experience_years, location, education_level, education_text, source, ingested_at`

func scanCandidate(row pgx.Row) (records.Candidate, error) {
	var c records.Candidate
	err := row.Scan(&c.CandidateID, &c.Name, &c.Email, &c.PrimarySkills, &c.SecondarySkills,
		&c.ExperienceYears, &c.Location, &c.Education.Level, &c.Education.Text, &c.Source, &c.IngestedAt)
	return c, err
}

const positionColumns = `job_id, primary_skills, secondary_skills, min_experience, location,
    education_level, education_text, job_summary, technology, category, source, ingested_at`

func scanPosition(row pgx.Row) (records.Position, error) {
	var p records.Position
	err := row.Scan(&p.JobID, &p.PrimarySkills, &p.SecondarySkills, &p.MinimumExperienceInYears, &p.Location,
		&p.Education.Level, &p.Education.Text, &p.Summary, &p.Technology, &p.Category, &p.Source, &p.IngestedAt)
	return p, err
}

const approvalColumns = `candidate_id, job_id, candidate_name, score_total,
    primary_score, secondary_score, experience_score, location_score, education_score,
    status, rules_version, scored_at`

func scanApproval(row pgx.Row) (records.Approval, error) {
	var a records.Approval
	var status string
	err := row.Scan(&a.CandidateID, &a.JobID, &a.CandidateName, &a.Score,
		&a.PrimaryScore, &a.SecondaryScore, &a.ExperienceScore, &a.LocationScore, &a.EducationScore,
		&status, &a.RulesVersion, &a.ScoredAt)
	a.Status = records.Status(status)
	return a, err
}

func (s *Store) FindCandidate(ctx context.Context, candidateID string) (*records.Candidate, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE candidate_id = $1`, candidateID)
	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("candidate %q: %w", candidateID, records.ErrNotFound)
		}
		return nil, fmt.Errorf("find candidate %s: %w", candidateID, err)
	}
	return &c, nil
}

func (s *Store) FindPosition(ctx context.Context, jobID string) (*records.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE job_id = $1`, jobID)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("position %q: %w", jobID, records.ErrNotFound)
		}
		return nil, fmt.Errorf("find position %s: %w", jobID, err)
	}
	return &p, nil
}

func (s *Store) ListCandidates(ctx context.Context) iter.Seq2[records.Candidate, error] {
	return query(ctx, s.pool, scanCandidate, `SELECT `+candidateColumns+` FROM candidates ORDER BY seq`)
}

func (s *Store) ListPositions(ctx context.Context) iter.Seq2[records.Position, error] {
	return query(ctx, s.pool, scanPosition, `SELECT `+positionColumns+` FROM positions ORDER BY seq`)
}

// query runs sql anew on every range and streams rows through scan.
func query[T any](ctx context.Context, pool *pgxpool.Pool, scan func(pgx.Row) (T, error), sql string, args ...any) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		rows, err := pool.Query(ctx, sql, args...)
		if err != nil {
			yield(zero, fmt.Errorf("query: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			item, err := scan(rows)
			if err != nil {
				yield(zero, fmt.Errorf("scan: %w", err))
				return
			}
			if !yield(item, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, fmt.Errorf("rows: %w", err))
		}
	}
}

const upsertApproval = `
INSERT INTO approvals (` + approvalColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (candidate_id, job_id) DO UPDATE SET
    candidate_name = EXCLUDED.candidate_name,
    score_total = EXCLUDED.score_total,
    primary_score = EXCLUDED.primary_score,
    secondary_score = EXCLUDED.secondary_score,
    experience_score = EXCLUDED.experience_score,
    location_score = EXCLUDED.location_score,
    education_score = EXCLUDED.education_score,
    status = EXCLUDED.status,
    rules_version = EXCLUDED.rules_version,
    scored_at = EXCLUDED.scored_at`

func approvalArgs(a records.Approval) []any {
	return []any{
		a.CandidateID, a.JobID, a.CandidateName, a.Score,
		a.PrimaryScore, a.SecondaryScore, a.ExperienceScore, a.LocationScore, a.EducationScore,
		string(a.Status), a.RulesVersion, stamp(a.ScoredAt),
	}
}

// ReplaceApprovalsForPosition swaps the set inside one transaction.
func (s *Store) ReplaceApprovalsForPosition(ctx context.Context, jobID string, approvals []records.Approval) error {
	for _, a := range approvals {
		if a.JobID != jobID {
			return fmt.Errorf("%w: approval for job %q passed to replace for %q", records.ErrValidation, a.JobID, jobID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM approvals WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete approvals for %s: %w", jobID, err)
	}

	if len(approvals) > 0 {
		batch := &pgx.Batch{}
		for _, a := range approvals {
			batch.Queue(upsertApproval, approvalArgs(a)...)
		}
		br := tx.SendBatch(ctx, batch)
		for range approvals {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert approvals for %s: %w", jobID, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("insert approvals for %s: %w", jobID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit approvals for %s: %w", jobID, err)
	}

	s.logger.Debug("approvals replaced",
		zap.String("job_id", jobID),
		zap.Int("written", len(approvals)),
		zap.Int64("removed", tag.RowsAffected()),
	)
	return nil
}

func (s *Store) UpsertApproval(ctx context.Context, a records.Approval) error {
	if a.CandidateID == "" || a.JobID == "" {
		return fmt.Errorf("%w: approval requires candidate id and job id", records.ErrValidation)
	}
	if _, err := s.pool.Exec(ctx, upsertApproval, approvalArgs(a)...); err != nil {
		return fmt.Errorf("upsert approval %s/%s: %w", a.CandidateID, a.JobID, err)
	}
	return nil
}

func (s *Store) ApprovalsForPosition(ctx context.Context, jobID string) ([]records.Approval, error) {
	out := make([]records.Approval, 0)
	seq := query(ctx, s.pool, scanApproval, `SELECT `+approvalColumns+` FROM approvals WHERE job_id = $1 ORDER BY seq`, jobID)
	for a, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
