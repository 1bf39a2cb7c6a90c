package ingest

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/records"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	// StatusSkipped marks a document whose record was not written: a candidate
	// with a missing, malformed or already stored email, or a position without
	// a job id.
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
	// StatusNotStarted marks documents left untouched because the batch was cancelled.
	StatusNotStarted Status = "not_started"
)

type Outcome struct {
	Document string `json:"document"`
	Status   Status `json:"status"`
	// RecordID is the candidate id or job id written for this document.
	RecordID string `json:"record_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Cached   bool   `json:"cached,omitempty"`
	Err      error  `json:"-"`
}

func (o Outcome) fail(log *zap.Logger, err error) Outcome {
	o.Status = StatusFailed
	o.Err = err
	o.Reason = err.Error()
	log.Warn("document failed", zap.Error(err))
	return o
}

// reject skips documents whose extracted fields fail validation and fails on
// any other error.
func (o Outcome) reject(log *zap.Logger, err error) Outcome {
	if errors.Is(err, records.ErrValidation) {
		return o.skip(log, err.Error(), err)
	}
	return o.fail(log, err)
}

func (o Outcome) skip(log *zap.Logger, reason string, err error) Outcome {
	o.Status = StatusSkipped
	o.Err = err
	o.Reason = reason
	log.Info("document skipped", zap.String("reason", reason))
	return o
}

type Report struct {
	Kind       records.Kind            `json:"kind"`
	Policy     records.DuplicatePolicy `json:"duplicate_policy"`
	Outcomes   []Outcome               `json:"outcomes"`
	Succeeded  int                     `json:"succeeded"`
	Skipped    int                     `json:"skipped"`
	Failed     int                     `json:"failed"`
	NotStarted int                     `json:"not_started"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
}

func (r *Report) tally() {
	r.Succeeded, r.Skipped, r.Failed, r.NotStarted = 0, 0, 0, 0
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusSucceeded:
			r.Succeeded++
		case StatusSkipped:
			r.Skipped++
		case StatusFailed:
			r.Failed++
		case StatusNotStarted:
			r.NotStarted++
		}
	}
}

// Failures returns the failed outcomes in input order.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}
