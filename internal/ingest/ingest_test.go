package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/resume-matcher/internal/cache"
	"github.com/spigell/resume-matcher/internal/document"
	"github.com/spigell/resume-matcher/internal/extract"
	"github.com/spigell/resume-matcher/internal/ratelimit"
	"github.com/spigell/resume-matcher/internal/records"
	"github.com/spigell/resume-matcher/internal/store"
)

// pathReader returns the document path as its text, so tests key behaviour on paths.
type pathReader struct{}

func (pathReader) Read(_ context.Context, doc document.Document) (string, error) {
	if strings.Contains(doc.Path, "unreadable") {
		return "", errors.New("corrupt pdf")
	}
	if strings.Contains(doc.Path, "blank") {
		return "   ", nil
	}
	return doc.Path, nil
}

type stubExtractor struct {
	mu       sync.Mutex
	starts   []time.Time
	calls    int
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	delay  time.Duration
	onCall func(text string)
	fields func(text string) (*extract.Fields, error)
}

func (s *stubExtractor) Extract(_ context.Context, _ records.Kind, text string) (*extract.Fields, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls++
	s.starts = append(s.starts, time.Now())
	s.mu.Unlock()

	if s.onCall != nil {
		s.onCall(text)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.fields(text)
}

func (s *stubExtractor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// candidateFields derives an email from the file stem: "dup-1.pdf" and
// "dup-2.pdf" share "dup@example.com".
func candidateFields(text string) (*extract.Fields, error) {
	stem := document.Document{Path: text}.Stem()
	switch {
	case strings.Contains(stem, "boom"):
		return nil, errors.New("model unavailable")
	case strings.Contains(stem, "noemail"):
		return &extract.Fields{Name: "No Email"}, nil
	}
	local, _, _ := strings.Cut(stem, "-")
	return &extract.Fields{
		Name:   stem,
		Email:  local + "@example.com",
		Skills: []string{"Go", "SQL"},
	}, nil
}

func docs(paths ...string) []document.Document {
	return document.FromPaths(paths...)
}

func fastConfig(concurrency int) Config {
	return Config{MaxConcurrency: concurrency, RateLimit: 1000, RateWindow: time.Second}
}

func newTestIngestor(t *testing.T, st Store, ex extract.Extractor, cfg Config, opts ...Option) *Ingestor {
	t.Helper()
	opts = append([]Option{WithReader(pathReader{})}, opts...)
	ing, err := New(st, ex, cfg, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("new ingestor: %v", err)
	}
	return ing
}

func TestRunCandidatesSkipsDuplicateEmails(t *testing.T) {
	mem := store.NewMemory()
	ex := &stubExtractor{fields: candidateFields}
	ing := newTestIngestor(t, mem, ex, fastConfig(4))

	report, err := ing.Run(context.Background(), records.KindCandidate, docs("alice.pdf", "dup-1.pdf", "dup-2.pdf", "bob.pdf"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.Succeeded != 3 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("unexpected tally: %+v", report)
	}
	if report.Policy != records.SkipDuplicate {
		t.Fatalf("expected skip policy for candidates, got %q", report.Policy)
	}

	stored, err := store.Collect(mem.ListCandidates(context.Background()))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored candidates, got %d", len(stored))
	}
	for _, c := range stored {
		if c.CandidateID == "" || !slices.Equal(c.PrimarySkills, []string{"go", "sql"}) {
			t.Fatalf("unexpected stored candidate: %+v", c)
		}
	}

	for _, o := range report.Outcomes {
		if o.Status == StatusSkipped && !errors.Is(o.Err, records.ErrDuplicateKey) {
			t.Fatalf("skipped outcome must carry the duplicate error: %+v", o)
		}
	}
}

func TestRunPositionsReplaceByJobID(t *testing.T) {
	mem := store.NewMemory()
	ex := &stubExtractor{fields: func(text string) (*extract.Fields, error) {
		skill := "Go"
		if strings.HasPrefix(text, "new/") {
			skill = "Rust"
		}
		return &extract.Fields{
			RequiredSkills:    []extract.ScoredSkill{{Name: skill, Score: 9}, {Name: "SQL", Score: 5}},
			GoodToHaveSkills:  []string{"AWS", skill},
			MinimumExperience: "3",
			Location:          "Not specified",
		}, nil
	}}
	ing := newTestIngestor(t, mem, ex, fastConfig(1))

	report, err := ing.Run(context.Background(), records.KindPosition, docs("old/JD1.pdf", "new/JD1.pdf"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Succeeded != 2 || report.Policy != records.ReplaceDuplicate {
		t.Fatalf("expected both upserts to succeed, got %+v", report)
	}

	positions, _ := store.Collect(mem.ListPositions(context.Background()))
	if len(positions) != 1 {
		t.Fatalf("expected a single position for JD1, got %d", len(positions))
	}
	p := positions[0]
	if p.JobID != "JD1" || !slices.Equal(p.PrimarySkills, []string{"rust"}) {
		t.Fatalf("expected latest extraction to win, got %+v", p)
	}
	if !slices.Equal(p.SecondarySkills, []string{"aws", "sql"}) {
		t.Fatalf("secondary must exclude primary, got %v", p.SecondarySkills)
	}
	if p.MinimumExperienceInYears != 3 {
		t.Fatalf("expected min experience 3, got %d", p.MinimumExperienceInYears)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	mem := store.NewMemory()
	ex := &stubExtractor{fields: candidateFields}
	ing := newTestIngestor(t, mem, ex, fastConfig(3))

	report, err := ing.Run(context.Background(), records.KindCandidate,
		docs("alice.pdf", "boom.pdf", "noemail.pdf", "unreadable.pdf", "blank.pdf", "bob.pdf"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []struct {
		status Status
		err    error
	}{
		{StatusSucceeded, nil},
		{StatusFailed, records.ErrExtraction},
		{StatusSkipped, records.ErrValidation},
		{StatusFailed, records.ErrExtraction},
		{StatusFailed, records.ErrExtraction},
		{StatusSucceeded, nil},
	}
	for i, w := range want {
		o := report.Outcomes[i]
		if o.Status != w.status {
			t.Fatalf("outcome %d (%s): expected %s, got %s (%s)", i, o.Document, w.status, o.Status, o.Reason)
		}
		if w.err != nil && !errors.Is(o.Err, w.err) {
			t.Fatalf("outcome %d: expected %v, got %v", i, w.err, o.Err)
		}
		if w.err != nil && o.Reason == "" {
			t.Fatalf("outcome %d: failed and skipped outcomes need a reason", i)
		}
	}
	if len(report.Failures()) != 3 || report.Skipped != 1 {
		t.Fatalf("expected 3 failures and 1 skip, got %d and %d", len(report.Failures()), report.Skipped)
	}
	// Unreadable and blank documents never reach the extractor.
	if ex.callCount() != 4 {
		t.Fatalf("expected 4 extractor calls, got %d", ex.callCount())
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	ex := &stubExtractor{fields: candidateFields, delay: 15 * time.Millisecond}
	ing := newTestIngestor(t, store.NewMemory(), ex, fastConfig(2))

	paths := make([]string, 10)
	for i := range paths {
		paths[i] = fmt.Sprintf("c%d.pdf", i)
	}
	report, err := ing.Run(context.Background(), records.KindCandidate, docs(paths...))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Succeeded != 10 {
		t.Fatalf("expected all documents to succeed, got %+v", report)
	}
	if got := ex.maxSeen.Load(); got > 2 {
		t.Fatalf("expected at most 2 extractions in flight, saw %d", got)
	}
}

func TestRunRespectsRateLimit(t *testing.T) {
	const (
		limit  = 3
		window = 150 * time.Millisecond
	)
	ex := &stubExtractor{fields: candidateFields}
	ing := newTestIngestor(t, store.NewMemory(), ex, Config{MaxConcurrency: 7, RateLimit: limit, RateWindow: window})

	paths := make([]string, 7)
	for i := range paths {
		paths[i] = fmt.Sprintf("r%d.pdf", i)
	}
	if _, err := ing.Run(context.Background(), records.KindCandidate, docs(paths...)); err != nil {
		t.Fatalf("run: %v", err)
	}

	starts := slices.Clone(ex.starts)
	slices.SortFunc(starts, func(a, b time.Time) int { return a.Compare(b) })
	const tolerance = 10 * time.Millisecond
	for i := 0; i+limit < len(starts); i++ {
		if gap := starts[i+limit].Sub(starts[i]); gap < window-tolerance {
			t.Fatalf("%d calls started within %s (window %s)", limit+1, gap, window)
		}
	}
}

func TestRunBoundsConcurrencyAndRate(t *testing.T) {
	const (
		limit  = 3
		window = 120 * time.Millisecond
	)
	ex := &stubExtractor{fields: candidateFields, delay: 30 * time.Millisecond}
	ing := newTestIngestor(t, store.NewMemory(), ex, Config{MaxConcurrency: 2, RateLimit: limit, RateWindow: window})

	paths := make([]string, 9)
	for i := range paths {
		paths[i] = fmt.Sprintf("b%d.pdf", i)
	}
	report, err := ing.Run(context.Background(), records.KindCandidate, docs(paths...))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Succeeded != len(paths) {
		t.Fatalf("expected all documents to succeed, got %+v", report)
	}
	if got := ex.maxSeen.Load(); got > 2 {
		t.Fatalf("expected at most 2 extractions in flight, saw %d", got)
	}

	starts := slices.Clone(ex.starts)
	slices.SortFunc(starts, func(a, b time.Time) int { return a.Compare(b) })
	const tolerance = 10 * time.Millisecond
	for i := 0; i+limit < len(starts); i++ {
		if gap := starts[i+limit].Sub(starts[i]); gap < window-tolerance {
			t.Fatalf("%d calls started within %s (window %s)", limit+1, gap, window)
		}
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := store.NewMemory()
	ex := &stubExtractor{
		fields: candidateFields,
		onCall: func(string) { cancel() },
	}
	ing := newTestIngestor(t, mem, ex, fastConfig(1))

	report, err := ing.Run(ctx, records.KindCandidate, docs("a.pdf", "b.pdf", "c.pdf", "d.pdf"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report == nil {
		t.Fatalf("expected partial report")
	}

	if ex.callCount() != 1 {
		t.Fatalf("no extraction may start after cancellation, got %d calls", ex.callCount())
	}
	if report.Outcomes[0].Status != StatusSucceeded {
		t.Fatalf("in-flight document must complete, got %+v", report.Outcomes[0])
	}
	for _, o := range report.Outcomes[1:] {
		if o.Status != StatusNotStarted {
			t.Fatalf("expected not started after cancel, got %+v", o)
		}
	}
	if report.NotStarted != 3 {
		t.Fatalf("expected 3 not started, got %d", report.NotStarted)
	}

	if _, err := mem.FindCandidate(context.Background(), report.Outcomes[0].RecordID); err != nil {
		t.Fatalf("completed document must be persisted: %v", err)
	}
}

type downStore struct{ *store.Memory }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestRunStoreUnavailable(t *testing.T) {
	ex := &stubExtractor{fields: candidateFields}
	ing := newTestIngestor(t, downStore{store.NewMemory()}, ex, fastConfig(1))

	if _, err := ing.Run(context.Background(), records.KindCandidate, docs("a.pdf")); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable error, got %v", err)
	}
	if ex.callCount() != 0 {
		t.Fatalf("no extraction expected when store is down")
	}
}

type countingGate struct{ waits atomic.Int32 }

func (g *countingGate) Wait(ctx context.Context) error {
	g.waits.Add(1)
	return ctx.Err()
}

func TestRunUsesCache(t *testing.T) {
	mem := store.NewMemory()
	ex := &stubExtractor{fields: func(string) (*extract.Fields, error) {
		return &extract.Fields{RequiredSkills: []extract.ScoredSkill{{Name: "Go", Score: 10}}}, nil
	}}
	gate := &countingGate{}
	ing := newTestIngestor(t, mem, ex, fastConfig(1), WithCache(cache.NewMemory(0)), WithGate(gate))

	first, err := ing.Run(context.Background(), records.KindPosition, docs("JD7.pdf"))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := ing.Run(context.Background(), records.KindPosition, docs("JD7.pdf"))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if ex.callCount() != 1 || gate.waits.Load() != 1 {
		t.Fatalf("cache hit must skip extractor and gate, calls=%d waits=%d", ex.callCount(), gate.waits.Load())
	}
	if first.Outcomes[0].Cached || !second.Outcomes[0].Cached {
		t.Fatalf("unexpected cached flags: %+v / %+v", first.Outcomes[0], second.Outcomes[0])
	}

	p, err := mem.FindPosition(context.Background(), "JD7")
	if err != nil || !slices.Equal(p.PrimarySkills, []string{"go"}) {
		t.Fatalf("unexpected position %+v (%v)", p, err)
	}
}

// versionedExtractor reports a settable cache version, like an extractor whose
// technology mapping was reconfigured.
type versionedExtractor struct {
	*stubExtractor
	version string
}

func (v *versionedExtractor) CacheVersion(records.Kind) string { return v.version }

func TestRunCacheFollowsExtractorVersion(t *testing.T) {
	ex := &versionedExtractor{
		stubExtractor: &stubExtractor{fields: func(string) (*extract.Fields, error) {
			return &extract.Fields{RequiredSkills: []extract.ScoredSkill{{Name: "Go", Score: 10}}}, nil
		}},
		version: "v1+aaaa",
	}
	ing := newTestIngestor(t, store.NewMemory(), ex, fastConfig(1), WithCache(cache.NewMemory(0)))

	run := func() Outcome {
		t.Helper()
		report, err := ing.Run(context.Background(), records.KindPosition, docs("JD9.pdf"))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return report.Outcomes[0]
	}

	run()
	if o := run(); !o.Cached {
		t.Fatalf("unchanged version must hit the cache: %+v", o)
	}
	ex.version = "v1+bbbb"
	if o := run(); o.Cached {
		t.Fatalf("changed version must miss the cache: %+v", o)
	}
	if ex.callCount() != 2 {
		t.Fatalf("expected 2 extractor calls, got %d", ex.callCount())
	}
}

func TestRunLogsOutcomes(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	ex := &stubExtractor{fields: candidateFields}
	ing, err := New(store.NewMemory(), ex, fastConfig(1), zap.New(core), WithReader(pathReader{}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := ing.Run(context.Background(), records.KindCandidate, docs("alice.pdf", "boom.pdf", "noemail.pdf")); err != nil {
		t.Fatalf("run: %v", err)
	}

	if n := observed.FilterMessage("document failed").Len(); n != 1 {
		t.Fatalf("expected one failure log, got %d", n)
	}
	skipped := observed.FilterMessage("document skipped").All()
	if len(skipped) != 1 || !strings.Contains(fmt.Sprint(skipped[0].ContextMap()["reason"]), "email is missing") {
		t.Fatalf("expected one skip log naming the missing email, got %+v", skipped)
	}
	summary := observed.FilterMessage("ingestion finished").All()
	if len(summary) != 1 || summary[0].ContextMap()["failed"] != int64(1) || summary[0].ContextMap()["skipped"] != int64(1) {
		t.Fatalf("unexpected summary log: %+v", summary)
	}
}

func TestNewValidates(t *testing.T) {
	ex := &stubExtractor{fields: candidateFields}
	if _, err := New(store.NewMemory(), ex, Config{MaxConcurrency: 0, RateLimit: 1, RateWindow: time.Second}, nil); err == nil {
		t.Fatalf("expected error for zero concurrency")
	}
	if _, err := New(store.NewMemory(), ex, Config{MaxConcurrency: 1, RateLimit: 0, RateWindow: time.Second}, nil); err == nil {
		t.Fatalf("expected error for zero rate limit")
	}
	if _, err := New(nil, ex, fastConfig(1), nil); err == nil {
		t.Fatalf("expected error without store")
	}

	w, _ := ratelimit.NewWindow(1, time.Second)
	if _, err := New(store.NewMemory(), ex, Config{MaxConcurrency: 1}, nil, WithGate(w)); err != nil {
		t.Fatalf("explicit gate must bypass rate config: %v", err)
	}
}

func TestRunRejectsUnknownKind(t *testing.T) {
	ing := newTestIngestor(t, store.NewMemory(), &stubExtractor{fields: candidateFields}, fastConfig(1))
	if _, err := ing.Run(context.Background(), records.Kind("vacancy"), nil); !errors.Is(err, records.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
