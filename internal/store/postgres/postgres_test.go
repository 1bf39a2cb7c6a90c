package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap/zaptest"

	"github.com/spigell/resume-matcher/internal/store"
	"github.com/spigell/resume-matcher/internal/store/storetest"
)

const envURL = "RESUME_MATCHER_TEST_POSTGRES_URL"

func TestStore(t *testing.T) {
	url := os.Getenv(envURL)
	if url == "" {
		t.Skipf("%s is not set", envURL)
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s, err := Open(ctx, url, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, err := s.pool.Exec(ctx, `TRUNCATE candidates, positions, approvals RESTART IDENTITY`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		return s
	})
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		expect bool
	}{
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, expect: true},
		{name: "wrapped", err: errors.Join(errors.New("ctx"), &pgconn.PgError{Code: "23505"}), expect: true},
		{name: "other code", err: &pgconn.PgError{Code: "23503"}, expect: false},
		{name: "plain error", err: errors.New("boom"), expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isUniqueViolation(tt.err); got != tt.expect {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestNonNil(t *testing.T) {
	if got := nonNil(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
