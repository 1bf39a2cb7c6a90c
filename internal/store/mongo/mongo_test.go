package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/spigell/resume-matcher/internal/store"
	"github.com/spigell/resume-matcher/internal/store/storetest"
)

const envURI = "RESUME_MATCHER_TEST_MONGO_URI"

func TestStore(t *testing.T) {
	uri := os.Getenv(envURI)
	if uri == "" {
		t.Skipf("%s is not set", envURI)
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db := fmt.Sprintf("resume_matcher_test_%d", time.Now().UnixNano())
		s, err := Open(ctx, uri, db, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() {
			ctx := context.Background()
			_ = s.client.Database(db).Drop(ctx)
			_ = s.Close(ctx)
		})
		return s
	})
}

func TestOpenRequiresURI(t *testing.T) {
	if _, err := Open(context.Background(), "  ", "", nil); err == nil {
		t.Fatalf("expected error for empty uri")
	}
}
