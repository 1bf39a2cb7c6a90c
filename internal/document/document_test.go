package document

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path   string
		expect string
	}{
		{path: "data/input/jd/JD1.pdf", expect: "JD1"},
		{path: "backend.senior.docx", expect: "backend.senior"},
		{path: "noext", expect: "noext"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			if got := (Document{Path: tt.path}).Stem(); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "notes.txt", "c.docx"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	docs, err := Discover(dir, []string{"pdf", ".docx"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	want := []string{"a.PDF", "b.pdf", "c.docx"}
	if len(docs) != len(want) {
		t.Fatalf("expected %d documents, got %+v", len(want), docs)
	}
	for i, doc := range docs {
		if doc.Name() != want[i] {
			t.Fatalf("expected %s at %d, got %s", want[i], i, doc.Name())
		}
	}

	all, err := Discover(dir, nil)
	if err != nil {
		t.Fatalf("discover all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected every regular file, got %d", len(all))
	}

	if _, err := Discover(filepath.Join(dir, "missing"), nil); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestFromPaths(t *testing.T) {
	docs := FromPaths("a.pdf", "  ", "b.pdf")
	if len(docs) != 2 || docs[1].Path != "b.pdf" {
		t.Fatalf("unexpected documents: %+v", docs)
	}
}

func TestDocconvReaderPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.txt")
	if err := os.WriteFile(path, []byte("  Jane Doe\njane@example.com \n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	text, err := DocconvReader{}.Read(context.Background(), Document{Path: path})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if text != "Jane Doe\njane@example.com" {
		t.Fatalf("unexpected text: %q", text)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (DocconvReader{}).Read(ctx, Document{Path: path}); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
