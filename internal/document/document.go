// Package document locates source documents on disk and turns them into plain text.
package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"code.sajari.com/docconv"
)

// Document is one source file to ingest.
type Document struct {
	Path string `json:"path"`
}

// Name is the base file name.
func (d Document) Name() string {
	return filepath.Base(d.Path)
}

// Stem is the base name without its extension: "jd/JD1.pdf" gives "JD1".
func (d Document) Stem() string {
	name := d.Name()
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// FromPaths wraps explicit paths without touching the filesystem.
func FromPaths(paths ...string) []Document {
	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			docs = append(docs, Document{Path: p})
		}
	}
	return docs
}

// Discover lists regular files in dir (not recursive) whose extension is in
// exts, compared case-insensitively. An empty exts accepts every file. The
// result is sorted by path.
func Discover(dir string, exts []string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %q: %w", dir, err)
	}

	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}

	var docs []Document
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
				continue
			}
		}
		docs = append(docs, Document{Path: filepath.Join(dir, entry.Name())})
	}

	slices.SortFunc(docs, func(a, b Document) int { return strings.Compare(a.Path, b.Path) })
	return docs, nil
}

// Reader turns a document into text.
type Reader interface {
	Read(ctx context.Context, doc Document) (string, error)
}

// DocconvReader uses docconv for binary formats such as PDF and DOCX and reads
// plain text formats directly.
type DocconvReader struct{}

var plainExtensions = []string{".txt", ".md", ".text"}

func (DocconvReader) Read(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if slices.Contains(plainExtensions, strings.ToLower(filepath.Ext(doc.Path))) {
		data, err := os.ReadFile(doc.Path)
		if err != nil {
			return "", fmt.Errorf("read %q: %w", doc.Path, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	res, err := docconv.ConvertPath(doc.Path)
	if err != nil {
		return "", fmt.Errorf("convert %q: %w", doc.Path, err)
	}
	return strings.TrimSpace(res.Body), nil
}
