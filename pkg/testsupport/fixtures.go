// Package testsupport holds fixture and golden-file helpers shared by the
// package tests.
package testsupport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/wizard"
)

// UpdateEnv enables golden rewrites when set to any non-empty value.
const UpdateEnv = "UPDATE_GOLDENS"

// Updating reports whether goldens should be rewritten.
func Updating() bool {
	return os.Getenv(UpdateEnv) != ""
}

// MustLoadStore loads wizard definitions from fsys.
func MustLoadStore(t *testing.T, fsys fs.FS) *wizard.Store {
	t.Helper()

	store, err := wizard.LoadFS(fsys)
	if err != nil {
		t.Fatalf("load wizards: %v", err)
	}
	return store
}

// MustSession opens a session over the definition with id and closes it when
// the test ends.
func MustSession(t *testing.T, store *wizard.Store, id string, opts ...wizard.SessionOption) *wizard.Session {
	t.Helper()

	def, ok := store.Definition(id)
	if !ok {
		t.Fatalf("wizard %q not found in %v", id, store.IDs())
	}
	s, err := wizard.NewSession(def, opts...)
	if err != nil {
		t.Fatalf("new session %q: %v", id, err)
	}
	t.Cleanup(s.Close)
	return s
}

// MustLoadJSON decodes a JSON fixture into T.
func MustLoadJSON[T any](t *testing.T, path string) T {
	t.Helper()

	out, err := LoadJSON[T](path)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return out
}

// LoadJSON decodes a JSON fixture for callers without a *testing.T.
func LoadJSON[T any](path string) (T, error) {
	var out T
	if path == "" {
		return out, errors.New("testsupport: fixture path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("testsupport: read fixture: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("testsupport: unmarshal fixture %s: %w", path, err)
	}
	return out, nil
}

// WriteGolden writes value as indented JSON when UPDATE_GOLDENS is set.
func WriteGolden(t *testing.T, path string, value any) {
	t.Helper()

	if !Updating() {
		return
	}
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		t.Fatalf("marshal golden: %v", err)
	}
	WriteMaybeGolden(t, path, append(payload, '\n'))
}

// WriteMaybeGolden updates a golden file when UPDATE_GOLDENS is set. Returns
// true if the golden was written.
func WriteMaybeGolden(t *testing.T, path string, data []byte) bool {
	t.Helper()

	if !Updating() {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
	return true
}

// CompareGolden returns a diff string if the values differ.
func CompareGolden(want, got any, opts ...cmp.Option) string {
	return cmp.Diff(want, got, opts...)
}

// MustReadGolden reads a golden file and returns its raw bytes.
func MustReadGolden(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return data
}

// MustReadGoldenString reads a golden file and returns its string content.
func MustReadGoldenString(t *testing.T, path string) string {
	t.Helper()
	return string(MustReadGolden(t, path))
}

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}

// CaptureOutput runs a render function that also writes to an io.Writer and
// returns both the result and what was written.
func CaptureOutput(t *testing.T, render func(io.Writer) (string, error)) (string, string) {
	t.Helper()

	var buf bytes.Buffer
	out, err := render(&buf)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return out, buf.String()
}
