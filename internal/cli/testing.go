package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// CLI provides a clean interface for running CLI commands in tests.
// It manages a temp work directory, a cache directory inside it and an
// environment whose HOME points into the work directory, so no user config
// leaks in.
type CLI struct {
	t        *testing.T
	Dir      string
	CacheDir string
	Env      map[string]string
}

// NewCLI creates a new test CLI with a temp directory.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	dir := t.TempDir()

	return &CLI{
		t:        t,
		Dir:      dir,
		CacheDir: filepath.Join(dir, "cache"),
		Env:      map[string]string{"HOME": dir},
	}
}

// Run executes the CLI with the given args and returns stdout, stderr, and exit code.
// Args should not include "fscache", "--cwd" or "--dir" - those are added automatically.
func (r *CLI) Run(args ...string) (string, string, int) {
	return r.RunWithInput("", args...)
}

// RunWithInput executes the CLI with stdin and returns stdout, stderr, and exit code.
func (r *CLI) RunWithInput(stdin string, args ...string) (string, string, int) {
	return r.RunRaw(stdin, append([]string{"--dir", r.CacheDir}, args...)...)
}

// RunRaw is like RunWithInput but does not add --dir.
func (r *CLI) RunRaw(stdin string, args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"fscache", "--cwd", r.Dir}, args...)
	code := Run(context.Background(), strings.NewReader(stdin), &outBuf, &errBuf, fullArgs, r.Env)

	return outBuf.String(), errBuf.String(), code
}

// MustRun executes the CLI and fails the test if the command returns non-zero.
// Returns trimmed stdout on success.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if the command succeeds.
// Returns trimmed stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// WriteFile writes content to a file relative to the work directory.
func (r *CLI) WriteFile(name, content string) {
	r.t.Helper()

	path := filepath.Join(r.Dir, name)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		r.t.Fatalf("creating dir for %s: %v", name, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		r.t.Fatalf("writing %s: %v", name, err)
	}
}

// CacheFiles returns the files below the cache directory, relative and
// sorted.
func (r *CLI) CacheFiles() []string {
	r.t.Helper()

	var files []string

	err := filepath.WalkDir(r.CacheDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			rel, relErr := filepath.Rel(r.CacheDir, path)
			if relErr != nil {
				return relErr
			}

			files = append(files, rel)
		}

		return nil
	})
	if err != nil {
		r.t.Fatalf("walking %s: %v", r.CacheDir, err)
	}

	return files
}
