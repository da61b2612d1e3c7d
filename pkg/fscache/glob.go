package fscache

import (
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// escapeGlob quotes the filepath.Match metacharacters in s so configured
// suffixes, namespaces and prefixes match literally.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[\`) {
		return s
	}

	var b strings.Builder

	b.Grow(len(s) + 4)

	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteByte('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}

// scanPattern matches files exactly levels directories below root. Every
// directory on the way must match dir; the file itself must match file.
// Both are filepath.Match patterns.
type scanPattern struct {
	root   string
	levels int
	dir    string
	file   string
}

// filePattern matches files named prefix+"*."+suffix (or any suffix if
// suffix is "*") at the configured shard depth of the current namespace.
func (s *state) filePattern(prefix, suffix string) scanPattern {
	nsPrefix := escapeGlob(s.opts.nsPrefix())

	return scanPattern{
		root:   s.opts.CacheDir,
		levels: s.opts.DirLevel,
		dir:    nsPrefix + "*",
		file:   nsPrefix + escapeGlob(prefix) + "*." + suffix,
	}
}

// scan lists matching files lazily, one directory read per step. Directories
// that disappear while scanning are skipped. Errors are yielded with an
// empty path; the caller may continue.
func (s *state) scan(p scanPattern) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.scanDir(p, p.root, 0, yield)
	}
}

func (s *state) scanDir(p scanPattern, dir string, depth int, yield func(string, error) bool) bool {
	entries, err := s.driver.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return true
	}

	if err != nil {
		return yield("", ioError(err))
	}

	wantDir := depth < p.levels

	pattern := p.file
	if wantDir {
		pattern = p.dir
	}

	for _, entry := range entries {
		if entry.IsDir() != wantDir || !matchName(pattern, entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		if wantDir {
			if !s.scanDir(p, path, depth+1, yield) {
				return false
			}

			continue
		}

		if !yield(path, nil) {
			return false
		}
	}

	return true
}

// matchName is filepath.Match with shell semantics for hidden files: a
// leading dot must be matched explicitly.
func matchName(pattern, name string) bool {
	if strings.HasPrefix(name, ".") && !strings.HasPrefix(pattern, ".") {
		return false
	}

	ok, err := filepath.Match(pattern, name)

	return err == nil && ok
}
