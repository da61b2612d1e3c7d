package fscache

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/calvinalkan/fscache/pkg/fs"
)

const defaultDirPerm = 0o775

// ensureParent creates the shard directories above spec if they are
// missing.
//
// With an explicit DirPermission and more than one level, directories are
// created one at a time and chmodded, so their mode does not depend on the
// process umask.
func (s *state) ensureParent(spec string) error {
	if s.opts.DirLevel == 0 {
		return nil
	}

	parent := filepath.Dir(spec)

	exists, err := s.driver.Exists(parent)
	if err != nil {
		return ioError(err)
	}

	if exists {
		return nil
	}

	perm := s.opts.DirPermission
	umask := s.opts.Umask

	if perm == 0 || s.opts.DirLevel == 1 {
		opts := fs.DirOptions{Perm: perm, Umask: umask, Recursive: true, Exact: perm != 0}
		if perm == 0 {
			opts.Perm = defaultDirPerm
		}

		if err := s.driver.CreateDirectory(parent, opts); err != nil {
			return ioError(err)
		}

		return nil
	}

	missing, err := s.missingDirs(parent)
	if err != nil {
		return err
	}

	for _, dir := range missing {
		err := s.driver.CreateDirectory(dir, fs.DirOptions{Perm: perm, Umask: umask, Exact: true})
		if err != nil {
			return ioError(err)
		}
	}

	return nil
}

// maxPrunedRetries bounds how often a write recreates shard directories that
// another process keeps pruning underneath it.
const maxPrunedRetries = 8

// write stores data at file. If the write fails because a concurrent
// Optimize or Flush removed the shard directory after ensureParent, the
// directories are recreated and the write is retried.
func (s *state) write(spec, file string, data []byte, nonBlocking bool) (bool, error) {
	for attempt := 0; ; attempt++ {
		wouldBlock, err := s.driver.Write(file, data, s.writeOptions(nonBlocking))
		if err == nil || s.opts.DirLevel == 0 || attempt == maxPrunedRetries {
			return wouldBlock, err
		}

		// The unlocked write path does not keep os.ErrNotExist in its error
		// chain, so check the directory itself.
		parent, statErr := s.driver.Exists(filepath.Dir(file))
		if statErr != nil || parent {
			return wouldBlock, err
		}

		s.log.Debug("fscache: shard directory pruned during write", "path", file)

		if err := s.ensureParent(spec); err != nil {
			return false, err
		}
	}
}

// missingDirs returns dir and its missing ancestors, outermost first.
func (s *state) missingDirs(dir string) ([]string, error) {
	var missing []string

	for {
		exists, err := s.driver.Exists(dir)
		if err != nil {
			return nil, ioError(err)
		}

		if exists {
			break
		}

		missing = append(missing, dir)

		next := filepath.Dir(dir)
		if next == dir {
			break
		}

		dir = next
	}

	for i, j := 0, len(missing)-1; i < j; i, j = i+1, j-1 {
		missing[i], missing[j] = missing[j], missing[i]
	}

	return missing, nil
}

// Optimize removes empty shard directories of the current namespace. It is
// a no-op with DirLevel 0.
func (c *Cache) Optimize() error {
	s, err := c.begin()
	if err != nil {
		return withContext(err, "optimize", "", "")
	}

	if s.opts.DirLevel == 0 {
		return nil
	}

	if _, err := s.pruneEmpty(s.opts.CacheDir, escapeGlob(s.opts.nsPrefix())); err != nil {
		return withContext(err, "optimize", "", s.opts.CacheDir)
	}

	return nil
}

// pruneEmpty removes the empty directories below dir whose names start with
// prefix, deepest first. It reports whether every matching subdirectory was
// removed; a failure keeps the ancestors but does not stop siblings.
func (s *state) pruneEmpty(dir, prefix string) (bool, error) {
	entries, err := s.driver.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}

	if err != nil {
		return false, ioError(err)
	}

	var errs []error

	all := true

	for _, entry := range entries {
		if !entry.IsDir() || !matchName(prefix+"*", entry.Name()) {
			continue
		}

		sub := filepath.Join(dir, entry.Name())

		ok, err := s.pruneEmpty(sub, prefix)
		if err != nil {
			errs = append(errs, err)
		}

		if !ok {
			all = false

			continue
		}

		if err := s.driver.RemoveDir(sub); err != nil && !errors.Is(err, os.ErrNotExist) {
			all = false

			if !isNotEmpty(err) {
				errs = append(errs, ioError(err))
			}
		}
	}

	return all, errors.Join(errs...)
}
