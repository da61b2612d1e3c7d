package fscache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ClearByNamespace deletes every file of namespace at the configured shard
// depth, whatever its suffix. It does not depend on [Options.Namespace].
func (c *Cache) ClearByNamespace(namespace string) error {
	s, err := c.begin()
	if err != nil {
		return withContext(err, "clear-ns", "", "")
	}

	if namespace == "" {
		return withContext(invalidArgument("no namespace given"), "clear-ns", "", "")
	}

	prefix := escapeGlob(namespace + s.opts.NamespaceSeparator)
	pattern := scanPattern{
		root:   s.opts.CacheDir,
		levels: s.opts.DirLevel,
		dir:    prefix + "*",
		file:   prefix + "*.*",
	}

	if err := s.removeMatching(pattern); err != nil {
		return withContext(fmt.Errorf("clearing namespace %q: %w", namespace, err), "clear-ns", "", s.opts.CacheDir)
	}

	return nil
}

// ClearByPrefix deletes every file of the current namespace whose key starts
// with prefix, whatever its suffix.
func (c *Cache) ClearByPrefix(prefix string) error {
	s, err := c.begin()
	if err != nil {
		return withContext(err, "clear-prefix", "", "")
	}

	if prefix == "" {
		return withContext(invalidArgument("no prefix given"), "clear-prefix", "", "")
	}

	if err := s.removeMatching(s.filePattern(prefix, "*")); err != nil {
		return withContext(fmt.Errorf("clearing prefix %q: %w", prefix, err), "clear-prefix", "", s.opts.CacheDir)
	}

	return nil
}

// ClearExpired deletes every expired entry of the current namespace along
// with its tags. Failures do not stop the scan; they are reported together
// at the end.
func (c *Cache) ClearExpired() error {
	s, err := c.begin()
	if err != nil {
		return withContext(err, "clear-expired", "", "")
	}

	var errs []error

	for file, err := range s.scan(s.filePattern("", escapeGlob(s.opts.Suffix))) {
		if err != nil {
			errs = append(errs, err)

			continue
		}

		st, err := s.checkExpired(file)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		if st != entryExpired {
			continue
		}

		if _, err := s.removeEntry(s.specFromDataFile(file)); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return withContext(fmt.Errorf("clearing expired entries: %w", errors.Join(errs...)), "clear-expired", "", s.opts.CacheDir)
	}

	return nil
}

// Flush deletes every file and directory below [Options.CacheDir], across
// all namespaces. The root itself is kept. Directories that another process
// refills concurrently are left in place.
func (c *Cache) Flush() error {
	s, err := c.begin()
	if err != nil {
		return withContext(err, "flush", "", "")
	}

	if err := s.flush(s.opts.CacheDir); err != nil {
		return withContext(fmt.Errorf("flushing directory %q: %w", s.opts.CacheDir, err), "flush", "", s.opts.CacheDir)
	}

	return nil
}

// removeMatching deletes every file matching p. Files that are already gone
// count as removed.
func (s *state) removeMatching(p scanPattern) error {
	var errs []error

	for path, err := range s.scan(p) {
		if err != nil {
			errs = append(errs, err)

			continue
		}

		if _, err := s.remove(path); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// flush empties root with an explicit worklist: directories are listed in
// pre-order, files deleted as they are found, and directories removed in
// reverse order so children go before parents.
func (s *state) flush(root string) error {
	var (
		errs  []error
		dirs  []string
		stack = []string{root}
	)

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := s.driver.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err != nil {
			errs = append(errs, ioError(err))

			continue
		}

		if dir != root {
			dirs = append(dirs, dir)
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())

			if entry.IsDir() {
				stack = append(stack, path)

				continue
			}

			if _, err := s.remove(path); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if err := s.removeDir(dirs[i]); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// removeDir removes an empty directory. Missing and refilled directories are
// not errors.
func (s *state) removeDir(dir string) error {
	err := s.driver.RemoveDir(dir)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if isNotEmpty(err) {
		s.log.Debug("fscache: directory not empty, keeping it", "path", dir)

		return nil
	}

	return ioError(err)
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}
