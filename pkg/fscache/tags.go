package fscache

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// SetTags replaces the tags of key. Empty tags removes them. It reports false
// if key does not exist.
func (c *Cache) SetTags(key string, tags []string) (bool, error) {
	s, err := c.begin()
	if err != nil {
		return false, withContext(err, "set-tags", key, "")
	}

	if err := s.normalizeKey(key); err != nil {
		return false, withContext(err, "set-tags", key, "")
	}

	exists, err := s.exists(key)
	if err != nil || !exists {
		return false, withContext(err, "set-tags", key, "")
	}

	tagFile := s.tagFile(s.fileSpec(key))

	if len(tags) == 0 {
		if _, err := s.remove(tagFile); err != nil {
			return false, withContext(err, "set-tags", key, tagFile)
		}

		return true, nil
	}

	for _, tag := range tags {
		if tag == "" || strings.Contains(tag, "\n") {
			return false, withContext(invalidArgument("tag %q must be non-empty and single-line", tag), "set-tags", key, "")
		}
	}

	dataFile := s.dataFile(s.fileSpec(key))

	if _, err := s.driver.Write(tagFile, []byte(strings.Join(tags, "\n")), s.writeOptions(false)); err != nil {
		if gone, _ := s.entryGone(dataFile); gone {
			return false, nil
		}

		return false, withContext(ioError(err), "set-tags", key, tagFile)
	}

	// A concurrent clear may have removed the entry after the exists check.
	// Tags must not outlive it.
	gone, err := s.entryGone(dataFile)
	if err != nil {
		return false, withContext(err, "set-tags", key, dataFile)
	}

	if gone {
		if _, err := s.remove(tagFile); err != nil {
			return false, withContext(err, "set-tags", key, tagFile)
		}

		return false, nil
	}

	return true, nil
}

func (s *state) entryGone(dataFile string) (bool, error) {
	ok, err := s.driver.Exists(dataFile)
	if err != nil {
		return false, ioError(err)
	}

	return !ok, nil
}

// GetTags returns the tags of key, empty if it has none. ok is false if key
// does not exist.
func (c *Cache) GetTags(key string) (tags []string, ok bool, err error) {
	s, err := c.begin()
	if err != nil {
		return nil, false, withContext(err, "get-tags", key, "")
	}

	if err := s.normalizeKey(key); err != nil {
		return nil, false, withContext(err, "get-tags", key, "")
	}

	exists, err := s.exists(key)
	if err != nil || !exists {
		return nil, false, withContext(err, "get-tags", key, "")
	}

	tagFile := s.tagFile(s.fileSpec(key))

	tags, err = s.readTags(tagFile)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, true, nil
	}

	if err != nil {
		return nil, false, withContext(err, "get-tags", key, tagFile)
	}

	return tags, true, nil
}

// ClearByTags removes every entry of the current namespace whose tags
// contain all of tags, or any of them with disjunction. Empty tags is a
// no-op.
func (c *Cache) ClearByTags(tags []string, disjunction bool) error {
	s, err := c.begin()
	if err != nil {
		return withContext(err, "clear-tags", "", "")
	}

	if len(tags) == 0 {
		return nil
	}

	if err := s.clearByTags(tags, disjunction); err != nil {
		return withContext(err, "clear-tags", "", "")
	}

	return nil
}

func (s *state) readTags(tagFile string) ([]string, error) {
	data, _, err := s.read(tagFile, false)
	if errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err != nil {
		return nil, ioError(err)
	}

	if len(data) == 0 {
		return []string{}, nil
	}

	return strings.Split(string(data), "\n"), nil
}

// tagsMatch applies the removal rule: with disjunction at least one
// requested tag must be stored, otherwise all of them.
func tagsMatch(requested, stored []string, disjunction bool) bool {
	have := make(map[string]struct{}, len(stored))
	for _, tag := range stored {
		have[tag] = struct{}{}
	}

	missing := 0

	for _, tag := range requested {
		if _, ok := have[tag]; !ok {
			missing++
		}
	}

	if disjunction {
		return missing < len(requested)
	}

	return missing == 0
}

func (s *state) clearByTags(tags []string, disjunction bool) error {
	var errs []error

	for tagFile, err := range s.scan(s.filePattern("", escapeGlob(s.opts.TagSuffix))) {
		if err != nil {
			errs = append(errs, err)

			continue
		}

		stored, err := s.readTags(tagFile)
		if errors.Is(err, os.ErrNotExist) {
			// Removed by another process after listing.
			continue
		}

		if err != nil {
			errs = append(errs, err)

			continue
		}

		if !tagsMatch(tags, stored, disjunction) {
			continue
		}

		if _, err := s.remove(tagFile); err != nil {
			errs = append(errs, err)

			continue
		}

		if _, err := s.remove(s.dataFile(s.specFromTagFile(tagFile))); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("clearing tags %q: %w", tags, errors.Join(errs...))
	}

	return nil
}
