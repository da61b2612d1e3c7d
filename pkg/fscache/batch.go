package fscache

import (
	"errors"
	"os"
	"slices"
)

// pendingFile is one item of a batch read or write.
type pendingFile struct {
	key  string
	spec string
	file string
	data []byte
}

// GetMany returns the payloads of all keys that exist and have not expired.
// Missing keys are absent from the result.
//
// While more than one file is left, locks are tried without waiting and
// contended files are retried on the next round; the last file is read with
// a blocking lock.
func (c *Cache) GetMany(keys []string) (map[string][]byte, error) {
	s, err := c.begin()
	if err != nil {
		return nil, withContext(err, "get-many", "", "")
	}

	if err := s.normalizeKeys(keys); err != nil {
		return nil, withContext(err, "get-many", "", "")
	}

	result, err := s.getMany(keys)
	if err != nil {
		return nil, withContext(err, "get-many", "", "")
	}

	return result, nil
}

// SetMany stores all values with the configured TTL. It returns the keys
// that were not stored, which is empty unless err is non-nil.
func (c *Cache) SetMany(values map[string][]byte) ([]string, error) {
	s, err := c.begin()
	if err != nil {
		return sortedKeys(values), withContext(err, "set-many", "", "")
	}

	if err := s.normalizeKeys(sortedKeys(values)); err != nil {
		return sortedKeys(values), withContext(err, "set-many", "", "")
	}

	notStored, err := s.setMany(values)
	if err != nil {
		return notStored, withContext(err, "set-many", "", "")
	}

	return notStored, nil
}

// HasMany returns the keys that exist and have not expired.
func (c *Cache) HasMany(keys []string) ([]string, error) {
	s, err := c.begin()
	if err != nil {
		return nil, withContext(err, "has-many", "", "")
	}

	if err := s.normalizeKeys(keys); err != nil {
		return nil, withContext(err, "has-many", "", "")
	}

	var found []string

	for _, key := range keys {
		ok, err := s.exists(key)
		if err != nil {
			return found, withContext(err, "has-many", key, "")
		}

		if ok {
			found = append(found, key)
		}
	}

	return found, nil
}

// AddMany stores the values whose keys do not exist yet. It returns the keys
// that were not stored.
func (c *Cache) AddMany(values map[string][]byte) ([]string, error) {
	return c.setManyIf("add-many", values, false)
}

// ReplaceMany stores the values whose keys already exist. It returns the
// keys that were not stored.
func (c *Cache) ReplaceMany(values map[string][]byte) ([]string, error) {
	return c.setManyIf("replace-many", values, true)
}

func (c *Cache) setManyIf(op string, values map[string][]byte, wantExisting bool) ([]string, error) {
	keys := sortedKeys(values)

	s, err := c.begin()
	if err != nil {
		return keys, withContext(err, op, "", "")
	}

	if err := s.normalizeKeys(keys); err != nil {
		return keys, withContext(err, op, "", "")
	}

	var skipped []string

	todo := make(map[string][]byte, len(values))

	for _, key := range keys {
		exists, err := s.exists(key)
		if err != nil {
			return keys, withContext(err, op, key, "")
		}

		if exists != wantExisting {
			skipped = append(skipped, key)

			continue
		}

		todo[key] = values[key]
	}

	notStored, err := s.setMany(todo)
	skipped = append(skipped, notStored...)
	slices.Sort(skipped)

	if err != nil {
		return skipped, withContext(err, op, "", "")
	}

	return skipped, nil
}

// TouchMany restarts the TTL of every key. It returns the keys that were not
// touched because they do not exist.
func (c *Cache) TouchMany(keys []string) ([]string, error) {
	s, err := c.begin()
	if err != nil {
		return keys, withContext(err, "touch-many", "", "")
	}

	if err := s.normalizeKeys(keys); err != nil {
		return keys, withContext(err, "touch-many", "", "")
	}

	var missed []string

	for i, key := range keys {
		ok, err := s.touch(key)
		if err != nil {
			return append(missed, keys[i:]...), withContext(err, "touch-many", key, "")
		}

		if !ok {
			missed = append(missed, key)
		}
	}

	return missed, nil
}

// RemoveMany deletes every key. It returns the keys that were not removed
// because they did not exist.
func (c *Cache) RemoveMany(keys []string) ([]string, error) {
	s, err := c.begin()
	if err != nil {
		return keys, withContext(err, "remove-many", "", "")
	}

	if err := s.normalizeKeys(keys); err != nil {
		return keys, withContext(err, "remove-many", "", "")
	}

	var missed []string

	for i, key := range keys {
		ok, err := s.removeKey(key)
		if err != nil {
			return append(missed, keys[i:]...), withContext(err, "remove-many", key, "")
		}

		if !ok {
			missed = append(missed, key)
		}
	}

	return missed, nil
}

// GetMetadataMany returns metadata for every key that exists.
func (c *Cache) GetMetadataMany(keys []string) (map[string]Metadata, error) {
	s, err := c.begin()
	if err != nil {
		return nil, withContext(err, "metadata-many", "", "")
	}

	if err := s.normalizeKeys(keys); err != nil {
		return nil, withContext(err, "metadata-many", "", "")
	}

	result := make(map[string]Metadata, len(keys))

	for _, key := range keys {
		md, ok, err := s.metadata(key)
		if err != nil {
			return result, withContext(err, "metadata-many", key, "")
		}

		if ok {
			result[key] = md
		}
	}

	return result, nil
}

func (s *state) getMany(keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))

	pending := make([]pendingFile, 0, len(keys))
	for _, key := range uniqueKeys(keys) {
		pending = append(pending, pendingFile{key: key, file: s.dataFile(s.fileSpec(key))})
	}

	for len(pending) > 0 {
		nonBlocking := len(pending) > 1
		now := s.now()
		next := pending[:0]

		for _, p := range pending {
			ok, err := s.driver.Exists(p.file)
			if err != nil {
				return result, withContext(ioError(err), "", p.key, p.file)
			}

			if !ok {
				continue
			}

			data, wouldBlock, err := s.read(p.file, nonBlocking)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			if err != nil {
				return result, withContext(ioError(err), "", p.key, p.file)
			}

			if wouldBlock {
				next = append(next, p)

				continue
			}

			if s.unwritten(data) {
				continue
			}

			payload, expiration := decodeEntry(data)
			if isExpired(expiration, now) {
				_, err := s.removeEntry(s.specFromDataFile(p.file))
				s.notifyCleanup(expiredCleanupError(p.file, err))

				continue
			}

			result[p.key] = payload
		}

		pending = next
	}

	return result, nil
}

// setMany prepares directories, encodes values and drops stale tag files,
// then writes with the same non-blocking rounds as getMany.
func (s *state) setMany(values map[string][]byte) ([]string, error) {
	keys := sortedKeys(values)
	now := s.now()

	pending := make([]pendingFile, 0, len(keys))

	// Nothing is written until every file is prepared.
	for _, key := range keys {
		spec := s.fileSpec(key)

		if err := s.ensureParent(spec); err != nil {
			return keys, withContext(err, "", key, "")
		}

		if _, err := s.remove(s.tagFile(spec)); err != nil {
			return keys, withContext(err, "", key, "")
		}

		pending = append(pending, pendingFile{
			key:  key,
			spec: spec,
			file: s.dataFile(spec),
			data: encodeEntry(values[key], s.opts.TTL, now),
		})
	}

	for len(pending) > 0 {
		nonBlocking := len(pending) > 1
		next := pending[:0]

		for i, p := range pending {
			wouldBlock, err := s.write(p.spec, p.file, p.data, nonBlocking)
			if err != nil {
				notStored := append(pendingKeys(next), pendingKeys(pending[i:])...)
				slices.Sort(notStored)

				return notStored, withContext(ioError(err), "", p.key, p.file)
			}

			if wouldBlock {
				next = append(next, p)
			}
		}

		pending = next
	}

	return []string{}, nil
}

func sortedKeys(values map[string][]byte) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))

	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, key)
	}

	return out
}

func pendingKeys(pending []pendingFile) []string {
	keys := make([]string, 0, len(pending))
	for _, p := range pending {
		keys = append(keys, p.key)
	}

	return keys
}
