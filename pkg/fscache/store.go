package fscache

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Metadata describes a stored entry. Times that are unsupported (see
// [Options.NoAtime], [Options.NoCtime]) or could not be read are zero.
type Metadata struct {
	FileSpec string
	MTime    time.Time
	ATime    time.Time
	CTime    time.Time
}

// Has reports whether key exists and has not expired. An expired entry is
// deleted as a side effect.
func (c *Cache) Has(key string) (bool, error) {
	s, err := c.begin()
	if err != nil {
		return false, withContext(err, "has", key, "")
	}

	if err := s.normalizeKey(key); err != nil {
		return false, withContext(err, "has", key, "")
	}

	ok, err := s.exists(key)
	if err != nil {
		return false, withContext(err, "has", key, "")
	}

	return ok, nil
}

// Get returns the payload of key. Absent and expired entries fail with
// [ErrNotFound].
func (c *Cache) Get(key string) ([]byte, error) {
	payload, _, err := c.get("get", key, false)

	return payload, err
}

// GetWithToken is [Cache.Get] that also returns a CAS token for
// [Cache.CheckAndSet]. The token is empty if file metadata was unavailable.
func (c *Cache) GetWithToken(key string) ([]byte, string, error) {
	return c.get("get", key, true)
}

func (c *Cache) get(op, key string, withToken bool) ([]byte, string, error) {
	s, err := c.begin()
	if err != nil {
		return nil, "", withContext(err, op, key, "")
	}

	if err := s.normalizeKey(key); err != nil {
		return nil, "", withContext(err, op, key, "")
	}

	file := s.dataFile(s.fileSpec(key))

	payload, err := s.getFile(file)
	if err != nil {
		return nil, "", withContext(err, op, key, file)
	}

	var token string
	if withToken {
		token = s.casToken(file)
	}

	return payload, token, nil
}

// Set stores value under key with the configured TTL, replacing any previous
// value and dropping its tags.
func (c *Cache) Set(key string, value []byte) error {
	s, err := c.begin()
	if err != nil {
		return withContext(err, "set", key, "")
	}

	if err := s.normalizeKey(key); err != nil {
		return withContext(err, "set", key, "")
	}

	if err := s.set(key, value); err != nil {
		return withContext(err, "set", key, "")
	}

	return nil
}

// Add stores value only if key does not exist. It reports whether it stored.
func (c *Cache) Add(key string, value []byte) (bool, error) {
	return c.setIf("add", key, value, false)
}

// Replace stores value only if key exists. It reports whether it stored.
func (c *Cache) Replace(key string, value []byte) (bool, error) {
	return c.setIf("replace", key, value, true)
}

func (c *Cache) setIf(op, key string, value []byte, wantExisting bool) (bool, error) {
	s, err := c.begin()
	if err != nil {
		return false, withContext(err, op, key, "")
	}

	if err := s.normalizeKey(key); err != nil {
		return false, withContext(err, op, key, "")
	}

	exists, err := s.exists(key)
	if err != nil {
		return false, withContext(err, op, key, "")
	}

	if exists != wantExisting {
		return false, nil
	}

	if err := s.set(key, value); err != nil {
		return false, withContext(err, op, key, "")
	}

	return true, nil
}

// CheckAndSet stores value only if token still matches the entry. It fails
// with [ErrNotFound] if the entry is gone and [ErrCASMismatch] if it changed.
func (c *Cache) CheckAndSet(token, key string, value []byte) error {
	s, err := c.begin()
	if err != nil {
		return withContext(err, "cas", key, "")
	}

	if err := s.normalizeKey(key); err != nil {
		return withContext(err, "cas", key, "")
	}

	exists, err := s.exists(key)
	if err != nil {
		return withContext(err, "cas", key, "")
	}

	file := s.dataFile(s.fileSpec(key))

	if !exists {
		return withContext(ErrNotFound, "cas", key, file)
	}

	if current := s.casToken(file); current != token {
		return withContext(ErrCASMismatch, "cas", key, file)
	}

	if err := s.set(key, value); err != nil {
		return withContext(err, "cas", key, "")
	}

	return nil
}

// Touch rewrites key with its current payload, restarting its TTL. It
// reports false if the entry does not exist.
func (c *Cache) Touch(key string) (bool, error) {
	s, err := c.begin()
	if err != nil {
		return false, withContext(err, "touch", key, "")
	}

	if err := s.normalizeKey(key); err != nil {
		return false, withContext(err, "touch", key, "")
	}

	ok, err := s.touch(key)
	if err != nil {
		return false, withContext(err, "touch", key, "")
	}

	return ok, nil
}

// Remove deletes key and its tags. It reports false if there was nothing to
// delete.
func (c *Cache) Remove(key string) (bool, error) {
	s, err := c.begin()
	if err != nil {
		return false, withContext(err, "remove", key, "")
	}

	if err := s.normalizeKey(key); err != nil {
		return false, withContext(err, "remove", key, "")
	}

	ok, err := s.removeKey(key)
	if err != nil {
		return false, withContext(err, "remove", key, "")
	}

	return ok, nil
}

// GetMetadata returns file metadata for key. Absent and expired entries fail
// with [ErrNotFound].
func (c *Cache) GetMetadata(key string) (Metadata, error) {
	s, err := c.begin()
	if err != nil {
		return Metadata{}, withContext(err, "metadata", key, "")
	}

	if err := s.normalizeKey(key); err != nil {
		return Metadata{}, withContext(err, "metadata", key, "")
	}

	md, ok, err := s.metadata(key)
	if err != nil {
		return Metadata{}, withContext(err, "metadata", key, "")
	}

	if !ok {
		return Metadata{}, withContext(ErrNotFound, "metadata", key, "")
	}

	return md, nil
}

// exists reports whether the entry file of key exists and is live.
func (s *state) exists(key string) (bool, error) {
	file := s.dataFile(s.fileSpec(key))

	ok, err := s.driver.Exists(file)
	if err != nil {
		return false, ioError(err)
	}

	if !ok {
		return false, nil
	}

	st, err := s.expireIfStale(file)
	if err != nil {
		return false, err
	}

	return st == entryLive, nil
}

// entryState is what a reader observed in an entry file.
type entryState int

const (
	entryLive entryState = iota + 1
	entryExpired
	// entryAbsent covers a file that vanished while reading and a locked
	// file a writer has not filled yet.
	entryAbsent
)

// expireIfStale reads the state of file and deletes it if it is expired.
// Failures to delete go to the cleanup channel.
func (s *state) expireIfStale(file string) (entryState, error) {
	st, err := s.checkExpired(file)
	if err != nil {
		return 0, err
	}

	if st == entryExpired {
		_, err := s.removeEntry(s.specFromDataFile(file))
		s.notifyCleanup(expiredCleanupError(file, err))
	}

	return st, nil
}

// checkExpired reads file and reports whether it is live, expired or absent.
func (s *state) checkExpired(file string) (entryState, error) {
	data, _, err := s.read(file, false)
	if errors.Is(err, os.ErrNotExist) {
		return entryAbsent, nil
	}

	if err != nil {
		return 0, ioError(err)
	}

	if s.unwritten(data) {
		return entryAbsent, nil
	}

	_, expiration := decodeEntry(data)
	if isExpired(expiration, s.now()) {
		return entryExpired, nil
	}

	return entryLive, nil
}

func expiredCleanupError(file string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Op: "expire", Path: file, Err: err}
}

// getFile reads and decodes file. Missing and expired files are
// [ErrNotFound]; expired ones are deleted.
func (s *state) getFile(file string) ([]byte, error) {
	ok, err := s.driver.Exists(file)
	if err != nil {
		return nil, ioError(err)
	}

	if !ok {
		return nil, ErrNotFound
	}

	data, _, err := s.read(file, false)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, ioError(err)
	}

	if s.unwritten(data) {
		return nil, ErrNotFound
	}

	payload, expiration := decodeEntry(data)
	if isExpired(expiration, s.now()) {
		_, err := s.removeEntry(s.specFromDataFile(file))
		s.notifyCleanup(expiredCleanupError(file, err))

		return nil, ErrNotFound
	}

	return payload, nil
}

// casToken derives a change token from mtime and size. It is "" if either
// is unavailable.
func (s *state) casToken(file string) string {
	mtime, err := s.driver.ModTime(file)
	if err != nil {
		return ""
	}

	size, err := s.driver.Size(file)
	if err != nil {
		return ""
	}

	return fmt.Sprintf("%d-%d", mtime.UnixNano(), size)
}

// set writes key. The first attempt does not wait for a contended lock; the
// stale tag file is removed in between, then a blocked write is retried
// blocking.
func (s *state) set(key string, value []byte) error {
	spec := s.fileSpec(key)
	file := s.dataFile(spec)

	if err := s.ensureParent(spec); err != nil {
		return err
	}

	data := encodeEntry(value, s.opts.TTL, s.now())

	wouldBlock, err := s.write(spec, file, data, true)
	if err != nil {
		return ioError(err)
	}

	if _, err := s.remove(s.tagFile(spec)); err != nil {
		return err
	}

	if !wouldBlock {
		return nil
	}

	if _, err := s.write(spec, file, data, false); err != nil {
		return ioError(err)
	}

	return nil
}

func (s *state) touch(key string) (bool, error) {
	payload, err := s.getFile(s.dataFile(s.fileSpec(key)))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if err := s.set(key, payload); err != nil {
		return false, err
	}

	return true, nil
}

// removeKey deletes the entry and tag files of key. It reports false if the
// entry file was absent, including when another process deleted it first.
// A tag file that cannot be deleted is reported on the cleanup channel.
func (s *state) removeKey(key string) (bool, error) {
	spec := s.fileSpec(key)
	file := s.dataFile(spec)

	ok, err := s.driver.Exists(file)
	if err != nil {
		return false, ioError(err)
	}

	if !ok {
		return false, nil
	}

	outcome, err := s.remove(file)
	if err != nil {
		return false, err
	}

	if _, err := s.remove(s.tagFile(spec)); err != nil {
		s.notifyCleanup(&Error{Op: "remove", Key: key, Path: s.tagFile(spec), Err: err})
	}

	return outcome == removed, nil
}

func (s *state) metadata(key string) (Metadata, bool, error) {
	ok, err := s.exists(key)
	if err != nil || !ok {
		return Metadata{}, false, err
	}

	spec := s.fileSpec(key)
	file := s.dataFile(spec)

	md := Metadata{FileSpec: spec}

	if t, err := s.driver.ModTime(file); err == nil {
		md.MTime = t
	}

	if !s.opts.NoAtime {
		if t, err := s.driver.AccessTime(file); err == nil {
			md.ATime = t
		}
	}

	if !s.opts.NoCtime {
		if t, err := s.driver.ChangeTime(file); err == nil {
			md.CTime = t
		}
	}

	return md, true, nil
}
