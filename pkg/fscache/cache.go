package fscache

import (
	"errors"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calvinalkan/fscache/pkg/fs"
)

// Cache is a filesystem-backed cache rooted at [Options.CacheDir].
//
// Cache is safe for concurrent use by multiple goroutines, and any number of
// processes may operate on the same directory tree.
type Cache struct {
	// mu guards opts and everything derived from it. Operations work on a
	// snapshot taken under RLock, so [Cache.UpdateOptions] never changes
	// settings halfway through an operation.
	mu         sync.RWMutex
	opts       Options
	caps       Capabilities
	keyRe      *regexp.Regexp
	totalSpace uint64
	haveTotal  bool

	paths  *pathMapper
	closed atomic.Bool
}

// New validates opts and returns a Cache. No files are created until the
// first write.
//
// [Capabilities] are computed before anything touches the disk, so a
// namespace too long for any key fails without I/O.
func New(opts Options) (*Cache, error) {
	opts = opts.withDefaults()

	caps, err := computeCapabilities(opts)
	if err != nil {
		return nil, withContext(err, "new", "", "")
	}

	if err := opts.Validate(); err != nil {
		return nil, withContext(err, "new", "", "")
	}

	dir, err := resolveCacheDir(opts.cacheDir())
	if err != nil {
		return nil, withContext(ioError(err), "new", "", opts.CacheDir)
	}

	opts.CacheDir = dir

	keyRe, err := compileKeyPattern(opts.KeyPattern)
	if err != nil {
		return nil, withContext(err, "new", "", "")
	}

	return &Cache{
		opts:  opts,
		caps:  caps,
		keyRe: keyRe,
		paths: newPathMapper(),
	}, nil
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	if o.Driver == nil {
		o.Driver = fs.NewDriver(fs.NewReal())
	}

	return o
}

func compileKeyPattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, invalidArgument("KeyPattern: %v", err)
	}

	return re, nil
}

// Options returns a copy of the current options.
func (c *Cache) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.opts
}

// Capabilities returns the limits derived from the current options.
func (c *Cache) Capabilities() Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()

	caps := c.caps
	caps.SupportedMetadata = append([]string(nil), c.caps.SupportedMetadata...)

	return caps
}

// UpdateOptions applies update to a copy of the current options, validates
// the result and swaps it in. On error nothing changes.
func (c *Cache) UpdateOptions(update func(*Options)) error {
	if c.closed.Load() {
		return withContext(ErrClosed, "update-options", "", "")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.opts
	update(&next)
	next = next.withDefaults()

	changed := changedFields(c.opts, next)

	if changed.has(capabilityFields) {
		// Before Validate, like New: no I/O for a namespace that cannot work.
		if _, err := computeCapabilities(next); err != nil {
			return withContext(err, "update-options", "", "")
		}
	}

	if err := next.Validate(); err != nil {
		return withContext(err, "update-options", "", "")
	}

	if changed.has(fieldCacheDir) {
		dir, err := resolveCacheDir(next.cacheDir())
		if err != nil {
			return withContext(ioError(err), "update-options", "", next.CacheDir)
		}

		next.CacheDir = dir
	}

	if err := c.onOptionsChanged(next, changed); err != nil {
		return withContext(err, "update-options", "", "")
	}

	return nil
}

// onOptionsChanged installs next and recomputes only the derived values
// affected by changed. Callers hold c.mu.
func (c *Cache) onOptionsChanged(next Options, changed optionField) error {
	caps := c.caps
	keyRe := c.keyRe

	if changed.has(capabilityFields) {
		var err error

		caps, err = computeCapabilities(next)
		if err != nil {
			return err
		}
	}

	if changed.has(fieldKeyPattern) {
		var err error

		keyRe, err = compileKeyPattern(next.KeyPattern)
		if err != nil {
			return err
		}
	}

	if changed.has(fieldCacheDir) {
		c.totalSpace = 0
		c.haveTotal = false
	}

	c.opts = next
	c.caps = caps
	c.keyRe = keyRe

	if changed != 0 {
		c.opts.Logger.Debug("fscache: options changed", "fields", changed.String())
	}

	return nil
}

// Close marks the cache closed. Later calls fail with [ErrClosed]. Close
// holds no resources; it is safe to call more than once.
func (c *Cache) Close() error {
	c.closed.Store(true)

	return nil
}

// state is a consistent snapshot of the settings for one operation.
type state struct {
	opts   Options
	caps   Capabilities
	keyRe  *regexp.Regexp
	driver Driver
	paths  *pathMapper
	log    *slog.Logger
}

func (c *Cache) begin() (*state, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	c.mu.RLock()
	s := &state{
		opts:   c.opts,
		caps:   c.caps,
		keyRe:  c.keyRe,
		driver: c.opts.Driver,
		paths:  c.paths,
		log:    c.opts.Logger,
	}
	c.mu.RUnlock()

	if s.opts.ClearStatCache {
		s.driver.ClearStatCache()
	}

	return s, nil
}

func (s *state) now() time.Time {
	return s.opts.Now()
}

// normalizeKey validates key against the pattern and length limit.
func (s *state) normalizeKey(key string) error {
	if key == "" {
		return invalidArgument("key must not be empty")
	}

	if s.keyRe != nil && !s.keyRe.MatchString(key) {
		return invalidArgument("key %q does not match pattern %s", key, s.opts.KeyPattern)
	}

	if len(key) > s.caps.MaxKeyLength {
		return invalidArgument("key is %d bytes, max is %d", len(key), s.caps.MaxKeyLength)
	}

	return nil
}

func (s *state) normalizeKeys(keys []string) error {
	for _, key := range keys {
		if err := s.normalizeKey(key); err != nil {
			return withContext(err, "", key, "")
		}
	}

	return nil
}

// fileSpec is the path of key without suffix.
func (s *state) fileSpec(key string) string {
	return s.paths.resolve(fileSpecID{
		root:      s.opts.CacheDir,
		namespace: s.opts.Namespace,
		separator: s.opts.NamespaceSeparator,
		key:       key,
		dirLevel:  s.opts.DirLevel,
	})
}

func (s *state) dataFile(spec string) string {
	return spec + "." + s.opts.Suffix
}

func (s *state) tagFile(spec string) string {
	return spec + "." + s.opts.TagSuffix
}

// specFromTagFile strips the tag suffix from a scanned tag file path.
func (s *state) specFromTagFile(path string) string {
	return strings.TrimSuffix(path, "."+s.opts.TagSuffix)
}

func (s *state) specFromDataFile(path string) string {
	return strings.TrimSuffix(path, "."+s.opts.Suffix)
}

func (s *state) writeOptions(nonBlocking bool) fs.WriteOptions {
	return fs.WriteOptions{
		Perm:        s.opts.FilePermission,
		Umask:       s.opts.Umask,
		Lock:        s.opts.FileLocking,
		NonBlocking: nonBlocking,
	}
}

// read returns the raw content of path using the configured locking mode.
func (s *state) read(path string, nonBlocking bool) ([]byte, bool, error) {
	return s.driver.Read(path, s.opts.FileLocking, nonBlocking)
}

// unwritten reports whether data comes from a locked entry file that a writer
// created but has not filled yet. Encoded entries are never empty.
func (s *state) unwritten(data []byte) bool {
	return len(data) == 0 && s.opts.FileLocking
}

// removeOutcome distinguishes a file this call deleted from one that was
// already gone, typically because another process removed it first.
type removeOutcome int

const (
	removed removeOutcome = iota + 1
	alreadyAbsent
)

// remove deletes path. A failed delete is only an error if the file still
// exists afterwards; otherwise the outcome is alreadyAbsent.
func (s *state) remove(path string) (removeOutcome, error) {
	err := s.driver.Delete(path)
	if err == nil {
		return removed, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug("fscache: file already removed", "path", path)

		return alreadyAbsent, nil
	}

	exists, existsErr := s.driver.Exists(path)
	if existsErr == nil && !exists {
		s.log.Debug("fscache: file removed concurrently", "path", path, "error", err)

		return alreadyAbsent, nil
	}

	return 0, ioError(err)
}

// removeEntry deletes the entry file of spec and then its tag file. Both
// deletions are attempted; genuine failures are joined.
func (s *state) removeEntry(spec string) (removeOutcome, error) {
	outcome, dataErr := s.remove(s.dataFile(spec))
	_, tagErr := s.remove(s.tagFile(spec))

	return outcome, errors.Join(dataErr, tagErr)
}

// notifyCleanup reports a failed cleanup that must not fail the caller.
func (s *state) notifyCleanup(err error) {
	if err == nil {
		return
	}

	if s.opts.OnCleanupError != nil {
		s.opts.OnCleanupError(err)

		return
	}

	s.log.Warn("fscache: cleanup failed", "error", err)
}
