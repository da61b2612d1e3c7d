package fscache

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/calvinalkan/fscache/pkg/fs"
)

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// racingDriver wraps the real driver to simulate other processes: hooks run
// right before the wrapped call, and deleteErr replaces Delete entirely.
type racingDriver struct {
	*fs.Driver

	mu           sync.Mutex
	beforeDelete func(path string)
	beforeRead   func(path string)
	beforeWrite  func(path string)
	deleteErr    func(path string) error
	deletes      []string
}

func newRacingDriver() *racingDriver {
	return &racingDriver{Driver: fs.NewDriver(fs.NewReal())}
}

func (d *racingDriver) Delete(path string) error {
	d.mu.Lock()
	before, inject := d.beforeDelete, d.deleteErr
	d.deletes = append(d.deletes, path)
	d.mu.Unlock()

	if before != nil {
		before(path)
	}

	if inject != nil {
		if err := inject(path); err != nil {
			return err
		}
	}

	return d.Driver.Delete(path)
}

func (d *racingDriver) Read(path string, lock, nonBlocking bool) ([]byte, bool, error) {
	d.mu.Lock()
	before := d.beforeRead
	d.mu.Unlock()

	if before != nil {
		before(path)
	}

	return d.Driver.Read(path, lock, nonBlocking)
}

func (d *racingDriver) Write(path string, data []byte, opts fs.WriteOptions) (bool, error) {
	d.mu.Lock()
	before := d.beforeWrite
	d.mu.Unlock()

	if before != nil {
		before(path)
	}

	return d.Driver.Write(path, data, opts)
}

func (d *racingDriver) deleted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.deletes...)
}

type testCache struct {
	*Cache

	dir    string
	clock  *testClock
	driver *racingDriver
}

func newTestCache(t *testing.T, mutate func(*Options)) *testCache {
	t.Helper()

	dir := t.TempDir()
	clock := newTestClock()
	driver := newRacingDriver()

	opts := DefaultOptions()
	opts.CacheDir = dir
	opts.Now = clock.Now
	opts.Driver = driver
	opts.OnCleanupError = func(err error) { t.Errorf("unexpected cleanup error: %v", err) }

	if mutate != nil {
		mutate(&opts)
	}

	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &testCache{Cache: c, dir: c.Options().CacheDir, clock: clock, driver: driver}
}

func (tc *testCache) mustSet(t *testing.T, key, value string) {
	t.Helper()

	if err := tc.Set(key, []byte(value)); err != nil {
		t.Fatalf("Set(%q): %v", key, err)
	}
}

func (tc *testCache) mustHas(t *testing.T, key string) bool {
	t.Helper()

	ok, err := tc.Has(key)
	if err != nil {
		t.Fatalf("Has(%q): %v", key, err)
	}

	return ok
}

// dataPath returns the entry file path of key under the current options.
func (tc *testCache) dataPath(t *testing.T, key string) string {
	t.Helper()

	s, err := tc.begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	return s.dataFile(s.fileSpec(key))
}

func (tc *testCache) tagPath(t *testing.T, key string) string {
	t.Helper()

	s, err := tc.begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	return s.tagFile(s.fileSpec(key))
}

// listFiles returns all regular files below dir, relative and sorted.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()

	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				return relErr
			}

			files = append(files, rel)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("walking %s: %v", dir, err)
	}

	sort.Strings(files)

	return files
}

func fileExists(t *testing.T, path string) bool {
	t.Helper()

	_, err := os.Stat(path)
	if err == nil {
		return true
	}

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	t.Fatalf("stat %s: %v", path, err)

	return false
}
