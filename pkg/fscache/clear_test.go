package fscache

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/fscache/pkg/fs"
)

func Test_Cache_ClearExpired_Removes_Expired_Entries_When_TTL_Elapsed(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, func(o *Options) { o.TTL = time.Second })

	if _, err := tc.SetMany(map[string][]byte{"k1": []byte("v1"), "k2": []byte("v2")}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}

	found, err := tc.HasMany([]string{"k1", "k2"})
	if err != nil {
		t.Fatalf("HasMany: %v", err)
	}

	if diff := cmp.Diff([]string{"k1", "k2"}, found); diff != "" {
		t.Fatalf("HasMany mismatch (-want +got):\n%s", diff)
	}

	if _, err := tc.SetTags("k1", []string{"t"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}

	tc.clock.Advance(2 * time.Second)

	if err := tc.ClearExpired(); err != nil {
		t.Fatalf("ClearExpired: %v", err)
	}

	// Inspect the disk first: Has would clean up lazily and hide a miss.
	if files := listFiles(t, tc.dir); len(files) != 0 {
		t.Fatalf("files left after ClearExpired: %v", files)
	}

	if tc.mustHas(t, "k1") || tc.mustHas(t, "k2") {
		t.Fatal("expired entries still reported")
	}
}

func Test_Cache_ClearExpired_Keeps_Live_Entries(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, func(o *Options) { o.TTL = 10 * time.Second })
	tc.mustSet(t, "old", "v")
	tc.clock.Advance(5 * time.Second)
	tc.mustSet(t, "young", "v")
	tc.clock.Advance(6 * time.Second)

	if err := tc.ClearExpired(); err != nil {
		t.Fatalf("ClearExpired: %v", err)
	}

	if fileExists(t, tc.dataPath(t, "old")) {
		t.Fatal("expired entry kept")
	}

	if !fileExists(t, tc.dataPath(t, "young")) {
		t.Fatal("live entry removed")
	}
}

func Test_Cache_ClearExpired_Reports_All_Failures_After_Scan(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, func(o *Options) { o.TTL = time.Second; o.DirLevel = 0 })

	for _, key := range []string{"a", "b", "c"} {
		tc.mustSet(t, key, "v")
	}

	tc.clock.Advance(time.Hour)

	failing := map[string]bool{tc.dataPath(t, "a"): true, tc.dataPath(t, "c"): true}
	tc.driver.deleteErr = func(path string) error {
		if failing[path] {
			return &fs.UnlinkError{Path: path, Err: syscall.EACCES}
		}

		return nil
	}

	err := tc.ClearExpired()
	if !errors.Is(err, ErrIO) {
		t.Fatalf("ClearExpired: err=%v, want %v", err, ErrIO)
	}

	if fileExists(t, tc.dataPath(t, "b")) {
		t.Fatal("scan stopped at the first failure: b was not removed")
	}

	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Fatalf("err=%v, want two joined failures", err)
	}
}

func Test_Cache_ClearByNamespace_Removes_Only_That_Namespace(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, func(o *Options) { o.Namespace = "a"; o.DirLevel = 2 })
	tc.mustSet(t, "k1", "v")
	tc.mustSet(t, "k2", "v")

	if _, err := tc.SetTags("k1", []string{"t"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}

	other, err := New(func() Options { o := tc.Options(); o.Namespace = "b"; return o }())
	if err != nil {
		t.Fatalf("New(other): %v", err)
	}

	if err := other.Set("k1", []byte("v")); err != nil {
		t.Fatalf("other.Set: %v", err)
	}

	if err := other.ClearByNamespace("a"); err != nil {
		t.Fatalf("ClearByNamespace: %v", err)
	}

	if tc.mustHas(t, "k1") || tc.mustHas(t, "k2") {
		t.Fatal("namespace a entries survived")
	}

	if fileExists(t, tc.tagPath(t, "k1")) {
		t.Fatal("namespace a tag file survived")
	}

	if ok, err := other.Has("k1"); err != nil || !ok {
		t.Fatalf("namespace b entry: ok=%v err=%v, want kept", ok, err)
	}
}

func Test_Cache_ClearByNamespace_And_Prefix_Fail_When_Input_Empty(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, nil)

	if err := tc.ClearByNamespace(""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ClearByNamespace(\"\"): err=%v, want %v", err, ErrInvalidArgument)
	}

	if err := tc.ClearByPrefix(""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ClearByPrefix(\"\"): err=%v, want %v", err, ErrInvalidArgument)
	}
}

func Test_Cache_ClearByPrefix_Removes_Matching_Keys_In_Namespace(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, func(o *Options) { o.Namespace = "ns" })

	for _, key := range []string{"user-1", "user-2", "users", "order-1"} {
		tc.mustSet(t, key, "v")
	}

	if err := tc.ClearByPrefix("user-"); err != nil {
		t.Fatalf("ClearByPrefix: %v", err)
	}

	found, err := tc.HasMany([]string{"user-1", "user-2", "users", "order-1"})
	if err != nil {
		t.Fatalf("HasMany: %v", err)
	}

	if diff := cmp.Diff([]string{"users", "order-1"}, found); diff != "" {
		t.Fatalf("remaining mismatch (-want +got):\n%s", diff)
	}
}

func Test_Cache_ClearByPrefix_Treats_Glob_Characters_Literally_When_In_Suffix(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, func(o *Options) {
		o.Suffix = "d*t"
		o.TagSuffix = "t[a]g"
		o.DirLevel = 0
	})

	tc.mustSet(t, "k", "v")

	if _, err := tc.SetTags("k", []string{"x"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}

	// Looks like a match for an unescaped "*.d*t" pattern.
	decoy := filepath.Join(tc.dir, "k.dXXt")
	if err := os.WriteFile(decoy, []byte("##1##\nx"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tc.clock.Advance(time.Hour)

	if err := tc.ClearExpired(); err != nil {
		t.Fatalf("ClearExpired: %v", err)
	}

	if !fileExists(t, decoy) {
		t.Fatal("ClearExpired matched a file with a different suffix")
	}

	if err := tc.ClearByTags([]string{"x"}, false); err != nil {
		t.Fatalf("ClearByTags: %v", err)
	}

	if diff := cmp.Diff([]string{"k.dXXt"}, listFiles(t, tc.dir)); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}
}

func Test_Cache_Bulk_Clears_Succeed_When_Files_Deleted_Concurrently(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		clear func(*testCache) error
	}{
		{name: "Namespace", clear: func(tc *testCache) error { return tc.ClearByNamespace("ns") }},
		{name: "Prefix", clear: func(tc *testCache) error { return tc.ClearByPrefix("k") }},
		{name: "Tags", clear: func(tc *testCache) error { return tc.ClearByTags([]string{"t"}, false) }},
		{name: "Expired", clear: func(tc *testCache) error {
			tc.clock.Advance(time.Hour)

			return tc.ClearExpired()
		}},
		{name: "Flush", clear: func(tc *testCache) error { return tc.Flush() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tc := newTestCache(t, func(o *Options) {
				o.Namespace = "ns"
				o.DirLevel = 2
				o.TTL = time.Second
			})

			for _, key := range []string{"k1", "k2", "k3"} {
				tc.mustSet(t, key, "v")

				if _, err := tc.SetTags(key, []string{"t"}); err != nil {
					t.Fatalf("SetTags: %v", err)
				}
			}

			// Another process wins every race: the file is gone by the
			// time we unlink it.
			tc.driver.beforeDelete = func(path string) { _ = os.Remove(path) }

			if err := tt.clear(tc); err != nil {
				t.Fatalf("clear: %v", err)
			}

			if len(tc.driver.deleted()) == 0 {
				t.Fatal("no deletes attempted")
			}

			for _, key := range []string{"k1", "k2", "k3"} {
				if fileExists(t, tc.dataPath(t, key)) {
					t.Fatalf("%s still on disk", key)
				}
			}
		})
	}
}

func Test_Cache_Bulk_Clears_Surface_Error_When_File_Still_Exists(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, func(o *Options) { o.Namespace = "ns" })
	tc.mustSet(t, "k1", "v")
	tc.mustSet(t, "k2", "v")

	stuck := tc.dataPath(t, "k1")
	tc.driver.deleteErr = func(path string) error {
		if path == stuck {
			return &fs.UnlinkError{Path: path, Err: syscall.EROFS}
		}

		return nil
	}

	err := tc.ClearByNamespace("ns")
	if !errors.Is(err, ErrIO) || !errors.Is(err, syscall.EROFS) {
		t.Fatalf("ClearByNamespace: err=%v, want ErrIO wrapping EROFS", err)
	}

	if fileExists(t, tc.dataPath(t, "k2")) {
		t.Fatal("scan stopped at the failing file")
	}

	var cErr *Error
	if !errors.As(err, &cErr) || cErr.Op != "clear-ns" {
		t.Fatalf("err=%v, want *Error with op=clear-ns", err)
	}
}

func Test_Cache_Flush_Removes_Everything_But_Root(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, func(o *Options) { o.DirLevel = 3 })
	tc.mustSet(t, "k1", "v")
	tc.mustSet(t, "k2", "v")

	foreign := filepath.Join(tc.dir, "unrelated", "deep", "tree")
	if err := os.MkdirAll(foreign, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := os.WriteFile(filepath.Join(foreign, "f.txt"), nil, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := tc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	entries, err := os.ReadDir(tc.dir)
	if err != nil {
		t.Fatalf("root removed: %v", err)
	}

	if len(entries) != 0 {
		t.Fatalf("root not empty after Flush: %v", entries)
	}
}
