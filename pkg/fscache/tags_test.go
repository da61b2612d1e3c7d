package fscache

import (
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_Cache_SetTags_GetTags_Roundtrip_And_Clear_When_Empty(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, nil)
	tc.mustSet(t, "k", "v")

	ok, err := tc.SetTags("k", []string{"t1", "t2"})
	if err != nil || !ok {
		t.Fatalf("SetTags: ok=%v err=%v", ok, err)
	}

	tags, ok, err := tc.GetTags("k")
	if err != nil || !ok {
		t.Fatalf("GetTags: ok=%v err=%v", ok, err)
	}

	if diff := cmp.Diff([]string{"t1", "t2"}, tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}

	if _, err := tc.SetTags("k", nil); err != nil {
		t.Fatalf("SetTags(empty): %v", err)
	}

	tags, ok, err = tc.GetTags("k")
	if err != nil || !ok {
		t.Fatalf("GetTags after clear: ok=%v err=%v", ok, err)
	}

	if diff := cmp.Diff([]string{}, tags); diff != "" {
		t.Fatalf("tags after clear mismatch (-want +got):\n%s", diff)
	}

	if fileExists(t, tc.tagPath(t, "k")) {
		t.Fatal("tag file still exists after clearing tags")
	}
}

func Test_Cache_SetTags_And_GetTags_Report_False_When_Key_Missing(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, nil)

	ok, err := tc.SetTags("missing", []string{"a"})
	if err != nil || ok {
		t.Fatalf("SetTags(missing): ok=%v err=%v, want false nil", ok, err)
	}

	tags, ok, err := tc.GetTags("missing")
	if err != nil || ok || tags != nil {
		t.Fatalf("GetTags(missing)=(%v, %v, %v), want (nil, false, nil)", tags, ok, err)
	}

	if fileExists(t, tc.tagPath(t, "missing")) {
		t.Fatal("tag file created for missing key")
	}
}

func Test_Cache_SetTags_Rejects_Tags_When_Empty_Or_Multiline(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, nil)
	tc.mustSet(t, "k", "v")

	for _, tags := range [][]string{{"ok", ""}, {"a\nb"}} {
		if _, err := tc.SetTags("k", tags); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("SetTags(%q): err=%v, want %v", tags, err, ErrInvalidArgument)
		}
	}
}

func Test_Cache_ClearByTags_Matches_All_Or_Any_Requested_Tag(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) *testCache {
		t.Helper()

		tc := newTestCache(t, func(o *Options) { o.DirLevel = 2 })

		entries := map[string][]string{
			"ab":   {"a", "b"},
			"abc":  {"a", "b", "c"},
			"a":    {"a"},
			"c":    {"c"},
			"none": nil,
		}

		for key, tags := range entries {
			tc.mustSet(t, key, key)

			if _, err := tc.SetTags(key, tags); err != nil {
				t.Fatalf("SetTags(%q): %v", key, err)
			}
		}

		return tc
	}

	remaining := func(t *testing.T, tc *testCache) []string {
		t.Helper()

		var keys []string

		for _, key := range []string{"a", "ab", "abc", "c", "none"} {
			if tc.mustHas(t, key) {
				keys = append(keys, key)
			}
		}

		return keys
	}

	t.Run("Conjunction", func(t *testing.T) {
		t.Parallel()

		tc := setup(t)

		if err := tc.ClearByTags([]string{"a", "b"}, false); err != nil {
			t.Fatalf("ClearByTags: %v", err)
		}

		if diff := cmp.Diff([]string{"a", "c", "none"}, remaining(t, tc)); diff != "" {
			t.Fatalf("remaining mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Disjunction", func(t *testing.T) {
		t.Parallel()

		tc := setup(t)

		if err := tc.ClearByTags([]string{"b", "c"}, true); err != nil {
			t.Fatalf("ClearByTags: %v", err)
		}

		if diff := cmp.Diff([]string{"a", "none"}, remaining(t, tc)); diff != "" {
			t.Fatalf("remaining mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("NoTagsIsNoop", func(t *testing.T) {
		t.Parallel()

		tc := setup(t)

		if err := tc.ClearByTags(nil, true); err != nil {
			t.Fatalf("ClearByTags: %v", err)
		}

		if got := remaining(t, tc); len(got) != 5 {
			t.Fatalf("remaining=%v, want all 5", got)
		}
	})
}

func Test_Cache_ClearByTags_Skips_Tag_File_When_Removed_Concurrently(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, nil)
	tc.mustSet(t, "gone", "v")
	tc.mustSet(t, "kept", "v")

	for _, key := range []string{"gone", "kept"} {
		if _, err := tc.SetTags(key, []string{"x"}); err != nil {
			t.Fatalf("SetTags: %v", err)
		}
	}

	goneTag := tc.tagPath(t, "gone")
	tc.driver.beforeRead = func(path string) {
		if path == goneTag {
			_ = os.Remove(path)
		}
	}

	if err := tc.ClearByTags([]string{"x"}, false); err != nil {
		t.Fatalf("ClearByTags: %v", err)
	}

	if tc.mustHas(t, "kept") {
		t.Fatal("kept entry with matching tag survived")
	}

	// The other process only removed the tag file, so the entry stays.
	if !tc.mustHas(t, "gone") {
		t.Fatal("entry whose tag file vanished was removed")
	}
}

func Test_Cache_ClearByTags_Only_Touches_Current_Namespace(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, func(o *Options) { o.Namespace = "one" })
	tc.mustSet(t, "k", "v")

	if _, err := tc.SetTags("k", []string{"x"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}

	other, err := New(func() Options { o := tc.Options(); o.Namespace = "two"; return o }())
	if err != nil {
		t.Fatalf("New(other): %v", err)
	}

	if err := other.ClearByTags([]string{"x"}, false); err != nil {
		t.Fatalf("ClearByTags: %v", err)
	}

	if !tc.mustHas(t, "k") {
		t.Fatal("ClearByTags in namespace two removed an entry of namespace one")
	}
}

func Test_Cache_SetTags_Drops_Tag_File_When_Entry_Removed_Concurrently(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, nil)
	tc.mustSet(t, "k", "v")

	dataFile, tagFile := tc.dataPath(t, "k"), tc.tagPath(t, "k")
	tc.driver.beforeWrite = func(path string) {
		if path == tagFile {
			_ = os.Remove(dataFile)
		}
	}

	ok, err := tc.SetTags("k", []string{"t1"})
	if err != nil {
		t.Fatalf("SetTags: %v", err)
	}

	if ok {
		t.Fatal("SetTags=true, want false after the entry was removed")
	}

	if fileExists(t, tagFile) {
		t.Fatalf("tag file %s outlived its entry", tagFile)
	}
}
