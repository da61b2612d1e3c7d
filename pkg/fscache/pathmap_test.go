package fscache

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeebo/blake3"
)

func Test_PathMapper_Resolves_Shards_From_Key_Hash_When_DirLevel_Set(t *testing.T) {
	t.Parallel()

	m := newPathMapper()
	sum := blake3.Sum256([]byte("alice"))
	h := hex.EncodeToString(sum[:])

	got := m.resolve(fileSpecID{root: "/cache", namespace: "ns", separator: "-", key: "alice", dirLevel: 2})
	want := filepath.Join("/cache", "ns-"+h[0:2], "ns-"+h[2:4], "ns-alice")

	if got != want {
		t.Fatalf("resolve()=%q, want %q", got, want)
	}

	got = m.resolve(fileSpecID{root: "/cache", key: "alice", dirLevel: 0})
	if want := filepath.Join("/cache", "alice"); got != want {
		t.Fatalf("resolve(level 0)=%q, want %q", got, want)
	}
}

func Test_PathMapper_Is_Deterministic_And_Differs_Only_In_Depth_When_DirLevel_Changes(t *testing.T) {
	t.Parallel()

	m := newPathMapper()
	other := newPathMapper()

	var deepest []string

	for level := 0; level <= MaxDirLevel; level++ {
		id := fileSpecID{root: "/r", namespace: "app", separator: "_", key: "k-42", dirLevel: level}

		first := m.resolve(id)
		if again := other.resolve(id); again != first {
			t.Fatalf("level %d: %q != %q across mappers", level, first, again)
		}

		rel := strings.TrimPrefix(first, "/r/")
		parts := strings.Split(rel, "/")

		if len(parts) != level+1 {
			t.Fatalf("level %d: %d path components in %q, want %d", level, len(parts), rel, level+1)
		}

		if parts[len(parts)-1] != "app_k-42" {
			t.Fatalf("level %d: leaf=%q, want app_k-42", level, parts[len(parts)-1])
		}

		for _, shard := range parts[:level] {
			if !strings.HasPrefix(shard, "app_") || len(shard) != len("app_")+2 {
				t.Fatalf("level %d: bad shard %q", level, shard)
			}
		}

		deepest = parts
	}

	// Every shallower layout is a prefix of the deepest one.
	for level := 0; level <= MaxDirLevel; level++ {
		rel := strings.TrimPrefix(m.resolve(fileSpecID{root: "/r", namespace: "app", separator: "_", key: "k-42", dirLevel: level}), "/r/")
		want := strings.Join(append(append([]string(nil), deepest[:level]...), "app_k-42"), "/")

		if rel != want {
			t.Fatalf("level %d: %q, want %q", level, rel, want)
		}
	}
}

func Test_PathMapper_Skips_Hashing_When_Inputs_Unchanged(t *testing.T) {
	t.Parallel()

	calls := 0
	m := newPathMapper()
	m.sum = func(b []byte) [32]byte {
		calls++

		return blake3.Sum256(b)
	}

	id := fileSpecID{root: "/r", key: "k", dirLevel: 3}

	first := m.resolve(id)
	second := m.resolve(id)

	if first != second {
		t.Fatalf("memoized result %q != %q", second, first)
	}

	if calls != 1 {
		t.Fatalf("hash calls=%d after repeat, want 1", calls)
	}

	id.namespace = "ns"
	m.resolve(id)

	if calls != 2 {
		t.Fatalf("hash calls=%d after namespace change, want 2", calls)
	}

	id.dirLevel = 0
	m.resolve(id)

	if calls != 2 {
		t.Fatalf("hash calls=%d for level 0, want 2 (no hashing needed)", calls)
	}
}
