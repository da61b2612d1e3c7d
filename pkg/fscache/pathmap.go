package fscache

import (
	"encoding/hex"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"
)

// fileSpecID is everything a file spec depends on.
type fileSpecID struct {
	root      string
	namespace string
	separator string
	key       string
	dirLevel  int
}

// pathMapper maps keys to file specs (paths without suffix) and remembers
// the last result. A single operation resolves the same key several times
// (existence check, read, write, tag file), and hashing dominates the cost.
type pathMapper struct {
	mu       sync.Mutex
	last     fileSpecID
	lastSpec string
	hasLast  bool

	sum func([]byte) [32]byte
}

func newPathMapper() *pathMapper {
	return &pathMapper{sum: blake3.Sum256}
}

// resolve returns root/[prefix+XX/]*prefix+key where prefix is namespace plus
// separator and each XX is one byte of the key hash, dirLevel levels deep.
func (m *pathMapper) resolve(id fileSpecID) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasLast && m.last == id {
		return m.lastSpec
	}

	prefix := ""
	if id.namespace != "" {
		prefix = id.namespace + id.separator
	}

	parts := make([]string, 0, id.dirLevel+2)
	parts = append(parts, id.root)

	if id.dirLevel > 0 {
		sum := m.sum([]byte(id.key))
		shards := hex.EncodeToString(sum[:id.dirLevel])

		for i := 0; i < len(shards); i += 2 {
			parts = append(parts, prefix+shards[i:i+2])
		}
	}

	parts = append(parts, prefix+id.key)

	m.last = id
	m.lastSpec = filepath.Join(parts...)
	m.hasLast = true

	return m.lastSpec
}
