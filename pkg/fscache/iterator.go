package fscache

import (
	"iter"
	"path/filepath"
	"strings"
)

// Keys iterates the keys of the current namespace, including ones that have
// expired but were not cleaned up yet. Files are listed lazily, one
// directory at a time, so keys written or removed during iteration may or
// may not be seen.
//
// A listing failure is yielded as ("", err); iteration continues if the
// caller keeps going.
//
//	for key, err := range c.Keys() {
//	    if err != nil { ... }
//	    v, err := c.Get(key)
//	}
func (c *Cache) Keys() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s, err := c.begin()
		if err != nil {
			yield("", withContext(err, "keys", "", ""))

			return
		}

		nsPrefix := s.opts.nsPrefix()
		suffix := "." + s.opts.Suffix

		for path, err := range s.scan(s.filePattern("", escapeGlob(s.opts.Suffix))) {
			if err != nil {
				if !yield("", withContext(err, "keys", "", "")) {
					return
				}

				continue
			}

			name := filepath.Base(path)
			key := strings.TrimSuffix(strings.TrimPrefix(name, nsPrefix), suffix)

			if !yield(key, nil) {
				return
			}
		}
	}
}
