// Package fscache provides a filesystem-backed cache with per-entry files.
//
// Every entry is stored as one file under a root directory, optionally
// sharded into a fixed-depth tree of hashed subdirectories. Entries carry an
// expiration header and may have a companion tag file. Multiple processes can
// share the same directory tree without a coordinator: per-file flock(2)
// advisory locks are the only synchronization.
//
// # Basic Usage
//
//	opts := fscache.DefaultOptions()
//	opts.CacheDir = "/var/cache/myapp"
//	opts.Namespace = "users"
//	opts.TTL = 10 * time.Minute
//
//	c, err := fscache.New(opts)
//	if err != nil {
//	    // configuration errors wrap [ErrInvalidArgument]
//	}
//
//	err = c.Set("alice", []byte("serialized value"))
//
//	v, err := c.Get("alice")
//	if errors.Is(err, fscache.ErrNotFound) {
//	    // absent or expired
//	}
//
// # On-disk Layout
//
// With namespace "ns", separator "-" and DirLevel 2, key "k" is stored as
//
//	<root>/ns-XX/ns-YY/ns-k.dat
//	<root>/ns-XX/ns-YY/ns-k.tag
//
// where XX and YY are consecutive bytes (hex) of the BLAKE3 hash of the key.
// Entry files hold "##<unix-expiry>##\n" followed by the payload; the expiry
// is empty for entries without a TTL.
//
// # Concurrency
//
// A [Cache] is safe for concurrent use. Across processes there is no global
// ordering: bulk operations (Clear*, Flush) list files and then act on them,
// and a file removed by someone else in between counts as removed. Only
// failures against files that still exist are reported.
//
// Batch reads and writes ([Cache.GetMany], [Cache.SetMany]) try non-blocking
// locks round-robin while more than one item is pending and fall back to a
// single blocking wait for the last one.
//
// # Error Handling
//
// Errors returned by public methods are *[Error] values carrying the
// operation and key, and wrap one of the sentinels:
//
//   - [ErrInvalidArgument]: bad key, empty namespace/prefix, invalid options
//   - [ErrNotFound]: entry absent or expired
//   - [ErrCASMismatch]: [Cache.CheckAndSet] token no longer matches
//   - [ErrIO]: filesystem failure
//   - [ErrClosed]: the cache was closed
//
// Failing to delete an expired entry never fails the read that found it.
// Such failures go to [Options.OnCleanupError], or are logged at warn level.
package fscache
