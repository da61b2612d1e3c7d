package fscache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// MaxDirLevel is the deepest supported shard tree.
	MaxDirLevel = 16

	// DefaultKeyPattern restricts keys to characters that are safe in file
	// names on every common filesystem.
	DefaultKeyPattern = `(?i)^[a-z0-9_+\-]*$`
)

// Options configures a [Cache]. Start from [DefaultOptions]; the zero value
// has no suffixes and fails validation.
type Options struct {
	// CacheDir is the root directory. It must exist and be readable and
	// writable. Empty means [os.TempDir]. [New] resolves it to an absolute
	// path without symlinks.
	CacheDir string

	// Namespace scopes all keys. Empty means no namespace.
	Namespace string

	// NamespaceSeparator joins Namespace and key in file and shard names.
	NamespaceSeparator string

	// DirLevel is the number of hashed shard directories between CacheDir
	// and the entry file (0..16). Each level fans out to at most 256
	// children.
	DirLevel int

	// Suffix is the entry file extension, without the dot.
	Suffix string

	// TagSuffix is the tag file extension, without the dot.
	TagSuffix string

	// TTL is the lifetime of newly written entries. Zero means entries never
	// expire. Precision is one second; sub-second values round up.
	TTL time.Duration

	// FilePermission is the mode for entry and tag files. Zero means 0666
	// filtered by the process umask. Must be owner readable and writable and
	// must not be executable.
	FilePermission os.FileMode

	// DirPermission is the mode for shard directories. Zero means 0775
	// filtered by the process umask. Must be owner rwx.
	DirPermission os.FileMode

	// Umask is removed from FilePermission and DirPermission. It must not
	// remove any owner bit.
	Umask os.FileMode

	// FileLocking enables flock(2) on entry and tag files. Disabled writes
	// replace files atomically instead.
	FileLocking bool

	// ClearStatCache asks the [Driver] to drop cached stat results before
	// each operation.
	ClearStatCache bool

	// NoAtime removes access time from [Metadata] and
	// [Capabilities.SupportedMetadata].
	NoAtime bool

	// NoCtime removes change time from [Metadata] and
	// [Capabilities.SupportedMetadata].
	NoCtime bool

	// KeyPattern is a regular expression every key must match. Empty
	// disables the check.
	KeyPattern string

	// Logger receives debug output for tolerated races and warnings for
	// failed cleanups. Nil means [slog.Default].
	Logger *slog.Logger

	// OnCleanupError, if set, receives failures to delete expired entries
	// instead of the logger. It must be safe for concurrent use.
	OnCleanupError func(error)

	// Now returns the current time. Nil means [time.Now].
	Now func() time.Time

	// Driver performs all file I/O. Nil means [fs.NewDriver] on the real
	// filesystem.
	Driver Driver
}

// DefaultOptions returns the options used when nothing else is configured.
func DefaultOptions() Options {
	return Options{
		NamespaceSeparator: "-",
		DirLevel:           1,
		Suffix:             "dat",
		TagSuffix:          "tag",
		FileLocking:        true,
		ClearStatCache:     true,
		KeyPattern:         DefaultKeyPattern,
	}
}

// Validate reports the first invalid setting. The error wraps
// [ErrInvalidArgument].
//
// Validate checks CacheDir on disk; it is the only check that performs I/O.
func (o Options) Validate() error {
	if o.DirLevel < 0 || o.DirLevel > MaxDirLevel {
		return invalidArgument("DirLevel %d must be between 0 and %d", o.DirLevel, MaxDirLevel)
	}

	if o.Suffix == "" {
		return invalidArgument("Suffix is required")
	}

	if o.TagSuffix == "" {
		return invalidArgument("TagSuffix is required")
	}

	if o.Suffix == o.TagSuffix {
		return invalidArgument("Suffix and TagSuffix must differ, both are %q", o.Suffix)
	}

	if o.TTL < 0 {
		return invalidArgument("TTL %s must not be negative", o.TTL)
	}

	if err := validateFilePermission(o.FilePermission); err != nil {
		return err
	}

	if err := validateDirPermission(o.DirPermission); err != nil {
		return err
	}

	if o.Umask&0o700 != 0 {
		return invalidArgument("Umask %04o removes owner permissions: files would be unreadable, unwritable or unlistable", o.Umask)
	}

	if o.KeyPattern != "" {
		if _, err := regexp.Compile(o.KeyPattern); err != nil {
			return invalidArgument("KeyPattern: %v", err)
		}
	}

	return validateCacheDir(o.cacheDir())
}

func validateFilePermission(perm os.FileMode) error {
	if perm == 0 {
		return nil
	}

	if perm&0o600 != 0o600 {
		return invalidArgument("FilePermission %04o must be owner readable and writable", perm)
	}

	if perm&0o111 != 0 {
		return invalidArgument("FilePermission %04o must not be executable", perm)
	}

	return nil
}

func validateDirPermission(perm os.FileMode) error {
	if perm == 0 {
		return nil
	}

	if perm&0o700 != 0o700 {
		return invalidArgument("DirPermission %04o must be owner readable, writable and executable", perm)
	}

	return nil
}

func validateCacheDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return invalidArgument("CacheDir %q: %v", dir, errors.Unwrap(err))
	}

	if !info.IsDir() {
		return invalidArgument("CacheDir %q is not a directory", dir)
	}

	if err := unix.Access(dir, unix.R_OK|unix.X_OK); err != nil {
		return invalidArgument("CacheDir %q is not readable: %v", dir, err)
	}

	if err := unix.Access(dir, unix.W_OK); err != nil {
		return invalidArgument("CacheDir %q is not writable: %v", dir, err)
	}

	return nil
}

func (o Options) cacheDir() string {
	if o.CacheDir == "" {
		return os.TempDir()
	}

	return o.CacheDir
}

// nsPrefix is the namespace plus separator, or "" without a namespace.
func (o Options) nsPrefix() string {
	if o.Namespace == "" {
		return ""
	}

	return o.Namespace + o.NamespaceSeparator
}

func resolveCacheDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving CacheDir: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving CacheDir: %w", err)
	}

	return resolved, nil
}

// optionField identifies an [Options] field for change tracking.
type optionField uint32

const (
	fieldCacheDir optionField = 1 << iota
	fieldNamespace
	fieldNamespaceSeparator
	fieldSuffix
	fieldTagSuffix
	fieldNoAtime
	fieldNoCtime
	fieldKeyPattern
)

// capabilityFields are the fields [Capabilities] are derived from.
const capabilityFields = fieldNamespace | fieldNamespaceSeparator | fieldSuffix |
	fieldTagSuffix | fieldNoAtime | fieldNoCtime

var optionFieldNames = [...]string{
	"CacheDir", "Namespace", "NamespaceSeparator", "Suffix",
	"TagSuffix", "NoAtime", "NoCtime", "KeyPattern",
}

func (f optionField) String() string {
	var names []string

	for i, name := range optionFieldNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}

	return strings.Join(names, ",")
}

func (f optionField) has(g optionField) bool {
	return f&g != 0
}

func changedFields(prev, next Options) optionField {
	var changed optionField

	if prev.CacheDir != next.CacheDir {
		changed |= fieldCacheDir
	}

	if prev.Namespace != next.Namespace {
		changed |= fieldNamespace
	}

	if prev.NamespaceSeparator != next.NamespaceSeparator {
		changed |= fieldNamespaceSeparator
	}

	if prev.Suffix != next.Suffix {
		changed |= fieldSuffix
	}

	if prev.TagSuffix != next.TagSuffix {
		changed |= fieldTagSuffix
	}

	if prev.NoAtime != next.NoAtime {
		changed |= fieldNoAtime
	}

	if prev.NoCtime != next.NoCtime {
		changed |= fieldNoCtime
	}

	if prev.KeyPattern != next.KeyPattern {
		changed |= fieldKeyPattern
	}

	return changed
}
