package fscache

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by fscache operations.
//
// Use [errors.Is] to check them:
//
//	if errors.Is(err, fscache.ErrNotFound) { ... }
var (
	// ErrInvalidArgument indicates invalid input or configuration.
	//
	// Common causes: key not matching [Options.KeyPattern], key longer than
	// [Capabilities.MaxKeyLength], empty namespace or prefix passed to a bulk
	// clear, a namespace too long to leave room for any key.
	ErrInvalidArgument = errors.New("fscache: invalid argument")

	// ErrNotFound indicates the entry does not exist or has expired.
	ErrNotFound = errors.New("fscache: not found")

	// ErrCASMismatch indicates the token passed to [Cache.CheckAndSet] no
	// longer matches the stored entry.
	ErrCASMismatch = errors.New("fscache: cas token mismatch")

	// ErrIO indicates a filesystem failure that is not explained by a
	// concurrent removal, such as permission denied or disk full.
	ErrIO = errors.New("fscache: io failure")

	// ErrClosed indicates the [Cache] has been closed.
	//
	// This is a programming error.
	ErrClosed = errors.New("fscache: closed")
)

// Error is the error type returned by all public [Cache] methods.
//
// The underlying message appears first, followed by context:
//
//	fscache: not found (op=get key=alice)
//
// Use [errors.As] to extract the fields:
//
//	var cErr *fscache.Error
//	if errors.As(err, &cErr) {
//	    fmt.Println(cErr.Op, cErr.Key)
//	}
type Error struct {
	// Op is the public operation that failed ("get", "set", "clear-ns", ...).
	Op string

	// Key is the requested key, if the operation is keyed.
	Key string

	// Path is the file or directory involved, if known.
	Path string

	// Err is the underlying cause. It wraps one of the package sentinels.
	Err error
}

// Error formats as "<cause> (op=X key=Y path=Z)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	suffix := e.suffix()

	if suffix == "" {
		return cause
	}

	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

// String implements fmt.Stringer.
func (e *Error) String() string {
	return e.Error()
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func (e *Error) suffix() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}

	if e.Key != "" {
		parts = append(parts, "key="+e.Key)
	}

	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}

	if len(parts) == 0 {
		return ""
	}

	return "(" + strings.Join(parts, " ") + ")"
}

// withContext attaches operation context at API boundaries and returns *Error.
// If err is already *Error, missing fields are filled in-place.
func withContext(err error, op, key, path string) error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	if errors.As(err, &existing) {
		if existing.Op == "" {
			existing.Op = op
		}

		if existing.Key == "" {
			existing.Key = key
		}

		if existing.Path == "" {
			existing.Path = path
		}

		return existing
	}

	return &Error{Op: op, Key: key, Path: path, Err: err}
}

func ioError(err error) error {
	if err == nil || errors.Is(err, ErrIO) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrIO, err)
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
