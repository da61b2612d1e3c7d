package fs

import (
	"errors"
	"os"
)

// UnlinkError is returned by [Driver.Delete] when removing a file fails.
//
// Use [UnlinkError.NotExist] (or errors.Is(err, os.ErrNotExist)) to tell a
// concurrent removal by another process apart from a genuine failure such as
// EACCES or EROFS.
type UnlinkError struct {
	Path string
	Err  error
}

func (e *UnlinkError) Error() string {
	return "unlink " + e.Path + ": " + errMessage(e.Err)
}

// Unwrap returns the underlying error.
func (e *UnlinkError) Unwrap() error {
	return e.Err
}

// NotExist reports whether the file was already gone when the unlink ran.
func (e *UnlinkError) NotExist() bool {
	return errors.Is(e.Err, os.ErrNotExist)
}

// MetadataError is returned by the [Driver] metadata accessors (ModTime,
// AccessTime, ChangeTime, Size).
type MetadataError struct {
	Op   string
	Path string
	Err  error
}

func (e *MetadataError) Error() string {
	return e.Op + " " + e.Path + ": " + errMessage(e.Err)
}

// Unwrap returns the underlying error.
func (e *MetadataError) Unwrap() error {
	return e.Err
}

func errMessage(err error) string {
	// os.PathError repeats the path; show only the cause.
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}

	if err == nil {
		return "unknown error"
	}

	return err.Error()
}
