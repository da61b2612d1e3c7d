package fscache

import (
	"os"
	"time"

	"github.com/calvinalkan/fscache/pkg/fs"
)

// Driver is the file I/O layer used by [Cache]. [*fs.Driver] implements it.
//
// Delete must return an error for which errors.Is(err, os.ErrNotExist)
// holds when the file was already gone, so a concurrent removal can be told
// apart from a genuine failure.
type Driver interface {
	Exists(path string) (bool, error)
	Read(path string, lock, nonBlocking bool) (data []byte, wouldBlock bool, err error)
	Write(path string, data []byte, opts fs.WriteOptions) (wouldBlock bool, err error)
	Delete(path string) error

	ModTime(path string) (time.Time, error)
	AccessTime(path string) (time.Time, error)
	ChangeTime(path string) (time.Time, error)
	Size(path string) (int64, error)
	ClearStatCache()

	AvailableBytes(dir string) (uint64, error)
	TotalBytes(dir string) (uint64, error)

	CreateDirectory(path string, opts fs.DirOptions) error
	ReadDir(path string) ([]os.DirEntry, error)
	RemoveDir(path string) error
}

var _ Driver = (*fs.Driver)(nil)
