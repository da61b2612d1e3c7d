package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// maxReplacedRetries bounds how often a locked write reopens a file that keeps
// being replaced or removed by other processes while we wait for the lock.
const maxReplacedRetries = 64

const defaultFilePerm = 0o666

// processUmask is read once at startup. Reading the umask means setting it,
// which is only safe before other goroutines create files.
var processUmask = readUmask()

func readUmask() os.FileMode {
	mask := unix.Umask(0)
	unix.Umask(mask)

	return os.FileMode(mask)
}

// WriteOptions configures [Driver.Write].
type WriteOptions struct {
	// Perm is the file mode to set on the written file. Zero means 0666 filtered
	// by the process umask at creation time, and no explicit chmod.
	Perm os.FileMode

	// Umask is removed from Perm before it is applied. When non-zero the mode
	// is always set explicitly, independent of the process umask.
	Umask os.FileMode

	// Lock takes an exclusive flock on the file while truncating and writing.
	// Without Lock the file is replaced atomically (temp file + rename).
	Lock bool

	// NonBlocking makes a contended lock return wouldBlock=true instead of
	// waiting. Only meaningful with Lock.
	NonBlocking bool
}

func (o WriteOptions) mode() (os.FileMode, bool) {
	if o.Perm == 0 && o.Umask == 0 {
		return defaultFilePerm, false
	}

	perm := o.Perm
	if perm == 0 {
		perm = defaultFilePerm
	}

	return perm &^ o.Umask, true
}

// DirOptions configures [Driver.CreateDirectory].
type DirOptions struct {
	// Perm is the requested directory mode, before Umask is removed.
	Perm os.FileMode

	// Umask is removed from Perm.
	Umask os.FileMode

	// Recursive creates missing parents, like mkdir -p.
	Recursive bool

	// Exact chmods the created directory to Perm &^ Umask so the result does
	// not depend on the process umask. Parents created by a recursive call
	// still get the process umask applied.
	Exact bool
}

// Driver implements the locked file primitives consumed by the cache engine:
// existence checks, locked reads and writes with non-blocking support, unlink
// with distinguishable errors, metadata accessors and directory management.
//
// Driver is safe for concurrent use. It coordinates with other processes only
// through per-file flock; there is no global lock.
type Driver struct {
	fs     FS
	locker *Locker
}

// NewDriver returns a Driver operating on fsys. Panics if fsys is nil.
func NewDriver(fsys FS) *Driver {
	if fsys == nil {
		panic("fs is nil")
	}

	return &Driver{fs: fsys, locker: NewLocker(fsys)}
}

// Exists reports whether path exists. See [FS.Exists].
func (d *Driver) Exists(path string) (bool, error) {
	return d.fs.Exists(path)
}

// Read returns the content of path.
//
// With lock set it holds a shared flock while reading. With nonBlocking set
// and the file exclusively locked by someone else, it returns wouldBlock=true
// and no data. Missing or unreadable files are errors.
func (d *Driver) Read(path string, lock, nonBlocking bool) (data []byte, wouldBlock bool, err error) {
	if !lock {
		data, err = d.fs.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("read: %w", err)
		}

		return data, false, nil
	}

	f, err := d.fs.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("read: %w", err)
	}

	lockErr := d.locker.Lock(f, Shared, nonBlocking)
	if errors.Is(lockErr, ErrWouldBlock) {
		return nil, true, closeFile(path, f)
	}

	if lockErr != nil {
		return nil, false, errors.Join(fmt.Errorf("read %s: %w", path, lockErr), closeFile(path, f))
	}

	data, readErr := io.ReadAll(f)
	if readErr != nil {
		readErr = fmt.Errorf("read %s: %w", path, readErr)
	}

	return data, false, errors.Join(readErr, d.release(path, f))
}

// Write stores data at path, creating the file if needed.
//
// See [WriteOptions] for locking and permission behavior. wouldBlock is only
// ever true for a locked, non-blocking write that found the file locked; in
// that case nothing was written.
func (d *Driver) Write(path string, data []byte, opts WriteOptions) (wouldBlock bool, err error) {
	mode, explicit := opts.mode()

	if !opts.Lock {
		// The temp file is created 0600 and an existing target keeps its
		// mode, so a new file needs the mode a plain create would have given.
		existed := true
		if !explicit {
			var err error

			existed, err = d.fs.Exists(path)
			if err != nil {
				return false, fmt.Errorf("write: %w", err)
			}
		}

		if err := d.fs.WriteFileAtomic(path, data); err != nil {
			return false, fmt.Errorf("write %s: %w", path, err)
		}

		if !existed {
			mode, explicit = defaultFilePerm&^processUmask, true
		}

		if explicit {
			if err := d.fs.Chmod(path, mode); err != nil {
				return false, fmt.Errorf("write: %w", err)
			}
		}

		return false, nil
	}

	for range maxReplacedRetries {
		f, err := d.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE, mode)
		if err != nil {
			return false, fmt.Errorf("write: %w", err)
		}

		lockErr := d.locker.LockPath(path, f, Exclusive, opts.NonBlocking)
		if errors.Is(lockErr, errInodeMismatch) {
			if err := closeFile(path, f); err != nil {
				return false, err
			}

			continue
		}

		if errors.Is(lockErr, ErrWouldBlock) {
			return true, closeFile(path, f)
		}

		if lockErr != nil {
			return false, errors.Join(fmt.Errorf("write %s: %w", path, lockErr), closeFile(path, f))
		}

		writeErr := writeLocked(path, f, data, mode, explicit)

		return false, errors.Join(writeErr, d.release(path, f))
	}

	return false, fmt.Errorf("write %s: file kept being replaced while acquiring lock", path)
}

func writeLocked(path string, f File, data []byte, mode os.FileMode, explicit bool) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate %s: %w", path, err)
	}

	n, err := f.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}

	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if explicit {
		if err := f.Chmod(mode); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
	}

	return nil
}

// Delete removes the file at path.
//
// Failures are returned as *[UnlinkError]; check [UnlinkError.NotExist] to
// detect a file that another process removed first.
func (d *Driver) Delete(path string) error {
	if err := d.fs.Remove(path); err != nil {
		return &UnlinkError{Path: path, Err: err}
	}

	return nil
}

// ModTime returns the last modification time of path.
func (d *Driver) ModTime(path string) (time.Time, error) {
	info, err := d.fs.Stat(path)
	if err != nil {
		return time.Time{}, &MetadataError{Op: "mtime", Path: path, Err: err}
	}

	return info.ModTime(), nil
}

// AccessTime returns the last access time of path.
func (d *Driver) AccessTime(path string) (time.Time, error) {
	info, err := d.fs.Stat(path)
	if err != nil {
		return time.Time{}, &MetadataError{Op: "atime", Path: path, Err: err}
	}

	atime, _, err := statTimes(info)
	if err != nil {
		return time.Time{}, &MetadataError{Op: "atime", Path: path, Err: err}
	}

	return atime, nil
}

// ChangeTime returns the inode change time of path.
func (d *Driver) ChangeTime(path string) (time.Time, error) {
	info, err := d.fs.Stat(path)
	if err != nil {
		return time.Time{}, &MetadataError{Op: "ctime", Path: path, Err: err}
	}

	_, ctime, err := statTimes(info)
	if err != nil {
		return time.Time{}, &MetadataError{Op: "ctime", Path: path, Err: err}
	}

	return ctime, nil
}

// Size returns the size of path in bytes.
func (d *Driver) Size(path string) (int64, error) {
	info, err := d.fs.Stat(path)
	if err != nil {
		return 0, &MetadataError{Op: "size", Path: path, Err: err}
	}

	return info.Size(), nil
}

// ClearStatCache is a no-op: [os.Stat] does not cache results.
func (d *Driver) ClearStatCache() {}

// AvailableBytes returns the bytes available to unprivileged users on the
// filesystem containing dir.
func (d *Driver) AvailableBytes(dir string) (uint64, error) {
	avail, _, err := statfs(dir)
	if err != nil {
		return 0, &MetadataError{Op: "statfs", Path: dir, Err: err}
	}

	return avail, nil
}

// TotalBytes returns the total size of the filesystem containing dir.
func (d *Driver) TotalBytes(dir string) (uint64, error) {
	_, total, err := statfs(dir)
	if err != nil {
		return 0, &MetadataError{Op: "statfs", Path: dir, Err: err}
	}

	return total, nil
}

// CreateDirectory creates the directory at path. A directory created
// concurrently by another process is not an error.
func (d *Driver) CreateDirectory(path string, opts DirOptions) error {
	mode := opts.Perm &^ opts.Umask

	if opts.Recursive {
		if err := d.fs.MkdirAll(path, mode); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
	} else if err := d.fs.Mkdir(path, mode); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}

		return fmt.Errorf("mkdir: %w", err)
	}

	if opts.Exact {
		if err := d.fs.Chmod(path, mode); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
	}

	return nil
}

// ReadDir lists the entries of the directory at path.
func (d *Driver) ReadDir(path string) ([]os.DirEntry, error) {
	return d.fs.ReadDir(path)
}

// RemoveDir removes the empty directory at path.
func (d *Driver) RemoveDir(path string) error {
	return d.fs.Remove(path)
}

func (d *Driver) release(path string, f File) error {
	unlockErr := d.locker.Unlock(f)
	if unlockErr != nil {
		unlockErr = fmt.Errorf("%s: %w", path, unlockErr)
	}

	return errors.Join(unlockErr, closeFile(path, f))
}

func closeFile(path string, f File) error {
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}
