package fs

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	// ErrWouldBlock is returned when a lock cannot be acquired without waiting.
	//
	// It is only returned by non-blocking acquisitions, when the lock is held
	// by another process.
	ErrWouldBlock = errors.New("lock would block")

	// errInodeMismatch is an internal sentinel indicating the file at path was
	// replaced or removed between open and flock. Callers should retry.
	errInodeMismatch = errors.New("inode mismatch")
)

// LockType selects a shared or exclusive flock.
type LockType int

const (
	// Shared allows concurrent holders and blocks exclusive holders.
	Shared LockType = unix.LOCK_SH
	// Exclusive blocks every other holder.
	Exclusive LockType = unix.LOCK_EX
)

func (lt LockType) String() string {
	if lt == Shared {
		return "shared"
	}

	return "exclusive"
}

// Locker takes flock(2) advisory locks on already-open files.
//
// flock is advisory and applies to an inode (an open file), not a pathname. All
// cooperating readers/writers must take the lock for it to have effect. The
// cache engine locks the entry files themselves: readers hold [Shared] while
// reading, writers hold [Exclusive] while truncating and writing.
//
// Locker has no internal mutable state beyond its dependencies and is safe for
// concurrent use. Custom [File] implementations must provide a real OS file
// descriptor via [File.Fd], and [File.Stat]/[FS.Stat] must return
// [os.FileInfo] whose Sys() is a *syscall.Stat_t for inode checking.
type Locker struct {
	fs    FS
	flock func(fd int, how int) error
}

// NewLocker creates a Locker that uses the given filesystem for path checks.
func NewLocker(fs FS) *Locker {
	return &Locker{
		fs:    fs,
		flock: unix.Flock,
	}
}

// Lock acquires a lock of type lt on f.
//
// With nonBlocking set, it returns [ErrWouldBlock] immediately if another
// process holds a conflicting lock. Otherwise it blocks in the kernel with no
// timeout.
func (l *Locker) Lock(f File, lt LockType, nonBlocking bool) error {
	flags := int(lt)
	if nonBlocking {
		flags |= unix.LOCK_NB
	}

	err := flockRetryEINTR(l.flock, int(f.Fd()), flags)
	if err == nil {
		return nil
	}

	if isWouldBlock(err) {
		return ErrWouldBlock
	}

	return fmt.Errorf("flock %s: %w", lt, err)
}

// Unlock releases any lock held on f. Closing f also releases it.
func (l *Locker) Unlock(f File) error {
	err := flockRetryEINTR(l.flock, int(f.Fd()), unix.LOCK_UN)
	if err != nil {
		return fmt.Errorf("unlocking: %w", err)
	}

	return nil
}

// LockPath locks f and verifies that f still refers to the file currently at
// path.
//
// Why: flock locks by inode, not pathname. Between opening path and acquiring
// the lock, another process may delete the file (a bulk clear) or replace it
// (an unlocked atomic write). Writing into such an orphaned inode would be
// lost silently. On mismatch LockPath unlocks and returns errInodeMismatch so
// the caller can reopen and retry.
func (l *Locker) LockPath(path string, f File, lt LockType, nonBlocking bool) error {
	if err := l.Lock(f, lt, nonBlocking); err != nil {
		return err
	}

	match, err := l.inodeMatchesPath(path, f)
	if err != nil {
		_ = l.Unlock(f)
		if errors.Is(err, os.ErrNotExist) {
			return errInodeMismatch
		}

		return fmt.Errorf("verifying inode match: %w", err)
	}

	if !match {
		_ = l.Unlock(f)
		return errInodeMismatch
	}

	return nil
}

// inodeMatchesPath compares (dev,inode) of the open fd (via File.Stat) to the
// current (dev,inode) at path (via [FS.Stat]).
//
// This only protects the open→lock window. If the file at path is replaced
// after this check succeeds, the lock no longer guards the pathname.
func (l *Locker) inodeMatchesPath(path string, f File) (bool, error) {
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}

	openSys, ok := openInfo.Sys().(*syscall.Stat_t)
	if !ok || openSys == nil {
		return false, fmt.Errorf("file.Stat Sys=%T, want *syscall.Stat_t", openInfo.Sys())
	}

	pathInfo, err := l.fs.Stat(path)
	if err != nil {
		return false, err
	}

	pathSys, ok := pathInfo.Sys().(*syscall.Stat_t)
	if !ok || pathSys == nil {
		return false, fmt.Errorf("fs.Stat Sys=%T, want *syscall.Stat_t", pathInfo.Sys())
	}

	return openSys.Dev == pathSys.Dev && openSys.Ino == pathSys.Ino, nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}

// flockRetryEINTR wraps flock, retrying on EINTR.
//
// EINTR means the syscall was interrupted by a signal before it could complete
// (SIGCHLD, SIGWINCH, timers). The syscall didn't fail, it needs to be retried.
// Retries are capped so a pathological signal storm cannot spin forever.
func flockRetryEINTR(flock func(fd int, how int) error, fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
