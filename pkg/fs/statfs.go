//go:build linux || darwin

package fs

import "golang.org/x/sys/unix"

// statfs returns (available, total) bytes of the filesystem containing dir.
func statfs(dir string) (avail, total uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, 0, err
	}

	bsize := uint64(st.Bsize)

	return st.Bavail * bsize, st.Blocks * bsize, nil
}
