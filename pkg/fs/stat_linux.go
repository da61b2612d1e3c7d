package fs

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

func statTimes(info os.FileInfo) (atime, ctime time.Time, err error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("Stat Sys=%T, want *syscall.Stat_t", info.Sys())
	}

	return time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec)), time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec)), nil
}
