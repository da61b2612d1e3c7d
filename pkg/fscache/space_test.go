package fscache

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/fscache/pkg/fs"
)

type statfsCounter struct {
	*fs.Driver

	totals atomic.Int32
}

func (d *statfsCounter) TotalBytes(dir string) (uint64, error) {
	d.totals.Add(1)

	return d.Driver.TotalBytes(dir)
}

func Test_Cache_TotalSpace_Is_Cached_Until_CacheDir_Changes(t *testing.T) {
	t.Parallel()

	driver := &statfsCounter{Driver: fs.NewDriver(fs.NewReal())}

	opts := DefaultOptions()
	opts.CacheDir = t.TempDir()
	opts.Driver = driver

	c, err := New(opts)
	require.NoError(t, err)

	first, err := c.TotalSpace()
	require.NoError(t, err)
	require.Positive(t, first)

	again, err := c.TotalSpace()
	require.NoError(t, err)
	require.Equal(t, first, again)
	require.EqualValues(t, 1, driver.totals.Load())

	other := t.TempDir()
	require.NoError(t, c.UpdateOptions(func(o *Options) { o.CacheDir = other }))

	_, err = c.TotalSpace()
	require.NoError(t, err)
	require.EqualValues(t, 2, driver.totals.Load())

	avail, err := c.AvailableSpace()
	require.NoError(t, err)
	require.LessOrEqual(t, avail, first)
}
