package fscache

// TotalSpace returns the size in bytes of the filesystem holding the cache
// directory. The value is cached until CacheDir changes.
func (c *Cache) TotalSpace() (uint64, error) {
	s, err := c.begin()
	if err != nil {
		return 0, withContext(err, "total-space", "", "")
	}

	c.mu.RLock()
	total, ok := c.totalSpace, c.haveTotal
	c.mu.RUnlock()

	if ok {
		return total, nil
	}

	total, err = s.driver.TotalBytes(s.opts.CacheDir)
	if err != nil {
		return 0, withContext(ioError(err), "total-space", "", s.opts.CacheDir)
	}

	c.mu.Lock()
	// Drop the result if CacheDir changed while we were asking.
	if c.opts.CacheDir == s.opts.CacheDir {
		c.totalSpace, c.haveTotal = total, true
	}
	c.mu.Unlock()

	return total, nil
}

// AvailableSpace returns the bytes available to unprivileged users on the
// filesystem holding the cache directory.
func (c *Cache) AvailableSpace() (uint64, error) {
	s, err := c.begin()
	if err != nil {
		return 0, withContext(err, "available-space", "", "")
	}

	avail, err := s.driver.AvailableBytes(s.opts.CacheDir)
	if err != nil {
		return 0, withContext(ioError(err), "available-space", "", s.opts.CacheDir)
	}

	return avail, nil
}
