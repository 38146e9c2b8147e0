package cache

// MirrorLen reports how many entries c holds in memory.
func MirrorLen(c *Cache) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mirror)
}
