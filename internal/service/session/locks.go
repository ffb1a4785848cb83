package session

import "sync"

// connectorLocks serializes lifecycle operations per connector. Locks are
// created lazily on first use and kept forever; the fleet is small enough
// that the map never needs eviction.
type connectorLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newConnectorLocks() *connectorLocks {
	return &connectorLocks{locks: make(map[int]*sync.Mutex)}
}

func (c *connectorLocks) get(connectorID int) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[connectorID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[connectorID] = lock
	}
	return lock
}
