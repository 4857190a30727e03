// Package cache holds the short-lived status snapshots and the
// content-addressed diff cache shared by every request for a repository.
package cache

import (
	"time"

	"gitpanel/shared/types"
)

type statusEntry struct {
	status *shared.RepoStatus
	at     time.Time
	stale  bool
	rev    uint64
}

// StatusCache keeps the latest status per repository.
// It is not safe for concurrent use; callers hold the registry lock.
type StatusCache struct {
	entries map[string]statusEntry
	now     func() time.Time
	rev     uint64
}

func NewStatusCache() *StatusCache {
	return &StatusCache{
		entries: make(map[string]statusEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached status regardless of age.
func (c *StatusCache) Get(repoID string) (*shared.RepoStatus, bool) {
	e, ok := c.entries[repoID]
	if !ok {
		return nil, false
	}
	return e.status.Clone(), true
}

// Fresh returns a copy of the cached status if it is younger than ttl and
// has not been invalidated.
func (c *StatusCache) Fresh(repoID string, ttl time.Duration) (*shared.RepoStatus, bool) {
	e, ok := c.entries[repoID]
	if !ok || e.stale || c.now().Sub(e.at) >= ttl {
		return nil, false
	}
	return e.status.Clone(), true
}

// Set stores a copy of status, stamped now.
func (c *StatusCache) Set(status *shared.RepoStatus) {
	c.rev++
	c.entries[status.RepoID] = statusEntry{status: status.Clone(), at: c.now(), rev: c.rev}
}

// Snapshot returns a copy of the cached status together with the revision
// it was read at, for a later Update.
func (c *StatusCache) Snapshot(repoID string) (*shared.RepoStatus, uint64, bool) {
	e, ok := c.entries[repoID]
	if !ok {
		return nil, 0, false
	}
	return e.status.Clone(), e.rev, true
}

// Update replaces the cached status only if the entry is still at rev. The
// entry keeps its timestamp and staleness, so an update never makes a
// snapshot look fresher than the git call that produced it.
func (c *StatusCache) Update(status *shared.RepoStatus, rev uint64) bool {
	e, ok := c.entries[status.RepoID]
	if !ok || e.rev != rev {
		return false
	}
	c.rev++
	e.status = status.Clone()
	e.rev = c.rev
	c.entries[status.RepoID] = e
	return true
}

// Invalidate marks the entry stale. It still serves superseded jobs.
func (c *StatusCache) Invalidate(repoID string) {
	if e, ok := c.entries[repoID]; ok {
		e.stale = true
		c.entries[repoID] = e
	}
}

// Remove drops the entry of a closed repository.
func (c *StatusCache) Remove(repoID string) {
	delete(c.entries, repoID)
}
