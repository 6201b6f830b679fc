// Package locking runs functions with mutual exclusion over string keys.
//
// The thumbnail store uses a Group to make "check existing tiers, decode,
// write tiers" atomic per cache key. MemLock covers goroutines within one
// process; FileLock adds an flock(2) lock file per key so that several
// processes sharing ~/.cache/thumbnails do not generate the same entry
// twice.
package locking

// Group runs functions with mutual exclusion over a set of keys.
type Group interface {
	// DoWithLock runs fn while holding the lock for key. The lock is
	// released when fn returns, including when it returns an error.
	DoWithLock(key string, fn func() error) error
}

// NoOpGroup performs no locking.
type NoOpGroup struct{}

// NewNoOpGroup creates a new NoOpGroup.
func NewNoOpGroup() *NoOpGroup {
	return &NoOpGroup{}
}

// DoWithLock runs fn immediately.
func (n *NoOpGroup) DoWithLock(_ string, fn func() error) error {
	return fn()
}
