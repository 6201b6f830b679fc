package locking

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"

	"thumbcache/internal/logging"
)

// DefaultStripes is the number of lock files a FileLock spreads keys over.
const DefaultStripes = 256

// FileLock is a Group that serialises callers within the process with a
// MemLock and across processes with an flock on one of a fixed set of
// stripe files in dir. Keys hashing to the same stripe serialise across
// processes, which only costs concurrency.
//
// Stripe files are left in place after use; removing them would race with
// a process that has opened but not yet locked the file.
type FileLock struct {
	dir     string
	stripes int
	mem     *MemLock
}

// FileLockOption configures a FileLock.
type FileLockOption func(*FileLock)

// WithStripes sets the number of lock files. Values below 1 are ignored.
// Every process sharing dir must use the same count.
func WithStripes(n int) FileLockOption {
	return func(f *FileLock) {
		if n > 0 {
			f.stripes = n
		}
	}
}

// NewFileLock creates dir if needed and returns a FileLock rooted there.
func NewFileLock(dir string, opts ...FileLockOption) (*FileLock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f := &FileLock{
		dir:     dir,
		stripes: DefaultStripes,
		mem:     NewMemLock(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Dir returns the lock directory.
func (f *FileLock) Dir() string {
	return f.dir
}

// StripePath returns the lock file guarding key.
func (f *FileLock) StripePath(key string) string {
	n := xxhash.Sum64String(key) % uint64(f.stripes)
	return filepath.Join(f.dir, fmt.Sprintf("stripe-%03d.lock", n))
}

// DoWithLock runs fn while holding both the in-process lock for key and
// the file lock of its stripe.
func (f *FileLock) DoWithLock(key string, fn func() error) error {
	return f.mem.DoWithLock(key, func() error {
		fl := flock.New(f.StripePath(key))
		if err := fl.Lock(); err != nil {
			return fmt.Errorf("failed to acquire file lock for %s: %w", key, err)
		}
		defer func() {
			if err := fl.Unlock(); err != nil {
				logging.Warn("failed to release file lock for %s: %v", key, err)
			}
		}()
		return fn()
	})
}
