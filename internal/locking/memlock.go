package locking

import "sync"

// MemLock is a Group backed by in-process mutexes. Entries are reference
// counted and dropped once no caller holds or waits on them, so the table
// does not grow with the number of keys ever seen.
type MemLock struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// NewMemLock creates an empty lock table.
func NewMemLock() *MemLock {
	return &MemLock{
		locks: make(map[string]*keyLock),
	}
}

// DoWithLock runs fn with mutual exclusion over key.
func (s *MemLock) DoWithLock(key string, fn func() error) error {
	l := s.acquire(key)
	defer s.release(key, l)
	return fn()
}

func (s *MemLock) acquire(key string) *keyLock {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return l
}

func (s *MemLock) release(key string, l *keyLock) {
	l.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}

// Len reports how many keys currently have holders or waiters.
func (s *MemLock) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
