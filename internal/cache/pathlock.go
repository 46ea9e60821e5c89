package cache

import "sync"

// pathLocks hands out one mutex per in-use path. Locks are refcounted
// and removed from the map when the last holder releases, so the map
// does not grow with directory size.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// acquire blocks until the lock for path is held.
func (p *pathLocks) acquire(path string) {
	p.mu.Lock()
	l, ok := p.locks[path]
	if !ok {
		l = &pathLock{}
		p.locks[path] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
}

// release unlocks the path and drops the lock entry once unused.
func (p *pathLocks) release(path string) {
	p.mu.Lock()
	l := p.locks[path]
	l.refs--
	if l.refs == 0 {
		delete(p.locks, path)
	}
	p.mu.Unlock()

	l.mu.Unlock()
}
