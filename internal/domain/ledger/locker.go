// internal/domain/ledger/locker.go
package ledger

import "sync"

// partitionLocker hands out one mutex per partition key. Entries are
// reference counted and dropped when the last holder unlocks, so the map
// only ever holds partitions with in-flight writers.
type partitionLocker struct {
	mu    sync.Mutex
	locks map[string]*partitionLock
}

type partitionLock struct {
	mu   sync.Mutex
	refs int
}

func newPartitionLocker() *partitionLocker {
	return &partitionLocker{locks: make(map[string]*partitionLock)}
}

// Lock blocks until the partition is free and returns its unlock function
func (l *partitionLocker) Lock(key string) func() {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &partitionLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// size returns the number of partitions currently tracked
func (l *partitionLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
