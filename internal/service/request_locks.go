package service

import (
	"sort"
	"sync"
)

// RequestLocks serializes in-process work on the same request id.
// The row lock taken inside each transaction covers other processes.
type RequestLocks struct {
	mu    sync.Mutex
	locks map[uint]*requestLock
}

type requestLock struct {
	mu   sync.Mutex
	refs int
}

func NewRequestLocks() *RequestLocks {
	return &RequestLocks{locks: make(map[uint]*requestLock)}
}

// Lock acquires every non-zero id in ascending order and returns the matching unlock.
func (l *RequestLocks) Lock(ids ...uint) func() {
	keys := uniqueIDs(ids...)
	held := make([]*requestLock, 0, len(keys))
	for _, id := range keys {
		l.mu.Lock()
		entry, ok := l.locks[id]
		if !ok {
			entry = &requestLock{}
			l.locks[id] = entry
		}
		entry.refs++
		l.mu.Unlock()

		entry.mu.Lock()
		held = append(held, entry)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()

			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, keys[i])
			}
			l.mu.Unlock()
		}
	}
}

// uniqueIDs drops zero ids and duplicates and sorts the rest.
func uniqueIDs(ids ...uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func derefID(id *uint) uint {
	if id == nil {
		return 0
	}
	return *id
}
