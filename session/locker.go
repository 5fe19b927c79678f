package session

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedMutex serializes work per key. Entries are dropped once no
// goroutine holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refSem
}

type refSem struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refSem)}
}

// Lock waits until key is free or ctx is done. On success it returns the
// matching unlock.
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refSem{sem: semaphore.NewWeighted(1)}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		k.release(key, m)
		return nil, err
	}
	return func() {
		m.sem.Release(1)
		k.release(key, m)
	}, nil
}

func (k *keyedMutex) release(key string, m *refSem) {
	k.mu.Lock()
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
