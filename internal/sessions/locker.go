package sessions

import (
	"context"
	"sync"
)

// Locker serializes work per conversation. Different conversations never
// block each other.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	ch   chan struct{}
	refs int
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*conversationLock)}
}

// Lock acquires the lock for conversationID, waiting until it is free or ctx
// is done.
func (l *Locker) Lock(ctx context.Context, conversationID string) error {
	l.mu.Lock()
	lock, ok := l.locks[conversationID]
	if !ok {
		lock = &conversationLock{ch: make(chan struct{}, 1)}
		l.locks[conversationID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(conversationID, lock)
		return ctx.Err()
	}
}

// Unlock releases the lock for conversationID.
func (l *Locker) Unlock(conversationID string) {
	l.mu.Lock()
	lock, ok := l.locks[conversationID]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-lock.ch:
	default:
		return
	}
	l.release(conversationID, lock)
}

func (l *Locker) release(conversationID string, lock *conversationLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs <= 0 {
		delete(l.locks, conversationID)
	}
}
