package session

import (
	"context"
	"sync"
)

// locker hands out one exclusive lock per chat. Entries are reference counted and dropped
// once nobody holds or waits for them, so the table only grows with concurrently used chats.
type locker struct {
	mu    sync.Mutex
	locks map[int64]*chatLock
}

type chatLock struct {
	ch   chan struct{}
	refs int
}

func newLocker() *locker {
	return &locker{locks: make(map[int64]*chatLock)}
}

// Lock blocks until the chat lock is held or ctx is done. The returned func releases it.
func (l *locker) Lock(ctx context.Context, chatID int64) (func(), error) {
	cl := l.acquire(chatID)

	select {
	case cl.ch <- struct{}{}:
		return func() {
			<-cl.ch
			l.release(chatID)
		}, nil
	case <-ctx.Done():
		l.release(chatID)
		return nil, ctx.Err()
	}
}

func (l *locker) acquire(chatID int64) *chatLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.locks[chatID]
	if !ok {
		cl = &chatLock{ch: make(chan struct{}, 1)}
		l.locks[chatID] = cl
	}
	cl.refs++

	return cl
}

func (l *locker) release(chatID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl := l.locks[chatID]
	cl.refs--
	if cl.refs == 0 {
		delete(l.locks, chatID)
	}
}

func (l *locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
