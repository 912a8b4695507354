package runner

import (
	"context"
	"sync"
)

// turnLocks hands out one lock per conversation id. Entries are dropped when
// nobody holds or waits for them.
type turnLocks struct {
	mu sync.Mutex
	m  map[string]*turnLock
}

type turnLock struct {
	sem  chan struct{}
	refs int
}

// acquire blocks until id is free or ctx is done.
func (l *turnLocks) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*turnLock)
	}
	tl := l.m[id]
	if tl == nil {
		tl = &turnLock{sem: make(chan struct{}, 1)}
		l.m[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	release := func() {
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}

	select {
	case tl.sem <- struct{}{}:
		return func() {
			<-tl.sem
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}
