package lifecycle

import (
	"context"
	"sync"
	"time"
)

// assetLocks serializes mutating operations per asset id. Acquisition waits
// a bounded time; an elapsed wait or a cancelled context both surface as
// Busy instead of queueing indefinitely. Entries are reference counted so
// the map does not grow with the number of assets ever touched.
type assetLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{} // capacity 1
	refs int
}

func newAssetLocks() *assetLocks {
	return &assetLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the asset lock is held, the wait elapses, or ctx is
// cancelled. On success the returned release func must be called on every
// exit path.
func (l *assetLocks) acquire(ctx context.Context, assetID string, wait time.Duration) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[assetID]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[assetID] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			l.unref(assetID, e)
		}, nil
	case <-ctx.Done():
		l.unref(assetID, e)
		return nil, errLockWait(assetID, ctx.Err())
	case <-timer.C:
		l.unref(assetID, e)
		return nil, errBusy(assetID, "lock")
	}
}

func (l *assetLocks) unref(assetID string, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, assetID)
	}
	l.mu.Unlock()
}
