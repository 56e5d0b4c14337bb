package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// DefaultWait is how long LocalLocker waits for a busy site.
const DefaultWait = 2 * time.Second

// LocalLocker locks sites within one process. It suits single-instance
// deployments and tests.
type LocalLocker struct {
	wait time.Duration

	mu    sync.Mutex
	sites map[uuid.UUID]chan struct{}
}

// NewLocalLocker returns a locker that waits up to wait for each site before
// giving up with ErrNotAcquired. A non-positive wait uses DefaultWait.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &LocalLocker{wait: wait, sites: make(map[uuid.UUID]chan struct{})}
}

var _ simplecms.SiteLocker = (*LocalLocker)(nil)

func (l *LocalLocker) slot(id uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.sites[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.sites[id] = ch
	}
	return ch
}

// LockSites takes every site lock in id order or none of them.
func (l *LocalLocker) LockSites(ctx context.Context, siteIDs []uuid.UUID) (func(context.Context) error, error) {
	ids := sortedIDs(siteIDs)
	held := make([]chan struct{}, 0, len(ids))
	release := func(context.Context) error {
		for _, ch := range held {
			<-ch
		}
		held = held[:0]
		return nil
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	for _, id := range ids {
		ch := l.slot(id)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-timer.C:
			_ = release(ctx)
			return nil, ErrNotAcquired
		case <-ctx.Done():
			_ = release(ctx)
			return nil, ctx.Err()
		}
	}
	return release, nil
}
