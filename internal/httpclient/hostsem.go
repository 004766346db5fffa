package httpclient

import (
	"context"
	"net/url"
	"sync"
)

// hostLimiter caps in-flight requests per upstream host. ESPN, TheSportsDB,
// and Dispatcharr each get their own slot pool keyed on scheme+host, so a
// team-cache refresh fanning out over fifty leagues cannot open fifty
// sockets to one provider.
type hostLimiter struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	limit int
}

// hostSlots is shared by every request issued through this package. The
// retry loop acquires a slot per attempt; backoff waits never hold one.
var hostSlots = newHostLimiter(4)

func newHostLimiter(limit int) *hostLimiter {
	if limit < 1 {
		limit = 1
	}
	return &hostLimiter{slots: make(map[string]chan struct{}), limit: limit}
}

// acquire blocks until a slot for u's host is free or ctx is done. The
// returned release must be called exactly once, as soon as the response
// headers arrive.
func (l *hostLimiter) acquire(ctx context.Context, u *url.URL) (func(), error) {
	key := u.Scheme + "://" + u.Host

	l.mu.Lock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, l.limit)
		l.slots[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
