package providers

import (
	"context"
	"sync"
	"time"

	"github.com/snapetech/eventarr/internal/sports"
)

// DefaultEventTTL keeps one scheduler tick from refetching the same
// (league, date) scoreboard for every stream in a group.
const DefaultEventTTL = 5 * time.Minute

// WithEventCache wraps a provider with a short-TTL in-memory cache on the
// Events call. Everything else passes through.
func WithEventCache(p SportsProvider, ttl time.Duration) SportsProvider {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &cachedProvider{SportsProvider: p, ttl: ttl, entries: make(map[string]cacheEntry)}
}

type cachedProvider struct {
	SportsProvider
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	events  []sports.Event
	expires time.Time
}

func (c *cachedProvider) Events(ctx context.Context, league string, date time.Time) ([]sports.Event, error) {
	key := league + "|" + date.UTC().Format("2006-01-02")
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Before(e.expires) {
		c.mu.Unlock()
		return e.events, nil
	}
	c.mu.Unlock()

	events, err := c.SportsProvider.Events(ctx, league, date)
	if err != nil {
		return nil, err // failures are not cached
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{events: events, expires: now.Add(c.ttl)}
	// Opportunistic sweep so the map does not grow for a week of dates.
	if len(c.entries) > 512 {
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
	}
	c.mu.Unlock()
	return events, nil
}
