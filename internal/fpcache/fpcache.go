// Package fpcache is the fingerprint match cache: a persisted map from
// (group, normalized stream name) to the event it matched last run. A hit
// skips team extraction, league resolution, and the provider window fetch
// for streams whose names did not change between runs.
package fpcache

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/normalize"
	"github.com/snapetech/eventarr/internal/sports"
	"github.com/snapetech/eventarr/internal/store"
)

type Cache struct {
	st  *store.Store
	log zerolog.Logger
	met *metrics.Metrics
}

func New(st *store.Store, met *metrics.Metrics, log zerolog.Logger) *Cache {
	return &Cache{st: st, met: met, log: log.With().Str("component", "fpcache").Logger()}
}

// Hit is a usable cache entry: the reconstructed event plus the method the
// original match was made with. Method survives caching so a FUZZY match
// stays reported as FUZZY however many runs it is served from cache.
type Hit struct {
	Event  sports.Event
	Method string
}

// Lookup returns the cached match for a stream fingerprint. Entries are
// dropped, not returned, when the normalization rules changed since they
// were written, the snapshot no longer decodes, or the stream name carries
// a date that disagrees with the cached event's date in loc.
func (c *Cache) Lookup(groupID int64, fp string, norm normalize.Result, loc *time.Location) (Hit, bool) {
	entry, err := c.st.GetFingerprint(groupID, fp)
	if errors.Is(err, store.ErrNotFound) {
		c.met.FingerprintOps.WithLabelValues("miss").Inc()
		return Hit{}, false
	}
	if err != nil {
		c.log.Error().Err(err).Msg("fingerprint lookup")
		return Hit{}, false
	}
	if entry.NormVersion != normalize.Version {
		return c.drop(groupID, fp, "norm version changed")
	}
	var ev sports.Event
	if err := json.Unmarshal([]byte(entry.Snapshot), &ev); err != nil {
		return c.drop(groupID, fp, "snapshot undecodable")
	}
	if norm.HasDate && !ev.LocalDate(loc).Equal(dateIn(norm.Date, loc)) {
		return c.drop(groupID, fp, "stream date disagrees with cached event")
	}
	c.met.FingerprintOps.WithLabelValues("hit").Inc()
	return Hit{Event: ev, Method: entry.MatchMethod}, true
}

func (c *Cache) drop(groupID int64, fp, reason string) (Hit, bool) {
	c.met.FingerprintOps.WithLabelValues("stale").Inc()
	c.log.Debug().Int64("group", groupID).Str("reason", reason).Msg("dropping stale fingerprint")
	if err := c.st.DeleteFingerprint(groupID, fp); err != nil {
		c.log.Error().Err(err).Msg("delete stale fingerprint")
	}
	return Hit{}, false
}

// Store records a successful match. method must be the origin method of the
// live match, never a cache marker.
func (c *Cache) Store(groupID int64, fp string, ev sports.Event, method string, generation int64) error {
	snapshot, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.met.FingerprintOps.WithLabelValues("set").Inc()
	return c.st.PutFingerprint(store.FingerprintEntry{
		GroupID:     groupID,
		Fingerprint: fp,
		EventID:     ev.ID,
		Provider:    ev.Provider,
		League:      ev.League,
		Snapshot:    string(snapshot),
		MatchMethod: method,
		Generation:  generation,
		NormVersion: normalize.Version,
	})
}

// Confirm marks an entry as seen in the current generation so eviction
// spares it.
func (c *Cache) Confirm(groupID int64, fp string, generation int64) error {
	return c.st.TouchFingerprint(groupID, fp, generation)
}

// Evict removes entries not confirmed for two generations.
func (c *Cache) Evict(generation int64) (int64, error) {
	n, err := c.st.EvictFingerprints(generation)
	if err == nil && n > 0 {
		c.met.FingerprintOps.WithLabelValues("evict").Add(float64(n))
	}
	return n, err
}

// dateIn re-anchors a midnight-UTC civil date into loc, keeping the same
// year, month, and day.
func dateIn(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.UTC().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}
