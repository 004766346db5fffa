package fpcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/normalize"
	"github.com/snapetech/eventarr/internal/sports"
	"github.com/snapetech/eventarr/internal/store"
)

func openCache(t *testing.T) (*Cache, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, metrics.New(), zerolog.Nop()), st
}

func testEvent(start time.Time) sports.Event {
	return sports.Event{
		ID:       "401547321",
		Provider: "espn",
		League:   "nfl",
		Sport:    "football",
		Name:     "Detroit Lions at Green Bay Packers",
		Start:    start,
		Status:   sports.StatusScheduled,
		Home:     &sports.Team{ID: "9", Name: "Green Bay Packers"},
		Away:     &sports.Team{ID: "8", Name: "Detroit Lions"},
	}
}

func TestLookupRoundTripKeepsOriginMethod(t *testing.T) {
	c, _ := openCache(t)
	loc, _ := time.LoadLocation("America/New_York")
	ev := testEvent(time.Date(2026, 9, 20, 17, 0, 0, 0, time.UTC))

	if err := c.Store(7, "lions vs packers", ev, "FUZZY", 1); err != nil {
		t.Fatalf("Store: %v", err)
	}
	hit, ok := c.Lookup(7, "lions vs packers", normalize.Result{}, loc)
	if !ok {
		t.Fatal("expected a hit")
	}
	if hit.Method != "FUZZY" {
		t.Fatalf("method = %q, want FUZZY", hit.Method)
	}
	if hit.Event.ID != ev.ID || hit.Event.Home.Name != "Green Bay Packers" {
		t.Fatalf("reconstructed event = %+v", hit.Event)
	}

	// Scoped by group: another group misses.
	if _, ok := c.Lookup(8, "lions vs packers", normalize.Result{}, loc); ok {
		t.Fatal("hit leaked across groups")
	}
}

func TestLookupDateMismatchInvalidates(t *testing.T) {
	c, st := openCache(t)
	loc, _ := time.LoadLocation("America/New_York")
	// 17:00 UTC Sept 20 is Sept 20 in New York; 01:00 UTC Sept 21 is still
	// Sept 20 there.
	ev := testEvent(time.Date(2026, 9, 21, 1, 0, 0, 0, time.UTC))
	if err := c.Store(7, "fp", ev, "TEAM_CACHE", 1); err != nil {
		t.Fatalf("Store: %v", err)
	}

	sameDay := normalize.Result{HasDate: true, Date: time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)}
	if _, ok := c.Lookup(7, "fp", sameDay, loc); !ok {
		t.Fatal("same local date should hit")
	}

	otherDay := normalize.Result{HasDate: true, Date: time.Date(2026, 9, 21, 0, 0, 0, 0, time.UTC)}
	if _, ok := c.Lookup(7, "fp", otherDay, loc); ok {
		t.Fatal("mismatched date should invalidate")
	}
	if _, err := st.GetFingerprint(7, "fp"); err == nil {
		t.Fatal("stale entry should be deleted, not kept")
	}
}

func TestLookupNormVersionChangeInvalidates(t *testing.T) {
	c, st := openCache(t)
	ev := testEvent(time.Now().UTC())
	if err := c.Store(1, "fp", ev, "KEYWORD", 3); err != nil {
		t.Fatalf("Store: %v", err)
	}
	// Simulate an entry written under older rules.
	entry, err := st.GetFingerprint(1, "fp")
	if err != nil {
		t.Fatalf("GetFingerprint: %v", err)
	}
	entry.NormVersion = normalize.Version - 1
	if err := st.PutFingerprint(entry); err != nil {
		t.Fatalf("PutFingerprint: %v", err)
	}
	if _, ok := c.Lookup(1, "fp", normalize.Result{}, time.UTC); ok {
		t.Fatal("entry from older normalization rules should miss")
	}
}

func TestEvictSparesConfirmedEntries(t *testing.T) {
	c, st := openCache(t)
	ev := testEvent(time.Now().UTC())
	if err := c.Store(1, "old", ev, "FUZZY", 1); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Store(1, "fresh", ev, "FUZZY", 1); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Confirm(1, "fresh", 3); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	n, err := c.Evict(3)
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if n != 1 {
		t.Fatalf("evicted %d entries, want 1", n)
	}
	if _, err := st.GetFingerprint(1, "fresh"); err != nil {
		t.Fatal("confirmed entry should survive eviction")
	}
}
