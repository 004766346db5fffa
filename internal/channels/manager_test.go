package channels

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/sports"
	"github.com/snapetech/eventarr/internal/store"
)

func newFixture(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewManager(st, metrics.New(), zerolog.Nop()), st
}

func saveGroup(t *testing.T, st *store.Store, g store.Group) store.Group {
	t.Helper()
	if g.ChannelAssignmentMode == "" {
		g.ChannelAssignmentMode = "manual"
	}
	if g.DuplicateMode == "" {
		g.DuplicateMode = "consolidate"
	}
	g.Enabled = true
	if err := st.SaveGroup(&g); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	return g
}

func allocFor(t *testing.T, st *store.Store) *Allocator {
	t.Helper()
	groups, err := st.ListGroups(false)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	used, err := st.UsedChannelNumbers(0)
	if err != nil {
		t.Fatalf("UsedChannelNumbers: %v", err)
	}
	return NewAllocator(store.LifecycleSettings{ChannelRangeStart: 1, ChannelRangeEnd: 9999}, groups, used)
}

func nflEvent(id string) EventRef {
	return EventRef{
		Event: sports.Event{
			ID: id, Provider: "espn", League: "nfl", Sport: "football",
			Name:  "Detroit Lions at Green Bay Packers",
			Start: time.Date(2025, 9, 14, 17, 0, 0, 0, time.UTC),
			Home:  &sports.Team{ID: "9", Name: "Green Bay Packers"},
			Away:  &sports.Team{ID: "8", Name: "Detroit Lions"},
		},
		EventDate: "2025-09-14",
	}
}

// Three feeds of the same game land on one channel with three attached
// streams and no duplicates.
func TestConsolidateThreeFeeds(t *testing.T) {
	m, st := newFixture(t)
	g := saveGroup(t, st, store.Group{Name: "NFL Sunday", ChannelStartNumber: ptr(int64(101))})
	alloc := allocFor(t, st)

	ev := nflEvent("401100")
	feeds := []StreamRef{
		{ID: 11, Name: "Lions @ Packers FHD", M3UAccountID: 1},
		{ID: 12, Name: "Lions @ Packers HD", M3UAccountID: 1},
		{ID: 13, Name: "Detroit Lions vs Green Bay Packers", M3UAccountID: 2},
	}
	var chID int64
	for i, f := range feeds {
		res, err := m.Upsert(g, ev, f, nil, alloc)
		if err != nil {
			t.Fatalf("Upsert feed %d: %v", i, err)
		}
		if i == 0 {
			if !res.Created {
				t.Fatal("first feed must create the channel")
			}
			chID = res.Channel.ID
		} else if res.Created || res.Channel.ID != chID {
			t.Fatalf("feed %d: created=%v channel=%d, want attach to %d", i, res.Created, res.Channel.ID, chID)
		}
	}
	streams, err := st.ListChannelStreams(chID)
	if err != nil {
		t.Fatalf("ListChannelStreams: %v", err)
	}
	if len(streams) != 3 {
		t.Fatalf("attached streams = %d, want 3", len(streams))
	}
	ch, _ := st.GetChannel(chID)
	if ch.Number != 101 {
		t.Fatalf("number = %d, want group start 101", ch.Number)
	}
	if ch.Name != "Detroit Lions at Green Bay Packers" {
		t.Fatalf("name = %q", ch.Name)
	}
	if ch.TVGID != "eventarr.espn.401100" {
		t.Fatalf("tvg id = %q", ch.TVGID)
	}
}

func TestSeparateModeOneChannelPerStream(t *testing.T) {
	m, st := newFixture(t)
	g := saveGroup(t, st, store.Group{Name: "NFL", DuplicateMode: "separate", ChannelStartNumber: ptr(int64(201))})
	alloc := allocFor(t, st)

	ev := nflEvent("401100")
	r1, err := m.Upsert(g, ev, StreamRef{ID: 21, Name: "feed one"}, nil, alloc)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	r2, err := m.Upsert(g, ev, StreamRef{ID: 22, Name: "feed two"}, nil, alloc)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !r1.Created || !r2.Created || r1.Channel.ID == r2.Channel.ID {
		t.Fatalf("separate mode: %+v vs %+v", r1, r2)
	}
	// Re-seeing a stream updates, never duplicates.
	r3, err := m.Upsert(g, ev, StreamRef{ID: 21, Name: "feed one"}, nil, alloc)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if r3.Created || r3.Channel.ID != r1.Channel.ID {
		t.Fatalf("re-upsert: %+v", r3)
	}
}

func TestIgnoreModeFirstWins(t *testing.T) {
	m, st := newFixture(t)
	g := saveGroup(t, st, store.Group{Name: "NFL", DuplicateMode: "ignore"})
	alloc := allocFor(t, st)

	ev := nflEvent("401100")
	r1, err := m.Upsert(g, ev, StreamRef{ID: 31, Name: "first"}, nil, alloc)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	r2, err := m.Upsert(g, ev, StreamRef{ID: 32, Name: "second"}, nil, alloc)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !r1.Created || r2.Created || r2.Skipped == "" {
		t.Fatalf("ignore mode: %+v then %+v", r1, r2)
	}
	streams, _ := st.ListChannelStreams(r1.Channel.ID)
	if len(streams) != 1 {
		t.Fatalf("streams = %d, want only the first", len(streams))
	}
}

// A keyword-labeled stream gets its own channel next to the main one, and
// both coexist for the same event.
func TestKeywordRoutesToLabeledChannel(t *testing.T) {
	m, st := newFixture(t)
	g := saveGroup(t, st, store.Group{Name: "NFL"})
	alloc := allocFor(t, st)

	keywords := []store.ExceptionKeyword{
		{ID: 1, Label: "Spanish", MatchTerms: "espanol, spanish", Behavior: "consolidate", Enabled: true},
	}
	ev := nflEvent("401100")

	main, err := m.Upsert(g, ev, StreamRef{ID: 41, Name: "Lions at Packers"}, MatchKeyword(keywords, "Lions at Packers"), alloc)
	if err != nil {
		t.Fatalf("Upsert main: %v", err)
	}
	kw := MatchKeyword(keywords, "Lions at Packers (ESPANOL)")
	if kw == nil {
		t.Fatal("keyword did not match")
	}
	labeled, err := m.Upsert(g, ev, StreamRef{ID: 42, Name: "Lions at Packers (ESPANOL)"}, kw, alloc)
	if err != nil {
		t.Fatalf("Upsert labeled: %v", err)
	}
	if labeled.Channel.ID == main.Channel.ID {
		t.Fatal("keyword stream must land on its own channel")
	}
	if labeled.Channel.Name != "Detroit Lions at Green Bay Packers (Spanish)" {
		t.Fatalf("labeled name = %q", labeled.Channel.Name)
	}
	// A second Spanish feed consolidates onto the labeled channel.
	again, err := m.Upsert(g, ev, StreamRef{ID: 43, Name: "Lions v Packers SPANISH"}, MatchKeyword(keywords, "Lions v Packers SPANISH"), alloc)
	if err != nil {
		t.Fatalf("Upsert second labeled: %v", err)
	}
	if again.Created || again.Channel.ID != labeled.Channel.ID {
		t.Fatalf("second labeled feed: %+v", again)
	}
}

func TestChildAttachesToParentWithFallback(t *testing.T) {
	m, st := newFixture(t)
	parent := saveGroup(t, st, store.Group{Name: "NFL"})
	child := saveGroup(t, st, store.Group{Name: "NFL Backup", ParentGroupID: &parent.ID})
	alloc := allocFor(t, st)

	ev := nflEvent("401100")
	main, err := m.Upsert(parent, ev, StreamRef{ID: 51, Name: "main feed"}, nil, alloc)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	kw := &store.ExceptionKeyword{Label: "Spanish", Behavior: "consolidate", Enabled: true}
	res, err := m.AttachToParent(parent, child, ev, StreamRef{ID: 52, Name: "backup espanol"}, kw)
	if err != nil {
		t.Fatalf("AttachToParent: %v", err)
	}
	// No labeled parent channel exists, so the stream falls back to main.
	if !res.Attached || res.Channel.ID != main.Channel.ID {
		t.Fatalf("fallback attach: %+v", res)
	}

	other := nflEvent("999999")
	res, err = m.AttachToParent(parent, child, other, StreamRef{ID: 53, Name: "orphan"}, nil)
	if err != nil {
		t.Fatalf("AttachToParent: %v", err)
	}
	if res.Attached || res.Skipped == "" {
		t.Fatalf("missing parent channel must skip: %+v", res)
	}

	streams, _ := st.ListChannelStreams(main.Channel.ID)
	if len(streams) != 2 {
		t.Fatalf("parent streams = %d, want main + child", len(streams))
	}
	if streams[1].SourceGroupType != "child" {
		t.Fatalf("child stream type = %q", streams[1].SourceGroupType)
	}
}

func TestScheduledDeleteRuns(t *testing.T) {
	m, st := newFixture(t)
	g := saveGroup(t, st, store.Group{Name: "NFL"})
	alloc := allocFor(t, st)

	res, err := m.Upsert(g, nflEvent("401100"), StreamRef{ID: 61, Name: "feed"}, nil, alloc)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	ch := res.Channel
	at := time.Now().UTC().Add(-time.Minute)
	if err := m.ScheduleDelete(&ch, at); err != nil {
		t.Fatalf("ScheduleDelete: %v", err)
	}
	deleted, err := m.DeleteDue(time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteDue: %v", err)
	}
	if len(deleted) != 1 || deleted[0].ID != ch.ID {
		t.Fatalf("deleted = %+v", deleted)
	}
	got, _ := st.GetChannel(ch.ID)
	if !got.Deleted() || got.DeleteReason != "scheduled" {
		t.Fatalf("channel after delete = %+v", got)
	}
	// A new channel for the same event may now coexist with the dead row.
	res2, err := m.Upsert(g, nflEvent("401100"), StreamRef{ID: 62, Name: "late feed"}, nil, allocFor(t, st))
	if err != nil {
		t.Fatalf("re-Upsert: %v", err)
	}
	if !res2.Created || res2.Channel.ID == ch.ID {
		t.Fatalf("replacement channel: %+v", res2)
	}
}

func TestUFCSegmentsGetOwnChannels(t *testing.T) {
	m, st := newFixture(t)
	g := saveGroup(t, st, store.Group{Name: "UFC"})
	alloc := allocFor(t, st)

	base := sports.Event{
		ID: "600050555", Provider: "espn", League: "ufc", Sport: "mma",
		Name:  "UFC 325: Jones vs. Aspinall",
		Start: time.Date(2025, 11, 16, 3, 0, 0, 0, time.UTC),
	}
	prelims := EventRef{Event: base, EventDate: "2025-11-15", Segment: sports.SegmentPrelims}
	main := EventRef{Event: base, EventDate: "2025-11-15", Segment: sports.SegmentMainCard}

	rp, err := m.Upsert(g, prelims, StreamRef{ID: 71, Name: "UFC 325 Prelims"}, nil, alloc)
	if err != nil {
		t.Fatalf("Upsert prelims: %v", err)
	}
	rm, err := m.Upsert(g, main, StreamRef{ID: 72, Name: "UFC 325 Main Card"}, nil, alloc)
	if err != nil {
		t.Fatalf("Upsert main: %v", err)
	}
	if rp.Channel.ID == rm.Channel.ID {
		t.Fatal("segments must not share a channel")
	}
	if rp.Channel.Name != "UFC 325: Jones vs. Aspinall - Prelims" {
		t.Fatalf("prelims name = %q", rp.Channel.Name)
	}
}

func ptr[T any](v T) *T { return &v }
