package pipeline

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/channels"
	"github.com/snapetech/eventarr/internal/classify"
	"github.com/snapetech/eventarr/internal/dispatcharr"
	"github.com/snapetech/eventarr/internal/fpcache"
	"github.com/snapetech/eventarr/internal/league"
	"github.com/snapetech/eventarr/internal/match"
	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/normalize"
	"github.com/snapetech/eventarr/internal/ordering"
	"github.com/snapetech/eventarr/internal/progress"
	"github.com/snapetech/eventarr/internal/providers"
	"github.com/snapetech/eventarr/internal/sports"
	"github.com/snapetech/eventarr/internal/store"
	"github.com/snapetech/eventarr/internal/teamcache"
	"github.com/snapetech/eventarr/internal/ufc"
)

type stubProvider struct {
	events map[string][]sports.Event
}

func (s *stubProvider) Name() string                 { return "stub" }
func (s *stubProvider) Premium() bool                { return true }
func (s *stubProvider) SupportsLeague(l string) bool { _, ok := s.events[l]; return ok }
func (s *stubProvider) SupportedLeagues(context.Context) ([]string, error) {
	return nil, nil
}
func (s *stubProvider) Event(context.Context, string, string) (*sports.Event, error) {
	return nil, nil
}
func (s *stubProvider) Team(context.Context, string, string) (*sports.Team, error) {
	return nil, nil
}
func (s *stubProvider) LeagueTeams(context.Context, string) ([]sports.Team, error) {
	return nil, nil
}
func (s *stubProvider) Events(_ context.Context, l string, date time.Time) ([]sports.Event, error) {
	var out []sports.Event
	for _, ev := range s.events[l] {
		y1, m1, d1 := ev.Start.UTC().Date()
		y2, m2, d2 := date.UTC().Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			out = append(out, ev)
		}
	}
	return out, nil
}

// fakeDown is an in-memory downstream manager double.
type fakeDown struct {
	enabled bool
	streams map[string][]dispatcharr.Stream

	nextID  int64
	created []dispatcharr.Channel
	updated []int64
	deleted []int64
}

func (f *fakeDown) Enabled() bool { return f.enabled }

func (f *fakeDown) ListStreams(_ context.Context, group string, _ int64) ([]dispatcharr.Stream, error) {
	return f.streams[group], nil
}

func (f *fakeDown) ListM3UAccounts(context.Context) ([]dispatcharr.M3UAccount, error) {
	return []dispatcharr.M3UAccount{{ID: 1, Name: "primary"}}, nil
}

func (f *fakeDown) CreateChannel(_ context.Context, in dispatcharr.ChannelInput) (dispatcharr.Channel, error) {
	id := atomic.AddInt64(&f.nextID, 1)
	ch := dispatcharr.Channel{ID: id}
	if in.Name != nil {
		ch.Name = *in.Name
	}
	if in.ChannelNumber != nil {
		ch.ChannelNumber = *in.ChannelNumber
	}
	ch.Streams = in.Streams
	f.created = append(f.created, ch)
	return ch, nil
}

func (f *fakeDown) UpdateChannel(_ context.Context, id int64, _ dispatcharr.ChannelInput) (dispatcharr.Channel, error) {
	f.updated = append(f.updated, id)
	return dispatcharr.Channel{ID: id}, nil
}

func (f *fakeDown) DeleteChannel(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fixture struct {
	p    *Pipeline
	st   *store.Store
	down *fakeDown
	now  time.Time
}

func newFixture(t *testing.T, stub *stubProvider, down *fakeDown) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	for _, m := range []store.LeagueMapping{
		{Code: "nfl", Provider: "stub", Sport: "football", DisplayName: "NFL", Enabled: true},
		{Code: "ufc", Provider: "stub", Sport: "mma", DisplayName: "UFC", Enabled: true},
	} {
		if err := st.UpsertLeagueMapping(m); err != nil {
			t.Fatalf("UpsertLeagueMapping: %v", err)
		}
	}
	if err := st.ReplaceTeamCache([]store.TeamCacheEntry{
		{Provider: "stub", TeamID: "8", League: "nfl", Name: "Detroit Lions", Abbreviation: "DET", Sport: "football"},
		{Provider: "stub", TeamID: "9", League: "nfl", Name: "Green Bay Packers", Abbreviation: "GB", Sport: "football"},
	}, nil); err != nil {
		t.Fatalf("ReplaceTeamCache: %v", err)
	}

	leagues, err := league.New(st, zerolog.Nop())
	if err != nil {
		t.Fatalf("league.New: %v", err)
	}
	reg := providers.NewRegistry()
	reg.Register(stub)
	met := metrics.New()
	cache := fpcache.New(st, met, zerolog.Nop())
	teams := teamcache.NewService(st, zerolog.Nop())
	cls := classify.New(zerolog.Nop())

	p := New(st, down,
		normalize.New(), cls,
		match.NewMatcher(cache, teams, reg, leagues, met, zerolog.Nop()),
		ufc.NewExpander(cls, zerolog.Nop()),
		cache,
		channels.NewManager(st, met, zerolog.Nop()),
		ordering.NewService(zerolog.Nop()),
		leagues,
		progress.NewBus(zerolog.Nop()),
		met, zerolog.Nop())

	// A fixed clock keeps the lifecycle windows deterministic.
	now := time.Date(2026, 9, 20, 14, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return now }
	return &fixture{p: p, st: st, down: down, now: now}
}

func (f *fixture) saveGroup(t *testing.T, g store.Group) store.Group {
	t.Helper()
	if g.ChannelAssignmentMode == "" {
		g.ChannelAssignmentMode = "manual"
	}
	if g.DuplicateMode == "" {
		g.DuplicateMode = "consolidate"
	}
	g.Enabled = true
	if err := f.st.SaveGroup(&g); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	return g
}

// nflGame starts a few hours after the fixture clock, inside the same-day
// create window.
func nflGame(start time.Time) sports.Event {
	return sports.Event{
		ID: "401100", Provider: "stub", League: "nfl", Sport: "football",
		Name:  "Detroit Lions at Green Bay Packers",
		Start: start,
		Home:  &sports.Team{ID: "9", Name: "Green Bay Packers", ShortName: "Packers", Abbreviation: "GB"},
		Away:  &sports.Team{ID: "8", Name: "Detroit Lions", ShortName: "Lions", Abbreviation: "DET"},
	}
}

func TestRunCreatesAndSyncsChannel(t *testing.T) {
	start := time.Date(2026, 9, 20, 17, 0, 0, 0, time.UTC)
	stub := &stubProvider{events: map[string][]sports.Event{"nfl": {nflGame(start)}}}
	down := &fakeDown{enabled: true, streams: map[string][]dispatcharr.Stream{
		"NFL Sunday": {
			{ID: 11, Name: "Detroit Lions vs Green Bay Packers FHD", M3UAccount: 1},
			{ID: 12, Name: "Lions vs Packers HD", M3UAccount: 1},
			{ID: 13, Name: "NFL 03: No Event Scheduled", M3UAccount: 1},
		},
	}}
	f := newFixture(t, stub, down)
	f.saveGroup(t, store.Group{Name: "NFL Sunday", M3UAccountID: 1, Leagues: []string{"nfl"}, ChannelStartNumber: ptr(int64(101))})

	res, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Streams != 3 || res.Matched != 2 || res.ChannelsCreated != 1 {
		t.Fatalf("result = %+v, want 3 streams, 2 matched, 1 channel", res)
	}
	if res.Generation != 1 {
		t.Fatalf("generation = %d, want 1", res.Generation)
	}

	active, err := f.st.ListActiveChannels(0)
	if err != nil {
		t.Fatalf("ListActiveChannels: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active channels = %d, want 1", len(active))
	}
	ch := active[0]
	if ch.Number != 101 {
		t.Fatalf("number = %d, want group start 101", ch.Number)
	}
	streams, _ := f.st.ListChannelStreams(ch.ID)
	if len(streams) != 2 {
		t.Fatalf("attached streams = %d, want both matched feeds", len(streams))
	}

	// The channel was pushed downstream and the id recorded.
	if len(down.created) != 1 {
		t.Fatalf("downstream creates = %d, want 1", len(down.created))
	}
	if ch.DownstreamChannelID == nil || *ch.DownstreamChannelID != down.created[0].ID {
		t.Fatalf("downstream id = %v, want %d", ch.DownstreamChannelID, down.created[0].ID)
	}
	if ch.SyncStatus != "synced" {
		t.Fatalf("sync status = %q", ch.SyncStatus)
	}

	// The guide carries the managed channel and its event programme.
	if res.Guide == nil || len(res.Guide.Channels) != 1 {
		t.Fatalf("guide = %+v", res.Guide)
	}
	if res.Guide.Channels[0].ID != ch.TVGID {
		t.Fatalf("guide channel id = %q, want %q", res.Guide.Channels[0].ID, ch.TVGID)
	}
}

func TestRunSecondPassIsStable(t *testing.T) {
	start := time.Date(2026, 9, 20, 17, 0, 0, 0, time.UTC)
	stub := &stubProvider{events: map[string][]sports.Event{"nfl": {nflGame(start)}}}
	down := &fakeDown{enabled: true, streams: map[string][]dispatcharr.Stream{
		"NFL Sunday": {{ID: 11, Name: "Detroit Lions vs Green Bay Packers", M3UAccount: 1}},
	}}
	f := newFixture(t, stub, down)
	f.saveGroup(t, store.Group{Name: "NFL Sunday", M3UAccountID: 1, Leagues: []string{"nfl"}, ChannelStartNumber: ptr(int64(101))})

	if _, err := f.p.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	res, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.ChannelsCreated != 0 {
		t.Fatalf("second pass created %d channels, want 0", res.ChannelsCreated)
	}
	if res.Generation != 2 {
		t.Fatalf("generation = %d, want 2", res.Generation)
	}
	if len(down.created) != 1 {
		t.Fatalf("downstream creates = %d, want 1", len(down.created))
	}
	active, _ := f.st.ListActiveChannels(0)
	if len(active) != 1 {
		t.Fatalf("active channels = %d, want 1", len(active))
	}
}

func TestRunRejectsConcurrent(t *testing.T) {
	f := newFixture(t, &stubProvider{}, &fakeDown{})
	f.p.running.Store(true)
	if _, err := f.p.Run(context.Background()); err != ErrRunInProgress {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
	f.p.running.Store(false)
	if _, err := f.p.Run(context.Background()); err != nil {
		t.Fatalf("Run after release: %v", err)
	}
}

func TestRunDeletesPastEventChannel(t *testing.T) {
	// The game ended three days before the fixture clock; the channel for it
	// must go, downstream twin included.
	start := time.Date(2026, 9, 17, 17, 0, 0, 0, time.UTC)
	stub := &stubProvider{events: map[string][]sports.Event{"nfl": {nflGame(start)}}}
	down := &fakeDown{enabled: true, streams: map[string][]dispatcharr.Stream{
		"NFL Sunday": {{ID: 11, Name: "Detroit Lions vs Green Bay Packers", M3UAccount: 1}},
	}}
	f := newFixture(t, stub, down)
	g := f.saveGroup(t, store.Group{Name: "NFL Sunday", M3UAccountID: 1, Leagues: []string{"nfl"}, ChannelStartNumber: ptr(int64(101))})

	downID := int64(77)
	ch := store.Channel{
		GroupID: g.ID, Name: "Detroit Lions at Green Bay Packers", Number: 101,
		TVGID: "eventarr.stub.401100", EventProvider: "stub", EventID: "401100",
		EventName: "Detroit Lions at Green Bay Packers", EventStart: start,
		EventDate: "2026-09-17", League: "nfl", Sport: "football",
		DownstreamChannelID: &downID, SyncStatus: "synced",
	}
	if err := f.st.InsertChannel(&ch); err != nil {
		t.Fatalf("InsertChannel: %v", err)
	}

	res, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ChannelsDeleted != 1 {
		t.Fatalf("deleted = %d, want 1", res.ChannelsDeleted)
	}
	active, _ := f.st.ListActiveChannels(0)
	if len(active) != 0 {
		t.Fatalf("active channels = %d, want 0", len(active))
	}
	if len(down.deleted) != 1 || down.deleted[0] != downID {
		t.Fatalf("downstream deletes = %v, want [%d]", down.deleted, downID)
	}
}

func TestRunDeletesPastSegmentChannel(t *testing.T) {
	// The card ended three days before the fixture clock. Its prelims channel
	// is stored under the segment-qualified key and must go on this pass, not
	// linger until the scheduled-delete reaper.
	start := time.Date(2026, 9, 17, 2, 0, 0, 0, time.UTC)
	card := sports.Event{
		ID: "600123", Provider: "stub", League: "ufc", Sport: "mma",
		Name:  "UFC 320: Pereira vs. Hill",
		Start: start,
		SegmentTimes: map[sports.Segment]time.Time{
			sports.SegmentPrelims:  start.Add(-90 * time.Minute),
			sports.SegmentMainCard: start,
		},
		MainCardStart: start,
	}
	stub := &stubProvider{events: map[string][]sports.Event{"ufc": {card}}}
	down := &fakeDown{enabled: true, streams: map[string][]dispatcharr.Stream{
		"Fight Pass": {{ID: 21, Name: "UFC 320 Prelims", M3UAccount: 1}},
	}}
	f := newFixture(t, stub, down)
	g := f.saveGroup(t, store.Group{Name: "Fight Pass", M3UAccountID: 1, Leagues: []string{"ufc"}, ChannelStartNumber: ptr(int64(201))})

	downID := int64(88)
	ch := store.Channel{
		GroupID: g.ID, Name: "UFC 320 Prelims", Number: 201,
		TVGID: "eventarr.stub.600123prelims", EventProvider: "stub", EventID: "600123#prelims",
		EventName: "UFC 320: Pereira vs. Hill", EventStart: start,
		EventDate: "2026-09-16", League: "ufc", Sport: "mma",
		Segment: "prelims", SegmentStart: start.Add(-90 * time.Minute), SegmentEnd: start,
		DownstreamChannelID: &downID, SyncStatus: "synced",
	}
	if err := f.st.InsertChannel(&ch); err != nil {
		t.Fatalf("InsertChannel: %v", err)
	}

	res, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ChannelsDeleted != 1 {
		t.Fatalf("deleted = %d, want the prelims channel gone", res.ChannelsDeleted)
	}
	active, _ := f.st.ListActiveChannels(0)
	if len(active) != 0 {
		t.Fatalf("active channels = %d, want 0", len(active))
	}
	if len(down.deleted) != 1 || down.deleted[0] != downID {
		t.Fatalf("downstream deletes = %v, want [%d]", down.deleted, downID)
	}
}

func TestRunCountsFilteredStreams(t *testing.T) {
	stub := &stubProvider{events: map[string][]sports.Event{"nfl": {}}}
	down := &fakeDown{enabled: true, streams: map[string][]dispatcharr.Stream{
		"NFL Sunday": {
			{ID: 11, Name: "NFL 01: No Event Scheduled", M3UAccount: 1},
			{ID: 12, Name: "24/7 Reruns", M3UAccount: 1},
		},
	}}
	f := newFixture(t, stub, down)
	f.saveGroup(t, store.Group{
		Name: "NFL Sunday", M3UAccountID: 1, Leagues: []string{"nfl"},
		ExcludeRegex: "(?i)24/7",
	})

	res, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Matched != 0 || res.ChannelsCreated != 0 {
		t.Fatalf("result = %+v, want nothing matched", res)
	}
	if res.Filtered != 2 {
		t.Fatalf("filtered = %d, want placeholder and regex both counted", res.Filtered)
	}
}

func ptr[T any](v T) *T { return &v }
