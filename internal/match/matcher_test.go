package match

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/classify"
	"github.com/snapetech/eventarr/internal/fpcache"
	"github.com/snapetech/eventarr/internal/league"
	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/normalize"
	"github.com/snapetech/eventarr/internal/providers"
	"github.com/snapetech/eventarr/internal/sports"
	"github.com/snapetech/eventarr/internal/store"
	"github.com/snapetech/eventarr/internal/teamcache"
)

type stubProvider struct {
	name   string
	events map[string][]sports.Event // league -> events
	calls  int
}

func (s *stubProvider) Name() string                 { return s.name }
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
	s.calls++
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

type fixture struct {
	matcher *Matcher
	stub    *stubProvider
	norm    *normalize.Normalizer
	cls     *classify.Classifier
	loc     *time.Location
}

func newFixture(t *testing.T, mappings []store.LeagueMapping, cacheTeams []store.TeamCacheEntry, stub *stubProvider) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	for _, m := range mappings {
		if err := st.UpsertLeagueMapping(m); err != nil {
			t.Fatalf("UpsertLeagueMapping: %v", err)
		}
	}
	if len(cacheTeams) > 0 {
		if err := st.ReplaceTeamCache(cacheTeams, nil); err != nil {
			t.Fatalf("ReplaceTeamCache: %v", err)
		}
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
	loc, _ := time.LoadLocation("America/New_York")
	return &fixture{
		matcher: NewMatcher(cache, teams, reg, leagues, met, zerolog.Nop()),
		stub:    stub,
		norm:    normalize.New(),
		cls:     classify.New(zerolog.Nop()),
		loc:     loc,
	}
}

func (f *fixture) input(name string, target time.Time) Input {
	return Input{
		GroupID:    1,
		Stream:     f.cls.Classify(f.norm.Normalize(name)),
		TargetDate: target,
		Loc:        f.loc,
		Generation: 1,
	}
}

func nflFixture(t *testing.T, target time.Time) *fixture {
	stub := &stubProvider{name: "stub", events: map[string][]sports.Event{
		"nfl": {
			{
				ID: "401100", Provider: "stub", League: "nfl", Sport: "football",
				Name:  "Detroit Lions at Green Bay Packers",
				Start: target.Add(17 * time.Hour).UTC(),
				Home:  &sports.Team{ID: "9", Name: "Green Bay Packers", ShortName: "Packers", Abbreviation: "GB"},
				Away:  &sports.Team{ID: "8", Name: "Detroit Lions", ShortName: "Lions", Abbreviation: "DET"},
			},
			{
				ID: "401101", Provider: "stub", League: "nfl", Sport: "football",
				Name:  "Chicago Bears at Minnesota Vikings",
				Start: target.Add(20 * time.Hour).UTC(),
				Home:  &sports.Team{ID: "16", Name: "Minnesota Vikings", ShortName: "Vikings", Abbreviation: "MIN"},
				Away:  &sports.Team{ID: "3", Name: "Chicago Bears", ShortName: "Bears", Abbreviation: "CHI"},
			},
		},
	}}
	return newFixture(t,
		[]store.LeagueMapping{{Code: "nfl", Provider: "stub", Sport: "football", DisplayName: "NFL", Enabled: true}},
		[]store.TeamCacheEntry{
			{Provider: "stub", TeamID: "8", League: "nfl", Name: "Detroit Lions", Abbreviation: "DET", Sport: "football"},
			{Provider: "stub", TeamID: "9", League: "nfl", Name: "Green Bay Packers", Abbreviation: "GB", Sport: "football"},
			{Provider: "stub", TeamID: "3", League: "nfl", Name: "Chicago Bears", Abbreviation: "CHI", Sport: "football"},
			{Provider: "stub", TeamID: "16", League: "nfl", Name: "Minnesota Vikings", Abbreviation: "MIN", Sport: "football"},
		},
		stub)
}

func TestTeamMatchFullNames(t *testing.T) {
	target := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	f := nflFixture(t, target)

	out := f.matcher.Match(context.Background(), f.input("Detroit Lions vs Green Bay Packers", target))
	if !out.IsMatched() {
		t.Fatalf("outcome = %+v, want matched", out)
	}
	if out.Event.ID != "401100" {
		t.Fatalf("matched event %s, want 401100", out.Event.ID)
	}
	if out.Method != MethodFuzzy {
		t.Fatalf("method = %q, want FUZZY", out.Method)
	}
	if out.Confidence < 0.85 {
		t.Fatalf("confidence = %v, want >= 0.85", out.Confidence)
	}
}

func TestTeamMatchWrongPairFails(t *testing.T) {
	target := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	f := nflFixture(t, target)

	out := f.matcher.Match(context.Background(), f.input("Detroit Lions vs Dallas Cowboys", target))
	if out.Kind != KindFailed || out.Reason != ReasonNoMatch {
		t.Fatalf("outcome = %+v, want failed NO_MATCH", out)
	}
}

func TestCacheHitPreservesOriginMethod(t *testing.T) {
	target := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	f := nflFixture(t, target)
	in := f.input("Lions vs Packers", target)

	first := f.matcher.Match(context.Background(), in)
	if !first.IsMatched() || first.Method != MethodFuzzy {
		t.Fatalf("first pass = %+v, want fuzzy match", first)
	}
	callsAfterFirst := f.stub.calls

	second := f.matcher.Match(context.Background(), in)
	if !second.IsMatched() {
		t.Fatalf("second pass = %+v, want matched", second)
	}
	if second.Method != MethodCache {
		t.Fatalf("second method = %q, want CACHE", second.Method)
	}
	if second.Origin != MethodFuzzy {
		t.Fatalf("origin = %q, want FUZZY", second.Origin)
	}
	if second.Confidence != 1.0 {
		t.Fatalf("cache confidence = %v, want 1.0", second.Confidence)
	}
	if f.stub.calls != callsAfterFirst {
		t.Fatal("cache hit must not call the provider")
	}
}

func TestPlaceholderFiltered(t *testing.T) {
	target := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	f := nflFixture(t, target)
	out := f.matcher.Match(context.Background(), f.input("NFL 01: No Event Scheduled", target))
	if out.Kind != KindFiltered || out.Reason != ReasonPlaceholder {
		t.Fatalf("outcome = %+v, want filtered PLACEHOLDER", out)
	}
}

func ufcFixture(t *testing.T, target time.Time) *fixture {
	stub := &stubProvider{name: "stub", events: map[string][]sports.Event{
		"ufc": {
			{
				ID: "600041", Provider: "stub", League: "ufc", Sport: "mma",
				Name:  "UFC 325: Jones vs. Aspinall",
				Start: target.Add(23 * time.Hour).UTC(),
			},
		},
	}}
	return newFixture(t,
		[]store.LeagueMapping{{Code: "ufc", Provider: "stub", Sport: "mma", DisplayName: "UFC", Enabled: true}},
		nil, stub)
}

func TestCardNumberBoundary(t *testing.T) {
	target := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)

	f := ufcFixture(t, target)
	out := f.matcher.Match(context.Background(), f.input("UFC 32: Main Card", target))
	if out.Kind != KindFailed || out.Reason != ReasonNoEventCardMatch {
		t.Fatalf("UFC 32 against UFC 325: outcome = %+v, want failed NO_EVENT_CARD_MATCH", out)
	}

	f = ufcFixture(t, target)
	out = f.matcher.Match(context.Background(), f.input("UFC 325: Main Card", target))
	if !out.IsMatched() {
		t.Fatalf("UFC 325: outcome = %+v, want matched", out)
	}
	if out.Method != MethodKeyword || out.Confidence != 1.0 {
		t.Fatalf("method = %q confidence = %v, want KEYWORD 1.0", out.Method, out.Confidence)
	}
}

func TestCardFighterSurnameFallback(t *testing.T) {
	target := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	stub := &stubProvider{name: "stub", events: map[string][]sports.Event{
		"ufc": {
			{
				ID: "600050", Provider: "stub", League: "ufc", Sport: "mma",
				Name:  "UFC Fight Night: Holloway vs. Gaethje",
				Start: target.Add(22 * time.Hour).UTC(),
			},
		},
	}}
	f := newFixture(t,
		[]store.LeagueMapping{{Code: "ufc", Provider: "stub", Sport: "mma", DisplayName: "UFC", Enabled: true}},
		nil, stub)

	out := f.matcher.Match(context.Background(), f.input("UFC Fight Night Holloway vs Gaethje Prelims", target))
	if !out.IsMatched() {
		t.Fatalf("outcome = %+v, want matched", out)
	}
	if out.Method != MethodFuzzy || out.Confidence != 0.75 {
		t.Fatalf("method = %q confidence = %v, want FUZZY 0.75", out.Method, out.Confidence)
	}

	out = f.matcher.Match(context.Background(), f.input("UFC Fight Night Volkanovski vs Lopes", target))
	if out.Kind != KindFailed || out.Reason != ReasonNoEventCardMatch {
		t.Fatalf("unrelated fighters: outcome = %+v, want failed NO_EVENT_CARD_MATCH", out)
	}
}
