package league

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/store"
)

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	seed := []store.LeagueMapping{
		{Code: "nfl", Provider: "espn", ProviderLeagueID: "nfl", Sport: "American Football",
			DisplayName: "NFL", Alias: "NFL", Enabled: true},
		{Code: "eng.1", Provider: "espn", ProviderLeagueID: "eng.1", Sport: "soccer",
			DisplayName: "Premier League", Alias: "EPL",
			FallbackProvider: "tsdb", FallbackLeagueID: "4328", Enabled: true},
		{Code: "nfl", Provider: "tsdb", ProviderLeagueID: "4391", Sport: "football", Enabled: false},
	}
	for _, m := range seed {
		if err := st.UpsertLeagueMapping(m); err != nil {
			t.Fatalf("seed %s: %v", m.Code, err)
		}
	}
	svc, err := New(st, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, st
}

func TestSportNormalizedOnLoad(t *testing.T) {
	svc, _ := newService(t)
	if got := svc.Sport("nfl"); got != "football" {
		t.Fatalf("Sport(nfl) = %q, want football", got)
	}
}

func TestResolveCode(t *testing.T) {
	svc, _ := newService(t)
	for _, tc := range []struct {
		in   string
		want string
		ok   bool
	}{
		{"nfl", "nfl", true},
		{"NFL", "nfl", true},
		{"epl", "eng.1", true},
		{"Premier League", "eng.1", true},
		{"khl", "", false},
	} {
		code, ok := svc.ResolveCode(tc.in)
		if ok != tc.ok || code != tc.want {
			t.Fatalf("ResolveCode(%q) = %q, %v; want %q, %v", tc.in, code, ok, tc.want, tc.ok)
		}
	}
}

func TestPrimaryPrefersEnabled(t *testing.T) {
	svc, _ := newService(t)
	m, ok := svc.Primary("nfl")
	if !ok || m.Provider != "espn" {
		t.Fatalf("Primary(nfl) = %+v, %v", m, ok)
	}
}

func TestEffectiveProviderFallback(t *testing.T) {
	svc, _ := newService(t)
	espnDown := func(p string) bool { return p != "espn" }

	provider, id, ok := svc.EffectiveProvider("eng.1", nil)
	if !ok || provider != "espn" || id != "eng.1" {
		t.Fatalf("primary route = %s/%s, %v", provider, id, ok)
	}
	provider, id, ok = svc.EffectiveProvider("eng.1", espnDown)
	if !ok || provider != "tsdb" || id != "4328" {
		t.Fatalf("fallback route = %s/%s, %v", provider, id, ok)
	}
}

func TestReloadSwapsIndex(t *testing.T) {
	svc, st := newService(t)
	if _, ok := svc.Get("nba", "espn"); ok {
		t.Fatal("nba should not exist yet")
	}
	if err := st.UpsertLeagueMapping(store.LeagueMapping{
		Code: "nba", Provider: "espn", ProviderLeagueID: "nba", Sport: "basketball", Enabled: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, ok := svc.Get("nba", "espn"); !ok {
		t.Fatal("nba missing after reload")
	}
}
