package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTest(t)
	cfg, err := s.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if cfg.Lifecycle.ChannelCreateTiming != "same_day" {
		t.Fatalf("default create timing = %q", cfg.Lifecycle.ChannelCreateTiming)
	}
	cfg.Lifecycle.ChannelCreateTiming = "day_before"
	cfg.Scheduler.IntervalMinutes = 30
	if err := s.SaveSettings(cfg); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err := s.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if got.Lifecycle.ChannelCreateTiming != "day_before" || got.Scheduler.IntervalMinutes != 30 {
		t.Fatalf("settings did not round-trip: %+v", got)
	}
}

func TestTeamCacheReplaceAndQuery(t *testing.T) {
	s := openTest(t)
	teams := []TeamCacheEntry{
		{Provider: "espn", TeamID: "8", League: "nfl", Name: "detroit lions", Abbreviation: "det", Sport: "football"},
		{Provider: "espn", TeamID: "9", League: "nfl", Name: "green bay packers", Abbreviation: "gb", Sport: "football"},
		{Provider: "espn", TeamID: "8", League: "nba", Name: "detroit pistons", Abbreviation: "det", Sport: "basketball"},
		{Provider: "espn", TeamID: "", League: "nfl", Name: ""}, // dropped: empty name
	}
	leagues := []LeagueCacheEntry{
		{League: "nfl", Provider: "espn", Name: "NFL", Sport: "football", TeamCount: 2},
		{League: "nba", Provider: "espn", Name: "NBA", Sport: "basketball", TeamCount: 1},
	}
	if err := s.ReplaceTeamCache(teams, leagues); err != nil {
		t.Fatalf("ReplaceTeamCache: %v", err)
	}

	refs, err := s.TeamLeaguesByName("lions", "")
	if err != nil {
		t.Fatalf("TeamLeaguesByName: %v", err)
	}
	if len(refs) != 1 || refs[0].League != "nfl" {
		t.Fatalf("lions leagues = %+v", refs)
	}

	// Team id 8 exists in two sports; the sport argument disambiguates.
	nfl, err := s.TeamLeagues("8", "espn", "football")
	if err != nil {
		t.Fatalf("TeamLeagues: %v", err)
	}
	if len(nfl) != 1 || nfl[0] != "nfl" {
		t.Fatalf("team 8 football leagues = %v", nfl)
	}
	if _, err := s.TeamLeagues("8", "espn", ""); err == nil {
		t.Fatal("TeamLeagues without sport must error")
	}

	team, err := s.TeamByID("9", "nfl", "espn")
	if err != nil {
		t.Fatalf("TeamByID: %v", err)
	}
	if team.Name != "green bay packers" {
		t.Fatalf("TeamByID name = %q", team.Name)
	}

	meta, err := s.GetCacheMeta()
	if err != nil {
		t.Fatalf("GetCacheMeta: %v", err)
	}
	if meta.TeamsCount != 3 || meta.LeaguesCount != 2 {
		t.Fatalf("meta counts = %d teams %d leagues", meta.TeamsCount, meta.LeaguesCount)
	}
	if meta.Stale(7 * 24 * time.Hour) {
		t.Fatal("fresh cache reported stale")
	}
}

func TestRefreshInProgressGuard(t *testing.T) {
	s := openTest(t)
	ok, err := s.SetRefreshInProgress(true)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	ok, err = s.SetRefreshInProgress(true)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire must be rejected")
	}
	if _, err := s.SetRefreshInProgress(false); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, _ = s.SetRefreshInProgress(true)
	if !ok {
		t.Fatal("acquire after release must succeed")
	}
}

func TestChannelSoftDeleteCoexistence(t *testing.T) {
	s := openTest(t)
	first := &Channel{
		GroupID: 1, EventID: "401", EventProvider: "espn", TVGID: "eventarr.1.401",
		Name: "Lions vs Packers", Number: 101,
	}
	if err := s.InsertChannel(first); err != nil {
		t.Fatalf("InsertChannel: %v", err)
	}

	// A second active row for the same identity violates the partial index.
	dup := *first
	dup.ID = 0
	dup.Number = 102
	if err := s.InsertChannel(&dup); err == nil {
		t.Fatal("duplicate active identity must be rejected")
	}

	if err := s.SoftDeleteChannel(first.ID, "event_over"); err != nil {
		t.Fatalf("SoftDeleteChannel: %v", err)
	}
	// After soft delete a fresh row with the same tvg_id is allowed.
	replacement := *first
	replacement.ID = 0
	replacement.Number = 102
	if err := s.InsertChannel(&replacement); err != nil {
		t.Fatalf("insert after soft delete: %v", err)
	}

	got, err := s.GetChannel(first.ID)
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if !got.Deleted() || got.DeleteReason != "event_over" {
		t.Fatalf("soft-deleted row = %+v", got)
	}

	active, err := s.ListActiveChannels(1)
	if err != nil {
		t.Fatalf("ListActiveChannels: %v", err)
	}
	if len(active) != 1 || active[0].ID != replacement.ID {
		t.Fatalf("active channels = %+v", active)
	}
}

// A brand-new database is stamped at the current schema version, so the
// additive migration steps never run for it. Every column they add must also
// be present in the base schema or first writes fail.
func TestFreshDatabaseWritesSucceed(t *testing.T) {
	s := openTest(t)
	ch := &Channel{
		GroupID: 1, EventID: "401", EventProvider: "espn", TVGID: "eventarr.1.401",
		Name: "Lions vs Packers", Number: 101, SyncStatus: "pending_update",
	}
	if err := s.InsertChannel(ch); err != nil {
		t.Fatalf("InsertChannel on fresh database: %v", err)
	}
	got, err := s.GetChannel(ch.ID)
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if got.SyncStatus != "pending_update" {
		t.Fatalf("sync status = %q, want pending_update", got.SyncStatus)
	}

	if err := s.PutFingerprint(FingerprintEntry{
		GroupID: 1, Fingerprint: "fp", EventID: "401", Provider: "espn", League: "nfl",
		Snapshot: "{}", MatchMethod: "fuzzy", Generation: 1, NormVersion: 2,
	}); err != nil {
		t.Fatalf("PutFingerprint on fresh database: %v", err)
	}
	fp, err := s.GetFingerprint(1, "fp")
	if err != nil {
		t.Fatalf("GetFingerprint: %v", err)
	}
	if fp.NormVersion != 2 {
		t.Fatalf("norm version = %d, want 2", fp.NormVersion)
	}
}

func TestChannelStreamsOrderingAndUnique(t *testing.T) {
	s := openTest(t)
	ch := &Channel{GroupID: 1, EventID: "e1", EventProvider: "espn", TVGID: "eventarr.1.e1", Name: "c", Number: 101}
	if err := s.InsertChannel(ch); err != nil {
		t.Fatal(err)
	}
	add := func(streamID int64, prio int) {
		t.Helper()
		if err := s.AddChannelStream(&ChannelStream{
			ChannelID: ch.ID, DownstreamStreamID: streamID, Name: "s", Priority: prio,
		}); err != nil {
			t.Fatalf("AddChannelStream(%d): %v", streamID, err)
		}
	}
	add(10, 5)
	add(11, 1)
	add(10, 9) // duplicate active stream: ignored

	streams, err := s.ListChannelStreams(ch.ID)
	if err != nil {
		t.Fatalf("ListChannelStreams: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("got %d streams, want 2", len(streams))
	}
	if streams[0].DownstreamStreamID != 11 || streams[1].DownstreamStreamID != 10 {
		t.Fatalf("stream order = %d, %d", streams[0].DownstreamStreamID, streams[1].DownstreamStreamID)
	}
	if streams[1].Priority != 5 {
		t.Fatalf("duplicate add changed priority: %d", streams[1].Priority)
	}
}

func TestFingerprintGenerationEviction(t *testing.T) {
	s := openTest(t)
	put := func(fp string, gen int64) {
		t.Helper()
		if err := s.PutFingerprint(FingerprintEntry{
			GroupID: 1, Fingerprint: fp, EventID: "e", Provider: "espn", League: "nfl",
			Snapshot: "{}", MatchMethod: "fuzzy", Generation: gen, NormVersion: 3,
		}); err != nil {
			t.Fatalf("PutFingerprint(%s): %v", fp, err)
		}
	}
	put("old", 3)
	put("recent", 4)
	put("current", 5)

	n, err := s.EvictFingerprints(5)
	if err != nil {
		t.Fatalf("EvictFingerprints: %v", err)
	}
	if n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if _, err := s.GetFingerprint(1, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old entry survived eviction: %v", err)
	}
	if _, err := s.GetFingerprint(1, "recent"); err != nil {
		t.Fatalf("recent entry evicted: %v", err)
	}
}

func TestNextGenerationMonotonic(t *testing.T) {
	s := openTest(t)
	g1, err := s.NextGeneration()
	if err != nil {
		t.Fatal(err)
	}
	g2, err := s.NextGeneration()
	if err != nil {
		t.Fatal(err)
	}
	if g2 != g1+1 {
		t.Fatalf("generations %d, %d not consecutive", g1, g2)
	}
}

func TestGroupRoundTrip(t *testing.T) {
	s := openTest(t)
	parent := &Group{
		Name: "Sports A", Leagues: []string{"nfl", "nba"}, ChannelAssignmentMode: "auto",
		DuplicateMode: "consolidate", Enabled: true,
	}
	if err := s.SaveGroup(parent); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	child := &Group{
		Name: "Sports A Backup", ParentGroupID: &parent.ID,
		ChannelAssignmentMode: "auto", DuplicateMode: "consolidate", Enabled: true,
	}
	if err := s.SaveGroup(child); err != nil {
		t.Fatalf("SaveGroup child: %v", err)
	}
	groups, err := s.ListGroups(true)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups", len(groups))
	}
	got, err := s.GetGroup(child.ID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if !got.IsChild() || *got.ParentGroupID != parent.ID {
		t.Fatalf("child group = %+v", got)
	}
	p, _ := s.GetGroup(parent.ID)
	if len(p.Leagues) != 2 || p.Leagues[0] != "nfl" {
		t.Fatalf("leagues = %v", p.Leagues)
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	s := openTest(t)

	g := &Group{Name: "Sports A", Leagues: []string{"nfl"}, DuplicateMode: "consolidate", Enabled: true}
	if err := s.SaveGroup(g); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	cfg, _ := s.GetSettings()
	cfg.Scheduler.IntervalMinutes = 45
	if err := s.SaveSettings(cfg); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	snap := filepath.Join(t.TempDir(), "snap.db")
	if err := s.BackupTo(snap); err != nil {
		t.Fatalf("BackupTo: %v", err)
	}

	// Diverge, then restore the snapshot over the divergence.
	if err := s.DeleteGroup(g.ID); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	cfg.Scheduler.IntervalMinutes = 5
	if err := s.SaveSettings(cfg); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if err := s.RestoreFrom(snap); err != nil {
		t.Fatalf("RestoreFrom: %v", err)
	}

	groups, err := s.ListGroups(true)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 1 || groups[0].Name != "Sports A" {
		t.Fatalf("groups after restore = %+v", groups)
	}
	got, _ := s.GetSettings()
	if got.Scheduler.IntervalMinutes != 45 {
		t.Fatalf("interval after restore = %d", got.Scheduler.IntervalMinutes)
	}
}

func TestRestoreRejectsNonBackup(t *testing.T) {
	s := openTest(t)
	bogus := filepath.Join(t.TempDir(), "bogus.db")
	if err := os.WriteFile(bogus, []byte("not a database"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := s.RestoreFrom(bogus); err == nil {
		t.Fatal("restore accepted a non-database file")
	}
}

func TestGroupSortFieldDefaultsToTime(t *testing.T) {
	s := openTest(t)
	field, err := s.GroupSortField(99)
	if err != nil || field != "time" {
		t.Fatalf("field = %q err = %v", field, err)
	}
	if err := s.SetGroupSortField(99, "league"); err != nil {
		t.Fatalf("SetGroupSortField: %v", err)
	}
	if err := s.SetGroupSortField(99, "sport"); err != nil {
		t.Fatalf("SetGroupSortField update: %v", err)
	}
	field, err = s.GroupSortField(99)
	if err != nil || field != "sport" {
		t.Fatalf("field = %q err = %v", field, err)
	}
}
