package teamcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/snapetech/eventarr/internal/league"
	"github.com/snapetech/eventarr/internal/providers"
	"github.com/snapetech/eventarr/internal/seed"
	"github.com/snapetech/eventarr/internal/sports"
	"github.com/snapetech/eventarr/internal/store"
)

// ErrRefreshInProgress is returned when a refresh already holds the guard,
// in this process or another one sharing the database.
var ErrRefreshInProgress = errors.New("teamcache: refresh already in progress")

const (
	// DefaultMaxAge is how old the cache may get before RefreshIfNeeded
	// triggers a full rebuild.
	DefaultMaxAge = 7 * 24 * time.Hour

	// refreshWorkers bounds concurrent league fetches. A full rebuild
	// covers well over a hundred leagues; fifty in flight keeps the
	// refresh fast while the provider rate limiters and the per-host
	// connection cap throttle the actual request rate.
	refreshWorkers = 50
)

// ProgressFunc receives integer-percent refresh progress. percent is
// monotonic within one refresh.
type ProgressFunc func(percent int, message string)

// Refresher rebuilds the roster cache from the configured providers.
type Refresher struct {
	st      *store.Store
	reg     *providers.Registry
	leagues *league.Service
	log     zerolog.Logger
	sf      singleflight.Group
}

func NewRefresher(st *store.Store, reg *providers.Registry, leagues *league.Service, log zerolog.Logger) *Refresher {
	return &Refresher{
		st:      st,
		reg:     reg,
		leagues: leagues,
		log:     log.With().Str("component", "teamcache.refresh").Logger(),
	}
}

// RefreshIfNeeded runs a full refresh when the cache is stale or empty.
// Returns whether a refresh ran.
func (r *Refresher) RefreshIfNeeded(ctx context.Context) (bool, error) {
	meta, err := r.st.GetCacheMeta()
	if err != nil {
		return false, err
	}
	if !meta.Stale(DefaultMaxAge) {
		return false, nil
	}
	err = r.Refresh(ctx, nil)
	if errors.Is(err, ErrRefreshInProgress) {
		return false, nil
	}
	return err == nil, err
}

// soccerDiscoverer is the optional provider capability for enumerating
// soccer leagues beyond the configured mappings.
type soccerDiscoverer interface {
	SoccerLeagues(ctx context.Context) ([]sports.LeagueInfo, error)
}

type target struct {
	code     string
	sport    string
	name     string
	provider providers.SportsProvider
}

// Refresh rebuilds team_cache and league_cache from scratch. The previous
// cache stays queryable until the replacement commits. progress may be nil.
func (r *Refresher) Refresh(ctx context.Context, progress ProgressFunc) error {
	if progress == nil {
		progress = func(int, string) {}
	}
	_, err, _ := r.sf.Do("refresh", func() (any, error) {
		return nil, r.refresh(ctx, progress)
	})
	return err
}

func (r *Refresher) refresh(ctx context.Context, progress ProgressFunc) error {
	ok, err := r.st.SetRefreshInProgress(true)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRefreshInProgress
	}
	defer func() {
		if _, err := r.st.SetRefreshInProgress(false); err != nil {
			r.log.Error().Err(err).Msg("clear refresh-in-progress flag")
		}
	}()

	start := time.Now()
	progress(0, "collecting leagues")
	targets := r.collectTargets(ctx)
	if len(targets) == 0 {
		return errors.New("teamcache: no leagues to refresh")
	}

	var (
		mu       sync.Mutex
		teams    []store.TeamCacheEntry
		leagues  []store.LeagueCacheEntry
		failures int
		done     int
		lastPct  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshWorkers)
	for _, t := range targets {
		g.Go(func() error {
			roster, err := t.provider.LeagueTeams(gctx, t.code)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// One bad league must not sink the refresh.
				r.log.Warn().Err(err).Str("league", t.code).Str("provider", t.provider.Name()).Msg("league roster fetch failed")
				failures++
			} else {
				for _, team := range roster {
					teams = append(teams, store.TeamCacheEntry{
						Provider:     t.provider.Name(),
						TeamID:       team.ID,
						League:       t.code,
						Name:         team.Name,
						ShortName:    team.ShortName,
						Abbreviation: team.Abbreviation,
						Sport:        t.sport,
						LogoURL:      team.LogoURL,
					})
				}
				leagues = append(leagues, store.LeagueCacheEntry{
					League:    t.code,
					Provider:  t.provider.Name(),
					Name:      t.name,
					Sport:     t.sport,
					TeamCount: len(roster),
				})
			}
			done++
			if pct := done * 95 / len(targets); pct > lastPct {
				lastPct = pct
				progress(pct, fmt.Sprintf("fetched %d/%d leagues", done, len(targets)))
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		r.recordError(err)
		return err
	}
	if failures == len(targets) {
		err := errors.New("teamcache: every league fetch failed, keeping previous cache")
		r.recordError(err)
		return err
	}

	seeds, err := seed.Teams()
	if err != nil {
		return err
	}
	teams = dedupe(seed.Merge(teams, seeds))

	progress(97, "writing cache")
	if err := r.st.ReplaceTeamCache(teams, leagues); err != nil {
		r.recordError(err)
		return err
	}
	if err := r.leagues.ApplyDefaultAliases(); err != nil {
		r.log.Warn().Err(err).Msg("default alias backfill failed")
	}
	r.log.Info().
		Int("leagues", len(leagues)).
		Int("teams", len(teams)).
		Int("failures", failures).
		Dur("elapsed", time.Since(start)).
		Msg("team cache refreshed")
	progress(100, "refresh complete")
	return nil
}

// collectTargets gathers enabled league mappings plus discovered soccer
// leagues not already mapped, each bound to the provider that will serve it.
func (r *Refresher) collectTargets(ctx context.Context) []target {
	seen := make(map[string]bool)
	var targets []target
	for _, m := range r.leagues.Enabled() {
		provName, _, ok := r.leagues.EffectiveProvider(m.Code, r.reg.Has)
		if !ok {
			r.log.Warn().Str("league", m.Code).Msg("no registered provider serves league")
			continue
		}
		p, _ := r.reg.Get(provName)
		if seen[m.Code] {
			continue
		}
		seen[m.Code] = true
		targets = append(targets, target{code: m.Code, sport: m.Sport, name: m.DisplayName, provider: p})
	}
	if espn, ok := r.reg.Get("espn"); ok {
		if disc, ok := espn.(soccerDiscoverer); ok {
			infos, err := disc.SoccerLeagues(ctx)
			if err != nil {
				r.log.Warn().Err(err).Msg("soccer league discovery failed")
			}
			for _, info := range infos {
				if seen[info.Code] {
					continue
				}
				seen[info.Code] = true
				targets = append(targets, target{code: info.Code, sport: info.Sport, name: info.Name, provider: espn})
			}
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].code < targets[j].code })
	return targets
}

// dedupe drops repeated (provider, league, team id) rows, keeping the first.
func dedupe(teams []store.TeamCacheEntry) []store.TeamCacheEntry {
	seen := make(map[string]bool, len(teams))
	out := teams[:0]
	for _, t := range teams {
		key := t.Provider + "|" + t.League + "|" + t.TeamID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func (r *Refresher) recordError(err error) {
	if serr := r.st.SetCacheError(err.Error()); serr != nil {
		r.log.Error().Err(serr).Msg("record cache error")
	}
}
