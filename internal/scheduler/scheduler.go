// Package scheduler drives the recurring processing tick: M3U refresh, the
// group pipeline, team and regular-TV guides, XMLTV output, downstream EPG
// push, reconciliation, and history pruning. It runs as a supervised service.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/dispatcharr"
	"github.com/snapetech/eventarr/internal/epg"
	"github.com/snapetech/eventarr/internal/lifecycle"
	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/pipeline"
	"github.com/snapetech/eventarr/internal/providers"
	"github.com/snapetech/eventarr/internal/reconcile"
	"github.com/snapetech/eventarr/internal/sports"
	"github.com/snapetech/eventarr/internal/store"
	"github.com/snapetech/eventarr/internal/xmltv"
)

const defaultInterval = 15 * time.Minute

// ErrTickInProgress is returned by Trigger while a tick is running.
var ErrTickInProgress = errors.New("scheduler: tick already running")

// Downstream is the slice of the channel-manager client the scheduler needs
// beyond what the pipeline already drives.
type Downstream interface {
	Enabled() bool
	ListM3UAccounts(ctx context.Context) ([]dispatcharr.M3UAccount, error)
	RefreshM3U(ctx context.Context, account dispatcharr.M3UAccount) (bool, error)
	ListEPGData(ctx context.Context, sourceID int64) ([]dispatcharr.EPGData, error)
	AssociateEPG(ctx context.Context, channelID, epgDataID int64) error
	TriggerEPGRefresh(ctx context.Context, sourceID int64) error
}

// TaskResult is the last outcome of one named tick task.
type TaskResult struct {
	Status   string        `json:"status"` // ok|error|skipped
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

type Scheduler struct {
	st      *store.Store
	pipe    *pipeline.Pipeline
	down    Downstream
	reg     *providers.Registry
	recon   *reconcile.Reconciler
	leagues interface{ DisplayName(code string) string }
	met     *metrics.Metrics
	log     zerolog.Logger

	ticking  atomic.Bool
	mu       sync.Mutex
	results  map[string]TaskResult
	lastTick time.Time

	Now func() time.Time
}

func New(st *store.Store, pipe *pipeline.Pipeline, down Downstream, reg *providers.Registry,
	recon *reconcile.Reconciler, leagues interface{ DisplayName(code string) string },
	met *metrics.Metrics, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		st: st, pipe: pipe, down: down, reg: reg, recon: recon, leagues: leagues,
		met: met, log: log.With().Str("component", "scheduler").Logger(),
		results: make(map[string]TaskResult),
		Now:     time.Now,
	}
}

func (s *Scheduler) String() string { return "scheduler" }

// Serve implements suture.Service: an immediate tick, then ticks on the
// configured cadence until the context is canceled. A cron expression wins
// over the interval; an invalid one logs and falls back.
func (s *Scheduler) Serve(ctx context.Context) error {
	cfg, err := s.st.GetSettings()
	if err != nil {
		return err
	}
	if !cfg.Scheduler.Enabled {
		s.log.Info().Msg("scheduler disabled, idling")
		<-ctx.Done()
		return ctx.Err()
	}

	s.Tick(ctx)

	for {
		wait := s.nextWait()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.Tick(ctx)
		}
	}
}

// nextWait computes the delay to the next tick, re-reading settings so
// cadence edits apply without a restart.
func (s *Scheduler) nextWait() time.Duration {
	cfg, err := s.st.GetSettings()
	if err != nil {
		return defaultInterval
	}
	now := s.Now()
	if expr := cfg.Scheduler.CronExpression; expr != "" {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			s.log.Warn().Err(err).Str("cron", expr).Msg("bad cron expression, using interval")
		} else if next := sched.Next(now); next.After(now) {
			return next.Sub(now)
		}
	}
	if m := cfg.Scheduler.IntervalMinutes; m > 0 {
		return time.Duration(m) * time.Minute
	}
	return defaultInterval
}

// Trigger runs a tick on demand, refusing to overlap a running one.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if s.ticking.Load() {
		return ErrTickInProgress
	}
	go s.Tick(context.WithoutCancel(ctx))
	return nil
}

// Status snapshots the per-task results of the last tick.
func (s *Scheduler) Status() (map[string]TaskResult, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TaskResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out, s.lastTick, s.ticking.Load()
}

// Tick runs the full task sequence once. Overlapping ticks are skipped, and
// a failing task never stops the ones after it.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.ticking.CompareAndSwap(false, true) {
		s.log.Warn().Msg("tick still running, skipping")
		return
	}
	defer s.ticking.Store(false)

	started := s.Now()
	s.mu.Lock()
	s.lastTick = started
	s.mu.Unlock()

	cfg, err := s.st.GetSettings()
	if err != nil {
		s.log.Error().Err(err).Msg("settings load failed, skipping tick")
		return
	}

	var guide *xmltv.Document
	s.task(ctx, "m3u_refresh", func(ctx context.Context) (string, error) {
		return s.refreshM3U(ctx)
	})
	s.task(ctx, "group_pipeline", func(ctx context.Context) (string, error) {
		res, err := s.pipe.Run(ctx)
		if err != nil {
			return "", err
		}
		guide = res.Guide
		return fmt.Sprintf("%d streams, %d matched, %d created", res.Streams, res.Matched, res.ChannelsCreated), nil
	})
	s.task(ctx, "team_epg", func(ctx context.Context) (string, error) {
		docs, err := s.teamGuides(ctx, cfg)
		if err != nil {
			return "", err
		}
		guide = mergeAll(guide, docs)
		return fmt.Sprintf("%d team channels", len(docs)), nil
	})
	s.task(ctx, "regular_tv", func(ctx context.Context) (string, error) {
		docs, err := s.regularTVGuides(cfg)
		if err != nil {
			return "", err
		}
		guide = mergeAll(guide, docs)
		return fmt.Sprintf("%d regular channels", len(docs)), nil
	})
	s.task(ctx, "xmltv_write", func(ctx context.Context) (string, error) {
		if guide == nil || cfg.EPG.OutputPath == "" {
			return "nothing to write", nil
		}
		if err := guide.WriteFile(cfg.EPG.OutputPath); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d channels, %d programmes", len(guide.Channels), len(guide.Programmes)), nil
	})
	s.task(ctx, "epg_push", func(ctx context.Context) (string, error) {
		return s.pushEPG(ctx, cfg)
	})
	s.task(ctx, "reconcile", func(ctx context.Context) (string, error) {
		rep, err := s.recon.Run(ctx, reconcile.OptionsFromSettings(cfg.Reconciliation))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d issues, %d fixed", len(rep.Issues), rep.Summary["fixed"]), nil
	})
	s.task(ctx, "prune_history", func(ctx context.Context) (string, error) {
		days := cfg.Reconciliation.ChannelHistoryRetentionDays
		if days <= 0 {
			return "retention disabled", nil
		}
		n, err := s.st.PruneHistory(time.Duration(days) * 24 * time.Hour)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d rows pruned", n), nil
	})

	s.met.TickDuration.Observe(time.Since(started).Seconds())
	s.log.Info().Dur("took", time.Since(started)).Msg("tick finished")
}

func (s *Scheduler) task(ctx context.Context, name string, fn func(context.Context) (string, error)) {
	started := s.Now()
	detail, err := fn(ctx)
	res := TaskResult{Status: "ok", Detail: detail, Duration: time.Since(started), At: started}
	switch {
	case err != nil:
		res.Status = "error"
		res.Detail = err.Error()
		s.met.TaskFailures.WithLabelValues(name).Inc()
		s.log.Error().Err(err).Str("task", name).Msg("task failed")
	case detail == taskSkipped:
		res.Status = "skipped"
		res.Detail = ""
	}
	s.mu.Lock()
	s.results[name] = res
	s.mu.Unlock()
}

const taskSkipped = "\x00skipped"

// refreshM3U re-pulls every M3U account an enabled group uses. The client
// skips accounts refreshed inside its skip window.
func (s *Scheduler) refreshM3U(ctx context.Context) (string, error) {
	if s.down == nil || !s.down.Enabled() {
		return taskSkipped, nil
	}
	groups, err := s.st.ListGroups(true)
	if err != nil {
		return "", err
	}
	wanted := make(map[int64]bool)
	for _, g := range groups {
		if g.M3UAccountID > 0 {
			wanted[g.M3UAccountID] = true
		}
	}
	if len(wanted) == 0 {
		return "no accounts in use", nil
	}
	accounts, err := s.down.ListM3UAccounts(ctx)
	if err != nil {
		return "", err
	}
	triggered := 0
	for _, a := range accounts {
		if !wanted[a.ID] || !a.IsActive {
			continue
		}
		ok, err := s.down.RefreshM3U(ctx, a)
		if err != nil {
			s.log.Error().Err(err).Str("account", a.Name).Msg("m3u refresh failed")
			continue
		}
		if ok {
			triggered++
		}
	}
	return fmt.Sprintf("%d of %d accounts refreshed", triggered, len(wanted)), nil
}

// teamGuides builds one guide document per tracked team from the provider's
// schedule over the lookahead window.
func (s *Scheduler) teamGuides(ctx context.Context, cfg store.Settings) ([]*xmltv.Document, error) {
	teams, err := s.st.ListTrackedTeams(true)
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		return nil, nil
	}
	gen, loc := s.generator(cfg)
	var docs []*xmltv.Document
	for _, team := range teams {
		events, err := s.teamSchedule(ctx, team, cfg, loc)
		if err != nil {
			s.log.Error().Err(err).Str("team", team.Name).Msg("team schedule fetch failed")
			continue
		}
		docs = append(docs, gen.ForTeam(team, events))
	}
	return docs, nil
}

// teamSchedule scans the league's daily slates for the team's games.
func (s *Scheduler) teamSchedule(ctx context.Context, team store.TrackedTeam, cfg store.Settings, loc *time.Location) ([]sports.Event, error) {
	p, ok := s.reg.Get(team.Provider)
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", team.Provider)
	}
	days := cfg.EPG.TeamScheduleDaysAhead
	if days <= 0 {
		days = 14
	}
	now := s.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var out []sports.Event
	for d := 0; d < days; d++ {
		events, err := p.Events(ctx, team.League, today.AddDate(0, 0, d))
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.HasTeams() && (ev.Home.ID == team.TeamID || ev.Away.ID == team.TeamID) {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

// regularTVGuides emits filler-only channels for the enabled regular TV
// groups so they keep a guide presence without event matching.
func (s *Scheduler) regularTVGuides(cfg store.Settings) ([]*xmltv.Document, error) {
	groups, err := s.st.ListRegularTVGroups()
	if err != nil {
		return nil, err
	}
	gen, _ := s.generator(cfg)
	var docs []*xmltv.Document
	for _, g := range groups {
		if !g.Enabled {
			continue
		}
		docs = append(docs, gen.ForRegularTV(fmt.Sprintf("eventarr.rtv.%d", g.ID), g.Name))
	}
	return docs, nil
}

func (s *Scheduler) generator(cfg store.Settings) (*epg.Generator, *time.Location) {
	loc, err := time.LoadLocation(cfg.EPG.Timezone)
	if err != nil {
		loc = time.UTC
	}
	pol := lifecycle.NewPolicy(cfg, loc)
	pol.Now = s.Now
	gen := epg.NewGenerator(cfg.EPG, pol, loc, s.log)
	gen.Now = s.Now
	if s.leagues != nil {
		gen.LeagueName = s.leagues.DisplayName
	}
	return gen, loc
}

// pushEPG triggers the downstream re-import of our XMLTV source, then points
// managed channels that lack a guide association at their entries.
func (s *Scheduler) pushEPG(ctx context.Context, cfg store.Settings) (string, error) {
	if s.down == nil || !s.down.Enabled() || cfg.Dispatcharr.EPGID == 0 {
		return taskSkipped, nil
	}
	if err := s.down.TriggerEPGRefresh(ctx, cfg.Dispatcharr.EPGID); err != nil {
		return "", err
	}
	entries, err := s.down.ListEPGData(ctx, cfg.Dispatcharr.EPGID)
	if err != nil {
		return "", err
	}
	byTVG := make(map[string]int64, len(entries))
	for _, e := range entries {
		byTVG[e.TVGID] = e.ID
	}
	active, err := s.st.ListActiveChannels(0)
	if err != nil {
		return "", err
	}
	associated := 0
	for _, ch := range active {
		if ch.DownstreamChannelID == nil {
			continue
		}
		dataID, ok := byTVG[ch.TVGID]
		if !ok {
			continue
		}
		if err := s.down.AssociateEPG(ctx, *ch.DownstreamChannelID, dataID); err != nil {
			s.log.Error().Err(err).Str("channel", ch.Name).Msg("epg association failed")
			continue
		}
		associated++
	}
	return fmt.Sprintf("refresh triggered, %d channels associated", associated), nil
}

func mergeAll(base *xmltv.Document, docs []*xmltv.Document) *xmltv.Document {
	if base == nil {
		base = xmltv.New()
	}
	for _, d := range docs {
		base.Merge(d)
	}
	return base
}
