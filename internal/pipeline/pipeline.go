// Package pipeline runs one end-to-end processing pass: pull streams from
// the downstream manager per enabled group, filter, classify, match, expand
// cards, apply lifecycle decisions, upsert channels, order streams, sync the
// downstream, and render the group guide.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/channels"
	"github.com/snapetech/eventarr/internal/classify"
	"github.com/snapetech/eventarr/internal/dispatcharr"
	"github.com/snapetech/eventarr/internal/epg"
	"github.com/snapetech/eventarr/internal/fpcache"
	"github.com/snapetech/eventarr/internal/league"
	"github.com/snapetech/eventarr/internal/lifecycle"
	"github.com/snapetech/eventarr/internal/match"
	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/normalize"
	"github.com/snapetech/eventarr/internal/ordering"
	"github.com/snapetech/eventarr/internal/progress"
	"github.com/snapetech/eventarr/internal/store"
	"github.com/snapetech/eventarr/internal/streamfilter"
	"github.com/snapetech/eventarr/internal/ufc"
	"github.com/snapetech/eventarr/internal/xmltv"
)

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("pipeline: run already in progress")

// Downstream is the slice of the channel-manager client the pipeline needs.
type Downstream interface {
	Enabled() bool
	ListStreams(ctx context.Context, group string, account int64) ([]dispatcharr.Stream, error)
	ListM3UAccounts(ctx context.Context) ([]dispatcharr.M3UAccount, error)
	CreateChannel(ctx context.Context, in dispatcharr.ChannelInput) (dispatcharr.Channel, error)
	UpdateChannel(ctx context.Context, id int64, in dispatcharr.ChannelInput) (dispatcharr.Channel, error)
	DeleteChannel(ctx context.Context, id int64) error
}

type Pipeline struct {
	st       *store.Store
	down     Downstream
	norm     *normalize.Normalizer
	cls      *classify.Classifier
	matcher  *match.Matcher
	expander *ufc.Expander
	fpc      *fpcache.Cache
	mgr      *channels.Manager
	ord      *ordering.Service
	leagues  *league.Service
	bus      *progress.Bus
	met      *metrics.Metrics
	log      zerolog.Logger

	running atomic.Bool
	Now     func() time.Time
}

func New(st *store.Store, down Downstream, norm *normalize.Normalizer, cls *classify.Classifier,
	matcher *match.Matcher, expander *ufc.Expander, fpc *fpcache.Cache, mgr *channels.Manager,
	ord *ordering.Service, leagues *league.Service, bus *progress.Bus, met *metrics.Metrics, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		st: st, down: down, norm: norm, cls: cls, matcher: matcher, expander: expander,
		fpc: fpc, mgr: mgr, ord: ord, leagues: leagues, bus: bus, met: met,
		log: log.With().Str("component", "pipeline").Logger(),
		Now: time.Now,
	}
}

// Result summarizes one run for the scheduler status and the API.
type Result struct {
	Generation      int64            `json:"generation"`
	Groups          int              `json:"groups"`
	Streams         int              `json:"streams"`
	Matched         int              `json:"matched"`
	Filtered        int              `json:"filtered"`
	Failed          int              `json:"failed"`
	ChannelsCreated int              `json:"channels_created"`
	ChannelsDeleted int              `json:"channels_deleted"`
	FilterReasons   map[string]int   `json:"filter_reasons,omitempty"`
	Guide           *xmltv.Document  `json:"-"`
}

// Run executes one full pass. Concurrent runs are rejected; per-stream
// failures are contained and counted, never fatal to the run.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Result{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	tracker := p.bus.Start("epg_generation")
	res, err := p.run(ctx, tracker)
	if err != nil {
		tracker.Fail(err)
		return res, err
	}
	tracker.Complete(fmt.Sprintf("%d streams, %d matched, %d channels created", res.Streams, res.Matched, res.ChannelsCreated))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, tracker *progress.Tracker) (Result, error) {
	res := Result{FilterReasons: map[string]int{}}

	cfg, err := p.st.GetSettings()
	if err != nil {
		return res, fmt.Errorf("pipeline: settings: %w", err)
	}
	loc, err := time.LoadLocation(cfg.EPG.Timezone)
	if err != nil {
		p.log.Warn().Str("tz", cfg.EPG.Timezone).Msg("bad timezone, using UTC")
		loc = time.UTC
	}
	gen, err := p.st.NextGeneration()
	if err != nil {
		return res, fmt.Errorf("pipeline: generation: %w", err)
	}
	res.Generation = gen
	pol := lifecycle.NewPolicy(cfg, loc)
	pol.Now = p.Now

	tracker.Update("load", "loading configuration", 2)

	groups, err := p.st.ListGroups(true)
	if err != nil {
		return res, fmt.Errorf("pipeline: groups: %w", err)
	}
	groups = parentsFirst(groups)
	byID := make(map[int64]store.Group, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}

	keywords, err := p.st.ListExceptionKeywords(true)
	if err != nil {
		return res, fmt.Errorf("pipeline: keywords: %w", err)
	}
	rules, err := p.st.ListOrderingRules()
	if err != nil {
		return res, fmt.Errorf("pipeline: ordering rules: %w", err)
	}
	p.ord.Reload(rules)

	used, err := p.st.UsedChannelNumbers(0)
	if err != nil {
		return res, err
	}
	alloc := channels.NewAllocator(cfg.Lifecycle, groups, used)

	accountNames := p.accountNames(ctx)

	today := civilMidnight(p.Now(), loc)
	touched := make(map[int64]bool)

	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		pct := 5 + i*70/max(1, len(groups))
		tracker.Update("group", fmt.Sprintf("processing %s", g.Name), pct)

		if err := p.processGroup(ctx, g, byID, keywords, alloc, pol, gen, today, loc, accountNames, &res, touched); err != nil {
			p.log.Error().Err(err).Str("group", g.Name).Msg("group processing failed")
			res.FilterReasons["group_error"]++
		}
		res.Groups++
	}

	tracker.Update("lifecycle", "running scheduled deletions", 80)
	deleted, err := p.mgr.DeleteDue(p.Now().UTC())
	if err != nil {
		p.log.Error().Err(err).Msg("scheduled deletions failed")
	}
	res.ChannelsDeleted += len(deleted)
	for _, ch := range deleted {
		p.dropDownstream(ctx, ch)
	}

	tracker.Update("sync", "syncing downstream channels", 85)
	if err := p.syncDownstream(ctx, cfg); err != nil {
		p.log.Error().Err(err).Msg("downstream sync failed")
	}

	if _, err := p.fpc.Evict(gen); err != nil {
		p.log.Error().Err(err).Msg("fingerprint eviction failed")
	}

	tracker.Update("epg", "rendering guide", 92)
	active, err := p.st.ListActiveChannels(0)
	if err != nil {
		return res, err
	}
	p.met.ActiveChannels.Set(float64(len(active)))
	egen := epg.NewGenerator(cfg.EPG, pol, loc, p.log)
	egen.Now = p.Now
	egen.LeagueName = p.leagueName
	res.Guide = egen.ForChannels(active)

	return res, nil
}

func (p *Pipeline) leagueName(code string) string {
	return p.leagues.DisplayName(code)
}

// processGroup runs the filter-classify-match-upsert chain for one group.
func (p *Pipeline) processGroup(ctx context.Context, g store.Group, byID map[int64]store.Group,
	keywords []store.ExceptionKeyword, alloc *channels.Allocator, pol *lifecycle.Policy,
	gen int64, today time.Time, loc *time.Location, accountNames map[int64]string,
	res *Result, touched map[int64]bool) error {

	streams, err := p.down.ListStreams(ctx, g.Name, g.M3UAccountID)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}
	if err := p.st.UpdateGroupStreamCount(g.ID, len(streams)); err != nil {
		p.log.Warn().Err(err).Int64("group", g.ID).Msg("stream count update failed")
	}

	filter := streamfilter.ForGroup(g, p.log)
	var items []ufc.Item
	streamMeta := make(map[int64]dispatcharr.Stream)

	for _, s := range streams {
		res.Streams++
		if ok, reason := filter.Allow(s.Name); !ok {
			res.Filtered++
			res.FilterReasons[reason]++
			continue
		}
		out := p.matchOne(ctx, g, filter, s, gen, today, loc)
		switch out.Kind {
		case match.KindMatched:
			res.Matched++
			items = append(items, ufc.Item{
				StreamID: s.ID,
				Name:     s.Name,
				Stream:   p.classifyFor(filter, s.Name),
				Event:    out.Event,
			})
			streamMeta[s.ID] = s
		case match.KindFiltered:
			res.Filtered++
			res.FilterReasons[out.Reason]++
		default:
			res.Failed++
		}
	}

	expanded := p.expander.Expand(items, loc, pol.Duration("mma"))
	p.sortExpanded(g.ID, expanded)
	for _, eg := range expanded {
		ev := eg.Event
		evRef := channels.EventRef{
			Event:        ev,
			EventDate:    ev.LocalDate(loc).Format("2006-01-02"),
			Segment:      eg.Segment,
			SegmentStart: eg.SegmentStart,
			SegmentEnd:   eg.SegmentEnd,
		}

		switch pol.Categorize(ev) {
		case lifecycle.CategoryEventPast:
			p.deleteForEvent(ctx, g, evRef, res)
			continue
		case lifecycle.CategoryBeforeWindow, lifecycle.CategoryEventFinal:
			continue
		}
		if d := pol.ShouldCreate(ev, len(eg.Items) > 0); !d.Act {
			continue
		}

		for _, item := range eg.Items {
			kw := channels.MatchKeyword(keywords, item.Name)
			meta := streamMeta[item.StreamID]
			ref := channels.StreamRef{
				ID:           item.StreamID,
				Name:         item.Name,
				M3UAccountID: meta.M3UAccount,
				Priority: p.ord.Priority(ordering.Stream{
					Name:        item.Name,
					M3UAccount:  accountNames[meta.M3UAccount],
					SourceGroup: g.Name,
				}),
			}

			var up channels.UpsertResult
			var err error
			if g.IsChild() {
				parent, ok := byID[*g.ParentGroupID]
				if !ok {
					parent, err = p.st.GetGroup(*g.ParentGroupID)
					if err != nil {
						p.log.Warn().Int64("parent", *g.ParentGroupID).Msg("child group's parent missing")
						continue
					}
				}
				up, err = p.mgr.AttachToParent(parent, g, evRef, ref, kw)
			} else {
				up, err = p.mgr.Upsert(g, evRef, ref, kw, alloc)
			}
			if err != nil {
				p.log.Error().Err(err).Str("stream", item.Name).Msg("channel upsert failed")
				continue
			}
			if up.Created {
				res.ChannelsCreated++
			}
			if up.Channel.ID != 0 {
				touched[up.Channel.ID] = true
				if th := pol.DeleteThreshold(ev); !th.IsZero() {
					ch := up.Channel
					if err := p.mgr.ScheduleDelete(&ch, th); err != nil {
						p.log.Warn().Err(err).Int64("channel", ch.ID).Msg("schedule delete failed")
					}
				}
			}
		}
	}
	return nil
}

// sortExpanded orders an event batch by the group's configured sort priority
// so automatic numbering follows it. Unknown fields fall back to start time.
func (p *Pipeline) sortExpanded(groupID int64, batch []ufc.Group) {
	field, err := p.st.GroupSortField(groupID)
	if err != nil {
		field = "time"
	}
	start := func(g ufc.Group) time.Time {
		if !g.SegmentStart.IsZero() {
			return g.SegmentStart
		}
		return g.Event.Start
	}
	sort.SliceStable(batch, func(i, j int) bool {
		switch field {
		case "league":
			if batch[i].Event.League != batch[j].Event.League {
				return batch[i].Event.League < batch[j].Event.League
			}
		case "sport":
			if batch[i].Event.Sport != batch[j].Event.Sport {
				return batch[i].Event.Sport < batch[j].Event.Sport
			}
		}
		return start(batch[i]).Before(start(batch[j]))
	})
}

// matchOne classifies and matches one stream, containing panics so a single
// hostile name never kills the run.
func (p *Pipeline) matchOne(ctx context.Context, g store.Group, filter *streamfilter.Filter,
	s dispatcharr.Stream, gen int64, today time.Time, loc *time.Location) (out match.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("stream", s.Name).Msg("match panicked")
			out = match.Failed(match.ReasonUnknownFormat, fmt.Sprintf("panic: %v", r))
		}
	}()
	cls := p.classifyFor(filter, s.Name)
	return p.matcher.Match(ctx, match.Input{
		GroupID:      g.ID,
		Stream:       cls,
		GroupLeagues: g.Leagues,
		TargetDate:   today,
		Loc:          loc,
		Generation:   gen,
	})
}

// classifyFor normalizes and classifies a stream name, letting a group's
// custom extraction rewrite the sides first.
func (p *Pipeline) classifyFor(filter *streamfilter.Filter, name string) classify.Classified {
	if t1, t2, ok := filter.ExtractTeams(name); ok {
		name = t1 + " vs " + t2
	}
	return p.cls.Classify(p.norm.Normalize(name))
}

// deleteForEvent removes the active channels a past event still holds.
// Rows are stored under the segment-qualified key, so the lookup must use
// the same identity the upsert did.
func (p *Pipeline) deleteForEvent(ctx context.Context, g store.Group, ev channels.EventRef, res *Result) {
	if g.IsChild() {
		return
	}
	active, err := p.st.FindActiveChannelsForEvent(g.ID, ev.Event.Provider, ev.Key())
	if err != nil {
		return
	}
	for _, ch := range active {
		if err := p.mgr.Delete(ch, "event past"); err != nil {
			p.log.Error().Err(err).Int64("channel", ch.ID).Msg("past-event delete failed")
			continue
		}
		res.ChannelsDeleted++
		p.dropDownstream(ctx, ch)
	}
}

func (p *Pipeline) dropDownstream(ctx context.Context, ch store.Channel) {
	if ch.DownstreamChannelID == nil || p.down == nil || !p.down.Enabled() {
		return
	}
	if err := p.down.DeleteChannel(ctx, *ch.DownstreamChannelID); err != nil {
		p.log.Error().Err(err).Int64("downstream", *ch.DownstreamChannelID).Msg("downstream delete failed")
	}
}

// syncDownstream pushes pending engine channels to the downstream manager
// and updates drifted ones. Streams attach ordered by priority.
func (p *Pipeline) syncDownstream(ctx context.Context, cfg store.Settings) error {
	if p.down == nil || !p.down.Enabled() {
		return nil
	}
	active, err := p.st.ListActiveChannels(0)
	if err != nil {
		return err
	}
	for i := range active {
		ch := active[i]
		streams, err := p.st.ListChannelStreams(ch.ID)
		if err != nil {
			continue
		}
		ids := make([]int64, 0, len(streams))
		for _, s := range streams {
			ids = append(ids, s.DownstreamStreamID)
		}
		number := float64(ch.Number)
		in := dispatcharr.ChannelInput{
			Name:          &ch.Name,
			ChannelNumber: &number,
			TVGID:         &ch.TVGID,
			Streams:       ids,
		}
		if len(cfg.Dispatcharr.DefaultChannelProfileIDs) > 0 {
			in.Profiles = cfg.Dispatcharr.DefaultChannelProfileIDs
		}
		if ch.DownstreamChannelID == nil {
			created, err := p.down.CreateChannel(ctx, in)
			if err != nil {
				p.log.Error().Err(err).Str("channel", ch.Name).Msg("downstream create failed")
				continue
			}
			ch.DownstreamChannelID = &created.ID
			ch.SyncStatus = "synced"
			if err := p.st.UpdateChannel(&ch); err != nil {
				p.log.Error().Err(err).Int64("channel", ch.ID).Msg("downstream id save failed")
			}
			continue
		}
		if ch.SyncStatus != "synced" {
			if _, err := p.down.UpdateChannel(ctx, *ch.DownstreamChannelID, in); err != nil {
				p.log.Error().Err(err).Str("channel", ch.Name).Msg("downstream update failed")
				continue
			}
			ch.SyncStatus = "synced"
			if err := p.st.UpdateChannel(&ch); err != nil {
				p.log.Error().Err(err).Int64("channel", ch.ID).Msg("sync status save failed")
			}
		}
	}
	return nil
}

func (p *Pipeline) accountNames(ctx context.Context) map[int64]string {
	names := make(map[int64]string)
	if p.down == nil || !p.down.Enabled() {
		return names
	}
	accounts, err := p.down.ListM3UAccounts(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("m3u account listing failed, ordering rules on account names inert")
		return names
	}
	for _, a := range accounts {
		names[a.ID] = a.Name
	}
	return names
}

// parentsFirst orders groups so parents are processed before their children,
// keeping the configured sort order within each tier.
func parentsFirst(groups []store.Group) []store.Group {
	out := append([]store.Group(nil), groups...)
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].IsChild() && out[j].IsChild()
	})
	return out
}

func civilMidnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
