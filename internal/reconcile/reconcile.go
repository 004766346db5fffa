// Package reconcile audits the engine's channel records against the
// downstream channel manager and the configured number range, reporting
// drift and optionally repairing it.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/channels"
	"github.com/snapetech/eventarr/internal/dispatcharr"
	"github.com/snapetech/eventarr/internal/store"
)

// Issue kinds.
const (
	KindOrphanEngine     = "orphan_engine"     // engine channel with no downstream twin
	KindOrphanDownstream = "orphan_downstream" // downstream channel with our tvg prefix but unknown here
	KindDuplicate        = "duplicate"         // two active channels sharing a consolidate identity
	KindOutOfRange       = "out_of_range"      // number outside the configured range
)

type Issue struct {
	Kind      string `json:"kind"`
	ChannelID int64  `json:"channel_id,omitempty"` // engine channel
	DownID    int64  `json:"downstream_id,omitempty"`
	Detail    string `json:"detail"`
	Fixed     bool   `json:"fixed"`
}

type Report struct {
	StartedAt time.Time      `json:"started_at"`
	Issues    []Issue        `json:"issues"`
	Actions   []string       `json:"actions"`
	Summary   map[string]int `json:"summary"`
}

// Downstream is the slice of the channel-manager client reconciliation
// needs.
type Downstream interface {
	Enabled() bool
	ListChannels(ctx context.Context) ([]dispatcharr.Channel, error)
	DeleteChannel(ctx context.Context, id int64) error
}

type Reconciler struct {
	st   *store.Store
	mgr  *channels.Manager
	down Downstream
	log  zerolog.Logger
}

func New(st *store.Store, mgr *channels.Manager, down Downstream, log zerolog.Logger) *Reconciler {
	return &Reconciler{st: st, mgr: mgr, down: down, log: log.With().Str("component", "reconcile").Logger()}
}

// Options selects which issue kinds get repaired; detection always runs.
type Options struct {
	FixOrphanEngine     bool
	FixOrphanDownstream bool
	FixDuplicates       bool
	FixOutOfRange       bool
}

// OptionsFromSettings maps the reconciliation settings onto fix toggles.
// OutOfRange repair rides the duplicate toggle's default-on behavior: a
// number outside the range is never intentional.
func OptionsFromSettings(cfg store.ReconciliationSettings) Options {
	return Options{
		FixOrphanEngine:     cfg.AutoFixOrphanEngine,
		FixOrphanDownstream: cfg.AutoFixOrphanDownstream,
		FixDuplicates:       cfg.AutoFixDuplicates,
		FixOutOfRange:       true,
	}
}

// Run performs one reconciliation pass. Detection errors on one front do not
// stop the others.
func (r *Reconciler) Run(ctx context.Context, opts Options) (Report, error) {
	rep := Report{StartedAt: time.Now().UTC(), Summary: map[string]int{}}

	engine, err := r.st.ListActiveChannels(0)
	if err != nil {
		return rep, fmt.Errorf("reconcile: list channels: %w", err)
	}

	r.checkDuplicates(&rep, engine, opts)
	r.checkRange(&rep, engine, opts)

	if r.down != nil && r.down.Enabled() {
		down, err := r.down.ListChannels(ctx)
		if err != nil {
			r.log.Warn().Err(err).Msg("downstream listing failed, skipping orphan checks")
			rep.Actions = append(rep.Actions, "downstream unreachable, orphan checks skipped")
		} else {
			r.checkOrphanEngine(&rep, engine, down, opts)
			r.checkOrphanDownstream(ctx, &rep, engine, down, opts)
		}
	}

	for _, is := range rep.Issues {
		rep.Summary[is.Kind]++
		if is.Fixed {
			rep.Summary["fixed"]++
		}
	}
	r.log.Info().Int("issues", len(rep.Issues)).Interface("summary", rep.Summary).Msg("reconciliation pass complete")
	return rep, nil
}

// identity is the consolidate key duplicates collide on.
func identity(c store.Channel) string {
	kw := ""
	if c.ExceptionKeyword != nil {
		kw = *c.ExceptionKeyword
	}
	return fmt.Sprintf("%d|%s|%s|%s", c.GroupID, c.EventProvider, c.EventID, kw)
}

// checkDuplicates keeps the oldest channel of each identity and soft-deletes
// the rest when fixing.
func (r *Reconciler) checkDuplicates(rep *Report, engine []store.Channel, opts Options) {
	byID := make(map[string][]store.Channel)
	for _, c := range engine {
		key := identity(c)
		byID[key] = append(byID[key], c)
	}
	for _, group := range byID {
		if len(group) < 2 {
			continue
		}
		// ListActiveChannels orders by number, not age; find the oldest.
		oldest := group[0]
		for _, c := range group[1:] {
			if c.CreatedAt.Before(oldest.CreatedAt) || (c.CreatedAt.Equal(oldest.CreatedAt) && c.ID < oldest.ID) {
				oldest = c
			}
		}
		for _, c := range group {
			if c.ID == oldest.ID {
				continue
			}
			is := Issue{Kind: KindDuplicate, ChannelID: c.ID,
				Detail: fmt.Sprintf("%q duplicates channel %d", c.Name, oldest.ID)}
			if opts.FixDuplicates {
				if err := r.mgr.Delete(c, "duplicate"); err != nil {
					r.log.Error().Err(err).Int64("channel", c.ID).Msg("duplicate delete failed")
				} else {
					is.Fixed = true
					rep.Actions = append(rep.Actions, fmt.Sprintf("deleted duplicate channel %d, kept %d", c.ID, oldest.ID))
				}
			}
			rep.Issues = append(rep.Issues, is)
		}
	}
}

// checkRange renumbers channels sitting outside the configured range.
func (r *Reconciler) checkRange(rep *Report, engine []store.Channel, opts Options) {
	cfg, err := r.st.GetSettings()
	if err != nil {
		r.log.Warn().Err(err).Msg("settings unreadable, range check skipped")
		return
	}
	groups, err := r.st.ListGroups(false)
	if err != nil {
		r.log.Warn().Err(err).Msg("groups unreadable, range check skipped")
		return
	}
	used, err := r.st.UsedChannelNumbers(0)
	if err != nil {
		return
	}
	alloc := channels.NewAllocator(cfg.Lifecycle, groups, used)

	for i := range engine {
		c := engine[i]
		if alloc.InRange(c.Number) {
			continue
		}
		is := Issue{Kind: KindOutOfRange, ChannelID: c.ID,
			Detail: fmt.Sprintf("number %d outside %d-%d", c.Number, cfg.Lifecycle.ChannelRangeStart, cfg.Lifecycle.ChannelRangeEnd)}
		if opts.FixOutOfRange {
			if n, err := alloc.Next(c.GroupID); err == nil {
				if err := r.mgr.Renumber(&c, n); err == nil {
					is.Fixed = true
					rep.Actions = append(rep.Actions, fmt.Sprintf("renumbered channel %d to %d", c.ID, n))
				}
			}
		}
		rep.Issues = append(rep.Issues, is)
	}
}

// checkOrphanEngine flags engine channels whose downstream twin vanished.
// The fix marks sync_status so the next pipeline tick recreates it.
func (r *Reconciler) checkOrphanEngine(rep *Report, engine []store.Channel, down []dispatcharr.Channel, opts Options) {
	present := make(map[int64]bool, len(down))
	for _, d := range down {
		present[d.ID] = true
	}
	for i := range engine {
		c := engine[i]
		if c.DownstreamChannelID == nil || present[*c.DownstreamChannelID] {
			continue
		}
		is := Issue{Kind: KindOrphanEngine, ChannelID: c.ID,
			Detail: fmt.Sprintf("downstream channel %d is gone", *c.DownstreamChannelID)}
		if opts.FixOrphanEngine {
			c.DownstreamChannelID = nil
			c.SyncStatus = "pending"
			if err := r.st.UpdateChannel(&c); err == nil {
				is.Fixed = true
				rep.Actions = append(rep.Actions, fmt.Sprintf("channel %d queued for downstream recreation", c.ID))
			}
		}
		rep.Issues = append(rep.Issues, is)
	}
}

// checkOrphanDownstream flags downstream channels carrying our tvg prefix
// that no engine record claims. The fix deletes them downstream and is off
// by default: a second engine instance sharing the downstream would look
// exactly like this.
func (r *Reconciler) checkOrphanDownstream(ctx context.Context, rep *Report, engine []store.Channel, down []dispatcharr.Channel, opts Options) {
	claimed := make(map[int64]bool, len(engine))
	for _, c := range engine {
		if c.DownstreamChannelID != nil {
			claimed[*c.DownstreamChannelID] = true
		}
	}
	for _, d := range down {
		if !strings.HasPrefix(d.TVGID, channels.TVGPrefix) || claimed[d.ID] {
			continue
		}
		is := Issue{Kind: KindOrphanDownstream, DownID: d.ID,
			Detail: fmt.Sprintf("downstream channel %d %q has engine tvg id but no engine record", d.ID, d.Name)}
		if opts.FixOrphanDownstream {
			if err := r.down.DeleteChannel(ctx, d.ID); err != nil {
				r.log.Error().Err(err).Int64("downstream", d.ID).Msg("orphan downstream delete failed")
			} else {
				is.Fixed = true
				rep.Actions = append(rep.Actions, fmt.Sprintf("deleted orphan downstream channel %d", d.ID))
			}
		}
		rep.Issues = append(rep.Issues, is)
	}
}
