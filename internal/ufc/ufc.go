// Package ufc expands one matched combat card into per-segment matches.
// A card is broadcast as up to three streams (early prelims, prelims, main
// card); each needs its own channel window with segment-accurate start and
// end times.
package ufc

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/classify"
	"github.com/snapetech/eventarr/internal/sports"
)

// Estimated card pacing used when the provider gave no per-segment times.
const (
	prelimsLead      = 90 * time.Minute // prelims start this far before the main card
	earlyPrelimsLead = 60 * time.Minute // early prelims this far before prelims
)

// Item is one matched stream entering the expander.
type Item struct {
	StreamID int64
	Name     string
	Stream   classify.Classified
	Event    sports.Event
}

// Group is one (event, segment) output of the expansion, carrying every
// stream assigned to it. Non-combat events come back with an empty Segment
// and zero times.
type Group struct {
	Event        sports.Event
	Segment      sports.Segment
	SegmentStart time.Time
	SegmentEnd   time.Time
	Items        []Item
}

type Expander struct {
	cls *classify.Classifier
	log zerolog.Logger
}

func NewExpander(cls *classify.Classifier, log zerolog.Logger) *Expander {
	return &Expander{cls: cls, log: log.With().Str("component", "ufc").Logger()}
}

// Expand groups matched streams by (event, segment). Combat streams get a
// segment assignment; excluded content (weigh-ins, pressers, countdowns)
// is dropped even when it arrived via a cached match. mmaDuration sizes the
// final segment; loc is the user timezone for clock disambiguation.
func (e *Expander) Expand(items []Item, loc *time.Location, mmaDuration time.Duration) []Group {
	type key struct {
		provider string
		eventID  string
		segment  sports.Segment
	}
	groups := make(map[key]*Group)
	var order []key

	for _, it := range items {
		seg := sports.Segment("")
		if it.Event.Sport == "mma" {
			if e.cls.ExcludedCombat(it.Stream.Clean) {
				e.log.Debug().Str("stream", it.Name).Msg("dropping excluded combat content")
				continue
			}
			seg = e.assignSegment(it, loc)
		}
		k := key{it.Event.Provider, it.Event.ID, seg}
		g, ok := groups[k]
		if !ok {
			g = &Group{Event: it.Event, Segment: seg}
			groups[k] = g
			order = append(order, k)
		}
		g.Items = append(g.Items, it)
	}

	out := make([]Group, 0, len(order))
	for _, k := range order {
		g := groups[k]
		if g.Segment != "" {
			g.SegmentStart, g.SegmentEnd = e.segmentWindow(g.Event, g.Segment, mmaDuration)
		}
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Event.ID != out[j].Event.ID {
			return sports.CompareIDs(out[i].Event.ID, out[j].Event.ID) < 0
		}
		return sports.SegmentIndex(out[i].Segment) < sports.SegmentIndex(out[j].Segment)
	})
	return out
}

// assignSegment decides which card segment a stream covers: the detected
// segment (default main card, combined collapses to main card), with a
// clock-based prelims/early-prelims disambiguation, then canonicalized to a
// segment the event actually has.
func (e *Expander) assignSegment(it Item, loc *time.Location) sports.Segment {
	seg := it.Stream.Segment
	if seg == "" || seg == sports.SegmentCombined {
		seg = sports.SegmentMainCard
	}
	if seg == sports.SegmentPrelims {
		seg = e.disambiguatePrelims(it, loc)
	}
	return canonicalize(seg, it.Event.SegmentTimes)
}

// disambiguatePrelims reassigns a "prelims" stream to early prelims when the
// stream's own time token sits closer to the early prelims start. Stream
// names rarely say "early"; the kickoff time is the tell.
func (e *Expander) disambiguatePrelims(it Item, loc *time.Location) sports.Segment {
	clock := it.Stream.ClockSeconds()
	if clock < 0 {
		return sports.SegmentPrelims
	}
	prelims, okP := it.Event.SegmentTimes[sports.SegmentPrelims]
	early, okE := it.Event.SegmentTimes[sports.SegmentEarlyPrelims]
	if !okP || !okE {
		return sports.SegmentPrelims
	}
	if clockDistance(clock, secondsOfDay(early, loc)) < clockDistance(clock, secondsOfDay(prelims, loc)) {
		return sports.SegmentEarlyPrelims
	}
	return sports.SegmentPrelims
}

// canonicalize maps a detected segment onto one the event actually reports,
// preferring the same or a later segment, then earlier ones. With no
// reported segments the detected one stands.
func canonicalize(seg sports.Segment, times map[sports.Segment]time.Time) sports.Segment {
	if len(times) == 0 {
		return seg
	}
	if _, ok := times[seg]; ok {
		return seg
	}
	idx := sports.SegmentIndex(seg)
	for i := idx + 1; i < len(sports.SegmentOrder); i++ {
		if _, ok := times[sports.SegmentOrder[i]]; ok {
			return sports.SegmentOrder[i]
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if _, ok := times[sports.SegmentOrder[i]]; ok {
			return sports.SegmentOrder[i]
		}
	}
	return seg
}

// segmentWindow computes a segment's start and end. End is the next present
// segment's start; the last segment runs half the sport duration, which
// approximates a main card against the full-card default.
func (e *Expander) segmentWindow(ev sports.Event, seg sports.Segment, mmaDuration time.Duration) (time.Time, time.Time) {
	times := ev.SegmentTimes
	if len(times) == 0 {
		times = estimateTimes(ev)
	}
	start, ok := times[seg]
	if !ok {
		start = ev.Start
	}
	for i := sports.SegmentIndex(seg) + 1; i < len(sports.SegmentOrder); i++ {
		if next, ok := times[sports.SegmentOrder[i]]; ok {
			return start, next
		}
	}
	return start, start.Add(mmaDuration / 2)
}

// estimateTimes builds a segment table for events the provider reported as
// a single start time: the main card at the announced start and the prelims
// blocks walked backwards.
func estimateTimes(ev sports.Event) map[sports.Segment]time.Time {
	main := ev.MainCardStart
	if main.IsZero() {
		main = ev.Start
	}
	prelims := main.Add(-prelimsLead)
	return map[sports.Segment]time.Time{
		sports.SegmentMainCard:     main,
		sports.SegmentPrelims:      prelims,
		sports.SegmentEarlyPrelims: prelims.Add(-earlyPrelimsLead),
	}
}

// secondsOfDay converts an instant to seconds from midnight in loc.
func secondsOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	return lt.Hour()*3600 + lt.Minute()*60 + lt.Second()
}

// clockDistance is circular distance between two seconds-of-day values, so
// 23:30 and 00:30 are an hour apart rather than 23.
func clockDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if wrap := 86400 - d; wrap < d {
		return wrap
	}
	return d
}
