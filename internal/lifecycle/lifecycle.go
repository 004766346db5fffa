// Package lifecycle decides when a matched event's channel may exist: the
// create threshold counts down from the event day's midnight in the user
// timezone, the delete threshold counts up from the end of the day the event
// finishes. Matching finds events; this package decides eligibility.
package lifecycle

import (
	"time"

	"github.com/snapetech/eventarr/internal/sports"
	"github.com/snapetech/eventarr/internal/store"
)

// Create and delete timing policy values.
const (
	CreateStreamAvailable = "stream_available"
	CreateSameDay         = "same_day"
	CreateDayBefore       = "day_before"
	Create2DaysBefore     = "2_days_before"
	Create3DaysBefore     = "3_days_before"
	Create1WeekBefore     = "1_week_before"

	DeleteStreamRemoved = "stream_removed"
	Delete6HoursAfter   = "6_hours_after"
	DeleteSameDay       = "same_day"
	DeleteDayAfter      = "day_after"
	Delete2DaysAfter    = "2_days_after"
	Delete3DaysAfter    = "3_days_after"
	Delete1WeekAfter    = "1_week_after"
)

// finalFallback marks events final this long after their computed end even
// when the provider still reports them live; recovers from stale status.
const finalFallback = 2 * time.Hour

// Category buckets a matched event for the channel manager.
type Category string

const (
	CategoryCreateable   Category = "CREATEABLE"
	CategoryBeforeWindow Category = "BEFORE_WINDOW"
	CategoryEventPast    Category = "EVENT_PAST"
	CategoryEventFinal   Category = "EVENT_FINAL"
)

// Decision is the outcome of one should-create or should-delete question.
type Decision struct {
	Act       bool
	Reason    string
	Threshold time.Time // zero for the stream-presence policies
}

// Policy evaluates lifecycle timing. Now is injectable for tests.
type Policy struct {
	CreateTiming       string
	DeleteTiming       string
	IncludeFinalEvents bool
	Durations          store.DurationSettings
	Loc                *time.Location
	Now                func() time.Time
}

func NewPolicy(cfg store.Settings, loc *time.Location) *Policy {
	return &Policy{
		CreateTiming:       cfg.Lifecycle.ChannelCreateTiming,
		DeleteTiming:       cfg.Lifecycle.ChannelDeleteTiming,
		IncludeFinalEvents: cfg.EPG.IncludeFinalEvents,
		Durations:          cfg.Durations,
		Loc:                loc,
		Now:                time.Now,
	}
}

// Duration returns the configured event length for a sport, falling back to
// the built-in table.
func (p *Policy) Duration(sport string) time.Duration {
	hours := 0.0
	switch sports.NormalizeSport(sport) {
	case "basketball":
		hours = p.Durations.Basketball
	case "football":
		hours = p.Durations.Football
	case "hockey":
		hours = p.Durations.Hockey
	case "baseball":
		hours = p.Durations.Baseball
	case "soccer":
		hours = p.Durations.Soccer
	case "mma":
		hours = p.Durations.MMA
	case "rugby":
		hours = p.Durations.Rugby
	case "boxing":
		hours = p.Durations.Boxing
	case "tennis":
		hours = p.Durations.Tennis
	case "golf":
		hours = p.Durations.Golf
	case "racing":
		hours = p.Durations.Racing
	case "cricket":
		hours = p.Durations.Cricket
	}
	if hours <= 0 {
		hours = p.Durations.Default
	}
	if hours <= 0 {
		return sports.DefaultDuration(sport)
	}
	return time.Duration(hours * float64(time.Hour))
}

// EventEnd is start plus the sport duration.
func (p *Policy) EventEnd(ev sports.Event) time.Time {
	return ev.Start.Add(p.Duration(ev.Sport))
}

// IsFinal reports whether an event is over: provider status, or the
// time-based fallback past the computed end.
func (p *Policy) IsFinal(ev sports.Event) bool {
	if ev.StatusFinal() {
		return true
	}
	return p.Now().After(p.EventEnd(ev).Add(finalFallback))
}

// CreateThreshold is the earliest instant the channel may exist: an offset
// back from the event day's midnight in the user timezone. Zero for
// stream_available.
func (p *Policy) CreateThreshold(ev sports.Event) time.Time {
	midnight := ev.LocalDate(p.Loc)
	switch p.CreateTiming {
	case CreateStreamAvailable:
		return time.Time{}
	case CreateDayBefore:
		return midnight.AddDate(0, 0, -1)
	case Create2DaysBefore:
		return midnight.AddDate(0, 0, -2)
	case Create3DaysBefore:
		return midnight.AddDate(0, 0, -3)
	case Create1WeekBefore:
		return midnight.AddDate(0, 0, -7)
	default: // same_day
		return midnight
	}
}

// DeleteThreshold is the instant the channel becomes deletable: an offset
// forward from the end of the day the event finishes, except 6_hours_after
// which counts from the event end itself. Zero for stream_removed. Never
// earlier than the create threshold.
func (p *Policy) DeleteThreshold(ev sports.Event) time.Time {
	end := p.EventEnd(ev)
	y, m, d := end.In(p.Loc).Date()
	endOfDay := time.Date(y, m, d, 0, 0, 0, 0, p.Loc).AddDate(0, 0, 1)

	var th time.Time
	switch p.DeleteTiming {
	case DeleteStreamRemoved:
		return time.Time{}
	case Delete6HoursAfter:
		th = end.Add(6 * time.Hour)
	case DeleteDayAfter:
		th = endOfDay.AddDate(0, 0, 1)
	case Delete2DaysAfter:
		th = endOfDay.AddDate(0, 0, 2)
	case Delete3DaysAfter:
		th = endOfDay.AddDate(0, 0, 3)
	case Delete1WeekAfter:
		th = endOfDay.AddDate(0, 0, 7)
	default: // same_day
		th = endOfDay
	}
	if create := p.CreateThreshold(ev); !create.IsZero() && th.Before(create) {
		return create
	}
	return th
}

// ShouldCreate answers whether the channel should exist right now. Past the
// delete threshold creation is blocked outright, so a late match never
// creates a channel only for the same tick to delete it.
func (p *Policy) ShouldCreate(ev sports.Event, streamExists bool) Decision {
	if !streamExists {
		return Decision{Reason: "no stream carries the event"}
	}
	now := p.Now()
	if del := p.DeleteThreshold(ev); !del.IsZero() && !now.Before(del) {
		return Decision{Reason: "past delete threshold", Threshold: del}
	}
	if p.IsFinal(ev) && !p.IncludeFinalEvents {
		return Decision{Reason: "event is final"}
	}
	if p.CreateTiming == CreateStreamAvailable {
		return Decision{Act: true, Reason: "stream available"}
	}
	th := p.CreateThreshold(ev)
	if now.Before(th) {
		return Decision{Reason: "before create window", Threshold: th}
	}
	return Decision{Act: true, Reason: "inside create window", Threshold: th}
}

// ShouldDelete answers whether an existing channel should go away now.
func (p *Policy) ShouldDelete(ev sports.Event, streamExists bool) Decision {
	if p.DeleteTiming == DeleteStreamRemoved {
		if !streamExists {
			return Decision{Act: true, Reason: "stream removed"}
		}
		return Decision{Reason: "stream still present"}
	}
	th := p.DeleteThreshold(ev)
	if !p.Now().Before(th) {
		return Decision{Act: true, Reason: "past delete threshold", Threshold: th}
	}
	return Decision{Reason: "before delete threshold", Threshold: th}
}

// Categorize buckets a matched event. Order matters: a past event is PAST
// even if it is also final.
func (p *Policy) Categorize(ev sports.Event) Category {
	now := p.Now()
	if del := p.DeleteThreshold(ev); !del.IsZero() && !now.Before(del) {
		return CategoryEventPast
	}
	if create := p.CreateThreshold(ev); !create.IsZero() && now.Before(create) {
		return CategoryBeforeWindow
	}
	if p.IsFinal(ev) && !p.IncludeFinalEvents {
		return CategoryEventFinal
	}
	return CategoryCreateable
}
