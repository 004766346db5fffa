// Package sports holds the domain types shared across the matching and
// lifecycle pipeline: events, teams, card segments, and sport-name
// normalization. Providers produce these, caches persist them, and the
// matchers and channel manager consume them.
package sports

import (
	"strconv"
	"strings"
	"time"
)

// EventStatus is the provider-reported lifecycle state of an event.
type EventStatus string

const (
	StatusScheduled EventStatus = "scheduled"
	StatusLive      EventStatus = "live"
	StatusFinal     EventStatus = "final"
	StatusPostponed EventStatus = "postponed"
	StatusCancelled EventStatus = "cancelled"
	StatusDelayed   EventStatus = "delayed"
)

// Team identifies one side of an event. IDs are provider-scoped and only
// unique together with the sport.
type Team struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ShortName    string `json:"short_name,omitempty"`
	Abbreviation string `json:"abbreviation,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
}

// Event is one scheduled competition as reported by a sports provider. Not
// persisted long-term; the fingerprint cache keeps a snapshot.
type Event struct {
	ID       string      `json:"id"`
	Provider string      `json:"provider"`
	League   string      `json:"league"`
	Sport    string      `json:"sport"`
	Name     string      `json:"name"`
	Short    string      `json:"short_name,omitempty"`
	Start    time.Time   `json:"start_time"` // always UTC
	Status   EventStatus `json:"status"`
	Detail   string      `json:"status_detail,omitempty"`

	Home *Team `json:"home_team,omitempty"`
	Away *Team `json:"away_team,omitempty"`

	HomeScore string `json:"home_score,omitempty"`
	AwayScore string `json:"away_score,omitempty"`

	Venue     string `json:"venue,omitempty"`
	Broadcast string `json:"broadcast,omitempty"`
	Season    string `json:"season,omitempty"`

	// Combat cards only. SegmentTimes maps segment code to UTC start;
	// MainCardStart is zero when the provider gave no card split.
	SegmentTimes  map[Segment]time.Time `json:"segment_times,omitempty"`
	MainCardStart time.Time             `json:"main_card_start"`
}

// StatusFinal reports whether the provider marked the event finished.
// Time-based fallbacks live in the lifecycle package, which knows event end.
func (e Event) StatusFinal() bool {
	switch e.Status {
	case StatusFinal:
		return true
	case StatusScheduled, StatusLive, StatusPostponed, StatusCancelled, StatusDelayed:
	}
	return strings.Contains(strings.ToLower(e.Detail), "final")
}

// HasTeams reports whether both sides are known.
func (e Event) HasTeams() bool {
	return e.Home != nil && e.Away != nil && e.Home.Name != "" && e.Away.Name != ""
}

// LocalDate is the event's civil date in loc.
func (e Event) LocalDate(loc *time.Location) time.Time {
	y, m, d := e.Start.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// CompareIDs orders provider event ids numerically when both parse, else
// lexicographically. Used as the final matcher tie-break.
func CompareIDs(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// LeagueInfo is a provider-reported league, used when discovering leagues
// (ESPN soccer) that have no configured mapping.
type LeagueInfo struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Sport string `json:"sport"`
}

// ---------------------------------------------------------------------------
// Card segments

// Segment is one slice of a combat-sport card.
type Segment string

const (
	SegmentEarlyPrelims Segment = "early_prelims"
	SegmentPrelims      Segment = "prelims"
	SegmentMainCard     Segment = "main_card"

	// SegmentCombined labels a stream covering the whole card. It is a
	// classification result only and never appears in SegmentOrder.
	SegmentCombined Segment = "combined"
)

// SegmentOrder lists real card segments chronologically.
var SegmentOrder = []Segment{SegmentEarlyPrelims, SegmentPrelims, SegmentMainCard}

// SegmentIndex returns the chronological position of s, or -1.
func SegmentIndex(s Segment) int {
	for i, seg := range SegmentOrder {
		if seg == s {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Sport names and durations

// Provider feeds disagree on sport naming. Matching and duration lookups run
// on the canonical lowercase code.
var sportAliases = map[string]string{
	"ice hockey":           "hockey",
	"field hockey":         "field_hockey",
	"american football":    "football",
	"college football":     "football",
	"association football": "soccer",
	"futbol":               "soccer",
	"football (soccer)":    "soccer",
	"mixed martial arts":   "mma",
	"ultimate fighting":    "mma",
	"pro boxing":           "boxing",
	"basket":               "basketball",
}

// NormalizeSport lowers a provider sport label to its canonical code.
func NormalizeSport(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return ""
	}
	if canon, ok := sportAliases[key]; ok {
		return canon
	}
	return strings.ReplaceAll(key, " ", "_")
}

// Typical event lengths used when settings carry no override.
var defaultDurations = map[string]time.Duration{
	"football":   210 * time.Minute,
	"basketball": 150 * time.Minute,
	"baseball":   210 * time.Minute,
	"hockey":     180 * time.Minute,
	"soccer":     150 * time.Minute,
	"mma":        6 * time.Hour,
	"boxing":     5 * time.Hour,
	"wrestling":  4 * time.Hour,
	"tennis":     3 * time.Hour,
	"golf":       6 * time.Hour,
	"racing":     4 * time.Hour,
	"rugby":      150 * time.Minute,
	"cricket":    8 * time.Hour,
}

// FallbackDuration is used for sports with no entry anywhere.
const FallbackDuration = 3 * time.Hour

// DefaultDuration returns the built-in duration for a canonical sport code.
func DefaultDuration(sport string) time.Duration {
	if d, ok := defaultDurations[NormalizeSport(sport)]; ok {
		return d
	}
	return FallbackDuration
}
