// Package match turns classified streams into event matches. The team
// matcher resolves candidate leagues from the roster cache and scores events
// over a date window; the card matcher handles numbered combat cards. Both
// go through the fingerprint cache first.
package match

import (
	"context"
	"fmt"
	"regexp"
	"strings"
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

// Scoring thresholds. An event's score is min(home side, away side).
const (
	HighConfidence = 85 // accept outright
	AcceptWithDate = 75 // accept when the stream's date agrees, or the event is alone on the target date
	BothTeamsFloor = 60 // below this an event is not a candidate at all

	// MatchWindowDays bounds the event fetch around the target date. Past
	// events stay in so just-finished games can still attach; lifecycle
	// policy excludes them later.
	MatchWindowDays = 30
)

// Input is one stream to match, with its group context.
type Input struct {
	GroupID      int64
	Stream       classify.Classified
	GroupLeagues []string // group's configured league codes, empty means unrestricted
	TargetDate   time.Time
	Loc          *time.Location
	Generation   int64
}

type Matcher struct {
	fuzzy   *Fuzzy
	cache   *fpcache.Cache
	teams   *teamcache.Service
	reg     *providers.Registry
	leagues *league.Service
	met     *metrics.Metrics
	log     zerolog.Logger
}

func NewMatcher(cache *fpcache.Cache, teams *teamcache.Service, reg *providers.Registry, leagues *league.Service, met *metrics.Metrics, log zerolog.Logger) *Matcher {
	return &Matcher{
		fuzzy:   NewFuzzy(),
		cache:   cache,
		teams:   teams,
		reg:     reg,
		leagues: leagues,
		met:     met,
		log:     log.With().Str("component", "match").Logger(),
	}
}

// Match routes one classified stream to the right matcher and records the
// outcome. Placeholders are filtered, unclassifiable names fail.
func (m *Matcher) Match(ctx context.Context, in Input) Outcome {
	start := time.Now()
	var out Outcome
	switch in.Stream.Category {
	case classify.CategoryPlaceholder:
		out = Filtered(ReasonPlaceholder)
	case classify.CategoryEventCard:
		out = m.matchCard(ctx, in)
	case classify.CategoryTeamVsTeam:
		out = m.matchTeams(ctx, in)
	default:
		out = Failed(ReasonUnknownFormat, "no category pattern matched")
	}
	m.met.MatchDuration.Observe(time.Since(start).Seconds())
	m.met.MatchOutcomes.WithLabelValues(out.Kind, out.Reason).Inc()
	return out
}

func (m *Matcher) matchTeams(ctx context.Context, in Input) Outcome {
	fp := normalize.ForMatching(in.Stream.Clean)
	if hit, ok := m.cacheProbe(in, fp); ok {
		return hit
	}

	side1, side2, ok := splitSides(in.Stream.Clean, in.Stream.Separator)
	if !ok {
		return Failed(ReasonNoMatch, "could not split team sides")
	}

	cands, err := m.candidateLeagues(side1, side2, in)
	if err != nil {
		return Failed(ReasonProviderError, err.Error())
	}
	if len(cands) == 0 {
		return Failed(ReasonNoMatch, fmt.Sprintf("no league carries both %q and %q", side1, side2))
	}

	text := m.fuzzy.ExpandAbbreviations(fp)
	best, fetchErrs := m.scoreWindow(ctx, in, cands, text)
	if best == nil {
		if fetchErrs > 0 {
			return Failed(ReasonProviderError, fmt.Sprintf("%d league fetches failed", fetchErrs))
		}
		return Failed(ReasonNoMatch, "no event scored above the floor")
	}

	accept := false
	switch {
	case best.score >= HighConfidence:
		accept = true
	case best.score >= AcceptWithDate:
		accept = m.dateAgrees(in, best.event) || best.soleOnDate
	}
	if !accept {
		return Failed(ReasonNoMatch, fmt.Sprintf("best score %d for %s", best.score, best.event.Name))
	}

	if err := m.cache.Store(in.GroupID, fp, best.event, MethodFuzzy, in.Generation); err != nil {
		m.log.Error().Err(err).Msg("store fingerprint")
	}
	return Matched(best.event, MethodFuzzy, float64(best.score)/100)
}

// cacheProbe replays a cached match when the entry survives validation and
// the cached event still falls inside the match window.
func (m *Matcher) cacheProbe(in Input, fp string) (Outcome, bool) {
	hit, ok := m.cache.Lookup(in.GroupID, fp, in.Stream.Result, in.Loc)
	if !ok {
		return Outcome{}, false
	}
	days := in.TargetDate.Sub(hit.Event.LocalDate(in.Loc)).Hours() / 24
	if days > MatchWindowDays || days < -MatchWindowDays {
		// A recurrence of the same matchup; fall through to fresh matching,
		// which overwrites the entry on success.
		return Outcome{}, false
	}
	if err := m.cache.Confirm(in.GroupID, fp, in.Generation); err != nil {
		m.log.Error().Err(err).Msg("confirm fingerprint")
	}
	return CacheHit(hit.Event, hit.Method), true
}

// candidateLeagues resolves the (league, provider) pairs to search: roster
// intersection of both sides, constrained to hinted and group leagues. A
// hint alone is the last resort when the intersection is empty.
func (m *Matcher) candidateLeagues(side1, side2 string, in Input) ([]store.LeagueRef, error) {
	cands, err := m.teams.FindCandidateLeagues(side1, side2, in.Stream.SportHint)
	if err != nil {
		return nil, err
	}
	cands = constrain(cands, in.Stream.LeagueHints)
	cands = constrain(cands, in.GroupLeagues)
	if len(cands) == 0 {
		for _, code := range in.Stream.LeagueHints {
			if provider, _, ok := m.leagues.EffectiveProvider(code, m.reg.Has); ok {
				cands = append(cands, store.LeagueRef{League: code, Provider: provider})
			}
		}
	}
	return cands, nil
}

func constrain(cands []store.LeagueRef, allowed []string) []store.LeagueRef {
	if len(allowed) == 0 {
		return cands
	}
	set := make(map[string]bool, len(allowed))
	for _, code := range allowed {
		set[code] = true
	}
	var out []store.LeagueRef
	for _, c := range cands {
		if set[c.League] {
			out = append(out, c)
		}
	}
	return out
}

type scored struct {
	event      sports.Event
	score      int
	dayOffset  int // |days from target|
	soleOnDate bool
}

// scoreWindow fetches candidate-league events outward from the target date
// and keeps the best-scoring event. Ties go to the date closest to target,
// then the lower event id; scanning by growing offset makes the date
// tie-break fall out of insertion order. A perfect score stops the scan:
// nothing later can beat it.
func (m *Matcher) scoreWindow(ctx context.Context, in Input, cands []store.LeagueRef, text string) (*scored, int) {
	var best *scored
	onTargetDate := 0
	fetchErrs := 0

	for _, offset := range windowOffsets() {
		day := in.TargetDate.AddDate(0, 0, offset)
		for _, cand := range cands {
			p, ok := m.reg.Get(cand.Provider)
			if !ok {
				continue
			}
			events, err := p.Events(ctx, cand.League, day)
			if err != nil {
				m.log.Warn().Err(err).Str("league", cand.League).Time("day", day).Msg("event fetch failed")
				fetchErrs++
				continue
			}
			for _, ev := range events {
				if !ev.HasTeams() {
					continue
				}
				score := m.scoreEvent(text, ev)
				if score < BothTeamsFloor {
					continue
				}
				if offset == 0 {
					onTargetDate++
				}
				abs := offset
				if abs < 0 {
					abs = -abs
				}
				if best == nil ||
					score > best.score ||
					(score == best.score && abs == best.dayOffset && sports.CompareIDs(ev.ID, best.event.ID) < 0) {
					best = &scored{event: ev, score: score, dayOffset: abs}
				}
			}
		}
		if best != nil && best.score == 100 {
			break
		}
	}
	if best != nil {
		best.soleOnDate = onTargetDate == 1 && best.dayOffset == 0
	}
	return best, fetchErrs
}

// scoreEvent rates one event against the stream text: min of the two sides.
func (m *Matcher) scoreEvent(text string, ev sports.Event) int {
	home := m.fuzzy.SideScore(text, TeamPatterns(*ev.Home))
	away := m.fuzzy.SideScore(text, TeamPatterns(*ev.Away))
	if away < home {
		return away
	}
	return home
}

// dateAgrees reports whether the stream carried a date matching the event's
// civil date in the user timezone.
func (m *Matcher) dateAgrees(in Input, ev sports.Event) bool {
	if !in.Stream.HasDate {
		return false
	}
	sy, sm, sd := in.Stream.Date.UTC().Date()
	ey, em, ed := ev.Start.In(in.Loc).Date()
	return sy == ey && sm == em && sd == ed
}

// windowOffsets yields 0, 1, -1, 2, -2, ... out to the window edge.
func windowOffsets() []int {
	out := make([]int, 0, 2*MatchWindowDays+1)
	out = append(out, 0)
	for d := 1; d <= MatchWindowDays; d++ {
		out = append(out, d, -d)
	}
	return out
}

// splitSides splits a cleaned stream name on its separator token. Word
// separators split on word boundaries so "at" never splits inside
// "Atlanta"; symbol separators split on the raw token.
func splitSides(clean, separator string) (string, string, bool) {
	if separator == "" {
		return "", "", false
	}
	var idx, width int
	if hasWordChar(separator) {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(separator) + `\b`)
		loc := re.FindStringIndex(clean)
		if loc == nil {
			return "", "", false
		}
		idx, width = loc[0], loc[1]-loc[0]
	} else {
		idx = strings.Index(clean, separator)
		if idx < 0 {
			return "", "", false
		}
		width = len(separator)
	}
	side1 := strings.TrimSpace(clean[:idx])
	side2 := strings.TrimSpace(clean[idx+width:])
	if side1 == "" || side2 == "" {
		return "", "", false
	}
	return side1, side2, true
}

func hasWordChar(s string) bool {
	for _, r := range s {
		if r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return true
		}
	}
	return false
}
