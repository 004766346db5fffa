package match

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/snapetech/eventarr/internal/normalize"
	"github.com/snapetech/eventarr/internal/providers"
	"github.com/snapetech/eventarr/internal/sports"
)

// minSurnameLen keeps the fighter-name fallback away from short tokens that
// collide with ordinary words.
const minSurnameLen = 4

// matchCard matches EVENT_CARD streams: numbered cards by exact event-number
// containment, everything else by fighter surnames.
func (m *Matcher) matchCard(ctx context.Context, in Input) Outcome {
	fp := normalize.ForMatching(in.Stream.Clean)
	if hit, ok := m.cacheProbe(in, fp); ok {
		return hit
	}

	code := m.cardLeague(in)
	if code == "" {
		return Failed(ReasonNoEventCardMatch, "no league for promotion "+in.Stream.Promotion)
	}
	provider, _, ok := m.leagues.EffectiveProvider(code, m.reg.Has)
	if !ok {
		return Failed(ReasonProviderError, "no registered provider serves "+code)
	}
	p, _ := m.reg.Get(provider)

	events, err := m.cardDayEvents(ctx, p, code, in.TargetDate)
	if err != nil {
		return Failed(ReasonProviderError, err.Error())
	}
	if len(events) == 0 {
		return Failed(ReasonNoEventCardMatch, "no events on target date for "+code)
	}

	if num := hintNumber(in.Stream.EventHint); num != "" {
		// "UFC 32" must never match "UFC 325": the number has to sit on a
		// word boundary in the event name.
		numRe := regexp.MustCompile(`\b` + regexp.QuoteMeta(num) + `\b`)
		for _, ev := range events {
			if numRe.MatchString(normalize.ForMatching(ev.Name)) {
				return m.acceptCard(in, fp, ev, MethodKeyword, 1.0)
			}
		}
		return Failed(ReasonNoEventCardMatch, fmt.Sprintf("no event carries number %s", num))
	}

	text := normalize.ForMatching(in.Stream.Clean)
	for _, ev := range events {
		if surnamesInText(ev.Name, text) {
			return m.acceptCard(in, fp, ev, MethodFuzzy, 0.75)
		}
	}
	return Failed(ReasonNoEventCardMatch, "no fighter names found in stream")
}

func (m *Matcher) acceptCard(in Input, fp string, ev sports.Event, method string, confidence float64) Outcome {
	if err := m.cache.Store(in.GroupID, fp, ev, method, in.Generation); err != nil {
		m.log.Error().Err(err).Msg("store fingerprint")
	}
	return Matched(ev, method, confidence)
}

// cardLeague resolves the league code for a combat stream: explicit hint
// first, then the promotion label as a code.
func (m *Matcher) cardLeague(in Input) string {
	for _, code := range in.Stream.LeagueHints {
		if _, ok := m.leagues.Primary(code); ok {
			return code
		}
	}
	if in.Stream.Promotion != "" {
		code := strings.ToLower(in.Stream.Promotion)
		if _, ok := m.leagues.Primary(code); ok {
			return code
		}
		return code
	}
	if len(in.Stream.LeagueHints) > 0 {
		return in.Stream.LeagueHints[0]
	}
	return ""
}

// cardDayEvents fetches the target date plus the next day; card start times
// sit close to the UTC date line for US evening events.
func (m *Matcher) cardDayEvents(ctx context.Context, p providers.SportsProvider, league string, target time.Time) ([]sports.Event, error) {
	events, err := p.Events(ctx, league, target)
	if err != nil {
		return nil, err
	}
	next, err := p.Events(ctx, league, target.AddDate(0, 0, 1))
	if err != nil {
		m.log.Warn().Err(err).Str("league", league).Msg("next-day card fetch failed")
		return events, nil
	}
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		seen[ev.ID] = true
	}
	for _, ev := range next {
		if !seen[ev.ID] {
			events = append(events, ev)
		}
	}
	return events, nil
}

// hintNumber extracts the trailing event number from a "UFC 315" hint.
func hintNumber(hint string) string {
	fields := strings.Fields(hint)
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	for _, r := range last {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return last
}

// surnamesInText checks whether the fighter surnames from an event name like
// "UFC Fight Night: Holloway vs. Gaethje" both appear in the stream text.
func surnamesInText(eventName, text string) bool {
	_, bout, found := strings.Cut(eventName, ":")
	if !found {
		bout = eventName
	}
	bout = normalize.ForMatching(bout)
	var sides []string
	for _, side := range regexp.MustCompile(`\bvs\b|\bv\b`).Split(bout, 2) {
		side = strings.TrimSpace(side)
		if side == "" {
			continue
		}
		fields := strings.Fields(side)
		sides = append(sides, fields[len(fields)-1])
	}
	if len(sides) < 2 {
		return false
	}
	for _, surname := range sides {
		if len(surname) < minSurnameLen || !strings.Contains(text, surname) {
			return false
		}
	}
	return true
}
