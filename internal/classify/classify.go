// Package classify buckets normalized stream names into the categories the
// matching pipeline routes on. The pattern tables are the system's domain
// knowledge: they ship as built-in defaults, get seeded into the
// detection_keywords table, and from then on the database copy is
// authoritative and user-editable.
package classify

import (
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/normalize"
	"github.com/snapetech/eventarr/internal/sports"
)

// Category is the routing decision for one stream.
type Category string

const (
	CategoryPlaceholder Category = "placeholder"
	CategoryEventCard   Category = "event_card"
	CategoryTeamVsTeam  Category = "team_vs_team"
	CategoryUnknown     Category = "unknown"
)

// Kind names one pattern table.
type Kind string

const (
	KindPlaceholder     Kind = "placeholder"
	KindCombatExclusion Kind = "combat_exclusion"
	KindCombatKeyword   Kind = "combat_keyword"
	KindLeagueHint      Kind = "league_hint"
	KindSportHint       Kind = "sport_hint"
	KindCardSegment     Kind = "card_segment"
	KindSeparator       Kind = "separator"
)

// Rule is one user-editable pattern. Value is kind-specific: league codes
// (comma-separated; umbrella brands list several) for league hints, the
// canonical sport for sport hints, the segment code for card segments, and
// the promotion label for combat keywords.
type Rule struct {
	Kind    Kind   `json:"kind"`
	Pattern string `json:"pattern"`
	Value   string `json:"value,omitempty"`
}

// Classified is the classifier's verdict plus every hint it could extract.
type Classified struct {
	normalize.Result

	Category    Category
	LeagueHints []string       // candidate league codes, most specific first
	SportHint   string         // canonical sport code, "" when unknown
	EventHint   string         // "UFC 315" style promotion+number token
	Promotion   string         // combat promotion label when EventCard
	Segment     sports.Segment // card segment, "" when none detected
	Separator   string         // the token that made it TEAM_VS_TEAM
}

// Classifier applies the compiled pattern tables. Reload swaps the whole
// compiled structure atomically, so readers never see a half-built table.
type Classifier struct {
	log zerolog.Logger

	mu     sync.RWMutex
	tables *compiled
}

type compiled struct {
	placeholders   []*regexp.Regexp
	combatExcludes []*regexp.Regexp
	combatKeywords []valueRule
	leagueHints    []valueRule
	sportHints     []valueRule
	segments       []valueRule
	separators     []*regexp.Regexp
}

type valueRule struct {
	re    *regexp.Regexp
	value string
}

func New(log zerolog.Logger) *Classifier {
	c := &Classifier{log: log.With().Str("component", "classify").Logger()}
	c.Reload(Defaults())
	return c
}

// Reload replaces all pattern tables. Rules that fail to compile are logged
// and skipped; a bad user pattern must never take the pipeline down.
func (c *Classifier) Reload(rules []Rule) {
	t := &compiled{}
	for _, r := range rules {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			c.log.Warn().Str("kind", string(r.Kind)).Str("pattern", r.Pattern).Err(err).
				Msg("skipping pattern that does not compile")
			continue
		}
		switch r.Kind {
		case KindPlaceholder:
			t.placeholders = append(t.placeholders, re)
		case KindCombatExclusion:
			t.combatExcludes = append(t.combatExcludes, re)
		case KindCombatKeyword:
			t.combatKeywords = append(t.combatKeywords, valueRule{re, r.Value})
		case KindLeagueHint:
			t.leagueHints = append(t.leagueHints, valueRule{re, r.Value})
		case KindSportHint:
			t.sportHints = append(t.sportHints, valueRule{re, r.Value})
		case KindCardSegment:
			t.segments = append(t.segments, valueRule{re, r.Value})
		case KindSeparator:
			t.separators = append(t.separators, re)
		default:
			c.log.Warn().Str("kind", string(r.Kind)).Msg("unknown pattern kind")
		}
	}
	c.mu.Lock()
	c.tables = t
	c.mu.Unlock()
}

func (c *Classifier) current() *compiled {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables
}

// Classify decides the category of one normalized stream. Decision order:
// placeholder, combat exclusion, combat keyword, game separator, unknown.
func (c *Classifier) Classify(res normalize.Result) Classified {
	t := c.current()
	out := Classified{Result: res, Category: CategoryUnknown}
	name := res.Clean
	if name == "" {
		out.Category = CategoryPlaceholder
		return out
	}

	out.LeagueHints = t.matchValues(t.leagueHints, name)
	if sport := t.firstValue(t.sportHints, name); sport != "" {
		out.SportHint = sports.NormalizeSport(sport)
	}
	if seg := t.firstValue(t.segments, name); seg != "" {
		out.Segment = sports.Segment(seg)
	}

	if anyMatch(t.placeholders, name) {
		out.Category = CategoryPlaceholder
		return out
	}
	if anyMatch(t.combatExcludes, name) {
		out.Category = CategoryPlaceholder
		return out
	}
	if promo := t.firstValue(t.combatKeywords, name); promo != "" {
		out.Category = CategoryEventCard
		out.Promotion = promo
		out.EventHint = extractEventHint(name)
		if out.SportHint == "" {
			out.SportHint = "mma"
		}
		return out
	}
	for _, sep := range t.separators {
		if loc := sep.FindStringIndex(name); loc != nil {
			out.Category = CategoryTeamVsTeam
			out.Separator = strings.TrimSpace(name[loc[0]:loc[1]])
			return out
		}
	}
	return out
}

// ExcludedCombat reports whether a name hits a combat-exclusion pattern
// (weigh-ins, pressers). The card expander re-checks cached matches with it.
func (c *Classifier) ExcludedCombat(name string) bool {
	return anyMatch(c.current().combatExcludes, name)
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// firstValue returns the value of the first matching rule.
func (t *compiled) firstValue(rules []valueRule, s string) string {
	for _, r := range rules {
		if r.re.MatchString(s) {
			return r.value
		}
	}
	return ""
}

// matchValues collects values from every matching rule, splitting
// comma-separated lists and deduping while keeping first-seen order.
func (t *compiled) matchValues(rules []valueRule, s string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, r := range rules {
		if !r.re.MatchString(s) {
			continue
		}
		for _, v := range strings.Split(r.value, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// eventHintRe pulls "UFC 315" style promotion+number tokens. The number must
// sit on a word boundary so hint extraction mirrors how the card matcher
// compares it later.
var eventHintRe = regexp.MustCompile(`(?i)\b(ufc fight night|ufc fn|ufc|bellator|pfl|one fc|bkfc|ksw|oktagon|glory|cage warriors)\s*#?\s*(\d{1,4})\b`)

func extractEventHint(name string) string {
	m := eventHintRe.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return strings.ToUpper(strings.Join(strings.Fields(m[1]), " ")) + " " + m[2]
}
