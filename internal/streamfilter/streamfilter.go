// Package streamfilter applies a group's stream gate: include and exclude
// regexes plus an optional custom team-extraction pattern for providers
// whose naming the built-in separator logic cannot parse.
package streamfilter

import (
	"regexp"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/store"
)

// Filter reasons reported in counts and logs.
const (
	ReasonIncludeMiss = "include_no_match"
	ReasonExcludeHit  = "exclude_match"
)

type Filter struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
	extract *regexp.Regexp

	skipBuiltin bool

	team1Idx int
	team2Idx int
}

// ForGroup compiles a group's filter rules. A pattern that does not compile
// is logged and dropped; the rest of the filter still applies.
func ForGroup(g store.Group, log zerolog.Logger) *Filter {
	f := &Filter{skipBuiltin: g.SkipBuiltinExtraction}
	f.include = compileRule(g.IncludeRegex, "include", g.Name, log)
	f.exclude = compileRule(g.ExcludeRegex, "exclude", g.Name, log)
	if f.extract = compileRule(g.ExtractionRegex, "extraction", g.Name, log); f.extract != nil {
		f.team1Idx, f.team2Idx = extractionIndexes(f.extract)
		if f.team1Idx == 0 {
			log.Warn().Str("group", g.Name).Str("pattern", g.ExtractionRegex).
				Msg("extraction pattern has fewer than two capture groups, ignoring")
			f.extract = nil
		}
	}
	return f
}

func compileRule(pattern, kind, group string, log zerolog.Logger) *regexp.Regexp {
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		log.Warn().Str("group", group).Str("kind", kind).Str("pattern", pattern).Err(err).
			Msg("filter pattern does not compile, ignoring")
		return nil
	}
	return re
}

// extractionIndexes finds the capture groups holding the two team names:
// named groups team1/team2 when present, otherwise the first two groups.
func extractionIndexes(re *regexp.Regexp) (int, int) {
	i1, i2 := 0, 0
	for i, name := range re.SubexpNames() {
		switch name {
		case "team1":
			i1 = i
		case "team2":
			i2 = i
		}
	}
	if i1 > 0 && i2 > 0 {
		return i1, i2
	}
	if re.NumSubexp() >= 2 {
		return 1, 2
	}
	return 0, 0
}

// Allow reports whether a stream name passes the gate, with the reason when
// it does not.
func (f *Filter) Allow(name string) (bool, string) {
	if f.include != nil && !f.include.MatchString(name) {
		return false, ReasonIncludeMiss
	}
	if f.exclude != nil && f.exclude.MatchString(name) {
		return false, ReasonExcludeHit
	}
	return true, ""
}

// ExtractTeams applies the custom extraction pattern. ok is false when no
// pattern is configured or it does not match this name.
func (f *Filter) ExtractTeams(name string) (team1, team2 string, ok bool) {
	if f.extract == nil {
		return "", "", false
	}
	m := f.extract.FindStringSubmatch(name)
	if m == nil || f.team1Idx >= len(m) || f.team2Idx >= len(m) {
		return "", "", false
	}
	if m[f.team1Idx] == "" || m[f.team2Idx] == "" {
		return "", "", false
	}
	return m[f.team1Idx], m[f.team2Idx], true
}

// SkipBuiltin reports whether the built-in separator extraction should be
// bypassed for this group.
func (f *Filter) SkipBuiltin() bool { return f.skipBuiltin }
