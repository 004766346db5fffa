// Package ordering ranks a channel's streams. Rules are evaluated ascending
// by priority and the first match wins; a stream no rule claims sinks to the
// bottom.
package ordering

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/store"
)

// DefaultPriority is assigned when no rule matches.
const DefaultPriority = 999

// Stream is the slice of a downstream stream the ordering rules see.
type Stream struct {
	Name        string
	M3UAccount  string
	SourceGroup string
}

type Service struct {
	log zerolog.Logger

	mu    sync.RWMutex
	rules []compiledRule

	reMu    sync.Mutex
	reCache map[string]*regexp.Regexp // nil entry: pattern does not compile
}

type compiledRule struct {
	store.OrderingRule
	re *regexp.Regexp // set for valid regex rules only
}

func NewService(log zerolog.Logger) *Service {
	return &Service{
		log:     log.With().Str("component", "ordering").Logger(),
		reCache: make(map[string]*regexp.Regexp),
	}
}

// Reload replaces the active rule set. Invalid regex rules are kept in the
// list but never match; the user sees a warning instead of a dropped rule.
func (s *Service) Reload(rules []store.OrderingRule) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{OrderingRule: r}
		if r.Type == "regex" {
			cr.re = s.compile(r.Value)
		}
		compiled = append(compiled, cr)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority < compiled[j].Priority
		}
		return compiled[i].ID < compiled[j].ID
	})
	s.mu.Lock()
	s.rules = compiled
	s.mu.Unlock()
}

func (s *Service) compile(pattern string) *regexp.Regexp {
	s.reMu.Lock()
	defer s.reMu.Unlock()
	if re, ok := s.reCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		s.log.Warn().Str("pattern", pattern).Err(err).Msg("ordering rule pattern does not compile, rule will never match")
		re = nil
	}
	s.reCache[pattern] = re
	return re
}

// Priority returns the first matching rule's priority, or DefaultPriority.
func (s *Service) Priority(st Stream) int {
	s.mu.RLock()
	rules := s.rules
	s.mu.RUnlock()
	for _, r := range rules {
		if r.matches(st) {
			return r.Priority
		}
	}
	return DefaultPriority
}

func (r compiledRule) matches(st Stream) bool {
	switch r.Type {
	case "m3u":
		return strings.EqualFold(r.Value, st.M3UAccount)
	case "group":
		return strings.EqualFold(r.Value, st.SourceGroup)
	case "regex":
		return r.re != nil && r.re.MatchString(st.Name)
	}
	return false
}

// Sort orders streams by (priority, insertion order). The sort is stable so
// equal-priority streams keep their added_at order from the store.
func (s *Service) Sort(streams []Stream) {
	type keyed struct {
		st  Stream
		pri int
	}
	ks := make([]keyed, len(streams))
	for i, st := range streams {
		ks[i] = keyed{st, s.Priority(st)}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].pri < ks[j].pri })
	for i := range ks {
		streams[i] = ks[i].st
	}
}
