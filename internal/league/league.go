// Package league holds the in-memory league mapping index: league code to
// provider binding, aliases, display names, sport, and fallback provider.
// Loaded once at startup from the leagues table (with league_cache names as
// a fallback); Reload swaps the whole index atomically.
package league

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/sports"
	"github.com/snapetech/eventarr/internal/store"
)

// Mapping is the resolved view of one league on its primary provider.
type Mapping struct {
	Code             string
	Provider         string
	ProviderLeagueID string
	Sport            string
	DisplayName      string
	Alias            string
	FallbackProvider string
	FallbackLeagueID string
	Enabled          bool
}

type index struct {
	byKey   map[string]Mapping // code|provider
	byCode  map[string][]Mapping
	byAlias map[string]string // lowered alias or display name -> code
}

// Service is read-mostly: lookups take the RLock, Reload replaces the whole
// index under the write lock.
type Service struct {
	st  *store.Store
	log zerolog.Logger

	mu  sync.RWMutex
	idx *index
}

func New(st *store.Store, log zerolog.Logger) (*Service, error) {
	s := &Service{st: st, log: log.With().Str("component", "league").Logger()}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rebuilds the index from the database. Mappings with an empty or
// unknown sport are rejected: matching and duration lookups both key on it.
func (s *Service) Reload() error {
	mappings, err := s.st.ListLeagueMappings()
	if err != nil {
		return fmt.Errorf("load league mappings: %w", err)
	}
	cached, err := s.st.ListLeagueCache()
	if err != nil {
		return fmt.Errorf("load league cache: %w", err)
	}
	cachedNames := make(map[string]string, len(cached))
	for _, c := range cached {
		cachedNames[c.League] = c.Name
	}

	idx := &index{
		byKey:   make(map[string]Mapping),
		byCode:  make(map[string][]Mapping),
		byAlias: make(map[string]string),
	}
	for _, row := range mappings {
		if row.Enabled && sports.NormalizeSport(row.Sport) == "" {
			return fmt.Errorf("league %s/%s: empty sport", row.Code, row.Provider)
		}
		m := Mapping{
			Code:             row.Code,
			Provider:         row.Provider,
			ProviderLeagueID: row.ProviderLeagueID,
			Sport:            sports.NormalizeSport(row.Sport),
			DisplayName:      row.DisplayName,
			Alias:            row.Alias,
			FallbackProvider: row.FallbackProvider,
			FallbackLeagueID: row.FallbackLeagueID,
			Enabled:          row.Enabled,
		}
		if m.DisplayName == "" {
			m.DisplayName = cachedNames[m.Code]
		}
		idx.byKey[key(m.Code, m.Provider)] = m
		idx.byCode[m.Code] = append(idx.byCode[m.Code], m)
		if m.Alias != "" {
			idx.byAlias[strings.ToLower(m.Alias)] = m.Code
		}
		if m.DisplayName != "" {
			idx.byAlias[strings.ToLower(m.DisplayName)] = m.Code
		}
	}

	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()
	s.log.Debug().Int("leagues", len(idx.byCode)).Msg("league index loaded")
	return nil
}

func (s *Service) current() *index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

func key(code, provider string) string { return code + "|" + provider }

// Get returns the mapping for a league on one provider.
func (s *Service) Get(code, provider string) (Mapping, bool) {
	m, ok := s.current().byKey[key(code, provider)]
	return m, ok
}

// ByCode returns every provider mapping for a league code, primary first
// when one is marked enabled.
func (s *Service) ByCode(code string) []Mapping {
	return s.current().byCode[code]
}

// Primary returns the preferred mapping for a code: the first enabled one.
func (s *Service) Primary(code string) (Mapping, bool) {
	for _, m := range s.current().byCode[code] {
		if m.Enabled {
			return m, true
		}
	}
	ms := s.current().byCode[code]
	if len(ms) == 0 {
		return Mapping{}, false
	}
	return ms[0], true
}

// ResolveCode turns a user-facing name (code, alias, or display name) into
// the canonical league code.
func (s *Service) ResolveCode(name string) (string, bool) {
	idx := s.current()
	lowered := strings.ToLower(strings.TrimSpace(name))
	if _, ok := idx.byCode[lowered]; ok {
		return lowered, true
	}
	code, ok := idx.byAlias[lowered]
	return code, ok
}

// Sport returns the canonical sport code of a league, "" when unknown.
func (s *Service) Sport(code string) string {
	if m, ok := s.Primary(code); ok {
		return m.Sport
	}
	return ""
}

// DisplayName falls back to the upper-cased code when nothing better is
// known.
func (s *Service) DisplayName(code string) string {
	if m, ok := s.Primary(code); ok && m.DisplayName != "" {
		return m.DisplayName
	}
	return strings.ToUpper(code)
}

// EffectiveProvider resolves where event fetches for a league should go:
// the primary provider, unless it lacks the league and a fallback is
// configured.
func (s *Service) EffectiveProvider(code string, available func(provider string) bool) (provider, providerLeagueID string, ok bool) {
	m, found := s.Primary(code)
	if !found {
		return "", "", false
	}
	if available == nil || available(m.Provider) {
		return m.Provider, m.ProviderLeagueID, true
	}
	if m.FallbackProvider != "" && available(m.FallbackProvider) {
		id := m.FallbackLeagueID
		if id == "" {
			id = m.ProviderLeagueID
		}
		return m.FallbackProvider, id, true
	}
	return m.Provider, m.ProviderLeagueID, true
}

// Enabled lists the enabled mappings, the refresh enumeration set.
func (s *Service) Enabled() []Mapping {
	idx := s.current()
	var out []Mapping
	for _, ms := range idx.byCode {
		for _, m := range ms {
			if m.Enabled {
				out = append(out, m)
			}
		}
	}
	return out
}

// DefaultAliases are applied after a cache refresh so fresh installs resolve
// the common shorthand immediately.
var DefaultAliases = map[string]string{
	"nfl":            "NFL",
	"nba":            "NBA",
	"mlb":            "MLB",
	"nhl":            "NHL",
	"eng.1":          "EPL",
	"esp.1":          "La Liga",
	"ger.1":          "Bundesliga",
	"ita.1":          "Serie A",
	"fra.1":          "Ligue 1",
	"usa.1":          "MLS",
	"uefa.champions": "UCL",
	"uefa.europa":    "UEL",
}

// ApplyDefaultAliases writes the built-in aliases for mappings that have
// none yet.
func (s *Service) ApplyDefaultAliases() error {
	for _, m := range s.Enabled() {
		alias, ok := DefaultAliases[m.Code]
		if !ok || m.Alias != "" {
			continue
		}
		if err := s.st.UpsertLeagueMapping(store.LeagueMapping{
			Code: m.Code, Provider: m.Provider, ProviderLeagueID: m.ProviderLeagueID,
			Sport: m.Sport, DisplayName: m.DisplayName, Alias: alias,
			FallbackProvider: m.FallbackProvider, FallbackLeagueID: m.FallbackLeagueID,
			Enabled: m.Enabled,
		}); err != nil {
			return err
		}
	}
	return s.Reload()
}
