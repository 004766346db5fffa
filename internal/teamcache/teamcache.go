// Package teamcache serves league-lookup queries against the persisted team
// roster cache and owns the cache's refresh cycle. The matcher never calls a
// provider to ask "which league is this team in"; it asks this package, which
// only reads the database.
package teamcache

import (
	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/normalize"
	"github.com/snapetech/eventarr/internal/store"
)

type Service struct {
	st  *store.Store
	log zerolog.Logger
}

func NewService(st *store.Store, log zerolog.Logger) *Service {
	return &Service{st: st, log: log.With().Str("component", "teamcache").Logger()}
}

// FindCandidateLeagues returns the leagues whose rosters contain BOTH sides.
// Terms are raw channel-name tokens; they are lowered to matching form here.
// An empty result means the pairing is unknown to the cache, not that the
// teams do not exist.
func (s *Service) FindCandidateLeagues(homeTerm, awayTerm, sport string) ([]store.LeagueRef, error) {
	home, err := s.st.TeamLeaguesByName(normalize.ForMatching(homeTerm), sport)
	if err != nil {
		return nil, err
	}
	if len(home) == 0 {
		return nil, nil
	}
	away, err := s.st.TeamLeaguesByName(normalize.ForMatching(awayTerm), sport)
	if err != nil {
		return nil, err
	}
	inAway := make(map[store.LeagueRef]bool, len(away))
	for _, ref := range away {
		inAway[ref] = true
	}
	var out []store.LeagueRef
	for _, ref := range home {
		if inAway[ref] {
			out = append(out, ref)
		}
	}
	return out, nil
}

// TeamLeagues returns the leagues a provider team id belongs to.
func (s *Service) TeamLeagues(teamID, provider, sport string) ([]string, error) {
	return s.st.TeamLeagues(teamID, provider, sport)
}

// TeamNameByID resolves a cached team's display name, or "" when uncached.
func (s *Service) TeamNameByID(teamID, league, provider string) string {
	t, err := s.st.TeamByID(teamID, league, provider)
	if err != nil {
		return ""
	}
	return t.Name
}

// Meta exposes cache health for the status endpoint.
func (s *Service) Meta() (store.CacheMeta, error) { return s.st.GetCacheMeta() }
