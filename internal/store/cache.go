package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TeamCacheEntry is one cached roster row. The whole table is replaced on a
// full refresh; rows are never edited in place.
type TeamCacheEntry struct {
	Provider     string `json:"provider"`
	TeamID       string `json:"provider_team_id"`
	League       string `json:"league"`
	Name         string `json:"name"`
	ShortName    string `json:"short_name"`
	Abbreviation string `json:"abbreviation"`
	Sport        string `json:"sport"`
	LogoURL      string `json:"logo_url"`
}

// LeagueCacheEntry records one league seen during a refresh, including
// discovered soccer leagues with no leagues-table mapping.
type LeagueCacheEntry struct {
	League    string `json:"league"`
	Provider  string `json:"provider"`
	Name      string `json:"name"`
	Sport     string `json:"sport"`
	TeamCount int    `json:"team_count"`
}

// CacheMeta is the cache-health singleton.
type CacheMeta struct {
	LastFullRefresh   time.Time `json:"last_full_refresh"`
	LeaguesCount      int       `json:"leagues_count"`
	TeamsCount        int       `json:"teams_count"`
	RefreshInProgress bool      `json:"refresh_in_progress"`
	LastError         string    `json:"last_error"`
}

// Stale reports whether the cache needs a refresh.
func (m CacheMeta) Stale(maxAge time.Duration) bool {
	return m.LastFullRefresh.IsZero() || time.Since(m.LastFullRefresh) > maxAge
}

// ReplaceTeamCache clears and rewrites team_cache and league_cache in one
// transaction, then stamps cache_meta. A failed refresh leaves the previous
// cache intact.
func (s *Store) ReplaceTeamCache(teams []TeamCacheEntry, leagues []LeagueCacheEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM team_cache`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM league_cache`); err != nil {
		return err
	}
	insTeam, err := tx.Prepare(`INSERT OR REPLACE INTO team_cache
		(provider, provider_team_id, league, name, short_name, abbreviation, sport, logo_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insTeam.Close()
	inserted := 0
	for _, t := range teams {
		if t.Name == "" {
			continue
		}
		if _, err := insTeam.Exec(t.Provider, t.TeamID, t.League, t.Name, t.ShortName, t.Abbreviation, t.Sport, t.LogoURL); err != nil {
			return fmt.Errorf("insert team %s/%s: %w", t.Provider, t.TeamID, err)
		}
		inserted++
	}
	insLeague, err := tx.Prepare(`INSERT OR REPLACE INTO league_cache
		(league, provider, name, sport, team_count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insLeague.Close()
	for _, l := range leagues {
		if _, err := insLeague.Exec(l.League, l.Provider, l.Name, l.Sport, l.TeamCount); err != nil {
			return fmt.Errorf("insert league %s/%s: %w", l.Provider, l.League, err)
		}
	}
	if _, err := tx.Exec(`UPDATE cache_meta SET last_full_refresh = ?, leagues_count = ?, teams_count = ?, last_error = '' WHERE id = 1`,
		time.Now().Unix(), len(leagues), inserted); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetCacheMeta() (CacheMeta, error) {
	var m CacheMeta
	var last int64
	var inProgress int
	err := s.db.QueryRow(`SELECT last_full_refresh, leagues_count, teams_count, refresh_in_progress, last_error
		FROM cache_meta WHERE id = 1`).Scan(&last, &m.LeaguesCount, &m.TeamsCount, &inProgress, &m.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	m.LastFullRefresh = fromUnix(last)
	m.RefreshInProgress = inProgress != 0
	return m, nil
}

// SetRefreshInProgress flips the in-progress flag; returns false when a
// refresh already holds it. This is the cross-process half of the guard; the
// in-process half is a singleflight group in the refresher.
func (s *Store) SetRefreshInProgress(on bool) (bool, error) {
	if !on {
		_, err := s.db.Exec(`UPDATE cache_meta SET refresh_in_progress = 0 WHERE id = 1`)
		return true, err
	}
	res, err := s.db.Exec(`UPDATE cache_meta SET refresh_in_progress = 1 WHERE id = 1 AND refresh_in_progress = 0`)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) SetCacheError(msg string) error {
	_, err := s.db.Exec(`UPDATE cache_meta SET last_error = ? WHERE id = 1`, msg)
	return err
}

// TeamLeaguesByName returns the (league, provider) pairs whose rosters
// contain a team matching term by substring on name or exact match on
// abbreviation or short name. term must already be in matching form.
func (s *Store) TeamLeaguesByName(term, sport string) ([]LeagueRef, error) {
	like := "%" + term + "%"
	q := `SELECT DISTINCT league, provider FROM team_cache
		WHERE (LOWER(name) LIKE ? OR LOWER(abbreviation) = ? OR LOWER(short_name) = ?)`
	args := []any{like, term, term}
	if sport != "" {
		q += ` AND sport = ?`
		args = append(args, sport)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LeagueRef
	for rows.Next() {
		var ref LeagueRef
		if err := rows.Scan(&ref.League, &ref.Provider); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// LeagueRef names a league on a specific provider.
type LeagueRef struct {
	League   string `json:"league"`
	Provider string `json:"provider"`
}

// TeamLeagues returns the leagues a provider-scoped team id belongs to.
// sport is required: team ids repeat across sports within one provider.
func (s *Store) TeamLeagues(teamID, provider, sport string) ([]string, error) {
	if sport == "" {
		return nil, errors.New("store: TeamLeagues requires a sport")
	}
	rows, err := s.db.Query(`SELECT league FROM team_cache
		WHERE provider_team_id = ? AND provider = ? AND sport = ? ORDER BY league`,
		teamID, provider, sport)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// TeamByID returns the cached team row; never calls a provider.
func (s *Store) TeamByID(teamID, league, provider string) (TeamCacheEntry, error) {
	var t TeamCacheEntry
	err := s.db.QueryRow(`SELECT provider, provider_team_id, league, name, short_name, abbreviation, sport, logo_url
		FROM team_cache WHERE provider_team_id = ? AND league = ? AND provider = ?`,
		teamID, league, provider).
		Scan(&t.Provider, &t.TeamID, &t.League, &t.Name, &t.ShortName, &t.Abbreviation, &t.Sport, &t.LogoURL)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// TeamsInLeague returns the cached roster of one league, name-ordered.
func (s *Store) TeamsInLeague(league, provider string) ([]TeamCacheEntry, error) {
	rows, err := s.db.Query(`SELECT provider, provider_team_id, league, name, short_name, abbreviation, sport, logo_url
		FROM team_cache WHERE league = ? AND provider = ? ORDER BY name`, league, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TeamCacheEntry
	for rows.Next() {
		var t TeamCacheEntry
		if err := rows.Scan(&t.Provider, &t.TeamID, &t.League, &t.Name, &t.ShortName, &t.Abbreviation, &t.Sport, &t.LogoURL); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SearchTeams is the API-facing free-text search over the cache.
func (s *Store) SearchTeams(term string, limit int) ([]TeamCacheEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	like := "%" + strings.ToLower(term) + "%"
	rows, err := s.db.Query(`SELECT provider, provider_team_id, league, name, short_name, abbreviation, sport, logo_url
		FROM team_cache WHERE LOWER(name) LIKE ? ORDER BY name LIMIT ?`, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TeamCacheEntry
	for rows.Next() {
		var t TeamCacheEntry
		if err := rows.Scan(&t.Provider, &t.TeamID, &t.League, &t.Name, &t.ShortName, &t.Abbreviation, &t.Sport, &t.LogoURL); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListLeagueCache() ([]LeagueCacheEntry, error) {
	rows, err := s.db.Query(`SELECT league, provider, name, sport, team_count FROM league_cache ORDER BY league`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LeagueCacheEntry
	for rows.Next() {
		var l LeagueCacheEntry
		if err := rows.Scan(&l.League, &l.Provider, &l.Name, &l.Sport, &l.TeamCount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
