package store

import "database/sql"

// LeagueMapping is one row of the leagues table: how a league code maps onto
// a provider, plus the fallback provider for leagues the primary covers
// poorly.
type LeagueMapping struct {
	Code             string `json:"code"`
	Provider         string `json:"provider"`
	ProviderLeagueID string `json:"provider_league_id"`
	Sport            string `json:"sport"`
	DisplayName      string `json:"display_name"`
	Alias            string `json:"league_alias"`
	FallbackProvider string `json:"fallback_provider"`
	FallbackLeagueID string `json:"fallback_league_id"`
	Enabled          bool   `json:"enabled"`
}

func (s *Store) ListLeagueMappings() ([]LeagueMapping, error) {
	rows, err := s.db.Query(`SELECT code, provider, provider_league_id, sport, display_name,
		league_alias, fallback_provider, fallback_league_id, enabled
		FROM leagues ORDER BY code, provider`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LeagueMapping
	for rows.Next() {
		var m LeagueMapping
		var enabled int
		if err := rows.Scan(&m.Code, &m.Provider, &m.ProviderLeagueID, &m.Sport, &m.DisplayName,
			&m.Alias, &m.FallbackProvider, &m.FallbackLeagueID, &enabled); err != nil {
			return nil, err
		}
		m.Enabled = enabled != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpsertLeagueMapping(m LeagueMapping) error {
	_, err := s.db.Exec(`INSERT INTO leagues
		(code, provider, provider_league_id, sport, display_name, league_alias, fallback_provider, fallback_league_id, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code, provider) DO UPDATE SET
		provider_league_id = excluded.provider_league_id, sport = excluded.sport,
		display_name = excluded.display_name, league_alias = excluded.league_alias,
		fallback_provider = excluded.fallback_provider, fallback_league_id = excluded.fallback_league_id,
		enabled = excluded.enabled`,
		m.Code, m.Provider, m.ProviderLeagueID, m.Sport, m.DisplayName, m.Alias,
		m.FallbackProvider, m.FallbackLeagueID, boolInt(m.Enabled))
	return err
}

func (s *Store) DeleteLeagueMapping(code, provider string) error {
	_, err := s.db.Exec(`DELETE FROM leagues WHERE code = ? AND provider = ?`, code, provider)
	return err
}

// Sport is one row of the sports table; duration 0 means use built-ins.
type Sport struct {
	Code            string `json:"code"`
	DisplayName     string `json:"display_name"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (s *Store) ListSports() ([]Sport, error) {
	rows, err := s.db.Query(`SELECT code, display_name, duration_minutes FROM sports ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sport
	for rows.Next() {
		var sp Sport
		if err := rows.Scan(&sp.Code, &sp.DisplayName, &sp.DurationMinutes); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSport(sp Sport) error {
	_, err := s.db.Exec(`INSERT INTO sports (code, display_name, duration_minutes) VALUES (?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET display_name = excluded.display_name,
		duration_minutes = excluded.duration_minutes`,
		sp.Code, sp.DisplayName, sp.DurationMinutes)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func scanNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func scanNullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
