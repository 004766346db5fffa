package store

import (
	"database/sql"
	"errors"

	"github.com/goccy/go-json"
)

// Group is one event EPG group: the user-owned configuration for one M3U
// stream group. A child group (ParentGroupID set) never creates channels; it
// attaches streams to the parent's.
type Group struct {
	ID                    int64    `json:"id"`
	Name                  string   `json:"name"`
	M3UAccountID          int64    `json:"m3u_account_id"`
	M3UGroupID            int64    `json:"m3u_group_id"`
	Leagues               []string `json:"leagues"`
	ParentGroupID         *int64   `json:"parent_group_id,omitempty"`
	ChannelAssignmentMode string   `json:"channel_assignment_mode"` // manual|auto
	ChannelStartNumber    *int64   `json:"channel_start_number,omitempty"`
	TotalStreamCount      int      `json:"total_stream_count"`
	SortOrder             int      `json:"sort_order"`
	DuplicateMode         string   `json:"duplicate_mode"` // consolidate|separate|ignore
	IncludeRegex          string   `json:"include_regex"`
	ExcludeRegex          string   `json:"exclude_regex"`
	ExtractionRegex       string   `json:"extraction_regex"`
	SkipBuiltinExtraction bool     `json:"skip_builtin_extraction"`
	Enabled               bool     `json:"enabled"`
}

// IsChild reports whether the group contributes to a parent instead of
// owning channels.
func (g Group) IsChild() bool { return g.ParentGroupID != nil }

const groupCols = `id, name, m3u_account_id, m3u_group_id, leagues, parent_group_id,
	channel_assignment_mode, channel_start_number, total_stream_count, sort_order,
	duplicate_mode, include_regex, exclude_regex, extraction_regex,
	skip_builtin_extraction, enabled`

func scanGroup(row interface{ Scan(...any) error }) (Group, error) {
	var g Group
	var leagues string
	var parent, start sql.NullInt64
	var skip, enabled int
	err := row.Scan(&g.ID, &g.Name, &g.M3UAccountID, &g.M3UGroupID, &leagues, &parent,
		&g.ChannelAssignmentMode, &start, &g.TotalStreamCount, &g.SortOrder,
		&g.DuplicateMode, &g.IncludeRegex, &g.ExcludeRegex, &g.ExtractionRegex,
		&skip, &enabled)
	if err != nil {
		return g, err
	}
	if err := json.Unmarshal([]byte(leagues), &g.Leagues); err != nil {
		g.Leagues = nil
	}
	g.ParentGroupID = scanNullInt(parent)
	g.ChannelStartNumber = scanNullInt(start)
	g.SkipBuiltinExtraction = skip != 0
	g.Enabled = enabled != 0
	return g, nil
}

func (s *Store) ListGroups(enabledOnly bool) ([]Group, error) {
	q := `SELECT ` + groupCols + ` FROM event_epg_groups`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY sort_order, id`
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GetGroup(id int64) (Group, error) {
	g, err := scanGroup(s.db.QueryRow(`SELECT `+groupCols+` FROM event_epg_groups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	return g, err
}

func (s *Store) SaveGroup(g *Group) error {
	leagues, err := json.Marshal(g.Leagues)
	if err != nil {
		return err
	}
	if g.ID == 0 {
		res, err := s.db.Exec(`INSERT INTO event_epg_groups
			(name, m3u_account_id, m3u_group_id, leagues, parent_group_id, channel_assignment_mode,
			channel_start_number, total_stream_count, sort_order, duplicate_mode, include_regex,
			exclude_regex, extraction_regex, skip_builtin_extraction, enabled)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g.Name, g.M3UAccountID, g.M3UGroupID, string(leagues), nullInt(g.ParentGroupID),
			g.ChannelAssignmentMode, nullInt(g.ChannelStartNumber), g.TotalStreamCount, g.SortOrder,
			g.DuplicateMode, g.IncludeRegex, g.ExcludeRegex, g.ExtractionRegex,
			boolInt(g.SkipBuiltinExtraction), boolInt(g.Enabled))
		if err != nil {
			return err
		}
		g.ID, err = res.LastInsertId()
		return err
	}
	_, err = s.db.Exec(`UPDATE event_epg_groups SET name = ?, m3u_account_id = ?, m3u_group_id = ?,
		leagues = ?, parent_group_id = ?, channel_assignment_mode = ?, channel_start_number = ?,
		total_stream_count = ?, sort_order = ?, duplicate_mode = ?, include_regex = ?,
		exclude_regex = ?, extraction_regex = ?, skip_builtin_extraction = ?, enabled = ?
		WHERE id = ?`,
		g.Name, g.M3UAccountID, g.M3UGroupID, string(leagues), nullInt(g.ParentGroupID),
		g.ChannelAssignmentMode, nullInt(g.ChannelStartNumber), g.TotalStreamCount, g.SortOrder,
		g.DuplicateMode, g.IncludeRegex, g.ExcludeRegex, g.ExtractionRegex,
		boolInt(g.SkipBuiltinExtraction), boolInt(g.Enabled), g.ID)
	return err
}

func (s *Store) DeleteGroup(id int64) error {
	_, err := s.db.Exec(`DELETE FROM event_epg_groups WHERE id = ?`, id)
	return err
}

// UpdateGroupStreamCount records the stream count observed on the last
// fetch; auto numbering sizes blocks from it.
func (s *Store) UpdateGroupStreamCount(id int64, count int) error {
	_, err := s.db.Exec(`UPDATE event_epg_groups SET total_stream_count = ? WHERE id = ?`, count, id)
	return err
}

// GroupSortField returns the configured auto-numbering sort field for a
// group: time, league, or sport.
func (s *Store) GroupSortField(groupID int64) (string, error) {
	var f string
	err := s.db.QueryRow(`SELECT sort_field FROM channel_sort_priorities WHERE group_id = ?`, groupID).Scan(&f)
	if errors.Is(err, sql.ErrNoRows) {
		return "time", nil
	}
	return f, err
}

func (s *Store) SetGroupSortField(groupID int64, field string) error {
	_, err := s.db.Exec(`INSERT INTO channel_sort_priorities (group_id, sort_field) VALUES (?, ?)
		ON CONFLICT (group_id) DO UPDATE SET sort_field = excluded.sort_field`, groupID, field)
	return err
}

// RegularTVGroup is a static passthrough group: its channels go to XMLTV
// with filler programmes only, no matching.
type RegularTVGroup struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	M3UGroupID         int64  `json:"m3u_group_id"`
	ChannelStartNumber *int64 `json:"channel_start_number,omitempty"`
	Enabled            bool   `json:"enabled"`
}

func (s *Store) ListRegularTVGroups() ([]RegularTVGroup, error) {
	rows, err := s.db.Query(`SELECT id, name, m3u_group_id, channel_start_number, enabled
		FROM regular_tv_groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RegularTVGroup
	for rows.Next() {
		var g RegularTVGroup
		var start sql.NullInt64
		var enabled int
		if err := rows.Scan(&g.ID, &g.Name, &g.M3UGroupID, &start, &enabled); err != nil {
			return nil, err
		}
		g.ChannelStartNumber = scanNullInt(start)
		g.Enabled = enabled != 0
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) SaveRegularTVGroup(g *RegularTVGroup) error {
	if g.ID == 0 {
		res, err := s.db.Exec(`INSERT INTO regular_tv_groups (name, m3u_group_id, channel_start_number, enabled)
			VALUES (?, ?, ?, ?)`, g.Name, g.M3UGroupID, nullInt(g.ChannelStartNumber), boolInt(g.Enabled))
		if err != nil {
			return err
		}
		g.ID, err = res.LastInsertId()
		return err
	}
	_, err := s.db.Exec(`UPDATE regular_tv_groups SET name = ?, m3u_group_id = ?, channel_start_number = ?, enabled = ?
		WHERE id = ?`, g.Name, g.M3UGroupID, nullInt(g.ChannelStartNumber), boolInt(g.Enabled), g.ID)
	return err
}

func (s *Store) DeleteRegularTVGroup(id int64) error {
	_, err := s.db.Exec(`DELETE FROM regular_tv_groups WHERE id = ?`, id)
	return err
}

// TrackedTeam is a user-followed team for the per-team schedule EPG.
type TrackedTeam struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	TeamID   string `json:"provider_team_id"`
	League   string `json:"league"`
	Sport    string `json:"sport"`
	Enabled  bool   `json:"enabled"`
}

func (s *Store) ListTrackedTeams(enabledOnly bool) ([]TrackedTeam, error) {
	q := `SELECT id, name, provider, provider_team_id, league, sport, enabled FROM teams`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY name`
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrackedTeam
	for rows.Next() {
		var t TrackedTeam
		var enabled int
		if err := rows.Scan(&t.ID, &t.Name, &t.Provider, &t.TeamID, &t.League, &t.Sport, &enabled); err != nil {
			return nil, err
		}
		t.Enabled = enabled != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) SaveTrackedTeam(t *TrackedTeam) error {
	if t.ID == 0 {
		res, err := s.db.Exec(`INSERT INTO teams (name, provider, provider_team_id, league, sport, enabled)
			VALUES (?, ?, ?, ?, ?, ?)`, t.Name, t.Provider, t.TeamID, t.League, t.Sport, boolInt(t.Enabled))
		if err != nil {
			return err
		}
		t.ID, err = res.LastInsertId()
		return err
	}
	_, err := s.db.Exec(`UPDATE teams SET name = ?, provider = ?, provider_team_id = ?, league = ?, sport = ?, enabled = ?
		WHERE id = ?`, t.Name, t.Provider, t.TeamID, t.League, t.Sport, boolInt(t.Enabled), t.ID)
	return err
}

func (s *Store) DeleteTrackedTeam(id int64) error {
	_, err := s.db.Exec(`DELETE FROM teams WHERE id = ?`, id)
	return err
}
