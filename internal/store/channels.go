package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Channel is the authoritative engine record for one managed channel.
// Soft-delete only: DeletedAt is set, the row stays, and a new row for the
// same event may coexist with it.
type Channel struct {
	ID                  int64      `json:"id"`
	GroupID             int64      `json:"group_id"`
	EventID             string     `json:"event_id"`
	EventProvider       string     `json:"event_provider"`
	TVGID               string     `json:"tvg_id"`
	Name                string     `json:"channel_name"`
	Number              int        `json:"channel_number"`
	LogoURL             string     `json:"logo_url"`
	DownstreamChannelID *int64     `json:"downstream_channel_id,omitempty"`
	ChannelGroupID      *int64     `json:"channel_group_id,omitempty"`
	ChannelProfileIDs   []int64    `json:"channel_profile_ids"`
	PrimaryStreamID     *int64     `json:"primary_stream_id,omitempty"`
	ExceptionKeyword    *string    `json:"exception_keyword,omitempty"`
	HomeTeam            string     `json:"home_team"`
	AwayTeam            string     `json:"away_team"`
	EventName           string     `json:"event_name"`
	EventStart          time.Time  `json:"event_start"`
	EventDate           string     `json:"event_date"` // civil date in the user tz, YYYY-MM-DD
	League              string     `json:"league"`
	Sport               string     `json:"sport"`
	Venue               string     `json:"venue"`
	Broadcast           string     `json:"broadcast"`
	Segment             string     `json:"segment"`
	SegmentStart        time.Time  `json:"segment_start"`
	SegmentEnd          time.Time  `json:"segment_end"`
	ScheduledDeleteAt   *time.Time `json:"scheduled_delete_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
	DeleteReason        string     `json:"delete_reason,omitempty"`
	SyncStatus          string     `json:"sync_status"`
}

func (c Channel) Deleted() bool { return c.DeletedAt != nil }

const channelCols = `id, group_id, event_id, event_provider, tvg_id, channel_name, channel_number,
	logo_url, downstream_channel_id, channel_group_id, channel_profile_ids, primary_stream_id,
	exception_keyword, home_team, away_team, event_name, event_start, event_date, league, sport,
	venue, broadcast, segment, segment_start, segment_end, scheduled_delete_at,
	created_at, updated_at, deleted_at, delete_reason, sync_status`

func scanChannel(row interface{ Scan(...any) error }) (Channel, error) {
	var c Channel
	var profiles string
	var downstream, chanGroup, primary sql.NullInt64
	var keyword sql.NullString
	var eventStart, segStart, segEnd, created, updated int64
	var schedDel, deleted sql.NullInt64
	err := row.Scan(&c.ID, &c.GroupID, &c.EventID, &c.EventProvider, &c.TVGID, &c.Name, &c.Number,
		&c.LogoURL, &downstream, &chanGroup, &profiles, &primary,
		&keyword, &c.HomeTeam, &c.AwayTeam, &c.EventName, &eventStart, &c.EventDate, &c.League, &c.Sport,
		&c.Venue, &c.Broadcast, &c.Segment, &segStart, &segEnd, &schedDel,
		&created, &updated, &deleted, &c.DeleteReason, &c.SyncStatus)
	if err != nil {
		return c, err
	}
	_ = json.Unmarshal([]byte(profiles), &c.ChannelProfileIDs)
	c.DownstreamChannelID = scanNullInt(downstream)
	c.ChannelGroupID = scanNullInt(chanGroup)
	c.PrimaryStreamID = scanNullInt(primary)
	c.ExceptionKeyword = scanNullStr(keyword)
	c.EventStart = fromUnix(eventStart)
	c.SegmentStart = fromUnix(segStart)
	c.SegmentEnd = fromUnix(segEnd)
	c.ScheduledDeleteAt = scanNullUnix(schedDel)
	c.CreatedAt = fromUnix(created)
	c.UpdatedAt = fromUnix(updated)
	c.DeletedAt = scanNullUnix(deleted)
	return c, nil
}

// InsertChannel creates the row and stamps created/updated.
func (s *Store) InsertChannel(c *Channel) error {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.SyncStatus == "" {
		c.SyncStatus = "pending"
	}
	profiles, _ := json.Marshal(c.ChannelProfileIDs)
	res, err := s.db.Exec(`INSERT INTO managed_channels
		(group_id, event_id, event_provider, tvg_id, channel_name, channel_number, logo_url,
		downstream_channel_id, channel_group_id, channel_profile_ids, primary_stream_id,
		exception_keyword, home_team, away_team, event_name, event_start, event_date, league,
		sport, venue, broadcast, segment, segment_start, segment_end, scheduled_delete_at,
		created_at, updated_at, delete_reason, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?)`,
		c.GroupID, c.EventID, c.EventProvider, c.TVGID, c.Name, c.Number, c.LogoURL,
		nullInt(c.DownstreamChannelID), nullInt(c.ChannelGroupID), string(profiles), nullInt(c.PrimaryStreamID),
		nullStr(c.ExceptionKeyword), c.HomeTeam, c.AwayTeam, c.EventName, toUnix(c.EventStart), c.EventDate, c.League,
		c.Sport, c.Venue, c.Broadcast, c.Segment, toUnix(c.SegmentStart), toUnix(c.SegmentEnd),
		nullUnix(c.ScheduledDeleteAt), now.Unix(), now.Unix(), c.SyncStatus)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	if err == nil {
		err = s.AppendHistory(c.ID, "created", c.Name)
	}
	return err
}

// UpdateChannel rewrites the mutable fields of an existing row.
func (s *Store) UpdateChannel(c *Channel) error {
	c.UpdatedAt = time.Now().UTC()
	profiles, _ := json.Marshal(c.ChannelProfileIDs)
	_, err := s.db.Exec(`UPDATE managed_channels SET tvg_id = ?, channel_name = ?, channel_number = ?,
		logo_url = ?, downstream_channel_id = ?, channel_group_id = ?, channel_profile_ids = ?,
		primary_stream_id = ?, home_team = ?, away_team = ?, event_name = ?, event_start = ?,
		event_date = ?, league = ?, sport = ?, venue = ?, broadcast = ?, segment = ?,
		segment_start = ?, segment_end = ?, scheduled_delete_at = ?, updated_at = ?, sync_status = ?
		WHERE id = ?`,
		c.TVGID, c.Name, c.Number, c.LogoURL, nullInt(c.DownstreamChannelID), nullInt(c.ChannelGroupID),
		string(profiles), nullInt(c.PrimaryStreamID), c.HomeTeam, c.AwayTeam, c.EventName,
		toUnix(c.EventStart), c.EventDate, c.League, c.Sport, c.Venue, c.Broadcast, c.Segment,
		toUnix(c.SegmentStart), toUnix(c.SegmentEnd), nullUnix(c.ScheduledDeleteAt),
		c.UpdatedAt.Unix(), c.SyncStatus, c.ID)
	return err
}

// SoftDeleteChannel marks the row deleted and retires its active streams.
func (s *Store) SoftDeleteChannel(id int64, reason string) error {
	now := time.Now().UTC().Unix()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`UPDATE managed_channels SET deleted_at = ?, delete_reason = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, now, reason, now, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE managed_channel_streams SET removed_at = ?
		WHERE managed_channel_id = ? AND removed_at IS NULL`, now, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO managed_channel_history (channel_id, action, detail, created_at)
		VALUES (?, 'deleted', ?, ?)`, id, reason, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetChannel(id int64) (Channel, error) {
	c, err := scanChannel(s.db.QueryRow(`SELECT `+channelCols+` FROM managed_channels WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// FindActiveChannel looks up the active channel for a consolidate identity.
// keyword nil means the main (unlabeled) channel.
func (s *Store) FindActiveChannel(groupID int64, provider, eventID string, keyword *string) (Channel, error) {
	kw := ""
	if keyword != nil {
		kw = *keyword
	}
	c, err := scanChannel(s.db.QueryRow(`SELECT `+channelCols+` FROM managed_channels
		WHERE group_id = ? AND event_provider = ? AND event_id = ? AND COALESCE(exception_keyword, '') = ?
		AND deleted_at IS NULL`, groupID, provider, eventID, kw))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// FindActiveChannelByPrimaryStream serves separate-mode upserts.
func (s *Store) FindActiveChannelByPrimaryStream(groupID, streamID int64) (Channel, error) {
	c, err := scanChannel(s.db.QueryRow(`SELECT `+channelCols+` FROM managed_channels
		WHERE group_id = ? AND primary_stream_id = ? AND deleted_at IS NULL`, groupID, streamID))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// FindActiveChannelsForEvent returns every active channel for an event in a
// group, any keyword. ignore-mode and duplicate detection use it.
func (s *Store) FindActiveChannelsForEvent(groupID int64, provider, eventID string) ([]Channel, error) {
	return s.queryChannels(`SELECT `+channelCols+` FROM managed_channels
		WHERE group_id = ? AND event_provider = ? AND event_id = ? AND deleted_at IS NULL
		ORDER BY created_at, id`, groupID, provider, eventID)
}

// ListActiveChannels returns not-deleted channels, all groups when groupID
// is zero.
func (s *Store) ListActiveChannels(groupID int64) ([]Channel, error) {
	if groupID != 0 {
		return s.queryChannels(`SELECT `+channelCols+` FROM managed_channels
			WHERE group_id = ? AND deleted_at IS NULL ORDER BY channel_number`, groupID)
	}
	return s.queryChannels(`SELECT ` + channelCols + ` FROM managed_channels
		WHERE deleted_at IS NULL ORDER BY channel_number`)
}

// ListChannelsDue returns active channels whose scheduled delete time has
// passed.
func (s *Store) ListChannelsDue(now time.Time) ([]Channel, error) {
	return s.queryChannels(`SELECT `+channelCols+` FROM managed_channels
		WHERE deleted_at IS NULL AND scheduled_delete_at IS NOT NULL AND scheduled_delete_at <= ?
		ORDER BY scheduled_delete_at`, now.Unix())
}

func (s *Store) queryChannels(q string, args ...any) ([]Channel, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UsedChannelNumbers returns the numbers of active channels, optionally
// excluding one channel id (so renumbering a channel does not collide with
// itself).
func (s *Store) UsedChannelNumbers(excludeID int64) (map[int]bool, error) {
	rows, err := s.db.Query(`SELECT channel_number FROM managed_channels
		WHERE deleted_at IS NULL AND id != ?`, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	used := make(map[int]bool)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		used[n] = true
	}
	return used, rows.Err()
}

func (s *Store) CountActiveChannels() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM managed_channels WHERE deleted_at IS NULL`).Scan(&n)
	return n, err
}

// ---------------------------------------------------------------------------
// Channel streams

// ChannelStream is one upstream stream attached to a managed channel.
type ChannelStream struct {
	ID                 int64      `json:"id"`
	ChannelID          int64      `json:"managed_channel_id"`
	DownstreamStreamID int64      `json:"downstream_stream_id"`
	Name               string     `json:"stream_name"`
	Priority           int        `json:"priority"`
	SourceGroupID      int64      `json:"source_group_id"`
	SourceGroupType    string     `json:"source_group_type"` // main|child
	M3UAccountID       int64      `json:"m3u_account_id"`
	ExceptionKeyword   *string    `json:"exception_keyword,omitempty"`
	AddedAt            time.Time  `json:"added_at"`
	RemovedAt          *time.Time `json:"removed_at,omitempty"`
}

// AddChannelStream attaches a stream; re-adding an active stream is a no-op
// thanks to the partial unique index.
func (s *Store) AddChannelStream(st *ChannelStream) error {
	st.AddedAt = time.Now().UTC()
	res, err := s.db.Exec(`INSERT OR IGNORE INTO managed_channel_streams
		(managed_channel_id, downstream_stream_id, stream_name, priority, source_group_id,
		source_group_type, m3u_account_id, exception_keyword, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ChannelID, st.DownstreamStreamID, st.Name, st.Priority, st.SourceGroupID,
		st.SourceGroupType, st.M3UAccountID, nullStr(st.ExceptionKeyword), st.AddedAt.Unix())
	if err != nil {
		return err
	}
	st.ID, _ = res.LastInsertId()
	return nil
}

func (s *Store) RemoveChannelStream(channelID, downstreamStreamID int64) error {
	_, err := s.db.Exec(`UPDATE managed_channel_streams SET removed_at = ?
		WHERE managed_channel_id = ? AND downstream_stream_id = ? AND removed_at IS NULL`,
		time.Now().UTC().Unix(), channelID, downstreamStreamID)
	return err
}

func (s *Store) SetStreamPriority(id int64, priority int) error {
	_, err := s.db.Exec(`UPDATE managed_channel_streams SET priority = ? WHERE id = ?`, priority, id)
	return err
}

// ListChannelStreams returns a channel's active streams ordered by
// (priority, added_at); ties on priority keep attach order.
func (s *Store) ListChannelStreams(channelID int64) ([]ChannelStream, error) {
	rows, err := s.db.Query(`SELECT id, managed_channel_id, downstream_stream_id, stream_name,
		priority, source_group_id, source_group_type, m3u_account_id, exception_keyword, added_at, removed_at
		FROM managed_channel_streams
		WHERE managed_channel_id = ? AND removed_at IS NULL
		ORDER BY priority, added_at, id`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChannelStream
	for rows.Next() {
		var st ChannelStream
		var keyword sql.NullString
		var added int64
		var removed sql.NullInt64
		if err := rows.Scan(&st.ID, &st.ChannelID, &st.DownstreamStreamID, &st.Name,
			&st.Priority, &st.SourceGroupID, &st.SourceGroupType, &st.M3UAccountID, &keyword, &added, &removed); err != nil {
			return nil, err
		}
		st.ExceptionKeyword = scanNullStr(keyword)
		st.AddedAt = fromUnix(added)
		st.RemovedAt = scanNullUnix(removed)
		out = append(out, st)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// History

func (s *Store) AppendHistory(channelID int64, action, detail string) error {
	_, err := s.db.Exec(`INSERT INTO managed_channel_history (channel_id, action, detail, created_at)
		VALUES (?, ?, ?, ?)`, channelID, action, detail, time.Now().UTC().Unix())
	return err
}

// PruneHistory drops history rows older than the retention window and
// returns how many went.
func (s *Store) PruneHistory(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := s.db.Exec(`DELETE FROM managed_channel_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
