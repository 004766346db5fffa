package store

// Base schema. Every statement is idempotent; later versions extend it via
// the additive steps in migrate. tvg_id is deliberately not UNIQUE: a
// soft-deleted channel keeps its tvg_id while a fresh row for the same event
// takes over. The partial unique index below is the consolidate identity.
const schema = `
CREATE TABLE IF NOT EXISTS settings (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    schema_version INTEGER NOT NULL,
    body           TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS leagues (
    code               TEXT NOT NULL,
    provider           TEXT NOT NULL,
    provider_league_id TEXT NOT NULL DEFAULT '',
    sport              TEXT NOT NULL,
    display_name       TEXT NOT NULL DEFAULT '',
    league_alias       TEXT NOT NULL DEFAULT '',
    fallback_provider  TEXT NOT NULL DEFAULT '',
    fallback_league_id TEXT NOT NULL DEFAULT '',
    enabled            INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (code, provider)
);

CREATE TABLE IF NOT EXISTS team_cache (
    provider         TEXT NOT NULL,
    provider_team_id TEXT NOT NULL,
    league           TEXT NOT NULL,
    name             TEXT NOT NULL,
    short_name       TEXT NOT NULL DEFAULT '',
    abbreviation     TEXT NOT NULL DEFAULT '',
    sport            TEXT NOT NULL DEFAULT '',
    logo_url         TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (provider, provider_team_id, league)
);
CREATE INDEX IF NOT EXISTS idx_team_cache_name ON team_cache (name);
CREATE INDEX IF NOT EXISTS idx_team_cache_league ON team_cache (league, provider);

CREATE TABLE IF NOT EXISTS league_cache (
    league     TEXT NOT NULL,
    provider   TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    sport      TEXT NOT NULL DEFAULT '',
    team_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (league, provider)
);

CREATE TABLE IF NOT EXISTS cache_meta (
    id                  INTEGER PRIMARY KEY CHECK (id = 1),
    last_full_refresh   INTEGER NOT NULL DEFAULT 0,
    leagues_count       INTEGER NOT NULL DEFAULT 0,
    teams_count         INTEGER NOT NULL DEFAULT 0,
    refresh_in_progress INTEGER NOT NULL DEFAULT 0,
    last_error          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS teams (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    name             TEXT NOT NULL,
    provider         TEXT NOT NULL DEFAULT '',
    provider_team_id TEXT NOT NULL DEFAULT '',
    league           TEXT NOT NULL DEFAULT '',
    sport            TEXT NOT NULL DEFAULT '',
    enabled          INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS event_epg_groups (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    name                    TEXT NOT NULL,
    m3u_account_id          INTEGER NOT NULL DEFAULT 0,
    m3u_group_id            INTEGER NOT NULL DEFAULT 0,
    leagues                 TEXT NOT NULL DEFAULT '[]',
    parent_group_id         INTEGER,
    channel_assignment_mode TEXT NOT NULL DEFAULT 'auto',
    channel_start_number    INTEGER,
    total_stream_count      INTEGER NOT NULL DEFAULT 0,
    sort_order              INTEGER NOT NULL DEFAULT 0,
    duplicate_mode          TEXT NOT NULL DEFAULT 'consolidate',
    include_regex           TEXT NOT NULL DEFAULT '',
    exclude_regex           TEXT NOT NULL DEFAULT '',
    extraction_regex        TEXT NOT NULL DEFAULT '',
    skip_builtin_extraction INTEGER NOT NULL DEFAULT 0,
    enabled                 INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS managed_channels (
    id                    INTEGER PRIMARY KEY AUTOINCREMENT,
    group_id              INTEGER NOT NULL,
    event_id              TEXT NOT NULL,
    event_provider        TEXT NOT NULL,
    tvg_id                TEXT NOT NULL,
    channel_name          TEXT NOT NULL,
    channel_number        INTEGER NOT NULL,
    logo_url              TEXT NOT NULL DEFAULT '',
    downstream_channel_id INTEGER,
    channel_group_id      INTEGER,
    channel_profile_ids   TEXT NOT NULL DEFAULT '[]',
    primary_stream_id     INTEGER,
    exception_keyword     TEXT,
    home_team             TEXT NOT NULL DEFAULT '',
    away_team             TEXT NOT NULL DEFAULT '',
    event_name            TEXT NOT NULL DEFAULT '',
    event_start           INTEGER NOT NULL DEFAULT 0,
    event_date            TEXT NOT NULL DEFAULT '',
    league                TEXT NOT NULL DEFAULT '',
    sport                 TEXT NOT NULL DEFAULT '',
    venue                 TEXT NOT NULL DEFAULT '',
    broadcast             TEXT NOT NULL DEFAULT '',
    segment               TEXT NOT NULL DEFAULT '',
    segment_start         INTEGER NOT NULL DEFAULT 0,
    segment_end           INTEGER NOT NULL DEFAULT 0,
    sync_status           TEXT NOT NULL DEFAULT 'synced',
    scheduled_delete_at   INTEGER,
    created_at            INTEGER NOT NULL,
    updated_at            INTEGER NOT NULL,
    deleted_at            INTEGER,
    delete_reason         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_channels_group ON managed_channels (group_id, deleted_at);
CREATE INDEX IF NOT EXISTS idx_channels_event ON managed_channels (event_provider, event_id);
-- Consolidate identity: one active channel per (group, event, provider,
-- keyword). Soft-deleted rows fall outside the index and may repeat freely.
CREATE UNIQUE INDEX IF NOT EXISTS uq_channels_active_identity
    ON managed_channels (group_id, event_provider, event_id, COALESCE(exception_keyword, ''))
    WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS managed_channel_streams (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    managed_channel_id   INTEGER NOT NULL REFERENCES managed_channels (id),
    downstream_stream_id INTEGER NOT NULL,
    stream_name          TEXT NOT NULL,
    priority             INTEGER NOT NULL DEFAULT 999,
    source_group_id      INTEGER NOT NULL DEFAULT 0,
    source_group_type    TEXT NOT NULL DEFAULT 'main',
    m3u_account_id       INTEGER NOT NULL DEFAULT 0,
    exception_keyword    TEXT,
    added_at             INTEGER NOT NULL,
    removed_at           INTEGER
);
CREATE INDEX IF NOT EXISTS idx_streams_channel ON managed_channel_streams (managed_channel_id, removed_at);
CREATE UNIQUE INDEX IF NOT EXISTS uq_streams_active
    ON managed_channel_streams (managed_channel_id, downstream_stream_id)
    WHERE removed_at IS NULL;

CREATE TABLE IF NOT EXISTS managed_channel_history (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    channel_id INTEGER NOT NULL,
    action     TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_created ON managed_channel_history (created_at);

CREATE TABLE IF NOT EXISTS consolidation_exception_keywords (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    label       TEXT NOT NULL,
    match_terms TEXT NOT NULL,
    behavior    TEXT NOT NULL DEFAULT 'consolidate',
    enabled     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS detection_keywords (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    kind    TEXT NOT NULL,
    pattern TEXT NOT NULL,
    value   TEXT NOT NULL DEFAULT '',
    enabled INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS stream_match_cache (
    group_id     INTEGER NOT NULL,
    fingerprint  TEXT NOT NULL,
    event_id     TEXT NOT NULL,
    provider     TEXT NOT NULL,
    league       TEXT NOT NULL,
    snapshot     TEXT NOT NULL,
    match_method TEXT NOT NULL,
    generation   INTEGER NOT NULL,
    norm_version INTEGER NOT NULL DEFAULT 0,
    last_touched INTEGER NOT NULL,
    PRIMARY KEY (group_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS stream_ordering_rules (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    rule_type TEXT NOT NULL,
    value     TEXT NOT NULL,
    priority  INTEGER NOT NULL DEFAULT 50
);

CREATE TABLE IF NOT EXISTS channel_sort_priorities (
    group_id   INTEGER PRIMARY KEY,
    sort_field TEXT NOT NULL DEFAULT 'time'
);

CREATE TABLE IF NOT EXISTS sports (
    code             TEXT PRIMARY KEY,
    display_name     TEXT NOT NULL DEFAULT '',
    duration_minutes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS regular_tv_groups (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    name                 TEXT NOT NULL,
    m3u_group_id         INTEGER NOT NULL DEFAULT 0,
    channel_start_number INTEGER,
    enabled              INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS processing_state (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    generation INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO processing_state (id, generation) VALUES (1, 0);
INSERT OR IGNORE INTO cache_meta (id) VALUES (1);
`
