// Package store owns the engine database: one SQLite file holding settings,
// the league and team caches, the fingerprint cache, groups, managed channels
// and their streams, keywords, and rules. All persistent truth lives here;
// the downstream channel manager is authoritative only for its own IDs.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// SchemaVersion is bumped when migrate gains a new additive step.
const SchemaVersion = 3

type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. The connection pool is capped at one writer; SQLite serializes
// writes anyway and a single connection avoids SQLITE_BUSY churn.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for backup and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	ver, err := s.schemaVersion()
	if err != nil {
		return err
	}
	// Additive migrations only: each step must be safe to re-run against a
	// database that already has it. Fresh databases get every column from the
	// base schema and are stamped at SchemaVersion, so these steps only run
	// for databases created before the column existed.
	steps := []struct {
		version int
		stmts   []string
	}{
		{2, []string{
			`ALTER TABLE managed_channels ADD COLUMN sync_status TEXT NOT NULL DEFAULT 'synced'`,
		}},
		{3, []string{
			`ALTER TABLE stream_match_cache ADD COLUMN norm_version INTEGER NOT NULL DEFAULT 0`,
		}},
	}
	for _, step := range steps {
		if ver >= step.version {
			continue
		}
		for _, stmt := range step.stmts {
			if _, err := s.db.Exec(stmt); err != nil && !isDuplicateColumn(err) {
				return fmt.Errorf("migrate to v%d: %w", step.version, err)
			}
		}
		ver = step.version
	}
	if _, err := s.db.Exec(`UPDATE settings SET schema_version = ? WHERE id = 1`, SchemaVersion); err != nil {
		return err
	}
	return nil
}

func (s *Store) schemaVersion() (int, error) {
	var ver int
	err := s.db.QueryRow(`SELECT schema_version FROM settings WHERE id = 1`).Scan(&ver)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.Exec(`INSERT INTO settings (id, schema_version, body) VALUES (1, ?, '{}')`, SchemaVersion)
		return SchemaVersion, err
	}
	return ver, err
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

// ---------------------------------------------------------------------------
// time helpers: timestamps are stored as unix seconds, dates as YYYY-MM-DD

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func nullUnix(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

func scanNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
