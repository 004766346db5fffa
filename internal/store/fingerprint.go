package store

import (
	"database/sql"
	"errors"
	"time"
)

// FingerprintEntry is one row of stream_match_cache: a stream name that
// matched an event, with enough snapshot to rebuild the event without a
// provider call. Generation ages entries out; NormVersion invalidates them
// when the normalization rules change.
type FingerprintEntry struct {
	GroupID     int64     `json:"group_id"`
	Fingerprint string    `json:"fingerprint"`
	EventID     string    `json:"event_id"`
	Provider    string    `json:"provider"`
	League      string    `json:"league"`
	Snapshot    string    `json:"snapshot"` // JSON-encoded event
	MatchMethod string    `json:"match_method"`
	Generation  int64     `json:"generation"`
	NormVersion int       `json:"norm_version"`
	LastTouched time.Time `json:"last_touched"`
}

func (s *Store) GetFingerprint(groupID int64, fingerprint string) (FingerprintEntry, error) {
	var e FingerprintEntry
	var touched int64
	err := s.db.QueryRow(`SELECT group_id, fingerprint, event_id, provider, league, snapshot,
		match_method, generation, norm_version, last_touched
		FROM stream_match_cache WHERE group_id = ? AND fingerprint = ?`, groupID, fingerprint).
		Scan(&e.GroupID, &e.Fingerprint, &e.EventID, &e.Provider, &e.League, &e.Snapshot,
			&e.MatchMethod, &e.Generation, &e.NormVersion, &touched)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	e.LastTouched = fromUnix(touched)
	return e, err
}

func (s *Store) PutFingerprint(e FingerprintEntry) error {
	_, err := s.db.Exec(`INSERT INTO stream_match_cache
		(group_id, fingerprint, event_id, provider, league, snapshot, match_method, generation, norm_version, last_touched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (group_id, fingerprint) DO UPDATE SET
		event_id = excluded.event_id, provider = excluded.provider, league = excluded.league,
		snapshot = excluded.snapshot, match_method = excluded.match_method,
		generation = excluded.generation, norm_version = excluded.norm_version,
		last_touched = excluded.last_touched`,
		e.GroupID, e.Fingerprint, e.EventID, e.Provider, e.League, e.Snapshot,
		e.MatchMethod, e.Generation, e.NormVersion, time.Now().UTC().Unix())
	return err
}

// TouchFingerprint bumps last_touched and the confirming generation.
func (s *Store) TouchFingerprint(groupID int64, fingerprint string, generation int64) error {
	_, err := s.db.Exec(`UPDATE stream_match_cache SET last_touched = ?, generation = ?
		WHERE group_id = ? AND fingerprint = ?`,
		time.Now().UTC().Unix(), generation, groupID, fingerprint)
	return err
}

func (s *Store) DeleteFingerprint(groupID int64, fingerprint string) error {
	_, err := s.db.Exec(`DELETE FROM stream_match_cache WHERE group_id = ? AND fingerprint = ?`,
		groupID, fingerprint)
	return err
}

// EvictFingerprints removes entries two or more generations stale.
func (s *Store) EvictFingerprints(currentGeneration int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM stream_match_cache WHERE generation <= ?`, currentGeneration-2)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountFingerprints() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM stream_match_cache`).Scan(&n)
	return n, err
}

// NextGeneration increments and returns the processing generation. Called
// once at the start of each full engine run.
func (s *Store) NextGeneration() (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`UPDATE processing_state SET generation = generation + 1 WHERE id = 1`); err != nil {
		return 0, err
	}
	var gen int64
	if err := tx.QueryRow(`SELECT generation FROM processing_state WHERE id = 1`).Scan(&gen); err != nil {
		return 0, err
	}
	return gen, tx.Commit()
}

// Generation returns the current processing generation without advancing it.
func (s *Store) Generation() (int64, error) {
	var gen int64
	err := s.db.QueryRow(`SELECT generation FROM processing_state WHERE id = 1`).Scan(&gen)
	return gen, err
}
