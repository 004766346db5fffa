package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BackupTo writes a consistent copy of the database to path using VACUUM
// INTO, which snapshots without blocking readers.
func (s *Store) BackupTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// VACUUM INTO refuses to overwrite.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if _, err := s.db.Exec(`VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}

// RestoreFrom replaces the database contents with the snapshot at path. The
// snapshot is validated first, then copied table by table inside one
// transaction via ATTACH, so the live handle stays valid throughout. Only
// columns both sides share are copied, which lets older backups load into a
// migrated schema.
func (s *Store) RestoreFrom(path string) error {
	if err := validateSnapshot(path); err != nil {
		return err
	}
	if _, err := s.db.Exec(`ATTACH DATABASE ? AS restore`, path); err != nil {
		return fmt.Errorf("attach snapshot: %w", err)
	}
	defer s.db.Exec(`DETACH DATABASE restore`)

	tables, err := s.restoreTables()
	if err != nil {
		return err
	}
	// Column introspection happens before Begin: the pool has one connection
	// and a query during the transaction would wait on it forever.
	columns := make(map[string]string, len(tables))
	for _, t := range tables {
		cols, err := s.sharedColumns(t)
		if err != nil {
			return err
		}
		if len(cols) > 0 {
			columns[t] = strings.Join(cols, ", ")
		}
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	// Tables copy in sqlite_master order, so parent rows may land after
	// children; check foreign keys at commit instead.
	if _, err := tx.Exec(`PRAGMA defer_foreign_keys = ON`); err != nil {
		return err
	}
	// Clear everything before inserting anything: a parent-table delete
	// cascades, and must not eat child rows restored moments earlier.
	for _, t := range tables {
		if _, err := tx.Exec(`DELETE FROM main.` + quoteIdent(t)); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}
	for _, t := range tables {
		list, ok := columns[t]
		if !ok {
			continue
		}
		q := fmt.Sprintf(`INSERT INTO main.%s (%s) SELECT %s FROM restore.%s`,
			quoteIdent(t), list, list, quoteIdent(t))
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("restore %s: %w", t, err)
		}
	}
	if _, err := tx.Exec(`UPDATE main.settings SET schema_version = ? WHERE id = 1`, SchemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}

// validateSnapshot rejects uploads that are not an engine backup or come from
// a newer build than this one.
func validateSnapshot(path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()
	var ver int
	if err := db.QueryRow(`SELECT schema_version FROM settings WHERE id = 1`).Scan(&ver); err != nil {
		return fmt.Errorf("not an engine backup: %w", err)
	}
	if ver > SchemaVersion {
		return fmt.Errorf("backup schema v%d is newer than this build (v%d)", ver, SchemaVersion)
	}
	return nil
}

// restoreTables lists snapshot tables that also exist locally.
func (s *Store) restoreTables() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT name FROM restore.sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		  AND name IN (SELECT name FROM main.sqlite_master WHERE type = 'table')
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// sharedColumns intersects a table's columns across main and the attached
// snapshot, keeping the local column order.
func (s *Store) sharedColumns(table string) ([]string, error) {
	local, err := s.tableColumns("main", table)
	if err != nil {
		return nil, err
	}
	snap, err := s.tableColumns("restore", table)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(snap))
	for _, c := range snap {
		have[c] = true
	}
	var out []string
	for _, c := range local {
		if have[c] {
			out = append(out, quoteIdent(c))
		}
	}
	return out, nil
}

func (s *Store) tableColumns(schema, table string) ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA %s.table_info(%s)`, schema, quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
