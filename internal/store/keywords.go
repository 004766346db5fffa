package store

// ExceptionKeyword routes streams whose names hit one of its terms onto a
// labeled secondary channel (consolidate), their own channels (separate), or
// the floor (ignore).
type ExceptionKeyword struct {
	ID         int64  `json:"id"`
	Label      string `json:"label"`
	MatchTerms string `json:"match_terms"` // comma-separated
	Behavior   string `json:"behavior"`    // consolidate|separate|ignore
	Enabled    bool   `json:"enabled"`
}

func (s *Store) ListExceptionKeywords(enabledOnly bool) ([]ExceptionKeyword, error) {
	q := `SELECT id, label, match_terms, behavior, enabled FROM consolidation_exception_keywords`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY id`
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExceptionKeyword
	for rows.Next() {
		var k ExceptionKeyword
		var enabled int
		if err := rows.Scan(&k.ID, &k.Label, &k.MatchTerms, &k.Behavior, &enabled); err != nil {
			return nil, err
		}
		k.Enabled = enabled != 0
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) SaveExceptionKeyword(k *ExceptionKeyword) error {
	if k.ID == 0 {
		res, err := s.db.Exec(`INSERT INTO consolidation_exception_keywords (label, match_terms, behavior, enabled)
			VALUES (?, ?, ?, ?)`, k.Label, k.MatchTerms, k.Behavior, boolInt(k.Enabled))
		if err != nil {
			return err
		}
		k.ID, err = res.LastInsertId()
		return err
	}
	_, err := s.db.Exec(`UPDATE consolidation_exception_keywords SET label = ?, match_terms = ?, behavior = ?, enabled = ?
		WHERE id = ?`, k.Label, k.MatchTerms, k.Behavior, boolInt(k.Enabled), k.ID)
	return err
}

func (s *Store) DeleteExceptionKeyword(id int64) error {
	_, err := s.db.Exec(`DELETE FROM consolidation_exception_keywords WHERE id = ?`, id)
	return err
}

// DetectionKeyword is one user-editable classifier pattern row.
type DetectionKeyword struct {
	ID      int64  `json:"id"`
	Kind    string `json:"kind"`
	Pattern string `json:"pattern"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

func (s *Store) ListDetectionKeywords(enabledOnly bool) ([]DetectionKeyword, error) {
	q := `SELECT id, kind, pattern, value, enabled FROM detection_keywords`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY id`
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DetectionKeyword
	for rows.Next() {
		var k DetectionKeyword
		var enabled int
		if err := rows.Scan(&k.ID, &k.Kind, &k.Pattern, &k.Value, &enabled); err != nil {
			return nil, err
		}
		k.Enabled = enabled != 0
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) SaveDetectionKeyword(k *DetectionKeyword) error {
	if k.ID == 0 {
		res, err := s.db.Exec(`INSERT INTO detection_keywords (kind, pattern, value, enabled)
			VALUES (?, ?, ?, ?)`, k.Kind, k.Pattern, k.Value, boolInt(k.Enabled))
		if err != nil {
			return err
		}
		k.ID, err = res.LastInsertId()
		return err
	}
	_, err := s.db.Exec(`UPDATE detection_keywords SET kind = ?, pattern = ?, value = ?, enabled = ?
		WHERE id = ?`, k.Kind, k.Pattern, k.Value, boolInt(k.Enabled), k.ID)
	return err
}

func (s *Store) DeleteDetectionKeyword(id int64) error {
	_, err := s.db.Exec(`DELETE FROM detection_keywords WHERE id = ?`, id)
	return err
}

// SeedDetectionKeywords loads the built-in classifier defaults into an empty
// table. After the first run the database rows are authoritative.
func (s *Store) SeedDetectionKeywords(defaults []DetectionKeyword) error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM detection_keywords`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, k := range defaults {
		if _, err := tx.Exec(`INSERT INTO detection_keywords (kind, pattern, value, enabled)
			VALUES (?, ?, ?, 1)`, k.Kind, k.Pattern, k.Value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// OrderingRule is one stream-priority rule, evaluated ascending by Priority;
// the first matching rule wins.
type OrderingRule struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"` // m3u|group|regex
	Value    string `json:"value"`
	Priority int    `json:"priority"` // 1-99
}

func (s *Store) ListOrderingRules() ([]OrderingRule, error) {
	rows, err := s.db.Query(`SELECT id, rule_type, value, priority FROM stream_ordering_rules
		ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderingRule
	for rows.Next() {
		var r OrderingRule
		if err := rows.Scan(&r.ID, &r.Type, &r.Value, &r.Priority); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SaveOrderingRule(r *OrderingRule) error {
	if r.ID == 0 {
		res, err := s.db.Exec(`INSERT INTO stream_ordering_rules (rule_type, value, priority)
			VALUES (?, ?, ?)`, r.Type, r.Value, r.Priority)
		if err != nil {
			return err
		}
		r.ID, err = res.LastInsertId()
		return err
	}
	_, err := s.db.Exec(`UPDATE stream_ordering_rules SET rule_type = ?, value = ?, priority = ?
		WHERE id = ?`, r.Type, r.Value, r.Priority, r.ID)
	return err
}

func (s *Store) DeleteOrderingRule(id int64) error {
	res, err := s.db.Exec(`DELETE FROM stream_ordering_rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
