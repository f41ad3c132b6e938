package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FileRow represents a row in the files table.
type FileRow struct {
	Path        string
	Name        string
	Checksum    string
	Valid       bool
	Error       string
	EntityCount int
	UpdatedAt   time.Time
}

// EntityRow represents a row in the entities table.
type EntityRow struct {
	ID           string
	Kind         string // "object" or "schema"
	Path         string
	ListSequence *int
	SchemaID     string
	Valid        bool
	ErrorCount   int
}

// RefRow is one outbound reference of an entity.
type RefRow struct {
	SourceID string
	FilePath string
	TargetID string
	Pointer  string
}

// EntityFilter narrows ListEntities. Zero values match everything.
type EntityFilter struct {
	Kind    string
	Query   string // substring of the identifier
	Invalid bool   // only entities with validation errors
	Limit   int
	Offset  int
}

// UpsertFile replaces a file row together with every entity and reference
// attributed to it, within a transaction.
func (db *DB) UpsertFile(f FileRow, entities []EntityRow, refs []RefRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO files (path, name, checksum, valid, error, entity_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name         = excluded.name,
			checksum     = excluded.checksum,
			valid        = excluded.valid,
			error        = excluded.error,
			entity_count = excluded.entity_count,
			updated_at   = excluded.updated_at
	`, f.Path, f.Name, f.Checksum, f.Valid, f.Error, f.EntityCount, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert file: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM entities WHERE path = ?`, f.Path); err != nil {
		return fmt.Errorf("index: clear entities: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM refs WHERE file_path = ?`, f.Path); err != nil {
		return fmt.Errorf("index: clear refs: %w", err)
	}

	if len(entities) > 0 {
		// an identifier moved here from another file replaces the old row
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO entities (id, kind, path, list_sequence, schema_id, valid, error_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare entity insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range entities {
			var seq sql.NullInt64
			if e.ListSequence != nil {
				seq = sql.NullInt64{Int64: int64(*e.ListSequence), Valid: true}
			}
			if _, err := stmt.Exec(e.ID, e.Kind, f.Path, seq, e.SchemaID, e.Valid, e.ErrorCount); err != nil {
				return fmt.Errorf("index: insert entity: %w", err)
			}
			if _, err := tx.Exec(`DELETE FROM refs WHERE source_id = ? AND file_path <> ?`, e.ID, f.Path); err != nil {
				return fmt.Errorf("index: clear moved refs: %w", err)
			}
		}
	}

	if len(refs) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO refs (source_id, file_path, target_id, pointer) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare ref insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range refs {
			if _, err := stmt.Exec(r.SourceID, f.Path, r.TargetID, r.Pointer); err != nil {
				return fmt.Errorf("index: insert ref: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteFile removes a file row, its entities and its references.
func (db *DB) DeleteFile(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM refs WHERE file_path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM entities WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM files WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a file, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every indexed file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// UpdateValidation stores the validation outcome of the given entities.
// Rows for identifiers that are not indexed are ignored.
func (db *DB) UpdateValidation(rows []EntityRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`UPDATE entities SET valid = ?, error_count = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("index: prepare validation update: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.Valid, r.ErrorCount, r.ID); err != nil {
			return fmt.Errorf("index: update validation: %w", err)
		}
	}
	return tx.Commit()
}

const entityColumns = `id, kind, path, list_sequence, schema_id, valid, error_count`

func scanEntity(s interface{ Scan(...any) error }) (EntityRow, error) {
	var (
		e   EntityRow
		seq sql.NullInt64
	)
	if err := s.Scan(&e.ID, &e.Kind, &e.Path, &seq, &e.SchemaID, &e.Valid, &e.ErrorCount); err != nil {
		return EntityRow{}, err
	}
	if seq.Valid {
		n := int(seq.Int64)
		e.ListSequence = &n
	}
	return e, nil
}

// GetEntity returns one entity row, or nil if the identifier is not indexed.
func (db *DB) GetEntity(id string) (*EntityRow, error) {
	row := db.conn.QueryRow(`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get entity: %w", err)
	}
	return &e, nil
}

// ListEntities returns a page of entities ordered by identifier, and the
// total number of matches.
func (db *DB) ListEntities(f EntityFilter) ([]EntityRow, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Query != "" {
		where = append(where, "id LIKE ?")
		args = append(args, "%"+f.Query+"%")
	}
	if f.Invalid {
		where = append(where, "valid = 0")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM entities`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count entities: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Query(`SELECT `+entityColumns+` FROM entities`+clause+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list entities: %w", err)
	}
	defer rows.Close()

	var out []EntityRow
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// Referrers returns every reference whose target is id, including objects
// that declare id as their schema.
func (db *DB) Referrers(targetID string) ([]RefRow, error) {
	rows, err := db.conn.Query(`
		SELECT source_id, file_path, target_id, pointer FROM refs WHERE target_id = ?
		UNION
		SELECT id, path, schema_id, '' FROM entities WHERE schema_id = ?
		ORDER BY 1, 4
	`, targetID, targetID)
	if err != nil {
		return nil, fmt.Errorf("index: referrers: %w", err)
	}
	defer rows.Close()

	var out []RefRow
	for rows.Next() {
		var r RefRow
		if err := rows.Scan(&r.SourceID, &r.FilePath, &r.TargetID, &r.Pointer); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListFiles returns every indexed file ordered by path.
func (db *DB) ListFiles() ([]FileRow, error) {
	rows, err := db.conn.Query(`SELECT path, name, checksum, valid, error, entity_count, updated_at FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: list files: %w", err)
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		var f FileRow
		if err := rows.Scan(&f.Path, &f.Name, &f.Checksum, &f.Valid, &f.Error, &f.EntityCount, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
