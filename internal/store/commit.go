package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jward/sightline/internal/attr"
	"github.com/jward/sightline/internal/errs"
	"github.com/jward/sightline/internal/spatial"
)

// SaveMap writes m under (group, m.Name) within a single transaction,
// replacing any map already stored under that name. If the stored map has
// the same content hash nothing is written and Unchanged is set.
//
// Write order:
//  1. maps row (delete-then-insert; children cascade)
//  2. columns in insertion order
//  3. shapes with their row ordinal
//  4. set cells
func (s *Store) SaveMap(group string, m *spatial.Map) (SaveResult, error) {
	if group == "" || m.Name == "" {
		return SaveResult{}, fmt.Errorf("save map: group and name are required")
	}
	if err := m.Check(); err != nil {
		return SaveResult{}, fmt.Errorf("save map: %w", err)
	}
	hash := ComputeMapHash(m)

	tx, err := s.db.Begin()
	if err != nil {
		return SaveResult{}, fmt.Errorf("save map: begin: %w", err)
	}
	defer tx.Rollback()

	var existingID int64
	var existingHash string
	err = tx.QueryRow("SELECT id, hash FROM maps WHERE group_name = ? AND name = ?", group, m.Name).
		Scan(&existingID, &existingHash)
	switch {
	case err == nil && existingHash == hash:
		return SaveResult{ID: existingID, Unchanged: true}, nil
	case err == nil:
		if _, err := tx.Exec("DELETE FROM maps WHERE id = ?", existingID); err != nil {
			return SaveResult{}, fmt.Errorf("save map %s/%s: replace: %w", group, m.Name, err)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return SaveResult{}, fmt.Errorf("save map %s/%s: lookup: %w", group, m.Name, err)
	}

	// 1. Map
	res, err := tx.Exec(
		"INSERT INTO maps (group_name, name, key_column, hash, saved_at) VALUES (?, ?, ?, ?, ?)",
		group, m.Name, m.Attributes.KeyName(), hash, time.Now().UTC(),
	)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save map %s/%s: %w", group, m.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return SaveResult{}, fmt.Errorf("save map %s/%s: last insert id: %w", group, m.Name, err)
	}

	// 2. Columns
	tbl := m.Attributes
	for i := range tbl.NumColumns() {
		name := tbl.ColumnName(attr.ColumnAt(i))
		if _, err := tx.Exec("INSERT INTO map_columns (map_id, ordinal, name) VALUES (?, ?, ?)", id, i, name); err != nil {
			return SaveResult{}, fmt.Errorf("save map %s/%s: column %q: %w", group, m.Name, name, err)
		}
	}

	shapeStmt, err := tx.Prepare("INSERT INTO map_shapes (map_id, ref, ordinal, kind, points) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return SaveResult{}, fmt.Errorf("save map: prepare shapes: %w", err)
	}
	defer shapeStmt.Close()
	cellStmt, err := tx.Prepare("INSERT INTO map_cells (map_id, ref, column_ordinal, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return SaveResult{}, fmt.Errorf("save map: prepare cells: %w", err)
	}
	defer cellStmt.Close()

	ordinal := 0
	for key, row := range tbl.Rows() {
		// 3. Shapes
		shape, err := m.Shapes.Get(key)
		if err != nil {
			return SaveResult{}, fmt.Errorf("save map %s/%s: %w", group, m.Name, err)
		}
		points, err := marshalPoints(shape.Points())
		if err != nil {
			return SaveResult{}, err
		}
		if _, err := shapeStmt.Exec(id, key, ordinal, shape.Kind().String(), points); err != nil {
			return SaveResult{}, fmt.Errorf("save map %s/%s: shape %d: %w", group, m.Name, key, err)
		}
		ordinal++

		// 4. Cells
		for i := range row.Width() {
			v := row.Value(i)
			if math.IsNaN(v) {
				continue
			}
			if _, err := cellStmt.Exec(id, key, i, v); err != nil {
				return SaveResult{}, fmt.Errorf("save map %s/%s: cell (%d, %d): %w", group, m.Name, key, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("save map: commit: %w", err)
	}
	return SaveResult{ID: id}, nil
}

// DeleteMap removes a persisted map and everything stored under it.
func (s *Store) DeleteMap(group, name string) error {
	res, err := s.db.Exec("DELETE FROM maps WHERE group_name = ? AND name = ?", group, name)
	if err != nil {
		return fmt.Errorf("delete map %s/%s: %w", group, name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete map %s/%s: %w", group, name, err)
	}
	if n == 0 {
		return errs.Named(errs.KindNotFound, "delete map", group+"/"+name)
	}
	return nil
}
