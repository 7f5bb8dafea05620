package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jward/sightline/internal/errs"
	"github.com/jward/sightline/internal/spatial"
)

const mapInfoQuery = `
SELECT m.id, m.group_name, m.name, m.key_column, m.hash, m.saved_at,
  (SELECT COUNT(*) FROM map_shapes s WHERE s.map_id = m.id),
  (SELECT COUNT(*) FROM map_columns c WHERE c.map_id = m.id)
FROM maps m`

// ListMaps returns every persisted map ordered by group then name.
func (s *Store) ListMaps() ([]*MapInfo, error) {
	return s.queryMapInfos(mapInfoQuery + " ORDER BY m.group_name, m.name")
}

// MapsByGroup returns the persisted maps of one group ordered by name.
func (s *Store) MapsByGroup(group string) ([]*MapInfo, error) {
	return s.queryMapInfos(mapInfoQuery+" WHERE m.group_name = ? ORDER BY m.name", group)
}

// MapInfo returns the description of one persisted map.
func (s *Store) MapInfo(group, name string) (*MapInfo, error) {
	infos, err := s.queryMapInfos(mapInfoQuery+" WHERE m.group_name = ? AND m.name = ?", group, name)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, errs.Named(errs.KindNotFound, "map info", group+"/"+name)
	}
	return infos[0], nil
}

func (s *Store) queryMapInfos(query string, args ...any) ([]*MapInfo, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query maps: %w", err)
	}
	defer rows.Close()

	var out []*MapInfo
	for rows.Next() {
		var info MapInfo
		var savedAt sql.NullTime
		if err := rows.Scan(&info.ID, &info.Group, &info.Name, &info.KeyColumn, &info.Hash, &savedAt,
			&info.Shapes, &info.Columns); err != nil {
			return nil, fmt.Errorf("scan map: %w", err)
		}
		if savedAt.Valid {
			info.SavedAt = savedAt.Time
		}
		out = append(out, &info)
	}
	return out, rows.Err()
}

// LoadMap reads one persisted map back into memory. Shapes and rows are
// restored in their saved iteration order under their saved keys.
func (s *Store) LoadMap(group, name string) (*spatial.Map, error) {
	var id int64
	var keyColumn string
	err := s.db.QueryRow("SELECT id, key_column FROM maps WHERE group_name = ? AND name = ?", group, name).
		Scan(&id, &keyColumn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Named(errs.KindNotFound, "load map", group+"/"+name)
	}
	if err != nil {
		return nil, fmt.Errorf("load map %s/%s: %w", group, name, err)
	}
	m, err := s.loadMapByID(id, name, keyColumn)
	if err != nil {
		return nil, fmt.Errorf("load map %s/%s: %w", group, name, err)
	}
	return m, nil
}

// Load reads every persisted map, ordered by group then name.
func (s *Store) Load() ([]Loaded, error) {
	infos, err := s.ListMaps()
	if err != nil {
		return nil, err
	}
	out := make([]Loaded, 0, len(infos))
	for _, info := range infos {
		m, err := s.loadMapByID(info.ID, info.Name, info.KeyColumn)
		if err != nil {
			return nil, fmt.Errorf("load map %s/%s: %w", info.Group, info.Name, err)
		}
		out = append(out, Loaded{Group: info.Group, Name: info.Name, Map: m})
	}
	return out, nil
}

func (s *Store) loadMapByID(id int64, name, keyColumn string) (*spatial.Map, error) {
	m := spatial.New(name, keyColumn)

	colRows, err := s.db.Query("SELECT name FROM map_columns WHERE map_id = ? ORDER BY ordinal", id)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	for colRows.Next() {
		var col string
		if err := colRows.Scan(&col); err != nil {
			colRows.Close()
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if _, err := m.Attributes.AddColumn(col); err != nil {
			colRows.Close()
			return nil, err
		}
	}
	colRows.Close()

	shapeRows, err := s.db.Query("SELECT ref, kind, points FROM map_shapes WHERE map_id = ? ORDER BY ordinal", id)
	if err != nil {
		return nil, fmt.Errorf("query shapes: %w", err)
	}
	for shapeRows.Next() {
		var ref int
		var kind, points string
		if err := shapeRows.Scan(&ref, &kind, &points); err != nil {
			shapeRows.Close()
			return nil, fmt.Errorf("scan shape: %w", err)
		}
		pts, err := unmarshalPoints(points)
		if err != nil {
			shapeRows.Close()
			return nil, fmt.Errorf("shape %d: %w", ref, err)
		}
		shape, err := shapeFromRecord(kind, pts)
		if err != nil {
			shapeRows.Close()
			return nil, fmt.Errorf("shape %d: %w", ref, err)
		}
		if _, err := m.Add(shape, ref); err != nil {
			shapeRows.Close()
			return nil, err
		}
	}
	shapeRows.Close()

	cellRows, err := s.db.Query("SELECT ref, column_ordinal, value FROM map_cells WHERE map_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer cellRows.Close()
	for cellRows.Next() {
		var ref, col int
		var v float64
		if err := cellRows.Scan(&ref, &col, &v); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		row, err := m.Attributes.Row(ref)
		if err != nil {
			return nil, err
		}
		if err := m.Attributes.SetValue(row, col, v); err != nil {
			return nil, err
		}
	}
	return m, cellRows.Err()
}
