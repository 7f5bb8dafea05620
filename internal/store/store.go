package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for persisted maps.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the map tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS maps (
  id              INTEGER PRIMARY KEY,
  group_name      TEXT NOT NULL,
  name            TEXT NOT NULL,
  key_column      TEXT NOT NULL,
  hash            TEXT NOT NULL,
  saved_at        TIMESTAMP,
  UNIQUE(group_name, name)
);

-- Attribute columns in insertion order.
CREATE TABLE IF NOT EXISTS map_columns (
  map_id          INTEGER NOT NULL REFERENCES maps(id) ON DELETE CASCADE,
  ordinal         INTEGER NOT NULL,
  name            TEXT NOT NULL,
  PRIMARY KEY (map_id, ordinal)
);

-- One shape per attribute row. ordinal is the row's iteration position.
CREATE TABLE IF NOT EXISTS map_shapes (
  map_id          INTEGER NOT NULL REFERENCES maps(id) ON DELETE CASCADE,
  ref             INTEGER NOT NULL,
  ordinal         INTEGER NOT NULL,
  kind            TEXT NOT NULL,
  points          TEXT NOT NULL,
  PRIMARY KEY (map_id, ref)
);

-- Set cells only; absent cells load as NaN.
CREATE TABLE IF NOT EXISTS map_cells (
  map_id          INTEGER NOT NULL REFERENCES maps(id) ON DELETE CASCADE,
  ref             INTEGER NOT NULL,
  column_ordinal  INTEGER NOT NULL,
  value           REAL NOT NULL,
  PRIMARY KEY (map_id, ref, column_ordinal)
);

CREATE INDEX IF NOT EXISTS idx_maps_group ON maps(group_name);
CREATE INDEX IF NOT EXISTS idx_map_shapes_ordinal ON map_shapes(map_id, ordinal);
`
