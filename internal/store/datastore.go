package store

import "github.com/jward/sightline/internal/spatial"

// MapStore is the persistence interface the engine depends on. *Store is
// the SQLite implementation; tests may substitute their own.
type MapStore interface {
	SaveMap(group string, m *spatial.Map) (SaveResult, error)
	LoadMap(group, name string) (*spatial.Map, error)
	Load() ([]Loaded, error)
	ListMaps() ([]*MapInfo, error)
	DeleteMap(group, name string) error
	Close() error
}

// Compile-time check: *Store satisfies MapStore.
var _ MapStore = (*Store)(nil)
