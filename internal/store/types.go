package store

import (
	"time"

	"github.com/jward/sightline/internal/spatial"
)

// Group names for persisted maps. Drawing layers are grouped per drawing
// via ShapeGroup.
const (
	GroupData    = "data"
	GroupAxial   = "axial"
	GroupSegment = "segment"
	GroupConvex  = "convex"
	GroupResult  = "result"
)

// ShapeGroup returns the group name of a drawing layer.
func ShapeGroup(drawing string) string { return "shape_" + drawing }

// MapInfo describes a persisted map without loading it.
type MapInfo struct {
	ID        int64
	Group     string
	Name      string
	KeyColumn string
	Hash      string
	Shapes    int
	Columns   int
	SavedAt   time.Time
}

// Loaded is a map read back from the database with the group it was saved
// under.
type Loaded struct {
	Group string
	Name  string
	Map   *spatial.Map
}

// SaveResult reports what SaveMap did.
type SaveResult struct {
	ID        int64
	Unchanged bool // an identical map was already stored under the name
}
