package sightline

import (
	"github.com/jward/sightline/internal/geom"
	"github.com/jward/sightline/internal/importer"
	"github.com/jward/sightline/internal/spatial"
	"github.com/jward/sightline/internal/store"
)

// Public type aliases for internal types used in the Engine API.
// These are Go type aliases (=) and need no conversion.

type Map = spatial.Map
type ProgressSink = spatial.ProgressSink
type Flow = spatial.Flow
type Shape = geom.Shape
type Point = geom.Point
type Region = geom.Region
type Frame = importer.Frame
type ImportResult = importer.Result
type MapInfo = store.MapInfo
type SaveResult = store.SaveResult
