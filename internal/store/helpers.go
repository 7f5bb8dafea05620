package store

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/jward/sightline/internal/geom"
)

// marshalPoints converts shape points to JSON text for storage.
func marshalPoints(pts []geom.Point) (string, error) {
	pairs := make([][2]float64, len(pts))
	for i, p := range pts {
		pairs[i] = [2]float64{p.X, p.Y}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("marshal points: %w", err)
	}
	return string(b), nil
}

// unmarshalPoints converts JSON text back to shape points.
func unmarshalPoints(s string) ([]geom.Point, error) {
	var pairs [][2]float64
	if err := json.Unmarshal([]byte(s), &pairs); err != nil {
		return nil, fmt.Errorf("unmarshal points: %w", err)
	}
	pts := make([]geom.Point, len(pairs))
	for i, p := range pairs {
		pts[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return pts, nil
}

// shapeFromRecord rebuilds a shape from its stored kind and points.
func shapeFromRecord(kind string, pts []geom.Point) (geom.Shape, error) {
	k, err := geom.ParseKind(kind)
	if err != nil {
		return geom.Shape{}, err
	}
	switch k {
	case geom.KindPoint:
		if len(pts) != 1 {
			return geom.Shape{}, fmt.Errorf("point with %d coordinates", len(pts))
		}
		return geom.NewPoint(pts[0]), nil
	case geom.KindLine:
		if len(pts) != 2 {
			return geom.Shape{}, fmt.Errorf("line with %d coordinates", len(pts))
		}
		return geom.NewLine(pts[0], pts[1]), nil
	default:
		return geom.NewPolygon(pts), nil
	}
}
