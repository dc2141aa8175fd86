package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/harvestbot/harvester/pkg/core"
)

// Map coordinates are planar and unitless. Points are built as XY geometries
// so the same values can be stored (WKB) and measured.

// PointFromXY creates a planar point. It fails only for NaN or infinite input.
func PointFromXY(x, y float64) (geom.Point, error) {
	pt, err := geom.XY{X: x, Y: y}.AsPoint()
	if err != nil {
		return geom.Point{}, fmt.Errorf("point (%v, %v): %w", x, y, err)
	}
	return pt, nil
}

// PointFromCore creates a planar point from an integer map coordinate.
// Integer coordinates are always finite, so no error is possible.
func PointFromCore(p core.Point) geom.Point {
	pt, _ := PointFromXY(float64(p.X), float64(p.Y))
	return pt
}

// Distance returns the straight-line distance between (ax, ay) and (bx, by).
// Coordinates are finite (the parser rejects NaN and Inf); non-finite input yields 0.
func Distance(ax, ay, bx, by float64) float64 {
	a, err := PointFromXY(ax, ay)
	if err != nil {
		return 0
	}
	b, err := PointFromXY(bx, by)
	if err != nil {
		return 0
	}
	d, ok := geom.Distance(a.AsGeometry(), b.AsGeometry())
	if !ok {
		return 0
	}
	return d
}
