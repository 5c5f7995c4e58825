package geo

import (
	"errors"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/opstrack/recorder/pkg/core"
)

// GEO POINTS
// World positions are local metres (x east, y north, z elevation). They are
// stored as XYZ points without a spatial reference so SQLite and Postgres
// read back the same WKB.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParsePosition parses "x,y" or "x,y,z" into a core.Position3D.
func ParsePosition(coords string) (core.Position3D, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 || len(coordsSplit) > 3 {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	var vals [3]float64
	for i, s := range coordsSplit {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return core.Position3D{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	return core.Position3D{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// PointFromPosition converts a position to an XYZ point.
func PointFromPosition(p core.Position3D) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X, Y: p.Y},
		Z:    p.Z,
		Type: geom.DimXYZ,
	})
}

// PositionFromPoint converts a point back to a position. An empty point is
// the origin.
func PositionFromPoint(pt geom.Point) core.Position3D {
	coord, ok := pt.Coordinates()
	if !ok {
		return core.Position3D{}
	}
	return core.Position3D{X: coord.XY.X, Y: coord.XY.Y, Z: coord.Z}
}
