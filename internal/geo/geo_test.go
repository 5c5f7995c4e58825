package geo

import (
	"errors"
	"testing"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/opstrack/recorder/pkg/core"
)

func TestParsePosition_ValidWithElevation(t *testing.T) {
	pos, err := ParsePosition("100.5,200.25,50.0")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.X != 100.5 {
		t.Errorf("expected X=100.5, got %f", pos.X)
	}
	if pos.Y != 200.25 {
		t.Errorf("expected Y=200.25, got %f", pos.Y)
	}
	if pos.Z != 50.0 {
		t.Errorf("expected Z=50.0, got %f", pos.Z)
	}
}

func TestParsePosition_ValidWithoutElevation(t *testing.T) {
	pos, err := ParsePosition("-100.5, 200.25")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != (core.Position3D{X: -100.5, Y: 200.25}) {
		t.Errorf("unexpected position %+v", pos)
	}
}

func TestParsePosition_Invalid(t *testing.T) {
	tests := []string{"", "1", "a,2", "1,b", "1,2,c", "1,2,3,4"}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePosition(input)
			if !errors.Is(err, ErrInvalidCoordinates) {
				t.Errorf("expected ErrInvalidCoordinates for %q, got %v", input, err)
			}
		})
	}
}

func TestPointRoundTrip(t *testing.T) {
	pos := core.Position3D{X: 6400.5, Y: 7200.25, Z: 12.5}

	pt := PointFromPosition(pos)
	if pt.CoordinatesType() != geom.DimXYZ {
		t.Errorf("expected XYZ point, got %v", pt.CoordinatesType())
	}
	if got := PositionFromPoint(pt); got != pos {
		t.Errorf("expected %+v, got %+v", pos, got)
	}
}

func TestPositionFromPoint_Empty(t *testing.T) {
	if got := PositionFromPoint(geom.NewEmptyPoint(geom.DimXYZ)); got != (core.Position3D{}) {
		t.Errorf("expected origin, got %+v", got)
	}
}
