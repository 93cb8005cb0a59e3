// Package geo provides the shared geographic primitives used across poimap:
// bounding boxes in WGS84 lat/lon and the small amount of math that goes with them.
package geo

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// BoundingBox is an axis-aligned lat/lon rectangle. South/North are latitudes
// in degrees, West/East longitudes. Values are immutable once constructed;
// treat the zero value as "no box".
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`

	// wraps marks a box that crosses the antimeridian, in which case
	// West > East is legal and Contains interprets longitude accordingly.
	wraps bool
}

// NewBoundingBox constructs a validated bounding box.
func NewBoundingBox(south, west, north, east float64) (BoundingBox, error) {
	b := BoundingBox{South: south, West: west, North: north, East: east}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

// NewAntimeridianBox constructs a box that crosses the 180° meridian, where
// West > East is expected (e.g. Fiji: west=177, east=-178).
func NewAntimeridianBox(south, west, north, east float64) (BoundingBox, error) {
	b := BoundingBox{South: south, West: west, North: north, East: east, wraps: true}
	if south > north {
		return BoundingBox{}, eris.Errorf("geo: invalid bbox: south %.6f > north %.6f", south, north)
	}
	if west <= east {
		return BoundingBox{}, eris.Errorf("geo: antimeridian bbox must have west > east, got west %.6f east %.6f", west, east)
	}
	if err := b.checkRange(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

// Validate checks the south<=north / west<=east invariant and coordinate ranges.
func (b BoundingBox) Validate() error {
	if b.South > b.North {
		return eris.Errorf("geo: invalid bbox: south %.6f > north %.6f", b.South, b.North)
	}
	if !b.wraps && b.West > b.East {
		return eris.Errorf("geo: invalid bbox: west %.6f > east %.6f", b.West, b.East)
	}
	return b.checkRange()
}

func (b BoundingBox) checkRange() error {
	if b.South < -90 || b.North > 90 {
		return eris.Errorf("geo: latitude out of range [-90, 90]: south=%.6f north=%.6f", b.South, b.North)
	}
	if b.West < -180 || b.West > 180 || b.East < -180 || b.East > 180 {
		return eris.Errorf("geo: longitude out of range [-180, 180]: west=%.6f east=%.6f", b.West, b.East)
	}
	return nil
}

// WrapsAntimeridian reports whether the box crosses the 180° meridian.
func (b BoundingBox) WrapsAntimeridian() bool {
	return b.wraps
}

// Contains reports whether the point lies within the box (inclusive edges).
func (b BoundingBox) Contains(lat, lon float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	if b.wraps {
		return lon >= b.West || lon <= b.East
	}
	return lon >= b.West && lon <= b.East
}

// Intersects reports whether two non-wrapping boxes overlap. Wrapping boxes
// are compared on their latitude band only plus either longitude arm.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	if b.North < o.South || o.North < b.South {
		return false
	}
	if !b.wraps && !o.wraps {
		return b.East >= o.West && o.East >= b.West
	}
	// At least one box wraps; check the four corner longitudes of the other.
	return b.Contains(clampLat(o.South, b), o.West) || b.Contains(clampLat(o.South, b), o.East) ||
		o.Contains(clampLat(b.South, o), b.West) || o.Contains(clampLat(b.South, o), b.East)
}

func clampLat(lat float64, b BoundingBox) float64 {
	return math.Max(b.South, math.Min(b.North, lat))
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (lat, lon float64) {
	lat = (b.South + b.North) / 2
	if b.wraps {
		span := (180 - b.West) + (b.East + 180)
		lon = b.West + span/2
		if lon > 180 {
			lon -= 360
		}
		return lat, lon
	}
	return lat, (b.West + b.East) / 2
}

// Union returns the smallest non-wrapping box covering both inputs.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		South: math.Min(b.South, o.South),
		West:  math.Min(b.West, o.West),
		North: math.Max(b.North, o.North),
		East:  math.Max(b.East, o.East),
	}
}

// Expand grows the box by the given margin in degrees on every side, clamped
// to the valid coordinate range.
func (b BoundingBox) Expand(margin float64) BoundingBox {
	return BoundingBox{
		South: math.Max(-90, b.South-margin),
		West:  math.Max(-180, b.West-margin),
		North: math.Min(90, b.North+margin),
		East:  math.Min(180, b.East+margin),
		wraps: b.wraps,
	}
}

// String renders the box in Overpass order (south,west,north,east).
func (b BoundingBox) String() string {
	return fmt.Sprintf("%.7f,%.7f,%.7f,%.7f", b.South, b.West, b.North, b.East)
}
