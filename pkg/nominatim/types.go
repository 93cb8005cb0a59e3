package nominatim

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/geoatlas/poimap/pkg/geo"
)

// Place is one candidate region returned by the search API.
type Place struct {
	DisplayName string
	Class       string
	Type        string
	OSMType     string
	OSMID       int64
	Importance  float64
	Bounds      geo.BoundingBox
}

// NotFoundError reports a place name that resolved to zero candidates, or to
// more than one under PolicyStrict.
type NotFoundError struct {
	Place      string
	Candidates int
}

func (e *NotFoundError) Error() string {
	if e.Candidates > 1 {
		return fmt.Sprintf("nominatim: place %q is ambiguous (%d candidates)", e.Place, e.Candidates)
	}
	return fmt.Sprintf("nominatim: place %q not found", e.Place)
}

// wirePlace is the jsonv2 response shape. Nominatim serves coordinates and
// the bounding box as strings.
type wirePlace struct {
	PlaceID     int64    `json:"place_id"`
	OSMType     string   `json:"osm_type"`
	OSMID       int64    `json:"osm_id"`
	DisplayName string   `json:"display_name"`
	Class       string   `json:"category"`
	Type        string   `json:"type"`
	Importance  float64  `json:"importance"`
	BoundingBox []string `json:"boundingbox"` // south, north, west, east
}

func (wp wirePlace) toPlace() (Place, error) {
	if len(wp.BoundingBox) != 4 {
		return Place{}, eris.Errorf("boundingbox has %d entries, want 4", len(wp.BoundingBox))
	}

	vals := make([]float64, 4)
	for i, s := range wp.BoundingBox {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Place{}, eris.Wrapf(err, "boundingbox entry %d", i)
		}
		vals[i] = v
	}

	bounds, err := geo.NewBoundingBox(vals[0], vals[2], vals[1], vals[3])
	if err != nil {
		return Place{}, eris.Wrap(err, "boundingbox")
	}

	return Place{
		DisplayName: wp.DisplayName,
		Class:       wp.Class,
		Type:        wp.Type,
		OSMType:     wp.OSMType,
		OSMID:       wp.OSMID,
		Importance:  wp.Importance,
		Bounds:      bounds,
	}, nil
}
