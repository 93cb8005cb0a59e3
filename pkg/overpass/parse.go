package overpass

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
)

// parseSimple decodes an Overpass JSON body into assembled simple features.
// Response element order is preserved within each geometry class.
func parseSimple(body []byte, q Query) (*Collection, error) {
	resp, meta, err := decodeResponse(body)
	if err != nil {
		return nil, err
	}

	c := &Collection{
		Points:        []Feature{},
		Lines:         []Feature{},
		Polygons:      []Feature{},
		MultiPolygons: []Feature{},
		Bounds:        q.Bounds(),
		QL:            q.QL(FormatSimple),
		Meta:          meta,
	}

	for _, el := range resp.Elements {
		switch ElementKind(el.Type) {
		case KindNode:
			c.Points = append(c.Points, Feature{
				ID:   el.ID,
				Kind: KindNode,
				Geom: geom.NewPointFlat(geom.XY, []float64{el.Lon, el.Lat}).SetSRID(4326),
				Tags: cloneTags(el.Tags),
			})

		case KindWay:
			if len(el.Geometry) < 2 {
				continue
			}
			f := Feature{ID: el.ID, Kind: KindWay, Tags: cloneTags(el.Tags)}
			if isClosed(el.Geometry) && len(el.Geometry) >= 4 {
				f.Geom = ringPolygon(el.Geometry)
				c.Polygons = append(c.Polygons, f)
			} else {
				f.Geom = lineString(el.Geometry)
				c.Lines = append(c.Lines, f)
			}

		case KindRelation:
			f := Feature{ID: el.ID, Kind: KindRelation, Tags: cloneTags(el.Tags)}
			switch el.Tags["type"] {
			case "multipolygon", "boundary":
				mp := assembleMultiPolygon(el.Members)
				if mp == nil {
					continue
				}
				f.Geom = mp
				c.MultiPolygons = append(c.MultiPolygons, f)
			default:
				// Linear relations (routes etc.) flatten to a multi-line.
				mls := memberLines(el.Members)
				if mls == nil {
					continue
				}
				f.Geom = mls
				c.Lines = append(c.Lines, f)
			}
		}
	}

	return c, nil
}

// parseTopology decodes a body into the raw element graph without assembly.
func parseTopology(body []byte, q Query) (*Collection, error) {
	resp, meta, err := decodeResponse(body)
	if err != nil {
		return nil, err
	}

	elements := make([]Element, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		e := Element{
			Kind:     ElementKind(el.Type),
			ID:       el.ID,
			Lat:      el.Lat,
			Lon:      el.Lon,
			Tags:     cloneTags(el.Tags),
			NodeRefs: el.Nodes,
		}
		for _, m := range el.Members {
			e.Members = append(e.Members, Member{Kind: ElementKind(m.Type), Ref: m.Ref, Role: m.Role})
		}
		elements = append(elements, e)
	}

	return &Collection{
		Points:        []Feature{},
		Lines:         []Feature{},
		Polygons:      []Feature{},
		MultiPolygons: []Feature{},
		Elements:      elements,
		Bounds:        q.Bounds(),
		QL:            q.QL(FormatTopology),
		Meta:          meta,
	}, nil
}

func decodeResponse(body []byte) (*wireResponse, Meta, error) {
	var resp wireResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, Meta{}, &ParseError{Err: err, Snippet: snippet(body)}
	}

	// Overpass reports runtime rejections as a remark on a 200 body.
	if remark := strings.TrimSpace(resp.Remark); remark != "" && strings.Contains(strings.ToLower(remark), "error") {
		return nil, Meta{}, &ServiceError{StatusCode: 200, Remark: remark}
	}

	meta := Meta{
		Generator: resp.Generator,
		Version:   fmt.Sprint(resp.Version),
		Copyright: resp.Osm3s.Copyright,
	}
	if ts, err := time.Parse(time.RFC3339, resp.Osm3s.TimestampOSMBase); err == nil {
		meta.Timestamp = ts
	}
	return &resp, meta, nil
}

// cloneTags copies the tag map; absent tags become an empty, non-nil map.
func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func isClosed(pts []wireLatLon) bool {
	return len(pts) >= 2 && pts[0] == pts[len(pts)-1]
}

func flatCoords(pts []wireLatLon) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.Lon, p.Lat)
	}
	return flat
}

func lineString(pts []wireLatLon) *geom.LineString {
	return geom.NewLineStringFlat(geom.XY, flatCoords(pts)).SetSRID(4326)
}

func ringPolygon(ring []wireLatLon) *geom.Polygon {
	flat := flatCoords(ring)
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326)
}

// memberLines flattens linear member geometries into a MultiLineString.
func memberLines(members []wireMember) *geom.MultiLineString {
	var flat []float64
	var ends []int
	for _, m := range members {
		if m.Type != string(KindWay) || len(m.Geometry) < 2 {
			continue
		}
		flat = append(flat, flatCoords(m.Geometry)...)
		ends = append(ends, len(flat))
	}
	if len(ends) == 0 {
		return nil
	}
	return geom.NewMultiLineStringFlat(geom.XY, flat, ends).SetSRID(4326)
}

// assembleMultiPolygon stitches relation member ways into closed rings and
// groups inner rings under the outer ring that contains them. Members whose
// fragments cannot be closed into a ring are dropped rather than failing the
// whole parse.
func assembleMultiPolygon(members []wireMember) *geom.MultiPolygon {
	var outerFrags, innerFrags [][]wireLatLon
	for _, m := range members {
		if m.Type != string(KindWay) || len(m.Geometry) < 2 {
			continue
		}
		switch m.Role {
		case "inner":
			innerFrags = append(innerFrags, m.Geometry)
		default:
			// Outer is the default role for untagged members.
			outerFrags = append(outerFrags, m.Geometry)
		}
	}

	outers := stitchRings(outerFrags)
	if len(outers) == 0 {
		return nil
	}
	inners := stitchRings(innerFrags)

	// polygons[i] = outer ring i plus the inners it contains.
	polygons := make([][][]wireLatLon, len(outers))
	for i, outer := range outers {
		polygons[i] = [][]wireLatLon{outer}
	}
	for _, inner := range inners {
		for i, outer := range outers {
			if ringContains(outer, inner[0]) {
				polygons[i] = append(polygons[i], inner)
				break
			}
		}
	}

	var flat []float64
	endss := make([][]int, 0, len(polygons))
	for _, rings := range polygons {
		ends := make([]int, 0, len(rings))
		for _, ring := range rings {
			flat = append(flat, flatCoords(ring)...)
			ends = append(ends, len(flat))
		}
		endss = append(endss, ends)
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss).SetSRID(4326)
}

// stitchRings joins way fragments end-to-end into closed rings. Already
// closed fragments pass through; open fragments are greedily chained by
// matching endpoints, reversing as needed.
func stitchRings(frags [][]wireLatLon) [][]wireLatLon {
	var rings [][]wireLatLon
	var open [][]wireLatLon
	for _, f := range frags {
		if isClosed(f) && len(f) >= 4 {
			rings = append(rings, f)
		} else {
			open = append(open, f)
		}
	}

	for len(open) > 0 {
		ring := open[0]
		open = open[1:]

		progress := true
		for !isClosed(ring) && progress {
			progress = false
			for i, f := range open {
				joined, ok := joinFragments(ring, f)
				if ok {
					ring = joined
					open = append(open[:i], open[i+1:]...)
					progress = true
					break
				}
			}
		}
		if isClosed(ring) && len(ring) >= 4 {
			rings = append(rings, ring)
		}
	}
	return rings
}

// joinFragments appends b to a if their endpoints meet, reversing b when its
// far end is the matching one.
func joinFragments(a, b []wireLatLon) ([]wireLatLon, bool) {
	switch {
	case a[len(a)-1] == b[0]:
		return append(a, b[1:]...), true
	case a[len(a)-1] == b[len(b)-1]:
		return append(a, reversed(b)[1:]...), true
	case a[0] == b[len(b)-1]:
		return append(append([]wireLatLon{}, b...), a[1:]...), true
	case a[0] == b[0]:
		return append(reversed(b), a[1:]...), true
	}
	return a, false
}

func reversed(pts []wireLatLon) []wireLatLon {
	out := make([]wireLatLon, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

// ringContains is an even-odd ray cast of pt against ring.
func ringContains(ring []wireLatLon, pt wireLatLon) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		yi, yj := ring[i].Lat, ring[j].Lat
		xi, xj := ring[i].Lon, ring[j].Lon
		if (yi > pt.Lat) != (yj > pt.Lat) &&
			pt.Lon < (xj-xi)*(pt.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
