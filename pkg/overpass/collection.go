package overpass

import (
	"time"

	"github.com/twpayne/go-geom"

	"github.com/geoatlas/poimap/pkg/geo"
)

// Feature is one matched OSM element with assembled geometry and its tags.
// Tags is never nil; elements without tags carry an empty map.
type Feature struct {
	ID   int64
	Kind ElementKind
	Geom geom.T
	Tags map[string]string
}

// Name returns the feature's name tag, or "" when untagged.
func (f Feature) Name() string {
	return f.Tags["name"]
}

// Meta carries response metadata reported by the service.
type Meta struct {
	// Timestamp is the OSM base data timestamp of the response.
	Timestamp time.Time

	// Generator is the service's self-reported software identifier.
	Generator string

	// Version is the Overpass API schema version tag.
	Version string

	// Copyright is the attribution string the service requires.
	Copyright string
}

// Collection is the materialized result of one executed query: a four-way
// split of simple features plus the query provenance. All four slices are
// always non-nil; a geometry class with no matches is an empty slice, never
// an error. Feature order follows the service response for determinism.
//
// A collection is constructed once by Client.Execute and read-only after.
type Collection struct {
	Points        []Feature
	Lines         []Feature
	Polygons      []Feature
	MultiPolygons []Feature

	// Elements holds the raw topology graph when executed with
	// FormatTopology; nil for FormatSimple.
	Elements []Element

	// Bounds is the bounding box the originating query was built over.
	Bounds geo.BoundingBox

	// QL is the literal query text submitted to the service.
	QL string

	Meta Meta
}

// Count returns the total number of assembled features across all classes.
func (c *Collection) Count() int {
	return len(c.Points) + len(c.Lines) + len(c.Polygons) + len(c.MultiPolygons)
}

// All returns the features of every class in response order per class:
// points, then lines, polygons, multipolygons.
func (c *Collection) All() []Feature {
	out := make([]Feature, 0, c.Count())
	out = append(out, c.Points...)
	out = append(out, c.Lines...)
	out = append(out, c.Polygons...)
	out = append(out, c.MultiPolygons...)
	return out
}
