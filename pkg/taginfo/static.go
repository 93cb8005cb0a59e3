// Package taginfo supplies the OSM tag vocabulary used to validate query
// filters: a curated static table plus a client for the taginfo API.
package taginfo

import "sort"

// defaultKeys is the curated core of the OSM tagging vocabulary: the primary
// feature keys listed on the wiki's map features page. Enough for filter
// validation without a network round trip.
var defaultKeys = []string{
	"aeroway", "amenity", "barrier", "boundary", "building", "craft",
	"emergency", "geological", "healthcare", "highway", "historic",
	"landuse", "leisure", "man_made", "military", "natural", "office",
	"place", "power", "public_transport", "railway", "route", "shop",
	"sport", "telecom", "tourism", "water", "waterway",
	"addr:city", "addr:street", "name", "opening_hours", "operator",
	"website", "wheelchair", "cuisine", "religion", "surface",
}

// Static is an in-memory vocabulary satisfying overpass.Vocabulary.
type Static struct {
	keys map[string]struct{}
}

// NewStatic builds a vocabulary from the given keys. With no arguments it
// carries the curated default key table.
func NewStatic(keys ...string) *Static {
	if len(keys) == 0 {
		keys = defaultKeys
	}
	s := &Static{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
	return s
}

// HasKey reports whether key is part of the vocabulary.
func (s *Static) HasKey(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Keys returns the vocabulary keys in sorted order.
func (s *Static) Keys() []string {
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the vocabulary size.
func (s *Static) Len() int {
	return len(s.keys)
}
