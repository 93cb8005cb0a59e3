// Package overpass builds, executes, and parses bounding-box feature queries
// against an Overpass API endpoint, materializing results into typed
// simple-feature collections backed by go-geom.
package overpass

import (
	"fmt"
	"strings"
	"time"

	"github.com/geoatlas/poimap/pkg/geo"
)

// Filter selects features carrying an OSM tag. An empty Value matches any
// feature that has the key at all. Filters on one query AND together.
type Filter struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// ParseFilter parses "key=value" or bare "key" syntax as used on the CLI.
func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Filter{}, &InvalidQueryError{Reason: "empty filter"}
	}
	key, value, _ := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return Filter{}, &InvalidQueryError{Reason: fmt.Sprintf("filter %q has no key", s)}
	}
	return Filter{Key: key, Value: strings.TrimSpace(value)}, nil
}

func (f Filter) String() string {
	if f.Value == "" {
		return f.Key
	}
	return f.Key + "=" + f.Value
}

// ElementClass selects which OSM element classes a query asks for.
type ElementClass uint8

const (
	ClassNode ElementClass = 1 << iota
	ClassWay
	ClassRelation

	// ClassAll is the default: nodes, ways and relations.
	ClassAll = ClassNode | ClassWay | ClassRelation
)

// Vocabulary is the injectable "known tags" lookup consulted by NewQuery.
// Implementations are expected to answer from local state; fetching and
// refreshing vocabulary data is the implementation's concern (see pkg/taginfo).
type Vocabulary interface {
	// HasKey reports whether the tag key is part of the known vocabulary.
	HasKey(key string) bool
}

// Query is an immutable descriptor of one bounding-box feature query. Queries
// have no identity beyond their contents; compare and pass by value.
type Query struct {
	bounds  geo.BoundingBox
	filters []Filter
	classes ElementClass
	timeout time.Duration
}

// QueryOption tweaks query construction.
type QueryOption func(*Query) error

// WithTimeout sets the server-side evaluation timeout embedded in the query.
func WithTimeout(d time.Duration) QueryOption {
	return func(q *Query) error {
		if d <= 0 {
			return &InvalidQueryError{Reason: "timeout must be positive"}
		}
		q.timeout = d
		return nil
	}
}

// WithClasses restricts the query to the given element classes.
func WithClasses(c ElementClass) QueryOption {
	return func(q *Query) error {
		if c == 0 || c > ClassAll {
			return &InvalidQueryError{Reason: "empty element class mask"}
		}
		q.classes = c
		return nil
	}
}

// WithVocabulary validates every filter key against v during construction.
func WithVocabulary(v Vocabulary) QueryOption {
	return func(q *Query) error {
		if v == nil {
			return nil
		}
		for _, f := range q.filters {
			if !v.HasKey(f.Key) {
				return &InvalidQueryError{Reason: fmt.Sprintf("unknown filter key %q", f.Key)}
			}
		}
		return nil
	}
}

// NewQuery builds a query over bounds with the given tag filters. It is a
// pure transformation: the only failure modes are a malformed bounding box or
// a filter rejected by an attached vocabulary, both as *InvalidQueryError.
func NewQuery(bounds geo.BoundingBox, filters []Filter, opts ...QueryOption) (Query, error) {
	if err := bounds.Validate(); err != nil {
		return Query{}, &InvalidQueryError{Reason: err.Error()}
	}
	for _, f := range filters {
		if strings.TrimSpace(f.Key) == "" {
			return Query{}, &InvalidQueryError{Reason: "filter with empty key"}
		}
	}

	q := Query{
		bounds:  bounds,
		filters: append([]Filter(nil), filters...),
		classes: ClassAll,
		timeout: 25 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(&q); err != nil {
			return Query{}, err
		}
	}
	return q, nil
}

// Bounds returns the query's bounding box.
func (q Query) Bounds() geo.BoundingBox {
	return q.bounds
}

// Filters returns a copy of the ordered filter list.
func (q Query) Filters() []Filter {
	return append([]Filter(nil), q.filters...)
}

// Classes returns the element class mask.
func (q Query) Classes() ElementClass {
	return q.classes
}

// Timeout returns the server-side evaluation timeout.
func (q Query) Timeout() time.Duration {
	return q.timeout
}
