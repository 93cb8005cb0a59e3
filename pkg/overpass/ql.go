package overpass

import (
	"strconv"
	"strings"
)

// Format selects the shape of the materialized result.
type Format int

const (
	// FormatSimple assembles elements into simple features: points, lines,
	// polygons and multipolygons with inline geometry.
	FormatSimple Format = iota

	// FormatTopology keeps the raw node/way/relation graph, including way
	// node references and relation members, without geometry assembly.
	FormatTopology
)

func (f Format) String() string {
	switch f {
	case FormatSimple:
		return "simple"
	case FormatTopology:
		return "topology"
	default:
		return "unknown"
	}
}

// QL serializes the query into Overpass QL. The serialization is
// deterministic: identical queries produce identical text.
func (q Query) QL(format Format) string {
	var b strings.Builder

	secs := int(q.timeout.Seconds())
	if secs <= 0 {
		secs = 25
	}
	b.WriteString("[out:json][timeout:")
	b.WriteString(strconv.Itoa(secs))
	b.WriteString("];\n(\n")

	for _, class := range []struct {
		mask ElementClass
		name string
	}{
		{ClassNode, "node"},
		{ClassWay, "way"},
		{ClassRelation, "relation"},
	} {
		if q.classes&class.mask == 0 {
			continue
		}
		b.WriteString("  ")
		b.WriteString(class.name)
		for _, f := range q.filters {
			writeFilter(&b, f)
		}
		b.WriteString("(")
		b.WriteString(q.bounds.String())
		b.WriteString(");\n")
	}

	b.WriteString(");\n")
	switch format {
	case FormatTopology:
		// Bodies plus recursed-down skeleton so way node refs resolve.
		b.WriteString("out body;\n>;\nout skel qt;\n")
	default:
		b.WriteString("out geom;\n")
	}
	return b.String()
}

func writeFilter(b *strings.Builder, f Filter) {
	b.WriteString(`["`)
	b.WriteString(escapeQL(f.Key))
	if f.Value != "" {
		b.WriteString(`"="`)
		b.WriteString(escapeQL(f.Value))
	}
	b.WriteString(`"]`)
}

// escapeQL escapes backslashes and double quotes for a quoted QL string.
func escapeQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
