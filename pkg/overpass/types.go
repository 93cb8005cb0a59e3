package overpass

// ElementKind identifies an OSM element class on the wire.
type ElementKind string

const (
	KindNode     ElementKind = "node"
	KindWay      ElementKind = "way"
	KindRelation ElementKind = "relation"
)

// Member is one entry of a relation, as kept in topology-format results.
type Member struct {
	Kind ElementKind `json:"type"`
	Ref  int64       `json:"ref"`
	Role string      `json:"role"`
}

// Element is a raw OSM element, surfaced when executing with FormatTopology.
// Lat/Lon are set for nodes only; NodeRefs for ways; Members for relations.
type Element struct {
	Kind     ElementKind       `json:"type"`
	ID       int64             `json:"id"`
	Lat      float64           `json:"lat,omitempty"`
	Lon      float64           `json:"lon,omitempty"`
	Tags     map[string]string `json:"tags"`
	NodeRefs []int64           `json:"nodes,omitempty"`
	Members  []Member          `json:"members,omitempty"`
}

// Wire shapes of the Overpass JSON response.

type wireLatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type wireMember struct {
	Type     string       `json:"type"`
	Ref      int64        `json:"ref"`
	Role     string       `json:"role"`
	Geometry []wireLatLon `json:"geometry"`
}

type wireElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Tags     map[string]string `json:"tags"`
	Nodes    []int64           `json:"nodes"`
	Geometry []wireLatLon      `json:"geometry"`
	Members  []wireMember      `json:"members"`
}

type wireResponse struct {
	Version   any    `json:"version"`
	Generator string `json:"generator"`
	Osm3s     struct {
		TimestampOSMBase string `json:"timestamp_osm_base"`
		Copyright        string `json:"copyright"`
	} `json:"osm3s"`
	Remark   string        `json:"remark"`
	Elements []wireElement `json:"elements"`
}
