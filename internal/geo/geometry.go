package geo

import "math"

// Point is a WGS84 coordinate.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Valid reports whether both ordinates are finite and in range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// GeometryType is the shape of a Feature.
type GeometryType string

const (
	TypePoint      GeometryType = "Point"
	TypeLineString GeometryType = "LineString"
	TypePolygon    GeometryType = "Polygon"
)

// Feature is a single vector shape. For polygons Parts holds the rings, the first
// being the outer ring and the rest holes. For line strings Parts holds one path per
// part. Points use a single part with one vertex.
type Feature struct {
	ID    int64             `json:"id,omitempty"`
	Type  GeometryType      `json:"type"`
	Parts [][]Point         `json:"parts"`
	Tier  TrafficTier       `json:"tier,omitempty"`
	Tags  map[string]string `json:"tags,omitempty"`
}

// Collection is a set of features of one semantic layer (buildings, streets, amenities).
type Collection []Feature

// ByTier returns the features classified with tier t.
func (c Collection) ByTier(t TrafficTier) Collection {
	var out Collection
	for _, f := range c {
		if f.Tier == t {
			out = append(out, f)
		}
	}
	return out
}

// Points flattens every vertex of every feature. Used for amenity layers where
// polygons (e.g. a mapped cafe footprint) are reduced to their vertices' centroid.
func (c Collection) Points() []Point {
	var out []Point
	for _, f := range c {
		if f.Type == TypePoint {
			for _, part := range f.Parts {
				out = append(out, part...)
			}
			continue
		}
		if p, ok := f.Centroid(); ok {
			out = append(out, p)
		}
	}
	return out
}

// Centroid returns the vertex mean of the feature's first part.
func (f Feature) Centroid() (Point, bool) {
	if len(f.Parts) == 0 || len(f.Parts[0]) == 0 {
		return Point{}, false
	}
	var sum Point
	for _, p := range f.Parts[0] {
		sum.Lon += p.Lon
		sum.Lat += p.Lat
	}
	n := float64(len(f.Parts[0]))
	return Point{Lon: sum.Lon / n, Lat: sum.Lat / n}, true
}

// Clone returns a deep copy of the feature's coordinates. Tags are shared.
func (f Feature) Clone() Feature {
	parts := make([][]Point, len(f.Parts))
	for i, part := range f.Parts {
		parts[i] = append([]Point(nil), part...)
	}
	f.Parts = parts
	return f
}
