package scene

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/lox/releaf/internal/geo"
)

// LoadCollection reads a GeoJSON FeatureCollection from disk.
func LoadCollection(path string) (geo.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	c, err := ParseCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCollection converts a GeoJSON FeatureCollection. Multi-geometries are split
// into one feature per member. Street tiers are taken from a "tier" property when
// it names a known tier, otherwise derived from "highway". Features with missing,
// unsupported or out-of-range geometry are skipped and logged.
func ParseCollection(data []byte) (geo.Collection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	var out geo.Collection
	skipped := 0
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			skipped++
			continue
		}
		parts, err := convertGeometry(f.Geometry)
		if err != nil {
			log.Printf("scene: feature %d: %v", i, err)
			skipped++
			continue
		}

		tags := stringTags(f.Properties)
		tier := streetTier(tags)
		for _, p := range parts {
			p.ID = featureID(f.ID, i)
			p.Tier = tier
			p.Tags = tags
			out = append(out, p)
		}
	}
	if skipped > 0 {
		log.Printf("scene: skipped %d of %d features", skipped, len(fc.Features))
	}
	return out, nil
}

func streetTier(tags map[string]string) geo.TrafficTier {
	if t := geo.TrafficTier(tags["tier"]); t.Valid() {
		return t
	} else if t != geo.TierNone {
		log.Printf("scene: unknown tier %q, classifying from highway tag", t)
	}
	if tags["highway"] != "" {
		return geo.ClassifyHighway(tags["highway"])
	}
	return geo.TierNone
}

func convertGeometry(g orb.Geometry) ([]geo.Feature, error) {
	switch g := g.(type) {
	case orb.Point:
		p, err := point(g)
		if err != nil {
			return nil, err
		}
		return []geo.Feature{{Type: geo.TypePoint, Parts: [][]geo.Point{{p}}}}, nil

	case orb.MultiPoint:
		out := make([]geo.Feature, len(g))
		for i, c := range g {
			p, err := point(c)
			if err != nil {
				return nil, err
			}
			out[i] = geo.Feature{Type: geo.TypePoint, Parts: [][]geo.Point{{p}}}
		}
		return out, nil

	case orb.LineString:
		pts, err := points(g)
		if err != nil {
			return nil, err
		}
		return []geo.Feature{{Type: geo.TypeLineString, Parts: [][]geo.Point{pts}}}, nil

	case orb.MultiLineString:
		out := make([]geo.Feature, len(g))
		for i, ls := range g {
			pts, err := points(ls)
			if err != nil {
				return nil, err
			}
			out[i] = geo.Feature{Type: geo.TypeLineString, Parts: [][]geo.Point{pts}}
		}
		return out, nil

	case orb.Polygon:
		parts, err := rings(g)
		if err != nil {
			return nil, err
		}
		return []geo.Feature{{Type: geo.TypePolygon, Parts: parts}}, nil

	case orb.MultiPolygon:
		out := make([]geo.Feature, 0, len(g))
		for _, poly := range g {
			parts, err := rings(poly)
			if err != nil {
				return nil, err
			}
			out = append(out, geo.Feature{Type: geo.TypePolygon, Parts: parts})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported geometry type %q", g.GeoJSONType())
}

func point(c orb.Point) (geo.Point, error) {
	p := geo.Point{Lon: c.Lon(), Lat: c.Lat()}
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("position %v out of range", c)
	}
	return p, nil
}

func points[S ~[]orb.Point](cs S) ([]geo.Point, error) {
	out := make([]geo.Point, len(cs))
	for i, c := range cs {
		p, err := point(c)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func rings(poly orb.Polygon) ([][]geo.Point, error) {
	out := make([][]geo.Point, len(poly))
	for i, r := range poly {
		pts, err := points(r)
		if err != nil {
			return nil, err
		}
		out[i] = pts
	}
	return out, nil
}

func stringTags(props geojson.Properties) map[string]string {
	if len(props) == 0 {
		return nil
	}
	tags := make(map[string]string, len(props))
	for k, v := range props {
		switch v := v.(type) {
		case string:
			tags[k] = v
		case float64:
			tags[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			tags[k] = strconv.FormatBool(v)
		}
	}
	return tags
}

func featureID(id any, index int) int64 {
	switch v := id.(type) {
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return int64(index + 1)
}
