package osm

import (
	"sort"

	"github.com/lox/releaf/internal/geo"
)

// highway values that are not usable streets
var ignoredHighways = map[string]bool{
	"construction": true,
	"proposed":     true,
	"abandoned":    true,
	"platform":     true,
}

// Convert sorts elements into buildings, classified streets and amenity points.
// Elements may appear in more than one layer. Output is ordered by OSM id.
func Convert(elems []element) *Geometry {
	sort.Slice(elems, func(i, j int) bool {
		if elems[i].Way != elems[j].Way {
			return !elems[i].Way
		}
		return elems[i].ID < elems[j].ID
	})

	g := &Geometry{}
	for _, e := range elems {
		if len(e.Coords) == 0 {
			continue
		}

		if e.Way {
			if b, ok := e.Tags["building"]; ok && b != "no" && closed(e.Coords) {
				g.Buildings = append(g.Buildings, geo.Feature{
					ID:    e.ID,
					Type:  geo.TypePolygon,
					Parts: [][]geo.Point{e.Coords},
					Tags:  e.Tags,
				})
			}
			if hw, ok := e.Tags["highway"]; ok && !ignoredHighways[hw] && len(e.Coords) >= 2 {
				typ := geo.TypeLineString
				if e.Tags["area"] == "yes" && closed(e.Coords) {
					typ = geo.TypePolygon
				}
				g.Streets = append(g.Streets, geo.Feature{
					ID:    e.ID,
					Type:  typ,
					Parts: [][]geo.Point{e.Coords},
					Tier:  geo.ClassifyHighway(hw),
					Tags:  e.Tags,
				})
			}
		}

		if _, ok := e.Tags["amenity"]; ok {
			f := geo.Feature{Type: geo.TypePoint, Parts: [][]geo.Point{e.Coords}}
			if e.Way {
				f.Type = geo.TypePolygon
			}
			g.Amenities = append(g.Amenities, geo.Collection{f}.Points()...)
		}
	}
	return g
}

func closed(ring []geo.Point) bool {
	return len(ring) >= 4 && ring[0] == ring[len(ring)-1]
}
