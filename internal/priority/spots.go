package priority

import (
	"sort"
	"strconv"
	"strings"

	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/models"
	"github.com/lox/releaf/internal/raster"
)

// extractSpots clusters the critical mask into 8-connected regions and ranks them
// by mean composite score.
func (s *Scorer) extractSpots(composite *raster.Grid, critical *raster.Mask, b geo.Bounds) []models.PrioritySpot {
	comps := raster.Components(critical)
	if len(comps) == 0 {
		return nil
	}

	type ranked struct {
		comp  raster.Component
		score float64
	}
	var candidates []ranked
	for _, c := range comps {
		if c.Pixels < s.MinSpotPixels {
			continue
		}
		var sum float64
		for _, i := range c.Members {
			sum += composite.Data[i]
		}
		candidates = append(candidates, ranked{comp: c, score: sum / float64(c.Pixels)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.comp.Pixels != b.comp.Pixels {
			return a.comp.Pixels > b.comp.Pixels
		}
		if a.comp.CY != b.comp.CY {
			return a.comp.CY < b.comp.CY
		}
		return a.comp.CX < b.comp.CX
	})

	limit := s.MaxSpots
	if limit <= 0 {
		limit = DefaultMaxSpots
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	res := s.Resolution
	if res <= 0 {
		res = geo.GroundResolution
	}

	spots := make([]models.PrioritySpot, len(candidates))
	for i, c := range candidates {
		p := b.PixelToGeo(c.comp.CX, c.comp.CY)
		spots[i] = models.PrioritySpot{
			ID:            i + 1,
			Coordinates:   models.Coordinates{Latitude: p.Lat, Longitude: p.Lon},
			PriorityScore: c.score,
			AreaM2:        float64(c.comp.Pixels) * res * res,
			AreaPixels:    c.comp.Pixels,
			PixelX:        c.comp.CX,
			PixelY:        c.comp.CY,
		}
		if s.PreviewURLTemplate != "" {
			spots[i].PreviewImageURL = PreviewURL(s.PreviewURLTemplate, p)
		}
	}
	return spots
}

// PreviewURL substitutes {lat} and {lon} in tmpl.
func PreviewURL(tmpl string, p geo.Point) string {
	return strings.NewReplacer(
		"{lat}", strconv.FormatFloat(p.Lat, 'f', 6, 64),
		"{lon}", strconv.FormatFloat(p.Lon, 'f', 6, 64),
	).Replace(tmpl)
}
