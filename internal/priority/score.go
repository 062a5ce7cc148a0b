// Package priority turns detection and mask layers into a per-pixel planting
// priority surface, classifies it into bands and extracts the critical spots.
package priority

import (
	"fmt"
	"log"

	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/models"
	"github.com/lox/releaf/internal/raster"
)

// Band thresholds on the composite score. Lower bounds are inclusive.
const (
	CriticalThreshold = 80.0
	HighThreshold     = 60.0
	MediumThreshold   = 40.0
)

const (
	DefaultMaxSpots      = 5
	DefaultMinSpotPixels = 5
)

// Input gathers everything the scorer reads for one location. Nil masks are
// treated as empty.
type Input struct {
	Bounds          geo.Bounds
	ShadowIntensity float64

	Sidewalk   *raster.Mask
	Building   *raster.Mask
	Street     *raster.Mask
	Vegetation *raster.Mask

	Amenities []geo.Point
}

// Scorer computes priority surfaces and extracts spots.
type Scorer struct {
	Resolution    float64
	MaxSpots      int
	MinSpotPixels int

	// PreviewURLTemplate, when set, is filled with {lat} and {lon} for each spot.
	PreviewURLTemplate string
}

// New returns a scorer at the standard ground resolution with default spot limits.
func New() *Scorer {
	return &Scorer{
		Resolution:    geo.GroundResolution,
		MaxSpots:      DefaultMaxSpots,
		MinSpotPixels: DefaultMinSpotPixels,
	}
}

// Classify returns the band for a plantable pixel's composite score.
func Classify(score float64) models.Band {
	switch {
	case score >= CriticalThreshold:
		return models.BandCritical
	case score >= HighThreshold:
		return models.BandHigh
	case score >= MediumThreshold:
		return models.BandMedium
	}
	return models.BandLow
}

// Score computes the composite surface, its components, band masks and the ranked
// critical spots.
func (s *Scorer) Score(in Input) (*models.PriorityResult, error) {
	w, h := in.Bounds.Width, in.Bounds.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("score: invalid grid %dx%d", w, h)
	}
	for name, m := range map[string]*raster.Mask{
		"sidewalk":   in.Sidewalk,
		"building":   in.Building,
		"street":     in.Street,
		"vegetation": in.Vegetation,
	} {
		if m != nil && !m.SameShape(w, h) {
			return nil, fmt.Errorf("score: %s mask is %dx%d, grid is %dx%d", name, m.Width, m.Height, w, h)
		}
	}

	res := s.Resolution
	if res <= 0 {
		res = geo.GroundResolution
	}

	result := &models.PriorityResult{
		Sidewalk:  distanceComponent(in.Sidewalk, w, h, res, sidewalkScore),
		Building:  distanceComponent(in.Building, w, h, res, buildingScore),
		Sun:       raster.NewGrid(w, h),
		Amenity:   amenityComponent(in.Amenities, in.Bounds, w, h, res),
		Composite: raster.NewGrid(w, h),
	}
	result.Sun.Fill(sunScore(in.ShadowIntensity))

	excluded, err := raster.Union(w, h, in.Building, in.Street, in.Vegetation)
	if err != nil {
		return nil, fmt.Errorf("score: exclusion mask: %w", err)
	}

	bands := models.Bands{
		Critical: raster.NewMask(w, h),
		High:     raster.NewMask(w, h),
		Medium:   raster.NewMask(w, h),
		Low:      raster.NewMask(w, h),
		Excluded: excluded,
	}
	for i := range result.Composite.Data {
		if excluded.Data[i] {
			continue
		}
		v := result.Sidewalk.Data[i] + result.Building.Data[i] + result.Sun.Data[i] + result.Amenity.Data[i]
		result.Composite.Data[i] = v
		switch Classify(v) {
		case models.BandCritical:
			bands.Critical.Data[i] = true
		case models.BandHigh:
			bands.High.Data[i] = true
		case models.BandMedium:
			bands.Medium.Data[i] = true
		default:
			bands.Low.Data[i] = true
		}
	}
	result.Bands = bands

	if excluded.Count() == w*h {
		log.Printf("priority: all %d pixels excluded, no plantable area", w*h)
	}

	result.Spots = s.extractSpots(result.Composite, bands.Critical, in.Bounds)
	return result, nil
}
