package priority

import (
	"math"

	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/raster"
)

// Component maxima. They sum to 90; the remaining 10 points are reserved for a
// gap-filling bonus that is not scored.
const (
	SidewalkMax = 35.0
	BuildingMax = 25.0
	SunMax      = 20.0
	AmenityMax  = 10.0
)

const (
	sidewalkNearM = 5.0  // full sidewalk score within this distance
	sidewalkFarM  = 25.0 // sidewalk score reaches zero here

	buildingTooCloseM = 10.0 // foundations and utilities
	buildingNearM     = 30.0 // end of the full cooling band
	buildingFarM      = 50.0
	buildingFarScore  = 5.0

	amenityRadiusM    = 100.0
	amenitySaturation = 3.0 // summed influence at which the component maxes out
)

// sidewalkScore maps a distance to walkable space onto [0, SidewalkMax].
func sidewalkScore(d float64) float64 {
	switch {
	case d <= sidewalkNearM:
		return SidewalkMax
	case d >= sidewalkFarM:
		return 0
	}
	return SidewalkMax * (sidewalkFarM - d) / (sidewalkFarM - sidewalkNearM)
}

// buildingScore maps a distance to the nearest building onto [0, BuildingMax].
func buildingScore(d float64) float64 {
	switch {
	case d < buildingTooCloseM:
		return 0
	case d <= buildingNearM:
		return BuildingMax
	case d <= buildingFarM:
		t := (d - buildingNearM) / (buildingFarM - buildingNearM)
		return BuildingMax - t*(BuildingMax-buildingFarScore)
	}
	return buildingFarScore
}

// sunScore is uniform across the location: more shadow, less sun.
func sunScore(shadowIntensity float64) float64 {
	return SunMax * (1 - clamp(shadowIntensity, 0, 1))
}

// distanceComponent fills a grid with score(d) where d is the distance in metres to
// the nearest set pixel of m. An empty mask yields an all-zero grid.
func distanceComponent(m *raster.Mask, w, h int, res float64, score func(float64) float64) *raster.Grid {
	g := raster.NewGrid(w, h)
	if m.Empty() {
		return g
	}
	dist := raster.DistanceTransform(m)
	for i, d := range dist.Data {
		g.Data[i] = score(d * res)
	}
	return g
}

// amenityComponent accumulates the linear influence of every amenity within
// amenityRadiusM of each pixel centre.
func amenityComponent(amenities []geo.Point, b geo.Bounds, w, h int, res float64) *raster.Grid {
	g := raster.NewGrid(w, h)
	if len(amenities) == 0 {
		return g
	}
	sx := float64(w) / float64(b.Width)
	sy := float64(h) / float64(b.Height)
	radius := amenityRadiusM / res

	influence := make([]float64, w*h)
	for _, a := range amenities {
		if !a.Valid() {
			continue
		}
		ax, ay := b.GeoToPixel(a)
		ax *= sx
		ay *= sy

		x0 := max(0, int(math.Floor(ax-radius)))
		x1 := min(w-1, int(math.Ceil(ax+radius)))
		y0 := max(0, int(math.Floor(ay-radius)))
		y1 := min(h-1, int(math.Ceil(ay+radius)))
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				d := math.Hypot(float64(x)+0.5-ax, float64(y)+0.5-ay) * res
				if d < amenityRadiusM {
					influence[y*w+x] += 1 - d/amenityRadiusM
				}
			}
		}
	}

	for i, v := range influence {
		g.Data[i] = AmenityMax * math.Min(1, v/amenitySaturation)
	}
	return g
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
