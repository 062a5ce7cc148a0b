package mask

import (
	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/raster"
)

// StreetBuffers is the buffer width, in metres, applied to each traffic tier when
// building the comprehensive street mask.
var StreetBuffers = map[geo.TrafficTier]float64{
	geo.TierHigh:       25,
	geo.TierMedium:     15,
	geo.TierLow:        10,
	geo.TierPedestrian: 5,
}

// SidewalkBuffer is the default buffer for the sidewalk mask.
const SidewalkBuffer = 5.0

// StreetMask unions every traffic tier, each buffered by its own width. Used to
// keep plantings off carriageways.
func (r *Rasterizer) StreetMask(streets geo.Collection, width, height int, b geo.Bounds) *raster.Mask {
	out := raster.NewMask(width, height)
	for _, tier := range geo.Tiers {
		layer := streets.ByTier(tier)
		if len(layer) == 0 {
			continue
		}
		orInto(out, r.Rasterize(layer, width, height, b, StreetBuffers[tier]))
	}
	return out
}

// SidewalkMask covers pedestrian and low-traffic streets only, buffered uniformly.
// It marks walkable space for the proximity score, not obstruction.
func (r *Rasterizer) SidewalkMask(streets geo.Collection, width, height int, b geo.Bounds, bufferM float64) *raster.Mask {
	walkable := append(streets.ByTier(geo.TierPedestrian), streets.ByTier(geo.TierLow)...)
	return r.Rasterize(walkable, width, height, b, bufferM)
}

// BuildingMask burns building footprints without a buffer.
func (r *Rasterizer) BuildingMask(buildings geo.Collection, width, height int, b geo.Bounds) *raster.Mask {
	return r.Rasterize(buildings, width, height, b, 0)
}

func orInto(dst, src *raster.Mask) {
	for i, v := range src.Data {
		if v {
			dst.Data[i] = true
		}
	}
}
