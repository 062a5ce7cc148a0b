package mask

import (
	"image"
	"image/draw"
	"log"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"golang.org/x/image/vector"

	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/raster"
)

// coverage above which a filled pixel counts as inside a polygon (0-255)
const fillThreshold = 128

// Rasterizer burns aligned vector geometry into masks on the satellite grid.
type Rasterizer struct {
	Resolution float64 // metres per pixel
}

// New returns a rasterizer for the given ground resolution in metres per pixel. A
// non-positive resolution selects geo.GroundResolution.
func New(resolution float64) *Rasterizer {
	if resolution <= 0 {
		resolution = geo.GroundResolution
	}
	return &Rasterizer{Resolution: resolution}
}

// Rasterize burns c into a width×height mask, growing every shape by bufferM
// metres first. Empty or malformed input yields an all-false mask.
//
// Buffering runs on a grid padded by the buffer radius so that geometry lying just
// outside the image still reaches into it.
func (r *Rasterizer) Rasterize(c geo.Collection, width, height int, b geo.Bounds, bufferM float64) *raster.Mask {
	out := raster.NewMask(width, height)
	if len(c) == 0 || width <= 0 || height <= 0 {
		return out
	}
	if b.Width <= 0 || b.Height <= 0 || b.MaxLon <= b.MinLon || b.MaxLat <= b.MinLat {
		log.Printf("mask: invalid bounds %+v, returning empty mask", b)
		return out
	}

	radius := 0.0
	pad := 0
	if bufferM > 0 {
		radius = bufferM / r.Resolution
		pad = int(math.Ceil(radius)) + 1
	}
	w, h := width+2*pad, height+2*pad
	sx := float64(width) / float64(b.Width)
	sy := float64(height) / float64(b.Height)

	toPixel := func(p geo.Point) orb.Point {
		x, y := b.GeoToPixel(p)
		return orb.Point{x*sx + float64(pad), y*sy + float64(pad)}
	}
	grid := orb.Bound{Max: orb.Point{float64(w), float64(h)}}

	seeds := raster.NewMask(w, h)
	fill := vector.NewRasterizer(w, h)
	filled := false
	skipped := 0

	for _, f := range c {
		parts, ok := pixelParts(f, toPixel)
		if !ok {
			skipped++
			continue
		}
		switch f.Type {
		case geo.TypePolygon:
			if addPolygon(fill, parts, grid) {
				filled = true
			} else {
				burnLines(seeds, parts, grid)
			}
		case geo.TypeLineString:
			burnLines(seeds, parts, grid)
		case geo.TypePoint:
			for _, part := range parts {
				for _, p := range part {
					setPixel(seeds, p)
				}
			}
		default:
			skipped++
		}
	}
	if skipped > 0 {
		log.Printf("mask: skipped %d malformed features of %d", skipped, len(c))
	}

	if filled {
		dst := image.NewAlpha(image.Rect(0, 0, w, h))
		fill.DrawOp = draw.Src
		fill.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})
		for i, a := range dst.Pix {
			if a >= fillThreshold {
				seeds.Data[i] = true
			}
		}
	}

	if radius > 0 {
		seeds = raster.Dilate(seeds, radius)
	}
	if pad == 0 {
		return seeds
	}
	return seeds.Crop(pad, pad, width, height)
}

// pixelParts converts every part to pixel space, rejecting features with no usable
// vertices or any non-finite coordinate.
func pixelParts(f geo.Feature, toPixel func(geo.Point) orb.Point) ([]orb.LineString, bool) {
	var parts []orb.LineString
	for _, part := range f.Parts {
		if len(part) == 0 {
			continue
		}
		pp := make(orb.LineString, len(part))
		for i, p := range part {
			if !p.Valid() {
				return nil, false
			}
			pp[i] = toPixel(p)
		}
		parts = append(parts, pp)
	}
	return parts, len(parts) > 0
}

// addPolygon queues the rings of one polygon, clipped to the grid, into the fill
// rasterizer. It reports false when the outer ring is degenerate, in which case
// the caller burns it as a line instead.
func addPolygon(z *vector.Rasterizer, rings []orb.LineString, grid orb.Bound) bool {
	if len(rings[0]) < 3 {
		return false
	}
	for i, part := range rings {
		ring := orb.Ring(part.Clone())
		if ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		ring = clip.Ring(grid, ring)
		if len(ring) < 4 {
			continue
		}
		// outer rings positive, holes negative, so that overlapping polygons
		// union and holes cancel under the rasterizer's accumulation
		o := ring.Orientation()
		if (i == 0 && o == orb.CW) || (i > 0 && o == orb.CCW) {
			ring.Reverse()
		}
		z.MoveTo(float32(ring[0][0]), float32(ring[0][1]))
		for _, p := range ring[1:] {
			z.LineTo(float32(p[0]), float32(p[1]))
		}
		z.ClosePath()
	}
	return true
}

// burnLines sets every pixel crossed by the parts' segments, sampling every half
// pixel. Segments are clipped to the grid first so a stray vertex far outside the
// image costs nothing.
func burnLines(m *raster.Mask, parts []orb.LineString, grid orb.Bound) {
	for _, part := range parts {
		if len(part) == 1 {
			setPixel(m, part[0])
			continue
		}
		for _, ls := range clip.LineString(grid, part.Clone()) {
			if len(ls) == 1 {
				setPixel(m, ls[0])
			}
			for i := 1; i < len(ls); i++ {
				a, b := ls[i-1], ls[i]
				n := int(math.Ceil(math.Hypot(b[0]-a[0], b[1]-a[1])*2)) + 1
				for s := 0; s <= n; s++ {
					t := float64(s) / float64(n)
					setPixel(m, orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])})
				}
			}
		}
	}
}

func setPixel(m *raster.Mask, p orb.Point) {
	m.Set(int(math.Floor(p[0])), int(math.Floor(p[1])), true)
}
