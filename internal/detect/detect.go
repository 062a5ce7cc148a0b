// Package detect derives vegetation and shadow layers from a visible-light
// satellite image.
//
// The imagery has no near-infrared band, so vegetation uses a green/red normalised
// difference as a stand-in for NDVI. It over-reports green roofs and painted
// surfaces and misses senescent foliage; treat it as a heuristic, not a measured
// vegetation index.
//
// Shadows are dark, weakly saturated pixels. Dark foliage is claimed by the
// vegetation layer first, so the two layers never overlap.
package detect

import (
	"errors"
	"image"

	"github.com/lox/releaf/internal/raster"
)

const (
	VegetationThreshold = 0.1  // NDVI proxy above which a pixel is vegetated
	ShadowBrightness    = 0.3  // mean RGB (0-1) below which a pixel may be shadow
	ShadowSaturation    = 0.35 // HSV saturation below which a dark pixel is shadow
)

var ErrEmptyImage = errors.New("empty image")

// Detection is the per-pixel output of the detector.
type Detection struct {
	Shadow     *raster.Mask
	Vegetation *raster.Mask
	NDVI       *raster.Grid
}

// Detector holds the pixel thresholds for vegetation and shadow classification.
type Detector struct {
	VegetationThreshold float64
	ShadowBrightness    float64
	ShadowSaturation    float64
}

// New returns a detector with the default thresholds.
func New() *Detector {
	return &Detector{
		VegetationThreshold: VegetationThreshold,
		ShadowBrightness:    ShadowBrightness,
		ShadowSaturation:    ShadowSaturation,
	}
}

// Detect classifies every pixel of img.
func (d *Detector) Detect(img image.Image) (*Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	det := &Detection{
		Shadow:     raster.NewMask(w, h),
		Vegetation: raster.NewMask(w, h),
		NDVI:       raster.NewGrid(w, h),
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl := rgb(img, b.Min.X+x, b.Min.Y+y)
			i := y*w + x

			ndvi := greenRedIndex(r, g)
			det.NDVI.Data[i] = ndvi
			if ndvi > d.VegetationThreshold {
				det.Vegetation.Data[i] = true
				continue
			}
			if d.isShadow(r, g, bl) {
				det.Shadow.Data[i] = true
			}
		}
	}
	return det, nil
}

// ShadowIntensity returns the fraction of pixels classified as shadow. It is used
// as an inverse proxy for sun exposure across the whole location.
func (d *Detector) ShadowIntensity(img image.Image) (float64, error) {
	det, err := d.Detect(img)
	if err != nil {
		return 0, err
	}
	return Intensity(det.Shadow), nil
}

// Intensity returns the fraction of set pixels in a shadow mask.
func Intensity(shadow *raster.Mask) float64 {
	if shadow == nil || len(shadow.Data) == 0 {
		return 0
	}
	return float64(shadow.Count()) / float64(len(shadow.Data))
}

func (d *Detector) isShadow(r, g, b float64) bool {
	brightness := (r + g + b) / 3
	if brightness >= d.ShadowBrightness {
		return false
	}
	return saturation(r, g, b) < d.ShadowSaturation
}

func greenRedIndex(r, g float64) float64 {
	if r+g == 0 {
		return 0
	}
	return (g - r) / (g + r)
}

// saturation is the HSV saturation of an RGB triple in [0,1].
func saturation(r, g, b float64) float64 {
	max := r
	if g > max {
		max = g
	}
	if b > max {
		max = b
	}
	if max == 0 {
		return 0
	}
	min := r
	if g < min {
		min = g
	}
	if b < min {
		min = b
	}
	return (max - min) / max
}

// rgb returns the pixel's channels scaled to [0,1].
func rgb(img image.Image, x, y int) (float64, float64, float64) {
	switch src := img.(type) {
	case *image.RGBA:
		o := src.PixOffset(x, y)
		return float64(src.Pix[o]) / 255, float64(src.Pix[o+1]) / 255, float64(src.Pix[o+2]) / 255
	case *image.NRGBA:
		o := src.PixOffset(x, y)
		return float64(src.Pix[o]) / 255, float64(src.Pix[o+1]) / 255, float64(src.Pix[o+2]) / 255
	}
	r, g, b, _ := img.At(x, y).RGBA()
	return float64(r) / 0xffff, float64(g) / 0xffff, float64(b) / 0xffff
}
