// Package align corrects the fixed registration error between downloaded vector
// geometry and the satellite raster's pixel grid.
//
// The vector source and the imagery tiles disagree at the zoom level used for
// analysis. The disagreement is a regional calibration constant: a uniform scale
// about the image centre plus a constant ground offset. It is not estimated per
// request.
package align

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/lox/releaf/internal/geo"
)

// Calibration is the empirically measured correction for one region.
type Calibration struct {
	Scale  float64 // uniform scale about the centre point
	NorthM float64 // metres north after scaling (negative is south)
	EastM  float64 // metres east after scaling (negative is west)
}

// DefaultCalibration is the Kuala Lumpur correction: 1.95× about the centre,
// then 5 m south and 10 m east.
var DefaultCalibration = Calibration{Scale: 1.95, NorthM: -5, EastM: 10}

// Aligner applies one Calibration to geometry around a given image centre.
type Aligner struct {
	cal Calibration
}

// New returns an aligner for cal.
func New(cal Calibration) *Aligner {
	return &Aligner{cal: cal}
}

// Calibration returns the correction the aligner applies.
func (a *Aligner) Calibration() Calibration {
	return a.cal
}

// Transform returns the 3×3 homogeneous matrix mapping (lon, lat, 1) to the aligned
// coordinate for an image centred on (lat, lon).
func (a *Aligner) Transform(lat, lon float64) *mat.Dense {
	s := a.cal.Scale
	dx := geo.MetresToLonDegrees(a.cal.EastM, lat)
	dy := geo.MetresToLatDegrees(a.cal.NorthM)
	return mat.NewDense(3, 3, []float64{
		s, 0, lon*(1-s) + dx,
		0, s, lat*(1-s) + dy,
		0, 0, 1,
	})
}

// Align applies the calibration to every vertex of every feature. The input is
// left untouched.
func (a *Aligner) Align(c geo.Collection, lat, lon float64) geo.Collection {
	return apply(c, a.Transform(lat, lon))
}

// Inverse undoes Align for the same centre point.
func (a *Aligner) Inverse(c geo.Collection, lat, lon float64) (geo.Collection, error) {
	var inv mat.Dense
	if err := inv.Inverse(a.Transform(lat, lon)); err != nil {
		return nil, fmt.Errorf("invert alignment: %w", err)
	}
	return apply(c, &inv), nil
}

func apply(c geo.Collection, t mat.Matrix) geo.Collection {
	if c == nil {
		return nil
	}
	a, b, tx := t.At(0, 0), t.At(0, 1), t.At(0, 2)
	d, e, ty := t.At(1, 0), t.At(1, 1), t.At(1, 2)

	out := make(geo.Collection, len(c))
	for i, f := range c {
		g := f.Clone()
		for _, part := range g.Parts {
			for j, p := range part {
				part[j] = geo.Point{
					Lon: a*p.Lon + b*p.Lat + tx,
					Lat: d*p.Lon + e*p.Lat + ty,
				}
			}
		}
		out[i] = g
	}
	return out
}

// AlignPoints applies the same correction to loose points such as amenities.
func (a *Aligner) AlignPoints(pts []geo.Point, lat, lon float64) []geo.Point {
	if len(pts) == 0 {
		return nil
	}
	c := geo.Collection{{Type: geo.TypePoint, Parts: [][]geo.Point{pts}}}
	return a.Align(c, lat, lon)[0].Parts[0]
}
