// Package render draws PNG visualisations of a scored location.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/lox/releaf/internal/models"
	"github.com/lox/releaf/internal/raster"
)

// ErrNotScored is returned for a location that has no priority result yet.
var ErrNotScored = errors.New("render: location has not been scored")

const headerHeight = 24

var (
	criticalColor = color.RGBA{220, 38, 38, 255}
	highColor     = color.RGBA{249, 115, 22, 255}
	mediumColor   = color.RGBA{250, 204, 21, 255}
	buildingColor = color.RGBA{30, 30, 30, 255}
	streetColor   = color.RGBA{100, 116, 139, 255}
	headerColor   = color.RGBA{17, 24, 39, 255}
	white         = color.RGBA{255, 255, 255, 255}
	lightGray     = color.RGBA{200, 200, 200, 255}
)

func check(loc *models.Location) error {
	if loc == nil || loc.Priority == nil || loc.Priority.Composite == nil {
		return ErrNotScored
	}
	if loc.Satellite == nil {
		return errors.New("render: location has no satellite image")
	}
	return nil
}

// Analysis draws the satellite image with the high, medium and critical bands,
// buildings and streets overlaid, numbered spot markers, and a title bar.
func Analysis(loc *models.Location) ([]byte, error) {
	if err := check(loc); err != nil {
		return nil, err
	}
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	w, h := loc.Size()
	dst := image.NewRGBA(image.Rect(0, 0, w, h+headerHeight))
	draw.Draw(dst, image.Rect(0, headerHeight, w, h+headerHeight), loc.Satellite, loc.Satellite.Bounds().Min, draw.Src)

	p := loc.Priority
	blend(dst, loc.StreetMask, streetColor, 0.35)
	blend(dst, loc.BuildingMask, buildingColor, 0.45)
	blend(dst, p.Bands.Medium, mediumColor, 0.45)
	blend(dst, p.Bands.High, highColor, 0.5)
	blend(dst, p.Bands.Critical, criticalColor, 0.6)

	for i, s := range p.Spots {
		drawMarker(dst, int(s.PixelX), int(s.PixelY)+headerHeight, i+1)
	}

	fill(dst, image.Rect(0, 0, w, headerHeight), headerColor)
	title := fmt.Sprintf("%s  %d spots  max %.1f", loc.Name, len(p.Spots), p.Composite.Max())
	drawText(dst, title, 6, headerHeight-7, white, fontTitle)

	return encode(dst)
}

// Components draws the four score components as heat maps in a 2x2 grid, each
// scaled to its own maximum.
func Components(loc *models.Location) ([]byte, error) {
	if err := check(loc); err != nil {
		return nil, err
	}
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	w, h := loc.Size()
	ph := h + headerHeight
	dst := image.NewRGBA(image.Rect(0, 0, 2*w, 2*ph))

	p := loc.Priority
	panels := []struct {
		title string
		grid  *raster.Grid
		max   float64
	}{
		{"Sidewalk (0-35)", p.Sidewalk, 35},
		{"Building (0-25)", p.Building, 25},
		{"Sun (0-20)", p.Sun, 20},
		{"Amenity (0-10)", p.Amenity, 10},
	}
	for i, panel := range panels {
		x0, y0 := (i%2)*w, (i/2)*ph
		fill(dst, image.Rect(x0, y0, x0+w, y0+headerHeight), headerColor)
		drawText(dst, panel.title, x0+6, y0+headerHeight-8, lightGray, fontLabel)
		if panel.grid == nil {
			continue
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.SetRGBA(x0+x, y0+headerHeight+y, heat(panel.grid.At(x, y)/panel.max))
			}
		}
	}
	return encode(dst)
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// blend tints the pixels of img under m, offset below the header.
func blend(img *image.RGBA, m *raster.Mask, col color.RGBA, alpha float64) {
	if m.Empty() {
		return
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.At(x, y) {
				continue
			}
			o := img.RGBAAt(x, y+headerHeight)
			o.R = mix(o.R, col.R, alpha)
			o.G = mix(o.G, col.G, alpha)
			o.B = mix(o.B, col.B, alpha)
			o.A = 255
			img.SetRGBA(x, y+headerHeight, o)
		}
	}
}

func mix(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t + 0.5)
}

func fill(img *image.RGBA, r image.Rectangle, col color.RGBA) {
	draw.Draw(img, r, image.NewUniform(col), image.Point{}, draw.Src)
}

func drawMarker(img *image.RGBA, cx, cy, n int) {
	const radius = 5
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := dx*dx + dy*dy
			switch {
			case d2 <= (radius-2)*(radius-2):
				img.SetRGBA(cx+dx, cy+dy, criticalColor)
			case d2 <= radius*radius:
				img.SetRGBA(cx+dx, cy+dy, white)
			}
		}
	}
	drawText(img, fmt.Sprint(n), cx+radius+2, cy+4, white, fontLabel)
}

// heat maps [0, 1] onto a dark blue, green, yellow, red ramp.
func heat(v float64) color.RGBA {
	stops := []color.RGBA{
		{20, 20, 60, 255},
		{34, 139, 84, 255},
		{250, 204, 21, 255},
		{220, 38, 38, 255},
	}
	switch {
	case v <= 0:
		return stops[0]
	case v >= 1:
		return stops[len(stops)-1]
	}
	pos := v * float64(len(stops)-1)
	i := int(pos)
	t := pos - float64(i)
	a, b := stops[i], stops[i+1]
	return color.RGBA{mix(a.R, b.R, t), mix(a.G, b.G, t), mix(a.B, b.B, t), 255}
}
