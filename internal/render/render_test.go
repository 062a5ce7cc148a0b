package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/models"
	"github.com/lox/releaf/internal/raster"
)

const testW, testH = 40, 30

var gray = color.RGBA{120, 120, 120, 255}

func testLocation() *models.Location {
	sat := image.NewRGBA(image.Rect(0, 0, testW, testH))
	for i := 0; i < len(sat.Pix); i += 4 {
		sat.Pix[i], sat.Pix[i+1], sat.Pix[i+2], sat.Pix[i+3] = gray.R, gray.G, gray.B, 255
	}

	critical := raster.NewMask(testW, testH)
	for y := 20; y < testH; y++ {
		for x := 30; x < testW; x++ {
			critical.Set(x, y, true)
		}
	}
	sun := raster.NewGrid(testW, testH)
	sun.Fill(20)
	composite := raster.NewGrid(testW, testH)
	composite.Fill(50)

	return &models.Location{
		Name:      "Test",
		Satellite: sat,
		Bounds:    geo.NewBounds(13.75, 100.5, testW, testH),
		Priority: &models.PriorityResult{
			Composite: composite,
			Sidewalk:  raster.NewGrid(testW, testH),
			Building:  raster.NewGrid(testW, testH),
			Sun:       sun,
			Amenity:   raster.NewGrid(testW, testH),
			Bands: models.Bands{
				Critical: critical,
				High:     raster.NewMask(testW, testH),
				Medium:   raster.NewMask(testW, testH),
				Low:      raster.NewMask(testW, testH),
				Excluded: raster.NewMask(testW, testH),
			},
			Spots: []models.PrioritySpot{{ID: 1, PixelX: 6, PixelY: 6}},
		},
	}
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func rgba(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestAnalysis(t *testing.T) {
	data, err := Analysis(testLocation())
	if err != nil {
		t.Fatalf("Analysis: %v", err)
	}
	img := decode(t, data)

	if b := img.Bounds(); b.Dx() != testW || b.Dy() != testH+headerHeight {
		t.Fatalf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), testW, testH+headerHeight)
	}

	if got := rgba(img, 35, 25+headerHeight); got.R <= got.G || got.R <= got.B {
		t.Errorf("critical pixel = %v, want red tint", got)
	}
	if got := rgba(img, 20, 25+headerHeight); got != gray {
		t.Errorf("untouched pixel = %v, want %v", got, gray)
	}
	if got := rgba(img, 6, 6+headerHeight); got != criticalColor {
		t.Errorf("marker centre = %v, want %v", got, criticalColor)
	}
}

func TestComponents(t *testing.T) {
	data, err := Components(testLocation())
	if err != nil {
		t.Fatalf("Components: %v", err)
	}
	img := decode(t, data)

	ph := testH + headerHeight
	if b := img.Bounds(); b.Dx() != 2*testW || b.Dy() != 2*ph {
		t.Fatalf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), 2*testW, 2*ph)
	}

	// Sun panel is bottom-left and saturated.
	if got := rgba(img, 10, ph+headerHeight+10); got != heat(1) {
		t.Errorf("sun pixel = %v, want %v", got, heat(1))
	}
	// Sidewalk panel is top-left and zero.
	if got := rgba(img, 10, headerHeight+10); got != heat(0) {
		t.Errorf("sidewalk pixel = %v, want %v", got, heat(0))
	}
}

func TestNotScored(t *testing.T) {
	loc := testLocation()
	loc.Priority = nil
	if _, err := Analysis(loc); !errors.Is(err, ErrNotScored) {
		t.Errorf("Analysis err = %v, want ErrNotScored", err)
	}
	if _, err := Components(loc); !errors.Is(err, ErrNotScored) {
		t.Errorf("Components err = %v, want ErrNotScored", err)
	}
}

func TestHeat(t *testing.T) {
	if heat(-1) != heat(0) || heat(2) != heat(1) {
		t.Error("heat should clamp")
	}
	mid := heat(0.5)
	if mid == heat(0) || mid == heat(1) {
		t.Errorf("heat(0.5) = %v, want an intermediate colour", mid)
	}
}
