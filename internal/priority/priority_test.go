package priority

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/models"
	"github.com/lox/releaf/internal/raster"
)

func testBounds(size int) geo.Bounds {
	return geo.NewBounds(13.7563, 100.5018, size, size)
}

func fullMask(w, h int) *raster.Mask {
	m := raster.NewMask(w, h)
	for i := range m.Data {
		m.Data[i] = true
	}
	return m
}

func clearRect(m *raster.Mask, x0, y0, x1, y1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			m.Set(x, y, false)
		}
	}
}

func TestComponentCurves(t *testing.T) {
	tests := []struct {
		name string
		fn   func(float64) float64
		in   float64
		want float64
	}{
		{"sidewalk on", sidewalkScore, 0, 35},
		{"sidewalk at 5m", sidewalkScore, 5, 35},
		{"sidewalk halfway", sidewalkScore, 15, 17.5},
		{"sidewalk at 25m", sidewalkScore, 25, 0},
		{"sidewalk far", sidewalkScore, 400, 0},
		{"building inside", buildingScore, 0, 0},
		{"building too close", buildingScore, 9.9, 0},
		{"building at 10m", buildingScore, 10, 25},
		{"building at 30m", buildingScore, 30, 25},
		{"building at 40m", buildingScore, 40, 15},
		{"building at 50m", buildingScore, 50, 5},
		{"building far", buildingScore, 500, 5},
		{"sun no shadow", sunScore, 0, 20},
		{"sun quarter shadow", sunScore, 0.25, 15},
		{"sun clamped high", sunScore, 1.5, 0},
		{"sun clamped low", sunScore, -1, 20},
	}

	for _, tt := range tests {
		if got := tt.fn(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: f(%v) = %v, want %v", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestClassify_Thresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  models.Band
	}{
		{100, models.BandCritical},
		{80.0, models.BandCritical},
		{79.999, models.BandHigh},
		{60, models.BandHigh},
		{59.999, models.BandMedium},
		{40, models.BandMedium},
		{39.999, models.BandLow},
		{0, models.BandLow},
	}
	for _, tt := range tests {
		if got := Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestScore_ExclusionAndComponentSum(t *testing.T) {
	const size = 60
	b := testBounds(size)
	rng := rand.New(rand.NewSource(7))

	random := func(p float64) *raster.Mask {
		m := raster.NewMask(size, size)
		for i := range m.Data {
			m.Data[i] = rng.Float64() < p
		}
		return m
	}

	in := Input{
		Bounds:          b,
		ShadowIntensity: 0.2,
		Sidewalk:        random(0.05),
		Building:        random(0.02),
		Street:          random(0.05),
		Vegetation:      random(0.1),
		Amenities:       []geo.Point{b.PixelToGeo(10, 10), b.PixelToGeo(40, 30)},
	}

	res, err := New().Score(in)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	for i := range res.Composite.Data {
		sw, bd, sun, am := res.Sidewalk.Data[i], res.Building.Data[i], res.Sun.Data[i], res.Amenity.Data[i]
		for _, c := range []struct {
			name string
			v    float64
			max  float64
		}{{"sidewalk", sw, SidewalkMax}, {"building", bd, BuildingMax}, {"sun", sun, SunMax}, {"amenity", am, AmenityMax}} {
			if c.v < 0 || c.v > c.max {
				t.Fatalf("pixel %d: %s component %v outside [0,%v]", i, c.name, c.v, c.max)
			}
		}

		excluded := in.Building.Data[i] || in.Street.Data[i] || in.Vegetation.Data[i]
		if excluded {
			if res.Composite.Data[i] != 0 {
				t.Fatalf("pixel %d excluded but composite = %v", i, res.Composite.Data[i])
			}
			if !res.Bands.Excluded.Data[i] {
				t.Fatalf("pixel %d missing from excluded band", i)
			}
			continue
		}
		if sum := sw + bd + sun + am; math.Abs(sum-res.Composite.Data[i]) > 1e-9 {
			t.Fatalf("pixel %d: components sum to %v, composite %v", i, sum, res.Composite.Data[i])
		}
	}

	total := res.Bands.Critical.Count() + res.Bands.High.Count() + res.Bands.Medium.Count() +
		res.Bands.Low.Count() + res.Bands.Excluded.Count()
	if total != size*size {
		t.Errorf("bands cover %d pixels, want %d", total, size*size)
	}
}

func TestScore_AllBuilding(t *testing.T) {
	const size = 40
	b := testBounds(size)

	res, err := New().Score(Input{
		Bounds:   b,
		Building: fullMask(size, size),
		Sidewalk: fullMask(size, size),
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(res.Spots) != 0 {
		t.Errorf("spots = %d, want 0", len(res.Spots))
	}
	if res.Composite.Max() != 0 {
		t.Errorf("max composite = %v, want 0", res.Composite.Max())
	}
}

func TestScore_NoFeaturesIsLowBand(t *testing.T) {
	const size = 30
	res, err := New().Score(Input{Bounds: testBounds(size)})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got := res.Bands.Low.Count(); got != size*size {
		t.Errorf("low band = %d pixels, want %d", got, size*size)
	}
	if len(res.Spots) != 0 {
		t.Errorf("spots = %d, want 0", len(res.Spots))
	}
}

// ringInput places one building pixel at the centre with sidewalk everywhere, so
// the 10-30 m ring around it scores exactly 80. Vegetation covers everything
// except the given 3x3 islands.
func ringInput(size int, islands [][2]int) Input {
	b := testBounds(size)
	building := raster.NewMask(size, size)
	building.Set(size/2, size/2, true)

	veg := fullMask(size, size)
	veg.Set(size/2, size/2, false)
	for _, c := range islands {
		clearRect(veg, c[0]-1, c[1]-1, c[0]+2, c[1]+2)
	}

	return Input{
		Bounds:     b,
		Sidewalk:   fullMask(size, size),
		Building:   building,
		Vegetation: veg,
	}
}

func TestScore_SpotCap(t *testing.T) {
	const size = 200
	c := size / 2
	islands := [][2]int{
		{c + 30, c}, {c - 30, c}, {c, c + 30}, {c, c - 30},
		{c + 21, c + 21}, {c - 21, c - 21}, {c + 21, c - 21}, {c - 21, c + 21},
	}

	s := New()
	res, err := s.Score(ringInput(size, islands))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	if got := len(raster.Components(res.Bands.Critical)); got != len(islands) {
		t.Fatalf("critical components = %d, want %d", got, len(islands))
	}
	if len(res.Spots) != s.MaxSpots {
		t.Fatalf("spots = %d, want %d", len(res.Spots), s.MaxSpots)
	}

	for i, sp := range res.Spots {
		if sp.ID != i+1 {
			t.Errorf("spot %d has id %d", i, sp.ID)
		}
		if sp.AreaPixels != 9 {
			t.Errorf("spot %d area = %d px, want 9", sp.ID, sp.AreaPixels)
		}
		if want := float64(sp.AreaPixels) * geo.GroundResolution * geo.GroundResolution; math.Abs(sp.AreaM2-want) > 1e-9 {
			t.Errorf("spot %d area = %v m2, want %v", sp.ID, sp.AreaM2, want)
		}
		if math.Abs(sp.PriorityScore-80) > 1e-9 {
			t.Errorf("spot %d score = %v, want 80", sp.ID, sp.PriorityScore)
		}
		if i > 0 {
			prev := res.Spots[i-1]
			if prev.PixelY > sp.PixelY || (prev.PixelY == sp.PixelY && prev.PixelX > sp.PixelX) {
				t.Errorf("equal-score spots not ordered by position: %v then %v", prev, sp)
			}
		}
	}

	s.MaxSpots = 2
	res, err = s.Score(ringInput(size, islands))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(res.Spots) != 2 {
		t.Errorf("spots = %d, want 2", len(res.Spots))
	}
}

func TestScore_SpotOrderingByScore(t *testing.T) {
	const size = 200
	c := size / 2
	in := ringInput(size, [][2]int{{c + 30, c}, {c - 30, c}})
	// an amenity over the western island lifts its mean score
	in.Amenities = []geo.Point{in.Bounds.PixelToGeo(float64(c-30), float64(c))}

	res, err := New().Score(in)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(res.Spots) != 2 {
		t.Fatalf("spots = %d, want 2", len(res.Spots))
	}
	first, second := res.Spots[0], res.Spots[1]
	if first.PriorityScore <= second.PriorityScore {
		t.Errorf("spots not sorted by score: %v then %v", first.PriorityScore, second.PriorityScore)
	}
	if math.Abs(first.PixelX-float64(c-30)) > 1e-9 {
		t.Errorf("top spot at x=%v, want %d", first.PixelX, c-30)
	}
	if first.Coordinates.Longitude >= second.Coordinates.Longitude {
		t.Error("western spot should have the smaller longitude")
	}
}

func TestScore_MinSpotPixels(t *testing.T) {
	const size = 200
	c := size / 2
	in := ringInput(size, [][2]int{{c + 30, c}})
	// shrink the island to 2 pixels
	in.Vegetation.Set(c+29, c-1, true)
	in.Vegetation.Set(c+30, c-1, true)
	in.Vegetation.Set(c+31, c-1, true)
	in.Vegetation.Set(c+29, c, true)
	in.Vegetation.Set(c+29, c+1, true)
	in.Vegetation.Set(c+30, c+1, true)
	in.Vegetation.Set(c+31, c+1, true)

	res, err := New().Score(in)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Bands.Critical.Count() != 2 {
		t.Fatalf("critical pixels = %d, want 2", res.Bands.Critical.Count())
	}
	if len(res.Spots) != 0 {
		t.Errorf("spots = %d, want 0", len(res.Spots))
	}
}

func TestScore_Amenity(t *testing.T) {
	const size = 400
	b := testBounds(size)
	p := b.PixelToGeo(200, 200)

	res, err := New().Score(Input{Bounds: b, Amenities: []geo.Point{p, p, p}})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got := res.Amenity.At(200, 200); math.Abs(got-AmenityMax) > 1e-9 {
		t.Errorf("three amenities on a pixel: %v, want %v", got, AmenityMax)
	}
	// 100 m is 166.7 px
	if got := res.Amenity.At(200+167, 200); got != 0 {
		t.Errorf("amenity beyond 100 m: %v, want 0", got)
	}
	mid := res.Amenity.At(200+83, 200)
	if mid <= 0 || mid >= AmenityMax {
		t.Errorf("amenity at ~50 m: %v, want within (0,%v)", mid, AmenityMax)
	}

	single, err := New().Score(Input{Bounds: b, Amenities: []geo.Point{p}})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got := single.Amenity.At(200, 200); math.Abs(got-AmenityMax/3) > 1e-6 {
		t.Errorf("single amenity on a pixel: %v, want %v", got, AmenityMax/3)
	}
}

func TestScore_ShapeMismatch(t *testing.T) {
	b := testBounds(20)
	if _, err := New().Score(Input{Bounds: b, Building: raster.NewMask(10, 20)}); err == nil {
		t.Error("expected error for mismatched building mask")
	}
	if _, err := New().Score(Input{}); err == nil {
		t.Error("expected error for empty grid")
	}
}

func TestScore_PreviewURL(t *testing.T) {
	const size = 200
	c := size / 2
	s := New()
	s.PreviewURLTemplate = "https://maps.example.com/static?center={lat},{lon}&zoom=19"

	res, err := s.Score(ringInput(size, [][2]int{{c + 30, c}}))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(res.Spots) != 1 {
		t.Fatalf("spots = %d, want 1", len(res.Spots))
	}
	url := res.Spots[0].PreviewImageURL
	if strings.Contains(url, "{lat}") || !strings.HasPrefix(url, "https://maps.example.com/static?center=13.75") {
		t.Errorf("PreviewImageURL = %q", url)
	}
}
