package mask

import (
	"math"
	"testing"

	"github.com/lox/releaf/internal/geo"
)

const testSize = 100

func testBounds() geo.Bounds {
	return geo.NewBounds(13.7563, 100.5018, testSize, testSize)
}

// px returns the coordinate at continuous pixel position (x, y).
func px(b geo.Bounds, x, y float64) geo.Point {
	return b.PixelToGeo(x-0.5, y-0.5)
}

func square(b geo.Bounds, x0, y0, x1, y1 float64) []geo.Point {
	return []geo.Point{px(b, x0, y0), px(b, x1, y0), px(b, x1, y1), px(b, x0, y1)}
}

func polygon(rings ...[]geo.Point) geo.Feature {
	return geo.Feature{Type: geo.TypePolygon, Parts: rings}
}

func line(tier geo.TrafficTier, pts ...geo.Point) geo.Feature {
	return geo.Feature{Type: geo.TypeLineString, Parts: [][]geo.Point{pts}, Tier: tier}
}

func point(p geo.Point) geo.Feature {
	return geo.Feature{Type: geo.TypePoint, Parts: [][]geo.Point{{p}}}
}

func TestRasterize_Polygon(t *testing.T) {
	b := testBounds()
	r := New(geo.GroundResolution)

	sq := square(b, 10, 10, 20, 20)
	reversed := []geo.Point{sq[3], sq[2], sq[1], sq[0]}

	tests := []struct {
		name string
		c    geo.Collection
		want int
	}{
		{"square", geo.Collection{polygon(sq)}, 100},
		{"reversed winding", geo.Collection{polygon(reversed)}, 100},
		{"with hole", geo.Collection{polygon(square(b, 10, 10, 30, 30), square(b, 15, 15, 25, 25))}, 300},
		{"overlapping squares union", geo.Collection{polygon(square(b, 10, 10, 20, 20)), polygon(square(b, 15, 10, 25, 20))}, 150},
		{"partly outside image", geo.Collection{polygon(square(b, -10, -10, 5, 5))}, 25},
		{"entirely outside image", geo.Collection{polygon(square(b, 200, 200, 220, 220))}, 0},
	}

	for _, tt := range tests {
		m := r.Rasterize(tt.c, testSize, testSize, b, 0)
		if got := m.Count(); got != tt.want {
			t.Errorf("%s: count = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRasterize_PolygonPixels(t *testing.T) {
	b := testBounds()
	m := New(geo.GroundResolution).Rasterize(geo.Collection{polygon(square(b, 10, 10, 20, 20))}, testSize, testSize, b, 0)

	for _, p := range [][2]int{{10, 10}, {19, 19}, {15, 12}} {
		if !m.At(p[0], p[1]) {
			t.Errorf("pixel %v should be inside", p)
		}
	}
	for _, p := range [][2]int{{9, 10}, {20, 20}, {15, 9}} {
		if m.At(p[0], p[1]) {
			t.Errorf("pixel %v should be outside", p)
		}
	}
}

func TestRasterize_Line(t *testing.T) {
	b := testBounds()
	c := geo.Collection{line(geo.TierLow, px(b, 5.5, 40.5), px(b, 30.5, 40.5))}

	m := New(geo.GroundResolution).Rasterize(c, testSize, testSize, b, 0)
	if got := m.Count(); got != 26 {
		t.Errorf("count = %d, want 26", got)
	}
	if !m.At(5, 40) || !m.At(30, 40) || m.At(31, 40) || m.At(5, 41) {
		t.Error("line pixels misplaced")
	}
}

func TestRasterize_LineWithDistantVertex(t *testing.T) {
	b := testBounds()
	start := px(b, 10.5, 40.5)
	// roughly fourteen million pixels east of the image
	far := geo.Point{Lon: 179, Lat: start.Lat}

	m := New(geo.GroundResolution).Rasterize(geo.Collection{line(geo.TierLow, start, far)}, testSize, testSize, b, 0)
	if got := m.Count(); got != 90 {
		t.Errorf("count = %d, want 90", got)
	}
	if !m.At(10, 40) || !m.At(99, 40) || m.At(9, 40) {
		t.Error("clipped line pixels misplaced")
	}
}

func TestRasterize_Buffer(t *testing.T) {
	b := testBounds()
	r := New(geo.GroundResolution)

	// 3 m is exactly 5 px at 0.6 m/px
	m := r.Rasterize(geo.Collection{point(px(b, 50.5, 50.5))}, testSize, testSize, b, 3)

	tests := []struct {
		x, y int
		want bool
	}{
		{50, 50, true},
		{55, 50, true},
		{54, 53, true},
		{56, 50, false},
		{54, 54, false},
	}
	for _, tt := range tests {
		if got := m.At(tt.x, tt.y); got != tt.want {
			t.Errorf("At(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestRasterize_BufferReachesInFromOutside(t *testing.T) {
	b := testBounds()
	// a point two pixels west of the image edge
	m := New(geo.GroundResolution).Rasterize(geo.Collection{point(px(b, -1.5, 50.5))}, testSize, testSize, b, 3)

	if !m.At(0, 50) || !m.At(3, 50) {
		t.Error("buffer should reach into the image")
	}
	if m.At(4, 50) {
		t.Error("buffer reached too far")
	}
}

func TestRasterize_EmptyAndMalformed(t *testing.T) {
	b := testBounds()
	r := New(geo.GroundResolution)

	if got := r.Rasterize(nil, testSize, testSize, b, 10).Count(); got != 0 {
		t.Errorf("empty collection: count = %d, want 0", got)
	}

	bad := geo.Feature{Type: geo.TypePolygon, Parts: [][]geo.Point{{{Lon: math.NaN(), Lat: 1}, {Lon: 2, Lat: 2}, {Lon: 3, Lat: 1}}}}
	noParts := geo.Feature{Type: geo.TypeLineString}
	good := polygon(square(b, 10, 10, 20, 20))

	m := r.Rasterize(geo.Collection{bad, noParts, good}, testSize, testSize, b, 0)
	if got := m.Count(); got != 100 {
		t.Errorf("malformed features should be skipped: count = %d, want 100", got)
	}

	if got := r.Rasterize(geo.Collection{good}, testSize, testSize, geo.Bounds{}, 0).Count(); got != 0 {
		t.Errorf("zero bounds: count = %d, want 0", got)
	}
}

func TestRasterize_DegeneratePolygonBurnsAsLine(t *testing.T) {
	b := testBounds()
	f := polygon([]geo.Point{px(b, 10.5, 10.5), px(b, 20.5, 10.5)})

	m := New(geo.GroundResolution).Rasterize(geo.Collection{f}, testSize, testSize, b, 0)
	if got := m.Count(); got != 11 {
		t.Errorf("count = %d, want 11", got)
	}
}

func TestStreetMask_TierBuffers(t *testing.T) {
	b := testBounds()
	streets := geo.Collection{line(geo.TierHigh, px(b, -20, 50.5), px(b, 120, 50.5))}

	m := New(geo.GroundResolution).StreetMask(streets, testSize, testSize, b)

	// 25 m is 41.67 px
	if !m.At(50, 50+41) {
		t.Error("41 px from a high traffic street should be masked")
	}
	if m.At(50, 50+42) {
		t.Error("42 px from a high traffic street should not be masked")
	}
}

func TestStreetMask_UnionOfTiers(t *testing.T) {
	b := testBounds()
	streets := geo.Collection{
		line(geo.TierPedestrian, px(b, -20, 10.5), px(b, 120, 10.5)),
		line(geo.TierMedium, px(b, -20, 80.5), px(b, 120, 80.5)),
	}

	m := New(geo.GroundResolution).StreetMask(streets, testSize, testSize, b)

	// pedestrian: 5 m is 8.33 px
	if !m.At(30, 18) || m.At(30, 19) {
		t.Error("pedestrian buffer misplaced")
	}
	// medium: 15 m is 25 px
	if !m.At(30, 55) || m.At(30, 54) {
		t.Error("medium buffer misplaced")
	}
}

func TestSidewalkMask(t *testing.T) {
	b := testBounds()
	r := New(geo.GroundResolution)

	highOnly := geo.Collection{line(geo.TierHigh, px(b, -20, 50.5), px(b, 120, 50.5))}
	if got := r.SidewalkMask(highOnly, testSize, testSize, b, SidewalkBuffer).Count(); got != 0 {
		t.Errorf("high traffic streets are not sidewalks: count = %d", got)
	}

	mixed := geo.Collection{
		line(geo.TierLow, px(b, -20, 50.5), px(b, 120, 50.5)),
		line(geo.TierHigh, px(b, -20, 10.5), px(b, 120, 10.5)),
	}
	m := r.SidewalkMask(mixed, testSize, testSize, b, SidewalkBuffer)
	if !m.At(0, 58) || m.At(0, 59) {
		t.Error("low traffic sidewalk buffer misplaced")
	}
	if m.At(50, 10) {
		t.Error("high traffic street leaked into sidewalk mask")
	}
}

func TestBuildingMask_NoBuffer(t *testing.T) {
	b := testBounds()
	m := New(geo.GroundResolution).BuildingMask(geo.Collection{polygon(square(b, 40, 40, 60, 60))}, testSize, testSize, b)
	if got := m.Count(); got != 400 {
		t.Errorf("count = %d, want 400", got)
	}
}
