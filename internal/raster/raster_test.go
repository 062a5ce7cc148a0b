package raster

import (
	"math"
	"testing"
)

func TestDistanceTransform_SinglePixel(t *testing.T) {
	m := NewMask(9, 7)
	m.Set(4, 3, true)

	d := DistanceTransform(m)
	for y := 0; y < 7; y++ {
		for x := 0; x < 9; x++ {
			want := math.Hypot(float64(x-4), float64(y-3))
			if got := d.At(x, y); math.Abs(got-want) > 1e-9 {
				t.Fatalf("d(%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestDistanceTransform_MatchesBruteForce(t *testing.T) {
	m := NewMask(20, 15)
	seeds := [][2]int{{0, 0}, {19, 14}, {7, 3}, {12, 10}, {3, 12}}
	for _, s := range seeds {
		m.Set(s[0], s[1], true)
	}

	d := DistanceTransform(m)
	for y := 0; y < 15; y++ {
		for x := 0; x < 20; x++ {
			want := math.Inf(1)
			for _, s := range seeds {
				want = math.Min(want, math.Hypot(float64(x-s[0]), float64(y-s[1])))
			}
			if got := d.At(x, y); math.Abs(got-want) > 1e-9 {
				t.Fatalf("d(%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestDistanceTransform_Empty(t *testing.T) {
	d := DistanceTransform(NewMask(4, 4))
	for i, v := range d.Data {
		if !math.IsInf(v, 1) {
			t.Fatalf("d[%d] = %v, want +Inf", i, v)
		}
	}
}

func TestDilate(t *testing.T) {
	m := NewMask(21, 21)
	m.Set(10, 10, true)

	got := Dilate(m, 3)
	if !got.At(13, 10) || !got.At(10, 7) {
		t.Error("pixels at radius 3 should be set")
	}
	if got.At(14, 10) {
		t.Error("pixel at distance 4 should not be set")
	}
	if got.At(13, 13) {
		t.Error("diagonal pixel at distance 4.24 should not be set")
	}
	if m.Count() != 1 {
		t.Error("Dilate mutated its input")
	}

	same := Dilate(m, 0)
	if same.Count() != 1 {
		t.Errorf("Dilate(0).Count() = %d, want 1", same.Count())
	}
}

func TestComponents(t *testing.T) {
	m := NewMask(10, 6)
	// 2x2 block
	for _, p := range [][2]int{{1, 1}, {2, 1}, {1, 2}, {2, 2}} {
		m.Set(p[0], p[1], true)
	}
	// diagonal chain is one component under 8-connectivity
	for _, p := range [][2]int{{6, 0}, {7, 1}, {8, 2}} {
		m.Set(p[0], p[1], true)
	}
	m.Set(9, 5, true)

	comps := Components(m)
	if len(comps) != 3 {
		t.Fatalf("len(Components) = %d, want 3", len(comps))
	}
	// scan order: the chain starts on row 0, the block on row 1
	if comps[0].Pixels != 3 || comps[0].CX != 7 || comps[0].CY != 1 {
		t.Errorf("chain = %d pixels at (%v,%v), want 3 at (7,1)", comps[0].Pixels, comps[0].CX, comps[0].CY)
	}
	if comps[1].Pixels != 4 || comps[1].CX != 1.5 || comps[1].CY != 1.5 {
		t.Errorf("block = %d pixels at (%v,%v), want 4 at (1.5,1.5)", comps[1].Pixels, comps[1].CX, comps[1].CY)
	}
	if comps[2].Pixels != 1 {
		t.Errorf("single = %d pixels, want 1", comps[2].Pixels)
	}
}

func TestUnion(t *testing.T) {
	a := NewMask(3, 3)
	a.Set(0, 0, true)
	b := NewMask(3, 3)
	b.Set(2, 2, true)

	u, err := Union(3, 3, a, nil, b)
	if err != nil {
		t.Fatalf("Union: %v", err)
	}
	if u.Count() != 2 {
		t.Errorf("Count = %d, want 2", u.Count())
	}

	if _, err := Union(3, 3, NewMask(2, 3)); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestMask_Crop(t *testing.T) {
	m := NewMask(6, 6)
	m.Set(3, 3, true)
	c := m.Crop(2, 2, 3, 3)
	if !c.At(1, 1) || c.Count() != 1 {
		t.Errorf("crop lost pixel: count=%d", c.Count())
	}
}

func TestGrid_MeanWhere(t *testing.T) {
	g := NewGrid(2, 2)
	g.Data = []float64{10, 20, 30, 40}
	m := NewMask(2, 2)
	m.Data = []bool{true, false, false, true}

	mean, n := g.MeanWhere(m)
	if n != 2 || mean != 25 {
		t.Errorf("MeanWhere = (%v, %d), want (25, 2)", mean, n)
	}
	if g.Max() != 40 {
		t.Errorf("Max = %v, want 40", g.Max())
	}
}
