package raster

import "fmt"

// Mask is a boolean layer co-registered with a raster's pixel grid.
type Mask struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []bool `json:"data"`
}

// NewMask returns an all-false width×height mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Data: make([]bool, width*height)}
}

func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Data[y*m.Width+x]
}

func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Data[y*m.Width+x] = v
}

// Count returns the number of true pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Empty reports whether no pixel is set. A nil mask is empty.
func (m *Mask) Empty() bool {
	return m == nil || m.Count() == 0
}

func (m *Mask) Clone() *Mask {
	return &Mask{Width: m.Width, Height: m.Height, Data: append([]bool(nil), m.Data...)}
}

// Union returns a new mask set wherever any input is set. Nil inputs are skipped.
func Union(width, height int, masks ...*Mask) (*Mask, error) {
	out := NewMask(width, height)
	for _, m := range masks {
		if m == nil {
			continue
		}
		if m.Width != width || m.Height != height {
			return nil, fmt.Errorf("union: mask is %dx%d, want %dx%d", m.Width, m.Height, width, height)
		}
		for i, v := range m.Data {
			if v {
				out.Data[i] = true
			}
		}
	}
	return out, nil
}

// Crop returns the w×h window starting at (x0, y0).
func (m *Mask) Crop(x0, y0, w, h int) *Mask {
	out := NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Data[y*w+x] = m.At(x0+x, y0+y)
		}
	}
	return out
}

// SameShape reports whether m matches the given dimensions.
func (m *Mask) SameShape(width, height int) bool {
	return m != nil && m.Width == width && m.Height == height
}
