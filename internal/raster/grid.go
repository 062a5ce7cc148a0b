package raster

// Grid is a floating point layer on the raster's pixel grid.
type Grid struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Data   []float64 `json:"data"`
}

// NewGrid returns a zeroed width×height grid.
func NewGrid(width, height int) *Grid {
	return &Grid{Width: width, Height: height, Data: make([]float64, width*height)}
}

func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v float64) {
	g.Data[y*g.Width+x] = v
}

// Fill sets every cell to v.
func (g *Grid) Fill(v float64) {
	for i := range g.Data {
		g.Data[i] = v
	}
}

// Max returns the largest value, or 0 for an empty grid.
func (g *Grid) Max() float64 {
	if len(g.Data) == 0 {
		return 0
	}
	max := g.Data[0]
	for _, v := range g.Data[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// MeanWhere returns the mean over pixels set in m, and the number of such pixels.
func (g *Grid) MeanWhere(m *Mask) (float64, int) {
	var sum float64
	n := 0
	for i, v := range m.Data {
		if v {
			sum += g.Data[i]
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
