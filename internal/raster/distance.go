package raster

import "math"

// far stands in for infinity inside the transform so the parabola intersection
// arithmetic stays finite.
const far = 1e20

// DistanceTransform returns, for every pixel, the Euclidean distance in pixels to
// the nearest set pixel of m. If m has no set pixels every cell is +Inf.
//
// Uses the separable lower-envelope algorithm of Felzenszwalb and Huttenlocher,
// linear in the number of pixels.
func DistanceTransform(m *Mask) *Grid {
	w, h := m.Width, m.Height
	out := NewGrid(w, h)
	if m.Empty() {
		out.Fill(math.Inf(1))
		return out
	}

	n := w
	if h > n {
		n = h
	}
	f := make([]float64, n)
	d := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	for i, set := range m.Data {
		if set {
			out.Data[i] = 0
		} else {
			out.Data[i] = far
		}
	}

	// columns
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			f[y] = out.Data[y*w+x]
		}
		squaredEnvelope(f[:h], d[:h], v, z)
		for y := 0; y < h; y++ {
			out.Data[y*w+x] = d[y]
		}
	}

	// rows
	for y := 0; y < h; y++ {
		row := out.Data[y*w : (y+1)*w]
		copy(f[:w], row)
		squaredEnvelope(f[:w], d[:w], v, z)
		for x := 0; x < w; x++ {
			row[x] = math.Sqrt(d[x])
		}
	}
	return out
}

// squaredEnvelope computes the 1-D squared distance transform of f into d.
func squaredEnvelope(f, d []float64, v []int, z []float64) {
	n := len(f)
	if n == 0 {
		return
	}
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		s := intersect(f, q, v[k])
		for s <= z[k] {
			k--
			s = intersect(f, q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}
	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}

func intersect(f []float64, q, p int) float64 {
	fq, fp := float64(q), float64(p)
	return ((f[q] + fq*fq) - (f[p] + fp*fp)) / (2*fq - 2*fp)
}

// Dilate returns m grown isotropically by radius pixels. A non-positive radius
// returns a copy.
func Dilate(m *Mask, radius float64) *Mask {
	if radius <= 0 || m.Empty() {
		return m.Clone()
	}
	dist := DistanceTransform(m)
	out := NewMask(m.Width, m.Height)
	for i, d := range dist.Data {
		out.Data[i] = d <= radius
	}
	return out
}
