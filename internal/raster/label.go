package raster

// Component is one 8-connected region of a mask.
type Component struct {
	Label  int
	Pixels int
	// Centroid in pixel index space (mean column and row).
	CX, CY float64
	// Members holds flat pixel indices (y*width + x).
	Members []int
}

// Components labels the 8-connected regions of m in scan order.
func Components(m *Mask) []Component {
	w, h := m.Width, m.Height
	labels := make([]int, w*h)
	var comps []Component
	queue := make([]int, 0, 64)

	for start, set := range m.Data {
		if !set || labels[start] != 0 {
			continue
		}
		label := len(comps) + 1
		labels[start] = label
		queue = append(queue[:0], start)
		comp := Component{Label: label}
		var sx, sy float64

		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := i%w, i/w
			comp.Members = append(comp.Members, i)
			sx += float64(x)
			sy += float64(y)

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if (dx == 0 && dy == 0) || nx < 0 || nx >= w {
						continue
					}
					j := ny*w + nx
					if m.Data[j] && labels[j] == 0 {
						labels[j] = label
						queue = append(queue, j)
					}
				}
			}
		}

		comp.Pixels = len(comp.Members)
		comp.CX = sx / float64(comp.Pixels)
		comp.CY = sy / float64(comp.Pixels)
		comps = append(comps, comp)
	}
	return comps
}
