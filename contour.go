//go:build !gocv

package segconv

// Border following for external contours of binary masks.

// The 8-neighbourhood in chain code order. Increasing indices turn counter-clockwise on screen.
var chainDirections = [8]Point{
	{1, 0}, {1, -1}, {0, -1}, {-1, -1}, {-1, 0}, {-1, 1}, {0, 1}, {1, 1},
}

// The 4-neighbourhood, used for background connectivity.
var crossDirections = [4]Point{{1, 0}, {0, -1}, {-1, 0}, {0, 1}}

// findExternalContours returns the simplified outer border of every 8-connected foreground region
// that does not lie inside a hole of another region, in raster order of the regions' top-most,
// left-most pixels.
func findExternalContours(m *Mask) []Contour {
	w, h := m.Width, m.Height
	outside := outerBackground(m)
	labelled := make([]bool, w*h)

	var contours []Contour
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !m.Bits[i] || labelled[i] {
				continue
			}
			labelRegion(m, labelled, Point{x, y})

			// The left neighbour of the first pixel of a region belongs to the background that
			// surrounds it. Regions surrounded by an enclosed hole are not external.
			if x > 0 && !outside[i-1] {
				continue
			}
			contours = append(contours, simplifyChain(traceBorder(m, Point{x, y})))
		}
	}
	return contours
}

// outerBackground marks all background pixels that are 4-connected to the image border.
func outerBackground(m *Mask) []bool {
	w, h := m.Width, m.Height
	outside := make([]bool, w*h)
	queue := make([]Point, 0, 2*(w+h))

	push := func(x, y int) {
		i := y*w + x
		if m.Bits[i] || outside[i] {
			return
		}
		outside[i] = true
		queue = append(queue, Point{x, y})
	}
	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(queue) > 0 {
		p := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, d := range crossDirections {
			x, y := p.X+d.X, p.Y+d.Y
			if x >= 0 && y >= 0 && x < w && y < h {
				push(x, y)
			}
		}
	}
	return outside
}

// labelRegion marks the 8-connected foreground region containing start.
func labelRegion(m *Mask, labelled []bool, start Point) {
	w := m.Width
	labelled[start.Y*w+start.X] = true
	stack := []Point{start}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range chainDirections {
			x, y := p.X+d.X, p.Y+d.Y
			if !m.At(x, y) || labelled[y*w+x] {
				continue
			}
			labelled[y*w+x] = true
			stack = append(stack, Point{x, y})
		}
	}
}

// chainPoint is a border pixel together with the direction of the step to the next pixel.
type chainPoint struct {
	Point
	dir int
}

// traceBorder follows the outer border of the region whose top-most, left-most pixel is start
// (Suzuki & Abe border following). The first step goes down the left side of the region.
func traceBorder(m *Mask, start Point) []chainPoint {
	step := func(p Point, d int) Point {
		return Point{p.X + chainDirections[d].X, p.Y + chainDirections[d].Y}
	}

	// Search clockwise from the west neighbour for the first foreground pixel.
	first := -1
	for i := 0; i < 8; i++ {
		d := (12 - i) % 8
		if n := step(start, d); m.At(n.X, n.Y) {
			first = d
			break
		}
	}
	if first < 0 {
		return []chainPoint{{Point: start, dir: -1}}
	}
	firstNeighbour := step(start, first)

	var chain []chainPoint
	cur, from := start, first
	for {
		// Search counter-clockwise, starting after the pixel we came from.
		d := from
		var next Point
		for k := 1; k <= 8; k++ {
			d = (from + k) % 8
			if next = step(cur, d); m.At(next.X, next.Y) {
				break
			}
		}
		chain = append(chain, chainPoint{Point: cur, dir: d})

		if next == start && cur == firstNeighbour {
			return chain
		}
		cur, from = next, (d+4)%8
	}
}

// simplifyChain keeps the start point and the end points of straight horizontal, vertical and
// diagonal runs.
func simplifyChain(chain []chainPoint) Contour {
	c := Contour{chain[0].Point}
	for i := 1; i < len(chain); i++ {
		if chain[i].dir != chain[i-1].dir {
			c = append(c, chain[i].Point)
		}
	}
	return c
}
