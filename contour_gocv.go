//go:build gocv

package segconv

// OpenCV backed contour extraction, enabled with the gocv build tag.

import (
	"gocv.io/x/gocv"
)

// findExternalContours runs cv::findContours with RETR_EXTERNAL and CHAIN_APPROX_SIMPLE on the
// mask.
func findExternalContours(m *Mask) []Contour {
	mat := gocv.NewMatWithSize(m.Height, m.Width, gocv.MatTypeCV8U)
	defer mat.Close()

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Bits[y*m.Width+x] {
				mat.SetUCharAt(y, x, 255)
			} else {
				mat.SetUCharAt(y, x, 0)
			}
		}
	}

	found := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)

	// OpenCV reports the regions last-found first.
	contours := make([]Contour, 0, len(found))
	for i := len(found) - 1; i >= 0; i-- {
		c := make(Contour, len(found[i]))
		for j, p := range found[i] {
			c[j] = Point{p.X, p.Y}
		}
		contours = append(contours, c)
	}
	return contours
}
