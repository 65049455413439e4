package segconv

// Coordinate conversions between absolute image geometry and normalised YOLO coordinates.

import (
	"image"
	"math"
)

// MinContourArea is the area in square pixels a contour must exceed to become a LabelMe polygon.
const MinContourArea = 100

// Mask is a binary segmentation mask. Bits is in row-major order.
type Mask struct {
	Width  int
	Height int
	Bits   []bool
}

// NewMask returns an empty mask of the given size.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Bits: make([]bool, width*height)}
}

// MaskFromImage converts img to a mask. Pixels with non-zero luminance are foreground.
func MaskFromImage(img image.Image) *Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < m.Height; y++ {
			off := gray.PixOffset(b.Min.X, b.Min.Y+y)
			row := gray.Pix[off : off+m.Width]
			for x, v := range row {
				m.Bits[y*m.Width+x] = v != 0
			}
		}
		return m
	}

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			m.Bits[y*m.Width+x] = r|g|bl != 0
		}
	}
	return m
}

// At reports whether (x, y) is foreground. Coordinates outside the mask are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x]
}

// Set sets the pixel at (x, y).
func (m *Mask) Set(x, y int, v bool) {
	m.Bits[y*m.Width+x] = v
}

// Fill sets all pixels of r, clipped to the mask bounds, to foreground.
func (m *Mask) Fill(r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, true)
		}
	}
}

// Empty reports whether the mask has no foreground pixels.
func (m *Mask) Empty() bool {
	if m == nil {
		return true
	}
	for _, v := range m.Bits {
		if v {
			return false
		}
	}
	return true
}

// Point is an integer pixel position.
type Point struct {
	X, Y int
}

// Contour is the ordered boundary of a connected foreground region.
type Contour []Point

// Area is the absolute area enclosed by the contour polygon (shoelace formula).
func (c Contour) Area() float64 {
	if len(c) < 3 {
		return 0
	}
	var sum int
	for i, p := range c {
		q := c[(i+1)%len(c)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return math.Abs(float64(sum)) / 2
}

// BoxToYolo converts the absolute box to normalised center x, center y, width and height for an
// image of the given size. Boxes are not clamped to the image.
func BoxToYolo(width, height int, box Box) [4]float64 {
	w, h := float64(width), float64(height)
	return [4]float64{
		(box[0] + box[2]) / 2.0 / w,
		(box[1] + box[3]) / 2.0 / h,
		(box[2] - box[0]) / w,
		(box[3] - box[1]) / h,
	}
}

// YoloToBox is the inverse of BoxToYolo.
func YoloToBox(width, height int, c [4]float64) Box {
	w, h := float64(width), float64(height)
	cx, cy := c[0]*w, c[1]*h
	bw, bh := c[2]*w, c[3]*h
	return Box{cx - bw/2, cy - bh/2, cx + bw/2, cy + bh/2}
}

// ExtractContours returns the external contours of the mask that enclose more than MinContourArea
// square pixels. Holes are ignored.
func ExtractContours(mask *Mask) []Contour {
	if mask.Empty() {
		return nil
	}
	var contours []Contour
	for _, c := range findExternalContours(mask) {
		if c.Area() > MinContourArea {
			contours = append(contours, c)
		}
	}
	return contours
}

// largestContour returns the external contour with the largest area, the first one on ties.
func largestContour(mask *Mask) (Contour, error) {
	if mask.Empty() {
		return nil, ErrEmptyMask
	}
	contours := findExternalContours(mask)
	if len(contours) == 0 {
		return nil, ErrEmptyMask
	}

	best, bestArea := contours[0], contours[0].Area()
	for _, c := range contours[1:] {
		if a := c.Area(); a > bestArea {
			best, bestArea = c, a
		}
	}
	return best, nil
}

// MaskToYoloPolygon normalises the largest external contour of the mask by the image size and
// flattens it to x0, y0, x1, y1, ...
//
// Returns ErrEmptyMask if the mask has no foreground.
func MaskToYoloPolygon(width, height int, mask *Mask) ([]float64, error) {
	c, err := largestContour(mask)
	if err != nil {
		return nil, err
	}

	w, h := float64(width), float64(height)
	coords := make([]float64, 0, 2*len(c))
	for _, p := range c {
		coords = append(coords, float64(p.X)/w, float64(p.Y)/h)
	}
	return coords, nil
}
