package segconv

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maskWith(width, height int, rects ...image.Rectangle) *Mask {
	m := NewMask(width, height)
	for _, r := range rects {
		m.Fill(r)
	}
	return m
}

func clearRect(m *Mask, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, false)
		}
	}
}

func TestBoxToYolo(t *testing.T) {
	c := BoxToYolo(100, 200, Box{10, 20, 50, 100})
	assert.InDeltaSlice(t, []float64{0.3, 0.3, 0.4, 0.4}, c[:], 1e-12)

	// The whole image.
	c = BoxToYolo(640, 480, Box{0, 0, 640, 480})
	assert.Equal(t, [4]float64{0.5, 0.5, 1, 1}, c)

	// Boxes reaching outside the image are not clamped.
	c = BoxToYolo(100, 100, Box{-10, 0, 10, 20})
	assert.InDeltaSlice(t, []float64{0, 0.1, 0.2, 0.2}, c[:], 1e-12)
}

func TestYoloToBoxInvertsBoxToYolo(t *testing.T) {
	for _, b := range []Box{{10, 20, 50, 100}, {0, 0, 1, 1}, {33.5, 7.25, 80, 99.75}} {
		got := YoloToBox(123, 457, BoxToYolo(123, 457, b))
		assert.InDeltaSlice(t, b[:], got[:], 1e-9)
	}
}

func TestContourArea(t *testing.T) {
	assert.Equal(t, 0.0, Contour{}.Area())
	assert.Equal(t, 0.0, Contour{{0, 0}, {5, 5}}.Area())
	assert.Equal(t, 12.0, Contour{{0, 0}, {0, 3}, {4, 3}, {4, 0}}.Area())
	// Orientation does not matter.
	assert.Equal(t, 12.0, Contour{{0, 0}, {4, 0}, {4, 3}, {0, 3}}.Area())
}

func TestMaskFromImage(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 8, 6))
	gray.SetGray(3, 2, color.Gray{Y: 255})
	gray.SetGray(7, 5, color.Gray{Y: 1})

	m := MaskFromImage(gray)
	require.Equal(t, 8, m.Width)
	require.Equal(t, 6, m.Height)
	assert.True(t, m.At(3, 2))
	assert.True(t, m.At(7, 5))
	assert.False(t, m.At(0, 0))
	assert.False(t, m.At(-1, 2))
	assert.False(t, m.At(8, 2))

	// Sub-images start at their bounds' origin.
	sub := gray.SubImage(image.Rect(2, 1, 5, 4)).(*image.Gray)
	m = MaskFromImage(sub)
	require.Equal(t, 3, m.Width)
	assert.True(t, m.At(1, 1))
	assert.False(t, m.At(0, 0))

	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	rgba.Set(1, 2, color.RGBA{0, 0, 9, 255})
	rgba.Set(2, 2, color.RGBA{0, 0, 0, 255})
	m = MaskFromImage(rgba)
	assert.True(t, m.At(1, 2))
	assert.False(t, m.At(2, 2))
}

func TestMaskEmpty(t *testing.T) {
	var nilMask *Mask
	assert.True(t, nilMask.Empty())
	assert.True(t, NewMask(4, 4).Empty())
	assert.False(t, maskWith(4, 4, image.Rect(1, 1, 2, 2)).Empty())
}

func TestFindExternalContoursRectangle(t *testing.T) {
	m := maskWith(16, 12, image.Rect(2, 3, 12, 8))

	contours := findExternalContours(m)
	require.Len(t, contours, 1)
	// Down the left side first.
	assert.Equal(t, Contour{{2, 3}, {2, 7}, {11, 7}, {11, 3}}, contours[0])
	assert.Equal(t, 36.0, contours[0].Area())
}

func TestFindExternalContoursSinglePixel(t *testing.T) {
	m := maskWith(5, 5, image.Rect(2, 2, 3, 3))

	contours := findExternalContours(m)
	require.Len(t, contours, 1)
	assert.Equal(t, Contour{{2, 2}}, contours[0])
}

func TestFindExternalContoursLine(t *testing.T) {
	m := maskWith(10, 3, image.Rect(1, 1, 8, 2))

	contours := findExternalContours(m)
	require.Len(t, contours, 1)
	assert.Equal(t, Contour{{1, 1}, {7, 1}}, contours[0])
}

func TestFindExternalContoursIgnoresHolesAndNestedRegions(t *testing.T) {
	m := maskWith(40, 40, image.Rect(5, 5, 35, 35))
	clearRect(m, image.Rect(10, 10, 30, 30))
	// An island inside the hole.
	m.Fill(image.Rect(15, 15, 25, 25))

	contours := findExternalContours(m)
	require.Len(t, contours, 1)
	assert.Equal(t, Contour{{5, 5}, {5, 34}, {34, 34}, {34, 5}}, contours[0])
}

func TestFindExternalContoursDiagonalNeighboursConnect(t *testing.T) {
	m := NewMask(6, 6)
	m.Set(1, 1, true)
	m.Set(2, 2, true)
	m.Set(3, 3, true)

	contours := findExternalContours(m)
	require.Len(t, contours, 1)
	assert.Equal(t, Contour{{1, 1}, {3, 3}}, contours[0])
}

func TestFindExternalContoursRasterOrder(t *testing.T) {
	m := maskWith(64, 64, image.Rect(30, 2, 40, 12), image.Rect(2, 20, 12, 30))

	contours := findExternalContours(m)
	require.Len(t, contours, 2)
	assert.Equal(t, Point{30, 2}, contours[0][0])
	assert.Equal(t, Point{2, 20}, contours[1][0])
}

func TestExtractContoursAreaThreshold(t *testing.T) {
	// An 11x11 pixel square encloses exactly MinContourArea and is dropped.
	m := maskWith(64, 64, image.Rect(0, 0, 11, 11), image.Rect(30, 30, 42, 42))

	contours := ExtractContours(m)
	require.Len(t, contours, 1)
	assert.Equal(t, 121.0, contours[0].Area())
	assert.Equal(t, Point{30, 30}, contours[0][0])

	assert.Empty(t, ExtractContours(nil))
	assert.Empty(t, ExtractContours(NewMask(8, 8)))
}

func TestMaskToYoloPolygonUsesLargestRegion(t *testing.T) {
	m := maskWith(64, 64, image.Rect(0, 0, 20, 20), image.Rect(30, 30, 60, 60))

	coords, err := MaskToYoloPolygon(64, 64, m)
	require.NoError(t, err)
	assert.Equal(t, []float64{
		30.0 / 64, 30.0 / 64,
		30.0 / 64, 59.0 / 64,
		59.0 / 64, 59.0 / 64,
		59.0 / 64, 30.0 / 64,
	}, coords)
}

func TestMaskToYoloPolygonTieKeepsFirst(t *testing.T) {
	m := maskWith(64, 64, image.Rect(40, 0, 50, 10), image.Rect(0, 20, 10, 30))

	coords, err := MaskToYoloPolygon(64, 64, m)
	require.NoError(t, err)
	assert.Equal(t, 40.0/64, coords[0])
	assert.Equal(t, 0.0, coords[1])
}

func TestMaskToYoloPolygonSmallRegion(t *testing.T) {
	// No minimum area applies to the YOLO polygon.
	m := maskWith(10, 10, image.Rect(2, 2, 4, 4))

	coords, err := MaskToYoloPolygon(10, 10, m)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.2, 0.2, 0.3, 0.3, 0.3, 0.3, 0.2}, coords)
}

func TestMaskToYoloPolygonEmptyMask(t *testing.T) {
	_, err := MaskToYoloPolygon(10, 10, NewMask(10, 10))
	assert.ErrorIs(t, err, ErrEmptyMask)

	_, err = MaskToYoloPolygon(10, 10, nil)
	assert.ErrorIs(t, err, ErrEmptyMask)
}
