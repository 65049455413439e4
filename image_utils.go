package segconv

import (
	"bytes"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// loadImage reads and decodes the image at path. The EXIF orientation is not applied, so the
// image has the pixel size stored in the file.
func loadImage(path string) (image.Image, error) {
	return imaging.Open(path)
}

// cloneRGBA returns a copy of img as an *image.RGBA with its origin at (0, 0).
func cloneRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// encodeJPEG encodes img as JPEG with the given quality.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeMask decodes an encoded (typically PNG) mask image.
func decodeMask(enc []byte) (*Mask, error) {
	img, err := imaging.Decode(bytes.NewReader(enc))
	if err != nil {
		return nil, err
	}
	return MaskFromImage(img), nil
}
