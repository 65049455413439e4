package segconv

// Preview rendering of predictions for a random sample of the dataset.

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"os"

	"github.com/disintegration/imaging"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// previewPalette holds the colors assigned to labels in order of appearance.
var previewPalette = []color.RGBA{
	{230, 25, 75, 255}, {60, 180, 75, 255}, {255, 225, 25, 255}, {0, 130, 200, 255},
	{245, 130, 48, 255}, {145, 30, 180, 255}, {70, 240, 240, 255}, {240, 50, 230, 255},
}

// PreviewOptions controls the layout of a preview.
type PreviewOptions struct {
	TileWidth  int
	TileHeight int
	Columns    int
	Seed       int64 // Selects the sample.
}

// DefaultPreviewOptions returns a 2x2 grid layout for the default sample size.
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{TileWidth: 640, TileHeight: 480, Columns: 2, Seed: 1}
}

// Preview is a rendered sample of predictions.
type Preview struct {
	Image   image.Image
	Samples []string          // The sampled image paths, in grid order.
	Colors  map[string]string // Label to hex color of its outlines.
}

// RenderPreview predicts cfg.PreviewSamples randomly selected images with cfg.Prompt and renders
// them with their boxes and mask contours into a grid. Only files with cfg.PreviewExtensions are
// sampled.
//
// Returns ErrInvalidDirectory if the dataset path is not a directory or has too few images.
func RenderPreview(ctx context.Context, cfg Config, predictor Predictor, opts PreviewOptions) (
		*Preview, error) {

	cfg.applyDefaults()
	if info, err := os.Stat(cfg.DatasetPath); err != nil || !info.IsDir() {
		return nil, errors.Wrapf(ErrInvalidDirectory, "%q is not a directory", cfg.DatasetPath)
	}
	images, err := findImages(cfg.DatasetPath, cfg.PreviewExtensions)
	if err != nil {
		return nil, err
	}
	if len(images) < cfg.PreviewSamples {
		return nil, errors.Wrapf(ErrInvalidDirectory, "found %d images in %q, need at least %d",
			len(images), cfg.DatasetPath, cfg.PreviewSamples)
	}
	d := DefaultPreviewOptions()
	if opts.Columns <= 0 {
		opts.Columns = d.Columns
	}
	if opts.TileWidth <= 0 || opts.TileHeight <= 0 {
		opts.TileWidth, opts.TileHeight = d.TileWidth, d.TileHeight
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	perm := rng.Perm(len(images))[:cfg.PreviewSamples]

	preview := &Preview{Colors: make(map[string]string)}
	labelColors := make(map[string]color.RGBA)
	colorFor := func(label string) color.RGBA {
		c, ok := labelColors[label]
		if !ok {
			c = previewPalette[len(labelColors)%len(previewPalette)]
			labelColors[label] = c
			preview.Colors[label] = hexColor(c)
		}
		return c
	}

	rows := (len(perm) + opts.Columns - 1) / opts.Columns
	grid := imaging.New(opts.Columns*opts.TileWidth, rows*opts.TileHeight, color.Black)
	for i, idx := range perm {
		path := images[idx]
		img, err := loadImage(path)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot decode image %q", path)
		}
		results, err := predictor.Predict(ctx, []image.Image{img}, []string{cfg.Prompt})
		if err == nil && len(results) != 1 {
			err = errors.Errorf("predictor returned %d results for 1 image", len(results))
		}
		if err != nil {
			return nil, &PredictionError{Path: path, Err: err}
		}

		annotated := annotate(img, results[0], colorFor)
		tile := imaging.Fit(annotated, opts.TileWidth, opts.TileHeight, imaging.Lanczos)
		grid = imaging.Paste(grid, tile,
			image.Pt((i%opts.Columns)*opts.TileWidth, (i/opts.Columns)*opts.TileHeight))
		preview.Samples = append(preview.Samples, path)
	}

	preview.Image = grid
	for label, c := range preview.Colors {
		log.Printf("Preview label %q is drawn in %s", label, c)
	}
	return preview, nil
}

// annotate draws the boxes and the outlines of the mask contours of result onto a copy of img.
func annotate(img image.Image, result PredictionResult, colorFor func(string) color.RGBA) image.Image {
	rgba := cloneRGBA(img)
	gc := draw2dimg.NewGraphicContext(rgba)
	lineWidth := float64(rgba.Bounds().Dx()) / 300
	if lineWidth < 2 {
		lineWidth = 2
	}
	gc.SetLineWidth(lineWidth)

	for _, d := range result.Detections {
		c := colorFor(d.Label)
		fill := color.RGBA{c.R / 3, c.G / 3, c.B / 3, 85} // Premultiplied.
		gc.SetStrokeColor(c)
		gc.SetFillColor(fill)

		for _, contour := range ExtractContours(d.Mask) {
			gc.MoveTo(float64(contour[0].X), float64(contour[0].Y))
			for _, p := range contour[1:] {
				gc.LineTo(float64(p.X), float64(p.Y))
			}
			gc.Close()
			gc.FillStroke()
		}

		if d.Box != nil {
			draw2dkit.Rectangle(gc, d.Box[0], d.Box[1], d.Box[2], d.Box[3])
			gc.Stroke()
		}
	}
	return rgba
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// SavePreview writes the preview image to path. The format follows the file extension.
func SavePreview(path string, p *Preview) error {
	if err := imaging.Save(p.Image, path); err != nil {
		return errors.Wrapf(err, "cannot save preview %q", path)
	}
	return nil
}
