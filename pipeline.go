package segconv

// The dataset conversion pass.

import (
	"context"
	"image"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ImageStatus is the outcome of converting a single image.
type ImageStatus string

// Image outcomes.
const (
	StatusConverted ImageStatus = "converted" // At least one detection.
	StatusEmpty     ImageStatus = "empty"     // Nothing detected, the label file is empty.
	StatusFailed    ImageStatus = "failed"    // Prediction or I/O failed.
)

// ImageOutcome records what happened to one image of the pass.
type ImageOutcome struct {
	Path       string
	Status     ImageStatus
	Detections int   // After filtering.
	Records    int   // YOLO lines written.
	Skipped    int   // Detections without a YOLO record, e.g. empty masks.
	Filtered   int   // Detections removed by the DetectionFilter.
	Err        error // Set if Status is StatusFailed.
}

// Report summarises a dataset pass.
type Report struct {
	RunID        string
	OutputDir    string
	ManifestPath string // Empty if the pass did not complete.
	Classes      []string
	Images       []ImageOutcome
}

// Count returns the number of images with the given status.
func (r *Report) Count(status ImageStatus) int {
	n := 0
	for _, o := range r.Images {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Failed returns the outcomes of all failed images.
func (r *Report) Failed() []ImageOutcome {
	var failed []ImageOutcome
	for _, o := range r.Images {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// Pipeline converts predictions for all images of a dataset directory to a YOLO dataset.
type Pipeline struct {
	cfg       Config
	predictor Predictor
	filter    *DetectionFilter
}

// NewPipeline validates cfg and returns a pipeline that uses predictor for every image.
func NewPipeline(cfg Config, predictor Predictor) (*Pipeline, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if predictor == nil {
		return nil, errors.New("missing predictor")
	}
	filter, err := NewDetectionFilter(cfg.LabelMappings, cfg.MinConfidence)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, predictor: predictor, filter: filter}, nil
}

// Run converts the dataset in one pass. Images are processed sequentially in discovery order with a
// class registry owned by this call.
//
// A failing image is recorded in the report and receives an empty label file, unless FailFast is
// set, in which case the pass stops with that error. The manifest is only written if the pass
// completes; the report is returned in either case.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	cfg := p.cfg
	report := &Report{RunID: uuid.New().String(), OutputDir: cfg.DatasetOutputDir()}
	logger := log.WithField("run", report.RunID)

	// Discover.
	if info, err := os.Stat(cfg.DatasetPath); err != nil || !info.IsDir() {
		return report, errors.Wrapf(ErrInvalidDirectory, "%q is not a directory", cfg.DatasetPath)
	}
	images, err := findImages(cfg.DatasetPath, cfg.Extensions)
	if err != nil {
		return report, err
	}

	// Prepare the output tree. Existing files are kept.
	imageDir := filepath.Join(report.OutputDir, "train", "images")
	labelDir := filepath.Join(report.OutputDir, "train", "labels")
	for _, dir := range []string{imageDir, labelDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return report, errors.Wrapf(err, "cannot create %q", dir)
		}
	}

	kind := "mask"
	if cfg.UseBoxMode {
		kind = "bbox"
	}
	logger.Printf("There are %d images in %q. Creating YOLO %s label files (LabelMe: %v) using"+
		" prompt %q", len(images), cfg.DatasetPath, kind, cfg.EmitLabelMe, cfg.Prompt)

	registry := NewClassRegistry()
	for i, path := range images {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome, err := p.processImage(ctx, path, registry, imageDir, labelDir)
		if err != nil {
			// Cancelled.
			return report, err
		}
		report.Images = append(report.Images, outcome)
		report.Classes = registry.Names()

		entry := logger.WithField("image", filepath.Base(path))
		if outcome.Status == StatusFailed {
			entry.WithError(outcome.Err).Errorf("[%d/%d] Conversion failed", i+1, len(images))
			if cfg.FailFast {
				return report, outcome.Err
			}
			continue
		}
		entry.Debugf("[%d/%d] %s: %d detections, %d records", i+1, len(images), outcome.Status,
			outcome.Detections, outcome.Records)
	}

	// Finalize.
	manifest, err := NewManifest(imageDir, registry)
	if err != nil {
		return report, err
	}
	manifestPath := filepath.Join(report.OutputDir, ManifestFileName)
	if err := WriteManifest(manifestPath, manifest); err != nil {
		return report, err
	}
	report.ManifestPath = manifestPath
	report.Classes = registry.Names()

	logger.Printf("Converted %d images (%d without detections, %d failed) into %d classes, wrote %s",
		report.Count(StatusConverted), report.Count(StatusEmpty), report.Count(StatusFailed),
		manifest.NC, manifestPath)
	return report, nil
}

// processImage predicts, converts and writes the outputs for the image at path. Only a cancelled
// context is returned as an error; all other failures are recorded in the outcome.
func (p *Pipeline) processImage(ctx context.Context, path string, registry *ClassRegistry,
		imageDir, labelDir string) (ImageOutcome, error) {

	outcome := ImageOutcome{Path: path}
	fail := func(err error) (ImageOutcome, error) {
		outcome.Status = StatusFailed
		outcome.Err = err
		// Every image keeps exactly one label file.
		if _, err := copyFile(path, imageDir); err != nil {
			log.WithError(err).Warn("Cannot copy image of failed conversion")
		}
		if err := WriteYoloLabels(p.labelPath(path, labelDir), nil); err != nil {
			log.WithError(err).Warn("Cannot write empty label file")
		}
		return outcome, nil
	}

	img, err := loadImage(path)
	if err != nil {
		return fail(errors.Wrapf(err, "cannot decode image %q", path))
	}

	results, err := p.predictor.Predict(ctx, []image.Image{img}, []string{p.cfg.Prompt})
	if err == nil && len(results) != 1 {
		err = errors.Errorf("predictor returned %d results for 1 image", len(results))
	}
	if err != nil {
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		return fail(&PredictionError{Path: path, Err: err})
	}
	result := results[0]

	outcome.Filtered = p.filter.Apply(&result)
	outcome.Detections = len(result.Detections)

	// Class IDs are assigned for all detections, including those that yield no record below.
	classIDs := registry.AssignAll(result.Labels())
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	records, skipped := ToYolo(result, classIDs, width, height, p.cfg.UseBoxMode)
	outcome.Records = len(records)
	outcome.Skipped = skipped

	if _, err := copyFile(path, imageDir); err != nil {
		return fail(err)
	}
	if err := WriteYoloLabels(p.labelPath(path, labelDir), records); err != nil {
		return fail(err)
	}

	if p.cfg.EmitLabelMe {
		// LabelMe files are written next to the source images.
		doc := ToLabelMe(result, filepath.Base(path), width, height, p.cfg.UseBoxMode)
		_, baseNoExt, _, _ := splitPath(path)
		if err := WriteLabelMe(filepath.Join(p.cfg.DatasetPath, baseNoExt+".json"), doc); err != nil {
			return fail(err)
		}
	}

	outcome.Status = StatusConverted
	if result.Empty() {
		outcome.Status = StatusEmpty
	}
	return outcome, nil
}

// labelPath is the YOLO label file path for the image at path.
func (p *Pipeline) labelPath(path, labelDir string) string {
	_, baseNoExt, _, _ := splitPath(path)
	return filepath.Join(labelDir, baseNoExt+".txt")
}

// Run converts the dataset described by cfg using predictor. See Pipeline.Run.
func Run(ctx context.Context, cfg Config, predictor Predictor) (*Report, error) {
	p, err := NewPipeline(cfg, predictor)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}
