package segconv

import (
	"context"
	"image"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDataset creates a.jpg (40x30), b.jpg (80x60) and c.png (20x20) plus files that are not
// images of the default extensions.
func writeDataset(t *testing.T) string {
	dir := t.TempDir()
	for name, size := range map[string]image.Point{
		"a.jpg": {40, 30},
		"b.jpg": {80, 60},
		"c.png": {20, 20},
		"d.JPG": {10, 10},
	} {
		require.NoError(t, imaging.Save(testImage(size.X, size.Y), filepath.Join(dir, name)))
	}
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	return dir
}

func boxDetection(label string, box Box, width, height int) Detection {
	m := NewMask(width, height)
	m.Fill(image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3])))
	return Detection{Label: label, Box: &box, Mask: m, Score: 0.9}
}

// fakePredictor returns one cat in a.jpg, a cat and a dog in b.jpg and nothing otherwise. Images
// are identified by their width. Widths in fail return an error.
func fakePredictor(fail ...int) (Predictor, *int) {
	calls := 0
	return PredictorFunc(func(ctx context.Context, images []image.Image, prompts []string) (
		[]PredictionResult, error) {

		calls++
		w, h := images[0].Bounds().Dx(), images[0].Bounds().Dy()
		for _, f := range fail {
			if w == f {
				return nil, errors.New("predictor unavailable")
			}
		}

		var r PredictionResult
		switch w {
		case 40:
			r.Detections = []Detection{boxDetection("cat", Box{10, 5, 30, 25}, w, h)}
		case 80:
			r.Detections = []Detection{
				boxDetection("cat", Box{0, 0, 40, 30}, w, h),
				boxDetection("dog", Box{40, 30, 80, 60}, w, h),
			}
		}
		return []PredictionResult{r}, nil
	}), &calls
}

func testConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.DatasetPath = dir
	cfg.Prompt = "cat. dog."
	return cfg
}

func readFile(t *testing.T, path string) string {
	enc, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	return string(enc)
}

func TestRunBoxMode(t *testing.T) {
	dir := writeDataset(t)
	predictor, calls := fakePredictor()

	report, err := Run(context.Background(), testConfig(dir), predictor)
	require.NoError(t, err)
	assert.Equal(t, 3, *calls)

	out := filepath.Join(dir, BoxDatasetDir)
	assert.Equal(t, out, report.OutputDir)
	assert.Equal(t, filepath.Join(out, ManifestFileName), report.ManifestPath)
	assert.Equal(t, []string{"cat", "dog"}, report.Classes)
	assert.Equal(t, 2, report.Count(StatusConverted))
	assert.Equal(t, 1, report.Count(StatusEmpty))
	assert.Empty(t, report.Failed())

	require.Len(t, report.Images, 3)
	assert.Equal(t, filepath.Join(dir, "a.jpg"), report.Images[0].Path)
	assert.Equal(t, filepath.Join(dir, "b.jpg"), report.Images[1].Path)
	assert.Equal(t, filepath.Join(dir, "c.png"), report.Images[2].Path)
	assert.Equal(t, 2, report.Images[1].Records)

	labels := filepath.Join(out, "train", "labels")
	assert.Equal(t, "0 0.5 0.5 0.5 0.6666666666666666\n", readFile(t, filepath.Join(labels, "a.txt")))
	assert.Equal(t, "0 0.25 0.25 0.5 0.5\n1 0.75 0.75 0.5 0.5\n", readFile(t, filepath.Join(labels, "b.txt")))
	assert.Equal(t, "", readFile(t, filepath.Join(labels, "c.txt")))
	assert.NoFileExists(t, filepath.Join(labels, "d.txt"))

	for _, name := range []string{"a.jpg", "b.jpg", "c.png"} {
		assert.Equal(t, readFile(t, filepath.Join(dir, name)),
			readFile(t, filepath.Join(out, "train", "images", name)), name)
	}

	m, err := ReadManifest(report.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, 2, m.NC)
	assert.Equal(t, map[int]string{0: "cat", 1: "dog"}, m.Names)
	assert.True(t, filepath.IsAbs(m.Train))
	assert.Equal(t, "images", filepath.Base(m.Train))

	// Round trip through the label reader.
	files, err := FromYolo(labels, filepath.Join(out, "train", "images"))
	require.NoError(t, err)
	assert.Len(t, files, 3)

	// Not written unless requested.
	assert.NoFileExists(t, filepath.Join(dir, "a.json"))
}

func TestRunMaskMode(t *testing.T) {
	dir := writeDataset(t)
	predictor, _ := fakePredictor()
	cfg := testConfig(dir)
	cfg.UseBoxMode = false

	report, err := Run(context.Background(), cfg, predictor)
	require.NoError(t, err)

	out := filepath.Join(dir, MaskDatasetDir)
	assert.Equal(t, out, report.OutputDir)
	assert.Equal(t, "0 0.25 0.16666666666666666 0.25 0.8 0.725 0.8 0.725 0.16666666666666666\n",
		readFile(t, filepath.Join(out, "train", "labels", "a.txt")))
	assert.FileExists(t, filepath.Join(out, ManifestFileName))
	assert.NoDirExists(t, filepath.Join(dir, BoxDatasetDir))
}

func TestRunIsRepeatable(t *testing.T) {
	dir := writeDataset(t)
	predictor, _ := fakePredictor()
	cfg := testConfig(dir)

	_, err := Run(context.Background(), cfg, predictor)
	require.NoError(t, err)
	out := filepath.Join(dir, BoxDatasetDir)
	first := map[string]string{}
	for _, name := range []string{"train/labels/a.txt", "train/labels/b.txt", "train/labels/c.txt", ManifestFileName} {
		first[name] = readFile(t, filepath.Join(out, name))
	}

	// The output directory inside the dataset is not picked up as input.
	report, err := Run(context.Background(), cfg, predictor)
	require.NoError(t, err)
	assert.Len(t, report.Images, 3)
	for name, content := range first {
		assert.Equal(t, content, readFile(t, filepath.Join(out, name)), name)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	dir := writeDataset(t)
	predictor, calls := fakePredictor(80)

	report, err := Run(context.Background(), testConfig(dir), predictor)
	require.NoError(t, err)
	assert.Equal(t, 3, *calls)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, filepath.Join(dir, "b.jpg"), failed[0].Path)
	var predErr *PredictionError
	require.True(t, errors.As(failed[0].Err, &predErr))
	assert.Equal(t, filepath.Join(dir, "b.jpg"), predErr.Path)

	out := filepath.Join(dir, BoxDatasetDir)
	assert.Equal(t, "", readFile(t, filepath.Join(out, "train", "labels", "b.txt")))
	assert.FileExists(t, filepath.Join(out, "train", "images", "b.jpg"))
	assert.FileExists(t, report.ManifestPath)
	// Only the cat of a.jpg was registered.
	assert.Equal(t, []string{"cat"}, report.Classes)
}

func TestRunFailFast(t *testing.T) {
	dir := writeDataset(t)
	predictor, calls := fakePredictor(80)
	cfg := testConfig(dir)
	cfg.FailFast = true

	report, err := Run(context.Background(), cfg, predictor)
	require.Error(t, err)
	var predErr *PredictionError
	assert.True(t, errors.As(err, &predErr))
	assert.Equal(t, 2, *calls)

	out := filepath.Join(dir, BoxDatasetDir)
	assert.Empty(t, report.ManifestPath)
	assert.NoFileExists(t, filepath.Join(out, ManifestFileName))
	assert.FileExists(t, filepath.Join(out, "train", "labels", "b.txt"))
	assert.NoFileExists(t, filepath.Join(out, "train", "labels", "c.txt"))
}

func TestRunWritesLabelMe(t *testing.T) {
	dir := writeDataset(t)
	predictor, _ := fakePredictor()
	cfg := testConfig(dir)
	cfg.EmitLabelMe = true

	_, err := Run(context.Background(), cfg, predictor)
	require.NoError(t, err)

	doc, err := ReadLabelMe(filepath.Join(dir, "b.json"))
	require.NoError(t, err)
	assert.Equal(t, "b.jpg", doc.ImagePath)
	assert.Equal(t, 80, doc.ImageWidth)
	assert.Equal(t, 60, doc.ImageHeight)
	require.Len(t, doc.Shapes, 2)
	assert.Equal(t, LabelMeRectangle, doc.Shapes[1].ShapeType)
	assert.Equal(t, [][2]float64{{40, 30}, {80, 60}}, doc.Shapes[1].Points)

	doc, err = ReadLabelMe(filepath.Join(dir, "c.json"))
	require.NoError(t, err)
	assert.Empty(t, doc.Shapes)
}

func TestRunFilter(t *testing.T) {
	dir := writeDataset(t)
	predictor, _ := fakePredictor()
	cfg := testConfig(dir)
	cfg.LabelMappings = []string{"dog=cat"}

	report, err := Run(context.Background(), cfg, predictor)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat"}, report.Classes)

	cfg.LabelMappings = nil
	cfg.MinConfidence = 0.95
	report, err = Run(context.Background(), cfg, predictor)
	require.NoError(t, err)
	assert.Empty(t, report.Classes)
	assert.Equal(t, 3, report.Count(StatusEmpty))
	assert.Equal(t, 2, report.Images[1].Filtered)
}

func TestRunExtensions(t *testing.T) {
	dir := writeDataset(t)
	predictor, calls := fakePredictor()
	cfg := testConfig(dir)
	cfg.Extensions = []string{".png", ".JPG"}

	report, err := Run(context.Background(), cfg, predictor)
	require.NoError(t, err)
	assert.Equal(t, 2, *calls)
	require.Len(t, report.Images, 2)
	assert.Equal(t, filepath.Join(dir, "c.png"), report.Images[0].Path)
	assert.Equal(t, filepath.Join(dir, "d.JPG"), report.Images[1].Path)
}

func TestRunEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	predictor, _ := fakePredictor()

	report, err := Run(context.Background(), testConfig(dir), predictor)
	require.NoError(t, err)
	assert.Empty(t, report.Images)

	m, err := ReadManifest(report.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, 0, m.NC)
}

func TestRunInvalidDirectory(t *testing.T) {
	predictor, _ := fakePredictor()

	_, err := Run(context.Background(), testConfig(filepath.Join(t.TempDir(), "missing")), predictor)
	assert.ErrorIs(t, err, ErrInvalidDirectory)

	file := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, imaging.Save(testImage(4, 4), file))
	_, err = Run(context.Background(), testConfig(file), predictor)
	assert.ErrorIs(t, err, ErrInvalidDirectory)
}

func TestRunUndecodableImage(t *testing.T) {
	dir := writeDataset(t)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not a jpeg"), 0644))
	predictor, calls := fakePredictor()

	report, err := Run(context.Background(), testConfig(dir), predictor)
	require.NoError(t, err)
	assert.Equal(t, 3, *calls)
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, filepath.Join(dir, "broken.jpg"), report.Failed()[0].Path)
	assert.FileExists(t, filepath.Join(dir, BoxDatasetDir, "train", "labels", "broken.txt"))
}

func TestRunCancelled(t *testing.T) {
	dir := writeDataset(t)
	predictor, calls := fakePredictor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Run(ctx, testConfig(dir), predictor)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, *calls)
	assert.Empty(t, report.ManifestPath)
}

func TestNewPipeline(t *testing.T) {
	predictor, _ := fakePredictor()

	_, err := NewPipeline(Config{Prompt: "cat"}, predictor)
	assert.Error(t, err)
	_, err = NewPipeline(Config{DatasetPath: "/data"}, predictor)
	assert.Error(t, err)
	_, err = NewPipeline(testConfig("/data"), nil)
	assert.Error(t, err)

	cfg := testConfig("/data")
	cfg.LabelMappings = []string{"invalid"}
	_, err = NewPipeline(cfg, predictor)
	assert.Error(t, err)

	_, err = NewPipeline(testConfig("/data"), predictor)
	assert.NoError(t, err)
}
