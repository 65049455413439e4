package segconv

// The segmentation predictor contract and its JSON wire format.

import (
	"context"
	"encoding/base64"
	"image"
	"net/url"

	"github.com/pkg/errors"
)

// Predictor predicts object masks and boxes for images given free-text prompts. It returns one
// result per image.
type Predictor interface {
	Predict(ctx context.Context, images []image.Image, prompts []string) ([]PredictionResult, error)
}

// PredictorFunc adapts a function to the Predictor interface.
type PredictorFunc func(ctx context.Context, images []image.Image, prompts []string) (
		[]PredictionResult, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, images []image.Image, prompts []string) (
		[]PredictionResult, error) {
	return f(ctx, images, prompts)
}

// NewPredictor returns a remote predictor for cfg.PredictorURL. The scheme selects the transport:
// http(s) for HTTPPredictor and ws(s) for WSPredictor.
func NewPredictor(cfg Config) (Predictor, error) {
	cfg.applyDefaults()
	u, err := url.Parse(cfg.PredictorURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid predictor URL %q", cfg.PredictorURL)
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPPredictor(cfg.PredictorURL, cfg.PredictorTimeout, cfg.PredictorRetries,
			cfg.JPEGQuality), nil
	case "ws", "wss":
		return NewWSPredictor(cfg.PredictorURL, cfg.PredictorTimeout, cfg.PredictorRetries,
			cfg.JPEGQuality), nil
	}
	return nil, errors.Errorf("unsupported predictor URL scheme %q", u.Scheme)
}

// PredictRequest is the request body sent to remote predictors.
type PredictRequest struct {
	Prompts []string `json:"prompts"`
	Images  []string `json:"images"` // Base64 encoded JPEG.
}

// PredictResponse is the result for one image returned by remote predictors. All non-empty lists
// have one entry per detected instance.
type PredictResponse struct {
	Masks  []string     `json:"masks"` // Base64 encoded single channel PNG, non-zero is foreground.
	Boxes  [][4]float64 `json:"boxes"` // Absolute x1, y1, x2, y2.
	Scores []float64    `json:"scores"`
	Labels []string     `json:"labels"`
}

// newPredictRequest encodes the images and prompts of one predict call.
func newPredictRequest(images []image.Image, prompts []string, jpegQuality int) (PredictRequest, error) {
	if len(images) != len(prompts) {
		return PredictRequest{}, errors.Errorf("got %d images but %d prompts", len(images), len(prompts))
	}

	req := PredictRequest{Prompts: prompts, Images: make([]string, len(images))}
	for i, img := range images {
		enc, err := encodeJPEG(img, jpegQuality)
		if err != nil {
			return PredictRequest{}, errors.Wrap(err, "failed to encode image")
		}
		req.Images[i] = base64.StdEncoding.EncodeToString(enc)
	}
	return req, nil
}

// toResults converts wire responses to prediction results, expecting one per image.
func toResults(responses []PredictResponse, numImages int) ([]PredictionResult, error) {
	if len(responses) != numImages {
		return nil, errors.Errorf("predictor returned %d results for %d images", len(responses), numImages)
	}

	results := make([]PredictionResult, len(responses))
	for i, r := range responses {
		var err error
		if results[i], err = r.toResult(); err != nil {
			return nil, errors.Wrapf(err, "invalid result %d", i)
		}
	}
	return results, nil
}

// toResult decodes the response. Nothing was detected if there are no labels or neither masks nor
// boxes.
func (r PredictResponse) toResult() (PredictionResult, error) {
	n := len(r.Labels)
	if n == 0 || (len(r.Masks) == 0 && len(r.Boxes) == 0) {
		return PredictionResult{}, nil
	}
	for _, l := range []struct {
		name string
		len  int
	}{{"masks", len(r.Masks)}, {"boxes", len(r.Boxes)}, {"scores", len(r.Scores)}} {
		if l.len != 0 && l.len != n {
			return PredictionResult{}, errors.Errorf("got %d %s for %d labels", l.len, l.name, n)
		}
	}

	result := PredictionResult{Detections: make([]Detection, n)}
	for i := range result.Detections {
		d := &result.Detections[i]
		d.Label = r.Labels[i]
		if len(r.Scores) > 0 {
			d.Score = r.Scores[i]
		}
		if len(r.Boxes) > 0 {
			b := Box(r.Boxes[i])
			d.Box = &b
		}
		if len(r.Masks) > 0 {
			enc, err := base64.StdEncoding.DecodeString(r.Masks[i])
			if err != nil {
				return PredictionResult{}, errors.Wrapf(err, "invalid mask %d", i)
			}
			if d.Mask, err = decodeMask(enc); err != nil {
				return PredictionResult{}, errors.Wrapf(err, "cannot decode mask %d", i)
			}
		}
	}
	return result, nil
}
