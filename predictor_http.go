package segconv

import (
	"context"
	"encoding/json"
	"image"
	"strings"
	"time"

	"github.com/pkg/errors"
	http "github.com/valyala/fasthttp"
)

// HTTPPredictor calls a remote predictor service with POST <url>/predict.
type HTTPPredictor struct {
	endpoint    string
	client      *http.Client
	timeout     time.Duration
	retry       retryConfig
	jpegQuality int
}

// NewHTTPPredictor returns a predictor for the service at baseURL. Failed requests are retried up to
// maxRetries times.
func NewHTTPPredictor(baseURL string, timeout time.Duration, maxRetries, jpegQuality int) *HTTPPredictor {
	return &HTTPPredictor{
		endpoint: strings.TrimSuffix(baseURL, "/") + "/predict",
		client: &http.Client{
			Name:                "segconv",
			MaxResponseBodySize: 512 << 20, // Masks are sent as full-size images.
		},
		timeout:     timeout,
		retry:       defaultRetryConfig(maxRetries),
		jpegQuality: jpegQuality,
	}
}

// Predict sends all images in one request.
func (p *HTTPPredictor) Predict(ctx context.Context, images []image.Image, prompts []string) (
		[]PredictionResult, error) {

	req, err := newPredictRequest(images, prompts, p.jpegQuality)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var responses []PredictResponse
	err = withRetry(ctx, p.retry, "predictor", func(int) error {
		if err := ctx.Err(); err != nil {
			return permanentError{err}
		}
		var postErr error
		responses, postErr = p.post(body)
		return postErr
	})
	if err != nil {
		return nil, err
	}

	return toResults(responses, len(images))
}

// post sends one request. Errors that will not go away by retrying are permanentErrors.
func (p *HTTPPredictor) post(body []byte) ([]PredictResponse, error) {
	req := http.AcquireRequest()
	defer http.ReleaseRequest(req)
	resp := http.AcquireResponse()
	defer http.ReleaseResponse(resp)

	req.SetRequestURI(p.endpoint)
	req.Header.SetMethod(http.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := p.client.DoTimeout(req, resp, p.timeout); err != nil {
		return nil, errors.Wrapf(err, "request to %s failed", p.endpoint)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusTooManyRequests || status >= 500:
		return nil, errors.Errorf("predictor returned status %d", status)
	case status != http.StatusOK:
		return nil, permanentError{errors.Errorf("predictor returned status %d: %s", status,
			truncate(string(resp.Body()), 200))}
	}

	var responses []PredictResponse
	if err := json.Unmarshal(resp.Body(), &responses); err != nil {
		return nil, permanentError{errors.Wrap(err, "failed to parse predictor response")}
	}
	return responses, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
