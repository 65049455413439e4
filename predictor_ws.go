package segconv

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// WSPredictor calls a remote predictor over a websocket connection. Each call writes one
// PredictRequest text message and reads one message holding the []PredictResponse. The connection
// is opened lazily and reopened after failures.
type WSPredictor struct {
	url         string
	dialer      *websocket.Dialer
	timeout     time.Duration
	retry       retryConfig
	jpegQuality int

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSPredictor returns a predictor for the websocket endpoint at url.
func NewWSPredictor(url string, timeout time.Duration, maxRetries, jpegQuality int) *WSPredictor {
	return &WSPredictor{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		timeout:     timeout,
		retry:       defaultRetryConfig(maxRetries),
		jpegQuality: jpegQuality,
	}
}

// Predict sends all images in one message and waits for the reply.
func (p *WSPredictor) Predict(ctx context.Context, images []image.Image, prompts []string) (
		[]PredictionResult, error) {

	req, err := newPredictRequest(images, prompts, p.jpegQuality)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var responses []PredictResponse
	err = withRetry(ctx, p.retry, "predictor", func(int) error {
		if err := ctx.Err(); err != nil {
			return permanentError{err}
		}
		var rtErr error
		responses, rtErr = p.roundTrip(ctx, req)
		return rtErr
	})
	if err != nil {
		return nil, err
	}

	return toResults(responses, len(images))
}

// roundTrip exchanges one request and response, connecting first if necessary.
func (p *WSPredictor) roundTrip(ctx context.Context, req PredictRequest) ([]PredictResponse, error) {
	if p.conn == nil {
		log.Printf("Connecting to predictor at %s", p.url)
		conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "connection to %s failed", p.url)
		}
		p.conn = conn
	}

	deadline := time.Now().Add(p.timeout)
	if err := p.conn.SetWriteDeadline(deadline); err != nil {
		p.closeConn()
		return nil, err
	}
	if err := p.conn.WriteJSON(req); err != nil {
		p.closeConn()
		return nil, errors.Wrap(err, "failed to send predict request")
	}

	if err := p.conn.SetReadDeadline(deadline); err != nil {
		p.closeConn()
		return nil, err
	}
	var responses []PredictResponse
	if err := p.conn.ReadJSON(&responses); err != nil {
		// The stream position is unknown after a failed read, start over on a new connection.
		p.closeConn()
		return nil, errors.Wrap(err, "failed to read predict response")
	}
	return responses, nil
}

func (p *WSPredictor) closeConn() {
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close closes the connection, if open.
func (p *WSPredictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := p.conn.Close()
	p.conn = nil
	return err
}
