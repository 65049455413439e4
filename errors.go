package segconv

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidDirectory is returned when the dataset path is not a directory or does not contain
	// enough images.
	ErrInvalidDirectory = errors.New("invalid dataset directory")

	// ErrEmptyMask is returned when a mask has no contour to convert.
	ErrEmptyMask = errors.New("mask has no foreground contour")
)

// PredictionError is a predictor failure for a single image.
type PredictionError struct {
	Path string
	Err  error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed for %q: %v", e.Path, e.Err)
}

// Unwrap returns the predictor error.
func (e *PredictionError) Unwrap() error {
	return e.Err
}
