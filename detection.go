package segconv

// The intermediate representation of predictor output.

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Box is an axis-aligned rectangle with absolute x1, y1, x2, y2 offsets from the top-left corner.
type Box [4]float64

// Width is the box width.
func (b Box) Width() float64 {
	return b[2] - b[0]
}

// Height is the box height.
func (b Box) Height() float64 {
	return b[3] - b[1]
}

// Detection is one predicted object instance in an image.
type Detection struct {
	Mask  *Mask // Same size as the image. Nil if the predictor did not return masks.
	Box   *Box  // Nil if the predictor did not return boxes.
	Label string
	Score float64 // Confidence, in [0.0, 1.0] for the known predictors.
}

// PredictionResult is the set of detections for one image.
type PredictionResult struct {
	Detections []Detection
}

// Empty reports whether the predictor found nothing in the image.
func (r PredictionResult) Empty() bool {
	return len(r.Detections) == 0
}

// Labels returns the detection labels in order.
func (r PredictionResult) Labels() []string {
	labels := make([]string, len(r.Detections))
	for i, d := range r.Detections {
		labels[i] = d.Label
	}
	return labels
}

// labelReplacement is a single old=new label (sub-)string substitution.
type labelReplacement struct{ old, new string }

// parseLabelMappings parses old=new label mappings.
func parseLabelMappings(mappings []string) ([]labelReplacement, error) {
	replacements := make([]labelReplacement, 0, len(mappings))
	for _, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 || a[0] == "" {
			return nil, errors.Errorf("invalid mapping: %v", v)
		}
		replacements = append(replacements, labelReplacement{old: a[0], new: a[1]})
	}
	return replacements, nil
}

// DetectionFilter rewrites and filters the detections of a PredictionResult before class IDs are
// assigned.
type DetectionFilter struct {
	replacements  []labelReplacement
	minConfidence float64
}

// NewDetectionFilter builds a filter from old=new label mappings and a minimum confidence. A zero
// minConfidence keeps all detections.
func NewDetectionFilter(mappings []string, minConfidence float64) (*DetectionFilter, error) {
	if minConfidence < 0 || minConfidence >= 1 {
		return nil, errors.Errorf("invalid minimum confidence %v, must be in [0.0, 1.0)", minConfidence)
	}
	replacements, err := parseLabelMappings(mappings)
	if err != nil {
		return nil, err
	}
	return &DetectionFilter{replacements: replacements, minConfidence: minConfidence}, nil
}

// Apply replaces label (sub-)strings, in order of the mappings, and drops detections with a score
// below the minimum confidence. It returns the number of dropped detections.
func (f *DetectionFilter) Apply(r *PredictionResult) int {
	if f == nil {
		return 0
	}

	kept := r.Detections[:0]
	for _, d := range r.Detections {
		if d.Score < f.minConfidence {
			continue
		}
		for _, rep := range f.replacements {
			d.Label = strings.Replace(d.Label, rep.old, rep.new, -1)
		}
		kept = append(kept, d)
	}

	dropped := len(r.Detections) - len(kept)
	if dropped > 0 {
		log.Debugf("Filtered out %d detections below confidence %v", dropped, f.minConfidence)
	}
	r.Detections = kept
	return dropped
}
