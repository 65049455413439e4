package segconv

// LabelMe specific functionality.

import (
	"encoding/json"
	"io/ioutil"

	"github.com/pkg/errors"
)

// LabelMeVersion is the LabelMe file format version written to every document.
const LabelMeVersion = "4.5.6"

// LabelMe shape types.
const (
	LabelMeRectangle = "rectangle"
	LabelMePolygon   = "polygon"
)

// LabelMeShape is a single annotation shape. Points are absolute pixel coordinates.
type LabelMeShape struct {
	Label     string                 `json:"label"`
	Points    [][2]float64           `json:"points"`
	GroupID   *int                   `json:"group_id"`
	ShapeType string                 `json:"shape_type"`
	Flags     map[string]interface{} `json:"flags"`
}

// LabelMeDocument defines the LabelMe annotation structure for a single image.
type LabelMeDocument struct {
	Version     string                 `json:"version"`
	ImageHeight int                    `json:"imageHeight"`
	ImageWidth  int                    `json:"imageWidth"`
	ImagePath   string                 `json:"imagePath"`
	Flags       map[string]interface{} `json:"flags"`
	Shapes      []LabelMeShape         `json:"shapes"`
	ImageData   *string                `json:"imageData"` // Always null; the image is referenced by path.
}

// ToLabelMe converts the detections of one image to a LabelMe document.
//
// In box mode each detection with a box becomes a rectangle. Otherwise each external contour above
// MinContourArea of each mask becomes a polygon, so a mask with disjoint regions yields several
// shapes.
func ToLabelMe(result PredictionResult, imagePath string, width, height int, boxMode bool) LabelMeDocument {
	doc := LabelMeDocument{
		Version:     LabelMeVersion,
		ImageHeight: height,
		ImageWidth:  width,
		ImagePath:   imagePath,
		// Must not be nil as that becomes JSON null.
		Flags:  make(map[string]interface{}),
		Shapes: make([]LabelMeShape, 0, len(result.Detections)),
	}

	for _, d := range result.Detections {
		if boxMode {
			if d.Box == nil {
				continue
			}
			doc.Shapes = append(doc.Shapes, LabelMeShape{
				Label:     d.Label,
				Points:    [][2]float64{{d.Box[0], d.Box[1]}, {d.Box[2], d.Box[3]}},
				ShapeType: LabelMeRectangle,
				Flags:     make(map[string]interface{}),
			})
			continue
		}

		for _, c := range ExtractContours(d.Mask) {
			points := make([][2]float64, len(c))
			for i, p := range c {
				points[i] = [2]float64{float64(p.X), float64(p.Y)}
			}
			doc.Shapes = append(doc.Shapes, LabelMeShape{
				Label:     d.Label,
				Points:    points,
				ShapeType: LabelMePolygon,
				Flags:     make(map[string]interface{}),
			})
		}
	}

	return doc
}

// WriteLabelMe writes the LabelMe document to outFile.
func WriteLabelMe(outFile string, doc LabelMeDocument) error {
	enc, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(outFile, enc, 0644); err != nil {
		return errors.Wrapf(err, "cannot write file %q", outFile)
	}
	return nil
}

// ReadLabelMe reads the LabelMe document at path.
func ReadLabelMe(path string) (LabelMeDocument, error) {
	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return LabelMeDocument{}, err
	}

	var doc LabelMeDocument
	if err := json.Unmarshal(enc, &doc); err != nil {
		return LabelMeDocument{}, errors.Wrapf(err, "failed to parse LabelMe input from %q", path)
	}
	return doc, nil
}
