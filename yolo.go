package segconv

// YOLO label file specific functionality.

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// YoloRecord is a single line of a YOLO label file. Coords holds either cx, cy, w, h (boxes) or a
// flattened x0, y0, x1, y1, ... polygon, normalised by the image size.
type YoloRecord struct {
	ClassID int
	Coords  []float64
}

// String formats the record as "<class_id> <coord> <coord> ...".
func (r YoloRecord) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(r.ClassID))
	for _, c := range r.Coords {
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatFloat(c, 'f', -1, 64))
	}
	return sb.String()
}

// Box interprets Coords as a normalised box and converts it to absolute coordinates.
func (r YoloRecord) Box(width, height int) (Box, error) {
	if len(r.Coords) != 4 {
		return Box{}, errors.Errorf("record has %d coordinates, a box has 4", len(r.Coords))
	}
	return YoloToBox(width, height, [4]float64{r.Coords[0], r.Coords[1], r.Coords[2], r.Coords[3]}), nil
}

// YoloAnnotatedFile is the YOLO annotation structure for a single image.
type YoloAnnotatedFile struct {
	Records  []YoloRecord
	FilePath string // The image.
}

// ToYolo converts the detections of one image to YOLO records. classIDs holds one ID per detection.
//
// In box mode every detection with a box yields a record, otherwise every detection with a
// non-empty mask yields a polygon record for its largest contour. Detections without the required
// geometry are skipped; their number is returned.
func ToYolo(result PredictionResult, classIDs []int, width, height int, boxMode bool) (
		records []YoloRecord, skipped int) {

	records = make([]YoloRecord, 0, len(result.Detections))
	for i, d := range result.Detections {
		if boxMode {
			if d.Box == nil {
				skipped++
				continue
			}
			c := BoxToYolo(width, height, *d.Box)
			records = append(records, YoloRecord{ClassID: classIDs[i], Coords: c[:]})
			continue
		}

		coords, err := MaskToYoloPolygon(width, height, d.Mask)
		if err != nil {
			log.WithField("label", d.Label).Debugf("Skipping detection: %v", err)
			skipped++
			continue
		}
		records = append(records, YoloRecord{ClassID: classIDs[i], Coords: coords})
	}
	return records, skipped
}

// WriteYoloLabels writes the records to path, one per line. The file is created even when there are
// no records, and replaced if it exists.
func WriteYoloLabels(path string, records []YoloRecord) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create label file %q", path)
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for _, r := range records {
		if _, err := w.WriteString(r.String() + "\n"); err != nil {
			return errors.Wrapf(err, "cannot write label file %q", path)
		}
	}
	return w.Flush()
}

// FromYolo reads and parses YOLO label files from labelDir and matches them to the images in
// imageDir.
func FromYolo(labelDir, imageDir string) ([]YoloAnnotatedFile, error) {
	labelFiles, err := filesByExtInDir(labelDir, ".txt")
	if err != nil {
		return nil, err
	}
	log.Printf("Parsing YOLO labels for %d files", len(labelFiles))

	imageFiles, err := filesByExtInDir(imageDir, "")
	if err != nil {
		return nil, err
	}
	imageNamesToExt := mapFileNamesToExtensions(imageFiles)

	data := make([]YoloAnnotatedFile, 0, len(labelFiles))
	for _, path := range labelFiles {
		lines, err := readLines(path)
		if err != nil {
			log.Printf("Error while parsing, skipping %q: %v", path, err)
			continue
		}

		records := make([]YoloRecord, 0, len(lines))
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			r, err := parseYoloRecord(line)
			if err != nil {
				log.Printf("Error while parsing %q: %v", path, err)
				continue
			}
			records = append(records, r)
		}

		_, baseNoExt, _, err := splitPath(path)
		if err != nil {
			log.Print(err)
			continue
		}
		imageExt, found := imageNamesToExt[baseNoExt]
		if !found {
			log.Print("Could not find the corresponding image file, skipping ", path)
			continue
		}

		data = append(data, YoloAnnotatedFile{
			Records:  records,
			FilePath: filepath.Join(imageDir, baseNoExt+"."+imageExt),
		})
	}

	return data, nil
}

// parseYoloRecord parses the line of values for a single record.
func parseYoloRecord(line string) (YoloRecord, error) {
	tokens := strings.Fields(line)
	if len(tokens) < 3 || len(tokens)%2 == 0 {
		return YoloRecord{}, errors.Errorf("unexpected number of tokens in %q", line)
	}

	id, err := strconv.Atoi(tokens[0])
	if err != nil || id < 0 {
		return YoloRecord{}, errors.Errorf("invalid class ID in %q", line)
	}

	r := YoloRecord{ClassID: id, Coords: make([]float64, len(tokens)-1)}
	for i, t := range tokens[1:] {
		if r.Coords[i], err = strconv.ParseFloat(t, 64); err != nil {
			return YoloRecord{}, errors.Wrapf(err, "unexpected values in %q", line)
		}
	}
	return r, nil
}
