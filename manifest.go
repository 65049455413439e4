package segconv

// The YOLO dataset manifest (data.yaml).

import (
	"io/ioutil"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ManifestFileName is the name of the manifest in the dataset output root.
const ManifestFileName = "data.yaml"

// Manifest describes a YOLO dataset for training tools.
type Manifest struct {
	Train string         `yaml:"train"` // Absolute path to the images folder.
	NC    int            `yaml:"nc"`
	Names map[int]string `yaml:"names"` // Class ID to label.
}

// NewManifest builds the manifest for the images in imageDir and the classes in registry.
func NewManifest(imageDir string, registry *ClassRegistry) (Manifest, error) {
	abs, err := filepath.Abs(imageDir)
	if err != nil {
		return Manifest{}, errors.Wrapf(err, "cannot resolve %q", imageDir)
	}

	names := registry.Names()
	m := Manifest{Train: abs, NC: len(names), Names: make(map[int]string, len(names))}
	for id, name := range names {
		m.Names[id] = name
	}
	return m, nil
}

// WriteManifest writes m as YAML to path. yaml.v3 sorts integer map keys, so names are written in
// class ID order.
func WriteManifest(path string, m Manifest) error {
	enc, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, enc, 0644); err != nil {
		return errors.Wrapf(err, "cannot write manifest %q", path)
	}
	return nil
}

// ReadManifest reads the manifest at path.
func ReadManifest(path string) (Manifest, error) {
	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}

	var m Manifest
	if err := yaml.Unmarshal(enc, &m); err != nil {
		return Manifest{}, errors.Wrapf(err, "failed to parse manifest %q", path)
	}
	return m, nil
}
