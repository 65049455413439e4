package segconv

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	// DefaultPreviewSamples is the number of images rendered into a preview.
	DefaultPreviewSamples = 4

	// DefaultPredictorTimeout bounds a single predictor request.
	DefaultPredictorTimeout = 2 * time.Minute

	// EnvPrefix prefixes all environment variables read by LoadEnv.
	EnvPrefix = "SEGCONV_"
)

// Output dataset directory names.
const (
	BoxDatasetDir  = "YOLO_BBOX_DATASET"
	MaskDatasetDir = "YOLO_MASK_DATASET"
)

// Config is the configuration for one dataset pass.
type Config struct {
	DatasetPath string `toml:"dataset_path"`
	Prompt      string `toml:"prompt"`
	UseBoxMode  bool   `toml:"use_box_mode"` // Boxes if true, polygons from masks otherwise.
	EmitLabelMe bool   `toml:"emit_labelme"` // Also write LabelMe JSON next to the source images.

	// Accepted image file extensions, including the dot. Matching is case sensitive.
	Extensions        []string `toml:"extensions"`
	PreviewExtensions []string `toml:"preview_extensions"`
	PreviewSamples    int      `toml:"preview_samples"`

	LabelMappings []string `toml:"label_mappings"` // old=new label (sub-)string replacements.
	MinConfidence float64  `toml:"min_confidence"`

	// Abort the pass on the first image that fails instead of recording it and continuing.
	FailFast bool `toml:"fail_fast"`

	PredictorURL     string        `toml:"predictor_url"`
	PredictorTimeout time.Duration `toml:"predictor_timeout"`
	PredictorRetries int           `toml:"predictor_retries"`
	JPEGQuality      int           `toml:"jpeg_quality"` // For images sent to the predictor.
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		UseBoxMode:        true,
		Extensions:        []string{".jpg", ".png"},
		PreviewExtensions: []string{".jpg"},
		PreviewSamples:    DefaultPreviewSamples,
		PredictorURL:      "http://localhost:8000",
		PredictorTimeout:  DefaultPredictorTimeout,
		PredictorRetries:  2,
		JPEGQuality:       95,
	}
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if len(c.Extensions) == 0 {
		c.Extensions = d.Extensions
	}
	if len(c.PreviewExtensions) == 0 {
		c.PreviewExtensions = d.PreviewExtensions
	}
	if c.PreviewSamples <= 0 {
		c.PreviewSamples = d.PreviewSamples
	}
	if c.PredictorTimeout <= 0 {
		c.PredictorTimeout = d.PredictorTimeout
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		c.JPEGQuality = d.JPEGQuality
	}
}

// Validate checks the fields required for a dataset pass.
func (c *Config) Validate() error {
	if c.DatasetPath == "" {
		return errors.New("missing dataset path")
	}
	if c.Prompt == "" {
		return errors.New("missing prompt")
	}
	if c.MinConfidence < 0 || c.MinConfidence >= 1 {
		return errors.Errorf("invalid minimum confidence %v, must be in [0.0, 1.0)", c.MinConfidence)
	}
	for _, ext := range append(append([]string(nil), c.Extensions...), c.PreviewExtensions...) {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return errors.Errorf("invalid image extension %q", ext)
		}
	}
	return nil
}

// DatasetOutputDir returns the output dataset root inside the dataset directory.
func (c *Config) DatasetOutputDir() string {
	name := MaskDatasetDir
	if c.UseBoxMode {
		name = BoxDatasetDir
	}
	return filepath.Join(c.DatasetPath, name)
}

// LoadConfigFile decodes the TOML file at path over c. Durations are written as strings, e.g.
// predictor_timeout = "90s".
func (c *Config) LoadConfigFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return errors.Wrapf(err, "failed to read config file %q", path)
	}
	return nil
}

// LoadEnv overrides fields of c from SEGCONV_* environment variables. If envFile is not empty it is
// loaded first; variables already set in the environment take precedence over the file. A missing
// envFile is not an error.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return errors.Wrapf(err, "failed to load %q", envFile)
		}
	}

	lookup := func(key string) (string, bool) {
		v, ok := os.LookupEnv(EnvPrefix + key)
		return v, ok && v != ""
	}
	parseBool := func(key string, dst *bool) error {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrapf(err, "invalid %s%s", EnvPrefix, key)
			}
			*dst = b
		}
		return nil
	}
	splitList := func(v string) []string {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	if v, ok := lookup("DATASET_PATH"); ok {
		c.DatasetPath = v
	}
	if v, ok := lookup("PROMPT"); ok {
		c.Prompt = v
	}
	if v, ok := lookup("PREDICTOR_URL"); ok {
		c.PredictorURL = v
	}
	if v, ok := lookup("EXTENSIONS"); ok {
		c.Extensions = splitList(v)
	}
	if v, ok := lookup("LABEL_MAPPINGS"); ok {
		c.LabelMappings = splitList(v)
	}
	if v, ok := lookup("PREDICTOR_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sPREDICTOR_TIMEOUT", EnvPrefix)
		}
		c.PredictorTimeout = d
	}
	if v, ok := lookup("PREDICTOR_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sPREDICTOR_RETRIES", EnvPrefix)
		}
		c.PredictorRetries = n
	}
	if v, ok := lookup("MIN_CONFIDENCE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid %sMIN_CONFIDENCE", EnvPrefix)
		}
		c.MinConfidence = f
	}
	if err := parseBool("USE_BOX_MODE", &c.UseBoxMode); err != nil {
		return err
	}
	if err := parseBool("EMIT_LABELME", &c.EmitLabelMe); err != nil {
		return err
	}
	return parseBool("FAIL_FAST", &c.FailFast)
}
