// Converts a directory of images into a YOLO training dataset using a text-prompted segmentation
// predictor, or renders a preview of the predictions for a random sample of the images.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sensorable/segconv"
)

const (
	cmdConvert = "convert"
	cmdPreview = "preview"
)

// options holds the flag values of both commands.
type options struct {
	configFile string // The TOML config file.
	envFile    string // The dotenv file with SEGCONV_* variables.
	logLevel   string

	datasetPath    string
	prompt         string
	useMasks       bool
	emitLabelMe    bool
	extensions     string // Comma-separated.
	labelMappings  string // Comma-separated old=new replacements.
	minConfidence  float64
	failFast       bool
	predictorURL   string
	predictorTries int
	timeout        time.Duration

	previewOut  string
	previewSeed int64
	samples     int
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  convert options:\t-dataset <dir> -prompt <text> [-masks] [-labelme]")
		_, _ = fmt.Fprintln(os.Stderr, "  preview options:\t-dataset <dir> -prompt <text> [-out <file>]")
		_, _ = fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}
}

func newFlagSet(name string, o *options) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = usage(fs)

	// Configuration sources.
	fs.StringVar(&o.configFile, "config", "", "The TOML config `file`")
	fs.StringVar(&o.envFile, "env-file", ".env",
		"The dotenv `file` with "+segconv.EnvPrefix+"* variables (ignored if missing)")
	fs.StringVar(&o.logLevel, "log-level", "info", "The log `level` (debug, info, warn, error)")

	// Dataset arguments.
	fs.StringVar(&o.datasetPath, "dataset", "", "The `path` to the image directory")
	fs.StringVar(&o.prompt, "prompt", "", "The free-text `prompt` describing the objects to label")
	fs.StringVar(&o.extensions, "extensions", "",
		"Comma-separated list of image file extensions (`.ext[,...]`, case sensitive)")

	// Prediction arguments.
	fs.StringVar(&o.predictorURL, "predictor", "",
		"The predictor service `url` (http, https, ws or wss)")
	fs.IntVar(&o.predictorTries, "retries", 0, "The number of retries of failed predictor requests")
	fs.DurationVar(&o.timeout, "timeout", 0, "The timeout of a single predictor request")
	fs.StringVar(&o.labelMappings, "map-labels", "",
		"Comma-separated list of old=new label (sub-)string replacements")
	fs.Float64Var(&o.minConfidence, "min-confidence", 0,
		"The minimum detection confidence in [0.0, 1.0)")

	switch name {
	case cmdConvert:
		fs.BoolVar(&o.useMasks, "masks", false, "Write polygons from masks instead of boxes")
		fs.BoolVar(&o.emitLabelMe, "labelme", false,
			"Also write LabelMe JSON files into the image directory")
		fs.BoolVar(&o.failFast, "fail-fast", false, "Stop at the first image that fails")
	case cmdPreview:
		fs.StringVar(&o.previewOut, "out", "preview.png", "The preview image output `file`")
		fs.Int64Var(&o.previewSeed, "seed", time.Now().UnixNano(), "The random seed for sampling")
		fs.IntVar(&o.samples, "samples", 0, "The number of images in the preview")
	}
	return fs
}

// buildConfig layers the defaults, the config file, the environment and explicitly set flags.
func buildConfig(fs *flag.FlagSet, o *options) (segconv.Config, error) {
	cfg := segconv.DefaultConfig()
	if o.configFile != "" {
		if err := cfg.LoadConfigFile(o.configFile); err != nil {
			return cfg, err
		}
	}
	if err := cfg.LoadEnv(o.envFile); err != nil {
		return cfg, err
	}

	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dataset":
			cfg.DatasetPath = o.datasetPath
		case "prompt":
			cfg.Prompt = o.prompt
		case "extensions":
			cfg.Extensions = splitList(o.extensions)
			cfg.PreviewExtensions = cfg.Extensions
		case "predictor":
			cfg.PredictorURL = o.predictorURL
		case "retries":
			cfg.PredictorRetries = o.predictorTries
		case "timeout":
			cfg.PredictorTimeout = o.timeout
		case "map-labels":
			cfg.LabelMappings = splitList(o.labelMappings)
		case "min-confidence":
			cfg.MinConfidence = o.minConfidence
		case "masks":
			cfg.UseBoxMode = !o.useMasks
		case "labelme":
			cfg.EmitLabelMe = o.emitLabelMe
		case "fail-fast":
			cfg.FailFast = o.failFast
		case "samples":
			if o.samples <= 0 {
				err = fmt.Errorf("invalid number of samples %d", o.samples)
			}
			cfg.PreviewSamples = o.samples
		}
	})
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func main() {
	if len(os.Args) < 2 || (os.Args[1] != cmdConvert && os.Args[1] != cmdPreview) {
		usage(newFlagSet(cmdConvert, &options{}))()
		os.Exit(2)
	}
	name := os.Args[1]

	var o options
	fs := newFlagSet(name, &o)
	_ = fs.Parse(os.Args[2:])

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		fs.Usage()
		os.Exit(1)
	}

	level, err := log.ParseLevel(o.logLevel)
	if err != nil {
		printUsageAndExit(err)
	}
	log.SetLevel(level)

	cfg, err := buildConfig(fs, &o)
	if err != nil {
		printUsageAndExit(err)
	}

	predictor, err := segconv.NewPredictor(cfg)
	if err != nil {
		printUsageAndExit(err)
	}
	if c, ok := predictor.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				log.WithError(err).Warn("Failed to close predictor connection")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ok bool
	switch name {
	case cmdConvert:
		ok = convert(ctx, cfg, predictor)
	case cmdPreview:
		ok = preview(ctx, cfg, predictor, o)
	}
	if !ok {
		stop()
		os.Exit(1)
	}
}

// convert runs the dataset pass and reports whether every image was converted.
func convert(ctx context.Context, cfg segconv.Config, predictor segconv.Predictor) bool {
	report, err := segconv.Run(ctx, cfg, predictor)
	if report != nil {
		for _, o := range report.Failed() {
			log.WithField("image", o.Path).WithError(o.Err).Error("Image was not converted")
		}
	}
	if err != nil {
		log.WithError(err).Error("Conversion failed")
		return false
	}

	log.Printf("Dataset written to %s with classes %v", report.OutputDir, report.Classes)
	return len(report.Failed()) == 0
}

func preview(ctx context.Context, cfg segconv.Config, predictor segconv.Predictor, o options) bool {
	opts := segconv.DefaultPreviewOptions()
	opts.Seed = o.previewSeed

	p, err := segconv.RenderPreview(ctx, cfg, predictor, opts)
	if err != nil {
		log.WithError(err).Error("Preview failed")
		return false
	}
	if err := segconv.SavePreview(o.previewOut, p); err != nil {
		log.WithError(err).Error("Preview failed")
		return false
	}

	log.Printf("Preview of %d images written to %s", len(p.Samples), o.previewOut)
	return true
}
