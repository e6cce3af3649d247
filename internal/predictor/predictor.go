// Package predictor orchestrates one generation run: it stages the control
// image, fills the workflow graph from the request, hands it to the
// generation server and post-processes the produced images.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"lorad/internal/comfy"
	"lorad/internal/common/fsutil"
	"lorad/internal/workflow"
	"lorad/pkg/types"
)

// invalidInputError signals a request value outside the accepted choices or
// ranges, so the HTTP layer can return 400.
type invalidInputError struct{ msg string }

func (e invalidInputError) Error() string { return "invalid input: " + e.msg }

// ErrInvalidInput constructs an invalidInputError.
func ErrInvalidInput(msg string) error { return invalidInputError{msg: msg} }

// IsInvalidInput reports whether err indicates a rejected request value.
func IsInvalidInput(err error) bool {
	var e invalidInputError
	return errors.As(err, &e)
}

// Runner executes a configured workflow graph on the generation server and
// hands back what it produced.
type Runner interface {
	Run(ctx context.Context, g workflow.Graph) (string, error)
	Outputs(ctx context.Context, promptID string) ([]comfy.OutputImage, error)
	Download(ctx context.Context, img comfy.OutputImage, destDir string) (string, error)
	Healthy(ctx context.Context) bool
}

// Options configures a Predictor.
type Options struct {
	// OutputDir receives generated images.
	OutputDir string
	// InputDir is where staged control images are placed for the server.
	InputDir string
	// TempDir receives temp images such as the preprocessed control
	// image, when the request asks for it.
	TempDir string
	// WorkflowPath overrides the embedded workflow graph template.
	WorkflowPath string
	// Comfy runs workflows. Required.
	Comfy Runner
	// Logger for run progress.
	Logger zerolog.Logger
}

// Predictor runs predictions one at a time; runs clear the shared
// input/output directories, so callers must not overlap them.
type Predictor struct {
	opts Options
	log  zerolog.Logger
}

// New constructs a Predictor.
func New(opts Options) *Predictor {
	return &Predictor{opts: opts, log: opts.Logger}
}

// Ready reports whether the generation server is reachable.
func (p *Predictor) Ready(ctx context.Context) bool {
	return p.opts.Comfy.Healthy(ctx)
}

var (
	controlTypes          = []string{"canny", "soft_edge", "depth"}
	depthPreprocessors    = []string{"Midas", "Zoe", "DepthAnything", "Zoe-DepthAnything"}
	softEdgePreprocessors = []string{"HED", "TEED", "PiDiNet"}
	outputFormats         = []string{"png", "jpg", "webp"}
)

func oneOf(value string, choices []string) bool {
	for _, c := range choices {
		if value == c {
			return true
		}
	}
	return false
}

// applyDefaults fills absent request fields with the documented defaults.
// Guidance and control strength are pointers so a caller can ask for an
// explicit 0, which is inside both accepted ranges.
func applyDefaults(req *types.PredictionRequest) {
	if req.GuidanceScale == nil {
		v := 3.5
		req.GuidanceScale = &v
	}
	if req.Steps == 0 {
		req.Steps = 28
	}
	if req.ControlType == "" {
		req.ControlType = "depth"
	}
	if req.ControlStrength == nil {
		v := 0.5
		req.ControlStrength = &v
	}
	if req.DepthPreprocessor == "" {
		req.DepthPreprocessor = "DepthAnything"
	}
	if req.SoftEdgePreprocessor == "" {
		req.SoftEdgePreprocessor = "HED"
	}
	if req.OutputFormat == "" {
		req.OutputFormat = "png"
	}
	if req.OutputQuality == 0 {
		req.OutputQuality = 80
	}
}

func validate(req types.PredictionRequest) error {
	if req.ControlImage == "" {
		return invalidInputError{msg: "control_image is required"}
	}
	if *req.GuidanceScale < 0 || *req.GuidanceScale > 5 {
		return invalidInputError{msg: "guidance_scale must be between 0 and 5"}
	}
	if req.Steps < 1 || req.Steps > 50 {
		return invalidInputError{msg: "steps must be between 1 and 50"}
	}
	if !oneOf(req.ControlType, controlTypes) {
		return invalidInputError{msg: fmt.Sprintf("control_type must be one of %v", controlTypes)}
	}
	if *req.ControlStrength < 0 || *req.ControlStrength > 3 {
		return invalidInputError{msg: "control_strength must be between 0 and 3"}
	}
	if req.ImageToImageStrength < 0 || req.ImageToImageStrength > 1 {
		return invalidInputError{msg: "image_to_image_strength must be between 0 and 1"}
	}
	if !oneOf(req.DepthPreprocessor, depthPreprocessors) {
		return invalidInputError{msg: fmt.Sprintf("depth_preprocessor must be one of %v", depthPreprocessors)}
	}
	if !oneOf(req.SoftEdgePreprocessor, softEdgePreprocessors) {
		return invalidInputError{msg: fmt.Sprintf("soft_edge_preprocessor must be one of %v", softEdgePreprocessors)}
	}
	if !oneOf(strings.ToLower(req.OutputFormat), outputFormats) {
		return invalidInputError{msg: fmt.Sprintf("output_format must be one of %v", outputFormats)}
	}
	if req.OutputQuality < 1 || req.OutputQuality > 100 {
		return invalidInputError{msg: "output_quality must be between 1 and 100"}
	}
	return nil
}

// Predict runs one generation and returns the produced file paths.
func (p *Predictor) Predict(ctx context.Context, req types.PredictionRequest) (types.PredictionResponse, error) {
	var resp types.PredictionResponse
	applyDefaults(&req)
	if err := validate(req); err != nil {
		return resp, err
	}

	for _, d := range []string{p.opts.OutputDir, p.opts.InputDir, p.opts.TempDir} {
		if err := fsutil.ClearDir(d); err != nil {
			return resp, fmt.Errorf("clear %s: %w", d, err)
		}
	}

	controlFilename := "control_image" + filepath.Ext(req.ControlImage)
	if err := fsutil.CopyFile(req.ControlImage, filepath.Join(p.opts.InputDir, controlFilename)); err != nil {
		return resp, invalidInputError{msg: fmt.Sprintf("control_image: %v", err)}
	}

	seed := generateSeed(req.Seed)
	p.log.Info().Int64("seed", seed).Str("control_type", req.ControlType).Msg("starting prediction")

	g, err := workflow.Load(p.opts.WorkflowPath)
	if err != nil {
		return resp, err
	}
	if err := workflow.Apply(g, workflow.Params{
		Prompt:               req.Prompt,
		NegativePrompt:       req.NegativePrompt,
		GuidanceScale:        *req.GuidanceScale,
		Steps:                req.Steps,
		Seed:                 seed,
		ControlType:          req.ControlType,
		ControlStrength:      *req.ControlStrength,
		ControlImageFilename: controlFilename,
		ImageToImageStrength: req.ImageToImageStrength,
		DepthPreprocessor:    req.DepthPreprocessor,
		SoftEdgePreprocessor: req.SoftEdgePreprocessor,
	}); err != nil {
		return resp, err
	}

	promptID, err := p.opts.Comfy.Run(ctx, g)
	if err != nil {
		return resp, err
	}

	files, err := p.collectOutputs(ctx, promptID, req.ReturnPreprocessedImage)
	if err != nil {
		return resp, err
	}
	outputs, err := optimiseImages(req.OutputFormat, req.OutputQuality, files)
	if err != nil {
		return resp, err
	}

	resp.Outputs = outputs
	resp.Seed = seed
	return resp, nil
}

// collectOutputs pulls the run's images from the server's history record
// over HTTP, so the server may live on another host. Final outputs land in
// the output dir; temp images in the temp dir, and only when asked for.
// A server that records nothing in its history (older builds with graphs
// writing straight to a shared directory) falls back to a directory scan.
func (p *Predictor) collectOutputs(ctx context.Context, promptID string, withTemp bool) ([]string, error) {
	images, err := p.opts.Comfy.Outputs(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		dirs := []string{p.opts.OutputDir}
		if withTemp {
			dirs = append(dirs, p.opts.TempDir)
		}
		return collectFiles(dirs)
	}

	var outputs, temps []string
	for _, img := range images {
		destDir := p.opts.OutputDir
		if img.Type == "temp" {
			if !withTemp {
				continue
			}
			destDir = p.opts.TempDir
		}
		path, err := p.opts.Comfy.Download(ctx, img, destDir)
		if err != nil {
			return nil, err
		}
		if img.Type == "temp" {
			temps = append(temps, path)
		} else {
			outputs = append(outputs, path)
		}
	}
	sort.Strings(outputs)
	sort.Strings(temps)
	return append(outputs, temps...), nil
}

// collectFiles lists regular files under dirs, sorted per directory.
func collectFiles(dirs []string) ([]string, error) {
	var files []string
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range entries {
			if e.Type().IsRegular() {
				names = append(names, filepath.Join(d, e.Name()))
			}
		}
		sort.Strings(names)
		files = append(files, names...)
	}
	return files, nil
}
