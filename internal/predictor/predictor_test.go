package predictor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"lorad/internal/comfy"
	"lorad/internal/workflow"
	"lorad/pkg/types"
)

// fakeRunner pretends to be the generation server: it records the graph and
// drops canned output files into the output dirs, the way a colocated
// server writes into them. When images is set it instead reports them via
// the history listing and serves their bytes through Download.
type fakeRunner struct {
	graphs    []workflow.Graph
	outputs   map[string][]byte // relative to outputDir
	tempFiles map[string][]byte // relative to tempDir
	images    []comfy.OutputImage
	data      map[string][]byte // by filename, served via Download
	outputDir string
	tempDir   string
	healthy   bool
	err       error
	downloads int
}

func (f *fakeRunner) Healthy(ctx context.Context) bool { return f.healthy }

func (f *fakeRunner) Run(ctx context.Context, g workflow.Graph) (string, error) {
	f.graphs = append(f.graphs, g)
	if f.err != nil {
		return "", f.err
	}
	for name, b := range f.outputs {
		if err := os.WriteFile(filepath.Join(f.outputDir, name), b, 0o644); err != nil {
			return "", err
		}
	}
	for name, b := range f.tempFiles {
		if err := os.WriteFile(filepath.Join(f.tempDir, name), b, 0o644); err != nil {
			return "", err
		}
	}
	return "prompt-1", nil
}

func (f *fakeRunner) Outputs(ctx context.Context, promptID string) ([]comfy.OutputImage, error) {
	return f.images, nil
}

func (f *fakeRunner) Download(ctx context.Context, img comfy.OutputImage, destDir string) (string, error) {
	f.downloads++
	dest := filepath.Join(destDir, img.Filename)
	if err := os.WriteFile(dest, f.data[img.Filename], 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

func floatPtr(v float64) *float64 { return &v }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestPredictor(t *testing.T, outputs map[string][]byte) (*Predictor, *fakeRunner, string) {
	t.Helper()
	d := t.TempDir()
	outDir := filepath.Join(d, "outputs")
	inDir := filepath.Join(d, "inputs")
	tempDir := filepath.Join(d, "comfy-temp")
	r := &fakeRunner{outputs: outputs, outputDir: outDir, tempDir: tempDir, healthy: true}
	p := New(Options{
		OutputDir: outDir,
		InputDir:  inDir,
		TempDir:   tempDir,
		Comfy:     r,
		Logger:    zerolog.Nop(),
	})
	return p, r, d
}

func validRequest(t *testing.T, dir string) types.PredictionRequest {
	t.Helper()
	src := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(src, pngBytes(t), 0o644); err != nil {
		t.Fatalf("write control image: %v", err)
	}
	return types.PredictionRequest{
		Prompt:       "a lighthouse at dusk",
		ControlImage: src,
		Seed:         42,
	}
}

func TestPredict(t *testing.T) {
	p, r, d := newTestPredictor(t, map[string][]byte{})
	r.outputs["ComfyUI_00001_.png"] = pngBytes(t)
	req := validRequest(t, d)

	resp, err := p.Predict(context.Background(), req)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if resp.Seed != 42 {
		t.Errorf("seed = %d", resp.Seed)
	}
	if len(resp.Outputs) != 1 || filepath.Base(resp.Outputs[0]) != "ComfyUI_00001_.png" {
		t.Errorf("outputs = %v", resp.Outputs)
	}

	// control image staged under the fixed name, extension preserved
	if _, err := os.Stat(filepath.Join(p.opts.InputDir, "control_image.png")); err != nil {
		t.Errorf("control image not staged: %v", err)
	}

	// graph carried the request values and defaults
	if len(r.graphs) != 1 {
		t.Fatalf("runner calls = %d", len(r.graphs))
	}
	g := r.graphs[0]
	if g["53"].Inputs["clip_l"] != "a lighthouse at dusk" {
		t.Errorf("prompt not applied: %v", g["53"].Inputs)
	}
	if g["3"].Inputs["steps"] != 28 {
		t.Errorf("default steps not applied: %v", g["3"].Inputs["steps"])
	}
	if g["13"].Inputs["controlnet_path"] != "flux-depth-controlnet-v3.safetensors" {
		t.Errorf("default control type not applied: %v", g["13"].Inputs)
	}
	if g["16"].Inputs["image"] != "control_image.png" {
		t.Errorf("control image filename not applied: %v", g["16"].Inputs)
	}
}

func TestPredictRandomSeed(t *testing.T) {
	p, r, d := newTestPredictor(t, map[string][]byte{})
	r.outputs["out.png"] = pngBytes(t)
	req := validRequest(t, d)
	req.Seed = 0

	resp, err := p.Predict(context.Background(), req)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if resp.Seed <= 0 || resp.Seed >= maxSeed {
		t.Fatalf("generated seed out of range: %d", resp.Seed)
	}
	if got := r.graphs[0]["3"].Inputs["seed"]; got != resp.Seed {
		t.Fatalf("graph seed %v != response seed %d", got, resp.Seed)
	}
}

func TestPredictJPEGOutput(t *testing.T) {
	p, r, d := newTestPredictor(t, map[string][]byte{})
	r.outputs["out.png"] = pngBytes(t)
	req := validRequest(t, d)
	req.OutputFormat = "jpg"
	req.OutputQuality = 90

	resp, err := p.Predict(context.Background(), req)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(resp.Outputs) != 1 || !strings.HasSuffix(resp.Outputs[0], "out.jpg") {
		t.Fatalf("outputs = %v", resp.Outputs)
	}
	if _, err := os.Stat(resp.Outputs[0]); err != nil {
		t.Fatalf("converted file missing: %v", err)
	}
}

func TestPredictReturnPreprocessedImage(t *testing.T) {
	p, r, d := newTestPredictor(t, map[string][]byte{})
	r.outputs["out.png"] = pngBytes(t)
	r.tempFiles = map[string][]byte{"preprocessed.png": pngBytes(t)}
	req := validRequest(t, d)
	req.ReturnPreprocessedImage = true

	resp, err := p.Predict(context.Background(), req)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(resp.Outputs) != 2 {
		t.Fatalf("outputs = %v", resp.Outputs)
	}
}

func TestPredictExplicitZeroValues(t *testing.T) {
	p, r, d := newTestPredictor(t, map[string][]byte{})
	r.outputs["out.png"] = pngBytes(t)
	req := validRequest(t, d)
	req.GuidanceScale = floatPtr(0)
	req.ControlStrength = floatPtr(0)

	if _, err := p.Predict(context.Background(), req); err != nil {
		t.Fatalf("predict: %v", err)
	}
	g := r.graphs[0]
	if g["53"].Inputs["guidance"] != 0.0 {
		t.Errorf("explicit guidance 0 rewritten: %v", g["53"].Inputs["guidance"])
	}
	if g["14"].Inputs["strength"] != 0.0 {
		t.Errorf("explicit control strength 0 rewritten: %v", g["14"].Inputs["strength"])
	}
}

func TestPredictDownloadsListedOutputs(t *testing.T) {
	p, r, d := newTestPredictor(t, map[string][]byte{})
	r.images = []comfy.OutputImage{
		{Filename: "ComfyUI_00001_.png", Type: "output"},
		{Filename: "preprocessed.png", Type: "temp"},
	}
	r.data = map[string][]byte{
		"ComfyUI_00001_.png": pngBytes(t),
		"preprocessed.png":   pngBytes(t),
	}
	req := validRequest(t, d)

	resp, err := p.Predict(context.Background(), req)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(resp.Outputs) != 1 || filepath.Base(resp.Outputs[0]) != "ComfyUI_00001_.png" {
		t.Fatalf("outputs = %v", resp.Outputs)
	}
	if r.downloads != 1 {
		t.Errorf("downloads = %d, temp image should be skipped", r.downloads)
	}
	if _, err := os.Stat(filepath.Join(p.opts.OutputDir, "ComfyUI_00001_.png")); err != nil {
		t.Errorf("output not downloaded into output dir: %v", err)
	}

	req.ReturnPreprocessedImage = true
	resp, err = p.Predict(context.Background(), req)
	if err != nil {
		t.Fatalf("predict with preprocessed: %v", err)
	}
	if len(resp.Outputs) != 2 || filepath.Base(resp.Outputs[1]) != "preprocessed.png" {
		t.Fatalf("outputs = %v", resp.Outputs)
	}
	if _, err := os.Stat(filepath.Join(p.opts.TempDir, "preprocessed.png")); err != nil {
		t.Errorf("temp image not downloaded into temp dir: %v", err)
	}
}

func TestPredictValidation(t *testing.T) {
	p, _, d := newTestPredictor(t, map[string][]byte{})
	base := validRequest(t, d)

	cases := []struct {
		name   string
		mutate func(*types.PredictionRequest)
	}{
		{"missing control image", func(r *types.PredictionRequest) { r.ControlImage = "" }},
		{"bad control type", func(r *types.PredictionRequest) { r.ControlType = "pose" }},
		{"steps too high", func(r *types.PredictionRequest) { r.Steps = 51 }},
		{"guidance too high", func(r *types.PredictionRequest) { r.GuidanceScale = floatPtr(5.5) }},
		{"control strength too high", func(r *types.PredictionRequest) { r.ControlStrength = floatPtr(3.5) }},
		{"i2i strength too high", func(r *types.PredictionRequest) { r.ImageToImageStrength = 1.5 }},
		{"bad depth preprocessor", func(r *types.PredictionRequest) { r.DepthPreprocessor = "Sobel" }},
		{"bad output format", func(r *types.PredictionRequest) { r.OutputFormat = "tiff" }},
		{"jpeg spelling rejected", func(r *types.PredictionRequest) { r.OutputFormat = "jpeg" }},
		{"nonexistent control image", func(r *types.PredictionRequest) { r.ControlImage = filepath.Join(d, "nope.png") }},
	}
	for _, c := range cases {
		req := base
		c.mutate(&req)
		_, err := p.Predict(context.Background(), req)
		if err == nil || !IsInvalidInput(err) {
			t.Errorf("%s: expected invalid input error, got %v", c.name, err)
		}
	}
}

func TestPredictRunnerError(t *testing.T) {
	p, r, d := newTestPredictor(t, map[string][]byte{})
	r.err = context.DeadlineExceeded
	req := validRequest(t, d)
	if _, err := p.Predict(context.Background(), req); err == nil {
		t.Fatalf("expected runner error to propagate")
	}
}

func TestGenerateSeed(t *testing.T) {
	if got := generateSeed(7); got != 7 {
		t.Fatalf("explicit seed changed: %d", got)
	}
	for i := 0; i < 100; i++ {
		if got := generateSeed(0); got <= 0 || got >= maxSeed {
			t.Fatalf("generated seed out of range: %d", got)
		}
	}
}
