package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

func defaultParams() Params {
	return Params{
		Prompt:               "a cat in a hat",
		NegativePrompt:       "blurry",
		GuidanceScale:        3.5,
		Steps:                28,
		Seed:                 1234,
		ControlType:          "depth",
		ControlStrength:      0.5,
		ControlImageFilename: "control_image.png",
		ImageToImageStrength: 0.1,
		DepthPreprocessor:    "DepthAnything",
		SoftEdgePreprocessor: "HED",
	}
}

func TestLoadEmbeddedDefault(t *testing.T) {
	g, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, id := range []string{"3", "13", "14", "16", "51", "53", "57"} {
		if _, ok := g[id]; !ok {
			t.Errorf("embedded graph missing node %q", id)
		}
	}
}

func TestLoadReturnsFreshDocument(t *testing.T) {
	a, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Apply(a, defaultParams()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	b, err := Load("")
	if err != nil {
		t.Fatalf("load again: %v", err)
	}
	if got := b["53"].Inputs["clip_l"]; got == "a cat in a hat" {
		t.Fatalf("mutation leaked into a fresh load")
	}
}

func TestApply(t *testing.T) {
	g, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := defaultParams()
	if err := Apply(g, p); err != nil {
		t.Fatalf("apply: %v", err)
	}

	pos := g["53"].Inputs
	if pos["clip_l"] != p.Prompt || pos["t5xxl"] != p.Prompt {
		t.Errorf("positive prompt not applied: %v", pos)
	}
	if pos["guidance"] != p.GuidanceScale {
		t.Errorf("positive guidance = %v", pos["guidance"])
	}

	neg := g["57"].Inputs
	if neg["clip_l"] != "nsfw, blurry" || neg["t5xxl"] != "nsfw, blurry" {
		t.Errorf("negative prompt not applied: %v", neg)
	}

	if g["16"].Inputs["image"] != "control_image.png" {
		t.Errorf("control image = %v", g["16"].Inputs["image"])
	}
	if g["14"].Inputs["strength"] != 0.5 {
		t.Errorf("control strength = %v", g["14"].Inputs["strength"])
	}

	sampler := g["3"].Inputs
	if sampler["steps"] != 28 || sampler["seed"] != int64(1234) || sampler["noise_seed"] != int64(1234) {
		t.Errorf("sampler not applied: %v", sampler)
	}
	if sampler["true_gs"] != 3.5 || sampler["image_to_image_strength"] != 0.1 {
		t.Errorf("sampler guidance not applied: %v", sampler)
	}

	if g["13"].Inputs["controlnet_path"] != "flux-depth-controlnet-v3.safetensors" {
		t.Errorf("control weights = %v", g["13"].Inputs["controlnet_path"])
	}
	if g["51"].Inputs["preprocessor"] != "DepthAnythingPreprocessor" {
		t.Errorf("preprocessor = %v", g["51"].Inputs["preprocessor"])
	}
}

func TestApplyPreprocessorSelection(t *testing.T) {
	cases := []struct {
		controlType string
		want        string
	}{
		{"canny", "CannyEdgePreprocessor"},
		{"soft_edge", "HEDPreprocessor"},
		{"depth", "DepthAnythingPreprocessor"},
	}
	for _, c := range cases {
		g, err := Load("")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		p := defaultParams()
		p.ControlType = c.controlType
		if err := Apply(g, p); err != nil {
			t.Fatalf("apply %s: %v", c.controlType, err)
		}
		if got := g["51"].Inputs["preprocessor"]; got != c.want {
			t.Errorf("control type %s: preprocessor = %v, want %s", c.controlType, got, c.want)
		}
	}
}

func TestApplyUnknownControlType(t *testing.T) {
	g, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := defaultParams()
	p.ControlType = "pose"
	if err := Apply(g, p); err == nil {
		t.Fatalf("expected error for unknown control type")
	}
}

func TestApplyMissingNode(t *testing.T) {
	g := Graph{"3": {Inputs: map[string]any{}}}
	if err := Apply(g, defaultParams()); err == nil {
		t.Fatalf("expected error for graph missing fixed nodes")
	}
}

func TestLoadFromFile(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "wf.json")
	if err := os.WriteFile(p, []byte(`{"1":{"inputs":{"x":1},"class_type":"Test"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	g, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if g["1"].ClassType != "Test" {
		t.Fatalf("unexpected graph: %+v", g)
	}
	if _, err := Load(filepath.Join(d, "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTables(t *testing.T) {
	if _, err := PreprocessorID("NotReal"); err == nil {
		t.Errorf("expected error for unknown preprocessor")
	}
	id, err := PreprocessorID("Zoe-DepthAnything")
	if err != nil || id != "Zoe_DepthAnythingPreprocessor" {
		t.Errorf("PreprocessorID = %q, %v", id, err)
	}
	f, err := ControlWeightsFile("soft_edge")
	if err != nil || f != "flux-hed-controlnet-v3.safetensors" {
		t.Errorf("ControlWeightsFile = %q, %v", f, err)
	}
}
