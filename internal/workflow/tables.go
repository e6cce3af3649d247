package workflow

import "fmt"

// preprocessorIDs maps human-facing preprocessor labels to the node ids the
// generation server understands.
var preprocessorIDs = map[string]string{
	"Canny":             "CannyEdgePreprocessor",
	"Midas":             "MiDaS-DepthMapPreprocessor",
	"Zoe":               "Zoe-DepthMapPreprocessor",
	"DepthAnything":     "DepthAnythingPreprocessor",
	"Zoe-DepthAnything": "Zoe_DepthAnythingPreprocessor",
	"HED":               "HEDPreprocessor",
	"TEED":              "TEEDPreprocessor",
	"PiDiNet":           "PiDiNetPreprocessor",
}

// controlWeightsFiles maps a control type to its controlnet weights file.
var controlWeightsFiles = map[string]string{
	"canny":     "flux-canny-controlnet-v3.safetensors",
	"soft_edge": "flux-hed-controlnet-v3.safetensors",
	"depth":     "flux-depth-controlnet-v3.safetensors",
}

// PreprocessorID resolves a preprocessor label to its server-side identifier.
func PreprocessorID(label string) (string, error) {
	id, ok := preprocessorIDs[label]
	if !ok {
		return "", fmt.Errorf("unknown preprocessor: %q", label)
	}
	return id, nil
}

// ControlWeightsFile resolves a control type to its weights file.
func ControlWeightsFile(controlType string) (string, error) {
	f, ok := controlWeightsFiles[controlType]
	if !ok {
		return "", fmt.Errorf("unknown control type: %q", controlType)
	}
	return f, nil
}
