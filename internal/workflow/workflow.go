// Package workflow loads the fixed generation workflow graph and rewrites
// the node fields that vary per request. The graph is the server's own wire
// format: a JSON object keyed by node id. There is no schema validation;
// drift between the expected shape and the loaded document surfaces as a
// node-lookup error at configuration time.
package workflow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed workflow_api.json
var defaultGraph []byte

// Node is one entry of the workflow graph.
type Node struct {
	Inputs    map[string]any `json:"inputs"`
	ClassType string         `json:"class_type,omitempty"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Graph maps node id to node definition.
type Graph map[string]Node

// Fixed node ids the configurator rewrites.
const (
	nodeSampler         = "3"
	nodeControlWeights  = "13"
	nodeControlStrength = "14"
	nodeControlImage    = "16"
	nodePreprocessor    = "51"
	nodePositivePrompt  = "53"
	nodeNegativePrompt  = "57"
)

// Params are the request values written into the graph.
type Params struct {
	Prompt               string
	NegativePrompt       string
	GuidanceScale        float64
	Steps                int
	Seed                 int64
	ControlType          string
	ControlStrength      float64
	ControlImageFilename string
	ImageToImageStrength float64
	DepthPreprocessor    string
	SoftEdgePreprocessor string
}

// Parse decodes a workflow graph document.
func Parse(b []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	return g, nil
}

// Load reads the graph at path, or the embedded default when path is empty.
// Each call returns a fresh document so per-request mutation never leaks
// between runs.
func Load(path string) (Graph, error) {
	if path == "" {
		return Parse(defaultGraph)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func (g Graph) inputs(id string) (map[string]any, error) {
	n, ok := g[id]
	if !ok {
		return nil, fmt.Errorf("workflow node %q not in graph", id)
	}
	if n.Inputs == nil {
		return nil, fmt.Errorf("workflow node %q has no inputs", id)
	}
	return n.Inputs, nil
}

// Apply rewrites the fixed node set from p. The graph is mutated in place.
func Apply(g Graph, p Params) error {
	positive, err := g.inputs(nodePositivePrompt)
	if err != nil {
		return err
	}
	positive["clip_l"] = p.Prompt
	positive["t5xxl"] = p.Prompt
	positive["guidance"] = p.GuidanceScale

	negative, err := g.inputs(nodeNegativePrompt)
	if err != nil {
		return err
	}
	negative["clip_l"] = "nsfw, " + p.NegativePrompt
	negative["t5xxl"] = "nsfw, " + p.NegativePrompt
	negative["guidance"] = p.GuidanceScale

	controlImage, err := g.inputs(nodeControlImage)
	if err != nil {
		return err
	}
	controlImage["image"] = p.ControlImageFilename

	controlStrength, err := g.inputs(nodeControlStrength)
	if err != nil {
		return err
	}
	controlStrength["strength"] = p.ControlStrength

	sampler, err := g.inputs(nodeSampler)
	if err != nil {
		return err
	}
	sampler["steps"] = p.Steps
	sampler["noise_seed"] = p.Seed
	sampler["seed"] = p.Seed
	sampler["true_gs"] = p.GuidanceScale
	sampler["image_to_image_strength"] = p.ImageToImageStrength

	weightsFile, err := ControlWeightsFile(p.ControlType)
	if err != nil {
		return err
	}
	controlWeights, err := g.inputs(nodeControlWeights)
	if err != nil {
		return err
	}
	controlWeights["controlnet_path"] = weightsFile

	label := "Canny"
	switch p.ControlType {
	case "depth":
		label = p.DepthPreprocessor
	case "soft_edge":
		label = p.SoftEdgePreprocessor
	}
	preprocessorID, err := PreprocessorID(label)
	if err != nil {
		return err
	}
	preprocessor, err := g.inputs(nodePreprocessor)
	if err != nil {
		return err
	}
	preprocessor["preprocessor"] = preprocessorID

	return nil
}
