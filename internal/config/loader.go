package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr             string `json:"addr" yaml:"addr" toml:"addr"`
	LorasDir         string `json:"loras_dir" yaml:"loras_dir" toml:"loras_dir"`
	StagingDir       string `json:"staging_dir" yaml:"staging_dir" toml:"staging_dir"`
	OutputDir        string `json:"output_dir" yaml:"output_dir" toml:"output_dir"`
	InputDir         string `json:"input_dir" yaml:"input_dir" toml:"input_dir"`
	ComfyAddr        string `json:"comfy_addr" yaml:"comfy_addr" toml:"comfy_addr"`
	WorkflowPath     string `json:"workflow_path" yaml:"workflow_path" toml:"workflow_path"`
	PgetPath         string `json:"pget_path" yaml:"pget_path" toml:"pget_path"`
	FetchTimeoutSecs int    `json:"fetch_timeout_secs" yaml:"fetch_timeout_secs" toml:"fetch_timeout_secs"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
