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

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ManifestPath string `json:"manifest_path" yaml:"manifest_path" toml:"manifest_path"`

	MaxBatchSize     int   `json:"max_batch_size" yaml:"max_batch_size" toml:"max_batch_size"`
	MaxQueueDepth    int   `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	DefaultTimeoutMS int64 `json:"default_timeout_ms" yaml:"default_timeout_ms" toml:"default_timeout_ms"`

	GPUEnabled bool `json:"gpu_enabled" yaml:"gpu_enabled" toml:"gpu_enabled"`
	GPUDevice  int  `json:"gpu_device" yaml:"gpu_device" toml:"gpu_device"`
	GPUWorkers int  `json:"gpu_workers" yaml:"gpu_workers" toml:"gpu_workers"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`
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
