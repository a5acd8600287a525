package registry

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"inferd/pkg/types"
)

// ManifestEntry describes one model in a manifest file. WeightsPath, when
// set, points at a raw little-endian float32 file loaded at startup.
type ManifestEntry struct {
	ID          string   `json:"id" yaml:"id" toml:"id"`
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Version     string   `json:"version" yaml:"version" toml:"version"`
	Type        string   `json:"type" yaml:"type" toml:"type"`
	Modality    string   `json:"modality" yaml:"modality" toml:"modality"`
	Specialty   string   `json:"specialty" yaml:"specialty" toml:"specialty"`
	InputShape  []int    `json:"input_shape" yaml:"input_shape" toml:"input_shape"`
	OutputShape []int    `json:"output_shape" yaml:"output_shape" toml:"output_shape"`
	Description string   `json:"description" yaml:"description" toml:"description"`
	Approval    string   `json:"approval_status" yaml:"approval_status" toml:"approval_status"`
	Tags        []string `json:"tags" yaml:"tags" toml:"tags"`

	Accuracy             float64 `json:"accuracy" yaml:"accuracy" toml:"accuracy"`
	ExpectedInferenceMS  float64 `json:"expected_inference_ms" yaml:"expected_inference_ms" toml:"expected_inference_ms"`
	CalibratedConfidence float64 `json:"calibrated_confidence" yaml:"calibrated_confidence" toml:"calibrated_confidence"`

	Explainability string `json:"explainability" yaml:"explainability" toml:"explainability"`

	WeightsPath string `json:"weights_path" yaml:"weights_path" toml:"weights_path"`
}

// Manifest is the top-level document of a models manifest file.
type Manifest struct {
	Models []ManifestEntry `json:"models" yaml:"models" toml:"models"`
}

// LoadManifest reads a models manifest based on its extension.
// Supports: .yaml/.yml, .json, .toml
func LoadManifest(path string) (Manifest, error) {
	var mf Manifest
	if path == "" {
		return mf, fmt.Errorf("empty manifest path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return mf, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &mf); err != nil {
			return mf, err
		}
	case ".json":
		if err := json.Unmarshal(b, &mf); err != nil {
			return mf, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &mf); err != nil {
			return mf, err
		}
	default:
		return mf, fmt.Errorf("unsupported manifest extension: %s", ext)
	}
	return mf, nil
}

// Model converts a manifest entry into a catalog descriptor.
func (e ManifestEntry) Model() types.Model {
	name := e.Name
	if name == "" {
		name = e.ID
	}
	return types.Model{
		ID:          e.ID,
		Name:        name,
		Version:     e.Version,
		Type:        types.ModelType(e.Type),
		Modality:    e.Modality,
		Specialty:   e.Specialty,
		InputShape:  e.InputShape,
		OutputShape: e.OutputShape,
		Metadata: types.ModelMetadata{
			Description:    e.Description,
			ApprovalStatus: e.Approval,
			Tags:           e.Tags,
		},
		Performance: types.ModelPerformance{
			Accuracy:             e.Accuracy,
			ExpectedInferenceMS:  e.ExpectedInferenceMS,
			CalibratedConfidence: e.CalibratedConfidence,
		},
		Compliance: types.ModelCompliance{
			Explainability: types.ExplainabilityLevel(e.Explainability),
		},
	}
}

// ReadWeightsFile loads a raw little-endian float32 weights file.
func ReadWeightsFile(path string) ([]float32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("weights file %s: size %d not a multiple of 4", path, len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
