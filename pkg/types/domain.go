package types

import "time"

// ModelType is the task category a model solves.
type ModelType string

const (
	ModelClassification ModelType = "classification"
	ModelSegmentation   ModelType = "segmentation"
	ModelDetection      ModelType = "detection"
	ModelRegression     ModelType = "regression"
	ModelGenerative     ModelType = "generative"
)

// ExplainabilityLevel declares how much post-hoc attribution a model supports.
type ExplainabilityLevel string

const (
	ExplainabilityNone    ExplainabilityLevel = "none"
	ExplainabilityPartial ExplainabilityLevel = "partial"
	ExplainabilityFull    ExplainabilityLevel = "full"
)

// Priority orders queued requests. Higher ranks dequeue first; FIFO among equals.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank maps a priority to its dispatch order. Unknown values rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// ModelMetadata carries free-form provenance and approval info.
type ModelMetadata struct {
	Description    string   `json:"description,omitempty"`
	Provenance     string   `json:"provenance,omitempty"`
	ApprovalStatus string   `json:"approval_status,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// ModelPerformance holds point-estimate validation figures.
type ModelPerformance struct {
	Accuracy    float64 `json:"accuracy,omitempty"`
	Sensitivity float64 `json:"sensitivity,omitempty"`
	Specificity float64 `json:"specificity,omitempty"`
	AUC         float64 `json:"auc,omitempty"`
	// Expected wall-clock inference time in milliseconds.
	ExpectedInferenceMS float64 `json:"expected_inference_ms,omitempty"`
	// Calibration-derived confidence for regression/generative outputs.
	// Zero means "not calibrated"; the engine falls back to a default.
	CalibratedConfidence float64 `json:"calibrated_confidence,omitempty"`
}

// ModelCompliance records regulatory and ethics posture.
type ModelCompliance struct {
	Approvals      []string            `json:"approvals,omitempty"`
	Explainability ExplainabilityLevel `json:"explainability,omitempty"`
	BiasAudited    bool                `json:"bias_audited,omitempty"`
	EthicsFlags    []string            `json:"ethics_flags,omitempty"`
}

// Model describes a registered AI artifact. Weights are attached separately
// via the registry's Load; Loaded reflects whether they are present.
type Model struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Version     string           `json:"version,omitempty"`
	Type        ModelType        `json:"type"`
	Modality    string           `json:"modality,omitempty"`
	Specialty   string           `json:"specialty,omitempty"`
	InputShape  []int            `json:"input_shape"`
	OutputShape []int            `json:"output_shape"`
	Metadata    ModelMetadata    `json:"metadata,omitempty"`
	Performance ModelPerformance `json:"performance,omitempty"`
	Compliance  ModelCompliance  `json:"compliance,omitempty"`
	Loaded      bool             `json:"loaded"`
}

// InputKind distinguishes the variants of InputData.
type InputKind string

const (
	InputSingle     InputKind = "single"     // one contiguous buffer
	InputSeries     InputKind = "series"     // ordered multi-buffer series (e.g. slices)
	InputMultiModal InputKind = "multimodal" // heterogeneous buffer set
)

// CropRect selects a sub-rectangle during preprocessing.
type CropRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// IntensityWindow clamps values to [Center-Width/2, Center+Width/2] and
// rescales the window to [0,1].
type IntensityWindow struct {
	Center float64 `json:"center"`
	Width  float64 `json:"width"`
}

// PreprocessConfig toggles the individual preprocessing steps. The step
// order is fixed: concatenate, normalize, window, filters, resize/crop.
type PreprocessConfig struct {
	Normalize bool             `json:"normalize,omitempty"`
	ResizeTo  []int            `json:"resize_to,omitempty"`
	Crop      *CropRect        `json:"crop,omitempty"`
	Window    *IntensityWindow `json:"window,omitempty"`
	// Named spatial filters applied in order: "smooth", "sharpen", "edge".
	// Unknown names are rejected at admission.
	Filters []string `json:"filters,omitempty"`
}

// InputData is the tagged union of accepted input forms. Dims describes the
// per-buffer dimensions (width, height, channels; depth for volumes).
type InputData struct {
	Kind       InputKind         `json:"kind"`
	Buffers    [][]float32       `json:"buffers"`
	Dims       []int             `json:"dims"`
	Preprocess *PreprocessConfig `json:"preprocess,omitempty"`
}

// InferenceRequest is one unit of work submitted to the engine. ID is
// assigned at admission and returned to the caller.
type InferenceRequest struct {
	ID         string         `json:"id,omitempty"`
	ModelID    string         `json:"model_id"`
	Input      InputData      `json:"input"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   Priority       `json:"priority,omitempty"`
	// Zero means the engine default applies.
	Timeout time.Duration `json:"timeout_ns,omitempty"`
	// Request an explanation; honored only if the model's compliance allows.
	Explain bool `json:"explain,omitempty"`
}

// ResultStatus is the terminal state of an accepted request.
type ResultStatus string

const (
	StatusSuccess   ResultStatus = "success"
	StatusError     ResultStatus = "error"
	StatusTimeout   ResultStatus = "timeout"
	StatusCancelled ResultStatus = "cancelled"
)

// Prediction is one classification candidate.
type Prediction struct {
	Class       int     `json:"class"`
	Probability float64 `json:"probability"`
}

// ClassificationOutput carries the full probability vector plus top-K.
type ClassificationOutput struct {
	Probabilities []float64    `json:"probabilities"`
	TopK          []Prediction `json:"top_k"`
}

// Region is a connected component of a segmentation mask.
type Region struct {
	ID   int `json:"id"`
	Area int `json:"area"`
}

// SegmentationOutput is a binary mask plus its connected regions.
type SegmentationOutput struct {
	Mask    []uint8  `json:"mask"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Regions []Region `json:"regions"`
}

// Box is one detection candidate in pixel coordinates.
type Box struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Score float64 `json:"score"`
	Class int     `json:"class"`
}

// DetectionOutput is the post-NMS box set.
type DetectionOutput struct {
	Boxes []Box `json:"boxes"`
}

// RawOutput passes regression/generative values through untransformed.
type RawOutput struct {
	Values []float64 `json:"values"`
}

// Output is the task-typed result payload; exactly one member is set,
// matching Type.
type Output struct {
	Type           ModelType             `json:"type"`
	Classification *ClassificationOutput `json:"classification,omitempty"`
	Segmentation   *SegmentationOutput   `json:"segmentation,omitempty"`
	Detection      *DetectionOutput      `json:"detection,omitempty"`
	Raw            *RawOutput            `json:"raw,omitempty"`
}

// Attribution scores one input feature or region.
type Attribution struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Explanation is the optional post-hoc attribution for a result.
type Explanation struct {
	Method       string        `json:"method"`
	Attributions []Attribution `json:"attributions"`
	Summary      string        `json:"summary"`
}

// ResultMetrics breaks down where a request spent its time. ExplainTime is
// excluded from InferenceTime but included in TotalTime.
type ResultMetrics struct {
	PreprocessTime  time.Duration `json:"preprocess_ns"`
	InferenceTime   time.Duration `json:"inference_ns"`
	PostprocessTime time.Duration `json:"postprocess_ns"`
	ExplainTime     time.Duration `json:"explain_ns"`
	TotalTime       time.Duration `json:"total_ns"`
	MemoryBytes     int64         `json:"memory_bytes"`
	// Elements processed per second over InferenceTime.
	Throughput float64 `json:"throughput"`
}

// InferenceResult is the single terminal outcome of an accepted request.
type InferenceResult struct {
	RequestID   string        `json:"request_id"`
	ModelID     string        `json:"model_id"`
	Status      ResultStatus  `json:"status"`
	Output      *Output       `json:"output,omitempty"`
	Metrics     ResultMetrics `json:"metrics"`
	Confidence  float64       `json:"confidence"`
	Explanation *Explanation  `json:"explanation,omitempty"`
	Error       string        `json:"error,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

// EngineMetrics is a point-in-time snapshot of process-lifetime counters.
type EngineMetrics struct {
	TotalInferences      uint64 `json:"total_inferences"`
	SuccessfulInferences uint64 `json:"successful_inferences"`
	FailedInferences     uint64 `json:"failed_inferences"`
	// Running average of TotalTime across successful requests, in ms.
	AvgInferenceMS   float64 `json:"avg_inference_ms"`
	MemoryUsageBytes int64   `json:"memory_usage_bytes"`
	ModelsLoaded     int     `json:"models_loaded"`
}
