package types

// InferAPIRequest is the JSON body accepted by POST /infer.
type InferAPIRequest struct {
	// Target model identifier.
	// example: chest-xray-cls
	Model string `json:"model" example:"chest-xray-cls"`
	// Input buffers with their dimensions and optional preprocessing.
	Input InputData `json:"input"`
	// Scheduling priority: low|normal|high|urgent.
	// example: high
	Priority string `json:"priority,omitempty" example:"high"`
	// Per-request timeout in milliseconds; 0 uses the engine default.
	// example: 5000
	TimeoutMS int64 `json:"timeout_ms,omitempty" example:"5000"`
	// Request a model-attribution explanation when the model allows it.
	// example: true
	Explain bool `json:"explain,omitempty" example:"true"`
	// Free-form execution parameters forwarded to the pipeline.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// LoadModelRequest is the JSON body accepted by POST /models/{id}/load.
type LoadModelRequest struct {
	// Path to a raw little-endian float32 weights file on the server.
	// example: /var/lib/inferd/weights/chest-xray-cls.f32
	WeightsPath string `json:"weights_path" example:"/var/lib/inferd/weights/chest-xray-cls.f32"`
}

// ModelsResponse wraps the list of registered models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: ghost
	Error string `json:"error" example:"model not found: ghost"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// SubmitResponse acknowledges an accepted request before its result is ready.
type SubmitResponse struct {
	// Engine-assigned request id.
	// example: 7f9c5c0e-8a6d-4a3b-9c39-6a9d4b7f2f10
	RequestID string `json:"request_id" example:"7f9c5c0e-8a6d-4a3b-9c39-6a9d4b7f2f10"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Backend selected at startup (gpu or cpu).
	// example: gpu
	Backend string `json:"backend" example:"gpu"`
	// Requests waiting in the queue.
	// example: 3
	QueueLen int `json:"queue_len" example:"3"`
	// Requests currently running.
	// example: 2
	Running int `json:"running" example:"2"`
	// Concurrency cap for running requests.
	// example: 4
	MaxBatchSize int `json:"max_batch_size" example:"4"`
	// Number of models with weights attached.
	// example: 5
	ModelsLoaded int `json:"models_loaded" example:"5"`
	// Number of registered models.
	// example: 8
	ModelsRegistered int `json:"models_registered" example:"8"`
	// Uptime of the engine in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Lifetime engine counters.
	Metrics EngineMetrics `json:"metrics"`
}
