// Package compute provides the execution strategy that turns a prepared
// numeric buffer into a raw output buffer for one model. Two interchangeable
// backends exist: a GPU-style kernel pipeline over a shared device handle,
// and a CPU fallback producing the same-shaped output. The choice is made
// once at engine construction, never per request.
package compute

import (
	"context"

	"github.com/rs/zerolog"
)

// ExecSpec is the slice of model state a backend needs to execute: declared
// shapes and the weight stream. Weights are treated as an opaque parameter
// blob; backends consume them in a fixed order derived from the shapes.
type ExecSpec struct {
	ModelID     string
	InputShape  []int
	OutputShape []int
	Weights     []float32
}

// Backend executes one model against prepared input. Execute is
// deterministic in shape (flattened OutputShape length) for a given spec.
// Implementations must honor ctx between kernel launches; work already
// inside a kernel runs to completion and its output is discarded by the
// caller.
type Backend interface {
	Name() string
	Execute(ctx context.Context, spec ExecSpec, input []float32) ([]float32, error)
	Close() error
}

// Config selects and tunes the backend at engine construction.
type Config struct {
	// EnableGPU requests the device-accelerated backend. If no device can
	// be acquired the engine falls back to CPU.
	EnableGPU bool
	// DeviceIndex selects the compute device in multi-device hosts.
	DeviceIndex int
	// Workers bounds kernel work-group parallelism; 0 means GOMAXPROCS.
	Workers int
}

// Select picks the backend once at initialization: GPU when a device is
// present and acceleration is enabled, else CPU.
func Select(cfg Config, log zerolog.Logger) Backend {
	if cfg.EnableGPU {
		g, err := NewGPU(cfg, log)
		if err == nil {
			log.Info().Str("backend", g.Name()).Int("device", cfg.DeviceIndex).Msg("compute backend selected")
			return g
		}
		log.Warn().Err(err).Msg("gpu unavailable, falling back to cpu backend")
	}
	c := NewCPU(cfg, log)
	log.Info().Str("backend", c.Name()).Msg("compute backend selected")
	return c
}
