package engine

import (
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/compute"
	"inferd/internal/registry"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxBatchSize  = 4
	defaultMaxQueueDepth = 64
	defaultInferTimeout  = 30 * time.Second
)

// Config encapsulates all tunables for Engine construction.
type Config struct {
	// Registry to serve from; New creates an empty one when nil.
	Registry *registry.Registry
	// Backend overrides the computed selection; used by tests and callers
	// embedding their own execution strategy.
	Backend compute.Backend
	// Compute tunes backend selection when Backend is nil.
	Compute compute.Config
	// MaxBatchSize bounds concurrently running requests. It does not group
	// requests into a single backend call.
	MaxBatchSize int
	// MaxQueueDepth bounds accepted-but-not-running requests; excess
	// submissions fail synchronously with a queue-full error.
	MaxQueueDepth int
	// DefaultTimeout applies to requests that do not carry their own.
	DefaultTimeout time.Duration
	Logger         zerolog.Logger
}

func (c *Config) applyDefaults() {
	if c.Registry == nil {
		c.Registry = registry.New()
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = defaultMaxBatchSize
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultInferTimeout
	}
}
