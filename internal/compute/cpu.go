package compute

import (
	"context"

	"github.com/rs/zerolog"
)

// CPU is the fallback backend: the same kernel pipeline executed without
// device staging, producing output of the same shape as the GPU backend.
type CPU struct {
	launch launcher
	log    zerolog.Logger
}

func NewCPU(cfg Config, log zerolog.Logger) *CPU {
	launch := launcher(serialLaunch)
	if cfg.Workers > 1 {
		launch = tiledLauncher(cfg.Workers, 16)
	}
	return &CPU{launch: launch, log: log}
}

func (c *CPU) Name() string { return "cpu" }

func (c *CPU) Execute(ctx context.Context, spec ExecSpec, input []float32) ([]float32, error) {
	return runPlan(ctx, spec, input, c.launch)
}

func (c *CPU) Close() error { return nil }
