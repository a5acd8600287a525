package compute

import (
	"context"

	"github.com/rs/zerolog"
)

// GPU runs the kernel pipeline on the shared compute device. Input is
// staged into device memory before launch and the result read back after,
// so host buffers never alias device buffers.
type GPU struct {
	dev    *device
	launch launcher
	log    zerolog.Logger
}

// NewGPU acquires the compute device. Callers fall back to the CPU backend
// when acquisition fails.
func NewGPU(cfg Config, log zerolog.Logger) (*GPU, error) {
	dev, err := acquireDevice(cfg.DeviceIndex)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("device", dev.name).Int("mem_mb", dev.memMB).Msg("compute device acquired")
	return &GPU{
		dev:    dev,
		launch: tiledLauncher(cfg.Workers, 16),
		log:    log,
	}, nil
}

func (g *GPU) Name() string { return "gpu" }

func (g *GPU) Execute(ctx context.Context, spec ExecSpec, input []float32) ([]float32, error) {
	if g.dev.lost() {
		return nil, ErrExecution("execute", "device lost")
	}
	// Host -> device staging copy.
	staged := make([]float32, len(input))
	copy(staged, input)

	out, err := runPlan(ctx, spec, staged, g.dev.submitLaunch(g.launch))
	if err != nil {
		return nil, err
	}
	if g.dev.lost() {
		return nil, ErrExecution("execute", "device lost during readback")
	}
	// Device -> host readback copy.
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

func (g *GPU) Close() error {
	g.dev.close()
	return nil
}
