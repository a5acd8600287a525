package compute

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// device is the single shared compute-device handle. Command submission is
// serialized on mu: concurrent requests interleave at kernel-launch
// granularity, and per-request buffers are never shared across launches.
type device struct {
	mu     sync.Mutex
	index  int
	name   string
	memMB  int
	closed bool
}

// The host exposes one logical accelerator and handles are exclusive: a
// second acquisition blocks until the holder closes its handle.
var hostDevice struct {
	mu   sync.Mutex
	held bool
}

// acquireDevice probes for a compute device, retrying transient failures
// with exponential backoff before giving up and letting the caller fall
// back to the CPU backend. Contention with a live handle is transient; a
// missing or misconfigured device is not.
func acquireDevice(index int) (*device, error) {
	var d *device
	op := func() error {
		dd, err := probeDevice(index)
		if err != nil {
			// Configuration errors do not heal; only transient probe
			// failures are worth retrying.
			if IsExecution(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		d = dd
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return d, nil
}

// probeDevice models discovery of a single logical accelerator per host.
// A device held by another handle reports busy rather than absent.
func probeDevice(index int) (*device, error) {
	if index < 0 {
		return nil, errExecutionf("probe", "invalid device index %d", index)
	}
	if index > 0 {
		return nil, errExecutionf("probe", "no compute device at index %d", index)
	}
	hostDevice.mu.Lock()
	defer hostDevice.mu.Unlock()
	if hostDevice.held {
		return nil, deviceBusyError{index: index}
	}
	hostDevice.held = true
	return &device{index: index, name: "accel0", memMB: 8192}, nil
}

func releaseHostDevice() {
	hostDevice.mu.Lock()
	hostDevice.held = false
	hostDevice.mu.Unlock()
}

// submitLaunch wraps a launcher so every kernel launch holds the device
// queue lock for its duration.
func (d *device) submitLaunch(inner launcher) launcher {
	return func(grid dim3, body func(x, y, z int)) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			return
		}
		inner(grid, body)
	}
}

func (d *device) lost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *device) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	releaseHostDevice()
}
