package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/compute"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

// Engine accepts inference requests, schedules them across the compute
// backend under a bounded concurrency cap, and delivers exactly one
// terminal result per accepted request.
type Engine struct {
	cfg     Config
	reg     *registry.Registry
	backend compute.Backend
	log     zerolog.Logger

	mu      sync.Mutex
	queue   requestQueue
	pending map[string]*request // queued + running, by request id
	running int
	closed  bool

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	startTime time.Time
	stats     stats
}

// New constructs an Engine. Backend selection happens here, once: GPU when
// a device is present and acceleration is enabled, else CPU.
func New(cfg Config) *Engine {
	cfg.applyDefaults()
	backend := cfg.Backend
	if backend == nil {
		backend = compute.Select(cfg.Compute, cfg.Logger)
	}
	e := &Engine{
		cfg:       cfg,
		reg:       cfg.Registry,
		backend:   backend,
		log:       cfg.Logger,
		pending:   make(map[string]*request),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	e.reg.OnLoadedChange(func(n int) { modelsLoaded.Set(float64(n)) })
	modelsLoaded.Set(float64(e.reg.LoadedCount()))
	e.wg.Add(1)
	go e.dispatch()
	return e
}

// RegisterModel adds a catalog entry in the unloaded state.
func (e *Engine) RegisterModel(m types.Model) error { return e.reg.Register(m) }

// LoadModel attaches weights to a registered model and marks it loadable
// for execution. Requests already in flight keep the snapshot they admitted
// with.
func (e *Engine) LoadModel(id string, weights []float32) error { return e.reg.Load(id, weights) }

// UnloadModel detaches weights; the model stops being selectable.
func (e *Engine) UnloadModel(id string) error { return e.reg.Unload(id) }

// ListModels returns all registered models.
func (e *Engine) ListModels() []types.Model { return e.reg.List() }

// ListModelsByModality filters the catalog by imaging modality.
func (e *Engine) ListModelsByModality(m string) []types.Model { return e.reg.ListByModality(m) }

// ListModelsBySpecialty filters the catalog by clinical specialty.
func (e *Engine) ListModelsBySpecialty(s string) []types.Model { return e.reg.ListBySpecialty(s) }

// Metrics returns a point-in-time snapshot of the lifetime counters.
func (e *Engine) Metrics() types.EngineMetrics {
	m := e.stats.snapshot()
	m.ModelsLoaded = e.reg.LoadedCount()
	return m
}

// Status builds a detailed status projection for the HTTP layer.
func (e *Engine) Status() types.StatusResponse {
	e.mu.Lock()
	queueLen, running := e.queue.len(), e.running
	e.mu.Unlock()
	return types.StatusResponse{
		Backend:          e.backend.Name(),
		QueueLen:         queueLen,
		Running:          running,
		MaxBatchSize:     e.cfg.MaxBatchSize,
		ModelsLoaded:     e.reg.LoadedCount(),
		ModelsRegistered: e.reg.Len(),
		UptimeSeconds:    int64(time.Since(e.startTime).Seconds()),
		Metrics:          e.Metrics(),
	}
}

// Ready reports whether the engine accepts submissions.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// BackendName reports the execution strategy chosen at construction.
func (e *Engine) BackendName() string { return e.backend.Name() }

// Cancel cancels a request. Queued requests are removed at no resource
// cost; running requests are cancelled cooperatively and their concurrency
// slot is freed when the scheduler observes the cancellation.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return engineClosedError{}
	}
	r, ok := e.pending[id]
	if !ok {
		e.mu.Unlock()
		return requestNotFoundError{id: id}
	}
	r.cancelled.Store(true)
	if r.state == stateQueued {
		e.queue.remove(r)
		queueDepth.Set(float64(e.queue.len()))
		e.mu.Unlock()
		e.finish(r, e.terminalResult(r, types.StatusCancelled, "cancelled while queued"))
		return nil
	}
	cancel := r.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Dispose cancels all queued and running work, releases backend resources,
// and clears the registry. It is idempotent; lifetime counters reset.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	queued := e.queue.drain()
	queueDepth.Set(0)
	var cancels []func()
	for _, r := range e.pending {
		if r.state == stateRunning {
			r.cancelled.Store(true)
			if r.cancel != nil {
				cancels = append(cancels, r.cancel)
			}
		}
	}
	e.mu.Unlock()

	close(e.done)
	for _, r := range queued {
		e.finish(r, e.terminalResult(r, types.StatusCancelled, "engine disposed"))
	}
	for _, cancel := range cancels {
		cancel()
	}
	e.wg.Wait()
	if err := e.backend.Close(); err != nil {
		e.log.Warn().Err(err).Msg("backend close")
	}
	e.reg.Clear()
	e.stats.reset()
	e.log.Info().Msg("engine disposed")
}
