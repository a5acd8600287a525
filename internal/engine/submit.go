package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"inferd/internal/pipeline"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

type requestState int

const (
	stateQueued requestState = iota
	stateRunning
)

// request is the scheduler's internal view of one accepted submission.
type request struct {
	id   string
	req  types.InferenceRequest
	snap registry.Snapshot

	enqueuedAt time.Time
	resultCh   chan types.InferenceResult
	once       sync.Once

	// Guarded by Engine.mu.
	state  requestState
	cancel context.CancelFunc

	cancelled atomic.Bool
}

// Ticket is the future returned by Submit. Done receives exactly one
// terminal InferenceResult and is then closed.
type Ticket struct {
	ID   string
	Done <-chan types.InferenceResult
}

// Submit validates a request synchronously and enqueues it. It returns an
// admission error, never an asynchronous failed result, when the target
// model is missing or unloaded, the input shape cannot match after
// preprocessing, or the queue is full. Rejected requests are never billed
// against concurrency.
func (e *Engine) Submit(req types.InferenceRequest) (*Ticket, error) {
	snap, err := e.reg.Get(req.ModelID)
	if err != nil {
		return nil, err
	}
	if !snap.Model.Loaded {
		return nil, registry.ErrModelNotLoaded(req.ModelID)
	}
	if err := pipeline.CheckShape(req.Input, snap.Model.InputShape); err != nil {
		return nil, err
	}

	r := &request{
		id:         uuid.NewString(),
		req:        req,
		snap:       snap,
		enqueuedAt: time.Now(),
		resultCh:   make(chan types.InferenceResult, 1),
	}
	r.req.ID = r.id

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, engineClosedError{}
	}
	if e.queue.len() >= e.cfg.MaxQueueDepth {
		e.mu.Unlock()
		return nil, queueFullError{modelID: req.ModelID}
	}
	e.queue.push(r)
	e.pending[r.id] = r
	queueDepth.Set(float64(e.queue.len()))
	e.mu.Unlock()

	e.log.Debug().
		Str("request_id", r.id).
		Str("model", req.ModelID).
		Str("priority", string(req.Priority)).
		Msg("request admitted")
	e.kickDispatch()
	return &Ticket{ID: r.id, Done: r.resultCh}, nil
}

func (e *Engine) kickDispatch() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}
