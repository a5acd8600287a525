package engine

import (
	"context"
	"time"

	"inferd/internal/compute"
	"inferd/internal/pipeline"
	"inferd/pkg/types"
)

// dispatch is the single scheduler loop: whenever capacity frees up or work
// arrives, it admits the highest-priority, earliest-arrival queued request
// until the concurrency cap is reached. This is continuous admission, not
// fixed-size batching.
func (e *Engine) dispatch() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case <-e.kick:
		}
		for {
			e.mu.Lock()
			if e.closed || e.running >= e.cfg.MaxBatchSize {
				e.mu.Unlock()
				break
			}
			r := e.queue.pop()
			if r == nil {
				e.mu.Unlock()
				break
			}
			r.state = stateRunning
			rctx, cancel := context.WithCancel(context.Background())
			r.cancel = cancel
			e.running++
			queueDepth.Set(float64(e.queue.len()))
			runningRequests.Set(float64(e.running))
			e.mu.Unlock()

			e.wg.Add(1)
			go e.run(rctx, r)
		}
	}
}

// run executes one request under its effective timeout. The pipeline runs
// in a sub-goroutine: on timeout or cancellation the slot is released
// immediately and the backend call is abandoned; it stops at its next
// kernel boundary and its output is discarded.
func (e *Engine) run(ctx context.Context, r *request) {
	defer e.wg.Done()
	defer r.cancel()

	timeout := r.req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	tctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	outCh := make(chan types.InferenceResult, 1)
	go func() { outCh <- e.executePipeline(tctx, r) }()

	var res types.InferenceResult
	select {
	case res = <-outCh:
	case <-tctx.Done():
		res = e.interruptResult(r, tctx, timeout)
	}
	e.finish(r, res)
	e.releaseSlot()
}

func (e *Engine) releaseSlot() {
	e.mu.Lock()
	e.running--
	runningRequests.Set(float64(e.running))
	e.mu.Unlock()
	e.kickDispatch()
}

// executePipeline runs preprocess -> backend -> postprocess -> explain and
// assembles the result. Stage errors are contained here: they become failed
// results, never faults that could stall the scheduler or leak a slot.
func (e *Engine) executePipeline(ctx context.Context, r *request) types.InferenceResult {
	model := r.snap.Model
	start := time.Now()

	prepared, err := pipeline.Preprocess(r.req.Input, model.InputShape)
	preDur := time.Since(start)
	if err != nil {
		// No backend time spent.
		return e.failedResult(r, err, types.ResultMetrics{PreprocessTime: preDur, TotalTime: time.Since(start)})
	}
	if ctx.Err() != nil {
		return e.interruptResult(r, ctx, 0)
	}

	spec := compute.ExecSpec{
		ModelID:     model.ID,
		InputShape:  model.InputShape,
		OutputShape: model.OutputShape,
		Weights:     r.snap.Weights,
	}
	infStart := time.Now()
	raw, err := e.backend.Execute(ctx, spec, prepared)
	infDur := time.Since(infStart)
	if err != nil {
		if ctx.Err() != nil {
			return e.interruptResult(r, ctx, 0)
		}
		return e.failedResult(r, err, types.ResultMetrics{
			PreprocessTime: preDur,
			InferenceTime:  infDur,
			TotalTime:      time.Since(start),
		})
	}

	postStart := time.Now()
	out, err := pipeline.Postprocess(model, raw)
	postDur := time.Since(postStart)
	if err != nil {
		return e.failedResult(r, err, types.ResultMetrics{
			PreprocessTime:  preDur,
			InferenceTime:   infDur,
			PostprocessTime: postDur,
			TotalTime:       time.Since(start),
		})
	}

	var explanation *types.Explanation
	var explDur time.Duration
	if r.req.Explain && model.Compliance.Explainability != types.ExplainabilityNone {
		explStart := time.Now()
		explanation = pipeline.Explain(model, prepared, out)
		explDur = time.Since(explStart)
	}

	metrics := types.ResultMetrics{
		PreprocessTime:  preDur,
		InferenceTime:   infDur,
		PostprocessTime: postDur,
		ExplainTime:     explDur,
		TotalTime:       time.Since(start),
		MemoryBytes:     4 * int64(len(prepared)+len(raw)),
	}
	if secs := infDur.Seconds(); secs > 0 {
		metrics.Throughput = float64(len(prepared)) / secs
	}
	return types.InferenceResult{
		RequestID:   r.id,
		ModelID:     model.ID,
		Status:      types.StatusSuccess,
		Output:      out,
		Metrics:     metrics,
		Confidence:  pipeline.Confidence(model, out, raw),
		Explanation: explanation,
	}
}

// interruptResult classifies an interrupted request: explicit cancellation
// wins over deadline expiry, so callers can apply different retry policy.
func (e *Engine) interruptResult(r *request, ctx context.Context, timeout time.Duration) types.InferenceResult {
	if r.cancelled.Load() || ctx.Err() == context.Canceled {
		return e.terminalResult(r, types.StatusCancelled, "cancelled")
	}
	msg := "inference timed out"
	if timeout > 0 {
		msg = "inference timed out after " + timeout.String()
	}
	return e.terminalResult(r, types.StatusTimeout, msg)
}

func (e *Engine) failedResult(r *request, err error, m types.ResultMetrics) types.InferenceResult {
	return types.InferenceResult{
		RequestID: r.id,
		ModelID:   r.snap.Model.ID,
		Status:    types.StatusError,
		Metrics:   m,
		Error:     err.Error(),
	}
}

func (e *Engine) terminalResult(r *request, status types.ResultStatus, msg string) types.InferenceResult {
	return types.InferenceResult{
		RequestID: r.id,
		ModelID:   r.snap.Model.ID,
		Status:    status,
		Error:     msg,
	}
}

// finish delivers the terminal result exactly once: later attempts for the
// same request (an abandoned pipeline completing after a timeout, a cancel
// racing completion) are dropped.
func (e *Engine) finish(r *request, res types.InferenceResult) {
	r.once.Do(func() {
		res.CompletedAt = time.Now()
		e.mu.Lock()
		delete(e.pending, r.id)
		e.mu.Unlock()
		e.stats.record(res)
		observeResult(res)
		r.resultCh <- res
		close(r.resultCh)
		e.log.Debug().
			Str("request_id", r.id).
			Str("model", res.ModelID).
			Str("status", string(res.Status)).
			Dur("total", res.Metrics.TotalTime).
			Msg("request finished")
	})
}
