// Package engine provides admission, scheduling, and result delivery for
// inference requests. It is structured into small files by concern:
//
//   - engine.go: core Engine type, constructor, status/metrics accessors,
//     model registration passthroughs, Dispose.
//   - config.go: Config and package defaults; New applies defaults.
//   - errors.go: error types and helpers (IsQueueFull, IsEngineClosed,
//     IsRequestNotFound).
//   - submit.go: synchronous admission (model present and loaded, shape
//     compatible, queue capacity) and Ticket creation.
//   - queue.go: the priority-then-FIFO pending queue.
//   - scheduler.go: the dispatch loop, per-request pipeline execution,
//     timeout/cancellation handling, exactly-once completion.
//   - metrics.go: lifetime counters and Prometheus collectors.
//
// The engine is an explicitly constructed instance: build it at startup,
// pass it by reference, and Dispose it at shutdown. Results are delivered
// as a future: Submit returns a Ticket whose Done channel receives exactly
// one terminal InferenceResult and is then closed.
//
// Timed-out or cancelled work is abandoned cooperatively: the backend
// checks the request context between kernel launches, so a kernel already
// running completes and its output is discarded.
package engine
