package engine

// queueFullError signals the accepted queue is at capacity (429 mapping).
type queueFullError struct{ modelID string }

func (e queueFullError) Error() string { return "queue full: " + e.modelID }

// ErrQueueFull builds a queue-full error for the given model.
func ErrQueueFull(modelID string) error { return queueFullError{modelID: modelID} }

// IsQueueFull reports whether err indicates backpressure.
func IsQueueFull(err error) bool {
	_, ok := err.(queueFullError)
	return ok
}

// engineClosedError signals a Submit or Cancel after Dispose.
type engineClosedError struct{}

func (engineClosedError) Error() string { return "engine disposed" }

// ErrEngineClosed builds an engine-disposed error.
func ErrEngineClosed() error { return engineClosedError{} }

// IsEngineClosed reports whether err indicates the engine was disposed.
func IsEngineClosed(err error) bool {
	_, ok := err.(engineClosedError)
	return ok
}

// requestNotFoundError signals a Cancel against an unknown or already
// terminal request id.
type requestNotFoundError struct{ id string }

func (e requestNotFoundError) Error() string { return "request not found: " + e.id }

// ErrRequestNotFound builds an unknown-request error.
func ErrRequestNotFound(id string) error { return requestNotFoundError{id: id} }

// IsRequestNotFound reports whether err indicates an unknown request id.
func IsRequestNotFound(err error) bool {
	_, ok := err.(requestNotFoundError)
	return ok
}
