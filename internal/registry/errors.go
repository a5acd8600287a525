package registry

// modelNotFoundError indicates a model id absent from the catalog.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// duplicateModelError indicates a Register call with an id already in use.
type duplicateModelError struct{ id string }

func (e duplicateModelError) Error() string { return "duplicate model id: " + e.id }

func ErrDuplicateModel(id string) error { return duplicateModelError{id: id} }

// IsDuplicateModel reports whether the error indicates an id collision.
func IsDuplicateModel(err error) bool {
	_, ok := err.(duplicateModelError)
	return ok
}

// modelNotLoadedError indicates a model that is registered but has no weights.
type modelNotLoadedError struct{ id string }

func (e modelNotLoadedError) Error() string { return "model not loaded: " + e.id }

func ErrModelNotLoaded(id string) error { return modelNotLoadedError{id: id} }

// IsModelNotLoaded reports whether the error indicates missing weights.
func IsModelNotLoaded(err error) bool {
	_, ok := err.(modelNotLoadedError)
	return ok
}
