// Package registry owns the catalog of registered models, their metadata
// and their weights. Reads return immutable snapshots so in-flight requests
// are unaffected by a reload that starts after they were admitted.
package registry

import (
	"sync"

	"inferd/pkg/types"
)

// Snapshot is an immutable view of one model handed to a pipeline. Weights
// are replaced wholesale on Load (copy-on-write), never mutated in place.
type Snapshot struct {
	Model   types.Model
	Weights []float32
}

type entry struct {
	model   types.Model
	weights []float32
}

// Registry is the catalog of loadable models. Catalogs are small, so list
// operations are linear filters.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	order    []string // registration order, for stable listing
	onLoaded func(int)
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// OnLoadedChange installs a hook invoked with the new loaded-model count
// whenever a load or unload changes it. Used for the metrics gauge.
func (r *Registry) OnLoadedChange(fn func(int)) {
	r.mu.Lock()
	r.onLoaded = fn
	r.mu.Unlock()
}

// Register adds a catalog entry in the unloaded state.
func (r *Registry) Register(m types.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == "" {
		return ErrModelNotFound("(unspecified)")
	}
	if _, exists := r.entries[m.ID]; exists {
		return ErrDuplicateModel(m.ID)
	}
	m.Loaded = false
	r.entries[m.ID] = &entry{model: m}
	r.order = append(r.order, m.ID)
	return nil
}

// Load attaches weights to a registered model and marks it loaded. The
// previous weights slice, if any, is abandoned so snapshots taken before
// the call keep reading the old weights.
func (r *Registry) Load(id string, weights []float32) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return ErrModelNotFound(id)
	}
	e.weights = weights
	e.model.Loaded = true
	n, fn := r.loadedCountLocked(), r.onLoaded
	r.mu.Unlock()
	if fn != nil {
		fn(n)
	}
	return nil
}

// Unload detaches weights and marks the model unloaded. The entry remains
// registered.
func (r *Registry) Unload(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return ErrModelNotFound(id)
	}
	e.weights = nil
	e.model.Loaded = false
	n, fn := r.loadedCountLocked(), r.onLoaded
	r.mu.Unlock()
	if fn != nil {
		fn(n)
	}
	return nil
}

// Get returns a snapshot of the model and its current weights.
func (r *Registry) Get(id string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Snapshot{}, ErrModelNotFound(id)
	}
	return Snapshot{Model: e.model, Weights: e.weights}, nil
}

// List returns all registered models in registration order.
func (r *Registry) List() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Model, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].model)
	}
	return out
}

// ListByModality filters the catalog by imaging modality.
func (r *Registry) ListByModality(modality string) []types.Model {
	return r.filter(func(m types.Model) bool { return m.Modality == modality })
}

// ListBySpecialty filters the catalog by clinical specialty.
func (r *Registry) ListBySpecialty(specialty string) []types.Model {
	return r.filter(func(m types.Model) bool { return m.Specialty == specialty })
}

func (r *Registry) filter(keep func(types.Model) bool) []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.Model
	for _, id := range r.order {
		if m := r.entries[id].model; keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// LoadedCount reports how many models currently have weights attached.
func (r *Registry) LoadedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedCountLocked()
}

// Len reports the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes every entry. Used by engine disposal.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]*entry)
	r.order = nil
	n, fn := 0, r.onLoaded
	r.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (r *Registry) loadedCountLocked() int {
	n := 0
	for _, e := range r.entries {
		if e.model.Loaded {
			n++
		}
	}
	return n
}
