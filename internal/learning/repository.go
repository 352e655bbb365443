package learning

import "sync"

// PatternRepository stores workflow patterns by id. Implementations must
// return copies so callers cannot mutate stored state.
type PatternRepository interface {
	Get(id string) (WorkflowPattern, bool)
	List() []WorkflowPattern
	Put(p WorkflowPattern)
	Len() int
}

// MemoryRepository is an in-memory PatternRepository that lists patterns in
// insertion order.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]int
	arena []WorkflowPattern
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]int)}
}

// Get returns a copy of the pattern with id.
func (r *MemoryRepository) Get(id string) (WorkflowPattern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byID[id]
	if !ok {
		return WorkflowPattern{}, false
	}
	return r.arena[i].Clone(), true
}

// List returns copies of all patterns in insertion order.
func (r *MemoryRepository) List() []WorkflowPattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WorkflowPattern, len(r.arena))
	for i, p := range r.arena {
		out[i] = p.Clone()
	}
	return out
}

// Put inserts p or replaces the stored pattern with the same id.
func (r *MemoryRepository) Put(p WorkflowPattern) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.byID[p.ID]; ok {
		r.arena[i] = p.Clone()
		return
	}
	r.byID[p.ID] = len(r.arena)
	r.arena = append(r.arena, p.Clone())
}

// Len returns the number of stored patterns.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.arena)
}
