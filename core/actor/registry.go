package actor

import "sync"

// Registry is the process-wide map from conversation key to tree. Entries
// are inserted on the first inbound event of a conversation and are never
// evicted in v1; an idle-reap policy is a known follow-up for capacity.
type Registry struct {
	mu    sync.Mutex
	trees map[string]*Tree
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{trees: make(map[string]*Tree)}
}

// GetOrCreate returns the tree for key, creating it via create if absent.
// Creation is serialized: when two first events race, exactly one caller
// runs create and both receive the same tree. created reports whether this
// call created the entry.
func (r *Registry) GetOrCreate(key string, create func() (*Tree, error)) (tree *Tree, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.trees[key]; ok {
		return t, false, nil
	}
	t, err := create()
	if err != nil {
		return nil, false, err
	}
	r.trees[key] = t
	return t, true, nil
}

// Get returns the tree for key, if present.
func (r *Registry) Get(key string) (*Tree, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trees[key]
	return t, ok
}

// Len returns the number of live conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trees)
}

// StopAll stops every tree. Used on process shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	trees := make([]*Tree, 0, len(r.trees))
	for _, t := range r.trees {
		trees = append(trees, t)
	}
	r.mu.Unlock()

	for _, t := range trees {
		t.Stop()
	}
}
