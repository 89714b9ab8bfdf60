package extract

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry holds the known extractors, keyed by ID. Registering an ID twice
// replaces the previous extractor; the replacement is logged, not an error,
// so plugins can override builtins.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
	logger     *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		extractors: make(map[string]Extractor),
		logger:     logger,
	}
}

// Register adds an extractor, replacing any previous one with the same ID.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.extractors[e.ID()]; exists {
		r.logger.Warn("replacing registered extractor", slog.String("extractor_id", e.ID()))
	}
	r.extractors[e.ID()] = e
}

// Get returns the extractor for an ID, or nil.
func (r *Registry) Get(id string) Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.extractors[id]
}

// List returns all registered extractors, sorted by ID.
func (r *Registry) List() []Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Extractor, 0, len(r.extractors))
	for _, e := range r.extractors {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IDs returns the registered extractor IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.extractors))
	for id := range r.extractors {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
