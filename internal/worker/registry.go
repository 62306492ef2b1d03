// Package worker holds the job executors and their registry. Each
// worker handles one job kind; the dispatcher resolves deliveries to
// workers through the registry.
package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"insightlearn/internal/model"
)

// Worker executes one job kind. Execute returns nil on success,
// including when the desired end state already exists. Errors wrapped
// with model.Permanent are failed immediately instead of retried.
type Worker interface {
	// Execute runs one job to completion or error.
	Execute(ctx context.Context, job *model.Job) error

	// Kind returns the job kind this worker handles.
	Kind() model.JobKind

	// Name returns the worker's human-readable name.
	Name() string
}

// Registry is a central registry for job workers
type Registry struct {
	workers map[model.JobKind]Worker
	mu      sync.RWMutex
}

// NewRegistry creates a new worker registry
func NewRegistry(workers ...Worker) *Registry {
	registry := &Registry{
		workers: make(map[model.JobKind]Worker),
	}

	for _, w := range workers {
		registry.Register(w)
	}

	return registry
}

// Register adds a worker to the registry
func (r *Registry) Register(w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workers[w.Kind()] = w

	log.Info().
		Str("kind", string(w.Kind())).
		Str("worker", w.Name()).
		Msg("Registered job worker")
}

// Get retrieves a worker by job kind
func (r *Registry) Get(kind model.JobKind) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.workers[kind]
	return w, exists
}

// Kinds returns all registered job kinds
func (r *Registry) Kinds() []model.JobKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]model.JobKind, 0, len(r.workers))
	for kind := range r.workers {
		kinds = append(kinds, kind)
	}

	return kinds
}
