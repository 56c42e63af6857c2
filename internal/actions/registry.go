package actions

import (
	"context"
	"fmt"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

// ErrHandlerNotFound is returned when an automation references an action
// kind no handler was registered for.
var ErrHandlerNotFound = fmt.Errorf("action handler not found")

// Result is the structured outcome of one action invocation. Handlers return
// it on success; downstream failures are surfaced as errors instead.
type Result struct {
	Success bool           `json:"success"`
	Output  models.JSONMap `json:"output,omitempty"`
}

// Record converts the result into the map persisted on the execution record
func (r *Result) Record() models.JSONMap {
	record := models.JSONMap{"success": r.Success}
	for k, v := range r.Output {
		record[k] = v
	}
	return record
}

// Handler performs one action node's side effect. Config is the node's
// opaque configuration, trigger is the payload of the event that started the
// run, and ec carries caller identity threaded from the dispatch entry point.
type Handler interface {
	Kind() string
	Execute(ctx context.Context, config models.JSONMap, trigger models.JSONMap, ec *models.ExecContext) (*Result, error)
}

// Registry maps action kinds to handlers. Populated once at startup,
// read-only afterwards.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty action registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under its kind, replacing any previous one
func (r *Registry) Register(h Handler) {
	r.handlers[h.Kind()] = h
}

// Kinds returns the registered action kinds
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Has reports whether a handler is registered for the kind
func (r *Registry) Has(kind string) bool {
	_, ok := r.handlers[kind]
	return ok
}

// Get returns the handler for the kind
func (r *Registry) Get(kind string) (Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, kind)
	}
	return h, nil
}
