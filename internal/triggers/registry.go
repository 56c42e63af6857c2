package triggers

import (
	"fmt"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

// ErrHandlerNotFound is returned when an automation references a trigger
// kind no handler was registered for. This is a configuration defect, never
// silently ignored.
var ErrHandlerNotFound = fmt.Errorf("trigger handler not found")

// Handler decides whether an incoming event satisfies a trigger node's
// configuration. Handlers are pure: they only read the config and the event.
type Handler interface {
	Kind() string
	Matches(config models.JSONMap, event *models.Event) (bool, error)
}

// Registry maps trigger kinds to handlers. It is populated once at startup
// and read-only afterwards.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty trigger registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// DefaultRegistry returns a registry with all built-in trigger handlers
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ContactCreatedTrigger{})
	r.Register(&ContactDeletedTrigger{})
	r.Register(&ContactMovedToListTrigger{})
	r.Register(&MassSendInitiatedTrigger{})
	r.Register(&ScheduleTrigger{})
	return r
}

// Register adds a handler under its kind, replacing any previous one
func (r *Registry) Register(h Handler) {
	r.handlers[h.Kind()] = h
}

// Kinds returns the registered trigger kinds
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

// Matches evaluates the trigger kind's predicate against the event
func (r *Registry) Matches(kind string, config models.JSONMap, event *models.Event) (bool, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrHandlerNotFound, kind)
	}
	return h.Matches(config, event)
}
