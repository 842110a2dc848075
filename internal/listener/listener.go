// Package listener implements the registry DESIGN NOTES §9 asks for in
// place of reflection-keyed maps: a tagged ListenerKind plus an
// insertion-ordered registry keyed by concrete type, so adding the same
// listener instance twice registers it once (testable property 6).
package listener

import (
	"reflect"
	"sync"
)

// Kind tags which listener category a registration belongs to (§6).
type Kind string

const (
	KindSuite         Kind = "suite"
	KindTest          Kind = "test"
	KindClass         Kind = "class"
	KindInvokedMethod Kind = "invoked-method"
	KindConfiguration Kind = "configuration"
	KindDataProvider  Kind = "data-provider"
	KindReporter      Kind = "reporter"
	KindVisualiser    Kind = "visualiser"
)

// Registry holds listeners for every Kind, keyed within a Kind by the
// listener's concrete type so re-registration is idempotent.
type Registry struct {
	mu        sync.Mutex
	order     map[Kind][]reflect.Type
	instances map[Kind]map[reflect.Type]any
}

// NewRegistry returns an empty, ready-to-use listener registry.
func NewRegistry() *Registry {
	return &Registry{
		order:     make(map[Kind][]reflect.Type),
		instances: make(map[Kind]map[reflect.Type]any),
	}
}

// Add registers l under kind. Calling Add twice with two instances of the
// same concrete type replaces the earlier instance but keeps its
// registration-order slot — the type, not the pointer, is the identity.
func (r *Registry) Add(kind Kind, l any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := reflect.TypeOf(l)
	if r.instances[kind] == nil {
		r.instances[kind] = make(map[reflect.Type]any)
	}
	if _, exists := r.instances[kind][t]; !exists {
		r.order[kind] = append(r.order[kind], t)
	}
	r.instances[kind][t] = l
}

// Snapshot returns kind's listeners in registration order.
func (r *Registry) Snapshot(kind Kind) []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := r.order[kind]
	out := make([]any, 0, len(types))
	for _, t := range types {
		out = append(out, r.instances[kind][t])
	}
	return out
}

// Reverse returns a new slice with s in reverse order, for onFinish-style
// dispatch over a Snapshot (§4.6, testable property 4). internal/suite
// does not call it: it reverses its own sorted []SuiteListener in place
// of a []any.
func Reverse(s []any) []any {
	out := make([]any, len(s))
	for i, l := range s {
		out[len(s)-1-i] = l
	}
	return out
}

// Count reports how many distinct concrete types are registered for kind.
func (r *Registry) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order[kind])
}
