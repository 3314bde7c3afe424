package tag

import (
	"fmt"
	"sync"
)

// Registry maps normalized tag names to their state.
//
// Iteration order for [Registry.Available] and [Registry.Active] is
// insertion order. A Registry is owned by exactly one dispatcher or plugin;
// tables are never shared. Safe for concurrent use.
//
// Create instances with [NewRegistry].
type Registry struct {
	tags   map[string]*entry
	order  []string
	mu     sync.RWMutex
	errors bool
}

type entry struct {
	code         *int
	enabled      bool
	errorEnabled bool
}

// NewRegistry creates a [Registry] seeded with specs, in order. Later specs
// with the same normalized name replace earlier ones in place. The global
// error flag starts enabled.
func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{
		tags:   make(map[string]*entry, len(specs)),
		errors: true,
	}

	for _, s := range specs {
		r.put(Normalize(s.Name), &entry{
			code:         cloneCode(s.Code),
			enabled:      s.Enabled,
			errorEnabled: s.Error,
		})
	}

	return r
}

// Get returns the enabled state of the named tag. ok is false when the tag
// is unknown.
func (r *Registry) Get(name string) (enabled, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tags[Normalize(name)]
	if !ok {
		return false, false
	}

	return e.enabled, true
}

// Set sets the enabled state of the named tag. An unknown tag is created
// with the given state and errors enabled.
func (r *Registry) Set(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := Normalize(name)
	if e, ok := r.tags[key]; ok {
		e.enabled = enabled
		return
	}

	r.put(key, &entry{enabled: enabled, errorEnabled: true})
}

// Toggle flips the enabled state of the named tag and returns the new
// state. An unknown tag is created enabled, with errors enabled.
func (r *Registry) Toggle(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := Normalize(name)
	if e, ok := r.tags[key]; ok {
		e.enabled = !e.enabled
		return e.enabled
	}

	r.put(key, &entry{enabled: true, errorEnabled: true})

	return true
}

// Available returns all tag names in insertion order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}

// Active returns the names of enabled tags in insertion order.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.tags[name].enabled {
			out = append(out, name)
		}
	}

	return out
}

// Lookup returns a snapshot of the named tag.
func (r *Registry) Lookup(name string) (Tag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := Normalize(name)

	e, ok := r.tags[key]
	if !ok {
		return Tag{}, false
	}

	return Tag{
		Name:         key,
		Enabled:      e.enabled,
		ErrorEnabled: e.errorEnabled,
		Code:         cloneCode(e.code),
	}, true
}

// Tags returns snapshots of every tag in insertion order.
func (r *Registry) Tags() []Tag {
	names := r.Available()

	out := make([]Tag, 0, len(names))
	for _, name := range names {
		if t, ok := r.Lookup(name); ok {
			out = append(out, t)
		}
	}

	return out
}

// DisableError clears error attachment. With no names the global flag is
// cleared; otherwise only the named tags that already exist are changed.
func (r *Registry) DisableError(names ...string) {
	r.setError(false, names)
}

// EnableError sets error attachment. With no names the global flag is set;
// otherwise only the named tags that already exist are changed.
func (r *Registry) EnableError(names ...string) {
	r.setError(true, names)
}

// ErrorsEnabled reports the global error flag.
func (r *Registry) ErrorsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.errors
}

// ErrorEnabled reports whether errors are attached for the named tag: the
// global flag AND the tag's own flag. It returns [ErrInvalidArgument] when
// the tag does not exist.
func (r *Registry) ErrorEnabled(name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := Normalize(name)

	e, ok := r.tags[key]
	if !ok {
		return false, fmt.Errorf("%w: unknown tag %q", ErrInvalidArgument, key)
	}

	return r.errors && e.errorEnabled, nil
}

func (r *Registry) setError(state bool, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) == 0 {
		r.errors = state
		return
	}

	for _, name := range names {
		if e, ok := r.tags[Normalize(name)]; ok {
			e.errorEnabled = state
		}
	}
}

// put inserts or replaces an entry. Callers must hold mu.
func (r *Registry) put(key string, e *entry) {
	if _, ok := r.tags[key]; !ok {
		r.order = append(r.order, key)
	}

	r.tags[key] = e
}

func cloneCode(code *int) *int {
	if code == nil {
		return nil
	}

	c := *code

	return &c
}
