// Package event delivers logged messages to tag subscribers.
//
// A [Bus] keeps, per tag, a list of subscriptions ordered by ascending
// priority, ties broken by registration order. [Bus.Once] subscriptions
// are removed before their first invocation, so they fire exactly once even
// when events are emitted concurrently. A handler that panics is recovered
// and skipped; it never affects other handlers or the emitter.
//
//	bus := event.NewBus()
//	id := bus.On("error", event.HandlerFunc(func(e event.Event) {
//	    alert(e.Message)
//	}), 0)
//	defer bus.Off("error", id)
package event

import (
	"cmp"
	"reflect"
	"slices"
	"sync"

	"go.jacobcolvin.com/taglog/tag"
)

// Event is the payload delivered to subscribers. Treat it as read-only;
// Arguments is shared between all subscribers of one emission.
type Event struct {
	// Err is the call-site error, or nil when error attachment is disabled.
	Err error
	// ID uniquely identifies the emission.
	ID string
	// Tag is the normalized tag name.
	Tag string
	// Message is the formatted message.
	Message string
	// Arguments are the arguments passed to the log call, minus any
	// extracted error.
	Arguments []any
	// Timestamp is in epoch milliseconds.
	Timestamp int64
}

// Handler receives events.
//
// [Bus.OffHandler] matches handlers with ==, so only comparable handler
// values, such as pointers, can be removed by reference. Closures cannot;
// remove them by id, or register a pointer to a [HandlerFunc].
type Handler interface {
	Handle(e Event)
}

// HandlerFunc adapts an ordinary function to [Handler].
type HandlerFunc func(Event)

// Handle calls f(e).
func (f HandlerFunc) Handle(e Event) {
	f(e)
}

type subscription struct {
	handler  Handler
	tag      string
	id       int
	priority int
	once     bool
}

// Bus routes events to subscribers by tag. Safe for concurrent use.
//
// Create instances with [NewBus].
type Bus struct {
	subs   map[string][]*subscription
	mu     sync.Mutex
	nextID int
}

// NewBus creates an empty [Bus].
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]*subscription),
	}
}

// On registers a persistent handler for tag and returns its id.
func (b *Bus) On(tagName string, h Handler, priority int) int {
	return b.add(tagName, h, priority, false)
}

// Once registers a handler that is removed after its first invocation and
// returns its id.
func (b *Bus) Once(tagName string, h Handler, priority int) int {
	return b.add(tagName, h, priority, true)
}

// Off removes the subscription with the given id from tag. It reports
// whether a subscription was removed.
func (b *Bus) Off(tagName string, id int) bool {
	return b.remove(tag.Normalize(tagName), func(s *subscription) bool {
		return s.id == id
	})
}

// OffHandler removes the first subscription on tag whose handler equals h.
// It reports whether a subscription was removed, and is always false when
// h is nil or not comparable.
func (b *Bus) OffHandler(tagName string, h Handler) bool {
	if h == nil || !reflect.TypeOf(h).Comparable() {
		return false
	}

	return b.remove(tag.Normalize(tagName), func(s *subscription) bool {
		return s.handler == h
	})
}

// Len returns the number of subscriptions on tag.
func (b *Bus) Len(tagName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs[tag.Normalize(tagName)])
}

// Emit invokes the subscribers of e.Tag synchronously, in order. Handlers
// added or removed during emission do not affect the current emission.
func (b *Bus) Emit(e Event) {
	for _, s := range b.claim(tag.Normalize(e.Tag)) {
		invoke(s.handler, e)
	}
}

// claim snapshots the subscribers for key and removes the once
// subscriptions from the live list.
func (b *Bus) claim(key string) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[key]
	if len(subs) == 0 {
		return nil
	}

	snapshot := slices.Clone(subs)

	kept := slices.DeleteFunc(slices.Clone(subs), func(s *subscription) bool {
		return s.once
	})
	b.store(key, kept)

	return snapshot
}

func (b *Bus) add(tagName string, h Handler, priority int, once bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++

	key := tag.Normalize(tagName)
	s := &subscription{
		handler:  h,
		tag:      key,
		id:       b.nextID,
		priority: priority,
		once:     once,
	}

	subs := append(b.subs[key], s)
	slices.SortStableFunc(subs, func(x, y *subscription) int {
		return cmp.Compare(x.priority, y.priority)
	})
	b.subs[key] = subs

	return s.id
}

func (b *Bus) remove(key string, match func(*subscription) bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[key]

	i := slices.IndexFunc(subs, match)
	if i < 0 {
		return false
	}

	b.store(key, slices.Delete(slices.Clone(subs), i, i+1))

	return true
}

// store replaces the list for key. Callers must hold mu.
func (b *Bus) store(key string, subs []*subscription) {
	if len(subs) == 0 {
		delete(b.subs, key)
		return
	}

	b.subs[key] = subs
}

func invoke(h Handler, e Event) {
	defer func() {
		_ = recover()
	}()

	if h != nil {
		h.Handle(e)
	}
}
