// Package plugin defines the output plugin contract consumed by the
// dispatcher.
//
// Every plugin owns an independent [tag.Registry], so it can opt out of a
// tag the dispatcher still has enabled. Embed [Base] to get the tag table,
// error policy, identity and priority, and implement Log:
//
//	type Printer struct {
//	    *plugin.Base
//	}
//
//	func (p *Printer) Log(ctx context.Context, tag string, ts int64, msg string, err error) error {
//	    _, werr := fmt.Println(tag, msg)
//	    return werr
//	}
//
// Plugins are invoked in ascending [Plugin.Priority] order.
package plugin

import (
	"context"
	"errors"
	"sync/atomic"

	"go.jacobcolvin.com/taglog/tag"
)

// ErrAbstractMethod indicates a plugin was invoked without a Log
// implementation. It is a programming error and is raised as a panic.
var ErrAbstractMethod = errors.New("plugin log method is not implemented")

// Plugin is an output sink registered with a dispatcher.
type Plugin interface {
	// ID returns the plugin's unique identity.
	ID() uint64
	// Priority returns the ordering key; lower values are invoked first.
	Priority() int
	// Get reports the plugin's own state for a tag. ok is false for an
	// unknown tag.
	Get(tag string) (enabled, ok bool)
	// ErrorEnabled reports whether the plugin wants the call-site error for
	// a tag.
	ErrorEnabled(tag string) (bool, error)
	// Log performs the write. err is nil unless error attachment is enabled
	// for both the dispatcher and the plugin.
	Log(ctx context.Context, tag string, timestamp int64, message string, err error) error
}

// Allocator hands out plugin ids. The zero value is ready to use and safe
// for concurrent use.
type Allocator struct {
	next atomic.Uint64
}

// Next returns a new id. Ids start at 1.
func (a *Allocator) Next() uint64 {
	return a.next.Add(1)
}

// DefaultAllocator is used by [NewBase] when no allocator is given.
var DefaultAllocator = &Allocator{}

// Base implements everything in [Plugin] except Log. It embeds the
// plugin's own [tag.Registry].
//
// Create instances with [NewBase].
type Base struct {
	*tag.Registry

	id       uint64
	priority atomic.Int64
}

// Option configures a [Base].
type Option func(*baseConfig)

type baseConfig struct {
	alloc    *Allocator
	specs    []tag.Spec
	priority int
}

// WithAllocator sets the id allocator.
func WithAllocator(a *Allocator) Option {
	return func(c *baseConfig) {
		if a != nil {
			c.alloc = a
		}
	}
}

// WithPriority sets the initial priority.
func WithPriority(p int) Option {
	return func(c *baseConfig) {
		c.priority = p
	}
}

// WithTags replaces the built-in tag set the plugin starts with.
func WithTags(specs ...tag.Spec) Option {
	return func(c *baseConfig) {
		c.specs = specs
	}
}

// NewBase creates a [Base] with a fresh id, priority 0 and the built-in tags
// enabled.
func NewBase(opts ...Option) *Base {
	cfg := baseConfig{
		alloc: DefaultAllocator,
		specs: tag.Builtins(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Base{
		Registry: tag.NewRegistry(cfg.specs...),
		id:       cfg.alloc.Next(),
	}
	b.priority.Store(int64(cfg.priority))

	return b
}

// ID returns the id assigned at construction.
func (b *Base) ID() uint64 {
	return b.id
}

// Priority returns the current priority.
func (b *Base) Priority() int {
	return int(b.priority.Load())
}

// SetPriority changes the priority. Dispatchers order plugins when they are
// added, so the change takes effect on the next registration.
func (b *Base) SetPriority(p int) {
	b.priority.Store(int64(p))
}

// LogFunc is the signature of [Plugin.Log].
type LogFunc func(ctx context.Context, tag string, timestamp int64, message string, err error) error

// Func adapts a [LogFunc] into a [Plugin].
type Func struct {
	*Base

	fn LogFunc
}

// NewFunc creates a [Func] plugin. A nil fn yields a plugin whose Log
// panics with [ErrAbstractMethod].
func NewFunc(fn LogFunc, opts ...Option) *Func {
	return &Func{
		Base: NewBase(opts...),
		fn:   fn,
	}
}

// Log calls the wrapped function.
func (f *Func) Log(ctx context.Context, tag string, timestamp int64, message string, err error) error {
	if f.fn == nil {
		panic(ErrAbstractMethod)
	}

	return f.fn(ctx, tag, timestamp, message, err)
}
