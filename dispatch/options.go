package dispatch

import (
	"log/slog"

	"go.jacobcolvin.com/taglog/event"
	"go.jacobcolvin.com/taglog/format"
	"go.jacobcolvin.com/taglog/plugin"
	"go.jacobcolvin.com/taglog/tag"
)

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithPlugins registers plugins, as if by [Dispatcher.AddPlugin].
func WithPlugins(plugins ...plugin.Plugin) Option {
	return func(d *Dispatcher) {
		for _, p := range plugins {
			d.addPlugin(p)
		}
	}
}

// WithTags replaces the built-in tag set.
func WithTags(specs ...tag.Spec) Option {
	return func(d *Dispatcher) {
		d.tags = tag.NewRegistry(specs...)
	}
}

// WithLegacyTags replaces the built-in tag set using the legacy boolean
// shape. Each tag gets errors enabled.
func WithLegacyTags(states map[string]bool) Option {
	return WithTags(tag.FromLegacy(states)...)
}

// WithTimestampFunc sets the timestamp source. A nil fn keeps the default.
func WithTimestampFunc(fn TimestampFunc) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.timestamp = fn
		}
	}
}

// WithFormatter sets the message formatter. A nil fn keeps the default.
func WithFormatter(fn format.Func) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.formatter = fn
		}
	}
}

// WithLogger sets the logger used for the dispatcher's own diagnostics,
// such as plugin failures. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithEventBus sets the bus used for subscriptions, allowing several
// dispatchers to share subscribers.
func WithEventBus(b *event.Bus) Option {
	return func(d *Dispatcher) {
		if b != nil {
			d.events = b
		}
	}
}

// WithPluginErrorHandler sets a callback invoked for every plugin failure,
// after it has been logged. It runs on the failing plugin's goroutine.
func WithPluginErrorHandler(fn PluginErrorHandler) Option {
	return func(d *Dispatcher) {
		d.onPluginError = fn
	}
}

// WithMaxConcurrency limits how many plugins run at once for a single log
// call. Values less than 1 mean no limit.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n < 1 {
			n = -1
		}

		d.maxConcurrency = n
	}
}
