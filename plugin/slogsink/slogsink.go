// Package slogsink provides a plugin that forwards messages to a
// [slog.Handler].
//
// Tags map to slog levels; the tag itself is recorded under the "tag" key
// and any attached error under "error".
//
//	h, err := log.NewHandlerFromStrings(os.Stderr, "debug", "json")
//	if err != nil {
//	    return err
//	}
//
//	d.AddPlugin(slogsink.New(h))
package slogsink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"go.jacobcolvin.com/taglog/callsite"
	"go.jacobcolvin.com/taglog/log"
	"go.jacobcolvin.com/taglog/plugin"
	"go.jacobcolvin.com/taglog/tag"
)

// Levels beyond the ones slog defines.
const (
	LevelNotice    = slog.LevelInfo + 2
	LevelCritical  = slog.LevelError + 4
	LevelAlert     = slog.LevelError + 8
	LevelEmergency = slog.LevelError + 12
)

// Record keys.
const (
	TagKey   = "tag"
	ErrorKey = "error"
	StackKey = "stack"
)

// DefaultLevels returns the slog level used for each built-in tag.
func DefaultLevels() map[string]slog.Level {
	return map[string]slog.Level{
		tag.Debug:     slog.LevelDebug,
		tag.Info:      slog.LevelInfo,
		tag.Notice:    LevelNotice,
		tag.Warning:   slog.LevelWarn,
		tag.Error:     slog.LevelError,
		tag.Critical:  LevelCritical,
		tag.Alert:     LevelAlert,
		tag.Emergency: LevelEmergency,
	}
}

// Plugin forwards messages to a [slog.Handler].
//
// Create instances with [New].
type Plugin struct {
	*plugin.Base

	handler      slog.Handler
	levels       map[string]slog.Level
	base         []plugin.Option
	defaultLevel slog.Level
	stack        bool
}

// Option configures a [Plugin].
type Option func(*Plugin)

// WithBase passes options to the embedded [plugin.Base].
func WithBase(opts ...plugin.Option) Option {
	return func(p *Plugin) {
		p.base = append(p.base, opts...)
	}
}

// WithLevels overrides the level for the given tags.
func WithLevels(levels map[string]slog.Level) Option {
	return func(p *Plugin) {
		for name, l := range levels {
			p.levels[tag.Normalize(name)] = l
		}
	}
}

// WithDefaultLevel sets the level for tags without an explicit mapping.
// The default is [slog.LevelInfo].
func WithDefaultLevel(l slog.Level) Option {
	return func(p *Plugin) {
		p.defaultLevel = l
	}
}

// WithStack records the call stack of call-site errors under
// [StackKey].
func WithStack(enabled bool) Option {
	return func(p *Plugin) {
		p.stack = enabled
	}
}

// New creates a [Plugin] forwarding to h.
func New(h slog.Handler, opts ...Option) *Plugin {
	p := &Plugin{
		handler:      h,
		levels:       DefaultLevels(),
		defaultLevel: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.Base = plugin.NewBase(p.base...)
	p.base = nil

	return p
}

// NewFromStrings creates a [Plugin] writing to w with a handler built from
// level and format names, as accepted by [log.NewHandlerFromStrings].
func NewFromStrings(w io.Writer, level, format string, opts ...Option) (*Plugin, error) {
	h, err := log.NewHandlerFromStrings(w, level, format)
	if err != nil {
		return nil, fmt.Errorf("create slog handler: %w", err)
	}

	return New(h, opts...), nil
}

// Level returns the slog level used for tagName.
func (p *Plugin) Level(tagName string) slog.Level {
	if l, ok := p.levels[tag.Normalize(tagName)]; ok {
		return l
	}

	return p.defaultLevel
}

// Levels returns a copy of the tag level table.
func (p *Plugin) Levels() map[string]slog.Level {
	return maps.Clone(p.levels)
}

// Log forwards the message as a [slog.Record]. Messages below the
// handler's level are dropped.
func (p *Plugin) Log(ctx context.Context, tagName string, timestamp int64, message string, err error) error {
	level := p.Level(tagName)
	if !p.handler.Enabled(ctx, level) {
		return nil
	}

	r := slog.NewRecord(time.UnixMilli(timestamp), level, message, 0)
	r.AddAttrs(slog.String(TagKey, tagName))

	if err != nil {
		r.AddAttrs(slog.String(ErrorKey, err.Error()))

		if p.stack {
			if s := callsite.Stack(err); s != err.Error() {
				r.AddAttrs(slog.String(StackKey, s))
			}
		}
	}

	if herr := p.handler.Handle(ctx, r); herr != nil {
		return fmt.Errorf("handle record: %w", herr)
	}

	return nil
}
