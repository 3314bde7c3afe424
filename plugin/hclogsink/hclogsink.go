// Package hclogsink provides a plugin that forwards messages to a
// [hclog.Logger].
package hclogsink

import (
	"context"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"

	"go.jacobcolvin.com/taglog/plugin"
	"go.jacobcolvin.com/taglog/tag"
)

// Argument keys.
const (
	TagKey      = "tag"
	ErrorKey    = "error"
	LoggedAtKey = "logged_at"
)

// Level maps a tag to the closest hclog level. Unknown tags map to
// [hclog.Info].
func Level(tagName string) hclog.Level {
	switch tag.Normalize(tagName) {
	case tag.Debug:
		return hclog.Debug
	case tag.Info, tag.Notice:
		return hclog.Info
	case tag.Warning:
		return hclog.Warn
	case tag.Error, tag.Critical, tag.Alert, tag.Emergency:
		return hclog.Error
	}

	return hclog.Info
}

// Plugin forwards messages to a [hclog.Logger].
type Plugin struct {
	*plugin.Base

	logger hclog.Logger
}

// New creates a [Plugin] forwarding to l.
func New(l hclog.Logger, opts ...plugin.Option) *Plugin {
	return &Plugin{
		Base:   plugin.NewBase(opts...),
		logger: l,
	}
}

// NewWriter creates a [Plugin] with a new hclog logger writing to w at
// trace level, in JSON when json is true.
func NewWriter(w io.Writer, name string, json bool, opts ...plugin.Option) *Plugin {
	return New(hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Output:     w,
		JSONFormat: json,
		TimeFn:     time.Now,
		Level:      hclog.Trace,
	}), opts...)
}

// Logger returns the wrapped logger.
func (p *Plugin) Logger() hclog.Logger {
	return p.logger
}

// Log forwards the message. The original timestamp is recorded under
// [LoggedAtKey], since hclog stamps records itself.
func (p *Plugin) Log(_ context.Context, tagName string, timestamp int64, message string, err error) error {
	args := []any{
		TagKey, tagName,
		LoggedAtKey, time.UnixMilli(timestamp).UTC().Format(time.RFC3339Nano),
	}

	if err != nil {
		args = append(args, ErrorKey, err.Error())
	}

	p.logger.Log(Level(tagName), message, args...)

	return nil
}
