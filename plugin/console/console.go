// Package console provides a plugin that writes coloured lines to a
// terminal or any other [io.Writer].
//
// Each message is rendered as
//
//	[TAG] (2006-01-02 15:04:05): message
//
// wrapped in an ANSI colour sequence chosen by tag. When the message
// carries an error, its text and call stack follow on indented lines.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"

	"go.jacobcolvin.com/taglog/callsite"
	"go.jacobcolvin.com/taglog/plugin"
	"go.jacobcolvin.com/taglog/tag"
)

// DefaultTimeLayout is the layout used for timestamps.
const DefaultTimeLayout = time.DateTime

const reset = "\x1b[0m"

// DefaultColors returns the ANSI SGR parameters used for each built-in tag.
func DefaultColors() map[string]string {
	return map[string]string{
		tag.Debug:     "0;34",
		tag.Info:      "0;37",
		tag.Notice:    "0;36",
		tag.Warning:   "0;33",
		tag.Error:     "0;31",
		tag.Critical:  "3;31",
		tag.Alert:     "1;31",
		tag.Emergency: "1;31",
	}
}

// Plugin writes one line per message to a writer. Writes are serialized, so
// lines from concurrent log calls never interleave.
//
// Create instances with [New].
type Plugin struct {
	*plugin.Base

	w        io.Writer
	colors   map[string]string
	location *time.Location
	layout   string
	newline  string
	base     []plugin.Option
	mu       sync.Mutex
	color    atomic.Bool
}

// Option configures a [Plugin].
type Option func(*Plugin)

// WithBase passes options to the embedded [plugin.Base], such as its
// priority or initial tag set.
func WithBase(opts ...plugin.Option) Option {
	return func(p *Plugin) {
		p.base = append(p.base, opts...)
	}
}

// WithColor forces colour output on or off. By default colour is enabled
// when the writer is a terminal.
func WithColor(enabled bool) Option {
	return func(p *Plugin) {
		p.color.Store(enabled)
	}
}

// WithColors overrides the SGR parameters for the given tags, for example
// {"audit": "1;35"}. Tags without a colour are written uncoloured.
func WithColors(colors map[string]string) Option {
	return func(p *Plugin) {
		for name, c := range colors {
			p.colors[tag.Normalize(name)] = c
		}
	}
}

// WithTimeLayout sets the [time.Time.Format] layout for timestamps.
func WithTimeLayout(layout string) Option {
	return func(p *Plugin) {
		p.layout = layout
	}
}

// WithLocation sets the time zone timestamps are rendered in. The default
// is [time.Local].
func WithLocation(loc *time.Location) Option {
	return func(p *Plugin) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithNewline sets the line terminator. The default is "\r\n" on Windows
// and "\n" elsewhere.
func WithNewline(nl string) Option {
	return func(p *Plugin) {
		p.newline = nl
	}
}

// New creates a [Plugin] writing to w.
func New(w io.Writer, opts ...Option) *Plugin {
	p := &Plugin{
		w:        w,
		colors:   DefaultColors(),
		location: time.Local,
		layout:   DefaultTimeLayout,
		newline:  "\n",
	}

	if runtime.GOOS == "windows" {
		p.newline = "\r\n"
	}

	p.color.Store(isTerminal(w))

	for _, opt := range opts {
		opt(p)
	}

	p.Base = plugin.NewBase(p.base...)
	p.base = nil

	return p
}

// SetColor turns colour output on or off.
func (p *Plugin) SetColor(enabled bool) {
	p.color.Store(enabled)
}

// Color reports whether colour output is on.
func (p *Plugin) Color() bool {
	return p.color.Load()
}

// Colors returns a copy of the tag colour table.
func (p *Plugin) Colors() map[string]string {
	return maps.Clone(p.colors)
}

// Log writes the rendered line.
func (p *Plugin) Log(_ context.Context, tagName string, timestamp int64, message string, err error) error {
	line := p.render(tagName, timestamp, message, err)

	p.mu.Lock()
	defer p.mu.Unlock()

	_, werr := io.WriteString(p.w, line)
	if werr != nil {
		return fmt.Errorf("write console: %w", werr)
	}

	return nil
}

func (p *Plugin) render(tagName string, timestamp int64, message string, err error) string {
	var sb strings.Builder

	color, ok := p.colors[tagName]
	colored := ok && p.color.Load()

	if colored {
		sb.WriteString("\x1b[")
		sb.WriteString(color)
		sb.WriteByte('m')
	}

	fmt.Fprintf(&sb, "[%s] (%s): %s",
		strings.ToUpper(tagName),
		time.UnixMilli(timestamp).In(p.location).Format(p.layout),
		message,
	)

	if colored {
		sb.WriteString(reset)
	}

	if err != nil {
		sb.WriteString(p.newline)
		sb.WriteString(renderError(err, p.newline))
	}

	sb.WriteString(p.newline)

	return sb.String()
}

// renderError renders the error text followed by its call stack, one
// tab-indented frame per line.
func renderError(err error, nl string) string {
	lines := []string{strings.TrimSpace(err.Error())}

	var cs *callsite.Error
	if errors.As(err, &cs) {
		for line := range strings.SplitSeq(cs.Stack(), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, "\t"+line)
			}
		}
	}

	return strings.Join(lines, nl)
}

type fder interface {
	Fd() uintptr
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(fder)
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd())) //nolint:gosec // File descriptors fit in int.
}
