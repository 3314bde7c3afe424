package dispatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go.jacobcolvin.com/taglog/callsite"
	"go.jacobcolvin.com/taglog/event"
	"go.jacobcolvin.com/taglog/format"
	"go.jacobcolvin.com/taglog/log"
	"go.jacobcolvin.com/taglog/plugin"
	"go.jacobcolvin.com/taglog/tag"
)

// callerSkip is the number of frames between callsite.Capture's caller and
// the user's call: Dispatcher.log and the exported method.
const callerSkip = 2

// ErrFormat indicates the formatter failed to render a message.
var ErrFormat = errors.New("formatter failed")

// TimestampFunc returns the current time in epoch milliseconds.
type TimestampFunc func() int64

// PluginErrorHandler is called when a plugin returns an error or panics.
type PluginErrorHandler func(p plugin.Plugin, tag string, err error)

// Dispatcher is the logging core. Safe for concurrent use.
//
// Create instances with [New].
type Dispatcher struct {
	tags           *tag.Registry
	events         *event.Bus
	logger         *slog.Logger
	onPluginError  PluginErrorHandler
	timestamp      TimestampFunc
	formatter      format.Func
	plugins        []plugin.Plugin
	inflight       sync.WaitGroup
	maxConcurrency int
	mu             sync.RWMutex
}

// New creates a [Dispatcher] with the built-in tags, no plugins, the
// [format.Sprintf] formatter and a wall clock timestamp.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tags:           tag.NewRegistry(tag.Builtins()...),
		events:         event.NewBus(),
		logger:         log.Discard(),
		timestamp:      Now,
		formatter:      format.Sprintf,
		maxConcurrency: -1,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Now returns the current time in epoch milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// Debug logs message under the debug tag.
func (d *Dispatcher) Debug(message string, args ...any) error {
	return d.log(context.Background(), tag.Debug, message, args)
}

// Info logs message under the info tag.
func (d *Dispatcher) Info(message string, args ...any) error {
	return d.log(context.Background(), tag.Info, message, args)
}

// Notice logs message under the notice tag.
func (d *Dispatcher) Notice(message string, args ...any) error {
	return d.log(context.Background(), tag.Notice, message, args)
}

// Warning logs message under the warning tag.
func (d *Dispatcher) Warning(message string, args ...any) error {
	return d.log(context.Background(), tag.Warning, message, args)
}

// Error logs message under the error tag.
func (d *Dispatcher) Error(message string, args ...any) error {
	return d.log(context.Background(), tag.Error, message, args)
}

// Critical logs message under the critical tag.
func (d *Dispatcher) Critical(message string, args ...any) error {
	return d.log(context.Background(), tag.Critical, message, args)
}

// Alert logs message under the alert tag.
func (d *Dispatcher) Alert(message string, args ...any) error {
	return d.log(context.Background(), tag.Alert, message, args)
}

// Emergency logs message under the emergency tag.
func (d *Dispatcher) Emergency(message string, args ...any) error {
	return d.log(context.Background(), tag.Emergency, message, args)
}

// Custom logs message under an arbitrary tag.
func (d *Dispatcher) Custom(tagName, message string, args ...any) error {
	return d.log(context.Background(), tagName, message, args)
}

// Log logs message under tagName, passing ctx to plugins. See the package
// documentation for the full algorithm.
func (d *Dispatcher) Log(ctx context.Context, tagName, message string, args ...any) error {
	return d.log(ctx, tagName, message, args)
}

func (d *Dispatcher) log(ctx context.Context, tagName, message string, args []any) error {
	key := tag.Normalize(tagName)

	if enabled, ok := d.tags.Get(key); ok && !enabled {
		return nil
	}

	args, callerErr := extractError(args)

	d.mu.RLock()
	formatter := d.formatter
	now := d.timestamp
	plugins := slices.Clone(d.plugins)
	d.mu.RUnlock()

	msg := message
	if len(args) > 0 {
		var err error

		msg, err = formatter(message, args...)
		if err != nil {
			return fmt.Errorf("%w: tag %q: %w", ErrFormat, key, err)
		}
	}

	var logErr error
	if d.errorEnabled(key) {
		logErr = callerErr
		if logErr == nil {
			logErr = callsite.Capture(key, callerSkip)
		}
	}

	ts := now()

	d.emit(event.Event{
		Tag:       key,
		Message:   msg,
		Arguments: slices.Clone(args),
		Timestamp: ts,
		Err:       logErr,
	})

	d.fanOut(ctx, plugins, key, ts, msg, logErr)

	return nil
}

// errorEnabled applies the error policy. Tags unknown to the dispatcher
// follow the global flag.
func (d *Dispatcher) errorEnabled(key string) bool {
	enabled, err := d.tags.ErrorEnabled(key)
	if err != nil {
		return d.tags.ErrorsEnabled()
	}

	return enabled
}

// fanOut runs every interested plugin concurrently and waits for all of
// them. A plugin panicking with plugin.ErrAbstractMethod is re-raised here,
// on the caller's goroutine.
func (d *Dispatcher) fanOut(ctx context.Context, plugins []plugin.Plugin, key string, ts int64, msg string, logErr error) {
	var (
		g        errgroup.Group
		abstract sync.Once
		fatal    any
	)

	g.SetLimit(d.maxConcurrency)

	for _, p := range plugins {
		if enabled, ok := p.Get(key); !ok || !enabled {
			continue
		}

		pluginErr := logErr
		if want, err := p.ErrorEnabled(key); err != nil || !want {
			pluginErr = nil
		}

		g.Go(func() error {
			err := invoke(ctx, p, key, ts, msg, pluginErr)
			if errors.Is(err, plugin.ErrAbstractMethod) {
				abstract.Do(func() { fatal = err })
				return err
			}

			if err != nil {
				d.reportPluginError(ctx, p, key, err)
			}

			return err
		})
	}

	_ = g.Wait()

	if fatal != nil {
		panic(fatal)
	}
}

func (d *Dispatcher) reportPluginError(ctx context.Context, p plugin.Plugin, key string, err error) {
	d.logger.WarnContext(ctx, "plugin failed",
		slog.Uint64("plugin", p.ID()),
		slog.String("tag", key),
		slog.Any("error", err),
	)

	if d.onPluginError != nil {
		d.onPluginError(p, key, err)
	}
}

// invoke calls p.Log, converting a panic into an error.
func invoke(ctx context.Context, p plugin.Plugin, key string, ts int64, msg string, logErr error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if rerr, ok := r.(error); ok {
			err = fmt.Errorf("plugin %d panicked: %w", p.ID(), rerr)
			return
		}

		err = fmt.Errorf("plugin %d panicked: %v", p.ID(), r)
	}()

	return p.Log(ctx, key, ts, msg, logErr)
}

// emit delivers e to subscribers on a detached goroutine.
func (d *Dispatcher) emit(e event.Event) {
	if d.events.Len(e.Tag) == 0 {
		return
	}

	e.ID = uuid.NewString()

	d.inflight.Add(1)

	go func() {
		defer d.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Debug("event emission failed", slog.String("tag", e.Tag), slog.Any("panic", r))
			}
		}()

		d.events.Emit(e)
	}()
}

// Wait blocks until all pending event emissions have finished. Logging
// must not run concurrently with Wait; stop all log calls first.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// AddPlugin registers p and re-sorts the plugin list by ascending priority.
// The sort is stable, so equal priorities keep registration order.
func (d *Dispatcher) AddPlugin(p plugin.Plugin) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.addPlugin(p)
}

func (d *Dispatcher) addPlugin(p plugin.Plugin) {
	if p == nil {
		return
	}

	d.plugins = append(d.plugins, p)
	slices.SortStableFunc(d.plugins, func(a, b plugin.Plugin) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
}

// RemovePlugin unregisters every plugin with p's id. It is a no-op if p is
// not registered.
func (d *Dispatcher) RemovePlugin(p plugin.Plugin) {
	if p == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := p.ID()
	d.plugins = slices.DeleteFunc(slices.Clone(d.plugins), func(q plugin.Plugin) bool {
		return q.ID() == id
	})
}

// Plugins returns the registered plugins in invocation order.
func (d *Dispatcher) Plugins() []plugin.Plugin {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.plugins)
}

// SetTimestampFunction replaces the timestamp source for subsequent calls.
// A nil fn restores [Now].
func (d *Dispatcher) SetTimestampFunction(fn TimestampFunc) {
	if fn == nil {
		fn = Now
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.timestamp = fn
}

// SetFormatter replaces the formatter for subsequent calls. A nil fn
// restores [format.Sprintf].
func (d *Dispatcher) SetFormatter(fn format.Func) {
	if fn == nil {
		fn = format.Sprintf
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.formatter = fn
}

// Get reports the dispatcher's state for a tag. ok is false for an unknown
// tag.
func (d *Dispatcher) Get(tagName string) (enabled, ok bool) {
	return d.tags.Get(tagName)
}

// Set sets the dispatcher's state for a tag, creating it if needed.
func (d *Dispatcher) Set(tagName string, enabled bool) {
	d.tags.Set(tagName, enabled)
}

// Toggle flips the dispatcher's state for a tag and returns the new state.
func (d *Dispatcher) Toggle(tagName string) bool {
	return d.tags.Toggle(tagName)
}

// Available returns all tag names known to the dispatcher.
func (d *Dispatcher) Available() []string {
	return d.tags.Available()
}

// Active returns the enabled tag names.
func (d *Dispatcher) Active() []string {
	return d.tags.Active()
}

// Tags returns snapshots of the dispatcher's tags.
func (d *Dispatcher) Tags() []tag.Tag {
	return d.tags.Tags()
}

// DisableError stops attaching call-site errors, globally when no tags are
// given.
func (d *Dispatcher) DisableError(tags ...string) {
	d.tags.DisableError(tags...)
}

// EnableError resumes attaching call-site errors, globally when no tags are
// given.
func (d *Dispatcher) EnableError(tags ...string) {
	d.tags.EnableError(tags...)
}

// ErrorEnabled reports the error policy for a known tag. It returns
// [tag.ErrInvalidArgument] for an unknown tag.
func (d *Dispatcher) ErrorEnabled(tagName string) (bool, error) {
	return d.tags.ErrorEnabled(tagName)
}

// On subscribes h to tagName. See [event.Bus.On].
func (d *Dispatcher) On(tagName string, h event.Handler, priority int) int {
	return d.events.On(tagName, h, priority)
}

// Once subscribes h to the next event on tagName. See [event.Bus.Once].
func (d *Dispatcher) Once(tagName string, h event.Handler, priority int) int {
	return d.events.Once(tagName, h, priority)
}

// Off removes a subscription by id. See [event.Bus.Off].
func (d *Dispatcher) Off(tagName string, id int) bool {
	return d.events.Off(tagName, id)
}

// OffHandler removes a subscription by handler. See [event.Bus.OffHandler].
func (d *Dispatcher) OffHandler(tagName string, h event.Handler) bool {
	return d.events.OffHandler(tagName, h)
}

// extractError removes the first non-nil error from args. The caller's
// slice is never modified.
func extractError(args []any) ([]any, error) {
	i := slices.IndexFunc(args, func(a any) bool {
		err, ok := a.(error)
		return ok && err != nil
	})
	if i < 0 {
		return args, nil
	}

	err, _ := args[i].(error)

	return slices.Delete(slices.Clone(args), i, i+1), err
}
