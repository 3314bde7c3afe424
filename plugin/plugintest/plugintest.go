// Package plugintest provides plugin test doubles.
package plugintest

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.jacobcolvin.com/taglog/plugin"
)

// ErrFailing is returned by plugins created with [NewFailing].
var ErrFailing = errors.New("plugin failed")

// Call is one recorded invocation of [Recorder.Log].
type Call struct {
	Err       error
	Tag       string
	Message   string
	Timestamp int64
}

// Recorder is a [plugin.Plugin] that records every call. Safe for
// concurrent use.
type Recorder struct {
	*plugin.Base

	calls []Call
	mu    sync.Mutex
}

// NewRecorder creates a [Recorder].
func NewRecorder(opts ...plugin.Option) *Recorder {
	return &Recorder{Base: plugin.NewBase(opts...)}
}

// Log records the call.
func (r *Recorder) Log(_ context.Context, tag string, timestamp int64, message string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{
		Tag:       tag,
		Timestamp: timestamp,
		Message:   message,
		Err:       err,
	})

	return nil
}

// Calls returns the recorded calls in arrival order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.calls)
}

// Messages returns the recorded messages in arrival order.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.Message)
	}

	return out
}

// Reset drops the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = nil
}

// NewFailing creates a plugin whose Log always returns [ErrFailing].
func NewFailing(opts ...plugin.Option) *plugin.Func {
	return plugin.NewFunc(func(context.Context, string, int64, string, error) error {
		return ErrFailing
	}, opts...)
}

// NewPanicking creates a plugin whose Log panics with v.
func NewPanicking(v any, opts ...plugin.Option) *plugin.Func {
	return plugin.NewFunc(func(context.Context, string, int64, string, error) error {
		panic(v)
	}, opts...)
}
