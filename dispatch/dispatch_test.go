package dispatch_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.jacobcolvin.com/taglog/callsite"
	"go.jacobcolvin.com/taglog/dispatch"
	"go.jacobcolvin.com/taglog/event"
	"go.jacobcolvin.com/taglog/plugin"
	"go.jacobcolvin.com/taglog/plugin/plugintest"
	"go.jacobcolvin.com/taglog/tag"
)

func TestBuiltinMethods(t *testing.T) {
	t.Parallel()

	rec := plugintest.NewRecorder()
	d := dispatch.New(dispatch.WithPlugins(rec))

	methods := map[string]func(string, ...any) error{
		tag.Debug:     d.Debug,
		tag.Info:      d.Info,
		tag.Notice:    d.Notice,
		tag.Warning:   d.Warning,
		tag.Error:     d.Error,
		tag.Critical:  d.Critical,
		tag.Alert:     d.Alert,
		tag.Emergency: d.Emergency,
	}

	for _, name := range tag.BuiltinNames() {
		require.NoError(t, methods[name]("via "+name))
	}

	calls := rec.Calls()
	require.Len(t, calls, len(tag.BuiltinNames()))

	for i, name := range tag.BuiltinNames() {
		assert.Equal(t, name, calls[i].Tag)
		assert.Equal(t, "via "+name, calls[i].Message)
	}
}

func TestTagGating(t *testing.T) {
	t.Parallel()

	rec := plugintest.NewRecorder()
	d := dispatch.New(dispatch.WithPlugins(rec))

	var fired atomic.Int32

	d.On(tag.Debug, event.HandlerFunc(func(event.Event) { fired.Add(1) }), 0)

	d.Set("DEBUG", false)

	require.NoError(t, d.Debug("hidden %s", "x"))
	d.Wait()

	assert.Empty(t, rec.Calls())
	assert.Zero(t, fired.Load())

	d.Set(tag.Debug, true)

	require.NoError(t, d.Debug("shown"))
	d.Wait()

	assert.Equal(t, []string{"shown"}, rec.Messages())
	assert.Equal(t, int32(1), fired.Load())
}

func TestDisabledTagSkipsFormatter(t *testing.T) {
	t.Parallel()

	var called bool

	d := dispatch.New(dispatch.WithFormatter(func(string, ...any) (string, error) {
		called = true
		return "", nil
	}))

	d.Set(tag.Info, false)

	require.NoError(t, d.Info("%s", "x"))
	assert.False(t, called)
}

func TestPluginLocalGating(t *testing.T) {
	t.Parallel()

	a := plugintest.NewRecorder()
	b := plugintest.NewRecorder()
	b.Set(tag.Info, false)

	d := dispatch.New(dispatch.WithPlugins(a, b))

	require.NoError(t, d.Info("hello"))

	assert.Equal(t, []string{"hello"}, a.Messages())
	assert.Empty(t, b.Calls())
}

func TestCustomTagRequiresPluginTag(t *testing.T) {
	t.Parallel()

	known := plugintest.NewRecorder()
	known.Set("audit", true)

	unknown := plugintest.NewRecorder()

	d := dispatch.New(dispatch.WithPlugins(known, unknown))

	_, ok := d.Get("audit")
	require.False(t, ok)

	require.NoError(t, d.Custom("Audit", "user %s", "ada"))

	calls := known.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "audit", calls[0].Tag)
	assert.Equal(t, "user ada", calls[0].Message)
	assert.Empty(t, unknown.Calls())
}

func TestToggle(t *testing.T) {
	t.Parallel()

	d := dispatch.New()

	d.Set(tag.Warning, false)
	d.Set(tag.Warning, true)

	enabled, ok := d.Get(tag.Warning)
	require.True(t, ok)
	assert.True(t, enabled)

	assert.False(t, d.Toggle(tag.Warning))
	assert.True(t, d.Toggle(tag.Warning))
}

func TestUnknownTagCreation(t *testing.T) {
	t.Parallel()

	d := dispatch.New()

	_, ok := d.Get("new-tag")
	assert.False(t, ok)

	d.Set("new-tag", false)

	enabled, ok := d.Get("new-tag")
	require.True(t, ok)
	assert.False(t, enabled)
	assert.Contains(t, d.Available(), "new-tag")
	assert.NotContains(t, d.Active(), "new-tag")

	errEnabled, err := d.ErrorEnabled("new-tag")
	require.NoError(t, err)
	assert.True(t, errEnabled)
}

func TestErrorEnabledUnknownTag(t *testing.T) {
	t.Parallel()

	d := dispatch.New()

	_, err := d.ErrorEnabled("nope")
	require.ErrorIs(t, err, tag.ErrInvalidArgument)
}

func TestErrorAttachment(t *testing.T) {
	t.Parallel()

	rec := plugintest.NewRecorder()
	d := dispatch.New(dispatch.WithPlugins(rec))

	require.NoError(t, d.Error("first"))

	d.DisableError(tag.Error)
	require.NoError(t, d.Error("second"))

	d.EnableError(tag.Error)
	require.NoError(t, d.Error("third"))

	d.DisableError()
	require.NoError(t, d.Error("fourth"))

	calls := rec.Calls()
	require.Len(t, calls, 4)

	require.Error(t, calls[0].Err)
	require.NoError(t, calls[1].Err)
	require.Error(t, calls[2].Err)
	require.NoError(t, calls[3].Err)

	var cs *callsite.Error
	require.ErrorAs(t, calls[0].Err, &cs)
	assert.Equal(t, tag.Error, cs.Tag())

	frames := cs.Frames()
	require.NotEmpty(t, frames)
	assert.Contains(t, frames[0].Function, "TestErrorAttachment")
}

func TestPluginErrorPolicy(t *testing.T) {
	t.Parallel()

	wants := plugintest.NewRecorder()
	declines := plugintest.NewRecorder()
	declines.DisableError(tag.Info)

	d := dispatch.New(dispatch.WithPlugins(wants, declines))

	require.NoError(t, d.Info("msg"))

	require.Len(t, wants.Calls(), 1)
	require.Len(t, declines.Calls(), 1)
	require.Error(t, wants.Calls()[0].Err)
	require.NoError(t, declines.Calls()[0].Err)
}

func TestCallerSuppliedError(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	errOther := errors.New("other")

	tcs := map[string]struct {
		args     []any
		disable  bool
		wantMsg  string
		wantArgs []any
		wantErr  error
	}{
		"last": {
			args:     []any{"op", errBoom},
			wantMsg:  "failed op",
			wantArgs: []any{"op"},
			wantErr:  errBoom,
		},
		"middle": {
			args:     []any{"op", errBoom, "now"},
			wantMsg:  "failed op now",
			wantArgs: []any{"op", "now"},
			wantErr:  errBoom,
		},
		"first": {
			args:     []any{errBoom, "op"},
			wantMsg:  "failed op",
			wantArgs: []any{"op"},
			wantErr:  errBoom,
		},
		"first of two": {
			args:     []any{errBoom, errOther},
			wantMsg:  "failed other",
			wantArgs: []any{errOther},
			wantErr:  errBoom,
		},
		"nil error skipped": {
			args:     []any{error(nil), "op", errBoom},
			wantMsg:  "failed <nil> op",
			wantArgs: []any{nil, "op"},
			wantErr:  errBoom,
		},
		"errors disabled": {
			args:     []any{"op", errBoom},
			disable:  true,
			wantMsg:  "failed op",
			wantArgs: []any{"op"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rec := plugintest.NewRecorder()
			d := dispatch.New(dispatch.WithPlugins(rec))

			if tc.disable {
				d.DisableError()
			}

			got := make(chan event.Event, 1)
			d.On(tag.Error, event.HandlerFunc(func(e event.Event) { got <- e }), 0)

			args := append([]any(nil), tc.args...)
			require.NoError(t, d.Error("failed %s", args...))
			assert.Equal(t, tc.args, args)

			calls := rec.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tc.wantMsg, calls[0].Message)
			assert.Equal(t, tc.wantErr, calls[0].Err)

			e := <-got
			assert.Equal(t, tc.wantArgs, e.Arguments)
		})
	}
}

func TestEventArgumentsCopied(t *testing.T) {
	t.Parallel()

	d := dispatch.New()

	release := make(chan struct{})
	got := make(chan event.Event, 1)

	d.On(tag.Info, event.HandlerFunc(func(e event.Event) {
		<-release
		got <- e
	}), 0)

	args := []any{"a"}
	require.NoError(t, d.Info("x %s", args...))

	args[0] = "MUTATED"

	close(release)

	e := <-got
	assert.Equal(t, []any{"a"}, e.Arguments)
	assert.Equal(t, "x a", e.Message)
}

func TestFormatter(t *testing.T) {
	t.Parallel()

	var formatted atomic.Int32

	rec := plugintest.NewRecorder()
	d := dispatch.New(
		dispatch.WithPlugins(rec),
		dispatch.WithFormatter(func(template string, args ...any) (string, error) {
			formatted.Add(1)
			return fmt.Sprintf(strings.ReplaceAll(template, "%s", "%v"), args...), nil
		}),
	)

	require.NoError(t, d.Debug("Abc %s", "hi"))
	require.NoError(t, d.Debug("Abc"))

	assert.Equal(t, []string{"Abc hi", "Abc"}, rec.Messages())
	assert.Equal(t, int32(1), formatted.Load())
}

func TestDefaultFormatter(t *testing.T) {
	t.Parallel()

	rec := plugintest.NewRecorder()
	d := dispatch.New(dispatch.WithPlugins(rec))

	require.NoError(t, d.Debug("Abc %s", "hi"))
	require.NoError(t, d.Debug("100%"))

	assert.Equal(t, []string{"Abc hi", "100%"}, rec.Messages())
}

func TestFormatterError(t *testing.T) {
	t.Parallel()

	rec := plugintest.NewRecorder()
	d := dispatch.New(dispatch.WithPlugins(rec))

	var fired atomic.Int32

	d.On(tag.Info, event.HandlerFunc(func(event.Event) { fired.Add(1) }), 0)

	d.SetFormatter(func(string, ...any) (string, error) {
		return "", assert.AnError
	})

	err := d.Info("x %s", "y")
	require.ErrorIs(t, err, dispatch.ErrFormat)
	require.ErrorIs(t, err, assert.AnError)

	d.Wait()

	assert.Empty(t, rec.Calls())
	assert.Zero(t, fired.Load())

	d.SetFormatter(nil)

	require.NoError(t, d.Info("x %s", "y"))
	assert.Equal(t, []string{"x y"}, rec.Messages())
}

func TestTimestamp(t *testing.T) {
	t.Parallel()

	rec := plugintest.NewRecorder()
	d := dispatch.New(dispatch.WithPlugins(rec))

	require.NoError(t, d.Info("before"))

	d.SetTimestampFunction(func() int64 { return 123 })

	require.NoError(t, d.Info("a"))
	require.NoError(t, d.Warning("b"))

	calls := rec.Calls()
	require.Len(t, calls, 3)
	assert.Positive(t, calls[0].Timestamp)
	assert.Equal(t, int64(123), calls[1].Timestamp)
	assert.Equal(t, int64(123), calls[2].Timestamp)

	d.SetTimestampFunction(nil)
	require.NoError(t, d.Info("after"))
	assert.NotEqual(t, int64(123), rec.Calls()[3].Timestamp)
}

func TestWithTimestampFunc(t *testing.T) {
	t.Parallel()

	rec := plugintest.NewRecorder()
	d := dispatch.New(
		dispatch.WithPlugins(rec),
		dispatch.WithTimestampFunc(func() int64 { return 7 }),
	)

	require.NoError(t, d.Info("x"))
	assert.Equal(t, int64(7), rec.Calls()[0].Timestamp)
}

func TestRemovePlugin(t *testing.T) {
	t.Parallel()

	a := plugintest.NewRecorder()
	b := plugintest.NewRecorder()
	d := dispatch.New(dispatch.WithPlugins(a, b))

	d.RemovePlugin(a)
	d.RemovePlugin(a)
	d.RemovePlugin(nil)

	require.NoError(t, d.Info("x"))

	assert.Empty(t, a.Calls())
	assert.Len(t, b.Calls(), 1)
	assert.NotContains(t, d.Plugins(), plugin.Plugin(a))
	assert.Len(t, d.Plugins(), 1)
}

func TestPluginPriority(t *testing.T) {
	t.Parallel()

	alloc := &plugin.Allocator{}

	low := plugintest.NewRecorder(plugin.WithAllocator(alloc), plugin.WithPriority(-1))
	midA := plugintest.NewRecorder(plugin.WithAllocator(alloc))
	midB := plugintest.NewRecorder(plugin.WithAllocator(alloc))
	high := plugintest.NewRecorder(plugin.WithAllocator(alloc), plugin.WithPriority(10))

	d := dispatch.New()
	d.AddPlugin(high)
	d.AddPlugin(midA)
	d.AddPlugin(low)
	d.AddPlugin(midB)

	var ids []uint64
	for _, p := range d.Plugins() {
		ids = append(ids, p.ID())
	}

	assert.Equal(t, []uint64{low.ID(), midA.ID(), midB.ID(), high.ID()}, ids)
}

func TestPluginIsolation(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		bad plugin.Plugin
	}{
		"returns error": {bad: plugintest.NewFailing()},
		"panics":        {bad: plugintest.NewPanicking("boom")},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var (
				mu       sync.Mutex
				reported []error
				buf      bytes.Buffer
			)

			good := plugintest.NewRecorder(plugin.WithPriority(1))
			d := dispatch.New(
				dispatch.WithPlugins(tc.bad, good),
				dispatch.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
				dispatch.WithPluginErrorHandler(func(p plugin.Plugin, tagName string, err error) {
					mu.Lock()
					defer mu.Unlock()

					assert.Equal(t, tc.bad.ID(), p.ID())
					assert.Equal(t, tag.Info, tagName)

					reported = append(reported, err)
				}),
			)

			require.NoError(t, d.Info("still logged"))

			assert.Equal(t, []string{"still logged"}, good.Messages())
			assert.Len(t, reported, 1)
			assert.Contains(t, buf.String(), "plugin failed")
		})
	}
}

func TestAbstractPluginPanics(t *testing.T) {
	t.Parallel()

	good := plugintest.NewRecorder()
	d := dispatch.New(dispatch.WithPlugins(plugin.NewFunc(nil), good))

	defer func() {
		r := recover()
		require.NotNil(t, r)

		err, ok := r.(error)
		require.True(t, ok)
		require.ErrorIs(t, err, plugin.ErrAbstractMethod)

		assert.Len(t, good.Calls(), 1)
	}()

	_ = d.Info("x")

	t.Fatal("expected panic")
}

func TestEventsOnce(t *testing.T) {
	t.Parallel()

	d := dispatch.New()

	var calls atomic.Int32

	d.Once(tag.Notice, event.HandlerFunc(func(event.Event) { calls.Add(1) }), 0)

	require.NoError(t, d.Notice("one"))
	d.Wait()
	require.NoError(t, d.Notice("two"))
	d.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestEventPayload(t *testing.T) {
	t.Parallel()

	d := dispatch.New(dispatch.WithTimestampFunc(func() int64 { return 42 }))

	got := make(chan event.Event, 1)

	d.On(tag.Warning, event.HandlerFunc(func(e event.Event) { got <- e }), 0)

	require.NoError(t, d.Warning("disk %d%% full", 91))

	e := <-got
	assert.Equal(t, tag.Warning, e.Tag)
	assert.Equal(t, "disk 91% full", e.Message)
	assert.Equal(t, []any{91}, e.Arguments)
	assert.Equal(t, int64(42), e.Timestamp)
	assert.NotEmpty(t, e.ID)
	require.Error(t, e.Err)
}

func TestEventsOff(t *testing.T) {
	t.Parallel()

	d := dispatch.New()

	var calls atomic.Int32

	f := event.HandlerFunc(func(event.Event) { calls.Add(1) })
	h := &f
	id := d.On(tag.Info, h, 0)

	require.NoError(t, d.Info("a"))
	d.Wait()

	assert.True(t, d.Off(tag.Info, id))
	assert.False(t, d.Off(tag.Info, id))

	require.NoError(t, d.Info("b"))
	d.Wait()

	d.On(tag.Info, h, 0)
	assert.True(t, d.OffHandler(tag.Info, h))
	assert.False(t, d.OffHandler(tag.Info, h))

	require.NoError(t, d.Info("c"))
	d.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestSubscriberPanicIsolated(t *testing.T) {
	t.Parallel()

	rec := plugintest.NewRecorder()
	d := dispatch.New(dispatch.WithPlugins(rec))

	d.On(tag.Error, event.HandlerFunc(func(event.Event) { panic("observer") }), 0)

	assert.NotPanics(t, func() {
		require.NoError(t, d.Error("x"))
		d.Wait()
	})
	assert.Len(t, rec.Calls(), 1)
}

func TestSharedEventBus(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	a := dispatch.New(dispatch.WithEventBus(bus))
	b := dispatch.New(dispatch.WithEventBus(bus))

	var calls atomic.Int32

	bus.On(tag.Info, event.HandlerFunc(func(event.Event) { calls.Add(1) }), 0)

	require.NoError(t, a.Info("a"))
	require.NoError(t, b.Info("b"))
	a.Wait()
	b.Wait()

	assert.Equal(t, int32(2), calls.Load())
}

func TestWithTags(t *testing.T) {
	t.Parallel()

	d := dispatch.New(dispatch.WithTags(
		tag.Spec{Name: "Trace", Enabled: false, Error: false},
		tag.Spec{Name: "audit", Enabled: true, Error: true},
	))

	assert.Equal(t, []string{"trace", "audit"}, d.Available())
	assert.Equal(t, []string{"audit"}, d.Active())

	errEnabled, err := d.ErrorEnabled("trace")
	require.NoError(t, err)
	assert.False(t, errEnabled)
}

func TestWithLegacyTags(t *testing.T) {
	t.Parallel()

	d := dispatch.New(dispatch.WithLegacyTags(map[string]bool{
		"debug": false,
		"Info":  true,
		"audit": true,
	}))

	assert.Equal(t, []string{"debug", "info", "audit"}, d.Available())
	assert.Equal(t, []string{"info", "audit"}, d.Active())

	for _, name := range d.Available() {
		errEnabled, err := d.ErrorEnabled(name)
		require.NoError(t, err)
		assert.True(t, errEnabled, name)
	}

	tags := d.Tags()
	require.NotNil(t, tags[0].Code)
	assert.Equal(t, 7, *tags[0].Code)
	assert.Nil(t, tags[2].Code)
}

func TestMaxConcurrency(t *testing.T) {
	t.Parallel()

	var (
		running atomic.Int32
		peak    atomic.Int32
	)

	slow := func() plugin.Plugin {
		return plugin.NewFunc(func(context.Context, string, int64, string, error) error {
			n := running.Add(1)
			defer running.Add(-1)

			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			return nil
		})
	}

	d := dispatch.New(
		dispatch.WithPlugins(slow(), slow(), slow(), slow()),
		dispatch.WithMaxConcurrency(1),
	)

	require.NoError(t, d.Info("x"))
	assert.Equal(t, int32(1), peak.Load())
}

func TestLogContext(t *testing.T) {
	t.Parallel()

	type ctxKey struct{}

	got := make(chan any, 1)

	p := plugin.NewFunc(func(ctx context.Context, _ string, _ int64, _ string, _ error) error {
		got <- ctx.Value(ctxKey{})
		return nil
	})

	d := dispatch.New(dispatch.WithPlugins(p))

	ctx := context.WithValue(t.Context(), ctxKey{}, "value")
	require.NoError(t, d.Log(ctx, "INFO", "x"))

	assert.Equal(t, "value", <-got)
}

func TestConcurrentLogging(t *testing.T) {
	t.Parallel()

	rec := plugintest.NewRecorder()
	d := dispatch.New(dispatch.WithPlugins(rec))

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			assert.NoError(t, d.Info("msg %d", i))
		})
		wg.Go(func() {
			d.Toggle("scratch")
		})
	}

	wg.Wait()

	assert.Len(t, rec.Calls(), 50)
}
