// Package stream provides a plugin that fans messages out to channel
// subscribers, for live tailing in UIs, tests or network handlers.
package stream

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"go.jacobcolvin.com/taglog/plugin"
	"go.jacobcolvin.com/taglog/tag"
)

const defaultBufferSize = 64

// Entry is one delivered message.
type Entry struct {
	Err       error
	Tag       string
	Message   string
	Timestamp int64
}

// Plugin delivers every message it receives to all active subscriptions.
//
// Each subscription has a buffered channel with ring-buffer semantics:
// when it is full the oldest entry is dropped, so Log never blocks. Safe
// for concurrent use.
//
// Create instances with [New].
type Plugin struct {
	*plugin.Base

	subscribers []*Subscription
	base        []plugin.Option
	bufSize     int
	mu          sync.Mutex
	closed      bool
}

// Option configures a [Plugin].
type Option func(*Plugin)

// WithBufferSize sets the channel buffer size for new subscriptions.
// Values less than 1 are clamped to 1.
func WithBufferSize(n int) Option {
	return func(p *Plugin) {
		if n < 1 {
			n = 1
		}

		p.bufSize = n
	}
}

// WithBase passes options to the embedded [plugin.Base].
func WithBase(opts ...plugin.Option) Option {
	return func(p *Plugin) {
		p.base = append(p.base, opts...)
	}
}

// New creates a [Plugin]. The default buffer size is 64.
func New(opts ...Option) *Plugin {
	p := &Plugin{
		bufSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.Base = plugin.NewBase(p.base...)
	p.base = nil

	return p
}

// Log sends the message to every subscription whose filter matches.
// Closed subscriptions are compacted out of the subscriber list. Log
// always returns nil.
func (p *Plugin) Log(_ context.Context, tagName string, timestamp int64, message string, err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	e := Entry{
		Tag:       tagName,
		Timestamp: timestamp,
		Message:   message,
		Err:       err,
	}

	alive := p.subscribers[:0]
	for _, sub := range p.subscribers {
		if sub.closed.Load() {
			close(sub.ch)
			continue
		}

		alive = append(alive, sub)

		if !sub.wants(tagName) {
			continue
		}

		select {
		case sub.ch <- e:
			continue
		default:
		}

		// Full: drop the oldest. A consumer may drain in between, so
		// neither step may block.
		select {
		case <-sub.ch:
		default:
		}

		select {
		case sub.ch <- e:
		default:
		}
	}

	for i := len(alive); i < len(p.subscribers); i++ {
		p.subscribers[i] = nil
	}

	p.subscribers = alive

	return nil
}

// Subscribe registers a new [Subscription] receiving the given tags, or
// every tag when none are given. If the plugin is already closed the
// returned subscription's channel is immediately closed.
func (p *Plugin) Subscribe(tags ...string) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := &Subscription{
		ch: make(chan Entry, p.bufSize),
	}

	for _, name := range tags {
		sub.tags = append(sub.tags, tag.Normalize(name))
	}

	if p.closed {
		close(sub.ch)
		return sub
	}

	p.subscribers = append(p.subscribers, sub)

	return sub
}

// Close closes all subscription channels and stops delivery. Idempotent.
func (p *Plugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	for _, sub := range p.subscribers {
		close(sub.ch)
	}

	p.subscribers = nil

	return nil
}

// Subscription receives entries from a [Plugin].
type Subscription struct {
	ch     chan Entry
	tags   []string
	closed atomic.Bool
}

// C returns the channel that delivers entries.
func (s *Subscription) C() <-chan Entry {
	return s.ch
}

// Close marks the subscription as closed. The plugin closes the channel on
// its next Log or Close call. Idempotent.
func (s *Subscription) Close() {
	s.closed.Store(true)
}

func (s *Subscription) wants(tagName string) bool {
	return len(s.tags) == 0 || slices.Contains(s.tags, tagName)
}
