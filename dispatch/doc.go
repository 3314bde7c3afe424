// Package dispatch is the tag-gated logging core.
//
// A [Dispatcher] owns a [tag.Registry], a list of [plugin.Plugin] values and
// an [event.Bus]. Each log call is handled as follows:
//
//  1. The tag is normalized. If the dispatcher has the tag explicitly
//     disabled the call returns immediately. Unknown tags are enabled.
//  2. The first non-nil error argument, at any position, is removed from
//     the arguments.
//  3. If arguments remain, the message is rendered by the formatter;
//     otherwise it is used verbatim.
//  4. If the global and per-tag error flags allow it, the extracted error,
//     or else a [callsite.Error] capturing the caller's stack, is attached.
//  5. The timestamp function is called once.
//  6. Every plugin whose own tag state is enabled receives the message in its
//     own goroutine. The call returns after all of them finish. Plugin
//     errors and panics are reported to the diagnostics logger and never
//     returned.
//  7. Subscribers of the tag receive an [event.Event] from a detached
//     goroutine; the call does not wait for them. Use [Dispatcher.Wait] to
//     drain pending emissions, e.g. before exit.
//
// Only failures in steps 1-5, such as a formatter error, are returned to the
// caller.
//
//	d := dispatch.New(dispatch.WithPlugins(console.New(os.Stdout)))
//	d.Set("debug", false)
//
//	_ = d.Info("listening on %s", addr)
//	_ = d.Custom("audit", "user %s logged in", user)
//
// Plugins are invoked in ascending priority order, as sorted when each
// plugin is added.
package dispatch
