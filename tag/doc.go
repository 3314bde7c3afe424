// Package tag manages named logging tags and their state.
//
// A [Registry] maps case-insensitive tag names to an enabled flag and an
// error-attachment flag. Unknown tags are created lazily by [Registry.Set]
// and [Registry.Toggle]; [Registry.Get] reports them as absent instead of
// failing.
//
// The registry also carries the error policy: a global flag combined with
// each tag's own flag decides whether a call-site error is attached to a
// message logged under that tag.
//
//	r := tag.NewRegistry(tag.Builtins()...)
//	r.Set("debug", false)
//	r.DisableError("info")
//
//	enabled, ok := r.Get("debug") // false, true
//
// Tag sets can be loaded from YAML with [ParseSpecs]. Both the structured
// shape and the legacy boolean shape are accepted:
//
//	debug: false
//	info:
//	  enabled: true
//	  error: false
//	  code: 6
package tag
