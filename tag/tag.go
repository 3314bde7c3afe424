package tag

import (
	"errors"
	"maps"
	"slices"
	"strings"
)

// Built-in tag names.
const (
	Debug     = "debug"
	Info      = "info"
	Notice    = "notice"
	Warning   = "warning"
	Error     = "error"
	Critical  = "critical"
	Alert     = "alert"
	Emergency = "emergency"
)

var (
	// ErrInvalidArgument indicates an operation referenced a tag that does
	// not exist where existence is required.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidSpec indicates a malformed tag specification.
	ErrInvalidSpec = errors.New("invalid tag spec")
)

// Tag is a snapshot of a tag's state.
type Tag struct {
	// Code is an optional severity rank; lower is more severe. It is
	// informational only and never used for filtering.
	Code         *int
	Name         string
	Enabled      bool
	ErrorEnabled bool
}

// Spec describes a tag's initial state.
type Spec struct {
	Code    *int   `json:"code,omitempty" yaml:"code,omitempty"`
	Name    string `json:"-" yaml:"-"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Error   bool   `json:"error" yaml:"error"`
}

// Normalize returns the canonical form of a tag name.
func Normalize(name string) string {
	return strings.ToLower(name)
}

// Builtins returns the default tag set in canonical order, all enabled
// with errors enabled. Codes descend from 7 (debug) to 0 (emergency).
func Builtins() []Spec {
	names := BuiltinNames()
	specs := make([]Spec, 0, len(names))

	for i, name := range names {
		code := len(names) - 1 - i
		specs = append(specs, Spec{
			Name:    name,
			Enabled: true,
			Error:   true,
			Code:    &code,
		})
	}

	return specs
}

// BuiltinNames returns the built-in tag names in canonical order.
func BuiltinNames() []string {
	return []string{Debug, Info, Notice, Warning, Error, Critical, Alert, Emergency}
}

// FromLegacy coerces the legacy boolean-per-tag shape into specs with
// errors enabled. Built-in tags keep their canonical order and code; any
// other names follow in lexical order.
func FromLegacy(states map[string]bool) []Spec {
	normalized := make(map[string]bool, len(states))
	for name, enabled := range states {
		normalized[Normalize(name)] = enabled
	}

	specs := make([]Spec, 0, len(normalized))

	for _, b := range Builtins() {
		enabled, ok := normalized[b.Name]
		if !ok {
			continue
		}

		b.Enabled = enabled
		specs = append(specs, b)

		delete(normalized, b.Name)
	}

	for _, name := range slices.Sorted(maps.Keys(normalized)) {
		specs = append(specs, Spec{Name: name, Enabled: normalized[name], Error: true})
	}

	return specs
}
