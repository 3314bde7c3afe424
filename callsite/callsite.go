// Package callsite captures the stack of a logging call as an error value.
//
// The dispatcher attaches an [*Error] to messages whose tag has error
// attachment enabled, so plugins can print where the message was logged.
package callsite

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

const maxDepth = 32

// Error records the call stack at the point a message was logged.
type Error struct {
	tag    string
	frames []runtime.Frame
}

// Capture records the current stack for a message logged under tag. skip
// is the number of frames to omit above the caller of Capture.
func Capture(tag string, skip int) *Error {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pcs)

	out := make([]runtime.Frame, 0, n)
	if n == 0 {
		return &Error{tag: tag, frames: out}
	}

	frames := runtime.CallersFrames(pcs[:n])

	for {
		f, more := frames.Next()
		out = append(out, f)

		if !more {
			break
		}
	}

	return &Error{tag: tag, frames: out}
}

// Error implements error. It names the tag and the innermost frame.
func (e *Error) Error() string {
	if len(e.frames) == 0 {
		return fmt.Sprintf("%s logged", e.tag)
	}

	f := e.frames[0]

	return fmt.Sprintf("%s logged at %s (%s:%d)", e.tag, f.Function, f.File, f.Line)
}

// Tag returns the tag the message was logged under.
func (e *Error) Tag() string {
	return e.tag
}

// Frames returns the captured frames, innermost first.
func (e *Error) Frames() []runtime.Frame {
	out := make([]runtime.Frame, len(e.frames))
	copy(out, e.frames)

	return out
}

// Stack renders the captured frames one per line as "function (file:line)".
func (e *Error) Stack() string {
	var sb strings.Builder

	for i, f := range e.frames {
		if i > 0 {
			sb.WriteByte('\n')
		}

		fmt.Fprintf(&sb, "%s (%s:%d)", f.Function, f.File, f.Line)
	}

	return sb.String()
}

// Stack returns the rendered stack of err if it wraps an [*Error], and
// err's message otherwise. It returns "" for a nil error.
func Stack(err error) string {
	if err == nil {
		return ""
	}

	var cs *Error
	if errors.As(err, &cs) {
		return cs.Stack()
	}

	return err.Error()
}
