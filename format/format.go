// Package format interpolates arguments into message templates.
//
// [Sprintf] understands a small printf-like verb set and never panics on
// mismatched argument counts: verbs without an argument are kept literally
// and surplus arguments are appended, separated by spaces.
//
//	Verb  Meaning
//	%s    string form of the argument
//	%v    same as %s
//	%d    integer or number
//	%i    integer part of a number
//	%f    floating point number
//	%j    JSON encoding
//	%o    Go-syntax detailed value (%+v)
//	%O    same as %o
//	%c    consumes an argument, prints nothing
//	%%    literal percent sign
package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// ErrFormat indicates an argument could not be rendered.
var ErrFormat = errors.New("format message")

// Func is the formatter signature accepted by the dispatcher.
type Func func(template string, args ...any) (string, error)

// Sprintf renders template with args. See the package documentation for
// the verb set.
func Sprintf(template string, args ...any) (string, error) {
	var sb strings.Builder

	next := 0

	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '%' || i+1 == len(template) {
			sb.WriteByte(c)
			continue
		}

		verb := template[i+1]
		if verb == '%' {
			sb.WriteByte('%')

			i++

			continue
		}

		if !strings.ContainsRune("svdifjoOc", rune(verb)) || next >= len(args) {
			sb.WriteByte(c)
			continue
		}

		s, err := render(verb, args[next])
		if err != nil {
			return "", fmt.Errorf("%w: argument %d: %w", ErrFormat, next, err)
		}

		sb.WriteString(s)

		next++
		i++
	}

	for _, arg := range args[next:] {
		sb.WriteByte(' ')
		sb.WriteString(str(arg))
	}

	return sb.String(), nil
}

func render(verb byte, arg any) (string, error) {
	switch verb {
	case 's', 'v':
		return str(arg), nil
	case 'd':
		return number(arg, false), nil
	case 'i':
		return number(arg, true), nil
	case 'f':
		f, ok := toFloat(arg)
		if !ok {
			return "NaN", nil
		}

		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case 'j':
		b, err := json.Marshal(arg)
		if err != nil {
			return "", err
		}

		return string(b), nil
	case 'o', 'O':
		return fmt.Sprintf("%+v", arg), nil
	}

	// %c
	return "", nil
}

func str(arg any) string {
	switch v := arg.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}

	return fmt.Sprint(arg)
}

func number(arg any, truncate bool) string {
	rv := reflect.ValueOf(arg)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	}

	f, ok := toFloat(arg)
	if !ok {
		return "NaN"
	}

	if truncate {
		f = math.Trunc(f)
	}

	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toFloat(arg any) (float64, bool) {
	rv := reflect.ValueOf(arg)

	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		return f, err == nil
	}

	return 0, false
}
