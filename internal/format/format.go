// Package format converts arbitrary runtime values into bounded display
// strings for span attributes.
//
// Every function in this package is total: no input (cyclic structures,
// channels, funcs, types that panic in their marshalers) may cause a panic
// or an error to escape. Values that cannot be serialized degrade to an
// "[unserializable <type>]" placeholder.
//
// Conventions:
//   - nil formats as "null"
//   - an absent argument slot formats as "" (empty string)
//   - strings over MaxLen are truncated and suffixed with "..."; the stored
//     content is capped at MaxLen before the ellipsis
//   - at most MaxArgs positional arguments are captured
package format

import (
	"fmt"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

const (
	// MaxLen caps the stored length of a single formatted value.
	MaxLen = 500

	// MaxArgs caps how many positional arguments are captured per span.
	MaxArgs = 10

	ellipsis = "..."
)

// Value formats a single runtime value. It never panics.
func Value(v any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = placeholder(v)
		}
	}()

	if v == nil {
		return "null"
	}

	switch t := v.(type) {
	case string:
		return Truncate(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case error:
		return Truncate(t.Error())
	case fmt.Stringer:
		return Truncate(t.String())
	}

	b, err := sonic.Marshal(v)
	if err != nil {
		return placeholder(v)
	}
	return Truncate(string(b))
}

// Args formats the first MaxArgs arguments. The result always has one entry
// per captured argument, in call order.
func Args(args []any) []string {
	if len(args) > MaxArgs {
		args = args[:MaxArgs]
	}
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = Value(a)
	}
	return out
}

// Error formats an error message under the same length cap. A nil error
// formats as the empty string.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Truncate(err.Error())
}

// Truncate caps s at MaxLen bytes of content, appending an ellipsis marker
// when anything was dropped. The cut backs up to a rune boundary so the
// result is always valid UTF-8.
func Truncate(s string) string {
	if len(s) <= MaxLen {
		return s
	}
	cut := MaxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}

func placeholder(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "null"
	}
	return "[unserializable " + t.String() + "]"
}
