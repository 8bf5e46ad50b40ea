package format

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

type selfRef struct {
	Name string
	Self *selfRef
}

func TestValuePrimitives(t *testing.T) {
	assert.Equal(t, "null", Value(nil))
	assert.Equal(t, "hello", Value("hello"))
	assert.Equal(t, "42", Value(42))
	assert.Equal(t, "true", Value(true))
	assert.Equal(t, "3.5", Value(3.5))
}

func TestValueStructured(t *testing.T) {
	out := Value(map[string]int{"a": 1})
	assert.Equal(t, `{"a":1}`, out)

	out = Value([]int{1, 2, 3})
	assert.Equal(t, "[1,2,3]", out)
}

func TestValueUnserializable(t *testing.T) {
	out := Value(make(chan int))
	assert.True(t, strings.HasPrefix(out, "[unserializable"), "got %q", out)

	out = Value(func() {})
	assert.True(t, strings.HasPrefix(out, "[unserializable"), "got %q", out)
}

func TestValueSelfReferentialNeverPanics(t *testing.T) {
	v := &selfRef{Name: "loop"}
	v.Self = v

	var out string
	assert.NotPanics(t, func() {
		out = Value(v)
	})
	assert.LessOrEqual(t, len(out), MaxLen+len("..."))
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", MaxLen+50)
	out := Truncate(long)

	assert.Equal(t, MaxLen+len("..."), len(out))
	assert.True(t, strings.HasSuffix(out, "..."))

	exact := strings.Repeat("x", MaxLen)
	assert.Equal(t, exact, Truncate(exact))
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	// 3-byte runes; MaxLen is not a multiple of 3, so a naive byte cut
	// would land mid-rune.
	long := strings.Repeat("€", MaxLen)
	out := Truncate(long)

	assert.True(t, utf8.ValidString(out), "truncated value must stay valid UTF-8")
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.LessOrEqual(t, len(out), MaxLen+len("..."))
}

func TestArgsCap(t *testing.T) {
	args := make([]any, 15)
	for i := range args {
		args[i] = i
	}

	out := Args(args)
	assert.Len(t, out, MaxArgs)
	assert.Equal(t, "0", out[0])
	assert.Equal(t, "9", out[MaxArgs-1])
}

func TestArgsEmpty(t *testing.T) {
	assert.Empty(t, Args(nil))
}

func TestError(t *testing.T) {
	assert.Equal(t, "", Error(nil))
	assert.Equal(t, "boom", Error(errors.New("boom")))

	long := errors.New(strings.Repeat("e", MaxLen*2))
	assert.Equal(t, MaxLen+len("..."), len(Error(long)))
}
