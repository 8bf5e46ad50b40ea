package trace

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink collects finalized spans for inspection.
type captureSink struct {
	mu    sync.Mutex
	spans []*Span
}

func (c *captureSink) Add(span *Span) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, span)
}

func (c *captureSink) all() []*Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Span, len(c.spans))
	copy(out, c.spans)
	return out
}

func (c *captureSink) byName(name string) *Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.spans {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func TestSinkFuncAdapter(t *testing.T) {
	var got []*Span
	sink := SinkFunc(func(s *Span) { got = append(got, s) })
	scope := NewTracker(sink).NewScope()

	token := scope.Enter("f", "", nil)
	scope.Exit(token, nil, nil)

	require.Len(t, got, 1)
	assert.Equal(t, "f", got[0].Name)
}

func TestEnterExitRecordsSpan(t *testing.T) {
	sink := &captureSink{}
	scope := NewTracker(sink).NewScope()

	token := scope.Enter("fetchUser", "users.go:42", []any{"u123"})
	scope.Exit(token, "alice", nil)

	spans := sink.all()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "fetchUser", span.Name)
	assert.Equal(t, "users.go:42", span.Location)
	assert.Equal(t, StatusOK, span.Status)
	assert.Equal(t, []string{"u123"}, span.Args)
	assert.Equal(t, "alice", span.ReturnValue)
	assert.Empty(t, span.ParentSpanID)
	assert.NotEmpty(t, span.TraceID)
	assert.GreaterOrEqual(t, span.EndTime, span.StartTime)
	assert.Equal(t, span.EndTime-span.StartTime, span.Duration)
}

func TestNestedCallsShareTraceAndLinkParent(t *testing.T) {
	sink := &captureSink{}
	scope := NewTracker(sink).NewScope()

	outer := scope.Enter("outer", "", nil)
	inner := scope.Enter("inner", "", nil)
	scope.Exit(inner, nil, nil)
	scope.Exit(outer, nil, nil)

	innerSpan := sink.byName("inner")
	outerSpan := sink.byName("outer")
	require.NotNil(t, innerSpan)
	require.NotNil(t, outerSpan)

	assert.Equal(t, outerSpan.SpanID, innerSpan.ParentSpanID)
	assert.Equal(t, outerSpan.TraceID, innerSpan.TraceID)
	assert.Equal(t, "outer", innerSpan.CallerName)
	assert.Empty(t, outerSpan.CallerName)
}

func TestSequentialRootsGetDistinctTraces(t *testing.T) {
	sink := &captureSink{}
	scope := NewTracker(sink).NewScope()

	first := scope.Enter("root", "", nil)
	scope.Exit(first, nil, nil)

	second := scope.Enter("root", "", nil)
	scope.Exit(second, nil, nil)

	spans := sink.all()
	require.Len(t, spans, 2)
	assert.NotEqual(t, spans[0].TraceID, spans[1].TraceID)
}

func TestUnknownTokenIsNoOp(t *testing.T) {
	sink := &captureSink{}
	scope := NewTracker(sink).NewScope()

	assert.NotPanics(t, func() {
		scope.Exit(Token("sp_bogus"), nil, nil)
	})
	assert.Empty(t, sink.all())

	// Double exit: second close of the same token is also a no-op.
	token := scope.Enter("f", "", nil)
	scope.Exit(token, nil, nil)
	scope.Exit(token, nil, nil)
	assert.Len(t, sink.all(), 1)
}

func TestOutOfOrderExit(t *testing.T) {
	sink := &captureSink{}
	scope := NewTracker(sink).NewScope()

	outer := scope.Enter("outer", "", nil)
	inner := scope.Enter("inner", "", nil)

	// Async interleaving can close the outer entry first.
	scope.Exit(outer, nil, nil)
	assert.Equal(t, 1, scope.Depth())

	scope.Exit(inner, nil, nil)
	assert.Equal(t, 0, scope.Depth())

	spans := sink.all()
	require.Len(t, spans, 2)

	// Both stay in the trace that was active while they were open.
	assert.Equal(t, spans[0].TraceID, spans[1].TraceID)
	assert.Equal(t, "", string(scope.TraceID()))
}

func TestErrorCompletion(t *testing.T) {
	sink := &captureSink{}
	scope := NewTracker(sink).NewScope()

	token := scope.Enter("failing", "", nil)
	scope.Exit(token, nil, errors.New("connection refused"))

	spans := sink.all()
	require.Len(t, spans, 1)
	assert.Equal(t, StatusError, spans[0].Status)
	assert.Equal(t, "connection refused", spans[0].ErrorMessage)
	assert.Empty(t, spans[0].ReturnValue)
}

func TestNilReturnOmitsReturnValue(t *testing.T) {
	sink := &captureSink{}
	scope := NewTracker(sink).NewScope()

	token := scope.Enter("void", "", nil)
	scope.Exit(token, nil, nil)

	spans := sink.all()
	require.Len(t, spans, 1)
	assert.Empty(t, spans[0].ReturnValue)
	assert.Equal(t, StatusOK, spans[0].Status)
}

func TestScopesAreIndependent(t *testing.T) {
	sink := &captureSink{}
	tracker := NewTracker(sink)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scope := tracker.NewScope()
			outer := scope.Enter("outer", "", nil)
			inner := scope.Enter("inner", "", nil)
			scope.Exit(inner, nil, nil)
			scope.Exit(outer, nil, nil)
		}()
	}
	wg.Wait()

	spans := sink.all()
	require.Len(t, spans, 16)

	// Every inner span's parent must be the outer span of its own trace.
	outers := make(map[string]string) // traceID -> outer spanID
	for _, s := range spans {
		if s.Name == "outer" {
			outers[string(s.TraceID)] = string(s.SpanID)
		}
	}
	assert.Len(t, outers, 8)
	for _, s := range spans {
		if s.Name == "inner" {
			assert.Equal(t, outers[string(s.TraceID)], string(s.ParentSpanID))
		}
	}
}
