// Package trace implements the span-tracking engine: per-context call
// chains that assign parent/child and trace identity to wrapped function
// invocations, and the wrapping primitives adapters build on.
//
// A Scope models one logical execution context (one goroutine, one request).
// Chains never cross scopes, so concurrent call trees cannot misattribute
// parents. Scopes travel through context.Context the same way trace ids do
// in conventional middleware stacks.
//
// Nothing in this package lets bookkeeping failures escape into application
// code: Enter never fails, Exit with an unknown token is a no-op, and
// formatting faults degrade to placeholder strings.
package trace

import (
	"sync"
	"time"

	"github.com/fnscope/fnscope/internal/format"
	"github.com/fnscope/fnscope/internal/shared/id"
	"go.uber.org/zap"
)

// Token identifies an open invocation between Enter and Exit.
type Token id.SpanID

// entry is an open, not-yet-finalized invocation. Owned by its Scope until
// Exit converts it into a Span.
type entry struct {
	spanID   id.SpanID
	parentID id.SpanID
	name     string
	location string
	start    int64
	args     []any
}

// Tracker is the process-wide engine handle: it owns the span sink, the id
// generator, and the wrap side-table. Execution-context state lives in
// Scopes, never here.
type Tracker struct {
	sink   Sink
	gen    *id.Generator
	logger *zap.Logger

	wrapMu   sync.Mutex
	wrappers map[uintptr]Fn
	wrapped  map[uintptr]struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithGenerator overrides the id generator (deterministic entropy in tests).
func WithGenerator(gen *id.Generator) Option {
	return func(t *Tracker) { t.gen = gen }
}

// WithLogger sets the logger used for internal fault reporting.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker creates a tracker that hands finalized spans to sink.
func NewTracker(sink Sink, opts ...Option) *Tracker {
	t := &Tracker{
		sink:     sink,
		gen:      id.Default(),
		logger:   zap.NewNop(),
		wrappers: make(map[uintptr]Fn),
		wrapped:  make(map[uintptr]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Scope holds the call chain of one execution context: the ordered open
// invocations plus the trace id minted for the current root call.
type Scope struct {
	tracker *Tracker

	mu      sync.Mutex
	traceID id.TraceID
	chain   []*entry
}

// NewScope creates an empty call chain. Each goroutine that originates
// wrapped calls gets its own scope.
func (t *Tracker) NewScope() *Scope {
	return &Scope{tracker: t}
}

// Enter opens an invocation: mints a trace id if this scope has none, links
// the parent to the current top of the chain, and pushes a new open entry.
// The returned token closes the invocation in Exit. Enter never fails.
func (s *Scope) Enter(name, location string, args []any) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.traceID == "" {
		s.traceID = s.tracker.gen.NewTraceID()
	}

	var parent id.SpanID
	if n := len(s.chain); n > 0 {
		parent = s.chain[n-1].spanID
	}

	e := &entry{
		spanID:   s.tracker.gen.NewSpanID(),
		parentID: parent,
		name:     name,
		location: location,
		start:    time.Now().UnixMilli(),
		args:     args,
	}
	s.chain = append(s.chain, e)

	return Token(e.spanID)
}

// Exit closes the invocation identified by token and hands the finalized
// span to the sink. An unknown token is a silent no-op, which tolerates
// mismatched enter/exit pairs from injected instrumentation.
//
// The entry need not be the top of the chain: async interleaving can close
// an inner call after an unrelated sibling opened, so removal is by id.
// When the chain empties the trace id is cleared and the next root call
// starts a fresh trace.
func (s *Scope) Exit(token Token, ret any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.tracker.logger.Error("exit bookkeeping failed", zap.Any("panic", r))
		}
	}()

	s.mu.Lock()

	idx := -1
	for i, e := range s.chain {
		if e.spanID == id.SpanID(token) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}

	e := s.chain[idx]
	s.chain = append(s.chain[:idx], s.chain[idx+1:]...)

	// Resolve the caller display name from entries still open; the parent
	// span itself may already be gone from the store by query time.
	var callerName string
	if e.parentID != "" {
		for _, open := range s.chain {
			if open.spanID == e.parentID {
				callerName = open.name
				break
			}
		}
	}

	traceID := s.traceID
	if len(s.chain) == 0 {
		s.traceID = ""
	}
	s.mu.Unlock()

	end := time.Now().UnixMilli()
	if end < e.start {
		end = e.start
	}

	span := &Span{
		TraceID:      traceID,
		SpanID:       e.spanID,
		ParentSpanID: e.parentID,
		Name:         e.name,
		Location:     e.location,
		StartTime:    e.start,
		EndTime:      end,
		Duration:     end - e.start,
		Args:         format.Args(e.args),
		CallerName:   callerName,
	}

	if err != nil {
		span.Status = StatusError
		span.ErrorMessage = format.Error(err)
	} else {
		span.Status = StatusOK
		if ret != nil {
			span.ReturnValue = format.Value(ret)
		}
	}

	s.tracker.sink.Add(span)
}

// Depth returns the number of currently open invocations.
func (s *Scope) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chain)
}

// TraceID returns the active trace id, or "" when the chain is empty.
func (s *Scope) TraceID() id.TraceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traceID
}
