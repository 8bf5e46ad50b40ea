package trace

import (
	"context"
	"fmt"
	"reflect"
)

// Fn is the callable shape the wrapper intercepts. The context carries the
// scope so nested wrapped calls link to their caller.
type Fn func(ctx context.Context, args ...any) (any, error)

type scopeKey struct{}

// NewContext returns a context carrying the scope.
func NewContext(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext retrieves the scope from a context, if present.
func FromContext(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*Scope)
	return scope, ok
}

// ScopeFromContext returns the context's scope, creating and attaching a
// fresh one when the context has none.
func (t *Tracker) ScopeFromContext(ctx context.Context) (*Scope, context.Context) {
	if scope, ok := FromContext(ctx); ok {
		return scope, ctx
	}
	scope := t.NewScope()
	return scope, NewContext(ctx, scope)
}

// Wrap returns a callable equivalent to fn that records a span per
// invocation. Completion is recorded when fn returns, except when it
// returns a non-nil *Future: then the span stays open until the future
// settles and the future is returned unmodified. A typed-nil *Future is
// treated as a plain return value.
//
// Errors and panics propagate to the caller unchanged; the span records
// them first. Wrapping is idempotent: passing a callable Wrap produced
// returns it as-is, and wrapping the same callable twice yields the same
// wrapper. Identity is tracked in side tables keyed by the callable's
// pointer. Entries are never dropped, so wrap a fixed set of callables per
// tracker rather than minting fresh closures on a hot path.
func (t *Tracker) Wrap(name, location string, fn Fn) Fn {
	key := reflect.ValueOf(fn).Pointer()

	t.wrapMu.Lock()
	if _, ok := t.wrapped[key]; ok {
		t.wrapMu.Unlock()
		return fn
	}
	if w, ok := t.wrappers[key]; ok {
		t.wrapMu.Unlock()
		return w
	}
	t.wrapMu.Unlock()

	wrapper := Fn(func(ctx context.Context, args ...any) (res any, err error) {
		scope, ctx := t.ScopeFromContext(ctx)
		token := scope.Enter(name, location, args)

		defer func() {
			if r := recover(); r != nil {
				scope.Exit(token, nil, fmt.Errorf("panic: %v", r))
				panic(r)
			}
		}()

		res, err = fn(ctx, args...)
		if err != nil {
			scope.Exit(token, nil, err)
			return res, err
		}

		if f, ok := res.(*Future); ok && f != nil {
			f.onSettle(func(value any, ferr error) {
				scope.Exit(token, value, ferr)
			})
			return f, nil
		}

		scope.Exit(token, res, nil)
		return res, nil
	})

	t.wrapMu.Lock()
	if w, ok := t.wrappers[key]; ok {
		t.wrapMu.Unlock()
		return w
	}
	t.wrappers[key] = wrapper
	t.wrapped[reflect.ValueOf(wrapper).Pointer()] = struct{}{}
	t.wrapMu.Unlock()

	return wrapper
}
