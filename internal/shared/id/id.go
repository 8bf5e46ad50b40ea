// Package id provides centralized ID generation for the tracer.
//
// This package offers type-safe ULID generation with:
//   - Lexicographic sortability: span ids sort by creation time
//   - Prefixed types: tr_* for traces, sp_* for spans
//   - Performance: single mutex around the entropy reader
//   - Collision space: 26-char ULID, larger than 62^20
//
// Design Principles:
//   - ULIDs only: one ID format across the engine and its adapters
//   - Debuggable: prefixes make logs and wire payloads readable
//   - Zero conflicts: uniqueness holds for any span cardinality a
//     single process can produce
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TraceID identifies a logical trace (one root invocation and everything
// causally reachable from it).
type TraceID string

// SpanID identifies a single recorded invocation.
type SpanID string

const (
	TracePrefix = "tr"
	SpanPrefix  = "sp"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewTraceID generates a trace identifier
func (g *Generator) NewTraceID() TraceID {
	return TraceID(g.GenerateWithPrefix(TracePrefix))
}

// NewSpanID generates a span identifier
func (g *Generator) NewSpanID() SpanID {
	return SpanID(g.GenerateWithPrefix(SpanPrefix))
}

// NewTraceID generates a trace identifier using the default generator
func NewTraceID() TraceID {
	return Default().NewTraceID()
}

// NewSpanID generates a span identifier using the default generator
func NewSpanID() SpanID {
	return Default().NewSpanID()
}

// IsValid reports whether s is a well-formed ULID, ignoring any type prefix.
func IsValid(s string) bool {
	if i := lastUnderscore(s); i >= 0 {
		s = s[i+1:]
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}

func lastUnderscore(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '_' {
			return i
		}
	}
	return -1
}
