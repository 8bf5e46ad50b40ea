package trace

import (
	"github.com/fnscope/fnscope/internal/shared/id"
)

// Status marks how an invocation completed.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Span is a single completed function invocation. Spans are immutable once
// finalized; every field an adapter may rely on is exported here.
//
// Timestamps are Unix milliseconds. Duration is EndTime-StartTime and is
// never negative.
type Span struct {
	TraceID      id.TraceID `json:"traceId"`
	SpanID       id.SpanID  `json:"spanId"`
	ParentSpanID id.SpanID  `json:"parentSpanId,omitempty"`
	Name         string     `json:"name"`
	Location     string     `json:"location,omitempty"`
	StartTime    int64      `json:"startTime"`
	EndTime      int64      `json:"endTime"`
	Duration     int64      `json:"duration"`
	Status       Status     `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	Args         []string   `json:"args,omitempty"`
	ReturnValue  string     `json:"returnValue,omitempty"`
	CallerName   string     `json:"callerName,omitempty"`
}

// IsError reports whether the invocation completed with an error.
func (s *Span) IsError() bool {
	return s.Status == StatusError
}

// Sink receives finalized spans. The span store implements this; exporters
// can be layered behind it.
type Sink interface {
	Add(span *Span)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(span *Span)

func (f SinkFunc) Add(span *Span) { f(span) }
