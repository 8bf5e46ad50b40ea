package export

import (
	"github.com/fnscope/fnscope/internal/trace"
	"go.uber.org/zap"
)

// Console logs each finalized span through the structured logger.
type Console struct {
	logger *zap.Logger
}

// NewConsole creates a console exporter.
func NewConsole(logger *zap.Logger) *Console {
	return &Console{logger: logger}
}

// Export logs one span.
func (c *Console) Export(span *trace.Span) {
	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("name", span.Name),
		zap.Int64("duration_ms", span.Duration),
	}

	if span.ParentSpanID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentSpanID)))
	}
	if span.CallerName != "" {
		fields = append(fields, zap.String("caller", span.CallerName))
	}

	if span.IsError() {
		fields = append(fields, zap.String("error", span.ErrorMessage))
		c.logger.Warn("span completed with error", fields...)
		return
	}
	c.logger.Debug("span completed", fields...)
}
