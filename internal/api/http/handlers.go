// Package http exposes the tracer's query surface over HTTP. Handlers
// return plain data from the store and reconstructor; all transport
// concerns (CORS, limits, metrics) live in middleware.
package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/fnscope/fnscope/internal/query"
	"github.com/fnscope/fnscope/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the health endpoint.
const Version = "0.3.1"

// Handlers contains all HTTP handlers for the query surface.
type Handlers struct {
	store  *store.Store
	recon  *query.Reconstructor
	logger *zap.Logger
}

// NewHandlers creates a handler set over the span store.
func NewHandlers(s *store.Store, recon *query.Reconstructor, logger *zap.Logger) *Handlers {
	return &Handlers{
		store:  s,
		recon:  recon,
		logger: logger,
	}
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "fnscope",
		"version": Version,
		"spans":   h.store.Size(),
	})
}

// ListSpans returns stored spans, optionally filtered by name, trace id, or
// a start/end window (Unix milliseconds).
func (h *Handlers) ListSpans(c *gin.Context) {
	if name := c.Query("name"); name != "" {
		spans := h.store.ByName(name)
		c.JSON(http.StatusOK, gin.H{"spans": spans, "count": len(spans)})
		return
	}
	if traceID := c.Query("trace_id"); traceID != "" {
		spans := h.store.ByTraceID(traceID)
		c.JSON(http.StatusOK, gin.H{"spans": spans, "count": len(spans)})
		return
	}

	start, end, ok := timeWindow(c)
	if !ok {
		return
	}
	if start > 0 || end > 0 {
		if end == 0 {
			end = math.MaxInt64
		}
		spans := h.store.ByTimeRange(start, end)
		c.JSON(http.StatusOK, gin.H{"spans": spans, "count": len(spans)})
		return
	}

	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	spans := h.store.All(limit)
	c.JSON(http.StatusOK, gin.H{"spans": spans, "count": len(spans)})
}

// SpanStats returns store-wide statistics.
func (h *Handlers) SpanStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Statistics())
}

// ClearSpans empties the store.
func (h *Handlers) ClearSpans(c *gin.Context) {
	cleared := h.store.Size()
	h.store.Clear()
	h.logger.Info("span store cleared", zap.Int("cleared", cleared))
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

// ListTraces returns trace aggregates, newest first.
func (h *Handlers) ListTraces(c *gin.Context) {
	start, end, ok := timeWindow(c)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	namedOnly := c.Query("named_only") == "true"

	traces := h.recon.Traces(start, end, limit, namedOnly)
	c.JSON(http.StatusOK, gin.H{"traces": traces, "count": len(traces)})
}

// CallTree returns the reconstructed call tree of one trace. Unknown trace
// ids produce 404, not an empty tree.
func (h *Handlers) CallTree(c *gin.Context) {
	traceID := c.Param("id")

	roots, ok := h.recon.CallTree(traceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "trace not found", "trace_id": traceID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"traceId": traceID, "roots": roots})
}

// RenderTrace returns an indented text rendering of one trace.
func (h *Handlers) RenderTrace(c *gin.Context) {
	traceID := c.Param("id")

	out := h.recon.Render(traceID)
	if out == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "trace not found", "trace_id": traceID})
		return
	}
	c.String(http.StatusOK, out)
}

// timeWindow parses optional start/end query parameters. On a malformed
// value it writes a 400 response and returns ok=false.
func timeWindow(c *gin.Context) (start, end int64, ok bool) {
	var err error
	if raw := c.Query("start"); raw != "" {
		if start, err = strconv.ParseInt(raw, 10, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start timestamp"})
			return 0, 0, false
		}
	}
	if raw := c.Query("end"); raw != "" {
		if end, err = strconv.ParseInt(raw, 10, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end timestamp"})
			return 0, 0, false
		}
	}
	return start, end, true
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return v, true
}
