// Package ws exposes the tracer's query surface over a WebSocket channel.
// Requests are keyed by an "action" field; subscribers additionally receive
// every newly recorded span as a push message.
package ws

import (
	"net/http"
	"sync"

	"github.com/fnscope/fnscope/internal/infrastructure/monitoring"
	"github.com/fnscope/fnscope/internal/query"
	"github.com/fnscope/fnscope/internal/store"
	"github.com/fnscope/fnscope/internal/trace"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // query surface is a local debugging endpoint
	},
}

// Message is a client request.
type Message struct {
	Action  string `json:"action"`
	TraceID string `json:"trace_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Start   int64  `json:"start,omitempty"`
	End     int64  `json:"end,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Handler manages WebSocket connections.
type Handler struct {
	store   *store.Store
	recon   *query.Reconstructor
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a WebSocket handler over the span store. metrics may
// be nil.
func NewHandler(s *store.Store, recon *query.Reconstructor, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		store:   s,
		recon:   recon,
		logger:  logger,
		metrics: metrics,
	}
}

// conn wraps a websocket connection with a write lock: subscription pushes
// and request responses come from different goroutines.
type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// HandleConnection upgrades the request and serves the message loop.
func (h *Handler) HandleConnection(g *gin.Context) {
	ws, err := upgrader.Upgrade(g.Writer, g.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	c := &conn{id: uuid.NewString(), ws: ws}
	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	h.logger.Debug("websocket connected", zap.String("conn_id", c.id))
	c.send(gin.H{"type": "system", "message": "connected", "conn_id": c.id})

	var unsubscribe func()
	defer func() {
		if unsubscribe != nil {
			unsubscribe()
		}
	}()

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			h.logger.Debug("websocket closed", zap.String("conn_id", c.id), zap.Error(err))
			return
		}
		if h.metrics != nil {
			h.metrics.WSMessages.WithLabelValues(msg.Action).Inc()
		}

		switch msg.Action {
		case "get_spans":
			h.handleGetSpans(c, msg)
		case "get_traces":
			traces := h.recon.Traces(msg.Start, msg.End, msg.Limit, false)
			c.send(gin.H{"type": "traces", "traces": traces, "count": len(traces)})
		case "get_stats":
			c.send(gin.H{"type": "stats", "stats": h.store.Statistics()})
		case "clear_spans":
			cleared := h.store.Size()
			h.store.Clear()
			c.send(gin.H{"type": "cleared", "cleared": cleared})
		case "subscribe":
			if unsubscribe == nil {
				unsubscribe = h.subscribe(c)
			}
			c.send(gin.H{"type": "subscribed"})
		case "unsubscribe":
			if unsubscribe != nil {
				unsubscribe()
				unsubscribe = nil
			}
			c.send(gin.H{"type": "unsubscribed"})
		case "ping":
			c.send(gin.H{"type": "pong"})
		default:
			c.send(gin.H{"type": "error", "error": "unknown action: " + msg.Action})
		}
	}
}

func (h *Handler) handleGetSpans(c *conn, msg Message) {
	var spans []*trace.Span
	switch {
	case msg.TraceID != "":
		spans = h.store.ByTraceID(msg.TraceID)
	case msg.Name != "":
		spans = h.store.ByName(msg.Name)
	default:
		spans = h.store.All(msg.Limit)
	}
	c.send(gin.H{"type": "spans", "spans": spans, "count": len(spans)})
}

// subscribe forwards every new span to the connection until cancelled.
// Write errors only end the subscription on the read side, when the client
// disconnects.
func (h *Handler) subscribe(c *conn) func() {
	return h.store.Subscribe(func(span *trace.Span) {
		if err := c.send(gin.H{"type": "span", "span": span}); err != nil {
			h.logger.Debug("subscription push failed",
				zap.String("conn_id", c.id),
				zap.Error(err),
			)
		}
	})
}
