package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fnscope/fnscope/internal/query"
	"github.com/fnscope/fnscope/internal/shared/id"
	"github.com/fnscope/fnscope/internal/store"
	"github.com/fnscope/fnscope/internal/trace"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dial(t *testing.T) (*websocket.Conn, *store.Store, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.New(store.DefaultConfig())
	h := NewHandler(s, query.New(s), zap.NewNop(), nil)

	router := gin.New()
	router.GET("/stream", h.HandleConnection)

	srv := httptest.NewServer(router)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	// Drain the welcome message.
	var welcome map[string]any
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, "system", welcome["type"])

	return conn, s, func() {
		conn.Close()
		srv.Close()
	}
}

func request(t *testing.T, conn *websocket.Conn, msg Message) map[string]any {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp map[string]any
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func addSpan(s *store.Store, traceID, name string, start int64) {
	s.Add(&trace.Span{
		TraceID:   id.TraceID("tr_" + traceID),
		SpanID:    id.SpanID("sp_" + name),
		Name:      name,
		StartTime: start,
		EndTime:   start + 10,
		Duration:  10,
		Status:    trace.StatusOK,
	})
}

func TestPing(t *testing.T) {
	conn, _, done := dial(t)
	defer done()

	resp := request(t, conn, Message{Action: "ping"})
	assert.Equal(t, "pong", resp["type"])
}

func TestGetSpansAndStats(t *testing.T) {
	conn, s, done := dial(t)
	defer done()

	addSpan(s, "1", "alpha", 100)
	addSpan(s, "1", "beta", 200)

	resp := request(t, conn, Message{Action: "get_spans"})
	assert.Equal(t, "spans", resp["type"])
	assert.Equal(t, float64(2), resp["count"])

	resp = request(t, conn, Message{Action: "get_spans", Name: "alpha"})
	assert.Equal(t, float64(1), resp["count"])

	resp = request(t, conn, Message{Action: "get_stats"})
	assert.Equal(t, "stats", resp["type"])
	stats := resp["stats"].(map[string]any)
	assert.Equal(t, float64(2), stats["totalSpans"])
}

func TestGetTraces(t *testing.T) {
	conn, s, done := dial(t)
	defer done()

	addSpan(s, "1", "alpha", 100)
	addSpan(s, "2", "beta", 200)

	resp := request(t, conn, Message{Action: "get_traces"})
	assert.Equal(t, "traces", resp["type"])
	assert.Equal(t, float64(2), resp["count"])
}

func TestClearSpans(t *testing.T) {
	conn, s, done := dial(t)
	defer done()

	addSpan(s, "1", "alpha", 100)

	resp := request(t, conn, Message{Action: "clear_spans"})
	assert.Equal(t, "cleared", resp["type"])
	assert.Equal(t, float64(1), resp["cleared"])
	assert.Equal(t, 0, s.Size())
}

func TestSubscribePush(t *testing.T) {
	conn, s, done := dial(t)
	defer done()

	resp := request(t, conn, Message{Action: "subscribe"})
	require.Equal(t, "subscribed", resp["type"])

	addSpan(s, "1", "pushed", 100)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var push map[string]any
	require.NoError(t, conn.ReadJSON(&push))
	assert.Equal(t, "span", push["type"])

	span := push["span"].(map[string]any)
	assert.Equal(t, "pushed", span["name"])

	resp = request(t, conn, Message{Action: "unsubscribe"})
	assert.Equal(t, "unsubscribed", resp["type"])
}

func TestUnknownAction(t *testing.T) {
	conn, _, done := dial(t)
	defer done()

	resp := request(t, conn, Message{Action: "bogus"})
	assert.Equal(t, "error", resp["type"])
	assert.Contains(t, resp["error"], "bogus")
}
