package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendclient/internal/metrics"
	"attendclient/internal/queue"
)

func TestHubBroadcastsQueueMessages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(metrics.New(prometheus.NewRegistry()), nil)
	go hub.Run(ctx)
	q := queue.NewInMemory(8)
	go func() { _ = hub.Pump(ctx, q) }()

	r := gin.New()
	r.GET("/ws", hub.Serve)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	msg, err := queue.NewMessage(queue.TypePhase, map[string]string{"from": "session-selected", "to": "loading-attendance"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got queue.Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, queue.TypePhase, got.Type)
	assert.JSONEq(t, `{"from":"session-selected","to":"loading-attendance"}`, string(got.Body))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeedOriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "any origin when unrestricted", origin: "http://evil.example", want: true},
		{name: "listed origin", allowed: []string{"http://localhost:5173/"}, origin: "http://localhost:5173", want: true},
		{name: "unlisted origin", allowed: []string{"http://localhost:5173"}, origin: "http://evil.example", want: false},
		{name: "no origin header", allowed: []string{"http://localhost:5173"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(tt.allowed)(r))
		})
	}
}
