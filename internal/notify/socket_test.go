package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSocketTransportReconnects(t *testing.T) {
	var connects int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := atomic.AddInt32(&connects, 1)
		// first connection sends a batched frame then drops
		if n == 1 {
			frame := `{"type":"payment_request","data":{"code":"AB12CD34"}}` + "\n" +
				`garbage` + "\n" +
				`{"type":"bigscreen_request","data":{"code":"AB12CD34"}}`
			_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	transport := NewSocketTransport(url, nil, 20*time.Millisecond, zap.NewNop())

	var mu sync.Mutex
	var got []Delivery
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = transport.Run(ctx, func(d Delivery) {
			mu.Lock()
			got = append(got, d)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&connects) >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, TypePaymentRequest, got[0].Message.Type)
	assert.Equal(t, TypeBigScreenRequest, got[1].Message.Type)
	assert.Equal(t, SourceSocket, got[0].Source)
}

func TestLocalChannelFanOut(t *testing.T) {
	hub := NewLocalHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := hub.Channel("x").Subscribe(ctx)
	require.NoError(t, err)
	b, err := hub.Channel("x").Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, hub.Channel("x").Publish(ctx, []byte("hi")))
	assert.Equal(t, []byte("hi"), <-a)
	assert.Equal(t, []byte("hi"), <-b)
}
