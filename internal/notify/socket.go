package notify

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/metrics"
)

// DefaultReconnectDelay is fixed, not exponential: events last hours and an
// operator refreshes a console that stays unreachable.
const DefaultReconnectDelay = 3 * time.Second

// SocketTransport keeps one push connection per (station, event) open and
// reconnects after a fixed delay on any close or error, forever. Drops are
// logged only; the poll transport is the fallback of record.
type SocketTransport struct {
	url            string
	header         http.Header
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	log            *zap.Logger
}

func NewSocketTransport(url string, header http.Header, reconnectDelay time.Duration, log *zap.Logger) *SocketTransport {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &SocketTransport{
		url:            url,
		header:         header,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: reconnectDelay,
		log:            log,
	}
}

func (t *SocketTransport) Name() Source { return SourceSocket }

func (t *SocketTransport) Run(ctx context.Context, emit func(Delivery)) error {
	first := true
	for ctx.Err() == nil {
		if !first {
			metrics.SocketReconnectsTotal.Inc()
		}
		first = false

		conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
		if err != nil {
			t.log.Debug("push connect failed", zap.String("url", t.url), zap.Error(err))
		} else {
			t.log.Info("push connected", zap.String("url", t.url))
			err = t.read(ctx, conn, emit)
			if ctx.Err() == nil {
				t.log.Info("push connection dropped", zap.Error(err))
			}
		}
		if !sleepCtx(ctx, t.reconnectDelay) {
			return nil
		}
	}
	return nil
}

func (t *SocketTransport) read(ctx context.Context, conn *websocket.Conn, emit func(Delivery)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		// the hub coalesces queued messages into one frame, newline separated
		for _, raw := range bytes.Split(frame, []byte{'\n'}) {
			if len(bytes.TrimSpace(raw)) == 0 {
				continue
			}
			msg, err := ParseMessage(raw)
			if err != nil {
				t.log.Warn("ignoring push message", zap.Error(err))
				continue
			}
			emit(Delivery{Message: msg, Source: SourceSocket})
		}
	}
}
