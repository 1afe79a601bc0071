// Package realtime is the push side of the album store: one websocket room
// per event, fed from the deployment's notification channel so every API
// instance reaches its own clients.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/metrics"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
)

// ChannelFunc returns the pub/sub channel that carries one event's messages.
type ChannelFunc func(eventID uint) notify.Channel

// EventChannel scopes the deployment channel name to one event.
func EventChannel(prefix string, eventID uint) string {
	return fmt.Sprintf("%s:%d", prefix, eventID)
}

type roomMessage struct {
	eventID uint
	payload []byte
}

type room struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
}

type Hub struct {
	channels ChannelFunc
	log      *zap.Logger
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	deliver    chan roomMessage
	done       chan struct{}

	// owned by Run
	rooms   map[uint]*room
	clients atomic.Int64
}

// Clients reports how many stations are connected across all rooms.
func (h *Hub) Clients() int {
	return int(h.clients.Load())
}

func NewHub(channels ChannelFunc, log *zap.Logger) *Hub {
	return &Hub{
		channels: channels,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// stations are served from other origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan roomMessage, 256),
		done:       make(chan struct{}),
		rooms:      make(map[uint]*room),
	}
}

// Run owns the rooms until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, r := range h.rooms {
				r.cancel()
				for c := range r.clients {
					close(c.send)
				}
				delete(h.rooms, id)
			}
			h.clients.Store(0)
			metrics.HubClients.Set(0)
			return

		case c := <-h.register:
			r, ok := h.rooms[c.eventID]
			if !ok {
				var err error
				r, err = h.openRoom(ctx, c.eventID)
				if err != nil {
					h.log.Warn("open room failed", zap.Uint("event_id", c.eventID), zap.Error(err))
					close(c.send)
					continue
				}
				h.rooms[c.eventID] = r
			}
			r.clients[c] = true
			h.clients.Add(1)
			metrics.HubClients.Inc()
			h.log.Debug("client joined", zap.String("client", c.id), zap.Uint("event_id", c.eventID))

		case c := <-h.unregister:
			h.drop(c)

		case m := <-h.deliver:
			r, ok := h.rooms[m.eventID]
			if !ok {
				continue
			}
			for c := range r.clients {
				select {
				case c.send <- m.payload:
				default:
					// slow client; it reconnects and the poll catches up
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	r, ok := h.rooms[c.eventID]
	if !ok || !r.clients[c] {
		return
	}
	delete(r.clients, c)
	close(c.send)
	h.clients.Add(-1)
	metrics.HubClients.Dec()
	if len(r.clients) == 0 {
		r.cancel()
		delete(h.rooms, c.eventID)
	}
}

func (h *Hub) openRoom(ctx context.Context, eventID uint) (*room, error) {
	roomCtx, cancel := context.WithCancel(ctx)
	sub, err := h.channels(eventID).Subscribe(roomCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	go func() {
		for payload := range sub {
			select {
			case h.deliver <- roomMessage{eventID: eventID, payload: payload}:
			case <-roomCtx.Done():
				return
			}
		}
	}()
	return &room{clients: make(map[*Client]bool), cancel: cancel}, nil
}

// Publish sends a message to every client of the event on every instance.
func (h *Hub) Publish(ctx context.Context, eventID uint, msg notify.Message) error {
	return notify.Announce(ctx, h.channels(eventID), msg)
}

// ServeWS upgrades GET /ws/events/{id}.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, 32),
		eventID: uint(eventID),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
