package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannelName is the well-known broadcast channel; deployments scope
// it with a prefix.
const DefaultChannelName = "kiosk-notifications"

// Channel is a publish/subscribe channel scoped to one device or deployment.
// The subscription channel is closed when ctx is done.
type Channel interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

// LocalHub hands out in-process channels by name, for stations sharing one
// process on the same device.
type LocalHub struct {
	mu       sync.Mutex
	channels map[string]*localChannel
}

func NewLocalHub() *LocalHub {
	return &LocalHub{channels: make(map[string]*localChannel)}
}

func (h *LocalHub) Channel(name string) Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[name]
	if !ok {
		ch = &localChannel{subs: make(map[chan []byte]struct{})}
		h.channels[name] = ch
	}
	return ch
}

type localChannel struct {
	mu   sync.RWMutex
	subs map[chan []byte]struct{}
}

func (c *localChannel) Publish(_ context.Context, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for sub := range c.subs {
		select {
		case sub <- payload:
		default:
			// slow subscriber; the poll transport will catch up
		}
	}
	return nil
}

func (c *localChannel) Subscribe(ctx context.Context) (<-chan []byte, error) {
	sub := make(chan []byte, 16)
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subs, sub)
		close(sub)
		c.mu.Unlock()
	}()
	return sub, nil
}

// RedisChannel spans every process of one deployment.
type RedisChannel struct {
	client *redis.Client
	name   string
}

func NewRedisChannel(client *redis.Client, name string) *RedisChannel {
	return &RedisChannel{client: client, name: name}
}

func (c *RedisChannel) Publish(ctx context.Context, payload []byte) error {
	return c.client.Publish(ctx, c.name, payload).Err()
}

func (c *RedisChannel) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := c.client.Subscribe(ctx, c.name)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", c.name, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Announce publishes a message; visitor stations call it next to the store
// request so same-origin consoles hear about it without a round trip.
func Announce(ctx context.Context, ch Channel, msg Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	return ch.Publish(ctx, payload)
}

type BroadcastTransport struct {
	channel    Channel
	retryDelay time.Duration
	log        *zap.Logger
}

func NewBroadcastTransport(ch Channel, retryDelay time.Duration, log *zap.Logger) *BroadcastTransport {
	if retryDelay <= 0 {
		retryDelay = DefaultReconnectDelay
	}
	return &BroadcastTransport{channel: ch, retryDelay: retryDelay, log: log}
}

func (t *BroadcastTransport) Name() Source { return SourceBroadcast }

func (t *BroadcastTransport) Run(ctx context.Context, emit func(Delivery)) error {
	for ctx.Err() == nil {
		msgs, err := t.channel.Subscribe(ctx)
		if err != nil {
			t.log.Warn("broadcast subscribe failed", zap.Error(err))
			if !sleepCtx(ctx, t.retryDelay) {
				return nil
			}
			continue
		}
		for payload := range msgs {
			msg, err := ParseMessage(payload)
			if err != nil {
				t.log.Warn("ignoring broadcast message", zap.Error(err))
				continue
			}
			emit(Delivery{Message: msg, Source: SourceBroadcast})
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// OpenChannel picks Redis when url is set, otherwise an in-process channel
// from local. The returned close func releases the Redis client.
func OpenChannel(ctx context.Context, url, name string, local *LocalHub) (Channel, func() error, error) {
	if url == "" {
		return local.Channel(name), func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisChannel(client, name), client.Close, nil
}
