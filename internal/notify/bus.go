package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/metrics"
)

// Transport is one delivery path. Run blocks until ctx is cancelled and
// reports every received message through emit.
type Transport interface {
	Name() Source
	Run(ctx context.Context, emit func(Delivery)) error
}

// Event is what subscribers receive after deduplication.
type Event struct {
	Delivery
	Silent bool
}

type Handler func(Event)

// Bus fans in every transport, runs deliveries one at a time through the
// deduplicator and hands the survivors to subscribers.
type Bus struct {
	log        *zap.Logger
	dedup      *Deduplicator
	transports []Transport

	mu     sync.RWMutex
	subs   map[int]Handler
	nextID int

	// serializes dedup + dispatch
	dispatchMu sync.Mutex
	inbox      chan Delivery
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewBus(log *zap.Logger, dedup *Deduplicator, transports ...Transport) *Bus {
	return &Bus{
		log:        log,
		dedup:      dedup,
		transports: transports,
		subs:       make(map[int]Handler),
		inbox:      make(chan Delivery, 64),
	}
}

func (b *Bus) Dedup() *Deduplicator {
	return b.dedup
}

// Subscribe registers h and returns the matching unsubscribe func.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Start launches every transport and the dispatch loop.
func (b *Bus) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)

	emit := func(d Delivery) {
		select {
		case b.inbox <- d:
		case <-ctx.Done():
		}
	}

	for _, t := range b.transports {
		t := t
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := t.Run(ctx, emit); err != nil && ctx.Err() == nil {
				b.log.Error("transport stopped", zap.String("transport", string(t.Name())), zap.Error(err))
			}
		}()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-b.inbox:
				b.Deliver(d)
			}
		}
	}()
}

// Deliver runs one delivery through the pipeline synchronously.
func (b *Bus) Deliver(d Delivery) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	metrics.DeliveriesTotal.WithLabelValues(string(d.Source), string(d.Message.Type)).Inc()

	// withdrawals bypass dedup; subscribers decide what to forget
	if d.Withdrawn {
		b.dispatch(Event{Delivery: d, Silent: true})
		return
	}

	verdict, reason := b.dedup.Admit(d)
	if verdict == VerdictDrop {
		metrics.SuppressedTotal.WithLabelValues(reason).Inc()
		b.log.Debug("delivery suppressed",
			zap.String("identity", d.Message.Identity().String()),
			zap.String("source", string(d.Source)),
			zap.String("reason", reason))
		return
	}

	b.dispatch(Event{Delivery: d, Silent: verdict == VerdictSilent})
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Dispose stops the transports and waits for them to return.
func (b *Bus) Dispose() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	b.mu.Lock()
	b.subs = make(map[int]Handler)
	b.mu.Unlock()
}
