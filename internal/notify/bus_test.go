package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/pkg/kv"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) alerts() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if !ev.Silent {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestBusOneAlertAcrossTransports(t *testing.T) {
	sources := []Source{SourceSocket, SourceBroadcast, SourcePoll}

	// every combination of transports, each delivering the event up to 3 times
	for mask := 1; mask < 1<<len(sources); mask++ {
		d, clk := newTestDedup(t, kv.NewMemoryStore())
		bus := NewBus(zap.NewNop(), d)
		rec := &recorder{}
		bus.Subscribe(rec.handle)

		for round := 0; round < 3; round++ {
			for i, src := range sources {
				if mask&(1<<i) == 0 {
					continue
				}
				bus.Deliver(delivery(TypeBigScreenRequest, "AB12", src))
				bus.Deliver(delivery(TypePaymentRequest, "AB12", src))
				clk.Advance(2 * time.Second)
			}
		}

		assert.Len(t, rec.alerts(), 2, "mask %b", mask)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	d, _ := newTestDedup(t, kv.NewMemoryStore())
	bus := NewBus(zap.NewNop(), d)
	rec := &recorder{}
	unsubscribe := bus.Subscribe(rec.handle)

	bus.Deliver(delivery(TypeBigScreenRequest, "AB12", SourceSocket))
	unsubscribe()
	bus.Deliver(delivery(TypeBigScreenRequest, "CD34", SourceSocket))

	assert.Equal(t, 1, rec.len())
}

type staticLister struct {
	mu        sync.Mutex
	payments  []models.VisitorRequest
	bigscreen []models.VisitorRequest
	err       error
}

func (s *staticLister) GetPaymentRequests(context.Context, uint) ([]models.VisitorRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.VisitorRequest(nil), s.payments...), s.err
}

func (s *staticLister) GetBigScreenRequests(context.Context, uint) ([]models.VisitorRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.VisitorRequest(nil), s.bigscreen...), s.err
}

func TestBusRunsTransportsEndToEnd(t *testing.T) {
	hub := NewLocalHub()
	ch := hub.Channel(DefaultChannelName)
	lister := &staticLister{}

	d, _ := newTestDedup(t, kv.NewMemoryStore())
	bus := NewBus(zap.NewNop(), d,
		NewBroadcastTransport(ch, time.Second, zap.NewNop()),
		NewPollTransport(lister, 1, 20*time.Millisecond, zap.NewNop()),
	)
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	bus.Start(context.Background())
	defer bus.Dispose()

	// let the broadcast transport subscribe and the poll baseline run
	time.Sleep(50 * time.Millisecond)

	msg := NewRequestMessage(TypePaymentRequest, models.VisitorRequest{Code: "AB12", OwnerName: "Ana", PhotoCount: 5})
	require.NoError(t, Announce(context.Background(), ch, msg))

	lister.mu.Lock()
	lister.payments = []models.VisitorRequest{{Code: "AB12", OwnerName: "Ana", PhotoCount: 5}}
	lister.mu.Unlock()

	require.Eventually(t, func() bool { return len(rec.alerts()) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.alerts(), 1)
}
