// Package console is the staff side of the kiosk: it turns bus events into an
// idempotent request queue, alerts on fresh requests and resolves them
// through the album store.
package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/lifecycle"
	"github.com/sefazor/ourphotos-kiosk/internal/metrics"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/kv"
)

// QueueFreshness bounds how old a persisted big-screen request may be and
// still be restored.
const QueueFreshness = 30 * time.Minute

var (
	ErrEntryNotFound   = errors.New("request not in queue")
	ErrUnsupportedType = errors.New("unsupported request type")
)

type Entry struct {
	Type       notify.Type `json:"type"`
	Code       string      `json:"code"`
	OwnerName  string      `json:"owner_name,omitempty"`
	PhotoCount int         `json:"photo_count"`
	CreatedAt  time.Time   `json:"created_at"`
	ReceivedAt time.Time   `json:"received_at"`
}

func (e Entry) Identity() notify.Identity {
	return notify.Identity{Type: e.Type, Code: e.Code}
}

// DisplaySetter puts an album into the event's pending display slot.
type DisplaySetter interface {
	SetDisplaySlot(ctx context.Context, eventID uint, code string) error
}

type Options struct {
	EventID   uint
	Bus       *notify.Bus
	Commander *lifecycle.Commander
	Display   DisplaySetter
	Alerter   Alerter
	Store     kv.Store
	Clock     clock.Clock
	Log       *zap.Logger
}

type Aggregator struct {
	eventID   uint
	bus       *notify.Bus
	dedup     *notify.Deduplicator
	commander *lifecycle.Commander
	display   DisplaySetter
	alerter   Alerter
	store     kv.Store
	clock     clock.Clock
	log       *zap.Logger

	mu          sync.Mutex
	entries     map[notify.Identity]Entry
	observers   map[int]func([]Entry)
	nextID      int
	unsubscribe func()
}

func NewAggregator(opts Options) *Aggregator {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Aggregator{
		eventID:   opts.EventID,
		bus:       opts.Bus,
		dedup:     opts.Bus.Dedup(),
		commander: opts.Commander,
		display:   opts.Display,
		alerter:   opts.Alerter,
		store:     opts.Store,
		clock:     opts.Clock,
		log:       opts.Log,
		entries:   make(map[notify.Identity]Entry),
		observers: make(map[int]func([]Entry)),
	}
}

// Start restores the persisted big-screen queue and subscribes to the bus.
func (a *Aggregator) Start() error {
	if err := a.restore(); err != nil {
		return err
	}
	a.mu.Lock()
	a.unsubscribe = a.bus.Subscribe(a.handle)
	a.mu.Unlock()
	return nil
}

func (a *Aggregator) restore() error {
	var saved []Entry
	if _, err := a.store.Get(kv.KeyBigScreenRequests, &saved); err != nil {
		return fmt.Errorf("restore big-screen queue: %w", err)
	}
	cutoff := a.clock.Now().Add(-QueueFreshness)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range saved {
		if e.ReceivedAt.Before(cutoff) || a.dedup.IsDismissed(e.Identity()) {
			continue
		}
		a.entries[e.Identity()] = e
	}
	return a.persistLocked()
}

func (a *Aggregator) handle(ev notify.Event) {
	if !ev.Message.Type.IsRequest() {
		return
	}
	id := ev.Message.Identity()

	if ev.Withdrawn {
		a.withdraw(id)
		return
	}

	a.mu.Lock()
	if _, ok := a.entries[id]; ok {
		a.mu.Unlock()
		return
	}
	entry := Entry{
		Type:       id.Type,
		Code:       id.Code,
		OwnerName:  ev.Message.Data.OwnerName,
		PhotoCount: ev.Message.Data.PhotoCount,
		CreatedAt:  ev.Message.Data.CreatedAt,
		ReceivedAt: a.clock.Now(),
	}
	a.entries[id] = entry
	if id.Type == notify.TypeBigScreenRequest {
		if err := a.persistLocked(); err != nil {
			a.log.Warn("persist big-screen queue", zap.Error(err))
		}
	}
	queue, observers := a.snapshotLocked()
	a.mu.Unlock()

	if !ev.Silent {
		metrics.AlertsTotal.WithLabelValues(string(id.Type)).Inc()
		if a.alerter != nil {
			a.alerter.Alert(NewAlert(entry))
		}
	}
	for _, fn := range observers {
		fn(queue)
	}
}

// Resolve acts on a request through the store. The entry stays queued when
// the store call fails so the operator can try again.
func (a *Aggregator) Resolve(ctx context.Context, id notify.Identity) error {
	a.mu.Lock()
	_, ok := a.entries[id]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}

	var err error
	switch id.Type {
	case notify.TypePaymentRequest:
		err = a.commander.MarkPaidByCode(ctx, id.Code)
	case notify.TypeBigScreenRequest:
		err = a.display.SetDisplaySlot(ctx, a.eventID, id.Code)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedType, id.Type)
	}
	if err != nil {
		return err
	}

	if err := a.dedup.Forget(id); err != nil {
		a.log.Warn("forget resolved request", zap.String("identity", id.String()), zap.Error(err))
	}
	a.remove(id)
	return nil
}

// withdraw drops a request the store stopped listing: paid through the
// webhook, resolved on another staff device or expired.
func (a *Aggregator) withdraw(id notify.Identity) {
	if err := a.dedup.Forget(id); err != nil {
		a.log.Warn("forget withdrawn request", zap.String("identity", id.String()), zap.Error(err))
	}
	a.remove(id)
}

// Dismiss hides a request on this device only. The store keeps reporting it
// and the dedup layer keeps it hidden.
func (a *Aggregator) Dismiss(id notify.Identity) error {
	if err := a.dedup.Dismiss(id); err != nil {
		return fmt.Errorf("dismiss %s: %w", id, err)
	}
	a.remove(id)
	return nil
}

func (a *Aggregator) remove(id notify.Identity) {
	a.mu.Lock()
	if _, ok := a.entries[id]; !ok {
		a.mu.Unlock()
		return
	}
	delete(a.entries, id)
	if id.Type == notify.TypeBigScreenRequest {
		if err := a.persistLocked(); err != nil {
			a.log.Warn("persist big-screen queue", zap.Error(err))
		}
	}
	queue, observers := a.snapshotLocked()
	a.mu.Unlock()

	for _, fn := range observers {
		fn(queue)
	}
}

// Queue returns the outstanding requests, oldest first.
func (a *Aggregator) Queue() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	queue, _ := a.snapshotLocked()
	return queue
}

func (a *Aggregator) Lookup(id notify.Identity) (Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[id]
	return e, ok
}

// OnChange registers fn to receive the queue after every change.
func (a *Aggregator) OnChange(fn func([]Entry)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.observers[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.observers, id)
		a.mu.Unlock()
	}
}

func (a *Aggregator) Dispose() {
	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.observers = make(map[int]func([]Entry))
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (a *Aggregator) snapshotLocked() ([]Entry, []func([]Entry)) {
	queue := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		queue = append(queue, e)
	}
	sort.Slice(queue, func(i, j int) bool {
		if !queue[i].ReceivedAt.Equal(queue[j].ReceivedAt) {
			return queue[i].ReceivedAt.Before(queue[j].ReceivedAt)
		}
		return queue[i].Identity().String() < queue[j].Identity().String()
	})

	observers := make([]func([]Entry), 0, len(a.observers))
	for _, fn := range a.observers {
		observers = append(observers, fn)
	}
	return queue, observers
}

func (a *Aggregator) persistLocked() error {
	var bigscreen []Entry
	for _, e := range a.entries {
		if e.Type == notify.TypeBigScreenRequest {
			bigscreen = append(bigscreen, e)
		}
	}
	return a.store.Set(kv.KeyBigScreenRequests, bigscreen)
}
