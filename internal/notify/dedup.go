package notify

import (
	"sync"
	"time"

	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/kv"
)

const DefaultDedupWindow = 30 * time.Second

type Verdict int

const (
	// VerdictAlert: first sighting, raise a visible alert.
	VerdictAlert Verdict = iota
	// VerdictSilent: known at session start, show in the queue without alerting.
	VerdictSilent
	// VerdictPass: not a request; handed to subscribers untouched.
	VerdictPass
	VerdictDrop
)

// Deduplicator collapses repeated deliveries of the same request identity
// regardless of which transports carried them.
//
// Three sets are kept: a short recent window keyed by identity, a session
// long set of payment codes already surfaced (seeded by the baseline poll),
// and the dismissed set. Payment dismissals are persisted on the device;
// big-screen dismissals last for the session.
type Deduplicator struct {
	mu       sync.Mutex
	clock    clock.Clock
	window   time.Duration
	recent   map[Identity]time.Time
	surfaced map[string]struct{}

	dismissed        *kv.StringSet
	sessionDismissed map[Identity]struct{}
}

func NewDeduplicator(clk clock.Clock, window time.Duration, dismissed *kv.StringSet) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Deduplicator{
		clock:            clk,
		window:           window,
		recent:           make(map[Identity]time.Time),
		surfaced:         make(map[string]struct{}),
		dismissed:        dismissed,
		sessionDismissed: make(map[Identity]struct{}),
	}
}

// Admit classifies one delivery and records it. The second return value names
// the reason for a drop.
func (d *Deduplicator) Admit(del Delivery) (Verdict, string) {
	id := del.Message.Identity()
	if !id.Type.IsRequest() {
		return VerdictPass, ""
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isDismissed(id) {
		return VerdictDrop, "dismissed"
	}

	now := d.clock.Now()
	d.expire(now)

	if _, ok := d.recent[id]; ok {
		return VerdictDrop, "recent"
	}
	if id.Type == TypePaymentRequest {
		if _, ok := d.surfaced[id.Code]; ok {
			return VerdictDrop, "surfaced"
		}
		d.surfaced[id.Code] = struct{}{}
	}
	d.recent[id] = now.Add(d.window)

	if del.Baseline {
		return VerdictSilent, ""
	}
	return VerdictAlert, ""
}

// Dismiss hides an identity for good. The backend keeps reporting it until
// staff resolve it, so the dismissal must outlive the recent window.
func (d *Deduplicator) Dismiss(id Identity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id.Type == TypePaymentRequest && d.dismissed != nil {
		return d.dismissed.Add(id.String())
	}
	d.sessionDismissed[id] = struct{}{}
	return nil
}

// Forget clears everything known about a resolved identity so a later
// request for the same album alerts again.
func (d *Deduplicator) Forget(id Identity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.recent, id)
	delete(d.sessionDismissed, id)
	if id.Type == TypePaymentRequest {
		delete(d.surfaced, id.Code)
		if d.dismissed != nil && d.dismissed.Has(id.String()) {
			return d.dismissed.Remove(id.String())
		}
	}
	return nil
}

func (d *Deduplicator) IsDismissed(id Identity) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isDismissed(id)
}

func (d *Deduplicator) isDismissed(id Identity) bool {
	if _, ok := d.sessionDismissed[id]; ok {
		return true
	}
	return id.Type == TypePaymentRequest && d.dismissed != nil && d.dismissed.Has(id.String())
}

// expire is the deferred removal of the recent window.
func (d *Deduplicator) expire(now time.Time) {
	for id, until := range d.recent {
		if !now.Before(until) {
			delete(d.recent, id)
		}
	}
}
