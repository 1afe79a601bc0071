package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/station"
)

const DefaultPollInterval = 5 * time.Second

// RequestLister is the slice of the album store the poll transport reads.
type RequestLister interface {
	GetPaymentRequests(ctx context.Context, eventID uint) ([]models.VisitorRequest, error)
	GetBigScreenRequests(ctx context.Context, eventID uint) ([]models.VisitorRequest, error)
}

// PollTransport periodically lists the outstanding requests and emits the
// ones that were not present on the previous poll. The first successful poll
// is emitted as a baseline. Requests that drop off the list, because they
// were settled elsewhere or expired, are emitted as withdrawn.
type PollTransport struct {
	lister   RequestLister
	eventID  uint
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	primed bool
	prev   map[Identity]struct{}
}

func NewPollTransport(lister RequestLister, eventID uint, interval time.Duration, log *zap.Logger) *PollTransport {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollTransport{
		lister:   lister,
		eventID:  eventID,
		interval: interval,
		log:      log,
		prev:     make(map[Identity]struct{}),
	}
}

func (p *PollTransport) Name() Source { return SourcePoll }

func (p *PollTransport) Run(ctx context.Context, emit func(Delivery)) error {
	station.NewScheduler("notify-poll", p.interval, func(ctx context.Context) error {
		return p.Poll(ctx, emit)
	}, p.log).Run(ctx)
	return nil
}

// Poll performs one fetch-and-diff. A failed fetch leaves the previous
// snapshot untouched so nothing is lost or re-emitted.
func (p *PollTransport) Poll(ctx context.Context, emit func(Delivery)) error {
	payments, err := p.lister.GetPaymentRequests(ctx, p.eventID)
	if err != nil {
		return fmt.Errorf("list payment requests: %w", err)
	}
	bigscreen, err := p.lister.GetBigScreenRequests(ctx, p.eventID)
	if err != nil {
		return fmt.Errorf("list big-screen requests: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}

	var msgs []Message
	for _, r := range payments {
		msgs = append(msgs, NewRequestMessage(TypePaymentRequest, r))
	}
	for _, r := range bigscreen {
		msgs = append(msgs, NewRequestMessage(TypeBigScreenRequest, r))
	}

	p.mu.Lock()
	baseline := !p.primed
	current := make(map[Identity]struct{}, len(msgs))
	var fresh []Message
	for _, m := range msgs {
		id := m.Identity()
		current[id] = struct{}{}
		if _, seen := p.prev[id]; baseline || !seen {
			fresh = append(fresh, m)
		}
	}
	var gone []Identity
	for id := range p.prev {
		if _, ok := current[id]; !ok {
			gone = append(gone, id)
		}
	}
	p.prev = current
	p.primed = true
	p.mu.Unlock()

	for _, m := range fresh {
		emit(Delivery{Message: m, Source: SourcePoll, Baseline: baseline})
	}
	for _, id := range gone {
		emit(Delivery{Message: Message{Type: id.Type, Data: Data{Code: id.Code}}, Source: SourcePoll, Withdrawn: true})
	}
	return nil
}
