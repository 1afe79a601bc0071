// Package station holds the per-station reconciliation loops that re-pull
// album and request state from the store on a fixed interval.
package station

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/metrics"
)

type Job func(ctx context.Context) error

// Scheduler runs a job immediately and then on every tick. A tick that finds
// the previous run still in flight is skipped, so a slow response never
// overlaps a second fetch of the same resource. Job errors are logged and the
// loop continues.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	log      *zap.Logger
	running  int32
}

func NewScheduler(name string, interval time.Duration, job Job, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{name: name, interval: interval, job: job, log: log}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	go s.TryRun(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go s.TryRun(ctx)
		}
	}
}

// TryRun executes the job unless a run is already in flight. It reports
// whether the job ran.
func (s *Scheduler) TryRun(ctx context.Context) bool {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		s.log.Debug("skip tick, previous run in flight", zap.String("job", s.name))
		return false
	}
	defer atomic.StoreInt32(&s.running, 0)

	if ctx.Err() != nil {
		return false
	}
	if err := s.job(ctx); err != nil {
		metrics.PollFailuresTotal.WithLabelValues(s.name).Inc()
		s.log.Warn("reconciliation failed", zap.String("job", s.name), zap.Error(err))
	}
	return true
}

func (s *Scheduler) InFlight() bool {
	return atomic.LoadInt32(&s.running) == 1
}
