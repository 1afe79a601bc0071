package service

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/repository"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
)

const DefaultJanitorSchedule = "@every 5m"

// Janitor prunes big-screen request records past BigScreenRequestTTL.
type Janitor struct {
	cron     *cron.Cron
	requests *repository.RequestRepository
	clock    clock.Clock
	log      *zap.Logger
}

func NewJanitor(requests *repository.RequestRepository, clk clock.Clock, log *zap.Logger) *Janitor {
	return &Janitor{
		cron:     cron.New(),
		requests: requests,
		clock:    clk,
		log:      log.Named("janitor"),
	}
}

func (j *Janitor) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	if _, err := j.cron.AddFunc(schedule, func() { _, _ = j.Prune() }); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop waits for a running prune to finish.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

func (j *Janitor) Prune() (int64, error) {
	n, err := j.requests.PruneBigScreenRequests(j.clock.Now().Add(-BigScreenRequestTTL))
	if err != nil {
		j.log.Warn("prune failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		j.log.Info("pruned big-screen requests", zap.Int64("count", n))
	}
	return n, nil
}
