// Package bigscreen drives the event's big-screen display: an idle branding
// screen with a registration QR, or a slideshow of one album.
package bigscreen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/metrics"
	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/internal/station"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/kv"
)

type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

var ErrEmptyAlbum = errors.New("album has no photos to show")

type Config struct {
	SlideInterval time.Duration
	FadeDuration  time.Duration
	IdleTimeout   time.Duration
	SlotPoll      time.Duration
	TickInterval  time.Duration
	LoadTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		SlideInterval: 5 * time.Second,
		FadeDuration:  800 * time.Millisecond,
		IdleTimeout:   30 * time.Second,
		SlotPoll:      3 * time.Second,
		TickInterval:  100 * time.Millisecond,
		LoadTimeout:   10 * time.Second,
	}
}

type Snapshot struct {
	State         State               `json:"state"`
	EventID       uint                `json:"event_id"`
	AlbumCode     string              `json:"album_code,omitempty"`
	Photos        []models.AlbumPhoto `json:"photos,omitempty"`
	Index         int                 `json:"index"`
	Current       *models.AlbumPhoto  `json:"current,omitempty"`
	Fading        bool                `json:"fading"`
	LastCommandAt time.Time           `json:"last_command_at,omitempty"`
}

type PhotoLoader interface {
	GetAlbumPhotos(ctx context.Context, code string) ([]models.AlbumPhoto, error)
}

type SlotSource interface {
	GetDisplaySlot(ctx context.Context, eventID uint) (*models.DisplaySlot, error)
}

type pendingDisplay struct {
	Code    string    `json:"code"`
	ShownAt time.Time `json:"shown_at"`
}

// Coordinator is the display state machine. Time only moves through Tick, so
// tests drive it with a fake clock.
type Coordinator struct {
	cfg     Config
	eventID uint
	loader  PhotoLoader
	store   kv.Store
	clock   clock.Clock
	log     *zap.Logger

	mu          sync.Mutex
	state       State
	code        string
	photos      []models.AlbumPhoto
	index       int
	slideAt     time.Time
	lastCommand time.Time
	// bumped by every show or clear; a load applies only if it is still current
	cmdSeq uint64

	// what observers last saw
	shownIndex  int
	shownFading bool

	slotPrimed bool
	slotCode   string
	slotAt     time.Time

	observers map[int]func(Snapshot)
	nextID    int
}

func NewCoordinator(eventID uint, loader PhotoLoader, store kv.Store, clk clock.Clock, cfg Config, log *zap.Logger) *Coordinator {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	metrics.DisplayState.Set(0)
	return &Coordinator{
		cfg:       cfg,
		eventID:   eventID,
		loader:    loader,
		store:     store,
		clock:     clk,
		log:       log,
		state:     StateIdle,
		observers: make(map[int]func(Snapshot)),
	}
}

// Show loads the album and makes it the active slideshow. A repeated show of
// the album already on screen only extends its inactivity timer. If another
// show or clear is issued while the photos load, the later command wins and
// this one is dropped.
func (c *Coordinator) Show(ctx context.Context, code string) error {
	return c.show(ctx, code, c.beginCommand())
}

func (c *Coordinator) beginCommand() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmdSeq++
	return c.cmdSeq
}

func (c *Coordinator) show(ctx context.Context, code string, seq uint64) error {
	photos, err := c.loader.GetAlbumPhotos(ctx, code)
	if err != nil {
		return fmt.Errorf("load photos for %s: %w", code, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(photos) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyAlbum, code)
	}

	now := c.clock.Now()
	c.mu.Lock()
	if c.cmdSeq != seq {
		c.mu.Unlock()
		c.log.Debug("display show superseded", zap.String("code", code))
		return nil
	}
	if c.state == StateActive && c.code == code {
		c.photos = photos
		if c.index >= len(photos) {
			c.index = 0
		}
	} else {
		c.state = StateActive
		c.code = code
		c.photos = photos
		c.index = 0
		c.slideAt = now
	}
	c.lastCommand = now
	snap, observers := c.snapshotLocked(now)
	c.markShownLocked(snap)
	c.mu.Unlock()

	metrics.DisplayState.Set(1)
	if err := c.store.Set(kv.PendingDisplayKey(c.eventID), pendingDisplay{Code: code, ShownAt: now}); err != nil {
		c.log.Warn("persist pending display", zap.Error(err))
	}
	c.log.Info("showing album", zap.String("code", code), zap.Int("photos", len(photos)))
	publish(observers, snap)
	return nil
}

// Clear returns to idle and forgets the pending display.
func (c *Coordinator) Clear() {
	c.toIdle("cleared")
}

// Refresh forces the idle screen immediately.
func (c *Coordinator) Refresh() {
	c.toIdle("refreshed")
}

func (c *Coordinator) toIdle(reason string) {
	now := c.clock.Now()
	c.mu.Lock()
	c.cmdSeq++
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	snap, observers := c.snapshotLocked(now)
	c.markShownLocked(snap)
	c.mu.Unlock()

	c.afterIdle(reason)
	publish(observers, snap)
}

func (c *Coordinator) resetLocked() {
	c.state = StateIdle
	c.code = ""
	c.photos = nil
	c.index = 0
}

func (c *Coordinator) afterIdle(reason string) {
	metrics.DisplayState.Set(0)
	if err := c.store.Delete(kv.PendingDisplayKey(c.eventID)); err != nil {
		c.log.Warn("clear pending display", zap.Error(err))
	}
	c.log.Info("big screen idle", zap.String("reason", reason))
}

// Tick advances the slideshow to now and reverts to idle once no command
// arrived for the idle timeout.
func (c *Coordinator) Tick(now time.Time) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	if now.Sub(c.lastCommand) >= c.cfg.IdleTimeout {
		c.resetLocked()
		snap, observers := c.snapshotLocked(now)
		c.markShownLocked(snap)
		c.mu.Unlock()
		c.afterIdle("timeout")
		publish(observers, snap)
		return
	}

	for len(c.photos) > 0 && now.Sub(c.slideAt) >= c.cfg.SlideInterval {
		c.index = (c.index + 1) % len(c.photos)
		c.slideAt = c.slideAt.Add(c.cfg.SlideInterval)
	}
	snap, observers := c.snapshotLocked(now)
	changed := snap.Index != c.shownIndex || snap.Fading != c.shownFading
	c.markShownLocked(snap)
	c.mu.Unlock()

	if changed {
		publish(observers, snap)
	}
}

func (c *Coordinator) markShownLocked(snap Snapshot) {
	c.shownIndex = snap.Index
	c.shownFading = snap.Fading
}

// HandleEvent applies display commands arriving on the notification bus. It
// returns without waiting for a show's photos to load, so a slow store never
// holds up the bus.
func (c *Coordinator) HandleEvent(ev notify.Event) {
	switch ev.Message.Type {
	case notify.TypeDisplayShow:
		code := ev.Message.Data.Code
		seq := c.beginCommand()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LoadTimeout)
			defer cancel()
			if err := c.show(ctx, code, seq); err != nil {
				c.log.Warn("display command failed", zap.String("code", code), zap.Error(err))
			}
		}()
	case notify.TypeDisplayClear:
		c.Clear()
	}
}

// PollSlot reads the event's pending display slot. A slot counts as a new
// command only when its update time moves; the first read only shows a slot
// written within the idle timeout.
func (c *Coordinator) PollSlot(ctx context.Context, src SlotSource) error {
	slot, err := src.GetDisplaySlot(ctx, c.eventID)
	if err != nil {
		return fmt.Errorf("get display slot: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}

	c.mu.Lock()
	primed := c.slotPrimed
	prevCode, prevAt := c.slotCode, c.slotAt
	c.slotPrimed = true
	if slot == nil || slot.AlbumCode == "" {
		c.slotCode, c.slotAt = "", time.Time{}
	} else {
		c.slotCode, c.slotAt = slot.AlbumCode, slot.UpdatedAt
	}
	c.mu.Unlock()

	if slot == nil || slot.AlbumCode == "" {
		if primed && prevCode != "" {
			c.Clear()
		}
		return nil
	}
	if primed && slot.AlbumCode == prevCode && slot.UpdatedAt.Equal(prevAt) {
		return nil
	}
	if !primed && c.clock.Now().Sub(slot.UpdatedAt) >= c.cfg.IdleTimeout {
		return nil
	}
	return c.Show(ctx, slot.AlbumCode)
}

// Restore resumes a display that was showing when the station restarted, if
// it is still within the idle timeout.
func (c *Coordinator) Restore(ctx context.Context) error {
	var pending pendingDisplay
	found, err := c.store.Get(kv.PendingDisplayKey(c.eventID), &pending)
	if err != nil {
		return fmt.Errorf("read pending display: %w", err)
	}
	if !found || pending.Code == "" || c.clock.Now().Sub(pending.ShownAt) >= c.cfg.IdleTimeout {
		return nil
	}
	return c.Show(ctx, pending.Code)
}

// Run drives the display until ctx is done: the slide clock, and the slot
// poll when src is set.
func (c *Coordinator) Run(ctx context.Context, src SlotSource) {
	if src != nil {
		poller := station.NewScheduler("bigscreen-slot", c.cfg.SlotPoll, func(ctx context.Context) error {
			return c.PollSlot(ctx, src)
		}, c.log)
		go poller.Run(ctx)
	}

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(c.clock.Now())
		}
	}
}

func (c *Coordinator) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, _ := c.snapshotLocked(c.clock.Now())
	return snap
}

func (c *Coordinator) snapshotLocked(now time.Time) (Snapshot, []func(Snapshot)) {
	snap := Snapshot{State: c.state, EventID: c.eventID}
	if c.state == StateActive {
		snap.AlbumCode = c.code
		snap.Photos = append([]models.AlbumPhoto(nil), c.photos...)
		snap.Index = c.index
		snap.LastCommandAt = c.lastCommand
		if c.index < len(c.photos) {
			p := c.photos[c.index]
			snap.Current = &p
		}
		// the first slide of a show fades in too
		snap.Fading = now.Sub(c.slideAt) < c.cfg.FadeDuration
	}

	observers := make([]func(Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	return snap, observers
}

func publish(observers []func(Snapshot), snap Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}
