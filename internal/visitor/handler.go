// Package visitor is the local API of a photo or viewer station.
package visitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/access"
	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/internal/station"
	"github.com/sefazor/ourphotos-kiosk/pkg/albumclient"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

// Store is everything a visitor-facing station asks of the album store.
type Store interface {
	station.AlbumSource
	station.PhotoStore
	RequestAlbumPayment(ctx context.Context, code string) error
	RequestBigScreen(ctx context.Context, code string) error
}

const (
	DefaultIdleExpiry  = 10 * time.Minute
	DefaultMaxWatchers = 32
)

type Options struct {
	Store       Store
	Channel     notify.Channel
	Role        access.Role
	Lock        access.LockPolicy
	StationType string
	StationID   string
	Interval    time.Duration
	// A watcher nobody asked for within IdleExpiry is stopped; past
	// MaxWatchers the least recently read one is.
	IdleExpiry  time.Duration
	MaxWatchers int
	Validator   *utils.Validator
	Clock       clock.Clock
	Log         *zap.Logger
}

// Handler watches the albums a screen has open, appends captures and raises
// visitor requests.
type Handler struct {
	opts     Options
	appender *station.PhotoAppender
	timeout  time.Duration

	ctx      context.Context
	mu       sync.Mutex
	watchers map[string]*watch
}

type watch struct {
	watcher  *station.AlbumWatcher
	cancel   context.CancelFunc
	lastSeen time.Time
}

// NewHandler starts watchers under ctx; they stop with it, and so does the
// idle sweep.
func NewHandler(ctx context.Context, opts Options) *Handler {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Lock == nil {
		opts.Lock = access.ViewerLockPolicy
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.IdleExpiry <= 0 {
		opts.IdleExpiry = DefaultIdleExpiry
	}
	if opts.MaxWatchers <= 0 {
		opts.MaxWatchers = DefaultMaxWatchers
	}
	h := &Handler{
		opts:     opts,
		appender: station.NewPhotoAppender(opts.Store),
		timeout:  10 * time.Second,
		ctx:      ctx,
		watchers: make(map[string]*watch),
	}
	sweep := station.NewScheduler("visitor-watch-expiry", opts.IdleExpiry/2, func(context.Context) error {
		h.Expire()
		return nil
	}, opts.Log)
	go sweep.Run(ctx)
	return h
}

func (h *Handler) Register(r fiber.Router) {
	r.Get("/albums/:code", h.GetAlbum)
	r.Delete("/albums/:code/watch", h.Unwatch)
	r.Post("/albums/:code/photos", h.AddPhoto)
	r.Post("/albums/:code/request-payment", h.RequestPayment)
	r.Post("/albums/:code/request-bigscreen", h.RequestBigScreen)
}

// GetAlbum returns the reconciled view and keeps the album watched until the
// screen lets go of it.
func (h *Handler) GetAlbum(c *fiber.Ctx) error {
	code := utils.NormalizeAlbumCode(c.Params("code"))
	if !utils.IsAlbumCode(code) {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid album code"))
	}

	// the watcher's own first run does the load
	w := h.watch(code)
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()
	view, err := w.First(ctx)
	if err != nil {
		if ctx.Err() == nil {
			h.unwatch(code)
		}
		return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
	}
	return c.JSON(models.SuccessResponse(view, ""))
}

func (h *Handler) Unwatch(c *fiber.Ctx) error {
	h.unwatch(utils.NormalizeAlbumCode(c.Params("code")))
	return c.JSON(models.SuccessResponse(nil, "Stopped watching album"))
}

func (h *Handler) unwatch(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.watchers[code]; ok {
		w.cancel()
		delete(h.watchers, code)
	}
}

func (h *Handler) watch(code string) *station.AlbumWatcher {
	now := h.opts.Clock.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.watchers[code]; ok {
		w.lastSeen = now
		return w.watcher
	}
	if len(h.watchers) >= h.opts.MaxWatchers {
		h.evictOldestLocked()
	}
	ctx, cancel := context.WithCancel(h.ctx)
	w := station.NewAlbumWatcher(h.opts.Store, code, h.opts.Role, h.opts.Interval, h.opts.Log).WithLockPolicy(h.opts.Lock)
	h.watchers[code] = &watch{watcher: w, cancel: cancel, lastSeen: now}
	go w.Run(ctx)
	return w
}

func (h *Handler) evictOldestLocked() {
	var oldest string
	var at time.Time
	for code, w := range h.watchers {
		if oldest == "" || w.lastSeen.Before(at) {
			oldest, at = code, w.lastSeen
		}
	}
	if oldest != "" {
		h.watchers[oldest].cancel()
		delete(h.watchers, oldest)
		h.opts.Log.Debug("evicted album watcher", zap.String("code", oldest))
	}
}

// Expire stops the watchers no screen has read within the idle expiry and
// reports how many it stopped.
func (h *Handler) Expire() int {
	cutoff := h.opts.Clock.Now().Add(-h.opts.IdleExpiry)
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for code, w := range h.watchers {
		if w.lastSeen.Before(cutoff) {
			w.cancel()
			delete(h.watchers, code)
			n++
		}
	}
	return n
}

// Watching reports how many albums are being reconciled.
func (h *Handler) Watching() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

func (h *Handler) AddPhoto(c *fiber.Ctx) error {
	var req models.AddPhotoRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if req.StationType == "" {
		req.StationType = h.opts.StationType
	}
	if req.StationID == "" {
		req.StationID = h.opts.StationID
	}
	if err := h.opts.Validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()
	photo, err := h.appender.Append(ctx, utils.NormalizeAlbumCode(c.Params("code")), req)
	if err != nil {
		return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
	}
	return c.Status(fiber.StatusCreated).JSON(models.SuccessResponse(photo, "Photo added"))
}

func (h *Handler) RequestPayment(c *fiber.Ctx) error {
	return h.request(c, notify.TypePaymentRequest, h.opts.Store.RequestAlbumPayment)
}

func (h *Handler) RequestBigScreen(c *fiber.Ctx) error {
	return h.request(c, notify.TypeBigScreenRequest, h.opts.Store.RequestBigScreen)
}

// request records the request with the store, then announces it on the
// device channel so a console on the same origin hears it without a round
// trip. The announcement is best effort.
func (h *Handler) request(c *fiber.Ctx, t notify.Type, record func(context.Context, string) error) error {
	code := utils.NormalizeAlbumCode(c.Params("code"))
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	album, err := h.opts.Store.GetAlbum(ctx, code)
	if err != nil {
		return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
	}
	photos, err := h.opts.Store.GetAlbumPhotos(ctx, code)
	if err != nil {
		return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
	}
	if err := record(ctx, code); err != nil {
		return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
	}

	if h.opts.Channel != nil {
		msg := notify.NewRequestMessage(t, models.VisitorRequest{
			Code:       code,
			OwnerName:  album.OwnerName,
			PhotoCount: len(photos),
			CreatedAt:  time.Now(),
		})
		if err := notify.Announce(ctx, h.opts.Channel, msg); err != nil {
			h.opts.Log.Warn("announce request failed", zap.String("type", string(t)), zap.String("code", code), zap.Error(err))
		}
	}
	return c.JSON(models.SuccessResponse(nil, "Request sent"))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, albumclient.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, station.ErrAlbumFull), errors.Is(err, station.ErrAlbumClosed), errors.Is(err, albumclient.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusBadGateway
}
