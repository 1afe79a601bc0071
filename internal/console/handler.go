package console

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sefazor/ourphotos-kiosk/internal/lifecycle"
	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/pkg/albumclient"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

// confirmationTTL bounds how long a prepared deletion stays usable.
const confirmationTTL = 2 * time.Minute

type AlbumReader interface {
	GetAlbum(ctx context.Context, code string) (*models.Album, error)
	GetAlbumPhotos(ctx context.Context, code string) ([]models.AlbumPhoto, error)
}

type DeleteAlbumRequest struct {
	Token string `json:"token" validate:"required"`
	PIN   string `json:"pin" validate:"required"`
}

type PrepareDeleteResponse struct {
	Token      string `json:"token"`
	Message    string `json:"message"`
	PhotoCount int    `json:"photo_count"`
}

type pendingDelete struct {
	confirmation *lifecycle.DeleteConfirmation
	expiresAt    time.Time
}

// Handler serves the operator API of the console.
type Handler struct {
	aggregator *Aggregator
	commander  *lifecycle.Commander
	albums     AlbumReader
	validator  *utils.Validator
	timeout    time.Duration

	mu      sync.Mutex
	pending map[string]pendingDelete
}

func NewHandler(aggregator *Aggregator, commander *lifecycle.Commander, albums AlbumReader, validator *utils.Validator) *Handler {
	return &Handler{
		aggregator: aggregator,
		commander:  commander,
		albums:     albums,
		validator:  validator,
		timeout:    10 * time.Second,
		pending:    make(map[string]pendingDelete),
	}
}

func (h *Handler) Register(r fiber.Router) {
	r.Get("/queue", h.GetQueue)
	r.Post("/queue/:type/:code/resolve", h.Resolve)
	r.Post("/queue/:type/:code/dismiss", h.Dismiss)
	r.Post("/albums/:code/complete", h.CompleteAlbum)
	r.Post("/albums/:code/delete/prepare", h.PrepareDelete)
	r.Delete("/albums/:code", h.DeleteAlbum)
	r.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func (h *Handler) GetQueue(c *fiber.Ctx) error {
	return c.JSON(models.SuccessResponse(h.aggregator.Queue(), ""))
}

func identityParam(c *fiber.Ctx) (notify.Identity, bool) {
	id := notify.Identity{
		Type: notify.Type(c.Params("type")),
		Code: utils.NormalizeAlbumCode(c.Params("code")),
	}
	return id, id.Type.IsRequest() && id.Code != ""
}

func (h *Handler) Resolve(c *fiber.Ctx) error {
	id, ok := identityParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request type"))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	if err := h.aggregator.Resolve(ctx, id); err != nil {
		return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
	}
	return c.JSON(models.SuccessResponse(nil, "Request resolved"))
}

func (h *Handler) Dismiss(c *fiber.Ctx) error {
	id, ok := identityParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request type"))
	}
	if err := h.aggregator.Dismiss(id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse(err.Error()))
	}
	return c.JSON(models.SuccessResponse(nil, "Request dismissed"))
}

func (h *Handler) CompleteAlbum(c *fiber.Ctx) error {
	code := utils.NormalizeAlbumCode(c.Params("code"))

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	album, err := h.albums.GetAlbum(ctx, code)
	if err != nil {
		return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
	}
	if err := h.commander.MarkCompleted(ctx, album); err != nil {
		return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
	}
	return c.JSON(models.SuccessResponse(nil, "Album marked as completed"))
}

// PrepareDelete describes the cascade and hands back a one-time token the
// operator must send with the delete.
func (h *Handler) PrepareDelete(c *fiber.Ctx) error {
	code := utils.NormalizeAlbumCode(c.Params("code"))

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	album, err := h.albums.GetAlbum(ctx, code)
	if err != nil {
		return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
	}
	photos, err := h.albums.GetAlbumPhotos(ctx, code)
	if err != nil {
		return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
	}
	album.Photos = photos

	confirmation := h.commander.PrepareDelete(album)
	token := uuid.NewString()

	h.mu.Lock()
	now := time.Now()
	for t, p := range h.pending {
		if now.After(p.expiresAt) {
			delete(h.pending, t)
		}
	}
	h.pending[token] = pendingDelete{confirmation: confirmation, expiresAt: now.Add(confirmationTTL)}
	h.mu.Unlock()

	return c.JSON(models.SuccessResponse(PrepareDeleteResponse{
		Token:      token,
		Message:    confirmation.Message(),
		PhotoCount: confirmation.PhotoCount,
	}, ""))
}

func (h *Handler) DeleteAlbum(c *fiber.Ctx) error {
	code := utils.NormalizeAlbumCode(c.Params("code"))

	var req DeleteAlbumRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	h.mu.Lock()
	p, ok := h.pending[req.Token]
	if ok {
		delete(h.pending, req.Token)
	}
	h.mu.Unlock()
	if !ok || time.Now().After(p.expiresAt) || p.confirmation.Code != code {
		return c.Status(fiber.StatusConflict).JSON(models.ErrorResponse(lifecycle.ErrDeleteNotConfirmed.Error()))
	}
	p.confirmation.Confirm()

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	n, err := h.commander.Delete(ctx, p.confirmation, req.PIN)
	if err != nil {
		return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
	}
	return c.JSON(models.SuccessResponse(models.DeleteAlbumResponse{Code: code, PhotosDeleted: n}, "Album deleted"))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, albumclient.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrDeleteNotConfirmed):
		return fiber.StatusConflict
	case errors.Is(err, albumclient.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusBadGateway
}
