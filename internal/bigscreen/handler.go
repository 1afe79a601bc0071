package bigscreen

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/pkg/albumclient"
	"github.com/sefazor/ourphotos-kiosk/pkg/qrcode"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

// Branding is what the idle screen shows.
type Branding struct {
	Title           string `json:"title"`
	RegistrationURL string `json:"registration_url"`
	Watermark       string `json:"watermark,omitempty"`
}

type StateResponse struct {
	Snapshot
	Branding Branding `json:"branding"`
}

type Handler struct {
	coord    *Coordinator
	qr       *qrcode.QRService
	branding Branding
	qrSize   int

	qrOnce sync.Once
	qrPNG  []byte
	qrErr  error
}

func NewHandler(coord *Coordinator, branding Branding, qrSize int) *Handler {
	return &Handler{
		coord:    coord,
		qr:       qrcode.NewQRService(branding.RegistrationURL),
		branding: branding,
		qrSize:   qrSize,
	}
}

func (h *Handler) Register(r fiber.Router) {
	r.Get("/state", h.GetState)
	r.Get("/qr.png", h.GetQR)
	r.Post("/show/:code", h.Show)
	r.Post("/clear", h.Clear)
	r.Post("/refresh", h.Refresh)
}

func (h *Handler) GetState(c *fiber.Ctx) error {
	return c.JSON(models.SuccessResponse(StateResponse{Snapshot: h.coord.Snapshot(), Branding: h.branding}, ""))
}

// GetQR serves the registration QR shown on the idle screen.
func (h *Handler) GetQR(c *fiber.Ctx) error {
	h.qrOnce.Do(func() {
		h.qrPNG, h.qrErr = h.qr.GenerateQRCode("", h.qrSize)
	})
	if h.qrErr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse(h.qrErr.Error()))
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.Send(h.qrPNG)
}

// Show lets staff put an album up without a visitor request.
func (h *Handler) Show(c *fiber.Ctx) error {
	code := utils.NormalizeAlbumCode(c.Params("code"))
	if !utils.IsAlbumCode(code) {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid album code"))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	if err := h.coord.Show(ctx, code); err != nil {
		status := fiber.StatusBadGateway
		switch {
		case errors.Is(err, ErrEmptyAlbum):
			status = fiber.StatusConflict
		case errors.Is(err, albumclient.ErrNotFound):
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(models.ErrorResponse(err.Error()))
	}
	return c.JSON(models.SuccessResponse(h.coord.Snapshot(), "Album on screen"))
}

func (h *Handler) Clear(c *fiber.Ctx) error {
	h.coord.Clear()
	return c.JSON(models.SuccessResponse(h.coord.Snapshot(), "Screen cleared"))
}

func (h *Handler) Refresh(c *fiber.Ctx) error {
	h.coord.Refresh()
	return c.JSON(models.SuccessResponse(h.coord.Snapshot(), ""))
}
