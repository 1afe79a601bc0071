package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sefazor/ourphotos-kiosk/internal/middleware"
	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/service"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

type AlbumHandler struct {
	albumService *service.AlbumService
	eventService *service.EventService
	validator    *utils.Validator
}

func NewAlbumHandler(albumService *service.AlbumService, eventService *service.EventService, validator *utils.Validator) *AlbumHandler {
	return &AlbumHandler{
		albumService: albumService,
		eventService: eventService,
		validator:    validator,
	}
}

func (h *AlbumHandler) CreateAlbum(c *fiber.Ctx) error {
	var req models.CreateAlbumRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	album, err := h.albumService.CreateAlbum(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(models.SuccessResponse(album, "Album created successfully"))
}

func (h *AlbumHandler) GetAlbum(c *fiber.Ctx) error {
	album, err := h.albumService.GetAlbum(c.UserContext(), c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(album, ""))
}

func (h *AlbumHandler) GetAlbumPhotos(c *fiber.Ctx) error {
	photos, err := h.albumService.GetAlbumPhotos(c.UserContext(), c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(photos, ""))
}

func (h *AlbumHandler) GetAlbumStatus(c *fiber.Ctx) error {
	status, err := h.albumService.GetAlbumStatus(c.UserContext(), c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(status, ""))
}

func (h *AlbumHandler) AddPhoto(c *fiber.Ctx) error {
	var req models.AddPhotoRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	photo, err := h.albumService.AddPhoto(c.UserContext(), c.Params("code"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(models.SuccessResponse(photo, "Photo added"))
}

func (h *AlbumHandler) DeletePhoto(c *fiber.Ctx) error {
	if err := h.albumService.DeletePhoto(c.UserContext(), c.Params("code"), c.Params("photoId")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(nil, "Photo deleted from album"))
}

// UpdateStatus is staff only; the token must belong to the album's event.
func (h *AlbumHandler) UpdateStatus(c *fiber.Ctx) error {
	var req models.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	if ok, err := h.authorize(c); !ok {
		return err
	}

	album, err := h.albumService.UpdateStatus(c.UserContext(), c.Params("code"), req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(album, "Album status updated"))
}

// DeleteAlbum needs a staff token and the event PIN again in X-Staff-PIN.
func (h *AlbumHandler) DeleteAlbum(c *fiber.Ctx) error {
	pin := c.Get("X-Staff-PIN")
	if pin == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("Staff PIN is required"))
	}
	if ok, err := h.authorize(c); !ok {
		return err
	}
	if err := h.eventService.VerifyStaffPIN(c.UserContext(), middleware.StaffEventID(c), pin); err != nil {
		return respondError(c, err)
	}

	removed, err := h.albumService.DeleteAlbum(c.UserContext(), c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(models.DeleteAlbumResponse{
		Code:          utils.NormalizeAlbumCode(c.Params("code")),
		PhotosDeleted: removed,
	}, "Album deleted"))
}

func (h *AlbumHandler) RequestPayment(c *fiber.Ctx) error {
	if err := h.albumService.RequestPayment(c.UserContext(), c.Params("code")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(nil, "Payment requested, staff will be with you shortly"))
}

func (h *AlbumHandler) RequestBigScreen(c *fiber.Ctx) error {
	if err := h.albumService.RequestBigScreen(c.UserContext(), c.Params("code")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(nil, "Big screen requested"))
}

// authorize checks the staff token against the album's event. When it
// reports false the response has already been written.
func (h *AlbumHandler) authorize(c *fiber.Ctx) (bool, error) {
	album, err := h.albumService.GetAlbum(c.UserContext(), c.Params("code"))
	if err != nil {
		return false, respondError(c, err)
	}
	if album.EventID != middleware.StaffEventID(c) {
		return false, c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse("Token is not valid for this album"))
	}
	return true, nil
}
