package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/service"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

type EventHandler struct {
	eventService   *service.EventService
	albumService   *service.AlbumService
	displayService *service.DisplayService
	validator      *utils.Validator
}

func NewEventHandler(eventService *service.EventService, albumService *service.AlbumService, displayService *service.DisplayService, validator *utils.Validator) *EventHandler {
	return &EventHandler{
		eventService:   eventService,
		albumService:   albumService,
		displayService: displayService,
		validator:      validator,
	}
}

func (h *EventHandler) GetEvent(c *fiber.Ctx) error {
	eventID, ok := eventIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid event ID"))
	}
	event, err := h.eventService.GetEvent(c.UserContext(), eventID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(event.Info(), ""))
}

func (h *EventHandler) GetRules(c *fiber.Ctx) error {
	eventID, ok := eventIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid event ID"))
	}
	rules, err := h.eventService.GetRules(c.UserContext(), eventID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(rules, ""))
}

func (h *EventHandler) StaffLogin(c *fiber.Ctx) error {
	eventID, ok := eventIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid event ID"))
	}
	var req models.StaffLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	resp, err := h.eventService.StaffLogin(c.UserContext(), eventID, req.PIN)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(resp, "Login successful"))
}

// The routes below sit behind middleware.StaffAuth, which has already
// matched the token to :id.

func (h *EventHandler) GetPaymentRequests(c *fiber.Ctx) error {
	eventID, _ := eventIDParam(c)
	reqs, err := h.albumService.ListPaymentRequests(c.UserContext(), eventID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(reqs, ""))
}

func (h *EventHandler) GetBigScreenRequests(c *fiber.Ctx) error {
	eventID, _ := eventIDParam(c)
	reqs, err := h.albumService.ListBigScreenRequests(c.UserContext(), eventID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(reqs, ""))
}

func (h *EventHandler) GetAlbums(c *fiber.Ctx) error {
	eventID, _ := eventIDParam(c)
	albums, err := h.albumService.ListAlbums(c.UserContext(), eventID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(albums, ""))
}

func (h *EventHandler) GetStats(c *fiber.Ctx) error {
	eventID, _ := eventIDParam(c)
	stats, err := h.albumService.Stats(c.UserContext(), eventID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(stats, ""))
}

// GetDisplaySlot is public; the big screen holds no staff token.
func (h *EventHandler) GetDisplaySlot(c *fiber.Ctx) error {
	eventID, ok := eventIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid event ID"))
	}
	slot, err := h.displayService.GetSlot(c.UserContext(), eventID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(slot, ""))
}

func (h *EventHandler) SetDisplaySlot(c *fiber.Ctx) error {
	eventID, _ := eventIDParam(c)
	var req models.DisplaySlotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	slot, err := h.displayService.Show(c.UserContext(), eventID, req.AlbumCode)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(slot, "Album sent to the big screen"))
}

func (h *EventHandler) ClearDisplaySlot(c *fiber.Ctx) error {
	eventID, _ := eventIDParam(c)
	if err := h.displayService.Clear(c.UserContext(), eventID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(nil, "Big screen cleared"))
}
