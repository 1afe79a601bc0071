package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sefazor/ourphotos-kiosk/internal/lifecycle"
	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/service"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrAlbumNotFound),
		errors.Is(err, service.ErrEventNotFound),
		errors.Is(err, service.ErrPhotoNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrAlbumFull),
		errors.Is(err, service.ErrAlbumClosed),
		errors.Is(err, service.ErrAlreadyPaid),
		errors.Is(err, service.ErrEmptyAlbum),
		errors.Is(err, lifecycle.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrInvalidPIN):
		return fiber.StatusUnauthorized
	case errors.Is(err, service.ErrStaffDisabled):
		return fiber.StatusForbidden
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(models.ErrorResponse(err.Error()))
}

func eventIDParam(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
