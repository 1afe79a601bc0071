package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	jwtPkg "github.com/sefazor/ourphotos-kiosk/pkg/jwt"
)

const eventIDKey = "eventID"

// StaffAuth requires a staff bearer token. When the route carries an :id
// parameter the token must belong to that event.
func StaffAuth(issuer *jwtPkg.Issuer, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("Authorization header is required"))
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("Invalid authorization header format"))
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := issuer.ValidateToken(tokenString)
		if err != nil {
			log.Debug("staff token rejected", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("Invalid token"))
		}

		if raw := c.Params("id"); raw != "" {
			routeEventID, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid event ID"))
			}
			if uint(routeEventID) != claims.EventID {
				return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse("Token is not valid for this event"))
			}
		}

		c.Locals(eventIDKey, claims.EventID)
		return c.Next()
	}
}

// StaffEventID returns the event the staff token was issued for, or 0.
func StaffEventID(c *fiber.Ctx) uint {
	id, _ := c.Locals(eventIDKey).(uint)
	return id
}
