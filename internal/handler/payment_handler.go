package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/service"
)

type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (stripe.Event, error)
}

type PaymentHandler struct {
	paymentService *service.PaymentService
	verifier       WebhookVerifier
	log            *zap.Logger
}

func NewPaymentHandler(paymentService *service.PaymentService, verifier WebhookVerifier, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		verifier:       verifier,
		log:            log,
	}
}

func (h *PaymentHandler) CreateCheckout(c *fiber.Ctx) error {
	session, err := h.paymentService.CreateAlbumCheckout(c.UserContext(), c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(models.SuccessResponse(session, ""))
}

func (h *PaymentHandler) HandleStripeWebhook(c *fiber.Ctx) error {
	event, err := h.verifier.ParseWebhook(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		h.log.Warn("webhook rejected", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Webhook error: " + err.Error()))
	}

	if err := h.paymentService.HandleStripeWebhook(c.UserContext(), &event); err != nil {
		h.log.Error("webhook handling failed", zap.String("type", string(event.Type)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse(err.Error()))
	}

	return c.SendStatus(fiber.StatusOK)
}
