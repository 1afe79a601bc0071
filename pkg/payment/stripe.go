package payment

import (
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/sefazor/ourphotos-kiosk/internal/config"
)

// MetadataAlbumCode ties a checkout session back to its album.
const MetadataAlbumCode = "album_code"

type StripeService struct {
	cfg config.StripeConfig
}

func NewStripeService(cfg config.StripeConfig) *StripeService {
	stripe.Key = cfg.SecretKey
	return &StripeService{
		cfg: cfg,
	}
}

type AlbumCheckout struct {
	Code       string
	OwnerEmail string
	EventTitle string
	PhotoCount int
}

// CreateAlbumCheckout opens a hosted checkout for one album at the
// configured price. Success and cancel URLs get the album code substituted.
func (s *StripeService) CreateAlbumCheckout(req AlbumCheckout) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.cfg.Currency),
					UnitAmount: stripe.Int64(s.cfg.AlbumPriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(productName(req.EventTitle)),
						Description: stripe.String(fmt.Sprintf("Album %s, %d photos", req.Code, req.PhotoCount)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(withCode(s.cfg.SuccessURL, req.Code)),
		CancelURL:  stripe.String(withCode(s.cfg.CancelURL, req.Code)),
	}
	if req.OwnerEmail != "" {
		params.CustomerEmail = stripe.String(req.OwnerEmail)
	}
	params.AddMetadata(MetadataAlbumCode, req.Code)

	return session.New(params)
}

// ParseWebhook verifies the Stripe-Signature header against the webhook secret.
func (s *StripeService) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
}

func productName(eventTitle string) string {
	if eventTitle == "" {
		return "Photo album"
	}
	return eventTitle + " photo album"
}

func withCode(url, code string) string {
	return strings.ReplaceAll(url, "{ALBUM_CODE}", code)
}
