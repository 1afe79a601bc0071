package service

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/pkg/payment"
)

// CheckoutProvider is the slice of Stripe the payment service needs.
type CheckoutProvider interface {
	CreateAlbumCheckout(req payment.AlbumCheckout) (*stripe.CheckoutSession, error)
}

type PaymentService struct {
	provider CheckoutProvider
	albums   *AlbumService
	events   *EventService
	log      *zap.Logger
}

func NewPaymentService(provider CheckoutProvider, albums *AlbumService, events *EventService, log *zap.Logger) *PaymentService {
	return &PaymentService{
		provider: provider,
		albums:   albums,
		events:   events,
		log:      log.Named("payments"),
	}
}

func (s *PaymentService) CreateAlbumCheckout(ctx context.Context, code string) (*models.CheckoutResponse, error) {
	album, err := s.albums.GetAlbum(ctx, code)
	if err != nil {
		return nil, err
	}
	if album.PaymentStatus == models.PaymentStatusPaid || album.Status == models.AlbumStatusPaid {
		return nil, ErrAlreadyPaid
	}

	status, err := s.albums.GetAlbumStatus(ctx, album.Code)
	if err != nil {
		return nil, err
	}
	title := ""
	if event, err := s.events.GetEvent(ctx, album.EventID); err == nil {
		title = event.Title
	}

	session, err := s.provider.CreateAlbumCheckout(payment.AlbumCheckout{
		Code:       album.Code,
		OwnerEmail: album.OwnerEmail,
		EventTitle: title,
		PhotoCount: status.PhotoCount,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("checkout created", zap.String("code", album.Code), zap.String("session", session.ID))
	return &models.CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}

// HandleStripeWebhook marks the album paid when its checkout completes.
// Sessions without an album code belong to someone else and are ignored.
func (s *PaymentService) HandleStripeWebhook(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return err
		}

		code := session.Metadata[payment.MetadataAlbumCode]
		if code == "" {
			return nil
		}
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			s.log.Info("checkout completed unpaid", zap.String("code", code), zap.String("status", string(session.PaymentStatus)))
			return nil
		}

		_, err := s.albums.MarkPaid(ctx, code)
		return err

	case "checkout.session.expired", "checkout.session.async_payment_failed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return err
		}
		s.log.Info("checkout not paid",
			zap.String("type", string(event.Type)),
			zap.String("code", session.Metadata[payment.MetadataAlbumCode]))
	}

	return nil
}
