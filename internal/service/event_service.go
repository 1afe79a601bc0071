package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/repository"
	"github.com/sefazor/ourphotos-kiosk/pkg/bcrypt"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/jwt"
)

type EventService struct {
	eventRepo *repository.EventRepository
	issuer    *jwt.Issuer
	clock     clock.Clock
	log       *zap.Logger
}

func NewEventService(eventRepo *repository.EventRepository, issuer *jwt.Issuer, clk clock.Clock, log *zap.Logger) *EventService {
	return &EventService{
		eventRepo: eventRepo,
		issuer:    issuer,
		clock:     clk,
		log:       log.Named("events"),
	}
}

// EnsureEvent creates the event for slug unless it already exists. The
// staff PIN is hashed before storage.
func (s *EventService) EnsureEvent(ctx context.Context, req models.CreateEventRequest) (*models.Event, error) {
	existing, err := s.eventRepo.GetBySlug(req.Slug)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	event := &models.Event{
		Title:           req.Title,
		Slug:            req.Slug,
		RegistrationURL: req.RegistrationURL,
		Rules:           req.Rules,
	}
	if req.StaffPIN != "" {
		hash, err := bcrypt.HashPIN(req.StaffPIN)
		if err != nil {
			return nil, err
		}
		event.StaffPINHash = hash
	}

	created, err := s.eventRepo.Create(event)
	if err != nil {
		return nil, err
	}
	s.log.Info("event created", zap.Uint("event_id", created.ID), zap.String("slug", created.Slug))
	return created, nil
}

func (s *EventService) GetEvent(ctx context.Context, eventID uint) (*models.Event, error) {
	event, err := s.eventRepo.GetByID(eventID)
	if err != nil {
		return nil, notFound(err, ErrEventNotFound)
	}
	return event, nil
}

func (s *EventService) GetRules(ctx context.Context, eventID uint) (models.EventAccessRules, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return models.EventAccessRules{}, err
	}
	return event.Rules, nil
}

func (s *EventService) VerifyStaffPIN(ctx context.Context, eventID uint, pin string) error {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.StaffPINHash == "" {
		return ErrStaffDisabled
	}
	if err := bcrypt.ComparePIN(event.StaffPINHash, pin); err != nil {
		return ErrInvalidPIN
	}
	return nil
}

// StaffLogin exchanges the event PIN for a staff token scoped to the event.
func (s *EventService) StaffLogin(ctx context.Context, eventID uint, pin string) (models.StaffLoginResponse, error) {
	if err := s.VerifyStaffPIN(ctx, eventID, pin); err != nil {
		s.log.Info("staff login rejected", zap.Uint("event_id", eventID), zap.Error(err))
		return models.StaffLoginResponse{}, err
	}

	token, expiresAt, err := s.issuer.GenerateToken(eventID, s.clock.Now())
	if err != nil {
		return models.StaffLoginResponse{}, err
	}
	return models.StaffLoginResponse{Token: token, EventID: eventID, ExpiresAt: expiresAt}, nil
}
