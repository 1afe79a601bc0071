package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/internal/repository"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

// DisplayService owns the per-event pending display slot the big screen
// follows.
type DisplayService struct {
	db          *gorm.DB
	albumRepo   *repository.AlbumRepository
	photoRepo   *repository.PhotoRepository
	requestRepo *repository.RequestRepository
	publisher   Publisher
	clock       clock.Clock
	log         *zap.Logger
}

func NewDisplayService(db *gorm.DB, publisher Publisher, clk clock.Clock, log *zap.Logger) *DisplayService {
	return &DisplayService{
		db:          db,
		albumRepo:   repository.NewAlbumRepository(db),
		photoRepo:   repository.NewPhotoRepository(db),
		requestRepo: repository.NewRequestRepository(db),
		publisher:   publisher,
		clock:       clk,
		log:         log.Named("display"),
	}
}

// GetSlot returns nil when nothing is pending.
func (s *DisplayService) GetSlot(ctx context.Context, eventID uint) (*models.DisplaySlot, error) {
	return s.requestRepo.GetDisplaySlot(eventID)
}

// Show points the slot at an album and answers its outstanding big-screen
// requests, then pushes display_show.
func (s *DisplayService) Show(ctx context.Context, eventID uint, code string) (*models.DisplaySlot, error) {
	code = utils.NormalizeAlbumCode(code)
	album, err := s.albumRepo.GetByCode(code)
	if err != nil {
		return nil, notFound(err, ErrAlbumNotFound)
	}
	if album.EventID != eventID {
		return nil, ErrAlbumNotFound
	}
	count, err := s.photoRepo.CountByAlbum(album.ID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrEmptyAlbum
	}

	slot := &models.DisplaySlot{EventID: eventID, AlbumCode: code, UpdatedAt: s.clock.Now()}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := s.requestRepo.WithTx(tx)
		if err := requests.SetDisplaySlot(slot); err != nil {
			return err
		}
		return requests.DeleteBigScreenRequests(eventID, code)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventID, notify.Message{Type: notify.TypeDisplayShow, Data: notify.Data{
		Code:       code,
		OwnerName:  album.OwnerName,
		PhotoCount: int(count),
		CreatedAt:  slot.UpdatedAt,
	}})
	s.log.Info("display slot set", zap.Uint("event_id", eventID), zap.String("code", code))
	return slot, nil
}

func (s *DisplayService) Clear(ctx context.Context, eventID uint) error {
	if err := s.requestRepo.ClearDisplaySlot(eventID); err != nil {
		return err
	}
	s.publish(ctx, eventID, notify.Message{Type: notify.TypeDisplayClear, Data: notify.Data{CreatedAt: s.clock.Now()}})
	s.log.Info("display slot cleared", zap.Uint("event_id", eventID))
	return nil
}

func (s *DisplayService) publish(ctx context.Context, eventID uint, msg notify.Message) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventID, msg); err != nil {
		s.log.Warn("push failed", zap.String("type", string(msg.Type)), zap.Uint("event_id", eventID), zap.Error(err))
	}
}
