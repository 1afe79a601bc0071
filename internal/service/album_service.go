package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sefazor/ourphotos-kiosk/internal/lifecycle"
	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/internal/repository"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/email"
	"github.com/sefazor/ourphotos-kiosk/pkg/storage"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

// BigScreenRequestTTL bounds how long a big-screen request stays
// outstanding for the poll transport.
const BigScreenRequestTTL = 30 * time.Minute

const codeAttempts = 5

type AlbumService struct {
	db          *gorm.DB
	albumRepo   *repository.AlbumRepository
	photoRepo   *repository.PhotoRepository
	eventRepo   *repository.EventRepository
	requestRepo *repository.RequestRepository
	objects     storage.ObjectStore
	publisher   Publisher
	mailer      Mailer
	clock       clock.Clock
	log         *zap.Logger
}

func NewAlbumService(db *gorm.DB, objects storage.ObjectStore, publisher Publisher, mailer Mailer, clk clock.Clock, log *zap.Logger) *AlbumService {
	if mailer == nil {
		mailer = nopMailer{}
	}
	return &AlbumService{
		db:          db,
		albumRepo:   repository.NewAlbumRepository(db),
		photoRepo:   repository.NewPhotoRepository(db),
		eventRepo:   repository.NewEventRepository(db),
		requestRepo: repository.NewRequestRepository(db),
		objects:     objects,
		publisher:   publisher,
		mailer:      mailer,
		clock:       clk,
		log:         log.Named("albums"),
	}
}

func (s *AlbumService) CreateAlbum(ctx context.Context, req models.CreateAlbumRequest) (*models.Album, error) {
	event, err := s.eventRepo.GetByID(req.EventID)
	if err != nil {
		return nil, notFound(err, ErrEventNotFound)
	}

	code, err := s.newCode()
	if err != nil {
		return nil, err
	}

	album := &models.Album{
		EventID:       event.ID,
		Code:          code,
		OwnerName:     req.OwnerName,
		OwnerEmail:    req.OwnerEmail,
		Status:        models.AlbumStatusInProgress,
		PaymentStatus: models.PaymentStatusNone,
		MaxPhotos:     event.Rules.MaxPhotos(),
	}
	if err := s.albumRepo.Create(album); err != nil {
		return nil, err
	}

	s.log.Info("album created", zap.String("code", code), zap.Uint("event_id", event.ID))
	return album, nil
}

func (s *AlbumService) newCode() (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := utils.GenerateAlbumCode()
		if err != nil {
			return "", err
		}
		exists, err := s.albumRepo.CodeExists(code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique album code")
}

func (s *AlbumService) GetAlbum(ctx context.Context, code string) (*models.Album, error) {
	album, err := s.albumRepo.GetByCode(utils.NormalizeAlbumCode(code))
	if err != nil {
		return nil, notFound(err, ErrAlbumNotFound)
	}
	return album, nil
}

func (s *AlbumService) GetAlbumPhotos(ctx context.Context, code string) ([]models.AlbumPhoto, error) {
	album, err := s.GetAlbum(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.photoRepo.ListByAlbum(album.ID)
}

func (s *AlbumService) GetAlbumStatus(ctx context.Context, code string) (models.AlbumStatusResponse, error) {
	album, err := s.GetAlbum(ctx, code)
	if err != nil {
		return models.AlbumStatusResponse{}, err
	}
	count, err := s.photoRepo.CountByAlbum(album.ID)
	if err != nil {
		return models.AlbumStatusResponse{}, err
	}
	return models.AlbumStatusResponse{
		Code:          album.Code,
		Status:        album.Status,
		PaymentStatus: album.PaymentStatus,
		PhotoCount:    int(count),
		MaxPhotos:     album.MaxPhotos,
	}, nil
}

// AddPhoto appends under a row lock so concurrent stations cannot overfill
// the album. Reaching the limit completes the album.
func (s *AlbumService) AddPhoto(ctx context.Context, code string, req models.AddPhotoRequest) (*models.AlbumPhoto, error) {
	code = utils.NormalizeAlbumCode(code)

	var photo *models.AlbumPhoto
	completed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		albums := s.albumRepo.WithTx(tx)
		photos := s.photoRepo.WithTx(tx)

		album, err := albums.GetByCodeForUpdate(code)
		if err != nil {
			return notFound(err, ErrAlbumNotFound)
		}
		switch album.Status {
		case models.AlbumStatusCompleted, models.AlbumStatusArchived:
			return ErrAlbumClosed
		}

		count, err := photos.CountByAlbum(album.ID)
		if err != nil {
			return err
		}
		if album.IsFull(int(count)) {
			return ErrAlbumFull
		}

		photo = &models.AlbumPhoto{
			ID:           uuid.NewString(),
			AlbumID:      album.ID,
			URL:          req.URL,
			ThumbnailURL: req.ThumbnailURL,
			StationType:  req.StationType,
			StationID:    req.StationID,
			StorageKey:   req.StorageKey,
			CreatedAt:    s.clock.Now(),
		}
		if err := photos.Create(photo); err != nil {
			return err
		}

		if album.IsFull(int(count)+1) && album.Status == models.AlbumStatusInProgress {
			album.Status = models.AlbumStatusCompleted
			completed = true
			return albums.Update(album)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completed {
		s.log.Info("album completed", zap.String("code", code))
	}
	return photo, nil
}

// DeletePhoto removes one photo. A completed album goes back to in_progress
// so the visitor can retake it.
func (s *AlbumService) DeletePhoto(ctx context.Context, code, photoID string) error {
	code = utils.NormalizeAlbumCode(code)

	var storageKey string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		albums := s.albumRepo.WithTx(tx)
		photos := s.photoRepo.WithTx(tx)

		album, err := albums.GetByCodeForUpdate(code)
		if err != nil {
			return notFound(err, ErrAlbumNotFound)
		}
		photo, err := photos.GetByID(album.ID, photoID)
		if err != nil {
			return notFound(err, ErrPhotoNotFound)
		}
		storageKey = photo.StorageKey

		if err := photos.Delete(photo.ID); err != nil {
			return err
		}
		if album.Status == models.AlbumStatusCompleted {
			album.Status = models.AlbumStatusInProgress
			return albums.Update(album)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if storageKey != "" {
		if err := s.objects.Delete(ctx, storageKey); err != nil {
			s.log.Warn("photo object not removed", zap.String("key", storageKey), zap.Error(err))
		}
	}
	return nil
}

// UpdateStatus applies a staff transition. Setting the current status again
// succeeds without change; concurrent writers are last-write-wins.
func (s *AlbumService) UpdateStatus(ctx context.Context, code string, status models.AlbumStatus) (*models.Album, error) {
	if !lifecycle.ValidStatus(status) {
		return nil, lifecycle.ErrInvalidStatus
	}
	album, err := s.GetAlbum(ctx, code)
	if err != nil {
		return nil, err
	}
	if album.Status == status && status != models.AlbumStatusPaid {
		return album, nil
	}

	// marking an already paid album again only settles payment_status
	if status != models.AlbumStatusArchived && album.Status != status {
		event, err := s.eventRepo.GetByID(album.EventID)
		if err != nil {
			return nil, notFound(err, ErrEventNotFound)
		}
		if !lifecycle.CanTransition(album.Status, status, event.Rules) {
			return nil, fmt.Errorf("%w: %s to %s", lifecycle.ErrInvalidTransition, album.Status, status)
		}
	}
	if status == models.AlbumStatusPaid {
		return s.markPaid(ctx, album)
	}

	album.Status = status
	if err := s.albumRepo.Update(album); err != nil {
		return nil, err
	}
	s.log.Info("album status updated", zap.String("code", album.Code), zap.String("status", string(status)))
	return album, nil
}

// MarkPaid records a settled payment. It ignores completion rules because
// the money has already moved.
func (s *AlbumService) MarkPaid(ctx context.Context, code string) (*models.Album, error) {
	album, err := s.GetAlbum(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.markPaid(ctx, album)
}

func (s *AlbumService) markPaid(ctx context.Context, album *models.Album) (*models.Album, error) {
	if album.Status == models.AlbumStatusPaid && album.PaymentStatus == models.PaymentStatusPaid {
		return album, nil
	}
	if album.Status == models.AlbumStatusArchived {
		return nil, fmt.Errorf("%w: %s to %s", lifecycle.ErrInvalidTransition, album.Status, models.AlbumStatusPaid)
	}

	album.Status = models.AlbumStatusPaid
	album.PaymentStatus = models.PaymentStatusPaid
	if err := s.albumRepo.Update(album); err != nil {
		return nil, err
	}
	s.log.Info("album paid", zap.String("code", album.Code))

	if album.OwnerEmail != "" {
		title := ""
		if event, err := s.eventRepo.GetByID(album.EventID); err == nil {
			title = event.Title
		}
		err := s.mailer.SendAlbumReady(email.AlbumReady{
			To:         album.OwnerEmail,
			OwnerName:  album.OwnerName,
			EventTitle: title,
			Code:       album.Code,
		})
		if err != nil {
			s.log.Warn("album ready email failed", zap.String("code", album.Code), zap.Error(err))
		}
	}
	return album, nil
}

// DeleteAlbum removes the album with its photos, pending requests and any
// display slot showing it. It returns how many photos were removed.
func (s *AlbumService) DeleteAlbum(ctx context.Context, code string) (int, error) {
	code = utils.NormalizeAlbumCode(code)

	var (
		eventID     uint
		keys        []string
		removed     int
		slotCleared bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		albums := s.albumRepo.WithTx(tx)
		photos := s.photoRepo.WithTx(tx)
		requests := s.requestRepo.WithTx(tx)

		album, err := albums.GetByCodeForUpdate(code)
		if err != nil {
			return notFound(err, ErrAlbumNotFound)
		}
		eventID = album.EventID

		list, err := photos.ListByAlbum(album.ID)
		if err != nil {
			return err
		}
		for _, p := range list {
			if p.StorageKey != "" {
				keys = append(keys, p.StorageKey)
			}
		}

		n, err := photos.DeleteByAlbum(album.ID)
		if err != nil {
			return err
		}
		removed = int(n)

		if err := requests.DeleteBigScreenRequests(album.EventID, code); err != nil {
			return err
		}
		slot, err := requests.GetDisplaySlot(album.EventID)
		if err != nil {
			return err
		}
		if slot != nil && slot.AlbumCode == code {
			if err := requests.ClearDisplaySlot(album.EventID); err != nil {
				return err
			}
			slotCleared = true
		}
		return albums.Delete(album.ID)
	})
	if err != nil {
		return 0, err
	}

	if len(keys) > 0 {
		if err := s.objects.DeleteMany(ctx, keys); err != nil {
			s.log.Warn("album objects not fully removed", zap.String("code", code), zap.Error(err))
		}
	}
	if slotCleared {
		s.publish(ctx, eventID, notify.Message{Type: notify.TypeDisplayClear})
	}

	s.log.Info("album deleted", zap.String("code", code), zap.Int("photos", removed))
	return removed, nil
}

// RequestPayment flags the album for staff and pushes a payment_request.
func (s *AlbumService) RequestPayment(ctx context.Context, code string) error {
	album, err := s.GetAlbum(ctx, code)
	if err != nil {
		return err
	}
	if album.PaymentStatus == models.PaymentStatusPaid || album.Status == models.AlbumStatusPaid {
		return ErrAlreadyPaid
	}

	now := s.clock.Now()
	album.PaymentStatus = models.PaymentStatusRequested
	album.PaymentRequestedAt = &now
	if err := s.albumRepo.Update(album); err != nil {
		return err
	}

	count, err := s.photoRepo.CountByAlbum(album.ID)
	if err != nil {
		return err
	}
	s.publish(ctx, album.EventID, notify.NewRequestMessage(notify.TypePaymentRequest, models.VisitorRequest{
		Code:       album.Code,
		OwnerName:  album.OwnerName,
		PhotoCount: int(count),
		CreatedAt:  now,
	}))
	return nil
}

// RequestBigScreen records the request for the poll transport and pushes a
// bigscreen_request.
func (s *AlbumService) RequestBigScreen(ctx context.Context, code string) error {
	album, err := s.GetAlbum(ctx, code)
	if err != nil {
		return err
	}
	count, err := s.photoRepo.CountByAlbum(album.ID)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrEmptyAlbum
	}

	now := s.clock.Now()
	record := &models.BigScreenRequestRecord{EventID: album.EventID, AlbumCode: album.Code, CreatedAt: now}
	if err := s.requestRepo.CreateBigScreenRequest(record); err != nil {
		return err
	}

	s.publish(ctx, album.EventID, notify.NewRequestMessage(notify.TypeBigScreenRequest, models.VisitorRequest{
		Code:       album.Code,
		OwnerName:  album.OwnerName,
		PhotoCount: int(count),
		CreatedAt:  now,
	}))
	return nil
}

// publish is best effort; stations reconcile through the poll transport.
func (s *AlbumService) publish(ctx context.Context, eventID uint, msg notify.Message) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventID, msg); err != nil {
		s.log.Warn("push failed", zap.String("type", string(msg.Type)), zap.Uint("event_id", eventID), zap.Error(err))
	}
}

func (s *AlbumService) ListPaymentRequests(ctx context.Context, eventID uint) ([]models.VisitorRequest, error) {
	albums, err := s.albumRepo.ListPaymentRequested(eventID)
	if err != nil {
		return nil, err
	}
	counts, err := s.photoRepo.CountByAlbums(albumIDs(albums))
	if err != nil {
		return nil, err
	}

	out := make([]models.VisitorRequest, 0, len(albums))
	for _, a := range albums {
		requestedAt := a.UpdatedAt
		if a.PaymentRequestedAt != nil {
			requestedAt = *a.PaymentRequestedAt
		}
		out = append(out, models.VisitorRequest{
			Code:       a.Code,
			OwnerName:  a.OwnerName,
			PhotoCount: counts[a.ID],
			CreatedAt:  requestedAt,
		})
	}
	return out, nil
}

// ListBigScreenRequests returns one entry per album requested within
// BigScreenRequestTTL, stamped with its latest request.
func (s *AlbumService) ListBigScreenRequests(ctx context.Context, eventID uint) ([]models.VisitorRequest, error) {
	records, err := s.requestRepo.ListBigScreenRequests(eventID, s.clock.Now().Add(-BigScreenRequestTTL))
	if err != nil {
		return nil, err
	}

	latest := make(map[string]time.Time)
	var order []string
	for _, rec := range records {
		if _, seen := latest[rec.AlbumCode]; !seen {
			order = append(order, rec.AlbumCode)
		}
		latest[rec.AlbumCode] = rec.CreatedAt
	}

	albums, err := s.albumRepo.ListByCodes(order)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]models.Album, len(albums))
	for _, a := range albums {
		byCode[a.Code] = a
	}
	counts, err := s.photoRepo.CountByAlbums(albumIDs(albums))
	if err != nil {
		return nil, err
	}

	out := make([]models.VisitorRequest, 0, len(order))
	for _, code := range order {
		a, ok := byCode[code]
		if !ok {
			continue
		}
		out = append(out, models.VisitorRequest{
			Code:       code,
			OwnerName:  a.OwnerName,
			PhotoCount: counts[a.ID],
			CreatedAt:  latest[code],
		})
	}
	return out, nil
}

func (s *AlbumService) ListAlbums(ctx context.Context, eventID uint) ([]models.Album, error) {
	return s.albumRepo.ListByEvent(eventID)
}

func (s *AlbumService) Stats(ctx context.Context, eventID uint) (models.AlbumStats, error) {
	var stats models.AlbumStats
	var err error

	if stats.TotalAlbums, err = s.albumRepo.CountByEvent(eventID); err != nil {
		return stats, err
	}
	if stats.CompletedAlbums, err = s.albumRepo.CountByStatus(eventID, models.AlbumStatusCompleted); err != nil {
		return stats, err
	}
	if stats.InProgressAlbums, err = s.albumRepo.CountByStatus(eventID, models.AlbumStatusInProgress); err != nil {
		return stats, err
	}
	if stats.PaidAlbums, err = s.albumRepo.CountPaid(eventID); err != nil {
		return stats, err
	}
	if stats.PendingPayments, err = s.albumRepo.CountPaymentRequested(eventID); err != nil {
		return stats, err
	}
	if stats.TotalPhotos, err = s.photoRepo.CountByEvent(eventID); err != nil {
		return stats, err
	}
	return stats, nil
}

func albumIDs(albums []models.Album) []uint {
	ids := make([]uint, 0, len(albums))
	for _, a := range albums {
		ids = append(ids, a.ID)
	}
	return ids
}
