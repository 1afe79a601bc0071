package repository

import (
	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AlbumRepository struct {
	db *gorm.DB
}

func NewAlbumRepository(db *gorm.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

func (r *AlbumRepository) WithTx(tx *gorm.DB) *AlbumRepository {
	return &AlbumRepository{db: tx}
}

func (r *AlbumRepository) Create(album *models.Album) error {
	return r.db.Create(album).Error
}

func (r *AlbumRepository) GetByCode(code string) (*models.Album, error) {
	var album models.Album
	err := r.db.Where("code = ?", code).First(&album).Error
	if err != nil {
		return nil, err
	}
	return &album, nil
}

// GetByCodeForUpdate locks the album row for the rest of the transaction.
func (r *AlbumRepository) GetByCodeForUpdate(code string) (*models.Album, error) {
	var album models.Album
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		First(&album).Error
	if err != nil {
		return nil, err
	}
	return &album, nil
}

func (r *AlbumRepository) CodeExists(code string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Album{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *AlbumRepository) ListByCodes(codes []string) ([]models.Album, error) {
	albums := []models.Album{}
	if len(codes) == 0 {
		return albums, nil
	}
	err := r.db.Where("code IN ?", codes).Find(&albums).Error
	return albums, err
}

func (r *AlbumRepository) Update(album *models.Album) error {
	return r.db.Omit(clause.Associations).Save(album).Error
}

func (r *AlbumRepository) Delete(id uint) error {
	return r.db.Delete(&models.Album{}, id).Error
}

// ListPaymentRequested returns albums waiting for staff to take payment,
// oldest request first.
func (r *AlbumRepository) ListPaymentRequested(eventID uint) ([]models.Album, error) {
	albums := []models.Album{}
	err := r.db.Where("event_id = ? AND payment_status = ? AND status <> ?",
		eventID, models.PaymentStatusRequested, models.AlbumStatusPaid).
		Order("payment_requested_at ASC").
		Find(&albums).Error
	return albums, err
}

func (r *AlbumRepository) CountByStatus(eventID uint, status models.AlbumStatus) (int64, error) {
	var count int64
	err := r.db.Model(&models.Album{}).
		Where("event_id = ? AND status = ?", eventID, status).
		Count(&count).Error
	return count, err
}

func (r *AlbumRepository) CountByEvent(eventID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Album{}).Where("event_id = ?", eventID).Count(&count).Error
	return count, err
}

func (r *AlbumRepository) CountPaymentRequested(eventID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Album{}).
		Where("event_id = ? AND payment_status = ? AND status <> ?",
			eventID, models.PaymentStatusRequested, models.AlbumStatusPaid).
		Count(&count).Error
	return count, err
}

func (r *AlbumRepository) CountPaid(eventID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Album{}).
		Where("event_id = ? AND payment_status = ?", eventID, models.PaymentStatusPaid).
		Count(&count).Error
	return count, err
}

// ListByEvent returns the event's albums, newest first.
func (r *AlbumRepository) ListByEvent(eventID uint) ([]models.Album, error) {
	albums := []models.Album{}
	err := r.db.Where("event_id = ?", eventID).Order("created_at DESC").Find(&albums).Error
	return albums, err
}
