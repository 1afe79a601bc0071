package repository

import (
	"errors"
	"time"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestRepository stores the short-lived big-screen request records and
// the per-event display slot.
type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) WithTx(tx *gorm.DB) *RequestRepository {
	return &RequestRepository{db: tx}
}

func (r *RequestRepository) CreateBigScreenRequest(record *models.BigScreenRequestRecord) error {
	return r.db.Create(record).Error
}

// ListBigScreenRequests returns records created at or after since, oldest first.
func (r *RequestRepository) ListBigScreenRequests(eventID uint, since time.Time) ([]models.BigScreenRequestRecord, error) {
	records := []models.BigScreenRequestRecord{}
	err := r.db.Where("event_id = ? AND created_at >= ?", eventID, since).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

func (r *RequestRepository) DeleteBigScreenRequests(eventID uint, code string) error {
	return r.db.Where("event_id = ? AND album_code = ?", eventID, code).
		Delete(&models.BigScreenRequestRecord{}).Error
}

func (r *RequestRepository) PruneBigScreenRequests(before time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", before).Delete(&models.BigScreenRequestRecord{})
	return result.RowsAffected, result.Error
}

// GetDisplaySlot returns nil when nothing is pending.
func (r *RequestRepository) GetDisplaySlot(eventID uint) (*models.DisplaySlot, error) {
	var slot models.DisplaySlot
	err := r.db.Where("event_id = ?", eventID).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *RequestRepository) SetDisplaySlot(slot *models.DisplaySlot) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"album_code", "updated_at"}),
	}).Create(slot).Error
}

func (r *RequestRepository) ClearDisplaySlot(eventID uint) error {
	return r.db.Where("event_id = ?", eventID).Delete(&models.DisplaySlot{}).Error
}
