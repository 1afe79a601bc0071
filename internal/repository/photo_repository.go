package repository

import (
	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"gorm.io/gorm"
)

type PhotoRepository struct {
	db *gorm.DB
}

func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{
		db: db,
	}
}

func (r *PhotoRepository) WithTx(tx *gorm.DB) *PhotoRepository {
	return &PhotoRepository{db: tx}
}

func (r *PhotoRepository) Create(photo *models.AlbumPhoto) error {
	return r.db.Create(photo).Error
}

func (r *PhotoRepository) GetByID(albumID uint, id string) (*models.AlbumPhoto, error) {
	var photo models.AlbumPhoto
	err := r.db.Where("album_id = ? AND id = ?", albumID, id).First(&photo).Error
	if err != nil {
		return nil, err
	}
	return &photo, nil
}

// ListByAlbum returns photos in capture order.
func (r *PhotoRepository) ListByAlbum(albumID uint) ([]models.AlbumPhoto, error) {
	photos := []models.AlbumPhoto{}
	err := r.db.Where("album_id = ?", albumID).
		Order("created_at ASC, id ASC").
		Find(&photos).Error
	return photos, err
}

func (r *PhotoRepository) CountByAlbum(albumID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.AlbumPhoto{}).Where("album_id = ?", albumID).Count(&count).Error
	return count, err
}

// CountByAlbums maps album ID to photo count; albums without photos are absent.
func (r *PhotoRepository) CountByAlbums(albumIDs []uint) (map[uint]int, error) {
	counts := make(map[uint]int, len(albumIDs))
	if len(albumIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		AlbumID uint
		Total   int
	}
	err := r.db.Model(&models.AlbumPhoto{}).
		Select("album_id, COUNT(*) AS total").
		Where("album_id IN ?", albumIDs).
		Group("album_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.AlbumID] = row.Total
	}
	return counts, nil
}

func (r *PhotoRepository) CountByEvent(eventID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.AlbumPhoto{}).
		Joins("JOIN albums ON albums.id = album_photos.album_id").
		Where("albums.event_id = ?", eventID).
		Count(&count).Error
	return count, err
}

func (r *PhotoRepository) Delete(id string) error {
	return r.db.Delete(&models.AlbumPhoto{}, "id = ?", id).Error
}

func (r *PhotoRepository) DeleteByAlbum(albumID uint) (int64, error) {
	result := r.db.Where("album_id = ?", albumID).Delete(&models.AlbumPhoto{})
	return result.RowsAffected, result.Error
}
