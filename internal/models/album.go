package models

import (
	"time"
)

// Album lifecycle status
type AlbumStatus string

const (
	AlbumStatusInProgress AlbumStatus = "in_progress"
	AlbumStatusCompleted  AlbumStatus = "completed"
	AlbumStatusPaid       AlbumStatus = "paid"
	// Kept for rows written by older stations; never produced here.
	AlbumStatusArchived AlbumStatus = "archived"
)

type PaymentStatus string

const (
	PaymentStatusNone      PaymentStatus = "none"
	PaymentStatusRequested PaymentStatus = "requested"
	PaymentStatusPaid      PaymentStatus = "paid"
)

const DefaultMaxPhotos = 5

type Album struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	EventID       uint          `json:"event_id" gorm:"not null;index"`
	Code          string        `json:"code" gorm:"uniqueIndex;size:16;not null"`
	OwnerName     string        `json:"owner_name,omitempty"`
	OwnerEmail    string        `json:"owner_email,omitempty"`
	Status        AlbumStatus   `json:"status" gorm:"not null;default:'in_progress'"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"not null;default:'none'"`
	MaxPhotos     int           `json:"max_photos" gorm:"not null"`
	Photos        []AlbumPhoto  `json:"photos,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// Set when the visitor asks staff to take payment.
	PaymentRequestedAt *time.Time `json:"payment_requested_at,omitempty"`
}

// IsFull reports whether another photo would exceed MaxPhotos.
func (a *Album) IsFull(photoCount int) bool {
	return a.MaxPhotos > 0 && photoCount >= a.MaxPhotos
}

type AlbumPhoto struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	AlbumID      uint      `json:"album_id" gorm:"not null;index"`
	URL          string    `json:"url" gorm:"not null"`
	ThumbnailURL string    `json:"thumbnail_url"`
	StationType  string    `json:"station_type" gorm:"not null"`
	StationID    string    `json:"station_id,omitempty"`
	StorageKey   string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type CreateAlbumRequest struct {
	EventID    uint   `json:"event_id" validate:"required"`
	OwnerName  string `json:"owner_name" validate:"max=120"`
	OwnerEmail string `json:"owner_email" validate:"omitempty,email"`
}

type AddPhotoRequest struct {
	URL          string `json:"url" validate:"required"`
	ThumbnailURL string `json:"thumbnail_url"`
	StationType  string `json:"station_type" validate:"required,station_type"`
	StationID    string `json:"station_id"`
	StorageKey   string `json:"storage_key"`
}

type UpdateStatusRequest struct {
	Status AlbumStatus `json:"status" validate:"required,oneof=in_progress completed paid archived"`
}

// AlbumStatusResponse is the lightweight payload stations poll.
type AlbumStatusResponse struct {
	Code          string        `json:"code"`
	Status        AlbumStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PhotoCount    int           `json:"photo_count"`
	MaxPhotos     int           `json:"max_photos"`
}

type DeleteAlbumResponse struct {
	Code          string `json:"code"`
	PhotosDeleted int    `json:"photos_deleted"`
}

type AlbumStats struct {
	TotalAlbums      int64 `json:"total_albums"`
	CompletedAlbums  int64 `json:"completed_albums"`
	InProgressAlbums int64 `json:"in_progress_albums"`
	PaidAlbums       int64 `json:"paid_albums"`
	PendingPayments  int64 `json:"pending_payments"`
	TotalPhotos      int64 `json:"total_photos"`
}
