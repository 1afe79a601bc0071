package models

import "time"

// VisitorRequest is the ephemeral shape shared by payment and big-screen
// requests. It is rebuilt from list endpoints and transport messages.
type VisitorRequest struct {
	Code       string    `json:"code"`
	OwnerName  string    `json:"owner_name,omitempty"`
	PhotoCount int       `json:"photo_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// BigScreenRequestRecord lets the poll transport rebuild outstanding
// big-screen requests after a reload.
type BigScreenRequestRecord struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   uint      `gorm:"not null;index"`
	AlbumCode string    `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"index"`
}

// DisplaySlot is the per-event "pending display" slot the big screen polls.
type DisplaySlot struct {
	EventID   uint      `json:"event_id" gorm:"primaryKey;autoIncrement:false"`
	AlbumCode string    `json:"album_code"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DisplaySlotRequest struct {
	AlbumCode string `json:"album_code" validate:"required"`
}

type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}
