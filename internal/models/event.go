package models

import (
	"time"
)

type Event struct {
	ID              uint             `json:"id" gorm:"primaryKey"`
	Title           string           `json:"title" gorm:"not null"`
	Slug            string           `json:"slug" gorm:"uniqueIndex;not null"`
	StaffPINHash    string           `json:"-" gorm:"type:varchar(255)"`
	RegistrationURL string           `json:"registration_url"`
	Rules           EventAccessRules `json:"rules" gorm:"type:json;serializer:json"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// EventAccessRules mirrors the event settings document the editors write.
// The core only reads it.
type EventAccessRules struct {
	AlbumTracking AlbumTracking  `json:"albumTracking"`
	Rules         VisibilityRule `json:"rules"`
	Branding      Branding       `json:"branding"`
}

type AlbumTracking struct {
	Enabled bool               `json:"enabled"`
	Rules   AlbumTrackingRules `json:"rules"`
}

type AlbumTrackingRules struct {
	MaxPhotosPerAlbum              int  `json:"maxPhotosPerAlbum"`
	RequireStaffApproval           bool `json:"requireStaffApproval"`
	PrintReady                     bool `json:"printReady"`
	RequireCompletionBeforePayment bool `json:"requireCompletionBeforePayment"`
}

type VisibilityRule struct {
	AllowFreePreview        bool `json:"allowFreePreview"`
	BlurOnUnpaidGallery     bool `json:"blurOnUnpaidGallery"`
	UseStripeCodeForPayment bool `json:"useStripeCodeForPayment"`
	EnableQRToPayment       bool `json:"enableQRToPayment"`
}

type Branding struct {
	Watermark string `json:"watermark"`
}

// MaxPhotos returns the configured per-album limit or DefaultMaxPhotos.
func (r EventAccessRules) MaxPhotos() int {
	if r.AlbumTracking.Rules.MaxPhotosPerAlbum > 0 {
		return r.AlbumTracking.Rules.MaxPhotosPerAlbum
	}
	return DefaultMaxPhotos
}

type StaffLoginRequest struct {
	PIN string `json:"pin" validate:"required,min=4,max=12"`
}

type StaffLoginResponse struct {
	Token     string    `json:"token"`
	EventID   uint      `json:"event_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateEventRequest provisions an event; used when bootstrapping a
// deployment.
type CreateEventRequest struct {
	Title           string           `json:"title" validate:"required,max=200"`
	Slug            string           `json:"slug" validate:"required,max=100"`
	StaffPIN        string           `json:"staff_pin" validate:"omitempty,min=4,max=12"`
	RegistrationURL string           `json:"registration_url" validate:"omitempty,url"`
	Rules           EventAccessRules `json:"rules"`
}

// EventInfo is the public slice of an event stations render.
type EventInfo struct {
	ID              uint   `json:"id"`
	Title           string `json:"title"`
	Slug            string `json:"slug"`
	RegistrationURL string `json:"registration_url"`
	Watermark       string `json:"watermark,omitempty"`
}

func (e *Event) Info() EventInfo {
	return EventInfo{
		ID:              e.ID,
		Title:           e.Title,
		Slug:            e.Slug,
		RegistrationURL: e.RegistrationURL,
		Watermark:       e.Rules.Branding.Watermark,
	}
}
