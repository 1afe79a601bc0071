package service

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrAlbumNotFound = errors.New("album not found")
	ErrEventNotFound = errors.New("event not found")
	ErrPhotoNotFound = errors.New("photo not found")
	ErrAlbumFull     = errors.New("album has reached its photo limit")
	ErrAlbumClosed   = errors.New("album no longer accepts photos")
	ErrAlreadyPaid   = errors.New("album is already paid")
	ErrInvalidPIN    = errors.New("invalid staff pin")
	ErrStaffDisabled = errors.New("staff login is not configured for this event")
	ErrEmptyAlbum    = errors.New("album has no photos to show")
)

// notFound maps gorm's missing-row error onto a domain error.
func notFound(err error, domain error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain
	}
	return err
}
