package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
)

var (
	ErrAlbumFull   = errors.New("album has reached its maximum number of photos")
	ErrAlbumClosed = errors.New("album no longer accepts photos")
)

type PhotoStore interface {
	GetAlbum(ctx context.Context, code string) (*models.Album, error)
	GetAlbumPhotos(ctx context.Context, code string) ([]models.AlbumPhoto, error)
	AddPhoto(ctx context.Context, code string, req models.AddPhotoRequest) (*models.AlbumPhoto, error)
}

// PhotoAppender checks capacity before uploading a capture. The store
// enforces the same limit again; two stations racing for the last slot are
// settled there.
type PhotoAppender struct {
	store PhotoStore
}

func NewPhotoAppender(store PhotoStore) *PhotoAppender {
	return &PhotoAppender{store: store}
}

func (a *PhotoAppender) Append(ctx context.Context, code string, req models.AddPhotoRequest) (*models.AlbumPhoto, error) {
	album, err := a.store.GetAlbum(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get album %s: %w", code, err)
	}
	switch album.Status {
	case models.AlbumStatusCompleted, models.AlbumStatusArchived:
		return nil, fmt.Errorf("%w: %s is %s", ErrAlbumClosed, code, album.Status)
	}

	photos, err := a.store.GetAlbumPhotos(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get photos %s: %w", code, err)
	}
	if album.IsFull(len(photos)) {
		return nil, fmt.Errorf("%w: %d/%d", ErrAlbumFull, len(photos), album.MaxPhotos)
	}

	photo, err := a.store.AddPhoto(ctx, code, req)
	if err != nil {
		return nil, fmt.Errorf("add photo to %s: %w", code, err)
	}
	return photo, nil
}
