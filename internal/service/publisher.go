package service

import (
	"context"

	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/pkg/email"
)

// Publisher pushes a message to every station listening on an event.
type Publisher interface {
	Publish(ctx context.Context, eventID uint, msg notify.Message) error
}

type Mailer interface {
	SendAlbumReady(msg email.AlbumReady) error
}

type nopMailer struct{}

func (nopMailer) SendAlbumReady(email.AlbumReady) error { return nil }
