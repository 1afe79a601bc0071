package handler

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/middleware"
	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/internal/repository"
	"github.com/sefazor/ourphotos-kiosk/internal/service"
	"github.com/sefazor/ourphotos-kiosk/pkg/albumclient"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/database"
	"github.com/sefazor/ourphotos-kiosk/pkg/jwt"
	"github.com/sefazor/ourphotos-kiosk/pkg/payment"
	"github.com/sefazor/ourphotos-kiosk/pkg/storage"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, uint, notify.Message) error { return nil }

type stubCheckout struct{}

func (stubCheckout) CreateAlbumCheckout(req payment.AlbumCheckout) (*stripe.CheckoutSession, error) {
	return &stripe.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/" + req.Code}, nil
}

type rejectWebhooks struct{}

func (rejectWebhooks) ParseWebhook([]byte, string) (stripe.Event, error) {
	return stripe.Event{}, assert.AnError
}

// startStore serves the real store API over sqlite and returns a client
// pointed at it plus the seeded event.
func startStore(t *testing.T) (*albumclient.Client, *models.Event) {
	t.Helper()
	db, err := database.NewSQLite(":memory:")
	require.NoError(t, err)

	log := zap.NewNop()
	clk := clock.Real{}
	issuer := jwt.NewIssuer("test-secret", time.Hour)

	events := service.NewEventService(repository.NewEventRepository(db), issuer, clk, log)
	albums := service.NewAlbumService(db, storage.NopStore{}, nopPublisher{}, nil, clk, log)
	display := service.NewDisplayService(db, nopPublisher{}, clk, log)
	payments := service.NewPaymentService(stubCheckout{}, albums, events, log)

	var rules models.EventAccessRules
	rules.AlbumTracking.Rules.MaxPhotosPerAlbum = 2
	event, err := events.EnsureEvent(context.Background(), models.CreateEventRequest{
		Title: "Summer Fair", Slug: "summer-fair", StaffPIN: "1234", Rules: rules,
	})
	require.NoError(t, err)

	validator := utils.NewValidator()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	Routes{
		Albums:    NewAlbumHandler(albums, events, validator),
		Events:    NewEventHandler(events, albums, display, validator),
		Payments:  NewPaymentHandler(payments, rejectWebhooks{}, log),
		StaffAuth: middleware.StaffAuth(issuer, log),
	}.Register(app.Group("/api"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return albumclient.New("http://"+ln.Addr().String(), 2*time.Second), event
}

func TestStoreVisitorFlow(t *testing.T) {
	client, event := startStore(t)
	ctx := context.Background()

	album, err := client.CreateAlbum(ctx, models.CreateAlbumRequest{EventID: event.ID, OwnerName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, 2, album.MaxPhotos)

	for i := 0; i < 2; i++ {
		_, err := client.AddPhoto(ctx, album.Code, models.AddPhotoRequest{URL: "https://cdn/p.jpg", StationType: "mirror"})
		require.NoError(t, err)
	}
	_, err = client.AddPhoto(ctx, album.Code, models.AddPhotoRequest{URL: "https://cdn/p.jpg", StationType: "mirror"})
	var apiErr *albumclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, fiber.StatusConflict, apiErr.Status)

	status, err := client.GetAlbumStatus(ctx, album.Code)
	require.NoError(t, err)
	assert.Equal(t, models.AlbumStatusCompleted, status.Status)
	assert.Equal(t, 2, status.PhotoCount)

	_, err = client.AddPhoto(ctx, album.Code, models.AddPhotoRequest{URL: "x", StationType: "toaster"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, fiber.StatusBadRequest, apiErr.Status)

	url, err := client.CreateAlbumCheckout(ctx, album.Code)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/"+album.Code, url)

	require.NoError(t, client.RequestAlbumPayment(ctx, album.Code))
	require.NoError(t, client.RequestBigScreen(ctx, album.Code))

	info, err := client.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summer Fair", info.Title)

	_, err = client.GetAlbum(ctx, "ZZZZZZZZ")
	assert.ErrorIs(t, err, albumclient.ErrNotFound)
}

func TestStoreStaffFlow(t *testing.T) {
	client, event := startStore(t)
	ctx := context.Background()

	album, err := client.CreateAlbum(ctx, models.CreateAlbumRequest{EventID: event.ID, OwnerName: "Ana"})
	require.NoError(t, err)
	_, err = client.AddPhoto(ctx, album.Code, models.AddPhotoRequest{URL: "https://cdn/p.jpg", StationType: "photobooth"})
	require.NoError(t, err)
	require.NoError(t, client.RequestAlbumPayment(ctx, album.Code))
	require.NoError(t, client.RequestBigScreen(ctx, album.Code))

	_, err = client.GetPaymentRequests(ctx, event.ID)
	assert.ErrorIs(t, err, albumclient.ErrUnauthorized)

	_, err = client.StaffLogin(ctx, event.ID, "9999")
	assert.ErrorIs(t, err, albumclient.ErrUnauthorized)
	_, err = client.StaffLogin(ctx, event.ID, "1234")
	require.NoError(t, err)

	payments, err := client.GetPaymentRequests(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "Ana", payments[0].OwnerName)
	assert.Equal(t, 1, payments[0].PhotoCount)

	screens, err := client.GetBigScreenRequests(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, screens, 1)

	require.NoError(t, client.SetDisplaySlot(ctx, event.ID, album.Code))
	slot, err := client.GetDisplaySlot(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, album.Code, slot.AlbumCode)

	screens, err = client.GetBigScreenRequests(ctx, event.ID)
	require.NoError(t, err)
	assert.Empty(t, screens)

	require.NoError(t, client.UpdateAlbumStatus(ctx, album.Code, models.AlbumStatusPaid))
	payments, err = client.GetPaymentRequests(ctx, event.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	// a token for one event cannot read another
	_, err = client.GetPaymentRequests(ctx, event.ID+1)
	assert.ErrorIs(t, err, albumclient.ErrUnauthorized)

	_, err = client.DeleteAlbum(ctx, album.Code, "0000")
	assert.ErrorIs(t, err, albumclient.ErrUnauthorized)
	removed, err := client.DeleteAlbum(ctx, album.Code, "1234")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	slot, err = client.GetDisplaySlot(ctx, event.ID)
	require.NoError(t, err)
	assert.Nil(t, slot)

	stats, err := client.GetEventStats(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalAlbums)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app := fiber.New()
	app.Post("/webhook", NewPaymentHandler(nil, rejectWebhooks{}, zap.NewNop()).HandleStripeWebhook)

	req, err := http.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}"))
	require.NoError(t, err)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
