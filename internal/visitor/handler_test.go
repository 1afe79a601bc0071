package visitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/access"
	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/internal/station"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

type fakeStationStore struct {
	mu        sync.Mutex
	album     models.Album
	photos    []models.AlbumPhoto
	payments  []string
	bigscreen []string

	// GetAlbum blocks on gate when set
	gate        chan struct{}
	calls       int
	inFlight    int
	maxInFlight int
}

// Codes starting with ZZ are unknown to the store.
func (f *fakeStationStore) GetAlbum(_ context.Context, code string) (*models.Album, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if strings.HasPrefix(code, "ZZ") {
		return nil, errors.New("album not found")
	}
	a := f.album
	a.Code = code
	return &a, nil
}

func (f *fakeStationStore) stats() (calls, maxInFlight int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.maxInFlight
}

func (f *fakeStationStore) GetAlbumPhotos(context.Context, string) ([]models.AlbumPhoto, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AlbumPhoto(nil), f.photos...), nil
}

func (f *fakeStationStore) GetEventRules(context.Context, uint) (models.EventAccessRules, error) {
	return models.EventAccessRules{}, nil
}

func (f *fakeStationStore) AddPhoto(_ context.Context, _ string, req models.AddPhotoRequest) (*models.AlbumPhoto, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := models.AlbumPhoto{ID: req.URL, URL: req.URL, StationType: req.StationType, StationID: req.StationID}
	f.photos = append(f.photos, p)
	return &p, nil
}

func (f *fakeStationStore) RequestAlbumPayment(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, code)
	return nil
}

func (f *fakeStationStore) RequestBigScreen(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bigscreen = append(f.bigscreen, code)
	return nil
}

func newStationApp(t *testing.T, ch notify.Channel, configure ...func(*Options, *fakeStationStore)) (*fiber.App, *Handler, *fakeStationStore) {
	t.Helper()
	store := &fakeStationStore{}
	store.album = models.Album{Code: "AB12CD34", EventID: 1, OwnerName: "Ana", Status: models.AlbumStatusInProgress, MaxPhotos: 2}
	store.photos = []models.AlbumPhoto{{ID: "p1"}}

	opts := Options{
		Store:       store,
		Channel:     ch,
		Role:        access.RoleVisitor,
		StationType: "photobooth",
		StationID:   "booth-1",
		Interval:    time.Hour,
		Validator:   utils.NewValidator(),
		Log:         zap.NewNop(),
	}
	for _, fn := range configure {
		fn(&opts, store)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHandler(ctx, opts)
	app := fiber.New()
	h.Register(app)
	return app, h, store
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandlerWatchesAlbum(t *testing.T) {
	app, h, _ := newStationApp(t, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/albums/ab12cd34", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out models.DataResponse[station.AlbumView]
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &out))
	assert.Equal(t, "AB12CD34", out.Data.Album.Code)
	assert.Len(t, out.Data.Photos, 1)
	assert.Equal(t, 1, h.Watching())

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/albums/AB12CD34/watch", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Zero(t, h.Watching())
}

func TestHandlerUnknownAlbumIsNotWatched(t *testing.T) {
	app, h, _ := newStationApp(t, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/albums/ZZ99ZZ99", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Zero(t, h.Watching())

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/albums/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandlerAddPhotoStampsStation(t *testing.T) {
	app, _, store := newStationApp(t, nil)

	add := func() *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/albums/AB12CD34/photos", strings.NewReader(`{"url":"https://cdn/p.jpg"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp := add()
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, readBody(t, resp))
	require.Len(t, store.photos, 2)
	assert.Equal(t, "photobooth", store.photos[1].StationType)
	assert.Equal(t, "booth-1", store.photos[1].StationID)

	// max_photos is 2
	resp = add()
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestHandlerRequestAnnouncesOnChannel(t *testing.T) {
	ch := notify.NewLocalHub().Channel(notify.DefaultChannelName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := ch.Subscribe(ctx)
	require.NoError(t, err)

	app, _, store := newStationApp(t, ch)
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/albums/AB12CD34/request-bigscreen", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"AB12CD34"}, store.bigscreen)

	select {
	case payload := <-msgs:
		msg, err := notify.ParseMessage(payload)
		require.NoError(t, err)
		assert.Equal(t, notify.TypeBigScreenRequest, msg.Type)
		assert.Equal(t, "AB12CD34", msg.Data.Code)
		assert.Equal(t, "Ana", msg.Data.OwnerName)
		assert.Equal(t, 1, msg.Data.PhotoCount)
	case <-time.After(time.Second):
		t.Fatal("request was not announced")
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/albums/AB12CD34/request-payment", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"AB12CD34"}, store.payments)
}

func TestHandlerFirstLoadIsASingleFetch(t *testing.T) {
	gate := make(chan struct{})
	app, _, store := newStationApp(t, nil, func(_ *Options, s *fakeStationStore) { s.gate = gate })

	done := make(chan int, 1)
	go func() {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/albums/AB12CD34", nil), -1)
		if err != nil {
			done <- 0
			return
		}
		done <- resp.StatusCode
	}()

	require.Eventually(t, func() bool { calls, _ := store.stats(); return calls == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	calls, maxInFlight := store.stats()
	assert.Equal(t, 1, calls, "the request waits on the watcher instead of fetching again")
	assert.Equal(t, 1, maxInFlight)

	close(gate)
	assert.Equal(t, fiber.StatusOK, <-done)
	calls, maxInFlight = store.stats()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, maxInFlight)
}

func TestHandlerExpiresIdleWatchers(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	app, h, _ := newStationApp(t, nil, func(o *Options, _ *fakeStationStore) {
		o.Clock = clk
		o.IdleExpiry = 10 * time.Minute
	})

	get := func(code string) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/albums/"+code, nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	get("AB12CD34")
	clk.Advance(6 * time.Minute)
	get("CD34EF56")

	assert.Zero(t, h.Expire())
	clk.Advance(5 * time.Minute)
	assert.Equal(t, 1, h.Expire())
	assert.Equal(t, 1, h.Watching())

	// reading an album keeps it alive
	get("CD34EF56")
	clk.Advance(9 * time.Minute)
	assert.Zero(t, h.Expire())
}

func TestHandlerCapsWatchers(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	app, h, _ := newStationApp(t, nil, func(o *Options, _ *fakeStationStore) {
		o.Clock = clk
		o.MaxWatchers = 2
	})

	for _, code := range []string{"AAAA1111", "BBBB2222", "CCCC3333"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/albums/"+code, nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		clk.Advance(time.Second)
	}
	assert.Equal(t, 2, h.Watching())
}
