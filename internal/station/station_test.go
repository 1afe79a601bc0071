package station

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/access"
	"github.com/sefazor/ourphotos-kiosk/internal/models"
)

func TestSchedulerSkipsWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var runs int32
	s := NewScheduler("slow", time.Hour, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		<-release
		return nil
	}, zap.NewNop())

	done := make(chan bool)
	go func() { done <- s.TryRun(context.Background()) }()
	require.Eventually(t, s.InFlight, time.Second, time.Millisecond)

	assert.False(t, s.TryRun(context.Background()), "overlapping run must be skipped")
	close(release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	assert.False(t, s.InFlight())
}

func TestSchedulerContinuesAfterErrors(t *testing.T) {
	var runs int32
	s := NewScheduler("flaky", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("store unavailable")
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
}

type fakeAlbumStore struct {
	mu     sync.Mutex
	album  models.Album
	photos []models.AlbumPhoto
	rules  models.EventAccessRules
	adds   int
}

func (f *fakeAlbumStore) GetAlbum(_ context.Context, code string) (*models.Album, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code != f.album.Code {
		return nil, errors.New("album not found")
	}
	a := f.album
	return &a, nil
}

func (f *fakeAlbumStore) GetAlbumPhotos(context.Context, string) ([]models.AlbumPhoto, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AlbumPhoto(nil), f.photos...), nil
}

func (f *fakeAlbumStore) GetEventRules(context.Context, uint) (models.EventAccessRules, error) {
	return f.rules, nil
}

func (f *fakeAlbumStore) AddPhoto(_ context.Context, _ string, req models.AddPhotoRequest) (*models.AlbumPhoto, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds++
	p := models.AlbumPhoto{ID: req.URL, URL: req.URL, StationType: req.StationType}
	f.photos = append(f.photos, p)
	return &p, nil
}

func TestAlbumWatcherPublishesEvaluatedView(t *testing.T) {
	store := &fakeAlbumStore{
		album: models.Album{Code: "AB12CD34", EventID: 1, Status: models.AlbumStatusInProgress, PaymentStatus: models.PaymentStatusRequested, MaxPhotos: 5},
		photos: []models.AlbumPhoto{{ID: "p1"}},
	}
	store.rules.AlbumTracking.Rules.PrintReady = true
	store.rules.Rules.AllowFreePreview = true

	w := NewAlbumWatcher(store, "AB12CD34", access.RoleVisitor, time.Second, zap.NewNop())
	var got []AlbumView
	unsubscribe := w.Subscribe(func(v AlbumView) { got = append(got, v) })
	defer unsubscribe()

	require.NoError(t, w.Refresh(context.Background()))
	require.Len(t, got, 1)
	// viewer policy honors free preview
	assert.False(t, got[0].Decision.IsLocked)
	assert.True(t, got[0].Decision.RequiresPayment)
	assert.Equal(t, access.ModeBlockedStack, got[0].Presentation.Mode)

	// a paid transition made by staff elsewhere is observed on the next tick
	store.mu.Lock()
	store.album.Status = models.AlbumStatusPaid
	store.album.PaymentStatus = models.PaymentStatusPaid
	store.mu.Unlock()
	require.NoError(t, w.Refresh(context.Background()))

	view, ok := w.View()
	require.True(t, ok)
	assert.False(t, view.Decision.RequiresPayment)
	assert.Equal(t, access.ModeGrid, view.Presentation.Mode)
}

func TestAlbumWatcherGalleryPolicyLocksVisitor(t *testing.T) {
	store := &fakeAlbumStore{album: models.Album{Code: "AB12CD34", Status: models.AlbumStatusCompleted, PaymentStatus: models.PaymentStatusNone}}
	store.rules.AlbumTracking.Rules.PrintReady = true
	store.rules.Rules.AllowFreePreview = true

	w := NewAlbumWatcher(store, "AB12CD34", access.RoleVisitor, time.Second, nil).WithLockPolicy(access.GalleryLockPolicy)
	require.NoError(t, w.Refresh(context.Background()))
	view, _ := w.View()
	assert.True(t, view.Decision.IsLocked)
}

func TestAlbumWatcherDiscardsCancelledRefresh(t *testing.T) {
	store := &fakeAlbumStore{album: models.Album{Code: "AB12CD34"}}
	w := NewAlbumWatcher(store, "AB12CD34", access.RoleStaff, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Refresh(ctx))
	_, ok := w.View()
	assert.False(t, ok)
}

func TestAlbumWatcherFirstWaitsForScheduledRun(t *testing.T) {
	store := &fakeAlbumStore{album: models.Album{Code: "AB12CD34", Status: models.AlbumStatusInProgress}}
	w := NewAlbumWatcher(store, "AB12CD34", access.RoleStaff, time.Hour, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err := w.First(ctx)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded, "First never fetches by itself")

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go w.Run(runCtx)
	view, err := w.First(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AB12CD34", view.Album.Code)
}

func TestAlbumWatcherFirstReportsLoadError(t *testing.T) {
	store := &fakeAlbumStore{album: models.Album{Code: "AB12CD34"}}
	w := NewAlbumWatcher(store, "ZZ99ZZ99", access.RoleStaff, time.Hour, nil)

	assert.True(t, w.TryRefresh(context.Background()))
	_, err := w.First(context.Background())
	assert.ErrorContains(t, err, "album not found")
}

func TestPhotoAppenderChecksCapacity(t *testing.T) {
	store := &fakeAlbumStore{album: models.Album{Code: "AB12CD34", Status: models.AlbumStatusInProgress, MaxPhotos: 2}}
	a := NewPhotoAppender(store)
	req := models.AddPhotoRequest{URL: "u", StationType: "photobooth"}

	_, err := a.Append(context.Background(), "AB12CD34", req)
	require.NoError(t, err)
	_, err = a.Append(context.Background(), "AB12CD34", req)
	require.NoError(t, err)

	_, err = a.Append(context.Background(), "AB12CD34", req)
	assert.ErrorIs(t, err, ErrAlbumFull)
	assert.Equal(t, 2, store.adds)
}

func TestPhotoAppenderRejectsClosedAlbum(t *testing.T) {
	store := &fakeAlbumStore{album: models.Album{Code: "AB12CD34", Status: models.AlbumStatusCompleted, MaxPhotos: 5}}
	_, err := NewPhotoAppender(store).Append(context.Background(), "AB12CD34", models.AddPhotoRequest{URL: "u", StationType: "photobooth"})
	assert.ErrorIs(t, err, ErrAlbumClosed)
	assert.Zero(t, store.adds)
}
