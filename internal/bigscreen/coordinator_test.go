package bigscreen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/kv"
)

type fakeLoader struct {
	mu    sync.Mutex
	slot  *models.DisplaySlot
	loads int
	// loads block on gate when set
	gate chan struct{}
}

func (f *fakeLoader) GetAlbumPhotos(_ context.Context, code string) ([]models.AlbumPhoto, error) {
	f.mu.Lock()
	f.loads++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	switch code {
	case "EMPTY000":
		return nil, nil
	case "MISSING0":
		return nil, errors.New("album not found")
	}
	photos := make([]models.AlbumPhoto, 3)
	for i := range photos {
		photos[i] = models.AlbumPhoto{ID: fmt.Sprintf("%s-%d", code, i)}
	}
	return photos, nil
}

func (f *fakeLoader) GetDisplaySlot(context.Context, uint) (*models.DisplaySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slot == nil {
		return nil, nil
	}
	s := *f.slot
	return &s, nil
}

func (f *fakeLoader) setSlot(code string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code == "" {
		f.slot = nil
		return
	}
	f.slot = &models.DisplaySlot{EventID: 7, AlbumCode: code, UpdatedAt: at}
}

var start = time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)

func newCoordinator(t *testing.T, store kv.Store) (*Coordinator, *fakeLoader, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(start)
	loader := &fakeLoader{}
	return NewCoordinator(7, loader, store, clk, DefaultConfig(), zap.NewNop()), loader, clk
}

func TestCoordinatorSlideshowWraps(t *testing.T) {
	c, _, clk := newCoordinator(t, kv.NewMemoryStore())
	assert.Equal(t, StateIdle, c.Snapshot().State)

	require.NoError(t, c.Show(context.Background(), "AB12CD34"))
	snap := c.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, 0, snap.Index)
	assert.True(t, snap.Fading)

	var indexes []int
	for i := 0; i < 3; i++ {
		clk.Advance(5 * time.Second)
		c.Tick(clk.Now())
		snap := c.Snapshot()
		assert.True(t, snap.Fading, "cross-fade right after a slide change")
		indexes = append(indexes, snap.Index)
		// keep the show alive
		require.NoError(t, c.Show(context.Background(), "AB12CD34"))
	}
	assert.Equal(t, []int{1, 2, 0}, indexes)

	clk.Advance(time.Second)
	c.Tick(clk.Now())
	assert.False(t, c.Snapshot().Fading)
}

func TestCoordinatorIdleTimeout(t *testing.T) {
	store := kv.NewMemoryStore()
	c, _, clk := newCoordinator(t, store)
	require.NoError(t, c.Show(context.Background(), "AB12CD34"))

	var pending pendingDisplay
	found, err := store.Get(kv.PendingDisplayKey(7), &pending)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "AB12CD34", pending.Code)

	clk.Advance(29 * time.Second)
	c.Tick(clk.Now())
	assert.Equal(t, StateActive, c.Snapshot().State)

	clk.Advance(time.Second)
	c.Tick(clk.Now())
	assert.Equal(t, StateIdle, c.Snapshot().State)

	found, err = store.Get(kv.PendingDisplayKey(7), &pending)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCoordinatorNewCommandResetsTimer(t *testing.T) {
	c, _, clk := newCoordinator(t, kv.NewMemoryStore())
	require.NoError(t, c.Show(context.Background(), "AB12CD34"))

	clk.Advance(20 * time.Second)
	c.Tick(clk.Now())
	require.NoError(t, c.Show(context.Background(), "EF56GH78"))
	snap := c.Snapshot()
	assert.Equal(t, "EF56GH78", snap.AlbumCode)
	assert.Equal(t, 0, snap.Index)

	clk.Advance(20 * time.Second)
	c.Tick(clk.Now())
	assert.Equal(t, StateActive, c.Snapshot().State)
}

func TestCoordinatorClearAndRefresh(t *testing.T) {
	c, _, _ := newCoordinator(t, kv.NewMemoryStore())
	var states []State
	c.Subscribe(func(s Snapshot) { states = append(states, s.State) })

	require.NoError(t, c.Show(context.Background(), "AB12CD34"))
	c.Clear()
	require.NoError(t, c.Show(context.Background(), "AB12CD34"))
	c.Refresh()
	c.Refresh()

	assert.Equal(t, []State{StateActive, StateIdle, StateActive, StateIdle}, states)
}

func TestCoordinatorRejectsEmptyAlbum(t *testing.T) {
	c, _, _ := newCoordinator(t, kv.NewMemoryStore())
	assert.ErrorIs(t, c.Show(context.Background(), "EMPTY000"), ErrEmptyAlbum)
	assert.Error(t, c.Show(context.Background(), "MISSING0"))
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestCoordinatorBusCommands(t *testing.T) {
	c, _, _ := newCoordinator(t, kv.NewMemoryStore())

	c.HandleEvent(notify.Event{Delivery: notify.Delivery{Message: notify.Message{Type: notify.TypeDisplayShow, Data: notify.Data{Code: "AB12CD34"}}}})
	require.Eventually(t, func() bool { return c.Snapshot().AlbumCode == "AB12CD34" }, time.Second, 5*time.Millisecond)

	c.HandleEvent(notify.Event{Delivery: notify.Delivery{Message: notify.Message{Type: notify.TypeBigScreenRequest, Data: notify.Data{Code: "EF56GH78"}}}})
	assert.Equal(t, "AB12CD34", c.Snapshot().AlbumCode, "requests are for staff, not the screen")

	c.HandleEvent(notify.Event{Delivery: notify.Delivery{Message: notify.Message{Type: notify.TypeDisplayClear}}})
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestCoordinatorBusShowDoesNotBlockDispatch(t *testing.T) {
	c, loader, _ := newCoordinator(t, kv.NewMemoryStore())
	gate := make(chan struct{})
	loader.gate = gate

	returned := make(chan struct{})
	go func() {
		c.HandleEvent(notify.Event{Delivery: notify.Delivery{Message: notify.Message{Type: notify.TypeDisplayShow, Data: notify.Data{Code: "AB12CD34"}}}})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("HandleEvent waited for the photo load")
	}

	// a clear issued while the show is still loading wins
	c.HandleEvent(notify.Event{Delivery: notify.Delivery{Message: notify.Message{Type: notify.TypeDisplayClear}}})
	close(gate)
	require.Eventually(t, func() bool {
		loader.mu.Lock()
		defer loader.mu.Unlock()
		return loader.loads == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestCoordinatorLaterShowWins(t *testing.T) {
	c, loader, _ := newCoordinator(t, kv.NewMemoryStore())
	gate := make(chan struct{})
	loader.gate = gate

	c.HandleEvent(notify.Event{Delivery: notify.Delivery{Message: notify.Message{Type: notify.TypeDisplayShow, Data: notify.Data{Code: "AB12CD34"}}}})
	c.HandleEvent(notify.Event{Delivery: notify.Delivery{Message: notify.Message{Type: notify.TypeDisplayShow, Data: notify.Data{Code: "EF56GH78"}}}})
	close(gate)

	require.Eventually(t, func() bool { return c.Snapshot().AlbumCode == "EF56GH78" }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "EF56GH78", c.Snapshot().AlbumCode)
}

func TestCoordinatorSlotPoll(t *testing.T) {
	c, loader, clk := newCoordinator(t, kv.NewMemoryStore())
	ctx := context.Background()

	// a stale slot from before startup is not replayed
	loader.setSlot("OLD00000", start.Add(-time.Hour))
	require.NoError(t, c.PollSlot(ctx, loader))
	assert.Equal(t, StateIdle, c.Snapshot().State)

	clk.Advance(3 * time.Second)
	loader.setSlot("AB12CD34", clk.Now())
	require.NoError(t, c.PollSlot(ctx, loader))
	assert.Equal(t, "AB12CD34", c.Snapshot().AlbumCode)

	// the same slot value is not a new command, so the show times out
	for i := 0; i < 10; i++ {
		clk.Advance(3 * time.Second)
		require.NoError(t, c.PollSlot(ctx, loader))
		c.Tick(clk.Now())
	}
	assert.Equal(t, StateIdle, c.Snapshot().State)

	// staff resend of the same album bumps updated_at
	loader.setSlot("AB12CD34", clk.Now())
	require.NoError(t, c.PollSlot(ctx, loader))
	assert.Equal(t, StateActive, c.Snapshot().State)

	loader.setSlot("", time.Time{})
	require.NoError(t, c.PollSlot(ctx, loader))
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestCoordinatorFreshSlotOnStartup(t *testing.T) {
	c, loader, _ := newCoordinator(t, kv.NewMemoryStore())
	loader.setSlot("AB12CD34", start.Add(-5*time.Second))
	require.NoError(t, c.PollSlot(context.Background(), loader))
	assert.Equal(t, StateActive, c.Snapshot().State)
}

func TestCoordinatorRestore(t *testing.T) {
	store := kv.NewMemoryStore()
	c, _, _ := newCoordinator(t, store)
	require.NoError(t, c.Show(context.Background(), "AB12CD34"))

	restarted, _, clk := newCoordinator(t, store)
	clk.Advance(10 * time.Second)
	require.NoError(t, restarted.Restore(context.Background()))
	assert.Equal(t, "AB12CD34", restarted.Snapshot().AlbumCode)

	stale, _, clk := newCoordinator(t, store)
	clk.Advance(time.Minute)
	require.NoError(t, stale.Restore(context.Background()))
	assert.Equal(t, StateIdle, stale.Snapshot().State)
}

func TestHandler(t *testing.T) {
	c, _, _ := newCoordinator(t, kv.NewMemoryStore())
	app := fiber.New()
	NewHandler(c, Branding{Title: "Summer Gala", RegistrationURL: "https://kiosk.example.com/gala/registration"}, 128).Register(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/qr.png", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/show/ab12cd34", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "AB12CD34", c.Snapshot().AlbumCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/show/EMPTY000", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/show/bad", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/clear", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, StateIdle, c.Snapshot().State)
}
