package station

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/access"
	"github.com/sefazor/ourphotos-kiosk/internal/models"
)

// AlbumSource is the read side of the album store a viewer station needs.
type AlbumSource interface {
	GetAlbum(ctx context.Context, code string) (*models.Album, error)
	GetAlbumPhotos(ctx context.Context, code string) ([]models.AlbumPhoto, error)
	GetEventRules(ctx context.Context, eventID uint) (models.EventAccessRules, error)
}

// AlbumView is one reconciled snapshot of an album as a viewer station shows it.
type AlbumView struct {
	Album        models.Album            `json:"album"`
	Photos       []models.AlbumPhoto     `json:"photos"`
	Rules        models.EventAccessRules `json:"rules"`
	Decision     access.Decision         `json:"decision"`
	Presentation access.Presentation     `json:"presentation"`
	FetchedAt    time.Time               `json:"fetched_at"`
}

// AlbumWatcher re-pulls one album on every tick and republishes the evaluated
// view. Lifecycle commands issued elsewhere show up here on the next tick.
type AlbumWatcher struct {
	src      AlbumSource
	code     string
	role     access.Role
	lock     access.LockPolicy
	interval time.Duration
	log      *zap.Logger

	sched *Scheduler

	mu        sync.RWMutex
	view      *AlbumView
	lastErr   error
	observers map[int]func(AlbumView)
	nextID    int

	// closed after the first reconciliation settles
	ready     chan struct{}
	readyOnce sync.Once
}

func NewAlbumWatcher(src AlbumSource, code string, role access.Role, interval time.Duration, log *zap.Logger) *AlbumWatcher {
	if log == nil {
		log = zap.NewNop()
	}
	w := &AlbumWatcher{
		src:       src,
		code:      code,
		role:      role,
		lock:      access.ViewerLockPolicy,
		interval:  interval,
		log:       log,
		observers: make(map[int]func(AlbumView)),
		ready:     make(chan struct{}),
	}
	w.sched = NewScheduler("album-watch:"+code, interval, w.Refresh, log)
	return w
}

// WithLockPolicy swaps the lock policy, e.g. for the visitor gallery.
func (w *AlbumWatcher) WithLockPolicy(lock access.LockPolicy) *AlbumWatcher {
	w.lock = lock
	return w
}

func (w *AlbumWatcher) Run(ctx context.Context) {
	w.sched.Run(ctx)
}

// TryRefresh reconciles through the watcher's in-flight guard. It reports
// false when a reconciliation was already running.
func (w *AlbumWatcher) TryRefresh(ctx context.Context) bool {
	return w.sched.TryRun(ctx)
}

// First waits for the first reconciliation to settle and returns its view or
// the latest error. It never fetches on its own.
func (w *AlbumWatcher) First(ctx context.Context) (AlbumView, error) {
	select {
	case <-ctx.Done():
		return AlbumView{}, ctx.Err()
	case <-w.ready:
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.view != nil {
		return *w.view, nil
	}
	if w.lastErr != nil {
		return AlbumView{}, w.lastErr
	}
	return AlbumView{}, context.Canceled
}

// Refresh performs one reconciliation. Results arriving after ctx is done are
// discarded. Callers other than the scheduler bypass the in-flight guard.
func (w *AlbumWatcher) Refresh(ctx context.Context) error {
	err := w.refresh(ctx)
	if err != nil {
		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()
	}
	w.readyOnce.Do(func() { close(w.ready) })
	return err
}

func (w *AlbumWatcher) refresh(ctx context.Context) error {
	album, err := w.src.GetAlbum(ctx, w.code)
	if err != nil {
		return fmt.Errorf("get album %s: %w", w.code, err)
	}
	photos, err := w.src.GetAlbumPhotos(ctx, w.code)
	if err != nil {
		return fmt.Errorf("get photos %s: %w", w.code, err)
	}
	rules, err := w.src.GetEventRules(ctx, album.EventID)
	if err != nil {
		return fmt.Errorf("get rules for event %d: %w", album.EventID, err)
	}
	if ctx.Err() != nil {
		return nil
	}

	decision := access.EvaluateWith(access.SnapshotOf(album), rules, w.role, w.lock)
	view := AlbumView{
		Album:        *album,
		Photos:       photos,
		Rules:        rules,
		Decision:     decision,
		Presentation: decision.Presentation(),
		FetchedAt:    time.Now(),
	}

	w.mu.Lock()
	w.view = &view
	w.lastErr = nil
	observers := make([]func(AlbumView), 0, len(w.observers))
	for _, fn := range w.observers {
		observers = append(observers, fn)
	}
	w.mu.Unlock()

	for _, fn := range observers {
		fn(view)
	}
	return nil
}

// View returns the latest reconciled view, if any.
func (w *AlbumWatcher) View() (AlbumView, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.view == nil {
		return AlbumView{}, false
	}
	return *w.view, true
}

func (w *AlbumWatcher) Subscribe(fn func(AlbumView)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.observers[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.observers, id)
		w.mu.Unlock()
	}
}
