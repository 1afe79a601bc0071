package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/pkg/albumclient"
)

type fakeStore struct {
	mu      sync.Mutex
	updates []models.AlbumStatus
	deleted []string
	err     error
}

func (f *fakeStore) UpdateAlbumStatus(_ context.Context, _ string, status models.AlbumStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, status)
	return nil
}

func (f *fakeStore) DeleteAlbum(_ context.Context, code, _ string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.deleted = append(f.deleted, code)
	return 3, nil
}

func TestCanTransition(t *testing.T) {
	var strict models.EventAccessRules
	strict.AlbumTracking.Rules.RequireCompletionBeforePayment = true

	cases := []struct {
		from  models.AlbumStatus
		to    models.AlbumStatus
		rules models.EventAccessRules
		valid bool
	}{
		{models.AlbumStatusInProgress, models.AlbumStatusCompleted, models.EventAccessRules{}, true},
		{models.AlbumStatusInProgress, models.AlbumStatusPaid, models.EventAccessRules{}, true},
		{models.AlbumStatusInProgress, models.AlbumStatusPaid, strict, false},
		{models.AlbumStatusCompleted, models.AlbumStatusPaid, strict, true},
		{models.AlbumStatusCompleted, models.AlbumStatusInProgress, models.EventAccessRules{}, true},
		{models.AlbumStatusPaid, models.AlbumStatusCompleted, models.EventAccessRules{}, false},
		{models.AlbumStatusPaid, models.AlbumStatusInProgress, models.EventAccessRules{}, false},
		{models.AlbumStatusInProgress, models.AlbumStatusInProgress, models.EventAccessRules{}, false},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.valid, CanTransition(tt.from, tt.to, tt.rules), "%s -> %s", tt.from, tt.to)
	}
}

func TestCommanderIssuesWithoutLocalMutation(t *testing.T) {
	store := &fakeStore{}
	c := NewCommander(store, models.EventAccessRules{})
	album := &models.Album{Code: "AB12", Status: models.AlbumStatusInProgress}

	require.NoError(t, c.MarkPaid(context.Background(), album))
	assert.Equal(t, []models.AlbumStatus{models.AlbumStatusPaid}, store.updates)
	assert.Equal(t, models.AlbumStatusInProgress, album.Status)
}

func TestCommanderRejectsInvalidTransition(t *testing.T) {
	store := &fakeStore{}
	c := NewCommander(store, models.EventAccessRules{})
	err := c.MarkCompleted(context.Background(), &models.Album{Code: "AB12", Status: models.AlbumStatusPaid})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, store.updates)
}

func TestCommanderSurfacesStoreErrors(t *testing.T) {
	boom := errors.New("store down")
	c := NewCommander(&fakeStore{err: boom}, models.EventAccessRules{})
	err := c.MarkCompleted(context.Background(), &models.Album{Code: "AB12", Status: models.AlbumStatusInProgress})
	assert.ErrorIs(t, err, boom)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	store := &fakeStore{}
	c := NewCommander(store, models.EventAccessRules{})
	album := &models.Album{Code: "AB12", Photos: make([]models.AlbumPhoto, 3)}

	confirmation := c.PrepareDelete(album)
	assert.Contains(t, confirmation.Message(), "3 photo(s)")

	_, err := c.Delete(context.Background(), confirmation, "1234")
	assert.ErrorIs(t, err, ErrDeleteNotConfirmed)
	assert.Empty(t, store.deleted)

	confirmation.Confirm()
	n, err := c.Delete(context.Background(), confirmation, "1234")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"AB12"}, store.deleted)
}

func TestSetRulesWhileCommandsRun(t *testing.T) {
	store := &fakeStore{}
	c := NewCommander(store, models.EventAccessRules{})

	var strict models.EventAccessRules
	strict.AlbumTracking.Rules.RequireCompletionBeforePayment = true

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				c.SetRules(strict)
			} else {
				c.SetRules(models.EventAccessRules{})
			}
		}
	}()
	go func() {
		defer wg.Done()
		album := &models.Album{Code: "AB12CD34", Status: models.AlbumStatusInProgress}
		for i := 0; i < 200; i++ {
			assert.NoError(t, c.MarkCompleted(context.Background(), album))
		}
	}()
	wg.Wait()

	c.SetRules(strict)
	assert.True(t, c.Rules().AlbumTracking.Rules.RequireCompletionBeforePayment)
	err := c.MarkPaid(context.Background(), &models.Album{Code: "AB12CD34", Status: models.AlbumStatusInProgress})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, store.updates, 200)
}

func TestMarkPaidByCodeSurfacesStoreRefusal(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("album store: %w", albumclient.ErrConflict)}
	err := NewCommander(store, models.EventAccessRules{}).MarkPaidByCode(context.Background(), "AB12CD34")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	store.err = errors.New("connection refused")
	err = NewCommander(store, models.EventAccessRules{}).MarkPaidByCode(context.Background(), "AB12CD34")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
}
