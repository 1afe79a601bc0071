// Package lifecycle holds the album state machine and the commander that
// issues transitions to the album store. Transitions are never applied
// locally; the next reconciliation poll observes the effect.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/pkg/albumclient"
)

var (
	ErrInvalidStatus      = errors.New("invalid album status")
	ErrInvalidTransition  = errors.New("invalid album transition")
	ErrDeleteNotConfirmed = errors.New("album deletion was not confirmed")
)

var transitionMap = map[models.AlbumStatus][]models.AlbumStatus{
	models.AlbumStatusInProgress: {models.AlbumStatusCompleted, models.AlbumStatusPaid},
	models.AlbumStatusCompleted:  {models.AlbumStatusPaid, models.AlbumStatusInProgress},
}

func ValidStatus(s models.AlbumStatus) bool {
	switch s {
	case models.AlbumStatusInProgress, models.AlbumStatusCompleted, models.AlbumStatusPaid, models.AlbumStatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is allowed under rules. paid is
// terminal short of deletion.
func CanTransition(from, to models.AlbumStatus, rules models.EventAccessRules) bool {
	if from == models.AlbumStatusInProgress && to == models.AlbumStatusPaid &&
		rules.AlbumTracking.Rules.RequireCompletionBeforePayment {
		return false
	}
	for _, allowed := range transitionMap[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Store is the slice of the album store the commander writes through.
type Store interface {
	UpdateAlbumStatus(ctx context.Context, code string, status models.AlbumStatus) error
	DeleteAlbum(ctx context.Context, code, staffPIN string) (int, error)
}

// Commander issues lifecycle commands. Two staff devices issuing the same
// command race with last-write-wins; there is no version token.
type Commander struct {
	store Store

	mu    sync.RWMutex
	rules models.EventAccessRules
}

func NewCommander(store Store, rules models.EventAccessRules) *Commander {
	return &Commander{store: store, rules: rules}
}

// SetRules swaps the rules used by later commands; safe while commands run.
func (c *Commander) SetRules(rules models.EventAccessRules) {
	c.mu.Lock()
	c.rules = rules
	c.mu.Unlock()
}

func (c *Commander) Rules() models.EventAccessRules {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

func (c *Commander) MarkCompleted(ctx context.Context, album *models.Album) error {
	return c.transition(ctx, album, models.AlbumStatusCompleted)
}

func (c *Commander) MarkPaid(ctx context.Context, album *models.Album) error {
	return c.transition(ctx, album, models.AlbumStatusPaid)
}

func (c *Commander) Reopen(ctx context.Context, album *models.Album) error {
	return c.transition(ctx, album, models.AlbumStatusInProgress)
}

// MarkPaidByCode is used when the caller only holds a request, not a full
// snapshot; the store is the judge. A store refusal comes back as
// ErrInvalidTransition.
func (c *Commander) MarkPaidByCode(ctx context.Context, code string) error {
	if err := c.store.UpdateAlbumStatus(ctx, code, models.AlbumStatusPaid); err != nil {
		if errors.Is(err, albumclient.ErrConflict) {
			return fmt.Errorf("%w: album %s cannot be marked paid: %v", ErrInvalidTransition, code, err)
		}
		return fmt.Errorf("mark album %s paid: %w", code, err)
	}
	return nil
}

func (c *Commander) transition(ctx context.Context, album *models.Album, to models.AlbumStatus) error {
	if !CanTransition(album.Status, to, c.Rules()) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, album.Status, to)
	}
	if err := c.store.UpdateAlbumStatus(ctx, album.Code, to); err != nil {
		return fmt.Errorf("update album %s to %s: %w", album.Code, to, err)
	}
	return nil
}

// DeleteConfirmation describes the irreversible cascade to the operator. It
// must be confirmed before Delete will issue the command.
type DeleteConfirmation struct {
	Code       string
	PhotoCount int
	confirmed  bool
}

func (d *DeleteConfirmation) Message() string {
	return fmt.Sprintf("Deleting album %s permanently removes it and its %d photo(s). This cannot be undone.", d.Code, d.PhotoCount)
}

func (d *DeleteConfirmation) Confirm() {
	d.confirmed = true
}

func (d *DeleteConfirmation) Confirmed() bool {
	return d.confirmed
}

func (c *Commander) PrepareDelete(album *models.Album) *DeleteConfirmation {
	return &DeleteConfirmation{Code: album.Code, PhotoCount: len(album.Photos)}
}

// Delete issues the delete command and returns how many photos the store
// removed.
func (c *Commander) Delete(ctx context.Context, confirmation *DeleteConfirmation, staffPIN string) (int, error) {
	if confirmation == nil || !confirmation.Confirmed() {
		return 0, ErrDeleteNotConfirmed
	}
	n, err := c.store.DeleteAlbum(ctx, confirmation.Code, staffPIN)
	if err != nil {
		return 0, fmt.Errorf("delete album %s: %w", confirmation.Code, err)
	}
	return n, nil
}
