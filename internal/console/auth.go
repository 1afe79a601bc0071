package console

import (
	"context"
	"fmt"
	"time"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/kv"
)

// tokenSlack renews a cached token this long before it expires.
const tokenSlack = 5 * time.Minute

type StaffAuthenticator interface {
	StaffLogin(ctx context.Context, eventID uint, pin string) (models.StaffLoginResponse, error)
	SetToken(token string)
}

// EnsureStaffToken reuses the token cached for the event on this device, or
// logs in with the staff PIN and caches the new one.
func EnsureStaffToken(ctx context.Context, auth StaffAuthenticator, store kv.Store, clk clock.Clock, eventID uint, pin string) error {
	key := kv.StaffAuthKey(eventID)

	var cached models.StaffLoginResponse
	found, err := store.Get(key, &cached)
	if err != nil {
		return fmt.Errorf("read cached staff token: %w", err)
	}
	if found && cached.Token != "" && clk.Now().Add(tokenSlack).Before(cached.ExpiresAt) {
		auth.SetToken(cached.Token)
		return nil
	}

	resp, err := auth.StaffLogin(ctx, eventID, pin)
	if err != nil {
		return fmt.Errorf("staff login for event %d: %w", eventID, err)
	}
	auth.SetToken(resp.Token)
	if err := store.Set(key, resp); err != nil {
		return fmt.Errorf("cache staff token: %w", err)
	}
	return nil
}
