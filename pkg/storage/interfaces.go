package storage

import "context"

// ObjectStore removes photo objects when albums or photos are deleted.
// Stations upload directly; the store only ever deletes.
type ObjectStore interface {
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
}

// NopStore is used when no bucket is configured.
type NopStore struct{}

func (NopStore) Delete(context.Context, string) error { return nil }

func (NopStore) DeleteMany(context.Context, []string) error { return nil }
