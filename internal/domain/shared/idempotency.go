package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers which audit records were already published so
// a re-run over the same inputs does not publish them twice.
type IdempotencyStore interface {
	// Claim marks key as published for ttl.
	// Returns true if the key was newly claimed, false if it was already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a claim, e.g. after the publish it guarded failed.
	Release(ctx context.Context, key string) error

	// IsClaimed reports whether key is currently held.
	IsClaimed(ctx context.Context, key string) (bool, error)

	// Close releases resources held by the store.
	Close() error
}
