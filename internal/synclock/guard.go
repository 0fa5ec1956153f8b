// Package synclock keeps at most one sync running per merchant.
package synclock

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrSyncInProgress = errors.New("sync_in_progress")
	ErrInvalidKey     = errors.New("sync_lock_key_empty")
)

// Guard hands out exclusive per-merchant leases.
type Guard interface {
	// Acquire returns ErrSyncInProgress when another holder owns the merchant.
	Acquire(ctx context.Context, merchantID string) (Lease, error)
}

// Lease is released exactly once by its holder. Release is a no-op when the
// lease already expired and was taken over by someone else.
type Lease interface {
	Release(ctx context.Context) error
}

const defaultTTL = 15 * time.Minute

func normalizeKey(merchantID string) (string, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return "", ErrInvalidKey
	}
	return merchantID, nil
}
