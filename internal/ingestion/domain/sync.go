package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	billingapidomain "github.com/smallbiznis/revlens/internal/billingapi/domain"
)

// Trigger names what started a sync run.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerSweep  Trigger = "sweep"
)

var (
	ErrInvalidMerchant = errors.New("invalid_merchant")
	ErrMissingClient   = errors.New("missing_billing_client")
	ErrCooldown        = errors.New("sync_cooldown")
)

// SyncRequest drives one pass of the coordinator. The sync is incremental
// when FullSync is false and LastSyncAt is set.
type SyncRequest struct {
	MerchantID string
	Client     billingapidomain.Client
	FullSync   bool
	LastSyncAt *time.Time
}

func (r SyncRequest) Incremental() bool {
	return !r.FullSync && r.LastSyncAt != nil
}

// SyncResult counts the records stored by a sync. On failure the counts
// cover what was stored before the error and Error carries its message.
type SyncResult struct {
	CustomersCount     int    `json:"customers"`
	SubscriptionsCount int    `json:"subscriptions"`
	EventsCount        int    `json:"events"`
	Error              string `json:"error,omitempty"`
}

// RunRequest asks the runner to sync a merchant. A non-empty APIKey replaces
// the stored credential before the sync starts.
type RunRequest struct {
	MerchantID string
	APIKey     string
	FullSync   bool
	Trigger    Trigger
}

// Runner serializes syncs per merchant and refreshes the analytics after a
// successful one.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (SyncResult, error)
}

// CooldownError rejects a manual incremental sync requested too soon after
// the previous one.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("sync_cooldown: retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}

// RetryAfterSeconds rounds up so clients never retry early.
func (e *CooldownError) RetryAfterSeconds() int64 {
	return int64(math.Ceil(e.RetryAfter.Seconds()))
}
