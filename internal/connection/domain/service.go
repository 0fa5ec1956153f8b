package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, conn *Connection) error
	FindByMerchant(ctx context.Context, db *gorm.DB, merchantID string) (*Connection, error)
	ListValid(ctx context.Context, db *gorm.DB) ([]Connection, error)
	UpdateSyncState(ctx context.Context, db *gorm.DB, merchantID string, update SyncStateUpdate) (bool, error)
}

// SyncStateUpdate is applied to the connection as a whole. Nil pointers
// leave the column untouched, except LastSyncError which is always written.
type SyncStateUpdate struct {
	Status        SyncStatus
	LastSyncAt    *time.Time
	LastSyncError *string
	CustomerCount *int64
	UpdatedAt     time.Time
}

type Service interface {
	// Validate checks a credential against the provider without storing it.
	Validate(ctx context.Context, apiKey string) (Validation, error)
	// Store validates and seals the credential for the merchant.
	Store(ctx context.Context, merchantID, apiKey string) (*Connection, error)
	Get(ctx context.Context, merchantID string) (*Connection, error)
	ListValid(ctx context.Context) ([]Connection, error)
	// Credential opens the merchant's stored credential.
	Credential(ctx context.Context, conn *Connection) (string, error)

	MarkRunning(ctx context.Context, merchantID string) error
	MarkCompleted(ctx context.Context, merchantID string, at time.Time, customerCount int64) error
	MarkFailed(ctx context.Context, merchantID string, cause error) error
}

var (
	ErrInvalidMerchant      = errors.New("invalid_merchant")
	ErrInvalidCredential    = errors.New("invalid_credential")
	ErrNotFound             = errors.New("not_found")
	ErrEncryptionKeyMissing = errors.New("encryption_key_missing")
	ErrCorruptCredential    = errors.New("corrupt_credential")
)
