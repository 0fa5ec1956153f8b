package repository

import (
	"context"

	"github.com/smallbiznis/revlens/internal/connection/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, conn *domain.Connection) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sync_connections (
			id, merchant_id, credential_ciphertext, account_name, is_valid, last_sync_status,
			customer_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (merchant_id)
		DO UPDATE SET credential_ciphertext = EXCLUDED.credential_ciphertext,
			account_name = EXCLUDED.account_name,
			is_valid = EXCLUDED.is_valid,
			updated_at = EXCLUDED.updated_at`,
		conn.ID,
		conn.MerchantID,
		conn.CredentialCiphertext,
		conn.AccountName,
		conn.IsValid,
		conn.LastSyncStatus,
		conn.CreatedAt,
		conn.UpdatedAt,
	).Error
}

func (r *repo) FindByMerchant(ctx context.Context, db *gorm.DB, merchantID string) (*domain.Connection, error) {
	var conn domain.Connection
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_id, credential_ciphertext, account_name, is_valid, last_sync_at, last_sync_status,
		   last_sync_error, customer_count, created_at, updated_at
		 FROM sync_connections
		 WHERE merchant_id = ?
		 LIMIT 1`,
		merchantID,
	).Scan(&conn).Error
	if err != nil {
		return nil, err
	}
	if conn.ID == 0 {
		return nil, nil
	}
	return &conn, nil
}

func (r *repo) ListValid(ctx context.Context, db *gorm.DB) ([]domain.Connection, error) {
	var conns []domain.Connection
	err := db.WithContext(ctx).
		Where("is_valid = ?", true).
		Order("merchant_id asc").
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *repo) UpdateSyncState(ctx context.Context, db *gorm.DB, merchantID string, update domain.SyncStateUpdate) (bool, error) {
	values := map[string]interface{}{
		"last_sync_status": update.Status,
		"last_sync_error":  update.LastSyncError,
		"updated_at":       update.UpdatedAt,
	}
	if update.LastSyncAt != nil {
		values["last_sync_at"] = *update.LastSyncAt
	}
	if update.CustomerCount != nil {
		values["customer_count"] = *update.CustomerCount
	}

	res := db.WithContext(ctx).
		Model(&domain.Connection{}).
		Where("merchant_id = ?", merchantID).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
