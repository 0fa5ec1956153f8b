package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingapidomain "github.com/smallbiznis/revlens/internal/billingapi/domain"
	"github.com/smallbiznis/revlens/internal/clock"
	"github.com/smallbiznis/revlens/internal/config"
	"github.com/smallbiznis/revlens/internal/connection/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Cfg     config.Config
	Repo    domain.Repository
	Clients billingapidomain.Factory
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	clients billingapidomain.Factory
	vault   *Vault
}

func New(p Params) (domain.Service, error) {
	vault, err := NewVault(p.Cfg.CredentialSecret)
	if err != nil {
		return nil, fmt.Errorf("credential vault: %w", err)
	}
	if len(vault.key) == 0 {
		p.Log.Warn("connection.vault_disabled", zap.String("reason", "CREDENTIAL_SECRET is empty"))
	}

	return &Service{
		db:      p.DB,
		log:     p.Log.Named("connection.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		clients: p.Clients,
		vault:   vault,
	}, nil
}

func (s *Service) Validate(ctx context.Context, apiKey string) (domain.Validation, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return domain.Validation{}, domain.ErrInvalidCredential
	}

	client, err := s.clients.New(apiKey)
	if err != nil {
		return domain.Validation{}, s.credentialErr(err)
	}

	account, err := client.RetrieveAccount(ctx)
	if err != nil {
		return domain.Validation{}, s.credentialErr(err)
	}
	page, err := client.ListCustomers(ctx, billingapidomain.CustomerPageRequest{Limit: 1})
	if err != nil {
		return domain.Validation{}, s.credentialErr(err)
	}

	name := strings.TrimSpace(account.DisplayName)
	if name == "" {
		name = domain.DefaultAccountName
	}
	return domain.Validation{
		Valid:        true,
		AccountName:  name,
		HasCustomers: len(page.Data) > 0,
	}, nil
}

func (s *Service) Store(ctx context.Context, merchantID, apiKey string) (*domain.Connection, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return nil, domain.ErrInvalidMerchant
	}

	validation, err := s.Validate(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	sealed, err := s.vault.Seal(strings.TrimSpace(apiKey))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	conn := &domain.Connection{
		ID:                   s.genID.Generate(),
		MerchantID:           merchantID,
		CredentialCiphertext: sealed,
		AccountName:          validation.AccountName,
		IsValid:              true,
		LastSyncStatus:       domain.SyncStatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Upsert(ctx, s.db, conn); err != nil {
		return nil, err
	}

	s.log.Info("connection.stored",
		zap.String("merchant_id", merchantID),
		zap.String("account_name", validation.AccountName),
	)
	return s.repo.FindByMerchant(ctx, s.db, merchantID)
}

func (s *Service) Get(ctx context.Context, merchantID string) (*domain.Connection, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return nil, domain.ErrInvalidMerchant
	}
	conn, err := s.repo.FindByMerchant(ctx, s.db, merchantID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.ErrNotFound
	}
	return conn, nil
}

func (s *Service) ListValid(ctx context.Context) ([]domain.Connection, error) {
	return s.repo.ListValid(ctx, s.db)
}

func (s *Service) Credential(_ context.Context, conn *domain.Connection) (string, error) {
	if conn == nil {
		return "", domain.ErrNotFound
	}
	return s.vault.Open(conn.CredentialCiphertext)
}

func (s *Service) MarkRunning(ctx context.Context, merchantID string) error {
	return s.update(ctx, merchantID, domain.SyncStateUpdate{Status: domain.SyncStatusRunning})
}

func (s *Service) MarkCompleted(ctx context.Context, merchantID string, at time.Time, customerCount int64) error {
	at = at.UTC()
	return s.update(ctx, merchantID, domain.SyncStateUpdate{
		Status:        domain.SyncStatusCompleted,
		LastSyncAt:    &at,
		CustomerCount: &customerCount,
	})
}

// MarkFailed records the failure message verbatim.
func (s *Service) MarkFailed(ctx context.Context, merchantID string, cause error) error {
	msg := "sync failed"
	if cause != nil {
		msg = cause.Error()
	}
	return s.update(ctx, merchantID, domain.SyncStateUpdate{
		Status:        domain.SyncStatusFailed,
		LastSyncError: &msg,
	})
}

func (s *Service) update(ctx context.Context, merchantID string, update domain.SyncStateUpdate) error {
	update.UpdatedAt = s.clock.Now()
	ok, err := s.repo.UpdateSyncState(ctx, s.db, merchantID, update)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

// credentialErr folds provider rejections of the key into ErrInvalidCredential
// and passes transport failures through.
func (s *Service) credentialErr(err error) error {
	switch {
	case errors.Is(err, billingapidomain.ErrAuthentication),
		errors.Is(err, billingapidomain.ErrMissingCredential),
		errors.Is(err, billingapidomain.ErrInvalidRequest):
		return fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	default:
		return err
	}
}
