package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingapidomain "github.com/smallbiznis/revlens/internal/billingapi/domain"
	eventdomain "github.com/smallbiznis/revlens/internal/billingevent/domain"
	"github.com/smallbiznis/revlens/internal/clock"
	"github.com/smallbiznis/revlens/internal/config"
	connectiondomain "github.com/smallbiznis/revlens/internal/connection/domain"
	customerdomain "github.com/smallbiznis/revlens/internal/customer/domain"
	"github.com/smallbiznis/revlens/internal/ingestion/domain"
	obsmetrics "github.com/smallbiznis/revlens/internal/observability/metrics"
	"github.com/smallbiznis/revlens/internal/observability/tracing"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	"github.com/smallbiznis/revlens/internal/transform"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CoordinatorParams struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Tuning           *config.AnalyticsConfigHolder
	Connections      connectiondomain.Service
	CustomerRepo     customerdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	EventRepo        eventdomain.Repository
	Metrics          *obsmetrics.Metrics `optional:"true"`
}

// Coordinator pulls customers, subscriptions and events for one merchant,
// stores them and refreshes the per-customer roll-up.
type Coordinator struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	tuning       *config.AnalyticsConfigHolder
	connections  connectiondomain.Service
	customerRepo customerdomain.Repository
	subRepo      subscriptiondomain.Repository
	eventRepo    eventdomain.Repository
	metrics      *obsmetrics.Metrics
	syncMetrics  *obsmetrics.SyncMetrics
}

func NewCoordinator(p CoordinatorParams) *Coordinator {
	return &Coordinator{
		db:           p.DB,
		log:          p.Log.Named("ingestion.coordinator"),
		genID:        p.GenID,
		clock:        p.Clock,
		tuning:       p.Tuning,
		connections:  p.Connections,
		customerRepo: p.CustomerRepo,
		subRepo:      p.SubscriptionRepo,
		eventRepo:    p.EventRepo,
		metrics:      p.Metrics,
		syncMetrics:  obsmetrics.Sync(),
	}
}

// Sync runs the merchant's sync to completion or to its first error. Every
// page is committed on its own, so a failed sync keeps what it stored and
// reports those counts alongside the error.
func (c *Coordinator) Sync(ctx context.Context, req domain.SyncRequest) (result domain.SyncResult, err error) {
	req.MerchantID = strings.TrimSpace(req.MerchantID)
	if req.MerchantID == "" {
		return result, domain.ErrInvalidMerchant
	}
	if req.Client == nil {
		return result, domain.ErrMissingClient
	}

	ctx, span := tracing.Start(ctx, "ingestion.sync",
		attribute.String("merchant_id", req.MerchantID),
		attribute.Bool("full_sync", req.FullSync),
		attribute.Bool("incremental", req.Incremental()),
	)
	defer func() { tracing.End(span, err) }()

	log := c.log.With(zap.String("merchant_id", req.MerchantID), zap.Bool("incremental", req.Incremental()))

	if err := c.connections.MarkRunning(ctx, req.MerchantID); err != nil {
		return result, fmt.Errorf("mark sync running: %w", err)
	}

	fail := func(stage string, cause error) (domain.SyncResult, error) {
		result.Error = cause.Error()
		c.syncMetrics.IncError(stage, cause)
		c.metrics.RecordSyncFailure(ctx, stage, cause)
		if markErr := c.connections.MarkFailed(ctx, req.MerchantID, cause); markErr != nil {
			log.Error("ingestion.mark_failed_error", zap.Error(markErr))
		}
		log.Warn("ingestion.sync_failed",
			zap.String("stage", stage),
			zap.Int("customers", result.CustomersCount),
			zap.Int("subscriptions", result.SubscriptionsCount),
			zap.Int("events", result.EventsCount),
			zap.Error(cause),
		)
		return result, cause
	}

	tuning := c.tuning.Get().Sync
	pageSize := billingapidomain.ClampLimit(int64(tuning.PageSize))

	if result.CustomersCount, err = c.syncCustomers(ctx, req, pageSize); err != nil {
		return fail(obsmetrics.SyncStageCustomers, err)
	}
	if result.SubscriptionsCount, err = c.syncSubscriptions(ctx, req, pageSize); err != nil {
		return fail(obsmetrics.SyncStageSubscriptions, err)
	}
	if result.EventsCount, err = c.syncEvents(ctx, req, pageSize, tuning.EventTypes); err != nil {
		return fail(obsmetrics.SyncStageEvents, err)
	}

	customerCount, err := c.rollup(ctx, req.MerchantID)
	if err != nil {
		return fail(obsmetrics.SyncStageRollup, err)
	}

	if err := c.connections.MarkCompleted(ctx, req.MerchantID, c.clock.Now(), customerCount); err != nil {
		err = fmt.Errorf("mark sync completed: %w", err)
		result.Error = err.Error()
		log.Error("ingestion.mark_completed_error", zap.Error(err))
		return result, err
	}

	log.Info("ingestion.sync_completed",
		zap.Int("customers", result.CustomersCount),
		zap.Int("subscriptions", result.SubscriptionsCount),
		zap.Int("events", result.EventsCount),
		zap.Int64("customer_total", customerCount),
	)
	return result, nil
}

func (c *Coordinator) syncCustomers(ctx context.Context, req domain.SyncRequest, pageSize int64) (int, error) {
	pageReq := billingapidomain.CustomerPageRequest{Limit: pageSize}
	if req.Incremental() {
		pageReq.CreatedGTE = req.LastSyncAt
	}

	total := 0
	for {
		page, err := req.Client.ListCustomers(ctx, pageReq)
		if err != nil {
			return total, fmt.Errorf("list customers: %w", err)
		}

		batch := make([]customerdomain.Customer, 0, len(page.Data))
		for _, raw := range page.Data {
			if raw == nil || raw.Deleted {
				continue
			}
			customer, ok := transform.Customer(req.MerchantID, raw)
			if !ok {
				continue
			}
			customer.ID = c.genID.Generate()
			batch = append(batch, customer)
		}

		if len(batch) > 0 {
			err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return c.customerRepo.UpsertBatch(ctx, tx, batch)
			})
			if err != nil {
				return total, fmt.Errorf("store customers: %w", err)
			}
			total += len(batch)
			c.recordBatch(ctx, obsmetrics.SyncStageCustomers, len(batch))
		}

		if !page.HasMore {
			return total, nil
		}
		pageReq.StartingAfter = page.NextCursor
	}
}

// syncSubscriptions always lists every subscription so status changes on
// old subscriptions are never missed.
func (c *Coordinator) syncSubscriptions(ctx context.Context, req domain.SyncRequest, pageSize int64) (int, error) {
	pageReq := billingapidomain.SubscriptionPageRequest{
		Limit:  pageSize,
		Status: billingapidomain.SubscriptionStatusAll,
	}

	total := 0
	for {
		page, err := req.Client.ListSubscriptions(ctx, pageReq)
		if err != nil {
			return total, fmt.Errorf("list subscriptions: %w", err)
		}

		batch := make([]subscriptiondomain.Subscription, 0, len(page.Data))
		for _, raw := range page.Data {
			sub, ok := transform.Subscription(req.MerchantID, raw)
			if !ok {
				continue
			}
			sub.ID = c.genID.Generate()
			batch = append(batch, sub)
		}

		if len(batch) > 0 {
			err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				revisions, err := c.revisionsFor(ctx, tx, req.MerchantID, batch)
				if err != nil {
					return err
				}
				if err := c.subRepo.UpsertBatch(ctx, tx, batch); err != nil {
					return err
				}
				return c.subRepo.InsertRevisions(ctx, tx, revisions)
			})
			if err != nil {
				return total, fmt.Errorf("store subscriptions: %w", err)
			}
			total += len(batch)
			c.recordBatch(ctx, obsmetrics.SyncStageSubscriptions, len(batch))
		}

		if !page.HasMore {
			return total, nil
		}
		pageReq.StartingAfter = page.NextCursor
	}
}

// revisionsFor records the opening terms of subscriptions seen for the first
// time and the new terms of stored ones whose price changed.
func (c *Coordinator) revisionsFor(ctx context.Context, tx *gorm.DB, merchantID string, batch []subscriptiondomain.Subscription) ([]subscriptiondomain.Revision, error) {
	ids := make([]string, 0, len(batch))
	for _, sub := range batch {
		ids = append(ids, sub.ExternalID)
	}
	stored, err := c.subRepo.FindByExternalIDs(ctx, tx, merchantID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]subscriptiondomain.Subscription, len(stored))
	for _, sub := range stored {
		byID[sub.ExternalID] = sub
	}

	now := c.clock.Now().UTC()
	var revisions []subscriptiondomain.Revision
	for _, sub := range batch {
		effectiveAt := now
		prev, seen := byID[sub.ExternalID]
		switch {
		case !seen && sub.StartedAt != nil:
			effectiveAt = sub.StartedAt.UTC()
		case !seen:
			continue
		case revisionOf(prev).SameTerms(sub):
			continue
		}
		rev := revisionOf(sub)
		rev.ID = c.genID.Generate()
		rev.EffectiveAt = effectiveAt
		revisions = append(revisions, rev)
	}
	return revisions, nil
}

func revisionOf(sub subscriptiondomain.Subscription) subscriptiondomain.Revision {
	return subscriptiondomain.Revision{
		MerchantID:             sub.MerchantID,
		SubscriptionExternalID: sub.ExternalID,
		UnitAmountCents:        sub.UnitAmountCents,
		Quantity:               sub.Quantity,
		Interval:               sub.Interval,
	}
}

func (c *Coordinator) syncEvents(ctx context.Context, req domain.SyncRequest, pageSize int64, types []string) (int, error) {
	pageReq := billingapidomain.EventPageRequest{
		Limit: pageSize,
		Types: append([]string(nil), types...),
	}
	if req.Incremental() {
		pageReq.CreatedGTE = req.LastSyncAt
	}

	total := 0
	for {
		page, err := req.Client.ListEvents(ctx, pageReq)
		if err != nil {
			return total, fmt.Errorf("list events: %w", err)
		}

		batch := make([]eventdomain.BillingEvent, 0, len(page.Data))
		for _, raw := range page.Data {
			event, ok := transform.Event(req.MerchantID, raw)
			if !ok {
				continue
			}
			event.ID = c.genID.Generate()
			batch = append(batch, event)
		}

		if len(batch) > 0 {
			err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return c.eventRepo.InsertBatch(ctx, tx, batch)
			})
			if err != nil {
				return total, fmt.Errorf("store events: %w", err)
			}
			total += len(batch)
			c.recordBatch(ctx, obsmetrics.SyncStageEvents, len(batch))
		}

		if !page.HasMore {
			return total, nil
		}
		pageReq.StartingAfter = page.NextCursor
	}
}

// rollup recomputes every customer of the merchant from its stored
// subscriptions and returns the merchant's customer count.
func (c *Coordinator) rollup(ctx context.Context, merchantID string) (int64, error) {
	now := c.clock.Now()
	var count int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customers, err := c.customerRepo.ListByMerchant(ctx, tx, merchantID)
		if err != nil {
			return fmt.Errorf("load customers: %w", err)
		}
		subs, err := c.subRepo.ListByMerchant(ctx, tx, merchantID)
		if err != nil {
			return fmt.Errorf("load subscriptions: %w", err)
		}

		byCustomer := make(map[string][]subscriptiondomain.Subscription, len(customers))
		for _, sub := range subs {
			byCustomer[sub.CustomerExternalID] = append(byCustomer[sub.CustomerExternalID], sub)
		}
		for _, customer := range customers {
			computed := Rollup(byCustomer[customer.ExternalID], now)
			if err := c.customerRepo.UpdateComputed(ctx, tx, merchantID, customer.ExternalID, computed); err != nil {
				return fmt.Errorf("update customer %s: %w", customer.ExternalID, err)
			}
		}
		count = int64(len(customers))
		return nil
	})
	return count, err
}

func (c *Coordinator) recordBatch(ctx context.Context, resource string, n int) {
	c.syncMetrics.AddRecords(resource, n)
	c.metrics.RecordSynced(ctx, resource, n)
}
