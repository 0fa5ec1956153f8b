package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/revlens/internal/billingapi/billingapitest"
	billingapidomain "github.com/smallbiznis/revlens/internal/billingapi/domain"
	eventdomain "github.com/smallbiznis/revlens/internal/billingevent/domain"
	eventrepo "github.com/smallbiznis/revlens/internal/billingevent/repository"
	"github.com/smallbiznis/revlens/internal/config"
	connectiondomain "github.com/smallbiznis/revlens/internal/connection/domain"
	customerdomain "github.com/smallbiznis/revlens/internal/customer/domain"
	customerrepo "github.com/smallbiznis/revlens/internal/customer/repository"
	"github.com/smallbiznis/revlens/internal/ingestion/domain"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/revlens/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"
)

func fixturePages() (billingapidomain.Page[*stripe.Customer], billingapidomain.Page[*stripe.Subscription], billingapidomain.Page[*stripe.Event]) {
	churned := stripeSubscription("sub_2", "cus_2", stripe.SubscriptionStatusCanceled, 5000, unix(2024, 1, 5))
	churned.EndedAt = unix(2024, 2, 20)

	return billingapitest.CustomerPage(
			stripeCustomer("cus_1", unix(2024, 1, 1)),
			stripeCustomer("cus_2", unix(2024, 1, 2)),
			&stripe.Customer{ID: "cus_3", Deleted: true},
		),
		billingapitest.SubscriptionPage(
			stripeSubscription("sub_1", "cus_1", stripe.SubscriptionStatusActive, 2000, unix(2024, 1, 10)),
			churned,
		),
		billingapitest.EventPage(invoicePaid("evt_1", "cus_1", unix(2024, 2, 10)))
}

func customersByID(t *testing.T, h *harness) map[string]customerdomain.Customer {
	t.Helper()
	list, err := customerrepo.Provide().ListByMerchant(context.Background(), h.db, merchant)
	require.NoError(t, err)
	out := make(map[string]customerdomain.Customer, len(list))
	for _, c := range list {
		out[c.ExternalID] = c
	}
	return out
}

func TestSyncStoresRecordsAndRollsUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.syncPages(fixturePages())

	result, err := h.coordinator.Sync(ctx, domain.SyncRequest{MerchantID: merchant, Client: h.client})
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{CustomersCount: 2, SubscriptionsCount: 2, EventsCount: 1}, result)

	customers := customersByID(t, h)
	require.Len(t, customers, 2)
	assert.NotContains(t, customers, "cus_3")

	active := customers["cus_1"]
	assert.Equal(t, int64(2000), active.MRRCents)
	assert.Equal(t, "active", active.SubscriptionStatus)
	require.NotNil(t, active.PlanName)
	assert.Equal(t, "Basic", *active.PlanName)
	require.NotNil(t, active.FirstSubscriptionAt)
	assert.True(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC).Equal(*active.FirstSubscriptionAt))
	assert.Nil(t, active.ChurnedAt)

	churned := customers["cus_2"]
	assert.Equal(t, int64(0), churned.MRRCents)
	assert.Equal(t, "canceled", churned.SubscriptionStatus)
	require.NotNil(t, churned.ChurnedAt)
	assert.True(t, time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC).Equal(*churned.ChurnedAt))

	conn, err := h.connections.Get(ctx, merchant)
	require.NoError(t, err)
	assert.Equal(t, connectiondomain.SyncStatusCompleted, conn.LastSyncStatus)
	assert.Equal(t, int64(2), conn.CustomerCount)
	require.NotNil(t, conn.LastSyncAt)
	assert.True(t, h.clock.Now().Equal(*conn.LastSyncAt))

	assert.Equal(t, int64(2), count(t, h.db, &subscriptiondomain.Revision{}))
	assert.Equal(t, int64(1), count(t, h.db, &eventdomain.BillingEvent{}))
}

func TestSyncTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.syncPages(fixturePages())

	_, err := h.coordinator.Sync(ctx, domain.SyncRequest{MerchantID: merchant, Client: h.client})
	require.NoError(t, err)
	first := customersByID(t, h)

	h.clock.Advance(2 * time.Hour)
	_, err = h.coordinator.Sync(ctx, domain.SyncRequest{MerchantID: merchant, Client: h.client, FullSync: true})
	require.NoError(t, err)
	second := customersByID(t, h)

	assert.Equal(t, int64(2), count(t, h.db, &customerdomain.Customer{}))
	assert.Equal(t, int64(2), count(t, h.db, &subscriptiondomain.Subscription{}))
	assert.Equal(t, int64(2), count(t, h.db, &subscriptiondomain.Revision{}))
	assert.Equal(t, int64(1), count(t, h.db, &eventdomain.BillingEvent{}))

	for id, c := range first {
		assert.Equal(t, c.ID, second[id].ID)
		assert.Equal(t, c.MRRCents, second[id].MRRCents)
		assert.Equal(t, c.SubscriptionStatus, second[id].SubscriptionStatus)
		assert.Equal(t, c.Email, second[id].Email)
	}
}

func TestSyncFailureKeepsPartialCounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customers, _, _ := fixturePages()
	providerErr := &billingapidomain.ProviderError{Kind: billingapidomain.ErrTransport, StatusCode: 502, Message: "bad gateway"}

	h.client.On("ListCustomers", mock.Anything, mock.MatchedBy(isSyncCustomerPage)).Return(customers, nil)
	h.client.On("ListSubscriptions", mock.Anything, mock.Anything).
		Return(billingapidomain.Page[*stripe.Subscription]{}, providerErr)

	result, err := h.coordinator.Sync(ctx, domain.SyncRequest{MerchantID: merchant, Client: h.client})
	require.Error(t, err)
	assert.ErrorIs(t, err, billingapidomain.ErrTransport)
	assert.Equal(t, 2, result.CustomersCount)
	assert.Equal(t, 0, result.SubscriptionsCount)
	assert.Equal(t, err.Error(), result.Error)
	h.client.AssertNotCalled(t, "ListEvents", mock.Anything, mock.Anything)

	conn, err := h.connections.Get(ctx, merchant)
	require.NoError(t, err)
	assert.Equal(t, connectiondomain.SyncStatusFailed, conn.LastSyncStatus)
	require.NotNil(t, conn.LastSyncError)
	assert.Equal(t, result.Error, *conn.LastSyncError)
	assert.Nil(t, conn.LastSyncAt)

	assert.Equal(t, int64(2), count(t, h.db, &customerdomain.Customer{}))
}

func TestSyncStorageFailureStopsBeforeEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customers, subs, _ := fixturePages()
	h.client.On("ListCustomers", mock.Anything, mock.MatchedBy(isSyncCustomerPage)).Return(customers, nil)
	h.client.On("ListSubscriptions", mock.Anything, mock.Anything).Return(subs, nil)
	require.NoError(t, h.db.Migrator().DropTable(&subscriptiondomain.Subscription{}))

	result, err := h.coordinator.Sync(ctx, domain.SyncRequest{MerchantID: merchant, Client: h.client})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store subscriptions")
	assert.Equal(t, 2, result.CustomersCount)
	assert.Equal(t, 0, result.SubscriptionsCount)
	assert.Equal(t, err.Error(), result.Error)
	h.client.AssertNotCalled(t, "ListEvents", mock.Anything, mock.Anything)

	conn, err := h.connections.Get(ctx, merchant)
	require.NoError(t, err)
	assert.Equal(t, connectiondomain.SyncStatusFailed, conn.LastSyncStatus)
	require.NotNil(t, conn.LastSyncError)
	assert.Equal(t, result.Error, *conn.LastSyncError)

	stored := customersByID(t, h)
	assert.Len(t, stored, 2)
	assert.Contains(t, stored, "cus_1")
}

type completionFailure struct {
	connectiondomain.Service
	err error
}

func (c completionFailure) MarkCompleted(context.Context, string, time.Time, int64) error {
	return c.err
}

func TestSyncReportsCompletionFailure(t *testing.T) {
	h := newHarness(t)
	h.syncPages(fixturePages())

	coordinator := NewCoordinator(CoordinatorParams{
		DB:               h.db,
		Log:              zap.NewNop(),
		GenID:            h.coordinator.genID,
		Clock:            h.clock,
		Tuning:           h.coordinator.tuning,
		Connections:      completionFailure{Service: h.connections, err: errors.New("connection row locked")},
		CustomerRepo:     customerrepo.Provide(),
		SubscriptionRepo: subscriptionrepo.Provide(),
		EventRepo:        eventrepo.Provide(),
	})

	result, err := coordinator.Sync(context.Background(), domain.SyncRequest{MerchantID: merchant, Client: h.client})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection row locked")
	assert.Equal(t, err.Error(), result.Error)
	assert.Equal(t, 2, result.CustomersCount)
	assert.Equal(t, 2, result.SubscriptionsCount)
	assert.Equal(t, 1, result.EventsCount)
}

func TestIncrementalSyncFiltersByLastSync(t *testing.T) {
	h := newHarness(t)
	last := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	h.client.On("ListCustomers", mock.Anything, mock.MatchedBy(func(req billingapidomain.CustomerPageRequest) bool {
		return req.Limit == billingapidomain.MaxPageSize && req.CreatedGTE != nil && req.CreatedGTE.Equal(last)
	})).Return(billingapitest.CustomerPage(), nil)
	h.client.On("ListSubscriptions", mock.Anything, billingapidomain.SubscriptionPageRequest{
		Limit:  billingapidomain.MaxPageSize,
		Status: billingapidomain.SubscriptionStatusAll,
	}).Return(billingapitest.SubscriptionPage(), nil)
	h.client.On("ListEvents", mock.Anything, mock.MatchedBy(func(req billingapidomain.EventPageRequest) bool {
		return req.CreatedGTE != nil && req.CreatedGTE.Equal(last) &&
			assert.ObjectsAreEqual(config.DefaultEventTypes, req.Types)
	})).Return(billingapitest.EventPage(), nil)

	_, err := h.coordinator.Sync(context.Background(), domain.SyncRequest{
		MerchantID: merchant,
		Client:     h.client,
		LastSyncAt: &last,
	})
	require.NoError(t, err)
}

func TestFullSyncIgnoresLastSync(t *testing.T) {
	h := newHarness(t)
	last := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	h.client.On("ListCustomers", mock.Anything, mock.MatchedBy(func(req billingapidomain.CustomerPageRequest) bool {
		return req.Limit != 1 && req.CreatedGTE == nil
	})).Return(billingapitest.CustomerPage(), nil)
	h.client.On("ListSubscriptions", mock.Anything, mock.Anything).Return(billingapitest.SubscriptionPage(), nil)
	h.client.On("ListEvents", mock.Anything, mock.MatchedBy(func(req billingapidomain.EventPageRequest) bool {
		return req.CreatedGTE == nil
	})).Return(billingapitest.EventPage(), nil)

	_, err := h.coordinator.Sync(context.Background(), domain.SyncRequest{
		MerchantID: merchant,
		Client:     h.client,
		FullSync:   true,
		LastSyncAt: &last,
	})
	require.NoError(t, err)
}

func TestSyncFollowsCursor(t *testing.T) {
	h := newHarness(t)
	id := func(c *stripe.Customer) string { return c.ID }

	first := billingapidomain.NewPage([]*stripe.Customer{stripeCustomer("cus_1", unix(2024, 1, 1))}, true, id)
	second := billingapidomain.NewPage([]*stripe.Customer{stripeCustomer("cus_2", unix(2024, 1, 2))}, false, id)
	h.client.On("ListCustomers", mock.Anything, mock.MatchedBy(func(req billingapidomain.CustomerPageRequest) bool {
		return req.Limit != 1 && req.StartingAfter == ""
	})).Return(first, nil).Once()
	h.client.On("ListCustomers", mock.Anything, mock.MatchedBy(func(req billingapidomain.CustomerPageRequest) bool {
		return req.StartingAfter == "cus_1"
	})).Return(second, nil).Once()
	h.client.On("ListSubscriptions", mock.Anything, mock.Anything).Return(billingapitest.SubscriptionPage(), nil)
	h.client.On("ListEvents", mock.Anything, mock.Anything).Return(billingapitest.EventPage(), nil)

	result, err := h.coordinator.Sync(context.Background(), domain.SyncRequest{MerchantID: merchant, Client: h.client})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CustomersCount)
	h.client.AssertNumberOfCalls(t, "ListCustomers", 3)
}

func TestSyncRecordsPriceChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	started := unix(2024, 1, 10)

	h.client.On("ListCustomers", mock.Anything, mock.MatchedBy(isSyncCustomerPage)).
		Return(billingapitest.CustomerPage(stripeCustomer("cus_1", started)), nil)
	h.client.On("ListEvents", mock.Anything, mock.Anything).Return(billingapitest.EventPage(), nil)
	h.client.On("ListSubscriptions", mock.Anything, mock.Anything).
		Return(billingapitest.SubscriptionPage(stripeSubscription("sub_1", "cus_1", stripe.SubscriptionStatusActive, 2000, started)), nil).
		Once()
	h.client.On("ListSubscriptions", mock.Anything, mock.Anything).
		Return(billingapitest.SubscriptionPage(stripeSubscription("sub_1", "cus_1", stripe.SubscriptionStatusActive, 3000, started)), nil)

	_, err := h.coordinator.Sync(ctx, domain.SyncRequest{MerchantID: merchant, Client: h.client})
	require.NoError(t, err)
	h.clock.Advance(24 * time.Hour)
	changedAt := h.clock.Now()
	_, err = h.coordinator.Sync(ctx, domain.SyncRequest{MerchantID: merchant, Client: h.client, FullSync: true})
	require.NoError(t, err)

	revisions, err := subscriptionrepo.Provide().ListRevisions(ctx, h.db, merchant)
	require.NoError(t, err)
	require.Len(t, revisions, 2)
	assert.True(t, time.Unix(started, 0).Equal(revisions[0].EffectiveAt))
	assert.Equal(t, int64(2000), revisions[0].UnitAmountCents)
	assert.True(t, changedAt.Equal(revisions[1].EffectiveAt))
	assert.Equal(t, int64(3000), revisions[1].UnitAmountCents)

	assert.Equal(t, int64(3000), customersByID(t, h)["cus_1"].MRRCents)
}

func TestSyncRejectsMissingInputs(t *testing.T) {
	h := newHarness(t)
	_, err := h.coordinator.Sync(context.Background(), domain.SyncRequest{MerchantID: " ", Client: h.client})
	assert.ErrorIs(t, err, domain.ErrInvalidMerchant)
	_, err = h.coordinator.Sync(context.Background(), domain.SyncRequest{MerchantID: merchant})
	assert.ErrorIs(t, err, domain.ErrMissingClient)
}
