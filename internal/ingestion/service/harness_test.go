package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revlens/internal/analytics/cohort"
	"github.com/smallbiznis/revlens/internal/analytics/mrr"
	"github.com/smallbiznis/revlens/internal/billingapi/billingapitest"
	billingapidomain "github.com/smallbiznis/revlens/internal/billingapi/domain"
	eventdomain "github.com/smallbiznis/revlens/internal/billingevent/domain"
	eventrepo "github.com/smallbiznis/revlens/internal/billingevent/repository"
	"github.com/smallbiznis/revlens/internal/clock"
	"github.com/smallbiznis/revlens/internal/config"
	connectiondomain "github.com/smallbiznis/revlens/internal/connection/domain"
	connectionrepo "github.com/smallbiznis/revlens/internal/connection/repository"
	connectionservice "github.com/smallbiznis/revlens/internal/connection/service"
	customerdomain "github.com/smallbiznis/revlens/internal/customer/domain"
	customerrepo "github.com/smallbiznis/revlens/internal/customer/repository"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/revlens/internal/subscription/repository"
	"github.com/smallbiznis/revlens/internal/synclock"
	"github.com/smallbiznis/revlens/pkg/db"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const merchant = "m_1"

type harness struct {
	db          *gorm.DB
	clock       *clock.FakeClock
	client      *billingapitest.Client
	factory     *billingapitest.Factory
	connections connectiondomain.Service
	coordinator *Coordinator
	runner      *Runner
	guard       *synclock.MemoryGuard
	mrr         *mrr.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&connectiondomain.Connection{},
		&customerdomain.Customer{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.Revision{},
		&eventdomain.BillingEvent{},
		&mrr.Snapshot{},
		&cohort.Snapshot{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	tuning := config.NewStaticAnalyticsConfigHolder(config.DefaultAnalyticsConfig())
	log := zap.NewNop()

	client := new(billingapitest.Client)
	factory := new(billingapitest.Factory)
	factory.On("New", mock.Anything).Return(client, nil)
	client.On("RetrieveAccount", mock.Anything).Return(billingapidomain.Account{ID: "acct_1", DisplayName: "Acme"}, nil)
	client.On("ListCustomers", mock.Anything, billingapidomain.CustomerPageRequest{Limit: 1}).Return(billingapitest.CustomerPage(), nil)

	connections, err := connectionservice.New(connectionservice.Params{
		DB:      conn,
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Cfg:     config.Config{CredentialSecret: "test-secret"},
		Repo:    connectionrepo.Provide(),
		Clients: factory,
	})
	require.NoError(t, err)

	coordinator := NewCoordinator(CoordinatorParams{
		DB:               conn,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		Tuning:           tuning,
		Connections:      connections,
		CustomerRepo:     customerrepo.Provide(),
		SubscriptionRepo: subscriptionrepo.Provide(),
		EventRepo:        eventrepo.Provide(),
	})

	mrrSvc := mrr.NewService(mrr.Params{
		DB:               conn,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		Repo:             mrr.NewRepository(),
		SubscriptionRepo: subscriptionrepo.Provide(),
	})
	cohortSvc := cohort.NewService(cohort.Params{
		DB:               conn,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		Tuning:           tuning,
		Repo:             cohort.NewRepository(),
		CustomerRepo:     customerrepo.Provide(),
		SubscriptionRepo: subscriptionrepo.Provide(),
	})

	guard := synclock.NewMemoryGuard()
	runner := NewRunner(RunnerParams{
		Log:         log,
		Clock:       clk,
		Tuning:      tuning,
		Guard:       guard,
		Connections: connections,
		Clients:     factory,
		Coordinator: coordinator,
		MRR:         mrrSvc,
		Cohorts:     cohortSvc,
	})

	_, err = connections.Store(context.Background(), merchant, "sk_test_123")
	require.NoError(t, err)

	return &harness{
		db:          conn,
		clock:       clk,
		client:      client,
		factory:     factory,
		connections: connections,
		coordinator: coordinator,
		runner:      runner,
		guard:       guard,
		mrr:         mrrSvc,
	}
}

// syncPages wires the mock to answer a sync. Page requests for the credential
// check (limit 1) are answered separately in newHarness.
func (h *harness) syncPages(
	customers billingapidomain.Page[*stripe.Customer],
	subs billingapidomain.Page[*stripe.Subscription],
	events billingapidomain.Page[*stripe.Event],
) {
	h.client.On("ListCustomers", mock.Anything, mock.MatchedBy(isSyncCustomerPage)).Return(customers, nil)
	h.client.On("ListSubscriptions", mock.Anything, mock.Anything).Return(subs, nil)
	h.client.On("ListEvents", mock.Anything, mock.Anything).Return(events, nil)
}

func isSyncCustomerPage(req billingapidomain.CustomerPageRequest) bool {
	return req.Limit != 1
}

func unix(y int, m time.Month, d int) int64 {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

func stripeCustomer(id string, created int64) *stripe.Customer {
	return &stripe.Customer{ID: id, Email: id + "@example.com", Currency: stripe.CurrencyUSD, Created: created}
}

func stripeSubscription(id, customerID string, status stripe.SubscriptionStatus, amount int64, started int64) *stripe.Subscription {
	return &stripe.Subscription{
		ID:        id,
		Customer:  &stripe.Customer{ID: customerID},
		Status:    status,
		StartDate: started,
		Currency:  stripe.CurrencyUSD,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				Quantity: 1,
				Price: &stripe.Price{
					ID:         "price_" + id,
					UnitAmount: amount,
					Currency:   stripe.CurrencyUSD,
					Recurring:  &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalMonth},
					Product:    &stripe.Product{ID: "prod_basic", Name: "Basic"},
				},
			}},
		},
	}
}

func invoicePaid(id string, customerID string, created int64) *stripe.Event {
	return &stripe.Event{
		ID:      id,
		Type:    "invoice.paid",
		Created: created,
		Data: &stripe.EventData{
			Object: map[string]interface{}{"object": "invoice", "customer": customerID},
		},
	}
}

func count(t *testing.T, conn *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(model).Where("merchant_id = ?", merchant).Count(&n).Error)
	return n
}
