package cohort

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revlens/internal/clock"
	"github.com/smallbiznis/revlens/internal/config"
	customerdomain "github.com/smallbiznis/revlens/internal/customer/domain"
	customerrepo "github.com/smallbiznis/revlens/internal/customer/repository"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/revlens/internal/subscription/repository"
	"github.com/smallbiznis/revlens/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecomputeStoresGridIdempotently(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&customerdomain.Customer{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.Revision{},
		&Snapshot{},
	))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	customers := customerrepo.Provide()
	subscriptions := subscriptionrepo.Provide()

	c := member("cus_1", date(2024, 1, 15))
	c.ID = node.Generate()
	c.MerchantID = "m_1"
	require.NoError(t, customers.UpsertBatch(ctx, conn, []customerdomain.Customer{c}))
	require.NoError(t, customers.UpdateComputed(ctx, conn, "m_1", "cus_1", c.Computed))

	s := sub("sub_1", "cus_1", 2000, date(2024, 1, 15), ptr(date(2024, 3, 5)))
	s.ID = node.Generate()
	s.MerchantID = "m_1"
	require.NoError(t, subscriptions.UpsertBatch(ctx, conn, []subscriptiondomain.Subscription{s}))

	tuning := config.DefaultAnalyticsConfig()
	tuning.Cohort.MaxOffset = 3
	svc := NewService(Params{
		DB:               conn,
		Log:              zap.NewNop(),
		GenID:            node,
		Clock:            clock.NewFakeClock(date(2024, 6, 1)),
		Tuning:           config.NewStaticAnalyticsConfigHolder(tuning),
		Repo:             NewRepository(),
		CustomerRepo:     customers,
		SubscriptionRepo: subscriptions,
	})

	for i := 0; i < 2; i++ {
		n, err := svc.Recompute(ctx, "m_1")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	}

	grid, err := svc.List(ctx, "m_1")
	require.NoError(t, err)
	require.Len(t, grid, 4)
	assert.Equal(t, date(2024, 1, 1), grid[0].CohortMonth)
	assert.Equal(t, []int64{1, 1, 1, 0}, []int64{grid[0].RetainedCount, grid[1].RetainedCount, grid[2].RetainedCount, grid[3].RetainedCount})
	assert.Equal(t, 0.0, grid[3].RetentionRate)

	// a smaller window drops the cells beyond it
	tuning.Cohort.MaxOffset = 1
	svc.tuning = config.NewStaticAnalyticsConfigHolder(tuning)
	_, err = svc.Recompute(ctx, "m_1")
	require.NoError(t, err)
	grid, err = svc.List(ctx, "m_1")
	require.NoError(t, err)
	assert.Len(t, grid, 2)
}
