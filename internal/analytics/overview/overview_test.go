package overview

import (
	"testing"

	"github.com/smallbiznis/revlens/internal/analytics/mrr"
	"github.com/stretchr/testify/assert"
)

func TestComputeWithoutSnapshots(t *testing.T) {
	got := Compute(nil, nil, 12, 2)
	assert.Equal(t, KPIs{TotalCustomers: 12, AtRiskCustomers: 2}, got)
}

func TestComputeKPIs(t *testing.T) {
	previous := &mrr.Snapshot{MRRCents: 8000, ActiveCustomers: 8}
	latest := &mrr.Snapshot{
		MRRCents:          9000,
		ActiveCustomers:   9,
		ChurnedCustomers:  1,
		NewMRRCents:       2000,
		ExpansionMRRCents: 500,
		ChurnedMRRCents:   1500,
	}

	got := Compute(latest, previous, 15, 1)

	assert.Equal(t, int64(9000), got.MRRCents)
	assert.Equal(t, int64(108000), got.ARRCents)
	assert.Equal(t, 12.5, got.MRRGrowth)
	assert.Equal(t, 12.5, got.ActiveCustomersGrowth)
	assert.Equal(t, 10.0, got.CustomerChurnRate)
	assert.Equal(t, int64(1000), got.ARPUCents)
	assert.Equal(t, int64(10000), got.CLVCents)
	assert.Equal(t, int64(15), got.TotalCustomers)
	assert.Equal(t, int64(1), got.AtRiskCustomers)
	assert.Equal(t, int64(2000), got.NewMRRCents)
	assert.Equal(t, int64(500), got.ExpansionMRRCents)
	assert.Equal(t, int64(1500), got.ChurnedMRRCents)
}

func TestComputeZeroDenominators(t *testing.T) {
	got := Compute(&mrr.Snapshot{MRRCents: 3000, ActiveCustomers: 3}, &mrr.Snapshot{}, 3, 0)
	assert.Zero(t, got.MRRGrowth)
	assert.Zero(t, got.ActiveCustomersGrowth)
	assert.Zero(t, got.CLVCents, "no churn means no lifetime estimate")
	assert.Equal(t, int64(1000), got.ARPUCents)

	empty := Compute(&mrr.Snapshot{ChurnedCustomers: 1}, nil, 1, 0)
	assert.Zero(t, empty.ARPUCents)
	assert.Equal(t, 100.0, empty.CustomerChurnRate)
}
