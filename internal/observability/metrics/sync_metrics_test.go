package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	billingapidomain "github.com/smallbiznis/revlens/internal/billingapi/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family.GetMetric()
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, pair := range m.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

func TestSyncMetricsRecordRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg, "test")

	m.ObserveRun("manual", SyncStatusCompleted, 2*time.Second)
	m.ObserveRun("manual", SyncStatusSkipped, 0)
	m.AddRecords(SyncStageCustomers, 3)
	m.AddRecords(SyncStageCustomers, 0)
	m.IncPage(SyncStageCustomers)
	m.IncError(SyncStageEvents, fmt.Errorf("list events: %w", billingapidomain.ErrRateLimited))
	m.IncLockContention()

	runs := gather(t, reg, "test_sync_runs_total")
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, "manual", labelValue(run, "trigger"))
		assert.Equal(t, float64(1), run.GetCounter().GetValue())
	}

	durations := gather(t, reg, "test_sync_duration_seconds")
	require.Len(t, durations, 1)
	assert.Equal(t, uint64(1), durations[0].GetHistogram().GetSampleCount())

	records := gather(t, reg, "test_sync_records_total")
	require.Len(t, records, 1)
	assert.Equal(t, float64(3), records[0].GetCounter().GetValue())

	errs := gather(t, reg, "test_sync_errors_total")
	require.Len(t, errs, 1)
	assert.Equal(t, SyncStageEvents, labelValue(errs[0], "stage"))
	assert.Equal(t, ErrorTypeRateLimited, labelValue(errs[0], "error_type"))

	contention := gather(t, reg, "test_sync_lock_contention_total")
	require.Len(t, contention, 1)
	assert.Equal(t, float64(1), contention[0].GetCounter().GetValue())
}

func TestSyncMetricsNilSafe(t *testing.T) {
	var m *SyncMetrics
	assert.NotPanics(t, func() {
		m.ObserveRun("sweep", SyncStatusFailed, time.Second)
		m.IncPage(SyncStageEvents)
		m.AddRecords(SyncStageEvents, 1)
		m.IncError(SyncStageRollup, errors.New("boom"))
		m.IncLockContention()
		m.ObserveThrottleWait(time.Millisecond)
		m.IncJobRun("sync_sweep")
		m.ObserveJobDuration("sync_sweep", time.Second)
		m.IncJobError("sync_sweep", errors.New("boom"))
		m.ObserveRunLoopLag(time.Second)
	})
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrorTypeDeadlineExceeded},
		{name: "auth", err: fmt.Errorf("list: %w", billingapidomain.ErrAuthentication), want: ErrorTypeAuthentication},
		{name: "transport", err: billingapidomain.ErrTransport, want: ErrorTypeTransport},
		{name: "lock timeout", err: &pgconn.PgError{Code: "55P03"}, want: ErrorTypeDBLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: ErrorTypeSerializationFailure},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: ErrorTypeUniqueViolation},
		{name: "other db", err: &pgconn.PgError{Code: "42P01"}, want: ErrorTypeDB},
		{name: "unknown", err: errors.New("boom"), want: ErrorTypeUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}

	assert.True(t, IsRetryable(billingapidomain.ErrRateLimited))
	assert.False(t, IsRetryable(billingapidomain.ErrAuthentication))
}
