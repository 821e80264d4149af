package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/retailhub/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewSyncMetrics_NilMeter(t *testing.T) {
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{})

	require.Error(t, err)
	assert.Nil(t, sm)
	assert.Equal(t, "NewSyncMetrics: meter cannot be nil", err.Error())
}

func TestSyncMetrics_NilReceiver(t *testing.T) {
	var sm *telemetry.SyncMetrics
	ctx := context.Background()

	// Should not panic
	sm.RecordSync(ctx, "product", telemetry.SyncStatusSuccess, time.Second)
	sm.RecordBulkSync(ctx, "product", telemetry.SyncStatusError)
	sm.RecordTokenRefresh(ctx, true)
	sm.RecordJob(ctx, "product", "single", "succeeded")
}

func TestSyncMetrics_Noop(t *testing.T) {
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter: noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)

	sm.RecordSync(context.Background(), "customer", telemetry.SyncStatusAlreadySynced, time.Millisecond)
}

func TestSyncMetrics_RecordSync(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter: provider.Meter("test"),
	})
	require.NoError(t, err)

	ctx := context.Background()
	sm.RecordSync(ctx, "product", telemetry.SyncStatusSuccess, 10*time.Millisecond)
	sm.RecordSync(ctx, "product", telemetry.SyncStatusSuccess, 20*time.Millisecond)
	sm.RecordSync(ctx, "product", telemetry.SyncStatusError, 5*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sum := findInt64Sum(t, rm, "accounting_sync_total")
	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		status, ok := dp.Attributes.Value(attribute.Key("status"))
		require.True(t, ok)
		kind, _ := dp.Attributes.Value(attribute.Key("kind"))
		assert.Equal(t, "product", kind.AsString())
		counts[status.AsString()] = dp.Value
	}
	assert.Equal(t, int64(2), counts[telemetry.SyncStatusSuccess])
	assert.Equal(t, int64(1), counts[telemetry.SyncStatusError])
}

func findInt64Sum(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			return sum
		}
	}
	t.Fatalf("metric %s not collected", name)
	return metricdata.Sum[int64]{}
}
