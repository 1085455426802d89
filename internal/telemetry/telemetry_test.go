package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/telemetry"
)

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), "", "dmgfit")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_WithEndpoint(t *testing.T) {
	// The exporter connects lazily, so no collector is needed here.
	shutdown, err := telemetry.Setup(context.Background(), "127.0.0.1:4318", "dmgfit")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestSetup_MetricReaderReceivesGlobalMeter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	shutdown, err := telemetry.Setup(context.Background(), "", "dmgfit", telemetry.WithMetricReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() {
		otel.SetMeterProvider(noop.NewMeterProvider())
		_ = shutdown(context.Background())
	})

	counter, err := otel.Meter("telemetry_test").Int64Counter("dmgfit.test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}
