package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/trading-orchestrator/internal/metrics"
)

func TestRegistryRecordsObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	m.TickLatency.Observe(0.25)
	m.TradesPlaced.WithLabelValues("AAPL").Inc()
	m.BreakerTrips.WithLabelValues("symbol", "AAPL").Inc()
	m.RiskRejections.WithLabelValues("symbol_risk_exceeded").Inc()
	m.FillRatio.Set(0.75)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, family := range families {
		if family.GetName() == "atlas_scheduler_trades_placed_total" {
			found = true
			require.Equal(t, float64(1), family.GetMetric()[0].GetCounter().GetValue())
		}
	}
	require.True(t, found, "expected atlas_scheduler_trades_placed_total to be registered")

	var fillRatioFamily *io_prometheus_client.MetricFamily
	for _, family := range families {
		if family.GetName() == "atlas_execution_fill_ratio" {
			fillRatioFamily = family
		}
	}
	require.NotNil(t, fillRatioFamily)
	require.Equal(t, 0.75, fillRatioFamily.GetMetric()[0].GetGauge().GetValue())
}
