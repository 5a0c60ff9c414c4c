package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRunIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.ObserveRun("END_OF_DATA", 50*time.Millisecond, []string{"SIGNAL", "STOP_LOSS"})

	var out dto.Metric
	require.NoError(t, m.RunsTotal.WithLabelValues("END_OF_DATA").Write(&out))
	assert.Equal(t, 1.0, out.GetCounter().GetValue())

	var trades dto.Metric
	require.NoError(t, m.TradesTotal.WithLabelValues("STOP_LOSS").Write(&trades))
	assert.Equal(t, 1.0, trades.GetCounter().GetValue())
}

func TestActiveWorkersGaugeTracksSetGets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.ActiveWorkers.Set(3)

	var out dto.Metric
	require.NoError(t, m.ActiveWorkers.Write(&out))
	assert.Equal(t, 3.0, out.GetGauge().GetValue())
}
