package viability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func sampleTrades() []types.CompletedTrade {
	return []types.CompletedTrade{
		{EntryPrice: 100, ExitPrice: 110, Quantity: 1, PnL: 10, PnLPct: 10, DurationMs: 3600_000},
		{EntryPrice: 100, ExitPrice: 95, Quantity: 1, PnL: -5, PnLPct: -5, DurationMs: 1800_000},
		{EntryPrice: 100, ExitPrice: 108, Quantity: 1, PnL: 8, PnLPct: 8, DurationMs: 3600_000},
	}
}

func sampleEquityCurve() []types.EquityPoint {
	return []types.EquityPoint{
		{TimestampMs: 0, Equity: 10000, CashBalance: 10000},
		{TimestampMs: 1, Equity: 10010, CashBalance: 10010},
		{TimestampMs: 2, Equity: 10005, CashBalance: 10005, Drawdown: 0.0005},
		{TimestampMs: 3, Equity: 10013, CashBalance: 10013},
	}
}

func TestCalculateReportsWinRateAndProfitFactor(t *testing.T) {
	mc := NewMetricsCalculator()
	m := mc.Calculate(sampleTrades(), sampleEquityCurve(), 10000)

	require.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-9)
	assert.InDelta(t, 18.0/5.0, m.ProfitFactor, 1e-9)
}

func TestCalculateWithNoTradesReturnsZeroValue(t *testing.T) {
	mc := NewMetricsCalculator()
	m := mc.Calculate(nil, nil, 10000)
	assert.Equal(t, 0, m.TotalTrades)
}

func TestCalculateMaxDrawdownNeverNegative(t *testing.T) {
	mc := NewMetricsCalculator()
	m := mc.Calculate(sampleTrades(), sampleEquityCurve(), 10000)
	assert.GreaterOrEqual(t, m.MaxDrawdown, 0.0)
}

func TestCalculateRiskMetricsVolatilityNonNegative(t *testing.T) {
	mc := NewMetricsCalculator()
	risk := mc.CalculateRiskMetrics(sampleEquityCurve())
	assert.GreaterOrEqual(t, risk.DailyVolatility, 0.0)
}
