package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func syntheticUptrendCandles(n int, start float64) []types.Candle {
	candles := make([]types.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		price += 1.0
		candles[i] = types.Candle{
			TimestampMs: int64(i) * 60_000,
			Open:        price - 0.5,
			High:        price + 1,
			Low:         price - 1,
			Close:       price,
			Volume:      100,
			Timeframe:   types.Timeframe1h,
		}
	}
	return candles
}

func TestTrendFollowingEntersLongInSustainedUptrend(t *testing.T) {
	ev := NewTrendFollowingEvaluator()
	cfg := &types.StrategyConfig{
		Kind:      types.StrategyKindTrendFollowing,
		Symbol:    "BTCUSDT",
		Timeframe: types.Timeframe1h,
		Capital:   10000,
		MaxLots:   1,
		TrendFollowing: &types.TrendFollowingParams{
			DemaPeriod:       5,
			SupertrendPeriod: 5,
			SupertrendMult:   2,
		},
	}
	candles := syntheticUptrendCandles(40, 100)
	require.GreaterOrEqual(t, len(candles), ev.MinDataPoints(cfg))

	result, err := ev.Evaluate(cfg, candles, types.EvaluationContext{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Entries)
	for _, e := range result.Entries {
		assert.Equal(t, types.DirectionLong, e.Direction)
	}
}

func TestTrendFollowingMinDataPointsRespectsFilters(t *testing.T) {
	ev := NewTrendFollowingEvaluator()
	cfg := &types.StrategyConfig{
		TrendFollowing: &types.TrendFollowingParams{
			DemaPeriod:              5,
			SupertrendPeriod:        5,
			VolatilityFilterEnabled: true,
			VolatilityLookback:      20,
		},
	}
	assert.Equal(t, 21, ev.MinDataPoints(cfg))
}
