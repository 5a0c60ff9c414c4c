package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func TestEmaGapAtrMinDataPointsUsesSlowestIndicator(t *testing.T) {
	ev := NewEmaGapAtrEvaluator()
	cfg := &types.StrategyConfig{
		EmaGapAtr: &types.EmaGapAtrParams{
			EmaFastPeriod: 9,
			EmaSlowPeriod: 21,
			AtrPeriod:     14,
			RsiPeriod:     30,
		},
	}
	assert.Equal(t, 31, ev.MinDataPoints(cfg))
}

func TestEmaGapAtrEntersLongOnSustainedUptrendWithRSIConfirmation(t *testing.T) {
	ev := NewEmaGapAtrEvaluator()
	cfg := &types.StrategyConfig{
		Kind:      types.StrategyKindEmaGapAtr,
		Symbol:    "BTCUSDT",
		Timeframe: types.Timeframe1h,
		Capital:   10000,
		MaxLots:   1,
		EmaGapAtr: &types.EmaGapAtrParams{
			EmaFastPeriod:      3,
			EmaSlowPeriod:      8,
			AtrPeriod:          5,
			AtrMultiplierEntry: 0.01,
			RsiPeriod:          5,
			RsiEntryLong:       50,
			RsiEntryShort:      50,
		},
	}
	candles := syntheticUptrendCandles(40, 100)
	require.GreaterOrEqual(t, len(candles), ev.MinDataPoints(cfg))

	result, err := ev.Evaluate(cfg, candles, types.EvaluationContext{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Entries)
}
