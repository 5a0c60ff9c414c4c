package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func priceActionConfig() *types.StrategyConfig {
	return &types.StrategyConfig{
		Kind:      types.StrategyKindPriceAction,
		Symbol:    "BTCUSDT",
		Timeframe: types.Timeframe1h,
		Capital:   10000,
		MaxLots:   1,
		PriceAction: &types.PriceActionParams{
			SupertrendPeriod:  5,
			SupertrendMult:    2,
			MacdFastPeriod:    3,
			MacdSlowPeriod:    6,
			MacdSignalPeriod:  3,
			ConfirmationWindow: 2,
		},
	}
}

func TestPriceActionKeepsPerKeyObservationStateAcrossCalls(t *testing.T) {
	ev := NewPriceActionEvaluator()
	cfg := priceActionConfig()
	candles := syntheticUptrendCandles(30, 100)
	require.GreaterOrEqual(t, len(candles), ev.MinDataPoints(cfg))

	_, err := ev.Evaluate(cfg, candles[:20], types.EvaluationContext{})
	require.NoError(t, err)
	_, ok := ev.obs[ev.key(cfg)]
	assert.True(t, ok, "observation state should persist across calls on the same instance")
}

func TestPriceActionFreshEvaluatorHasNoObservationState(t *testing.T) {
	ev := NewPriceActionEvaluator()
	assert.Empty(t, ev.obs)
	assert.Empty(t, ev.state)
}

func TestPriceActionDoesNotMutateInputCandles(t *testing.T) {
	ev := NewPriceActionEvaluator()
	cfg := priceActionConfig()
	candles := syntheticUptrendCandles(30, 100)
	before := candles[10]
	_, err := ev.Evaluate(cfg, candles, types.EvaluationContext{})
	require.NoError(t, err)
	assert.Equal(t, before, candles[10])
}
