package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleValidRejectsNonPositivePrices(t *testing.T) {
	c := Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
	assert.True(t, c.Valid())

	c.Low = 0
	assert.False(t, c.Valid())
}

func TestCandleValidRejectsInvertedHighLow(t *testing.T) {
	c := Candle{Open: 100, High: 99, Low: 101, Close: 100, Volume: 10}
	assert.False(t, c.Valid())
}

func TestCandleValidRejectsOpenOrCloseOutsideHighLowBand(t *testing.T) {
	c := Candle{Open: 105, High: 101, Low: 99, Close: 100, Volume: 10}
	assert.False(t, c.Valid())

	c = Candle{Open: 100, High: 101, Low: 99, Close: 95, Volume: 10}
	assert.False(t, c.Valid())
}

func TestCandleValidRejectsNegativeVolume(t *testing.T) {
	c := Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: -1}
	assert.False(t, c.Valid())
}

func TestActiveTradeUnrealizedPnLRespectsDirection(t *testing.T) {
	long := ActiveTrade{Direction: DirectionLong, EntryPrice: 100, Quantity: 2}
	assert.Equal(t, 20.0, long.UnrealizedPnL(110))

	short := ActiveTrade{Direction: DirectionShort, EntryPrice: 100, Quantity: 2}
	assert.Equal(t, 20.0, short.UnrealizedPnL(90))
}

func TestActiveTradePnLPctGuardsZeroNotional(t *testing.T) {
	trade := ActiveTrade{Direction: DirectionLong, EntryPrice: 0, Quantity: 0}
	assert.Equal(t, 0.0, trade.PnLPct(100))
}

func TestActiveTradePnLPctComputesPercentOfNotional(t *testing.T) {
	trade := ActiveTrade{Direction: DirectionLong, EntryPrice: 100, Quantity: 2}
	assert.InDelta(t, 10.0, trade.PnLPct(110), 1e-9)
}

func TestStrategyConfigValidateRequiresMatchingVariant(t *testing.T) {
	cfg := StrategyConfig{Kind: StrategyKindEmaGapAtr}
	require.Error(t, cfg.Validate())

	cfg.EmaGapAtr = &EmaGapAtrParams{}
	assert.NoError(t, cfg.Validate())
}

func TestStrategyConfigValidateRejectsUnknownKind(t *testing.T) {
	cfg := StrategyConfig{Kind: StrategyKind("NOT_A_KIND")}
	assert.Error(t, cfg.Validate())
}
