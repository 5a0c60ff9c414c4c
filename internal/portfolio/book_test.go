package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func openTrade(id string, entryPrice float64, entryTs int64) types.ActiveTrade {
	return types.ActiveTrade{
		ID:               id,
		Symbol:           "BTCUSDT",
		Direction:        types.DirectionLong,
		EntryPrice:       entryPrice,
		Quantity:         1,
		EntryTimestampMs: entryTs,
	}
}

func TestFIFOExitOrdersByAscendingEntryTime(t *testing.T) {
	b := NewBook(10000)
	b.Open(openTrade("a", 100, 0))
	b.Open(openTrade("b", 110, 1))
	b.Open(openTrade("c", 120, 2))

	completed := b.ExitMatching(types.ExitDirectionLong, types.ExitModeFIFO, 115, 3, types.ExitReasonSignal)
	require.Len(t, completed, 3)
	assert.Equal(t, 15.0, completed[0].PnL) // 100 -> 115
	assert.Equal(t, 5.0, completed[1].PnL)  // 110 -> 115
	assert.Equal(t, -5.0, completed[2].PnL) // 120 -> 115
}

func TestLIFOExitOrdersByDescendingEntryTime(t *testing.T) {
	b := NewBook(10000)
	b.Open(openTrade("a", 100, 0))
	b.Open(openTrade("b", 110, 1))
	b.Open(openTrade("c", 120, 2))

	completed := b.ExitMatching(types.ExitDirectionLong, types.ExitModeLIFO, 115, 3, types.ExitReasonSignal)
	require.Len(t, completed, 3)
	assert.Equal(t, -5.0, completed[0].PnL) // 120 -> 115
	assert.Equal(t, 5.0, completed[1].PnL)  // 110 -> 115
	assert.Equal(t, 15.0, completed[2].PnL) // 100 -> 115
}

func TestBothExitsAlwaysFIFORegardlessOfExitMode(t *testing.T) {
	b := NewBook(10000)
	b.Open(openTrade("a", 100, 0))
	b.Open(openTrade("b", 110, 1))

	completed := b.ExitMatching(types.ExitDirectionBoth, types.ExitModeLIFO, 115, 3, types.ExitReasonSignal)
	require.Len(t, completed, 2)
	assert.Equal(t, 15.0, completed[0].PnL)
	assert.Equal(t, 5.0, completed[1].PnL)
}

func TestCurrentLotsEqualsSumOfActiveQuantities(t *testing.T) {
	b := NewBook(10000)
	b.Open(openTrade("a", 100, 0))
	b.Open(openTrade("b", 110, 1))
	assert.Equal(t, 2.0, b.CurrentLots())
	b.ExitByID("a", 105, 2, types.ExitReasonSignal)
	assert.Equal(t, 1.0, b.CurrentLots())
}

func TestEquityEqualsCashPlusUnrealized(t *testing.T) {
	b := NewBook(10000)
	b.Open(openTrade("a", 100, 0))
	equity := b.Equity(105)
	assert.Equal(t, b.CashBalance()+5.0, equity)
}

func TestDrawdownNeverExceedsPeak(t *testing.T) {
	b := NewBook(1000)
	d1 := b.UpdateDrawdown(1100)
	assert.Equal(t, 0.0, d1)
	d2 := b.UpdateDrawdown(1000)
	assert.InDelta(t, 100.0/1100.0, d2, 1e-9)
}

func TestSingleLongWinScenario(t *testing.T) {
	// spec.md §8 scenario 1: entry 101, exit 104, qty 1.
	b := NewBook(1000)
	b.Open(openTrade("a", 101, 1))
	completed := b.ExitAll(104, 4, types.ExitReasonSignal)
	require.Len(t, completed, 1)
	assert.Equal(t, 3.0, completed[0].PnL)
	assert.InDelta(t, 3.0/101.0*100, completed[0].PnLPct, 1e-9)
}
