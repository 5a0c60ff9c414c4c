package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/internal/strategy"
	"github.com/atlas-quant/backtestengine/pkg/types"
)

// scriptedEvaluator emits exactly the signals a test scenario specifies
// for a given candle index, inferred from the prefix length (index =
// len(candles)-1). It lets orchestrator tests pin down the exact §4.1
// scenarios of spec.md §8 without depending on any concrete indicator
// evaluator's math.
type scriptedEvaluator struct {
	minData int
	entries map[int][]types.EntrySignal
	exits   map[int][]types.ExitSignal
}

func (s *scriptedEvaluator) MinDataPoints(cfg *types.StrategyConfig) int { return s.minData }

func (s *scriptedEvaluator) Evaluate(cfg *types.StrategyConfig, candles []types.Candle, ctx types.EvaluationContext) (types.EvaluationResult, error) {
	idx := len(candles) - 1
	return types.EvaluationResult{
		Entries: s.entries[idx],
		Exits:   s.exits[idx],
	}, nil
}

func newTestOrchestrator(ev strategy.Evaluator) *Orchestrator {
	reg := strategy.NewRegistry()
	reg.Register(types.StrategyKindEmaGapAtr, func() strategy.Evaluator { return ev })
	return New(zap.NewNop(), reg)
}

func candleSeries(closes []float64) []types.Candle {
	out := make([]types.Candle, len(closes))
	for i, c := range closes {
		out[i] = types.Candle{
			TimestampMs: int64(i) * 60_000,
			Open:        c, High: c + 1, Low: c - 1, Close: c,
			Volume: 100, Timeframe: types.Timeframe1h,
		}
	}
	return out
}

func baseEmaCfg() *types.StrategyConfig {
	return &types.StrategyConfig{
		Kind:         types.StrategyKindEmaGapAtr,
		Symbol:       "BTCUSDT",
		Timeframe:    types.Timeframe1h,
		Capital:      1000,
		MaxLossPct:   0.5,
		MaxLots:      1,
		PositionSize: 1,
		ExitMode:     types.ExitModeFIFO,
		EmaGapAtr: &types.EmaGapAtrParams{
			EmaFastPeriod: 2, EmaSlowPeriod: 3, AtrPeriod: 2,
			RsiPeriod: 2, RsiEntryLong: 1, RsiEntryShort: 1,
		},
	}
}

// Scenario 1 (spec.md §8): 5-candle series [100,101,102,103,104], ENTRY
// LONG at index 1 (price 101), EXIT at index 4 (price 104), quantity 1.
func TestSingleLongWinScenario(t *testing.T) {
	ev := &scriptedEvaluator{
		// warmup = MinDataPoints+10; use a negative value so warmup
		// resolves to 1 and the loop covers every candle in this short
		// scripted series, matching the scenario's own candle count.
		minData: -9,
		entries: map[int][]types.EntrySignal{
			1: {{Direction: types.DirectionLong, Price: 101, Symbol: "BTCUSDT", Timeframe: types.Timeframe1h}},
		},
		exits: map[int][]types.ExitSignal{
			4: {{Direction: types.ExitDirectionLong, Price: 104, Symbol: "BTCUSDT", Timeframe: types.Timeframe1h}},
		},
	}
	o := newTestOrchestrator(ev)
	cfg := baseEmaCfg()
	cfg.Capital = 1000
	candles := candleSeries([]float64{100, 101, 102, 103, 104})

	res, err := o.RunBacktest(cfg, candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.InDelta(t, 3.0, res.Trades[0].PnL, 1e-9)
	assert.InDelta(t, 3.0/101.0*100, res.Trades[0].PnLPct, 1e-9)
	assert.InDelta(t, cfg.Capital+3.0, res.FinalCapital, 1e-9)
}

// Scenario 4 (spec.md §8): an opposing Supertrend-flip EXIT signal on a
// run with an ATR stop-loss configured; the signal exit is processed in
// step 6, before the step-7 stop-loss check, and is tagged
// SUPERTREND_FLIP rather than STOP_LOSS.
func TestStopLossAfterSignalSupertrendExitWins(t *testing.T) {
	ev := &scriptedEvaluator{
		minData: -9,
		entries: map[int][]types.EntrySignal{
			0: {{Direction: types.DirectionLong, Price: 100, Symbol: "BTCUSDT", Timeframe: types.Timeframe1h}},
		},
		exits: map[int][]types.ExitSignal{
			1: {{Direction: types.ExitDirectionLong, Price: 95, Symbol: "BTCUSDT", Timeframe: types.Timeframe1h, SupertrendFlip: true}},
		},
	}
	o := newTestOrchestrator(ev)
	cfg := baseEmaCfg()
	cfg.StopLoss = types.StopLossConfig{Enabled: true, Mode: "ATR", AtrMultiplier: 2}
	candles := candleSeries([]float64{100, 95})
	// The scripted evaluator reports no ATR diagnostic, so the trade's
	// AtrAtEntry is zero and the ATR-mode stop-loss check skips it
	// (orchestrator.go applyStopLoss). The stop therefore never fires
	// here; the test checks that the step-6 signal exit closes the trade
	// with the flip reason.

	res, err := o.RunBacktest(cfg, candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, types.ExitReasonSupertrendFlip, res.Trades[0].ExitReason)
}

// Scenario 6 (spec.md §8): warm-up correctness. With a strategy whose
// MinDataPoints is M, no signals are evaluated and no equity points are
// recorded for the first M+10 candles; the equity curve length equals
// candles.length - warmup + 1.
func TestWarmupCorrectness(t *testing.T) {
	ev := &scriptedEvaluator{minData: 52}
	o := newTestOrchestrator(ev)
	cfg := baseEmaCfg()
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	candles := candleSeries(closes)

	res, err := o.RunBacktest(cfg, candles)
	require.NoError(t, err)
	warm := 52 + 10
	assert.Len(t, res.EquityCurve, len(candles)-warm+1)
}

// Invariant (spec.md §8): finalCapital = initialCapital + sum(pnl), for
// all runs, independent of how many trades occur.
func TestFinalCapitalEqualsInitialPlusSumPnL(t *testing.T) {
	ev := &scriptedEvaluator{
		minData: -9,
		entries: map[int][]types.EntrySignal{
			0: {{Direction: types.DirectionLong, Price: 100, Symbol: "BTCUSDT", Timeframe: types.Timeframe1h}},
			2: {{Direction: types.DirectionLong, Price: 102, Symbol: "BTCUSDT", Timeframe: types.Timeframe1h}},
		},
		exits: map[int][]types.ExitSignal{
			1: {{Direction: types.ExitDirectionLong, Price: 101, Symbol: "BTCUSDT", Timeframe: types.Timeframe1h}},
			3: {{Direction: types.ExitDirectionLong, Price: 99, Symbol: "BTCUSDT", Timeframe: types.Timeframe1h}},
		},
	}
	o := newTestOrchestrator(ev)
	cfg := baseEmaCfg()
	candles := candleSeries([]float64{100, 101, 102, 99})

	res, err := o.RunBacktest(cfg, candles)
	require.NoError(t, err)

	var sumPnL float64
	for _, tr := range res.Trades {
		sumPnL += tr.PnL
	}
	assert.InDelta(t, cfg.Capital+sumPnL, res.FinalCapital, 1e-9)
}

// Safety gate: any config with maxLossPct = 0 is rejected before the loop.
func TestRunBacktestRejectsZeroMaxLossPctBeforeLoop(t *testing.T) {
	ev := &scriptedEvaluator{minData: 1}
	o := newTestOrchestrator(ev)
	cfg := baseEmaCfg()
	cfg.MaxLossPct = 0
	candles := candleSeries([]float64{100, 101, 102})

	_, err := o.RunBacktest(cfg, candles)
	assert.Error(t, err)
}

func TestRunBacktestRejectsTooFewCandles(t *testing.T) {
	ev := &scriptedEvaluator{minData: 52}
	o := newTestOrchestrator(ev)
	cfg := baseEmaCfg()
	candles := candleSeries([]float64{100, 101, 102})

	_, err := o.RunBacktest(cfg, candles)
	assert.Error(t, err)
}
