package strategy

import (
	"math"

	"github.com/atlas-quant/backtestengine/internal/indicator"
	"github.com/atlas-quant/backtestengine/pkg/types"
)

// positionState is the evaluator's coarse per-run view of what it last
// told the orchestrator it opened; it is not a source of truth for actual
// open trades (EvaluationContext.ActiveTrades is), only a hint for
// suppressing a duplicate entry signal on the same bar the position
// already reflects.
type positionState int

const (
	stateFlat positionState = iota
	stateLongOpen
	stateShortOpen
)

// observation tracks the most recent bullish/bearish Supertrend
// confirmation and MACD zero-line cross, each as a candle index, so two
// signals occurring within ConfirmationWindow candles of each other count
// as one combined entry trigger.
type observation struct {
	lastBullSupertrendIdx int
	lastBearSupertrendIdx int
	lastBullMacdCrossIdx  int
	lastBearMacdCrossIdx  int
}

func newObservation() observation {
	return observation{
		lastBullSupertrendIdx: -1,
		lastBearSupertrendIdx: -1,
		lastBullMacdCrossIdx:  -1,
		lastBearMacdCrossIdx:  -1,
	}
}

// PriceActionEvaluator implements spec.md §4.2.1: a Supertrend+MACD
// confirmation state machine. Per-(symbol,timeframe) observation state is
// held as instance fields, constructed fresh per run via
// NewPriceActionEvaluator, never a package-level global, per spec.md §9.
type PriceActionEvaluator struct {
	state map[string]positionState
	obs   map[string]observation
}

func NewPriceActionEvaluator() *PriceActionEvaluator {
	return &PriceActionEvaluator{
		state: make(map[string]positionState),
		obs:   make(map[string]observation),
	}
}

func (e *PriceActionEvaluator) key(cfg *types.StrategyConfig) string {
	return cfg.Symbol + "|" + string(cfg.Timeframe)
}

func (e *PriceActionEvaluator) MinDataPoints(cfg *types.StrategyConfig) int {
	p := cfg.PriceAction
	if p == nil {
		return 1
	}
	m := p.SupertrendPeriod
	if p.MacdSlowPeriod > m {
		m = p.MacdSlowPeriod
	}
	if p.MacdSignalPeriod > m {
		m = p.MacdSignalPeriod
	}
	return m + 2
}

func (e *PriceActionEvaluator) Evaluate(cfg *types.StrategyConfig, candles []types.Candle, ctx types.EvaluationContext) (types.EvaluationResult, error) {
	p := cfg.PriceAction
	result := types.EvaluationResult{Diagnostics: map[string]float64{}}
	if p == nil || len(candles) < e.MinDataPoints(cfg) {
		return result, nil
	}

	k := e.key(cfg)
	obs, ok := e.obs[k]
	if !ok {
		obs = newObservation()
	}

	closes := closesOf(candles)
	st := indicator.SupertrendSeries(highsOf(candles), lowsOf(candles), closes, p.SupertrendPeriod, p.SupertrendMult)
	macd := indicator.MACDSeries(closes, p.MacdFastPeriod, p.MacdSlowPeriod, p.MacdSignalPeriod)

	last := len(candles) - 1
	prev := last - 1
	close := closes[last]

	if math.IsNaN(st.Value[last]) || math.IsNaN(macd.MACD[last]) {
		e.obs[k] = obs
		return result, nil
	}

	result.Diagnostics["supertrend"] = st.Value[last]
	result.Diagnostics["macd"] = macd.MACD[last]

	// Update observation: a Supertrend confirmation is a trend-sign flip;
	// a MACD zero-line cross is the MACD line (not the histogram) crossing
	// zero. Both recorded by candle index so "within ConfirmationWindow
	// candles" is an index-distance comparison — all candles in one run
	// share a timeframe, so index distance is equivalent to elapsed bars.
	if prev >= 0 && !math.IsNaN(st.Value[prev]) {
		if st.Trend[prev] == -1 && st.Trend[last] == 1 {
			obs.lastBullSupertrendIdx = last
		}
		if st.Trend[prev] == 1 && st.Trend[last] == -1 {
			obs.lastBearSupertrendIdx = last
		}
	}
	if prev >= 0 && !math.IsNaN(macd.MACD[prev]) {
		if macd.MACD[prev] <= 0 && macd.MACD[last] > 0 {
			obs.lastBullMacdCrossIdx = last
		}
		if macd.MACD[prev] >= 0 && macd.MACD[last] < 0 {
			obs.lastBearMacdCrossIdx = last
		}
	}

	window := p.ConfirmationWindow
	if window <= 0 {
		window = 2
	}

	withinWindow := func(a, b int) bool {
		if a < 0 || b < 0 {
			return false
		}
		d := a - b
		if d < 0 {
			d = -d
		}
		return d <= window
	}

	st8 := e.state[k]

	// EXIT: a Supertrend flip against an open position always closes it,
	// regardless of MACD.
	if prev >= 0 && !math.IsNaN(st.Value[prev]) && st.Trend[prev] != st.Trend[last] {
		switch st8 {
		case stateLongOpen:
			if st.Trend[last] == -1 {
				result.Exits = append(result.Exits, types.ExitSignal{
					Direction: types.ExitDirectionLong, Price: close, Symbol: cfg.Symbol,
					Timeframe: cfg.Timeframe, Strength: 85, Confidence: 75, SupertrendFlip: true,
				})
				st8 = stateFlat
			}
		case stateShortOpen:
			if st.Trend[last] == 1 {
				result.Exits = append(result.Exits, types.ExitSignal{
					Direction: types.ExitDirectionShort, Price: close, Symbol: cfg.Symbol,
					Timeframe: cfg.Timeframe, Strength: 85, Confidence: 75, SupertrendFlip: true,
				})
				st8 = stateFlat
			}
		}
	}

	if ctx.CurrentLots == 0 {
		st8 = stateFlat
	}

	if (st8 == stateFlat || cfg.PyramidingEnabled) && withinWindow(obs.lastBullSupertrendIdx, obs.lastBullMacdCrossIdx) {
		result.Entries = append(result.Entries, types.EntrySignal{
			Direction: types.DirectionLong, Price: close, Symbol: cfg.Symbol,
			Timeframe: cfg.Timeframe, Strength: 70, Confidence: 70,
			Metadata: map[string]float64{"entrySupertrend": st.Value[last]},
		})
		st8 = stateLongOpen
		obs = newObservation()
	} else if (st8 == stateFlat || cfg.PyramidingEnabled) && withinWindow(obs.lastBearSupertrendIdx, obs.lastBearMacdCrossIdx) {
		result.Entries = append(result.Entries, types.EntrySignal{
			Direction: types.DirectionShort, Price: close, Symbol: cfg.Symbol,
			Timeframe: cfg.Timeframe, Strength: 70, Confidence: 70,
			Metadata: map[string]float64{"entrySupertrend": st.Value[last]},
		})
		st8 = stateShortOpen
		obs = newObservation()
	}

	e.state[k] = st8
	e.obs[k] = obs
	return result, nil
}
