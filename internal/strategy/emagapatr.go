package strategy

import (
	"math"

	"github.com/atlas-quant/backtestengine/internal/indicator"
	"github.com/atlas-quant/backtestengine/pkg/types"
)

// EmaGapAtrEvaluator implements spec.md §4.2.3: EMA entries gated by an
// ATR-normalized gap and an RSI threshold, with an optional gap-open
// variant. An entry fires on any bar where the gap and RSI conditions
// hold; a fresh EMA crossover on that bar is not required. Stateless
// across candles, like TrendFollowingEvaluator.
type EmaGapAtrEvaluator struct{}

func NewEmaGapAtrEvaluator() *EmaGapAtrEvaluator {
	return &EmaGapAtrEvaluator{}
}

func (e *EmaGapAtrEvaluator) MinDataPoints(cfg *types.StrategyConfig) int {
	p := cfg.EmaGapAtr
	if p == nil {
		return 1
	}
	m := p.EmaSlowPeriod
	if p.AtrPeriod > m {
		m = p.AtrPeriod
	}
	if p.RsiPeriod > m {
		m = p.RsiPeriod
	}
	return m + 1
}

func (e *EmaGapAtrEvaluator) Evaluate(cfg *types.StrategyConfig, candles []types.Candle, ctx types.EvaluationContext) (types.EvaluationResult, error) {
	p := cfg.EmaGapAtr
	result := types.EvaluationResult{Diagnostics: map[string]float64{}}
	if p == nil || len(candles) < e.MinDataPoints(cfg) {
		return result, nil
	}

	closes := closesOf(candles)
	fast := indicator.EMASeries(closes, p.EmaFastPeriod)
	slow := indicator.EMASeries(closes, p.EmaSlowPeriod)
	atr := indicator.ATRSeries(highsOf(candles), lowsOf(candles), closes, p.AtrPeriod)
	rsi := indicator.RSISeries(closes, p.RsiPeriod)

	last := len(candles) - 1
	prev := last - 1
	close := closes[last]
	fastLast, slowLast, atrLast, rsiLast := fast[last], slow[last], atr[last], rsi[last]

	result.Diagnostics["emaFast"] = fastLast
	result.Diagnostics["emaSlow"] = slowLast
	result.Diagnostics["atr"] = atrLast
	result.Diagnostics["rsi"] = rsiLast

	if math.IsNaN(atrLast) || math.IsNaN(rsiLast) || atrLast == 0 {
		return result, nil
	}

	gap := (fastLast - slowLast) / atrLast
	result.Diagnostics["gap"] = gap

	// EXITs: EMA flip against the position, RSI breach, or gap contraction
	// below the unwind threshold. All directions resolve independently so
	// a LONG-only or SHORT-only exit can fire without touching BOTH.
	if prev >= 0 && !math.IsNaN(fast[prev]) && !math.IsNaN(slow[prev]) {
		flippedDown := fast[prev] >= slow[prev] && fastLast < slowLast
		flippedUp := fast[prev] <= slow[prev] && fastLast > slowLast
		if flippedDown {
			result.Exits = append(result.Exits, types.ExitSignal{
				Direction: types.ExitDirectionLong, Price: close, Symbol: cfg.Symbol,
				Timeframe: cfg.Timeframe, Strength: 75, Confidence: 70,
			})
		}
		if flippedUp {
			result.Exits = append(result.Exits, types.ExitSignal{
				Direction: types.ExitDirectionShort, Price: close, Symbol: cfg.Symbol,
				Timeframe: cfg.Timeframe, Strength: 75, Confidence: 70,
			})
		}
	}
	if p.RsiExitLong > 0 && rsiLast <= p.RsiExitLong {
		result.Exits = append(result.Exits, types.ExitSignal{
			Direction: types.ExitDirectionLong, Price: close, Symbol: cfg.Symbol,
			Timeframe: cfg.Timeframe, Strength: 60, Confidence: 55,
		})
	}
	if p.RsiExitShort > 0 && rsiLast >= p.RsiExitShort {
		result.Exits = append(result.Exits, types.ExitSignal{
			Direction: types.ExitDirectionShort, Price: close, Symbol: cfg.Symbol,
			Timeframe: cfg.Timeframe, Strength: 60, Confidence: 55,
		})
	}
	if p.AtrMultiplierUnwind > 0 && math.Abs(gap) < p.AtrMultiplierUnwind {
		result.Exits = append(result.Exits, types.ExitSignal{
			Direction: types.ExitDirectionBoth, Price: close, Symbol: cfg.Symbol,
			Timeframe: cfg.Timeframe, Strength: 50, Confidence: 50,
		})
	}

	if ctx.CurrentLots > 0 && !cfg.PyramidingEnabled {
		return result, nil
	}

	gapOpenOK := true
	if p.GapOpenEnabled {
		gapOpenOK = false
		if prev >= 0 && candles[prev].Close != 0 {
			openGapPct := (candles[last].Open - candles[prev].Close) / candles[prev].Close
			if math.Abs(openGapPct) >= p.GapThresholdPct {
				body := math.Abs(candles[last].Close - candles[last].Open)
				rangeSz := candles[last].High - candles[last].Low
				if rangeSz > 0 && body/rangeSz >= p.StrongCandleThreshold {
					gapOpenOK = true
				}
			}
		}
	}

	if gapOpenOK && gap >= p.AtrMultiplierEntry && rsiLast >= p.RsiEntryLong {
		result.Entries = append(result.Entries, types.EntrySignal{
			Direction: types.DirectionLong, Price: close, Symbol: cfg.Symbol,
			Timeframe: cfg.Timeframe, Strength: 65, Confidence: 65,
		})
	} else if gapOpenOK && gap <= -p.AtrMultiplierEntry && rsiLast <= p.RsiEntryShort {
		result.Entries = append(result.Entries, types.EntrySignal{
			Direction: types.DirectionShort, Price: close, Symbol: cfg.Symbol,
			Timeframe: cfg.Timeframe, Strength: 65, Confidence: 65,
		})
	}

	return result, nil
}
