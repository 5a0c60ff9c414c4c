package strategy

import (
	"math"

	"github.com/atlas-quant/backtestengine/internal/indicator"
	"github.com/atlas-quant/backtestengine/pkg/types"
)

// TrendFollowingEvaluator implements spec.md §4.2.2: DEMA + Supertrend
// crossover, with optional trend-strength and volatility filters.
type TrendFollowingEvaluator struct{}

// NewTrendFollowingEvaluator builds a fresh, stateless evaluator — this
// strategy needs no cross-candle observation state, unlike price-action.
func NewTrendFollowingEvaluator() *TrendFollowingEvaluator {
	return &TrendFollowingEvaluator{}
}

func (e *TrendFollowingEvaluator) MinDataPoints(cfg *types.StrategyConfig) int {
	p := cfg.TrendFollowing
	if p == nil {
		return 1
	}
	m := p.DemaPeriod
	if p.SupertrendPeriod > m {
		m = p.SupertrendPeriod
	}
	if p.VolatilityFilterEnabled && p.VolatilityLookback > m {
		m = p.VolatilityLookback
	}
	return m + 1
}

func (e *TrendFollowingEvaluator) Evaluate(cfg *types.StrategyConfig, candles []types.Candle, ctx types.EvaluationContext) (types.EvaluationResult, error) {
	p := cfg.TrendFollowing
	result := types.EvaluationResult{Diagnostics: map[string]float64{}}
	if p == nil || len(candles) < e.MinDataPoints(cfg) {
		return result, nil
	}

	closes := closesOf(candles)
	dema := indicator.DEMASeries(closes, p.DemaPeriod)
	st := indicator.SupertrendSeries(highsOf(candles), lowsOf(candles), closes, p.SupertrendPeriod, p.SupertrendMult)

	last := len(candles) - 1
	close := closes[last]
	demaLast := dema[last]
	stLast := st.Value[last]
	trendLast := st.Trend[last]

	result.Diagnostics["dema"] = demaLast
	result.Diagnostics["supertrend"] = stLast

	if math.IsNaN(demaLast) || math.IsNaN(stLast) {
		return result, nil
	}

	// EXIT (BOTH) on any Supertrend flip between the previous and current
	// candle; the signal does not check which side, if any, is open.
	if last > 0 && !math.IsNaN(st.Value[last-1]) && st.Trend[last-1] != trendLast {
		result.Exits = append(result.Exits, types.ExitSignal{
			Direction:      types.ExitDirectionBoth,
			Price:          close,
			Symbol:         cfg.Symbol,
			Timeframe:      cfg.Timeframe,
			Strength:       80,
			Confidence:     70,
			SupertrendFlip: true,
		})
	}

	if ctx.CurrentLots > 0 && !cfg.PyramidingEnabled {
		return result, nil
	}

	passesFilters := true
	if p.MinTrendStrengthEnabled && close != 0 {
		strength := math.Abs(close-demaLast) / close
		if strength < p.MinTrendStrength {
			passesFilters = false
		}
	}
	if p.VolatilityFilterEnabled {
		vol := returnStdDev(closes, p.VolatilityLookback, last)
		if vol > p.VolatilityCap {
			passesFilters = false
		}
	}

	if passesFilters {
		if close > demaLast && close > stLast {
			result.Entries = append(result.Entries, types.EntrySignal{
				Direction:  types.DirectionLong,
				Price:      close,
				Symbol:     cfg.Symbol,
				Timeframe:  cfg.Timeframe,
				Strength:   60,
				Confidence: 60,
			})
		} else if close < demaLast && close < stLast {
			result.Entries = append(result.Entries, types.EntrySignal{
				Direction:  types.DirectionShort,
				Price:      close,
				Symbol:     cfg.Symbol,
				Timeframe:  cfg.Timeframe,
				Strength:   60,
				Confidence: 60,
			})
		}
	}

	return result, nil
}

// returnStdDev computes the population standard deviation of simple
// returns over the trailing `lookback` candles ending at index `at`.
func returnStdDev(closes []float64, lookback, at int) float64 {
	start := at - lookback + 1
	if start < 1 {
		start = 1
	}
	var returns []float64
	for i := start; i <= at; i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}
