// Package viability scores a completed backtest's performance and risk
// profile against fixed thresholds and grades it A-F, per SPEC_FULL.md
// §11.8. Grounded on the teacher's internal/backtester/{metrics,viability}.go,
// retyped onto this module's float64 CompletedTrade/EquityPoint/BacktestResult
// instead of decimal.Decimal Trade/EquityCurvePoint.
package viability

import (
	"math"
	"sort"
	"time"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

// MetricsCalculator derives a PerformanceMetrics/RiskMetrics scorecard from
// a completed run's trade ledger and equity curve.
type MetricsCalculator struct{}

// NewMetricsCalculator creates a new metrics calculator.
func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

// Calculate computes the full PerformanceMetrics scorecard.
func (mc *MetricsCalculator) Calculate(
	trades []types.CompletedTrade,
	equityCurve []types.EquityPoint,
	initialCapital float64,
) *types.PerformanceMetrics {
	metrics := &types.PerformanceMetrics{}
	if len(trades) == 0 || len(equityCurve) == 0 {
		return metrics
	}

	var winningTrades, losingTrades int
	var totalWins, totalLosses float64
	var largestWin, largestLoss float64
	var totalHoldingTime time.Duration

	for _, trade := range trades {
		if trade.PnL > 0 {
			winningTrades++
			totalWins += trade.PnL
			if trade.PnL > largestWin {
				largestWin = trade.PnL
			}
		} else if trade.PnL < 0 {
			losingTrades++
			totalLosses += -trade.PnL
			if -trade.PnL > largestLoss {
				largestLoss = -trade.PnL
			}
		}
		totalHoldingTime += time.Duration(trade.DurationMs) * time.Millisecond
	}

	metrics.TotalTrades = len(trades)
	metrics.WinningTrades = winningTrades
	metrics.LosingTrades = losingTrades
	metrics.LargestWin = largestWin
	metrics.LargestLoss = largestLoss

	if metrics.TotalTrades > 0 {
		metrics.WinRate = float64(winningTrades) / float64(metrics.TotalTrades)
		metrics.AvgHoldingTime = totalHoldingTime / time.Duration(metrics.TotalTrades)
	}
	if winningTrades > 0 {
		metrics.AvgWin = totalWins / float64(winningTrades)
	}
	if losingTrades > 0 {
		metrics.AvgLoss = totalLosses / float64(losingTrades)
	}
	if totalLosses > 0 {
		metrics.ProfitFactor = totalWins / totalLosses
	}
	if metrics.TotalTrades > 0 {
		winPct := metrics.WinRate
		lossPct := 1 - winPct
		metrics.Expectancy = winPct*metrics.AvgWin - lossPct*metrics.AvgLoss
	}

	if initialCapital != 0 {
		finalEquity := equityCurve[len(equityCurve)-1].Equity
		metrics.TotalReturn = (finalEquity - initialCapital) / initialCapital
	}

	returns := mc.calculatePeriodReturns(equityCurve)

	if len(returns) > 0 {
		avgReturn := mc.mean(returns)
		metrics.AnnualizedReturn = avgReturn * 252
	}

	if len(returns) > 1 {
		avgReturn := mc.mean(returns)
		stdDev := mc.stdDev(returns)
		if stdDev > 0 {
			metrics.SharpeRatio = (avgReturn / stdDev) * math.Sqrt(252)
		}
		downsideDev := mc.downsideDeviation(returns)
		if downsideDev > 0 {
			metrics.SortinoRatio = (avgReturn / downsideDev) * math.Sqrt(252)
		}
	}

	metrics.MaxDrawdown = mc.calculateMaxDrawdown(equityCurve)
	if metrics.MaxDrawdown > 0 {
		metrics.CalmarRatio = metrics.AnnualizedReturn / metrics.MaxDrawdown
	}

	return metrics
}

// CalculateRiskMetrics computes VaR/CVaR/volatility from the equity curve.
func (mc *MetricsCalculator) CalculateRiskMetrics(equityCurve []types.EquityPoint) *types.RiskMetrics {
	metrics := &types.RiskMetrics{}
	returns := mc.calculatePeriodReturns(equityCurve)
	if len(returns) == 0 {
		return metrics
	}

	dailyVol := mc.stdDev(returns)
	metrics.DailyVolatility = dailyVol
	metrics.AnnualVolatility = dailyVol * math.Sqrt(252)

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx95 := int(float64(len(sorted)) * 0.05)
	if idx95 >= 0 && idx95 < len(sorted) {
		metrics.VaR95 = -sorted[idx95]
	}
	idx99 := int(float64(len(sorted)) * 0.01)
	if idx99 >= 0 && idx99 < len(sorted) {
		metrics.VaR99 = -sorted[idx99]
	}
	if idx95 > 0 {
		var sum float64
		for i := 0; i < idx95; i++ {
			sum += sorted[i]
		}
		metrics.CVaR95 = -sum / float64(idx95)
	}

	return metrics
}

func (mc *MetricsCalculator) calculatePeriodReturns(equityCurve []types.EquityPoint) []float64 {
	if len(equityCurve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		prev := equityCurve[i-1].Equity
		curr := equityCurve[i].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curr-prev)/prev)
	}
	return returns
}

func (mc *MetricsCalculator) calculateMaxDrawdown(equityCurve []types.EquityPoint) float64 {
	if len(equityCurve) == 0 {
		return 0
	}
	var maxDD float64
	peak := equityCurve[0].Equity
	for _, point := range equityCurve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak > 0 {
			dd := (peak - point.Equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func (mc *MetricsCalculator) mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func (mc *MetricsCalculator) stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := mc.mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

func (mc *MetricsCalculator) downsideDeviation(returns []float64) float64 {
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) == 0 {
		return 0
	}
	return mc.stdDev(negative)
}
