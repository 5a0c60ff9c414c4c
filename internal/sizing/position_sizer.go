// Package sizing provides intelligent position sizing.
// Based on research: "Kelly Criterion, fractional Kelly, and regime-adjusted sizing"
// Uses: win rate and win/loss ratio (fractional Kelly) and volatility
// targeting; no correlation or regime adjustment is applied.
package sizing

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PositionSizer calculates optimal position sizes
type PositionSizer struct {
	logger *zap.Logger
	config *SizingConfig

	mu              sync.RWMutex
	tradeHistory    []*TradeResult
	correlationData map[string][]float64
}

// SizingConfig configures position sizing
type SizingConfig struct {
	MaxPositionPct        float64 // Maximum position as % of portfolio (default 10%)
	MaxPortfolioRisk      float64 // Maximum portfolio risk (default 2%)
	KellyFraction         float64 // Fraction of Kelly to use (default 0.25)
	MinPositionPct        float64 // Minimum position size (default 0.5%)
	UseRegimeAdjustment   bool    // Not read; sizing applies no regime adjustment
	UseCorrelationScaling bool    // Not read; sizing applies no correlation scaling
	MaxCorrelatedRisk     float64 // Max risk for correlated positions
	LookbackTrades        int     // Number of trades for statistics
}

// DefaultSizingConfig returns conservative defaults
func DefaultSizingConfig() *SizingConfig {
	return &SizingConfig{
		MaxPositionPct:        0.10,  // 10% max per position
		MaxPortfolioRisk:      0.02,  // 2% portfolio risk
		KellyFraction:         0.25,  // Quarter Kelly
		MinPositionPct:        0.005, // 0.5% min
		UseRegimeAdjustment:   true,
		UseCorrelationScaling: true,
		MaxCorrelatedRisk:     0.05, // 5% max correlated risk
		LookbackTrades:        100,
	}
}

// AggressiveSizingConfig for more aggressive sizing
func AggressiveSizingConfig() *SizingConfig {
	return &SizingConfig{
		MaxPositionPct:        0.20, // 20% max
		MaxPortfolioRisk:      0.05, // 5% portfolio risk
		KellyFraction:         0.50, // Half Kelly
		MinPositionPct:        0.01, // 1% min
		UseRegimeAdjustment:   true,
		UseCorrelationScaling: true,
		MaxCorrelatedRisk:     0.10,
		LookbackTrades:        50,
	}
}

// TradeResult represents a historical trade outcome
type TradeResult struct {
	Symbol       string
	Entry        decimal.Decimal
	Exit         decimal.Decimal
	ReturnPct    float64
	IsWin        bool
	RiskTaken    decimal.Decimal
	RewardGained decimal.Decimal
}

// NewPositionSizer creates a new position sizer
func NewPositionSizer(logger *zap.Logger, config *SizingConfig) *PositionSizer {
	if config == nil {
		config = DefaultSizingConfig()
	}

	return &PositionSizer{
		logger:          logger,
		config:          config,
		tradeHistory:    make([]*TradeResult, 0, config.LookbackTrades*2),
		correlationData: make(map[string][]float64),
	}
}

// calculateKelly implements Kelly Criterion
// f* = (p*b - q) / b = p - q/b
// where p = win probability, q = 1-p, b = win/loss ratio
func (ps *PositionSizer) calculateKelly(winRate, avgWin, avgLoss float64) float64 {
	if winRate <= 0 || winRate >= 1 || avgLoss == 0 {
		return 0
	}

	p := winRate
	q := 1 - p
	b := avgWin / avgLoss // Win/loss ratio

	if b <= 0 {
		return 0
	}

	kelly := p - q/b

	// Kelly can be negative (don't trade) or very large (risky)
	if kelly < 0 {
		return 0
	}
	if kelly > 1 {
		kelly = 1
	}

	return kelly
}

// AddTradeResult adds a trade result for statistics
func (ps *PositionSizer) AddTradeResult(result *TradeResult) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.tradeHistory = append(ps.tradeHistory, result)

	// Trim to lookback
	if len(ps.tradeHistory) > ps.config.LookbackTrades*2 {
		ps.tradeHistory = ps.tradeHistory[len(ps.tradeHistory)-ps.config.LookbackTrades:]
	}
}

// GetTradeStatistics returns statistics from trade history
func (ps *PositionSizer) GetTradeStatistics() *TradeStatistics {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	stats := &TradeStatistics{}

	if len(ps.tradeHistory) == 0 {
		return stats
	}

	stats.TotalTrades = len(ps.tradeHistory)

	var totalWins, totalLosses int
	var sumWins, sumLosses float64
	var sumReturns float64

	for _, trade := range ps.tradeHistory {
		sumReturns += trade.ReturnPct

		if trade.IsWin {
			totalWins++
			sumWins += trade.ReturnPct
		} else {
			totalLosses++
			sumLosses += math.Abs(trade.ReturnPct)
		}
	}

	stats.Wins = totalWins
	stats.Losses = totalLosses
	stats.WinRate = float64(totalWins) / float64(stats.TotalTrades)

	if totalWins > 0 {
		stats.AvgWin = sumWins / float64(totalWins)
	}
	if totalLosses > 0 {
		stats.AvgLoss = sumLosses / float64(totalLosses)
	}

	if stats.AvgLoss > 0 {
		stats.PayoffRatio = stats.AvgWin / stats.AvgLoss
	}

	stats.Expectancy = stats.WinRate*stats.AvgWin - (1-stats.WinRate)*stats.AvgLoss
	stats.KellyOptimal = ps.calculateKelly(stats.WinRate, stats.AvgWin, stats.AvgLoss)
	stats.KellyRecommended = stats.KellyOptimal * ps.config.KellyFraction

	return stats
}

// TradeStatistics contains trading statistics
type TradeStatistics struct {
	TotalTrades      int     `json:"total_trades"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	WinRate          float64 `json:"win_rate"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	PayoffRatio      float64 `json:"payoff_ratio"`
	Expectancy       float64 `json:"expectancy"`
	KellyOptimal     float64 `json:"kelly_optimal"`
	KellyRecommended float64 `json:"kelly_recommended"`
}

// VolatilityScaledSizer adjusts position size based on volatility targeting
type VolatilityScaledSizer struct {
	logger           *zap.Logger
	targetVolatility float64 // Target portfolio volatility
	lookbackDays     int     // Days for volatility calculation
}

// NewVolatilityScaledSizer creates a volatility-targeting sizer
func NewVolatilityScaledSizer(logger *zap.Logger, targetVol float64, lookback int) *VolatilityScaledSizer {
	return &VolatilityScaledSizer{
		logger:           logger,
		targetVolatility: targetVol,
		lookbackDays:     lookback,
	}
}

// CalculateVolTargetSize calculates size for volatility targeting
func (vss *VolatilityScaledSizer) CalculateVolTargetSize(currentVol float64) float64 {
	if currentVol <= 0 {
		return 1.0 // Full position
	}

	// Leverage = Target Vol / Current Vol
	leverage := vss.targetVolatility / currentVol

	// Cap leverage
	if leverage > 2.0 {
		leverage = 2.0
	}
	if leverage < 0.1 {
		leverage = 0.1
	}

	return leverage
}
