package types

import (
	"fmt"
	"time"
)

// Direction is the side of a trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// ExitMode controls which active trade closes first when a single EXIT
// signal resolves against more than one open trade in the same symbol.
type ExitMode string

const (
	ExitModeFIFO ExitMode = "FIFO"
	ExitModeLIFO ExitMode = "LIFO"
)

// StrategyKind discriminates the StrategyConfig variant payload.
type StrategyKind string

const (
	StrategyKindEmaGapAtr      StrategyKind = "EMA_GAP_ATR"
	StrategyKindTrendFollowing StrategyKind = "TREND_FOLLOWING"
	StrategyKindPriceAction    StrategyKind = "PRICE_ACTION"
)

// EmaGapAtrParams is the variant payload for StrategyKindEmaGapAtr.
type EmaGapAtrParams struct {
	EmaFastPeriod       int     `json:"emaFastPeriod"`
	EmaSlowPeriod       int     `json:"emaSlowPeriod"`
	AtrPeriod           int     `json:"atrPeriod"`
	AtrMultiplierEntry  float64 `json:"atrMultiplierEntry"`
	AtrMultiplierUnwind float64 `json:"atrMultiplierUnwind"`
	RsiPeriod           int     `json:"rsiPeriod"`
	RsiEntryLong        float64 `json:"rsiEntryLong"`
	RsiEntryShort       float64 `json:"rsiEntryShort"`
	RsiExitLong         float64 `json:"rsiExitLong"`
	RsiExitShort        float64 `json:"rsiExitShort"`

	GapOpenEnabled        bool    `json:"gapOpenEnabled"`
	GapThresholdPct       float64 `json:"gapThresholdPct"`
	StrongCandleThreshold float64 `json:"strongCandleThreshold"`
}

// TrendFollowingParams is the variant payload for StrategyKindTrendFollowing.
type TrendFollowingParams struct {
	DemaPeriod       int     `json:"demaPeriod"`
	SupertrendPeriod int     `json:"supertrendPeriod"`
	SupertrendMult   float64 `json:"supertrendMultiplier"`

	MinTrendStrengthEnabled bool    `json:"minTrendStrengthEnabled"`
	MinTrendStrength        float64 `json:"minTrendStrength"`

	VolatilityFilterEnabled bool    `json:"volatilityFilterEnabled"`
	VolatilityLookback      int     `json:"volatilityLookback"`
	VolatilityCap           float64 `json:"volatilityCap"`
}

// PriceActionParams is the variant payload for StrategyKindPriceAction.
type PriceActionParams struct {
	SupertrendPeriod int     `json:"supertrendPeriod"`
	SupertrendMult   float64 `json:"supertrendMultiplier"`
	MacdFastPeriod   int     `json:"macdFastPeriod"`
	MacdSlowPeriod   int     `json:"macdSlowPeriod"`
	MacdSignalPeriod int     `json:"macdSignalPeriod"`

	// ConfirmationWindow bounds how many prior candles a Supertrend
	// confirmation and a MACD zero-line cross may be apart and still
	// count as one entry signal.
	ConfirmationWindow int `json:"confirmationWindow"`
}

// TrailingStopConfig configures the trailing-stop state machine.
type TrailingStopConfig struct {
	Enabled             bool    `json:"enabled"`
	ActivationProfitPct float64 `json:"activationProfitPct"`
	Mode                string  `json:"mode"` // "ATR" or "PERCENT"
	AtrMultiplier       float64 `json:"atrMultiplier"`
	PercentDistance     float64 `json:"percentDistance"`
}

// StopLossConfig configures the post-signal stop-loss check.
type StopLossConfig struct {
	Enabled         bool    `json:"enabled"`
	Mode            string  `json:"mode"` // "ATR" or "PERCENT"
	AtrMultiplier   float64 `json:"atrMultiplier"`
	PercentDistance float64 `json:"percentDistance"`
}

// ProfitTargetConfig configures the fixed profit-target exit.
type ProfitTargetConfig struct {
	Enabled   bool    `json:"enabled"`
	TargetPct float64 `json:"targetPct"`
}

// StrategyConfig is the discriminated, immutable configuration for one
// backtest run. Exactly one of the variant fields is populated, selected
// by Kind.
type StrategyConfig struct {
	Kind StrategyKind `json:"kind"`

	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`

	Capital      float64  `json:"capital"`
	MaxLossPct   float64  `json:"maxLossPct"`
	PositionSize float64  `json:"positionSize"`
	MaxLots      int      `json:"maxLots"`
	ExitMode     ExitMode `json:"exitMode"`

	PyramidingEnabled bool `json:"pyramidingEnabled"`

	// MisExitTimeMinutes, if > 0, is minutes-since-midnight (candle
	// timestamp, UTC) at which all remaining trades are force-closed
	// with reason TIME_EXIT. Zero (the unset value) or a negative value
	// disables it.
	MisExitTimeMinutes int `json:"misExitTimeMinutes"`

	MaxDrawdownThreshold float64 `json:"maxDrawdownThreshold"`

	DynamicPositionSizing bool    `json:"dynamicPositionSizing"`
	MaxTradePct           float64 `json:"maxTradePct"`
	BasePositionSize      float64 `json:"basePositionSize"`

	// DynamicSizer names an internal/sizing alternate sizer (e.g.
	// "kelly", "volatility_target"); empty uses the baseline
	// floor(min(capital*maxTradePct, available)/entryPrice) formula.
	// Only consulted when DynamicPositionSizing is true.
	DynamicSizer string `json:"dynamicSizer,omitempty"`

	TrailingStop TrailingStopConfig `json:"trailingStop"`
	StopLoss     StopLossConfig     `json:"stopLoss"`
	ProfitTarget ProfitTargetConfig `json:"profitTarget"`

	EmaGapAtr      *EmaGapAtrParams      `json:"emaGapAtr,omitempty"`
	TrendFollowing *TrendFollowingParams `json:"trendFollowing,omitempty"`
	PriceAction    *PriceActionParams    `json:"priceAction,omitempty"`
}

// Validate checks the Kind/variant pairing is well formed. It does not
// perform the full admission-control validation of internal/safety.
func (c *StrategyConfig) Validate() error {
	switch c.Kind {
	case StrategyKindEmaGapAtr:
		if c.EmaGapAtr == nil {
			return fmt.Errorf("strategy kind %s requires emaGapAtr parameters", c.Kind)
		}
	case StrategyKindTrendFollowing:
		if c.TrendFollowing == nil {
			return fmt.Errorf("strategy kind %s requires trendFollowing parameters", c.Kind)
		}
	case StrategyKindPriceAction:
		if c.PriceAction == nil {
			return fmt.Errorf("strategy kind %s requires priceAction parameters", c.Kind)
		}
	default:
		return fmt.Errorf("unknown strategy kind %q", c.Kind)
	}
	return nil
}

// BacktestConfig names the candle source and capital for one run on top
// of a StrategyConfig. It is the argument pair spec.md calls (config,
// candles) once candles are loaded.
type BacktestConfig struct {
	ID        string         `json:"id"`
	Strategy  StrategyConfig `json:"strategy"`
	StartDate time.Time      `json:"startDate"`
	EndDate   time.Time      `json:"endDate"`
}

// WalkForwardConfig configures internal/walkforward.
type WalkForwardConfig struct {
	Enabled    bool `json:"enabled"`
	WindowDays int  `json:"windowDays"`
	StepDays   int  `json:"stepDays"`
	MinSamples int  `json:"minSamples"`
}

// MonteCarloConfig configures internal/montecarlo.
type MonteCarloConfig struct {
	Enabled         bool    `json:"enabled"`
	Iterations      int     `json:"iterations"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
}

// BacktestProgress is the ambient progress envelope the API/workers layer
// streams while a run is in flight; it is not part of the core contract.
type BacktestProgress struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"` // "running", "completed", "failed"
	CandlesDone     int       `json:"candlesDone"`
	CandlesTotal    int       `json:"candlesTotal"`
	CurrentTime     time.Time `json:"currentTime"`
	TradesCompleted int       `json:"tradesCompleted"`
	CurrentEquity   float64   `json:"currentEquity"`
	Error           string    `json:"error,omitempty"`
}

// ServerConfig configures the ambient HTTP/WebSocket API layer.
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"readTimeout"`
	WriteTimeout   time.Duration `json:"writeTimeout"`
	MaxConnections int           `json:"maxConnections"`
	EnableMetrics  bool          `json:"enableMetrics"`
	MetricsPort    int           `json:"metricsPort"`
}

// DataConfig configures the CSV candle store.
type DataConfig struct {
	DataDir string `json:"dataDir"`
}
