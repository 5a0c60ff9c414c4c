// Package walkforward slides a backtest across rolling in-sample/
// out-of-sample windows to check whether a strategy's performance holds up
// outside the period it was tuned on, per SPEC_FULL.md §11.8. Grounded on
// the teacher's internal/backtester/walkforward.go, rewired from its
// Engine/DataLoader pair onto this module's orchestrator.Orchestrator and
// internal/data.Loader, and retyped from decimal.Decimal onto float64.
package walkforward

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/internal/data"
	"github.com/atlas-quant/backtestengine/internal/orchestrator"
	"github.com/atlas-quant/backtestengine/internal/viability"
	"github.com/atlas-quant/backtestengine/pkg/types"
)

// Analyzer runs a strategy across rolling in-sample/out-of-sample windows.
type Analyzer struct {
	logger       *zap.Logger
	loader       *data.Loader
	orchestrator *orchestrator.Orchestrator
	metrics      *viability.MetricsCalculator
}

// NewAnalyzer creates a walk-forward analyzer.
func NewAnalyzer(logger *zap.Logger, loader *data.Loader, orch *orchestrator.Orchestrator) *Analyzer {
	return &Analyzer{
		logger:       logger,
		loader:       loader,
		orchestrator: orch,
		metrics:      viability.NewMetricsCalculator(),
	}
}

// Run performs walk-forward analysis for one strategy over [start, end).
func (a *Analyzer) Run(cfg types.StrategyConfig, start, end time.Time, wf types.WalkForwardConfig) (*types.WalkForwardResult, error) {
	if !wf.Enabled {
		return nil, nil
	}

	windowDays := wf.WindowDays
	stepDays := wf.StepDays
	if windowDays <= 0 {
		windowDays = 30
	}
	if stepDays <= 0 {
		stepDays = 7
	}

	windows := a.generateWindows(start, end, windowDays, stepDays)
	if len(windows) == 0 {
		return nil, fmt.Errorf("walkforward: no windows generated for range %s..%s", start, end)
	}

	a.logger.Info("starting walk-forward analysis",
		zap.Int("windowCount", len(windows)),
		zap.Int("windowDays", windowDays),
		zap.Int("stepDays", stepDays),
	)

	results := make([]types.WalkForwardWindow, 0, len(windows))
	var allTrades []types.CompletedTrade
	var allEquityCurve []types.EquityPoint

	for i, w := range windows {
		inSampleCandles, err := a.loader.GetHistoricalCandles(cfg.Symbol, cfg.Timeframe, w.InSampleStart, w.InSampleEnd)
		if err != nil {
			a.logger.Warn("failed to load in-sample candles", zap.Int("window", i), zap.Error(err))
			continue
		}
		inSampleResult, err := a.orchestrator.RunBacktest(&cfg, inSampleCandles)
		if err != nil {
			a.logger.Warn("in-sample backtest failed", zap.Int("window", i), zap.Error(err))
			continue
		}

		outSampleCandles, err := a.loader.GetHistoricalCandles(cfg.Symbol, cfg.Timeframe, w.OutSampleStart, w.OutSampleEnd)
		if err != nil {
			a.logger.Warn("failed to load out-of-sample candles", zap.Int("window", i), zap.Error(err))
			continue
		}
		outSampleResult, err := a.orchestrator.RunBacktest(&cfg, outSampleCandles)
		if err != nil {
			a.logger.Warn("out-of-sample backtest failed", zap.Int("window", i), zap.Error(err))
			continue
		}

		inMetrics := a.metrics.Calculate(inSampleResult.Trades, inSampleResult.EquityCurve, cfg.Capital)
		outMetrics := a.metrics.Calculate(outSampleResult.Trades, outSampleResult.EquityCurve, cfg.Capital)

		results = append(results, types.WalkForwardWindow{
			InSampleStart:    w.InSampleStart,
			InSampleEnd:      w.InSampleEnd,
			OutSampleStart:   w.OutSampleStart,
			OutSampleEnd:     w.OutSampleEnd,
			InSampleMetrics:  inMetrics,
			OutSampleMetrics: outMetrics,
		})

		allTrades = append(allTrades, outSampleResult.Trades...)
		allEquityCurve = append(allEquityCurve, outSampleResult.EquityCurve...)

		a.logger.Debug("window completed",
			zap.Int("window", i),
			zap.Float64("inSampleReturn", inMetrics.TotalReturn),
			zap.Float64("outSampleReturn", outMetrics.TotalReturn),
		)
	}

	overallMetrics := a.metrics.Calculate(allTrades, allEquityCurve, cfg.Capital)
	robustness := a.calculateRobustness(results)

	result := &types.WalkForwardResult{
		Windows:        results,
		OverallMetrics: overallMetrics,
		Robustness:     robustness,
	}

	a.logger.Info("walk-forward analysis complete",
		zap.Float64("overallReturn", overallMetrics.TotalReturn),
		zap.Float64("robustness", robustness),
		zap.Int("totalTrades", len(allTrades)),
	)

	return result, nil
}

type window struct {
	InSampleStart  time.Time
	InSampleEnd    time.Time
	OutSampleStart time.Time
	OutSampleEnd   time.Time
}

// generateWindows splits [start, end) into overlapping windows, each with
// an 80/20 in-sample/out-of-sample split.
func (a *Analyzer) generateWindows(start, end time.Time, windowDays, stepDays int) []window {
	var windows []window

	windowDuration := time.Duration(windowDays) * 24 * time.Hour
	stepDuration := time.Duration(stepDays) * 24 * time.Hour

	const inSampleRatio = 0.8
	inSampleDuration := time.Duration(float64(windowDuration) * inSampleRatio)

	current := start
	for !current.Add(windowDuration).After(end) {
		windows = append(windows, window{
			InSampleStart:  current,
			InSampleEnd:    current.Add(inSampleDuration),
			OutSampleStart: current.Add(inSampleDuration),
			OutSampleEnd:   current.Add(windowDuration),
		})
		current = current.Add(stepDuration)
	}

	return windows
}

// calculateRobustness is the walk-forward efficiency ratio: out-of-sample
// return divided by in-sample return, clamped to [0, 2]. Values above 0.5
// suggest the strategy is not simply overfit to its tuning window.
func (a *Analyzer) calculateRobustness(windows []types.WalkForwardWindow) float64 {
	if len(windows) == 0 {
		return 0
	}

	var inSampleReturns, outSampleReturns float64
	validWindows := 0
	for _, w := range windows {
		if w.InSampleMetrics != nil && w.OutSampleMetrics != nil {
			inSampleReturns += w.InSampleMetrics.TotalReturn
			outSampleReturns += w.OutSampleMetrics.TotalReturn
			validWindows++
		}
	}

	if validWindows == 0 || inSampleReturns == 0 {
		return 0
	}

	robustness := outSampleReturns / inSampleReturns
	if robustness < 0 {
		return 0
	}
	if robustness > 2 {
		return 2
	}
	return robustness
}
