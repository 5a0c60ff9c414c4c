package optimization

import (
	"fmt"

	"github.com/atlas-quant/backtestengine/internal/orchestrator"
	"github.com/atlas-quant/backtestengine/internal/viability"
	"github.com/atlas-quant/backtestengine/pkg/types"
)

// EmaGapAtrParameterSpace is the tunable subset of an EmaGapAtr strategy's
// parameters exposed to Optimize, with search bounds wide enough to move the
// entry/exit logic meaningfully without producing a degenerate strategy
// (fast EMA must stay below slow EMA span, ATR multipliers stay positive).
func EmaGapAtrParameterSpace() []Parameter {
	return []Parameter{
		{Name: "emaFastPeriod", Type: ParamTypeInteger, Min: 5, Max: 20, Default: 9},
		{Name: "emaSlowPeriod", Type: ParamTypeInteger, Min: 21, Max: 60, Default: 21},
		{Name: "atrPeriod", Type: ParamTypeInteger, Min: 7, Max: 30, Default: 14},
		{Name: "atrMultiplierEntry", Type: ParamTypeContinuous, Min: 0.5, Max: 3.0, Default: 1.5},
		{Name: "atrMultiplierUnwind", Type: ParamTypeContinuous, Min: 0.5, Max: 3.0, Default: 1.0},
	}
}

// applyParamSet returns a copy of base with the optimizer's trial values
// written into its EmaGapAtr parameters. base.EmaGapAtr must be non-nil.
func applyParamSet(base types.StrategyConfig, params ParamSet) types.StrategyConfig {
	cfg := base
	p := *base.EmaGapAtr
	if v, ok := params["emaFastPeriod"]; ok {
		p.EmaFastPeriod = int(v)
	}
	if v, ok := params["emaSlowPeriod"]; ok {
		p.EmaSlowPeriod = int(v)
	}
	if v, ok := params["atrPeriod"]; ok {
		p.AtrPeriod = int(v)
	}
	if v, ok := params["atrMultiplierEntry"]; ok {
		p.AtrMultiplierEntry = v
	}
	if v, ok := params["atrMultiplierUnwind"]; ok {
		p.AtrMultiplierUnwind = v
	}
	cfg.EmaGapAtr = &p
	return cfg
}

// NewEmaGapAtrObjective builds an ObjectiveFunc that runs a full backtest per
// trial parameter set over a fixed candle series and scores it by Sharpe
// ratio, so Optimize's grid/genetic/random search drives the same
// orchestrator.Orchestrator the rest of this repository backtests with
// rather than a separate scoring shortcut.
func NewEmaGapAtrObjective(orch *orchestrator.Orchestrator, base types.StrategyConfig, candles []types.Candle) (ObjectiveFunc, error) {
	if base.EmaGapAtr == nil {
		return nil, fmt.Errorf("optimization: base config has no emaGapAtr parameters to tune")
	}
	calc := viability.NewMetricsCalculator()

	return func(params ParamSet) (float64, error) {
		trialCfg := applyParamSet(base, params)
		if trialCfg.EmaGapAtr.EmaFastPeriod >= trialCfg.EmaGapAtr.EmaSlowPeriod {
			return -1, nil // invalid region of the search space, not a hard error
		}

		result, err := orch.RunBacktest(&trialCfg, candles)
		if err != nil {
			return 0, err
		}

		metrics := calc.Calculate(result.Trades, result.EquityCurve, trialCfg.Capital)
		return metrics.SharpeRatio, nil
	}, nil
}
