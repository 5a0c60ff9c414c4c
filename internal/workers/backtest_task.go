package workers

import (
	"github.com/atlas-quant/backtestengine/internal/orchestrator"
	"github.com/atlas-quant/backtestengine/pkg/types"
)

// BacktestTask submits one immutable (config, candles) pair to
// orchestrator.RunBacktest and captures the result, making the pool's
// existing queue-depth/p99-latency/throughput metrics real per-run
// scheduling metrics rather than decorative ones.
type BacktestTask struct {
	Orchestrator *orchestrator.Orchestrator
	Config       *types.StrategyConfig
	Candles      []types.Candle

	result *types.BacktestResult
	err    error
}

// Execute implements Task. The result is only meaningful after the task
// has run to completion — callers using Pool.SubmitWait can read Result()
// immediately after it returns; callers using the bare async Submit must
// synchronize separately (e.g. via a result channel captured in a
// TaskFunc closure instead of this type).
func (t *BacktestTask) Execute() error {
	res, err := t.Orchestrator.RunBacktest(t.Config, t.Candles)
	t.result = res
	t.err = err
	return err
}

// Result returns the completed BacktestResult, or nil if Execute has not
// finished or returned an error.
func (t *BacktestTask) Result() *types.BacktestResult {
	return t.result
}
