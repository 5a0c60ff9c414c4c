// Package strategy implements the pure Strategy Evaluator contract of
// spec.md §4.2: evaluate(config, candlePrefix, context) -> {signals[],
// diagnostics}, with no side effects, no I/O, and no persistent state
// beyond what spec.md §9 sanctions (a small per-(symbol,timeframe)
// observation record owned by the evaluator instance, not a package-level
// global). Grounded on the teacher's internal/strategy/strategy.go
// Strategy interface and StrategyRegistry map-of-factories idiom.
package strategy

import (
	"fmt"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

// Evaluator is the pure-function contract every strategy kind implements.
type Evaluator interface {
	// Evaluate inspects the read-only candle prefix (candles[0..=i]) and
	// the immutable context snapshot, returning signals for the current
	// (last) candle. It must not mutate candles or context.
	Evaluate(cfg *types.StrategyConfig, candles []types.Candle, ctx types.EvaluationContext) (types.EvaluationResult, error)

	// MinDataPoints is the minimum prefix length before this evaluator
	// can produce any signal; the orchestrator's warm-up computation
	// folds this in.
	MinDataPoints(cfg *types.StrategyConfig) int
}

// Factory builds a fresh Evaluator instance, used once per backtest run
// so per-run observation state (price-action's Supertrend/MACD timestamps)
// never leaks between independent runs, per spec.md §5.
type Factory func() Evaluator

// Registry maps a StrategyKind to its Factory, a tagged-variant capability
// set in the same spirit as internal/indicator.Registry.
type Registry struct {
	factories map[types.StrategyKind]Factory
}

// NewRegistry builds a Registry pre-populated with the three strategy
// kinds spec.md names.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[types.StrategyKind]Factory)}
	r.Register(types.StrategyKindPriceAction, func() Evaluator { return NewPriceActionEvaluator() })
	r.Register(types.StrategyKindTrendFollowing, func() Evaluator { return NewTrendFollowingEvaluator() })
	r.Register(types.StrategyKindEmaGapAtr, func() Evaluator { return NewEmaGapAtrEvaluator() })
	return r
}

// Register adds or replaces a factory for kind.
func (r *Registry) Register(kind types.StrategyKind, f Factory) {
	r.factories[kind] = f
}

// Create instantiates a fresh Evaluator for kind.
func (r *Registry) Create(kind types.StrategyKind) (Evaluator, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown kind %q", kind)
	}
	return f(), nil
}

// List returns the registered kinds.
func (r *Registry) List() []types.StrategyKind {
	out := make([]types.StrategyKind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	return out
}

func closesOf(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func highsOf(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func lowsOf(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}
