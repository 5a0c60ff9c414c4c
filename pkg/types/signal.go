package types

// ExitDirection additionally allows BOTH, which is meaningless for an
// entry — spec.md §9 requires this be enforced at the type level, so
// EntrySignal and ExitSignal are distinct types rather than one Signal
// union with a shared Direction field.
type ExitDirection string

const (
	ExitDirectionLong  ExitDirection = "LONG"
	ExitDirectionShort ExitDirection = "SHORT"
	ExitDirectionBoth  ExitDirection = "BOTH"
)

// EntrySignal requests opening a new trade.
type EntrySignal struct {
	Direction  Direction
	Price      float64
	Symbol     string
	Timeframe  Timeframe
	Strength   float64 // [0,100]
	Confidence float64 // [0,100]

	// Metadata carries strategy-specific context copied onto the
	// resulting ActiveTrade, e.g. entrySupertrend for price-action.
	Metadata map[string]float64

	// SupertrendFlip marks an entry produced by a Supertrend direction
	// change rather than a steady-state condition; carried through so
	// the corresponding opposite-direction exit, if any, can be tagged
	// ExitReasonSupertrendFlip instead of ExitReasonSignal.
	SupertrendFlip bool
}

// ExitSignal requests closing one or more trades.
type ExitSignal struct {
	Direction  ExitDirection
	Price      float64
	Symbol     string
	Timeframe  Timeframe
	Strength   float64
	Confidence float64
	Metadata   map[string]float64

	// SupertrendFlip, when true, causes the resulting CompletedTrade(s)
	// to carry ExitReasonSupertrendFlip instead of ExitReasonSignal.
	SupertrendFlip bool
}

// EvaluationResult is what a strategy.Evaluator returns for one candle.
type EvaluationResult struct {
	Entries     []EntrySignal
	Exits       []ExitSignal
	Diagnostics map[string]float64
}

// EvaluationContext is the immutable snapshot a strategy receives
// alongside the read-only candle prefix: spec.md §3 "an immutable context
// snapshot (activeTrades[], currentBalance, currentLots)".
type EvaluationContext struct {
	ActiveTrades  []ActiveTrade
	CurrentBalance float64
	CurrentLots   float64
}
