// Package portfolio is the Position & Exit Manager: the mutable ledger of
// active trades and the completed-trade log, per spec.md §4.3. It is
// grounded on the teacher's internal/backtester/portfolio.go cash/equity/
// peak/drawdown bookkeeping idiom, but replaces the teacher's per-symbol
// aggregate position map with an ordered per-trade slice, since spec.md
// requires pyramiding and FIFO/LIFO exit ordering across individual
// trades rather than one averaged position per symbol.
package portfolio

import (
	"github.com/atlas-quant/backtestengine/pkg/types"
)

// Book is the single-writer-per-run trade ledger. It is not safe for
// concurrent use — spec.md §5 pins one run to a single cooperative
// goroutine.
type Book struct {
	initialCapital float64
	cashBalance    float64
	peakEquity     float64

	active    []types.ActiveTrade
	completed []types.CompletedTrade
}

// NewBook creates a ledger seeded with initialCapital as both cash and
// the initial equity peak.
func NewBook(initialCapital float64) *Book {
	return &Book{
		initialCapital: initialCapital,
		cashBalance:    initialCapital,
		peakEquity:     initialCapital,
	}
}

// ActiveTrades returns a defensive copy of the currently open trades, in
// insertion (entry) order.
func (b *Book) ActiveTrades() []types.ActiveTrade {
	out := make([]types.ActiveTrade, len(b.active))
	copy(out, b.active)
	return out
}

// CompletedTrades returns the append-only completed-trade log.
func (b *Book) CompletedTrades() []types.CompletedTrade {
	return b.completed
}

// CurrentLots returns the sum of quantities across all active trades,
// the invariant spec.md §8 pins against MaxLots.
func (b *Book) CurrentLots() float64 {
	var total float64
	for _, t := range b.active {
		total += t.Quantity
	}
	return total
}

// CashBalance returns the realized-P&L-adjusted cash balance.
func (b *Book) CashBalance() float64 {
	return b.cashBalance
}

// HasDirection reports whether any active trade matches direction.
func (b *Book) HasDirection(dir types.Direction) bool {
	for _, t := range b.active {
		if t.Direction == dir {
			return true
		}
	}
	return false
}

// Open appends a new active trade. Callers (the orchestrator) are
// responsible for admission checks (pyramiding cap, capital cap) before
// calling Open.
func (b *Book) Open(trade types.ActiveTrade) {
	b.active = append(b.active, trade)
}

// UnrealizedPnLTotal sums unrealized P&L across all active trades at the
// given close price.
func (b *Book) UnrealizedPnLTotal(close float64) float64 {
	var total float64
	for _, t := range b.active {
		total += t.UnrealizedPnL(close)
	}
	return total
}

// Equity computes cashBalance + sum(unrealizedPnL), per spec.md §4.1
// step 8.
func (b *Book) Equity(close float64) float64 {
	return b.cashBalance + b.UnrealizedPnLTotal(close)
}

// UpdateDrawdown advances the peak-equity high-water mark and returns the
// current drawdown fraction (peak-equity)/peak, per spec.md's glossary.
func (b *Book) UpdateDrawdown(equity float64) float64 {
	if equity > b.peakEquity {
		b.peakEquity = equity
	}
	if b.peakEquity == 0 {
		return 0
	}
	return (b.peakEquity - equity) / b.peakEquity
}

// ExitDirection mirrors types.ExitDirection locally to avoid an import
// cycle concern; it is the same three-valued set.
type ExitDirection = types.ExitDirection

// ResolveForExit returns the indices into b.active that match dir,
// ordered for closing: FIFO = ascending entry timestamp, LIFO =
// descending. When dir is BOTH, all active trades are returned in FIFO
// order regardless of exitMode, per spec.md §4.3 ("When direction = BOTH,
// all trades are exited in FIFO order regardless of exitMode").
func (b *Book) ResolveForExit(dir ExitDirection, exitMode types.ExitMode) []int {
	var idx []int
	for i, t := range b.active {
		if dir == types.ExitDirectionBoth || string(dir) == string(t.Direction) {
			idx = append(idx, i)
		}
	}
	// b.active is already in insertion (ascending entry timestamp) order.
	if dir != types.ExitDirectionBoth && exitMode == types.ExitModeLIFO {
		reverse(idx)
	}
	return idx
}

func reverse(xs []int) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// CloseAt closes the active trade at position idx (within the current
// b.active slice, evaluated at call time — callers must close trades one
// at a time and re-resolve indices after each close since the slice
// shifts) at the given price/timestamp/reason, moves it to the completed
// log, updates cashBalance, and returns the CompletedTrade.
func (b *Book) CloseAt(idx int, price float64, timestampMs int64, reason types.ExitReason) types.CompletedTrade {
	t := b.active[idx]
	b.active = append(b.active[:idx], b.active[idx+1:]...)

	pnl := t.UnrealizedPnL(price)
	notional := t.EntryPrice * t.Quantity
	var pnlPct float64
	if notional != 0 {
		pnlPct = pnl / notional * 100
	}

	ct := types.CompletedTrade{
		EntryTimeMs: t.EntryTimestampMs,
		ExitTimeMs:  timestampMs,
		Symbol:      t.Symbol,
		Direction:   t.Direction,
		EntryPrice:  t.EntryPrice,
		ExitPrice:   price,
		Quantity:    t.Quantity,
		PnL:         pnl,
		PnLPct:      pnlPct,
		DurationMs:  timestampMs - t.EntryTimestampMs,
		ExitReason:  reason,
	}
	b.cashBalance += pnl
	b.completed = append(b.completed, ct)
	return ct
}

// ExitMatching closes every active trade matching dir in FIFO/LIFO order
// and returns the resulting completed trades in closing order.
func (b *Book) ExitMatching(dir ExitDirection, exitMode types.ExitMode, price float64, timestampMs int64, reason types.ExitReason) []types.CompletedTrade {
	var out []types.CompletedTrade
	for {
		idx := b.ResolveForExit(dir, exitMode)
		if len(idx) == 0 {
			return out
		}
		out = append(out, b.CloseAt(idx[0], price, timestampMs, reason))
	}
}

// ExitByID closes one specific active trade by ID, used by trailing-stop
// and stop-loss checks which identify a single trade to close rather than
// resolving by direction.
func (b *Book) ExitByID(id string, price float64, timestampMs int64, reason types.ExitReason) (types.CompletedTrade, bool) {
	for i, t := range b.active {
		if t.ID == id {
			return b.CloseAt(i, price, timestampMs, reason), true
		}
	}
	return types.CompletedTrade{}, false
}

// ExitAll force-closes every active trade at the given price, in FIFO
// order, used for time-based exit, capital protection, circuit breaker,
// and end-of-data.
func (b *Book) ExitAll(price float64, timestampMs int64, reason types.ExitReason) []types.CompletedTrade {
	return b.ExitMatching(types.ExitDirectionBoth, types.ExitModeFIFO, price, timestampMs, reason)
}

// MutateActive lets the orchestrator update in-place fields (trailing
// bookkeeping: HighestSeen/LowestSeen/TrailingStopPrice/TrailingActive)
// on an active trade without exiting it, identified by ID.
func (b *Book) MutateActive(id string, fn func(*types.ActiveTrade)) {
	for i := range b.active {
		if b.active[i].ID == id {
			fn(&b.active[i])
			return
		}
	}
}
