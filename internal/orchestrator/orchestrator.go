// Package orchestrator drives one backtest run end to end: warm-up
// computation, the strict twelve-step per-candle order of operations, and
// graceful terminations. Grounded on the teacher's
// internal/backtester/engine.go Engine (logger wiring, result assembly),
// but replaces its generic timestamp/priority event queue with explicit
// sequential method calls, since the per-candle order here is a contract
// tests assert rather than an emergent property of event priorities.
package orchestrator

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/internal/bterrors"
	"github.com/atlas-quant/backtestengine/internal/portfolio"
	"github.com/atlas-quant/backtestengine/internal/safety"
	"github.com/atlas-quant/backtestengine/internal/sizing"
	"github.com/atlas-quant/backtestengine/internal/strategy"
	"github.com/atlas-quant/backtestengine/pkg/types"
)

// Orchestrator runs one backtest at a time. It holds no state between
// RunBacktest calls beyond its logger and strategy registry, so a single
// instance may be shared across goroutines as long as each goroutine
// calls RunBacktest independently (per spec.md §5, a run's mutable state
// lives entirely in that call's stack and portfolio.Book).
type Orchestrator struct {
	logger   *zap.Logger
	registry *strategy.Registry
}

// New builds an Orchestrator bound to the given strategy registry.
func New(logger *zap.Logger, registry *strategy.Registry) *Orchestrator {
	return &Orchestrator{logger: logger.Named("orchestrator"), registry: registry}
}

// warmup computes the stability-buffered minimum prefix length before any
// signal evaluation or equity logging may occur.
func warmup(evaluator strategy.Evaluator, cfg *types.StrategyConfig) int {
	return evaluator.MinDataPoints(cfg) + 10
}

// RunBacktest is the public contract of spec.md §4.1: runBacktest(config,
// candles[]) -> BacktestResult | Error. It is a pure function of its
// arguments given a freshly constructed Orchestrator (the strategy
// evaluator instance is created fresh inside this call).
func (o *Orchestrator) RunBacktest(cfg *types.StrategyConfig, candles []types.Candle) (*types.BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, bterrors.Wrap(bterrors.KindConfigInvalid, "strategy config failed validation", err)
	}
	if len(candles) == 0 {
		return nil, bterrors.New(bterrors.KindNoData, "no candles supplied")
	}
	for i, c := range candles {
		if !c.Valid() {
			return nil, bterrors.New(bterrors.KindCandleInvariantViolated, fmt.Sprintf("candle at index %d violates OHLC invariants", i))
		}
	}

	start := time.UnixMilli(candles[0].TimestampMs)
	end := time.UnixMilli(candles[len(candles)-1].TimestampMs)
	issues := safety.ValidateConfig(cfg, start, end)
	if safety.HasErrors(issues) {
		return nil, bterrors.New(bterrors.KindConfigInvalid, fmt.Sprintf("%d validation issue(s), first: %s", len(issues), firstError(issues)))
	}
	checks := safety.RunSafetyChecks(cfg, start, end, time.Now())
	if !safety.Proceed(checks) {
		return nil, bterrors.New(bterrors.KindSafetyBlocked, firstFailingCheck(checks))
	}

	evaluator, err := o.registry.Create(cfg.Kind)
	if err != nil {
		return nil, bterrors.Wrap(bterrors.KindConfigInvalid, "no evaluator for strategy kind", err)
	}

	warm := warmup(evaluator, cfg)
	if warm >= len(candles) {
		return nil, bterrors.New(bterrors.KindInsufficientData, fmt.Sprintf("need at least %d candles past warm-up, have %d", warm, len(candles)))
	}

	book := portfolio.NewBook(cfg.Capital)
	run := &runState{
		cfg:       cfg,
		candles:   candles,
		evaluator: evaluator,
		book:      book,
		logger:    o.logger,
	}

	termination := run.loop(warm)

	return run.result(termination), nil
}

func firstError(issues []safety.ValidationIssue) string {
	for _, i := range issues {
		if i.Level == safety.LevelError {
			return fmt.Sprintf("%s: %s", i.Field, i.Message)
		}
	}
	return "unknown"
}

func firstFailingCheck(checks []safety.SafetyCheck) string {
	for _, c := range checks {
		if !c.Passed && (c.Severity == safety.SeverityCritical || c.Severity == safety.SeverityHigh) {
			return fmt.Sprintf("%s (%s): %s", c.Name, c.Severity, c.Message)
		}
	}
	return "unknown"
}

// runState is the per-call mutable state of one backtest run.
type runState struct {
	cfg       *types.StrategyConfig
	candles   []types.Candle
	evaluator strategy.Evaluator
	book      *portfolio.Book
	logger    *zap.Logger

	equityCurve       []types.EquityPoint
	lastDiagnosticATR float64
}

// loop drives the candles past warm-up through the twelve-step order of
// operations of spec.md §4.1, returning the termination reason (empty for
// a full run to end of data).
func (r *runState) loop(warm int) types.TerminationReason {
	for i := warm - 1; i < len(r.candles); i++ {
		terminated := r.processCandle(i)
		if terminated != types.TerminationNone {
			return terminated
		}
	}
	r.endOfData()
	return types.TerminationNone
}

func (r *runState) processCandle(i int) types.TerminationReason {
	candle := r.candles[i]
	prefix := r.candles[:i+1]

	// Step 1-2: build context snapshot and evaluate the strategy.
	ctx := types.EvaluationContext{
		ActiveTrades:   r.book.ActiveTrades(),
		CurrentBalance: r.book.CashBalance(),
		CurrentLots:    r.book.CurrentLots(),
	}
	evalResult, err := r.evaluator.Evaluate(r.cfg, prefix, ctx)
	if err != nil {
		r.logger.Warn("strategy evaluation failed, skipping candle",
			zap.Int("index", i), zap.Error(err))
		evalResult = types.EvaluationResult{}
	}
	if atr, ok := evalResult.Diagnostics["atr"]; ok && !math.IsNaN(atr) {
		r.lastDiagnosticATR = atr
	} else if st, ok := evalResult.Diagnostics["supertrend"]; ok && !math.IsNaN(st) {
		// price-action/trend-following report Supertrend, not raw ATR;
		// approximate the trailing/stop-loss distance from its band gap.
		r.lastDiagnosticATR = math.Abs(candle.Close - st)
	}

	// Step 3: trailing stops.
	r.applyTrailingStops(candle, prefix)

	// Step 4: profit target.
	r.applyProfitTarget(candle)

	// Step 5: price-action exit (entry-bar Supertrend cross).
	if r.cfg.Kind == types.StrategyKindPriceAction {
		r.applyPriceActionExit(candle)
	}

	// Step 6: signal processing — exits then entries.
	r.applyExitSignals(candle, evalResult.Exits)
	r.applyEntrySignals(candle, evalResult.Entries)

	// Step 7: stop-loss post-check.
	r.applyStopLoss(candle)

	// Step 8: equity update.
	equity := r.book.Equity(candle.Close)
	drawdown := r.book.UpdateDrawdown(equity)

	// Step 9: time-based exit.
	if r.cfg.MisExitTimeMinutes > 0 {
		minuteOfDay := time.UnixMilli(candle.TimestampMs).UTC().Hour()*60 + time.UnixMilli(candle.TimestampMs).UTC().Minute()
		if minuteOfDay >= r.cfg.MisExitTimeMinutes {
			r.book.ExitAll(candle.Close, candle.TimestampMs, types.ExitReasonTimeExit)
			equity = r.book.Equity(candle.Close)
			drawdown = r.book.UpdateDrawdown(equity)
		}
	}

	// Step 10: capital protection.
	if r.cfg.MaxLossPct > 0 && equity-r.cfg.Capital <= -r.cfg.Capital*r.cfg.MaxLossPct {
		r.book.ExitAll(candle.Close, candle.TimestampMs, types.ExitReasonCircuitBreaker)
		r.appendEquityPoint(candle.TimestampMs, r.book.Equity(candle.Close), drawdown)
		return types.TerminationCapitalProtection
	}

	// Step 11: circuit breaker.
	threshold := r.cfg.MaxDrawdownThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	if drawdown > threshold {
		r.book.ExitAll(candle.Close, candle.TimestampMs, types.ExitReasonCircuitBreaker)
		r.appendEquityPoint(candle.TimestampMs, r.book.Equity(candle.Close), r.book.UpdateDrawdown(r.book.Equity(candle.Close)))
		return types.TerminationCircuitBreaker
	}

	// Step 12: append equity point.
	r.appendEquityPoint(candle.TimestampMs, equity, drawdown)

	return types.TerminationNone
}

func (r *runState) appendEquityPoint(ts int64, equity, drawdown float64) {
	r.equityCurve = append(r.equityCurve, types.EquityPoint{
		TimestampMs: ts,
		CashBalance: r.book.CashBalance(),
		Equity:      equity,
		Drawdown:    drawdown,
	})
}

func (r *runState) applyTrailingStops(candle types.Candle, prefix []types.Candle) {
	if !r.cfg.TrailingStop.Enabled {
		return
	}
	cfg := r.cfg.TrailingStop
	for _, t := range r.book.ActiveTrades() {
		id := t.ID
		r.book.MutateActive(id, func(at *types.ActiveTrade) {
			if candle.High > at.HighestSeen {
				at.HighestSeen = candle.High
			}
			if at.LowestSeen == 0 || candle.Low < at.LowestSeen {
				at.LowestSeen = candle.Low
			}
		})

		trade, ok := findActive(r.book, id)
		if !ok {
			continue
		}
		pnlPct := trade.PnLPct(candle.Close)
		if pnlPct < cfg.ActivationProfitPct*100 {
			continue
		}

		var candidate float64
		switch cfg.Mode {
		case "PERCENT":
			if trade.Direction == types.DirectionLong {
				candidate = trade.HighestSeen * (1 - cfg.PercentDistance)
			} else {
				candidate = trade.LowestSeen * (1 + cfg.PercentDistance)
			}
		default: // "ATR"
			if trade.Direction == types.DirectionLong {
				candidate = trade.HighestSeen - cfg.AtrMultiplier*trade.AtrAtEntry
			} else {
				candidate = trade.LowestSeen + cfg.AtrMultiplier*trade.AtrAtEntry
			}
		}

		r.book.MutateActive(id, func(at *types.ActiveTrade) {
			if !at.TrailingActive {
				at.TrailingActive = true
				at.TrailingStopPrice = candidate
				return
			}
			if at.Direction == types.DirectionLong && candidate > at.TrailingStopPrice {
				at.TrailingStopPrice = candidate
			}
			if at.Direction == types.DirectionShort && candidate < at.TrailingStopPrice {
				at.TrailingStopPrice = candidate
			}
		})

		trade, ok = findActive(r.book, id)
		if !ok || !trade.TrailingActive {
			continue
		}
		crossed := (trade.Direction == types.DirectionLong && candle.Close <= trade.TrailingStopPrice) ||
			(trade.Direction == types.DirectionShort && candle.Close >= trade.TrailingStopPrice)
		if crossed {
			r.book.ExitByID(id, candle.Close, candle.TimestampMs, types.ExitReasonTrailingStop)
		}
	}
}

func (r *runState) applyProfitTarget(candle types.Candle) {
	if !r.cfg.ProfitTarget.Enabled {
		return
	}
	target := r.cfg.ProfitTarget.TargetPct * 100
	for _, t := range r.book.ActiveTrades() {
		if t.PnLPct(candle.Close) >= target {
			r.book.ExitByID(t.ID, candle.Close, candle.TimestampMs, types.ExitReasonProfitTarget)
		}
	}
}

func (r *runState) applyPriceActionExit(candle types.Candle) {
	for _, t := range r.book.ActiveTrades() {
		if t.EntrySupertrend == 0 {
			continue
		}
		crossed := (t.Direction == types.DirectionLong && candle.Close < t.EntrySupertrend) ||
			(t.Direction == types.DirectionShort && candle.Close > t.EntrySupertrend)
		if crossed {
			r.book.ExitByID(t.ID, candle.Close, candle.TimestampMs, types.ExitReasonPriceAction)
		}
	}
}

func (r *runState) applyExitSignals(candle types.Candle, exits []types.ExitSignal) {
	for _, sig := range exits {
		reason := types.ExitReasonSignal
		if sig.SupertrendFlip {
			reason = types.ExitReasonSupertrendFlip
		}
		r.book.ExitMatching(sig.Direction, r.cfg.ExitMode, candle.Close, candle.TimestampMs, reason)
	}
}

func (r *runState) applyEntrySignals(candle types.Candle, entries []types.EntrySignal) {
	for _, sig := range entries {
		if !r.admitEntry(sig) {
			continue
		}
		quantity := r.positionSize(sig.Price)
		if quantity <= 0 {
			continue
		}
		if sig.Price*quantity > r.cfg.Capital*effectiveMaxTradePct(r.cfg) {
			continue
		}

		var entrySupertrend float64
		if v, ok := sig.Metadata["entrySupertrend"]; ok {
			entrySupertrend = v
		}

		r.book.Open(types.ActiveTrade{
			ID:               uuid.NewString(),
			Symbol:           sig.Symbol,
			Direction:        sig.Direction,
			EntryPrice:       sig.Price,
			Quantity:         quantity,
			EntryTimestampMs: candle.TimestampMs,
			AtrAtEntry:       r.currentATR(),
			HighestSeen:      sig.Price,
			LowestSeen:       sig.Price,
			EntrySupertrend:  entrySupertrend,
		})
	}
}

// admitEntry implements the §4.1 step 6 admission tests: single-position
// discipline unless pyramiding is enabled, in which case currentLots must
// stay under maxLots.
func (r *runState) admitEntry(sig types.EntrySignal) bool {
	if !r.cfg.PyramidingEnabled {
		return len(r.book.ActiveTrades()) == 0
	}
	return r.book.CurrentLots() < float64(r.cfg.MaxLots)
}

func effectiveMaxTradePct(cfg *types.StrategyConfig) float64 {
	if cfg.MaxTradePct > 0 {
		return cfg.MaxTradePct
	}
	return 1.0
}

func (r *runState) positionSize(entryPrice float64) float64 {
	if !r.cfg.DynamicPositionSizing {
		return r.cfg.PositionSize
	}
	if entryPrice <= 0 {
		return 0
	}
	available := r.book.CashBalance()
	tradeCap := r.cfg.Capital * effectiveMaxTradePct(r.cfg)

	switch r.cfg.DynamicSizer {
	case "kelly":
		if kellyCap := r.cfg.Capital * r.kellyFraction(); kellyCap > 0 && kellyCap < tradeCap {
			tradeCap = kellyCap
		}
	case "volatility_target":
		tradeCap *= r.volatilityMultiplier(entryPrice)
	}

	budget := math.Min(tradeCap, available)
	qty := math.Floor(budget / entryPrice)
	if qty < r.cfg.BasePositionSize {
		qty = r.cfg.BasePositionSize
	}
	return qty
}

// kellyFraction replays the run's completed trades so far through
// internal/sizing's fractional-Kelly statistics to get a capital fraction
// for the next entry. Fewer than five closed trades is too little signal,
// so the baseline trade cap is used unadjusted until then.
func (r *runState) kellyFraction() float64 {
	trades := r.book.CompletedTrades()
	if len(trades) < 5 {
		return 0
	}
	sizer := sizing.NewPositionSizer(r.logger, nil)
	for _, t := range trades {
		notional := t.EntryPrice * t.Quantity
		returnPct := 0.0
		if notional != 0 {
			returnPct = t.PnL / notional
		}
		sizer.AddTradeResult(&sizing.TradeResult{Symbol: t.Symbol, ReturnPct: returnPct, IsWin: t.PnL > 0})
	}
	return sizer.GetTradeStatistics().KellyRecommended
}

// volatilityMultiplier scales the trade cap down in high-ATR conditions and
// up in low-ATR conditions to hold a roughly constant volatility exposure.
func (r *runState) volatilityMultiplier(entryPrice float64) float64 {
	atr := r.currentATR()
	if atr <= 0 {
		return 1.0
	}
	scaler := sizing.NewVolatilityScaledSizer(r.logger, 0.02, 20)
	return scaler.CalculateVolTargetSize(atr / entryPrice)
}

// currentATR returns the ATR diagnostic the evaluator reported for the
// current candle, if any; strategies that don't report one leave
// AtrAtEntry at zero, which disables ATR-based trailing/stop-loss modes
// for that trade (the config should use PERCENT mode in that case).
func (r *runState) currentATR() float64 {
	return r.lastDiagnosticATR
}

func (r *runState) applyStopLoss(candle types.Candle) {
	if !r.cfg.StopLoss.Enabled {
		return
	}
	cfg := r.cfg.StopLoss
	for _, t := range r.book.ActiveTrades() {
		var stopPrice float64
		switch cfg.Mode {
		case "PERCENT":
			if t.Direction == types.DirectionLong {
				stopPrice = t.EntryPrice * (1 - cfg.PercentDistance)
			} else {
				stopPrice = t.EntryPrice * (1 + cfg.PercentDistance)
			}
		default: // "ATR"
			if t.AtrAtEntry == 0 {
				continue
			}
			if t.Direction == types.DirectionLong {
				stopPrice = t.EntryPrice - cfg.AtrMultiplier*t.AtrAtEntry
			} else {
				stopPrice = t.EntryPrice + cfg.AtrMultiplier*t.AtrAtEntry
			}
		}
		violated := (t.Direction == types.DirectionLong && candle.Close <= stopPrice) ||
			(t.Direction == types.DirectionShort && candle.Close >= stopPrice)
		if violated {
			r.book.ExitByID(t.ID, candle.Close, candle.TimestampMs, types.ExitReasonStopLoss)
		}
	}
}

// endOfData force-closes any trades still open after the last candle's
// step-12 equity point has already been recorded by processCandle. It
// must not append another EquityPoint: the curve has exactly one point
// per processed candle.
func (r *runState) endOfData() {
	last := r.candles[len(r.candles)-1]
	r.book.ExitAll(last.Close, last.TimestampMs, types.ExitReasonEndOfData)
}

func findActive(b *portfolio.Book, id string) (types.ActiveTrade, bool) {
	for _, t := range b.ActiveTrades() {
		if t.ID == id {
			return t, true
		}
	}
	return types.ActiveTrade{}, false
}

// result assembles the aggregate BacktestResult from the finished run.
func (r *runState) result(termination types.TerminationReason) *types.BacktestResult {
	trades := r.book.CompletedTrades()
	res := &types.BacktestResult{
		InitialCapital:    r.cfg.Capital,
		Trades:            trades,
		EquityCurve:       r.equityCurve,
		TerminationReason: termination,
	}

	var finalEquity float64
	if len(r.equityCurve) > 0 {
		finalEquity = r.equityCurve[len(r.equityCurve)-1].Equity
	} else {
		finalEquity = r.cfg.Capital
	}
	res.FinalCapital = finalEquity
	res.TotalReturn = finalEquity - r.cfg.Capital
	if r.cfg.Capital != 0 {
		res.TotalReturnPct = res.TotalReturn / r.cfg.Capital * 100
	}

	var maxDD float64
	for _, p := range r.equityCurve {
		if p.Drawdown > maxDD {
			maxDD = p.Drawdown
		}
	}
	res.MaxDrawdown = maxDD

	var sumWin, sumLoss, maxWin, maxLoss float64
	for _, t := range trades {
		res.TotalTrades++
		if t.PnL >= 0 {
			res.WinningTrades++
			sumWin += t.PnL
			if t.PnL > maxWin {
				maxWin = t.PnL
			}
		} else {
			res.LosingTrades++
			sumLoss += -t.PnL
			if -t.PnL > maxLoss {
				maxLoss = -t.PnL
			}
		}
	}
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	}
	if res.WinningTrades > 0 {
		res.AvgWin = sumWin / float64(res.WinningTrades)
	}
	if res.LosingTrades > 0 {
		res.AvgLoss = sumLoss / float64(res.LosingTrades)
	}
	res.MaxWin = maxWin
	res.MaxLoss = maxLoss
	if sumLoss > 0 {
		res.ProfitFactor = sumWin / sumLoss
	}
	res.SharpeRatio = sharpeRatio(r.equityCurve)

	return res
}

// sharpeRatio computes an annualization-free Sharpe proxy from the equity
// curve's candle-to-candle returns: mean/stddev of simple returns.
func sharpeRatio(curve []types.EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
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
	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return mean / sd
}
