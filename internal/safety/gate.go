// Package safety implements the two-phase Validation & Safety Gate of
// spec.md §4.4: schema/parameter-range validation, then severity-graded
// safety checks. Grounded on the teacher's
// internal/backtester/risk.go severity-threshold idiom and
// internal/backtester/viability.go's scorecard style, generalized from
// post-hoc result scoring to pre-run admission control.
package safety

import (
	"fmt"
	"time"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

// Level distinguishes a fatal validation problem from one that is merely
// informative.
type Level string

const (
	LevelError   Level = "ERROR"
	LevelWarning Level = "WARNING"
)

// ValidationIssue is one schema or parameter-range finding.
type ValidationIssue struct {
	Level   Level
	Field   string
	Message string
}

// Severity grades a SafetyCheck's importance, per spec.md §4.4.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SafetyCheck is one named, severity-graded admission check result.
type SafetyCheck struct {
	Name     string
	Passed   bool
	Message  string
	Severity Severity
}

var allowedTimeframes = map[types.Timeframe]bool{
	types.Timeframe1m: true, types.Timeframe5m: true, types.Timeframe15m: true,
	types.Timeframe1h: true, types.Timeframe4h: true, types.Timeframe1d: true,
}

// ValidateConfig performs schema and parameter-range validation. Any
// LevelError entry means the config must be rejected before a run starts.
func ValidateConfig(cfg *types.StrategyConfig, start, end time.Time) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Symbol == "" {
		issues = append(issues, ValidationIssue{LevelError, "symbol", "symbol must not be empty"})
	}
	if !allowedTimeframes[cfg.Timeframe] {
		issues = append(issues, ValidationIssue{LevelError, "timeframe", fmt.Sprintf("timeframe %q is not in the allowed set", cfg.Timeframe)})
	}
	if !end.After(start) {
		issues = append(issues, ValidationIssue{LevelError, "dateRange", "end date must be after start date"})
	}
	if cfg.Capital <= 0 {
		issues = append(issues, ValidationIssue{LevelError, "capital", "capital must be > 0"})
	}
	if cfg.MaxLossPct < 0 || cfg.MaxLossPct > 1 {
		issues = append(issues, ValidationIssue{LevelError, "maxLossPct", "maxLossPct must be in [0,1]"})
	}
	if cfg.MaxLots < 1 || cfg.MaxLots > 20 {
		issues = append(issues, ValidationIssue{LevelError, "maxLots", "maxLots must be in [1,20]"})
	}

	switch cfg.Kind {
	case types.StrategyKindEmaGapAtr:
		if cfg.EmaGapAtr != nil {
			p := cfg.EmaGapAtr
			issues = append(issues, validatePeriodRange("emaGapAtr.emaFastPeriod", p.EmaFastPeriod, 1, 200)...)
			issues = append(issues, validatePeriodRange("emaGapAtr.emaSlowPeriod", p.EmaSlowPeriod, 1, 200)...)
			if p.EmaFastPeriod >= p.EmaSlowPeriod {
				issues = append(issues, ValidationIssue{LevelError, "emaGapAtr.emaFastPeriod", "fast EMA period must be < slow EMA period"})
			}
			issues = append(issues, validatePeriodRange("emaGapAtr.atrPeriod", p.AtrPeriod, 1, 100)...)
			issues = append(issues, validateRSIRange("emaGapAtr.rsiEntryLong", p.RsiEntryLong)...)
			issues = append(issues, validateRSIRange("emaGapAtr.rsiEntryShort", p.RsiEntryShort)...)
		}
	case types.StrategyKindTrendFollowing:
		if cfg.TrendFollowing != nil {
			p := cfg.TrendFollowing
			issues = append(issues, validatePeriodRange("trendFollowing.demaPeriod", p.DemaPeriod, 1, 200)...)
			issues = append(issues, validatePeriodRange("trendFollowing.supertrendPeriod", p.SupertrendPeriod, 1, 100)...)
		}
	case types.StrategyKindPriceAction:
		if cfg.PriceAction != nil {
			p := cfg.PriceAction
			issues = append(issues, validatePeriodRange("priceAction.supertrendPeriod", p.SupertrendPeriod, 1, 100)...)
		}
	}

	return issues
}

func validatePeriodRange(field string, v, lo, hi int) []ValidationIssue {
	if v < lo || v > hi {
		return []ValidationIssue{{LevelError, field, fmt.Sprintf("%s must be in [%d,%d], got %d", field, lo, hi, v)}}
	}
	return nil
}

func validateRSIRange(field string, v float64) []ValidationIssue {
	if v < 0 || v > 100 {
		return []ValidationIssue{{LevelError, field, fmt.Sprintf("%s must be in [0,100], got %v", field, v)}}
	}
	return nil
}

// HasErrors reports whether issues contains any LevelError entry.
func HasErrors(issues []ValidationIssue) bool {
	for _, i := range issues {
		if i.Level == LevelError {
			return true
		}
	}
	return false
}

// RunSafetyChecks produces the severity-graded safety scorecard of
// spec.md §4.4.
func RunSafetyChecks(cfg *types.StrategyConfig, start, end, now time.Time) []SafetyCheck {
	var checks []SafetyCheck

	checks = append(checks, SafetyCheck{
		Name:     "max_loss_pct_nonzero",
		Passed:   cfg.MaxLossPct != 0,
		Message:  "maxLossPct = 0 means unlimited risk",
		Severity: SeverityCritical,
	})
	checks = append(checks, SafetyCheck{
		Name:     "max_lots_bound",
		Passed:   cfg.MaxLots <= 15,
		Message:  "maxLots > 15 is an excessive pyramiding cap",
		Severity: SeverityCritical,
	})
	checks = append(checks, SafetyCheck{
		Name:     "dates_not_future",
		Passed:   !start.After(now) && !end.After(now),
		Message:  "start or end date is in the future",
		Severity: SeverityCritical,
	})

	fastPeriod := -1
	slowPeriod := -1
	hasFilter := false
	switch cfg.Kind {
	case types.StrategyKindEmaGapAtr:
		if cfg.EmaGapAtr != nil {
			fastPeriod = cfg.EmaGapAtr.EmaFastPeriod
			slowPeriod = cfg.EmaGapAtr.EmaSlowPeriod
			hasFilter = cfg.EmaGapAtr.RsiEntryLong > 0 || cfg.EmaGapAtr.RsiEntryShort > 0
		}
	case types.StrategyKindTrendFollowing:
		if cfg.TrendFollowing != nil {
			hasFilter = cfg.TrendFollowing.MinTrendStrengthEnabled || cfg.TrendFollowing.VolatilityFilterEnabled
		}
	case types.StrategyKindPriceAction:
		hasFilter = true // the Supertrend+MACD confirmation window is itself a filter
	}

	if fastPeriod >= 0 {
		checks = append(checks, SafetyCheck{
			Name:     "ema_fast_not_too_small",
			Passed:   fastPeriod >= 2,
			Message:  "EMA fast period < 2 is noise-dominated",
			Severity: SeverityHigh,
		})
	}
	checks = append(checks, SafetyCheck{
		Name:     "has_entry_filtering",
		Passed:   hasFilter,
		Message:  "no entry filtering configured at all",
		Severity: SeverityHigh,
	})
	checks = append(checks, SafetyCheck{
		Name:     "initial_balance_sane",
		Passed:   cfg.Capital <= 100_000_000,
		Message:  "initial balance > 100M is unusual for a backtest",
		Severity: SeverityHigh,
	})
	if cfg.TrailingStop.Enabled && cfg.TrailingStop.Mode == "ATR" {
		checks = append(checks, SafetyCheck{
			Name:     "trailing_stop_not_too_wide",
			Passed:   cfg.TrailingStop.AtrMultiplier <= 5,
			Message:  "trailing stop > 5x ATR rarely triggers",
			Severity: SeverityHigh,
		})
	}

	if slowPeriod >= 0 {
		checks = append(checks, SafetyCheck{
			Name:     "ema_slow_not_too_large",
			Passed:   slowPeriod <= 100,
			Message:  "EMA slow period > 100 needs a very long warm-up",
			Severity: SeverityMedium,
		})
	}
	rangeDays := end.Sub(start).Hours() / 24
	if cfg.Timeframe == types.Timeframe1m {
		checks = append(checks, SafetyCheck{
			Name:     "one_minute_range_bound",
			Passed:   rangeDays <= 30,
			Message:  "1-minute data over more than 30 days is a very large candle set",
			Severity: SeverityMedium,
		})
	}
	checks = append(checks, SafetyCheck{
		Name:     "start_not_too_old",
		Passed:   now.Sub(start).Hours()/24 <= 365,
		Message:  "start date older than one year",
		Severity: SeverityMedium,
	})
	checks = append(checks, SafetyCheck{
		Name:     "range_not_too_short",
		Passed:   rangeDays >= 3,
		Message:  "date range of 1-3 days is very short",
		Severity: SeverityMedium,
	})

	checks = append(checks, SafetyCheck{
		Name:     "range_not_excessively_long",
		Passed:   rangeDays <= 365*3,
		Message:  "date range longer than 3 years",
		Severity: SeverityLow,
	})
	checks = append(checks, SafetyCheck{
		Name:     "range_moderately_short",
		Passed:   !(rangeDays >= 3 && rangeDays <= 30),
		Message:  "date range between 3 and 30 days",
		Severity: SeverityLow,
	})

	return checks
}

// Proceed reports whether a run may start: no failing CRITICAL and no
// failing HIGH checks.
func Proceed(checks []SafetyCheck) bool {
	for _, c := range checks {
		if c.Passed {
			continue
		}
		if c.Severity == SeverityCritical || c.Severity == SeverityHigh {
			return false
		}
	}
	return true
}
