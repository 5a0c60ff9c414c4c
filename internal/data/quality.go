// Package data: data quality validation for historical candle series.
// Grounded on the teacher's internal/data/quality.go, retyped from
// decimal.Decimal/*types.OHLCV onto float64/types.Candle per SPEC_FULL.md
// §3's determinism decision; time.Time fields become epoch milliseconds
// to match types.Candle.TimestampMs.
package data

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

// QualityValidator checks historical candle data integrity before it
// reaches the orchestrator.
type QualityValidator struct {
	logger *zap.Logger

	MaxIntradayMove   float64
	MaxGapMove        float64
	MinVolume         float64
	MaxVolumeMultiple float64
}

// DataIssue is one quality finding.
type DataIssue struct {
	Type        string
	Severity    string // "critical", "high", "medium", "low"
	TimestampMs int64
	Symbol      string
	Message     string
	BarIndex    int
}

// QualityReport summarizes a quality assessment.
type QualityReport struct {
	Symbol    string
	TotalBars int
	Issues    []DataIssue
	Score     int // 0-100
	IsUsable  bool

	MissingDataCount   int
	PriceAnomalyCount  int
	VolumeAnomalyCount int
	OHLCErrorCount     int

	StartMs int64
	EndMs   int64

	Recommendations []string
}

// NewCryptoQualityValidator returns defaults tuned for 24/7 crypto
// candles (no session gaps expected).
func NewCryptoQualityValidator(logger *zap.Logger) *QualityValidator {
	return &QualityValidator{
		logger:            logger.Named("data.quality"),
		MaxIntradayMove:   0.30,
		MaxGapMove:        0.20,
		MinVolume:         100,
		MaxVolumeMultiple: 20.0,
	}
}

// Validate runs all quality checks on a candle series.
func (v *QualityValidator) Validate(candles []types.Candle, symbol string) QualityReport {
	if len(candles) == 0 {
		return QualityReport{
			Symbol: symbol,
			Issues: []DataIssue{{Type: "NO_DATA", Severity: "critical", Message: "no candles provided"}},
		}
	}

	var issues []DataIssue
	issues = append(issues, v.checkMissingData(candles, symbol)...)
	issues = append(issues, v.checkPriceAnomalies(candles, symbol)...)
	issues = append(issues, v.checkVolumeAnomalies(candles, symbol)...)
	issues = append(issues, v.checkOHLCConsistency(candles, symbol)...)
	issues = append(issues, v.checkDuplicates(candles, symbol)...)
	issues = append(issues, v.checkChronologicalOrder(candles, symbol)...)

	score := v.calculateQualityScore(len(candles), issues)

	return QualityReport{
		Symbol:             symbol,
		TotalBars:          len(candles),
		Issues:             issues,
		Score:              score,
		IsUsable:           score >= 70 && !hasCriticalIssues(issues),
		MissingDataCount:   countIssuesByType(issues, "GAP_DETECTED"),
		PriceAnomalyCount:  countIssuesByType(issues, "NEGATIVE_PRICE", "EXTREME_MOVE", "GAP_MOVE", "ZERO_PRICE"),
		VolumeAnomalyCount: countIssuesByType(issues, "ZERO_VOLUME", "LOW_VOLUME", "VOLUME_SPIKE"),
		OHLCErrorCount:     countIssuesByType(issues, "OHLC_INCONSISTENT"),
		StartMs:            candles[0].TimestampMs,
		EndMs:              candles[len(candles)-1].TimestampMs,
		Recommendations:    generateRecommendations(issues, len(candles)),
	}
}

func (v *QualityValidator) checkMissingData(candles []types.Candle, symbol string) []DataIssue {
	var issues []DataIssue
	if len(candles) < 2 {
		return issues
	}

	n := 10
	if n > len(candles)-1 {
		n = len(candles) - 1
	}
	intervals := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		intervals = append(intervals, candles[i].TimestampMs-candles[i-1].TimestampMs)
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
	expected := intervals[len(intervals)/2]

	for i := 1; i < len(candles); i++ {
		actual := candles[i].TimestampMs - candles[i-1].TimestampMs
		maxInterval := expected + expected/2
		if actual > maxInterval*3 {
			severity := "high"
			if actual > maxInterval*10 {
				severity = "critical"
			}
			issues = append(issues, DataIssue{
				Type: "GAP_DETECTED", Severity: severity, TimestampMs: candles[i-1].TimestampMs,
				Symbol: symbol, Message: fmt.Sprintf("data gap of %dms (expected ~%dms)", actual, expected), BarIndex: i - 1,
			})
		}
	}
	return issues
}

func (v *QualityValidator) checkPriceAnomalies(candles []types.Candle, symbol string) []DataIssue {
	var issues []DataIssue
	for i, c := range candles {
		if c.Open == 0 || c.High == 0 || c.Low == 0 || c.Close == 0 {
			issues = append(issues, DataIssue{Type: "ZERO_PRICE", Severity: "critical", TimestampMs: c.TimestampMs, Symbol: symbol, Message: "zero price", BarIndex: i})
			continue
		}
		if c.Open < 0 || c.High < 0 || c.Low < 0 || c.Close < 0 {
			issues = append(issues, DataIssue{Type: "NEGATIVE_PRICE", Severity: "critical", TimestampMs: c.TimestampMs, Symbol: symbol, Message: "negative price", BarIndex: i})
			continue
		}
		if c.Low != 0 {
			intraday := (c.High - c.Low) / c.Low
			if intraday > v.MaxIntradayMove {
				issues = append(issues, DataIssue{Type: "EXTREME_MOVE", Severity: "high", TimestampMs: c.TimestampMs, Symbol: symbol,
					Message: fmt.Sprintf("extreme intraday move: %.2f%%", intraday*100), BarIndex: i})
			}
		}
		if i > 0 && candles[i-1].Close != 0 {
			move := math.Abs((c.Open - candles[i-1].Close) / candles[i-1].Close)
			if move > v.MaxGapMove {
				issues = append(issues, DataIssue{Type: "GAP_MOVE", Severity: "medium", TimestampMs: c.TimestampMs, Symbol: symbol,
					Message: fmt.Sprintf("large price gap: %.2f%%", move*100), BarIndex: i})
			}
		}
	}
	return issues
}

func (v *QualityValidator) checkVolumeAnomalies(candles []types.Candle, symbol string) []DataIssue {
	var issues []DataIssue
	var total float64
	nonZero := 0
	for _, c := range candles {
		if c.Volume > 0 {
			total += c.Volume
			nonZero++
		}
	}
	var avg float64
	if nonZero > 0 {
		avg = total / float64(nonZero)
	}
	for i, c := range candles {
		if c.Volume == 0 {
			issues = append(issues, DataIssue{Type: "ZERO_VOLUME", Severity: "low", TimestampMs: c.TimestampMs, Symbol: symbol, Message: "zero volume bar", BarIndex: i})
			continue
		}
		if c.Volume < v.MinVolume {
			issues = append(issues, DataIssue{Type: "LOW_VOLUME", Severity: "low", TimestampMs: c.TimestampMs, Symbol: symbol,
				Message: fmt.Sprintf("volume %.2f below threshold %.2f", c.Volume, v.MinVolume), BarIndex: i})
		}
		if avg > 0 && c.Volume > avg*v.MaxVolumeMultiple {
			issues = append(issues, DataIssue{Type: "VOLUME_SPIKE", Severity: "low", TimestampMs: c.TimestampMs, Symbol: symbol,
				Message: fmt.Sprintf("volume spike: %.1fx average", c.Volume/avg), BarIndex: i})
		}
	}
	return issues
}

func (v *QualityValidator) checkOHLCConsistency(candles []types.Candle, symbol string) []DataIssue {
	var issues []DataIssue
	for i, c := range candles {
		if !c.Valid() {
			issues = append(issues, DataIssue{Type: "OHLC_INCONSISTENT", Severity: "critical", TimestampMs: c.TimestampMs, Symbol: symbol,
				Message: fmt.Sprintf("OHLC invariant violated (O:%v H:%v L:%v C:%v)", c.Open, c.High, c.Low, c.Close), BarIndex: i})
		}
	}
	return issues
}

func (v *QualityValidator) checkDuplicates(candles []types.Candle, symbol string) []DataIssue {
	var issues []DataIssue
	seen := make(map[int64]int)
	for i, c := range candles {
		if first, ok := seen[c.TimestampMs]; ok {
			issues = append(issues, DataIssue{Type: "DUPLICATE_TIMESTAMP", Severity: "high", TimestampMs: c.TimestampMs, Symbol: symbol,
				Message: fmt.Sprintf("duplicate of index %d", first), BarIndex: i})
		} else {
			seen[c.TimestampMs] = i
		}
	}
	return issues
}

func (v *QualityValidator) checkChronologicalOrder(candles []types.Candle, symbol string) []DataIssue {
	var issues []DataIssue
	for i := 1; i < len(candles); i++ {
		if candles[i].TimestampMs < candles[i-1].TimestampMs {
			issues = append(issues, DataIssue{Type: "OUT_OF_ORDER", Severity: "critical", TimestampMs: candles[i].TimestampMs, Symbol: symbol,
				Message: "candle out of chronological order", BarIndex: i})
		}
	}
	return issues
}

func (v *QualityValidator) calculateQualityScore(total int, issues []DataIssue) int {
	if total == 0 {
		return 0
	}
	var penalty float64
	for _, issue := range issues {
		switch issue.Severity {
		case "critical":
			penalty += 10
		case "high":
			penalty += 5
		case "medium":
			penalty += 2
		case "low":
			penalty += 0.5
		}
	}
	normalized := penalty / math.Max(1, float64(total)/100) * 10
	score := 100 - math.Min(normalized, 100)
	return int(math.Max(0, math.Min(100, score)))
}

func hasCriticalIssues(issues []DataIssue) bool {
	for _, i := range issues {
		if i.Severity == "critical" {
			return true
		}
	}
	return false
}

func generateRecommendations(issues []DataIssue, total int) []string {
	counts := make(map[string]int)
	for _, i := range issues {
		counts[i.Type]++
	}
	var recs []string
	if counts["GAP_DETECTED"] > 0 {
		recs = append(recs, "consider filling data gaps or excluding affected periods")
	}
	if counts["OHLC_INCONSISTENT"] > 0 {
		recs = append(recs, "OHLC inconsistencies found, verify data source")
	}
	if counts["EXTREME_MOVE"] > total/100 {
		recs = append(recs, "many extreme moves detected, consider filtering outliers")
	}
	if counts["ZERO_VOLUME"] > total/10 {
		recs = append(recs, "high proportion of zero-volume bars")
	}
	if counts["DUPLICATE_TIMESTAMP"] > 0 {
		recs = append(recs, "remove duplicate timestamps before backtesting")
	}
	if counts["OUT_OF_ORDER"] > 0 {
		recs = append(recs, "sort candles by timestamp before use")
	}
	if len(recs) == 0 {
		recs = append(recs, "data quality is acceptable for backtesting")
	}
	return recs
}

func countIssuesByType(issues []DataIssue, types ...string) int {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	count := 0
	for _, i := range issues {
		if set[i.Type] {
			count++
		}
	}
	return count
}
