package regime

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

// Classification is the four-bucket regime label (plus UNKNOWN) SPEC_FULL.md
// §11.9 surfaces to callers; it maps 1:1 onto RegimeDetector's RegimeType.
type Classification string

const (
	ClassificationTrendingUp   Classification = "TRENDING_UP"
	ClassificationTrendingDown Classification = "TRENDING_DOWN"
	ClassificationRanging      Classification = "RANGING"
	ClassificationVolatile     Classification = "VOLATILE"
	ClassificationUnknown      Classification = "UNKNOWN"
)

// Summary is the optional, informational regime annotation attached to a
// candle window. It carries no weight in RunBacktest and is computed by a
// separate pass over the same candles after the fact.
type Summary struct {
	Dominant    Classification `json:"dominant"`
	Confidence  float64        `json:"confidence"`
	Volatility  float64        `json:"volatility"`
	Trend       float64        `json:"trend"`
	Transitions int            `json:"transitions"`
}

// collapse renames RegimeDetector's state vocabulary to the Classification
// one AnalyzeCandles reports; the two are defined 1:1 so this is a plain
// lookup rather than a bucketing decision.
func collapse(r RegimeType) Classification {
	switch r {
	case RegimeTrendingUp:
		return ClassificationTrendingUp
	case RegimeTrendingDown:
		return ClassificationTrendingDown
	case RegimeRanging:
		return ClassificationRanging
	case RegimeVolatile:
		return ClassificationVolatile
	default:
		return ClassificationUnknown
	}
}

// AnalyzeCandles runs the HMM-based detector over a closed candle series and
// returns the dominant regime over the window, per SPEC_FULL.md §11.9. The
// caller (cmd/backtester's -once mode) invokes this independently of
// RunBacktest; its output is descriptive only and never reaches the core
// signal path.
func AnalyzeCandles(logger *zap.Logger, candles []types.Candle) *Summary {
	if len(candles) < 2 {
		return &Summary{Dominant: ClassificationUnknown}
	}

	detector := NewRegimeDetector(logger, DefaultRegimeConfig())
	transitions := 0

	for i, c := range candles {
		detector.AddDataPoint(decimal.NewFromFloat(c.Close), decimal.NewFromFloat(c.Volume), time.UnixMilli(c.TimestampMs))
		if i > 0 {
			prevClose := candles[i-1].Close
			if prevClose != 0 {
				detector.AddReturn((c.Close - prevClose) / prevClose)
			}
		}
		if detector.IsRegimeTransition() {
			transitions++
		}
	}

	state := detector.GetCurrentRegime()
	if state == nil {
		return &Summary{Dominant: ClassificationUnknown}
	}

	return &Summary{
		Dominant:    collapse(state.Primary),
		Confidence:  state.Confidence,
		Volatility:  state.Volatility,
		Trend:       state.Trend,
		Transitions: transitions,
	}
}
