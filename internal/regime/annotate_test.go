package regime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func trendingCandles(n int) []types.Candle {
	candles := make([]types.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price *= 1.002
		candles[i] = types.Candle{
			TimestampMs: int64(i) * 60_000,
			Close:       price,
			Volume:      10,
		}
	}
	return candles
}

func TestAnalyzeCandlesUnknownBelowTwoCandles(t *testing.T) {
	summary := AnalyzeCandles(zap.NewNop(), trendingCandles(1))

	require.NotNil(t, summary)
	assert.Equal(t, ClassificationUnknown, summary.Dominant)
}

func TestAnalyzeCandlesUnknownWithEmptyInput(t *testing.T) {
	summary := AnalyzeCandles(zap.NewNop(), nil)

	require.NotNil(t, summary)
	assert.Equal(t, ClassificationUnknown, summary.Dominant)
}

func TestAnalyzeCandlesClassifiesSustainedWindow(t *testing.T) {
	summary := AnalyzeCandles(zap.NewNop(), trendingCandles(150))

	require.NotNil(t, summary)
	validBuckets := map[Classification]bool{
		ClassificationTrendingUp:   true,
		ClassificationTrendingDown: true,
		ClassificationRanging:      true,
		ClassificationVolatile:     true,
		ClassificationUnknown:      true,
	}
	assert.True(t, validBuckets[summary.Dominant])
	assert.GreaterOrEqual(t, summary.Confidence, 0.0)
	assert.GreaterOrEqual(t, summary.Transitions, 0)
}

func TestAnalyzeCandlesSkipsZeroPriceDivision(t *testing.T) {
	candles := trendingCandles(5)
	candles[1].Close = 0

	assert.NotPanics(t, func() {
		AnalyzeCandles(zap.NewNop(), candles)
	})
}

func TestCollapseMapsEveryRegimeTypeToAKnownBucket(t *testing.T) {
	cases := map[RegimeType]Classification{
		RegimeTrendingUp:   ClassificationTrendingUp,
		RegimeTrendingDown: ClassificationTrendingDown,
		RegimeRanging:      ClassificationRanging,
		RegimeVolatile:     ClassificationVolatile,
		RegimeUnknown:      ClassificationUnknown,
	}
	for regimeType, want := range cases {
		assert.Equal(t, want, collapse(regimeType), "regime type %s", regimeType)
	}
}

func TestAnalyzeCandlesHandlesNaNFreeOutput(t *testing.T) {
	summary := AnalyzeCandles(zap.NewNop(), trendingCandles(150))

	require.NotNil(t, summary)
	assert.False(t, math.IsNaN(summary.Confidence))
	assert.False(t, math.IsNaN(summary.Volatility))
	assert.False(t, math.IsNaN(summary.Trend))
}
