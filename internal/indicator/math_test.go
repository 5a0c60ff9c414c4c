package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMASeriesSeededWithFirstRawValue(t *testing.T) {
	values := []float64{10, 11, 12}
	series := EMASeries(values, 2) // k = 2/3
	require.Len(t, series, 3)
	assert.Equal(t, 10.0, series[0], "EMA must seed with the first raw value, not a prefix SMA")
	k := 2.0 / 3.0
	want1 := values[1]*k + series[0]*(1-k)
	assert.InDelta(t, want1, series[1], 1e-9)
	want2 := values[2]*k + series[1]*(1-k)
	assert.InDelta(t, want2, series[2], 1e-9)
}

func TestSMASeriesRequiresFullWindow(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	series := SMASeries(values, 3)
	assert.True(t, math.IsNaN(series[0]))
	assert.True(t, math.IsNaN(series[1]))
	assert.InDelta(t, 2.0, series[2], 1e-9)
	assert.InDelta(t, 3.0, series[3], 1e-9)
	assert.InDelta(t, 4.0, series[4], 1e-9)
}

func TestDEMAFormula(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14, 15, 16}
	period := 3
	ema1 := EMASeries(values, period)
	ema2 := EMASeries(ema1, period)
	dema := DEMASeries(values, period)
	for i := range values {
		assert.InDelta(t, 2*ema1[i]-ema2[i], dema[i], 1e-9)
	}
}

func TestATRSeriesSeedIsSimpleMeanOfFirstNTrueRanges(t *testing.T) {
	highs := []float64{10, 11, 12, 11, 13}
	lows := []float64{9, 10, 10, 9, 11}
	closes := []float64{9.5, 10.5, 11, 10, 12}
	period := 3
	series := ATRSeries(highs, lows, closes, period)
	assert.True(t, math.IsNaN(series[0]))
	assert.True(t, math.IsNaN(series[1]))

	tr := TrueRangeSeries(highs, lows, closes)
	wantSeed := (tr[0] + tr[1] + tr[2]) / 3
	assert.InDelta(t, wantSeed, series[2], 1e-9)

	wantNext := (series[2]*2 + tr[3]) / 3
	assert.InDelta(t, wantNext, series[3], 1e-9)
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105, 106}
	series := RSISeries(closes, 5)
	v, ok := LastValid(series)
	require.True(t, ok)
	assert.InDelta(t, 100.0, v, 1e-9)
}

func TestRSIBoundedRange(t *testing.T) {
	closes := []float64{100, 99, 101, 98, 102, 97, 103, 96, 104, 95, 105}
	series := RSISeries(closes, 4)
	for _, v := range series {
		if math.IsNaN(v) {
			continue
		}
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestMACDHistEqualsMACDMinusSignal(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 13, 14, 12, 15, 16, 14}
	res := MACDSeries(closes, 3, 6, 2)
	for i := range closes {
		assert.InDelta(t, res.MACD[i]-res.Signal[i], res.Hist[i], 1e-9)
	}
}

func TestSupertrendFlipsTrendSign(t *testing.T) {
	// A monotonically rising then falling series should produce at
	// least one trend flip.
	highs := []float64{}
	lows := []float64{}
	closes := []float64{}
	base := 100.0
	for i := 0; i < 10; i++ {
		base += 2
		highs = append(highs, base+1)
		lows = append(lows, base-1)
		closes = append(closes, base)
	}
	for i := 0; i < 10; i++ {
		base -= 3
		highs = append(highs, base+1)
		lows = append(lows, base-1)
		closes = append(closes, base)
	}
	res := SupertrendSeries(highs, lows, closes, 3, 2)
	sawUp, sawDown := false, false
	for _, tr := range res.Trend {
		if tr == 1 {
			sawUp = true
		}
		if tr == -1 {
			sawDown = true
		}
	}
	assert.True(t, sawUp)
	assert.True(t, sawDown)
}

func TestBollingerBandsSymmetricAroundMiddle(t *testing.T) {
	closes := []float64{10, 11, 9, 12, 8, 13, 7, 14, 6, 15}
	res := BollingerSeries(closes, 5, 2)
	last := len(closes) - 1
	upDist := res.Upper[last] - res.Middle[last]
	downDist := res.Middle[last] - res.Lower[last]
	assert.InDelta(t, upDist, downDist, 1e-9)
}
