// Package indicator implements the exact recursive indicator mathematics
// spec.md §4.2.4 pins bit-for-bit: EMA, DEMA, SMA, ATR, RSI, MACD,
// Supertrend, ADX, Bollinger Bands, and a simple Support/Resistance
// channel. Every function is a pure function of its input slice — no
// package-level state, no I/O — and operates on the full candle prefix
// passed in, recomputing from index 0 each call, matching the teacher's
// strategy.go convention of recomputing indicator series per evaluation
// rather than maintaining incremental accumulators.
//
// All math is float64, like the rest of this repository's core; the
// teacher's decimal.Decimal idiom survives only at a few boundaries — see DESIGN.md and
// SPEC_FULL.md §3: spec.md's determinism contract pins "IEEE-754 double
// throughout" and "the naïve recursion", which a decimal accumulator
// cannot reproduce bit-for-bit.
package indicator

import "math"

// SMASeries returns the simple moving average of values over a trailing
// window of length period. Entries before the window is full are NaN.
func SMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMASeries returns the exponential moving average of values, seeded with
// the first raw value (not a prefix SMA) per spec.md §9.
func EMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	k := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// DEMASeries returns 2*EMA1 - EMA2, where EMA2 is EMA(period) applied to
// the EMA1 series.
func DEMASeries(values []float64, period int) []float64 {
	ema1 := EMASeries(values, period)
	ema2 := EMASeries(ema1, period)
	out := make([]float64, len(values))
	for i := range values {
		out[i] = 2*ema1[i] - ema2[i]
	}
	return out
}

// TrueRangeSeries returns TR_i = max(high-low, |high-close_{i-1}|,
// |low-close_{i-1}|); TR_0 = high_0 - low_0.
func TrueRangeSeries(highs, lows, closes []float64) []float64 {
	n := len(highs)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	out[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATRSeries returns Wilder-smoothed average true range: seeded by the
// simple mean of the first `period` true ranges, then
// ATR_i = (ATR_{i-1}*(period-1) + TR_i) / period. Entries before the
// seed index are NaN.
func ATRSeries(highs, lows, closes []float64, period int) []float64 {
	n := len(highs)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || n < period {
		return out
	}
	tr := TrueRangeSeries(highs, lows, closes)
	var seedSum float64
	for i := 0; i < period; i++ {
		seedSum += tr[i]
	}
	out[period-1] = seedSum / float64(period)
	for i := period; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// RSISeries returns the Wilder-smoothed relative strength index: initial
// avgGain/avgLoss over the first `period` deltas, then Wilder smoothing.
// RSI = 100 when avgLoss is zero. Entries before the seed index are NaN.
func RSISeries(closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || n <= period {
		return out
	}
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	var sumGain, sumLoss float64
	for i := 1; i <= period; i++ {
		sumGain += gains[i]
		sumLoss += losses[i]
	}
	avgGain := sumGain / float64(period)
	avgLoss := sumLoss / float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)
	for i := period + 1; i < n; i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the three MACD series, all aligned to the input.
type MACDResult struct {
	MACD   []float64
	Signal []float64
	Hist   []float64
}

// MACDSeries returns MACD = EMA(fast) - EMA(slow), Signal = EMA(signal)
// of MACD, Hist = MACD - Signal.
func MACDSeries(closes []float64, fast, slow, signal int) MACDResult {
	emaFast := EMASeries(closes, fast)
	emaSlow := EMASeries(closes, slow)
	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	sig := EMASeries(macd, signal)
	hist := make([]float64, len(closes))
	for i := range closes {
		hist[i] = macd[i] - sig[i]
	}
	return MACDResult{MACD: macd, Signal: sig, Hist: hist}
}

// SupertrendResult holds the Supertrend line and the trend direction
// (+1 = uptrend i.e. line acts as support below price, -1 = downtrend).
type SupertrendResult struct {
	Value []float64
	Trend []int
}

// SupertrendSeries computes the Supertrend indicator from ATR(period)
// basic bands hl2 ± multiplier*ATR, tightened monotonically in the
// prevailing trend. The seed index (first index where ATR is defined)
// assumes a downtrend (line = upper band) — an unpinned choice; every
// subsequent value is fully determined by the recursion.
func SupertrendSeries(highs, lows, closes []float64, period int, multiplier float64) SupertrendResult {
	n := len(highs)
	value := make([]float64, n)
	trend := make([]int, n)
	atr := ATRSeries(highs, lows, closes, period)
	if n == 0 || period <= 0 || n < period {
		for i := range value {
			value[i] = math.NaN()
		}
		return SupertrendResult{Value: value, Trend: trend}
	}

	finalUpper := make([]float64, n)
	finalLower := make([]float64, n)
	seed := period - 1
	for i := 0; i < seed; i++ {
		value[i] = math.NaN()
	}

	for i := seed; i < n; i++ {
		hl2 := (highs[i] + lows[i]) / 2
		basicUpper := hl2 + multiplier*atr[i]
		basicLower := hl2 - multiplier*atr[i]

		if i == seed {
			finalUpper[i] = basicUpper
			finalLower[i] = basicLower
			value[i] = basicUpper
			trend[i] = -1
			continue
		}

		if basicUpper < finalUpper[i-1] || closes[i-1] > finalUpper[i-1] {
			finalUpper[i] = basicUpper
		} else {
			finalUpper[i] = finalUpper[i-1]
		}
		if basicLower > finalLower[i-1] || closes[i-1] < finalLower[i-1] {
			finalLower[i] = basicLower
		} else {
			finalLower[i] = finalLower[i-1]
		}

		switch {
		case value[i-1] == finalUpper[i-1]:
			if closes[i] <= finalUpper[i] {
				value[i] = finalUpper[i]
				trend[i] = -1
			} else {
				value[i] = finalLower[i]
				trend[i] = 1
			}
		default:
			if closes[i] >= finalLower[i] {
				value[i] = finalLower[i]
				trend[i] = 1
			} else {
				value[i] = finalUpper[i]
				trend[i] = -1
			}
		}
	}
	return SupertrendResult{Value: value, Trend: trend}
}

// ADXResult holds +DI, -DI, and ADX series.
type ADXResult struct {
	PlusDI []float64
	MinusDI []float64
	ADX    []float64
}

// ADXSeries computes the standard Wilder +DI/-DI/DX/ADX.
func ADXSeries(highs, lows, closes []float64, period int) ADXResult {
	n := len(highs)
	plusDI := make([]float64, n)
	minusDI := make([]float64, n)
	adx := make([]float64, n)
	for i := range adx {
		plusDI[i] = math.NaN()
		minusDI[i] = math.NaN()
		adx[i] = math.NaN()
	}
	if period <= 0 || n <= 2*period {
		return ADXResult{PlusDI: plusDI, MinusDI: minusDI, ADX: adx}
	}

	tr := TrueRangeSeries(highs, lows, closes)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	var smoothTR, smoothPlusDM, smoothMinusDM float64
	for i := 1; i <= period; i++ {
		smoothTR += tr[i]
		smoothPlusDM += plusDM[i]
		smoothMinusDM += minusDM[i]
	}

	dx := make([]float64, n)
	setDI := func(i int) {
		if smoothTR == 0 {
			plusDI[i] = 0
			minusDI[i] = 0
		} else {
			plusDI[i] = 100 * smoothPlusDM / smoothTR
			minusDI[i] = 100 * smoothMinusDM / smoothTR
		}
		sum := plusDI[i] + minusDI[i]
		if sum == 0 {
			dx[i] = 0
		} else {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		}
	}
	setDI(period)

	for i := period + 1; i < n; i++ {
		smoothTR = smoothTR - smoothTR/float64(period) + tr[i]
		smoothPlusDM = smoothPlusDM - smoothPlusDM/float64(period) + plusDM[i]
		smoothMinusDM = smoothMinusDM - smoothMinusDM/float64(period) + minusDM[i]
		setDI(i)
	}

	seedADXIdx := 2 * period
	if seedADXIdx >= n {
		return ADXResult{PlusDI: plusDI, MinusDI: minusDI, ADX: adx}
	}
	var dxSum float64
	for i := period + 1; i <= seedADXIdx; i++ {
		dxSum += dx[i]
	}
	adx[seedADXIdx] = dxSum / float64(period)
	for i := seedADXIdx + 1; i < n; i++ {
		adx[i] = (adx[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return ADXResult{PlusDI: plusDI, MinusDI: minusDI, ADX: adx}
}

// BollingerResult holds the middle (SMA), upper, and lower bands.
type BollingerResult struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
}

// BollingerSeries computes Bollinger Bands: middle = SMA(period), bands
// = middle ± k * population standard deviation of the trailing window.
func BollingerSeries(closes []float64, period int, k float64) BollingerResult {
	n := len(closes)
	middle := SMASeries(closes, period)
	upper := make([]float64, n)
	lower := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < period-1 {
			upper[i] = math.NaN()
			lower[i] = math.NaN()
			continue
		}
		mean := middle[i]
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			variance += d * d
		}
		variance /= float64(period)
		sd := math.Sqrt(variance)
		upper[i] = mean + k*sd
		lower[i] = mean - k*sd
	}
	return BollingerResult{Middle: middle, Upper: upper, Lower: lower}
}

// SupportResistance holds the rolling support (lowest low) and resistance
// (highest high) over a trailing window.
type SupportResistance struct {
	Support    []float64
	Resistance []float64
}

// SupportResistanceSeries computes a simple rolling channel: the lowest
// low and highest high over the trailing `lookback` candles.
func SupportResistanceSeries(highs, lows []float64, lookback int) SupportResistance {
	n := len(highs)
	support := make([]float64, n)
	resistance := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < lookback-1 {
			support[i] = math.NaN()
			resistance[i] = math.NaN()
			continue
		}
		lo := lows[i]
		hi := highs[i]
		for j := i - lookback + 1; j <= i; j++ {
			if lows[j] < lo {
				lo = lows[j]
			}
			if highs[j] > hi {
				hi = highs[j]
			}
		}
		support[i] = lo
		resistance[i] = hi
	}
	return SupportResistance{Support: support, Resistance: resistance}
}

// Round2 rounds to two decimal places for external reporting (SMA/RSI per
// spec.md §4.2.4); internal computation never calls this.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// LastValid returns the last non-NaN value in series and whether one
// existed.
func LastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}
