package indicator

import (
	"fmt"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

// Name identifies one registered indicator capability.
type Name string

const (
	NameEMA               Name = "EMA"
	NameDEMA              Name = "DEMA"
	NameSMA               Name = "SMA"
	NameRSI               Name = "RSI"
	NameATR               Name = "ATR"
	NameMACD              Name = "MACD"
	NameSupertrend        Name = "SUPERTREND"
	NameADX               Name = "ADX"
	NameBollingerBands    Name = "BOLLINGER_BANDS"
	NameSupportResistance Name = "SUPPORT_RESISTANCE"
)

// Params is the parameter bag passed to a registered Calculate function.
// Concrete strategies read the fields they need; unused fields are
// ignored by a given indicator.
type Params struct {
	Period     int
	FastPeriod int
	SlowPeriod int
	SignalPeriod int
	Multiplier float64
	Lookback   int
}

// Output is the value an indicator capability reports for the last candle
// in the window, plus any additional named series values useful for
// diagnostics (e.g. a Supertrend's trend sign).
type Output struct {
	Value          float64
	AdditionalData map[string]float64
	TimestampMs    int64
}

// Capability is a tagged-variant registry entry: a name, its minimum data
// requirement, and its calculation function. Modeled as a registry of
// capabilities per spec.md §9, generalizing the teacher's
// map[string]func() strategy-factory idiom to indicators.
type Capability struct {
	Name           Name
	RequiredParams []string
	MinDataPoints  func(p Params) int
	Calculate      func(candles []types.Candle, p Params) (Output, error)
}

// Registry holds the known indicator capabilities keyed by Name.
type Registry struct {
	capabilities map[Name]Capability
}

// NewRegistry builds a Registry pre-populated with the standard
// capability set from spec.md §6.
func NewRegistry() *Registry {
	r := &Registry{capabilities: make(map[Name]Capability)}
	for _, c := range standardCapabilities() {
		r.capabilities[c.Name] = c
	}
	return r
}

// Register adds or replaces a capability.
func (r *Registry) Register(c Capability) {
	r.capabilities[c.Name] = c
}

// Get looks up a capability by name.
func (r *Registry) Get(name Name) (Capability, bool) {
	c, ok := r.capabilities[name]
	return c, ok
}

// Calculate runs the named capability against candles with params p.
func (r *Registry) Calculate(name Name, candles []types.Candle, p Params) (Output, error) {
	c, ok := r.capabilities[name]
	if !ok {
		return Output{}, fmt.Errorf("indicator: unknown capability %q", name)
	}
	if len(candles) < c.MinDataPoints(p) {
		return Output{}, fmt.Errorf("indicator: %q requires %d candles, got %d", name, c.MinDataPoints(p), len(candles))
	}
	return c.Calculate(candles, p)
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

func standardCapabilities() []Capability {
	return []Capability{
		{
			Name:           NameSMA,
			RequiredParams: []string{"Period"},
			MinDataPoints:  func(p Params) int { return p.Period },
			Calculate: func(candles []types.Candle, p Params) (Output, error) {
				series := SMASeries(closesOf(candles), p.Period)
				v, _ := LastValid(series)
				return Output{Value: Round2(v), TimestampMs: candles[len(candles)-1].TimestampMs}, nil
			},
		},
		{
			Name:           NameEMA,
			RequiredParams: []string{"Period"},
			MinDataPoints:  func(p Params) int { return 1 },
			Calculate: func(candles []types.Candle, p Params) (Output, error) {
				series := EMASeries(closesOf(candles), p.Period)
				v, _ := LastValid(series)
				return Output{Value: v, TimestampMs: candles[len(candles)-1].TimestampMs}, nil
			},
		},
		{
			Name:           NameDEMA,
			RequiredParams: []string{"Period"},
			MinDataPoints:  func(p Params) int { return 1 },
			Calculate: func(candles []types.Candle, p Params) (Output, error) {
				series := DEMASeries(closesOf(candles), p.Period)
				v, _ := LastValid(series)
				return Output{Value: v, TimestampMs: candles[len(candles)-1].TimestampMs}, nil
			},
		},
		{
			Name:           NameATR,
			RequiredParams: []string{"Period"},
			MinDataPoints:  func(p Params) int { return p.Period },
			Calculate: func(candles []types.Candle, p Params) (Output, error) {
				series := ATRSeries(highsOf(candles), lowsOf(candles), closesOf(candles), p.Period)
				v, _ := LastValid(series)
				return Output{Value: v, TimestampMs: candles[len(candles)-1].TimestampMs}, nil
			},
		},
		{
			Name:           NameRSI,
			RequiredParams: []string{"Period"},
			MinDataPoints:  func(p Params) int { return p.Period + 1 },
			Calculate: func(candles []types.Candle, p Params) (Output, error) {
				series := RSISeries(closesOf(candles), p.Period)
				v, _ := LastValid(series)
				return Output{Value: Round2(v), TimestampMs: candles[len(candles)-1].TimestampMs}, nil
			},
		},
		{
			Name:           NameMACD,
			RequiredParams: []string{"FastPeriod", "SlowPeriod", "SignalPeriod"},
			MinDataPoints:  func(p Params) int { return 1 },
			Calculate: func(candles []types.Candle, p Params) (Output, error) {
				res := MACDSeries(closesOf(candles), p.FastPeriod, p.SlowPeriod, p.SignalPeriod)
				last := len(candles) - 1
				return Output{
					Value: res.MACD[last],
					AdditionalData: map[string]float64{
						"signal": res.Signal[last],
						"hist":   res.Hist[last],
					},
					TimestampMs: candles[last].TimestampMs,
				}, nil
			},
		},
		{
			Name:           NameSupertrend,
			RequiredParams: []string{"Period", "Multiplier"},
			MinDataPoints:  func(p Params) int { return p.Period },
			Calculate: func(candles []types.Candle, p Params) (Output, error) {
				res := SupertrendSeries(highsOf(candles), lowsOf(candles), closesOf(candles), p.Period, p.Multiplier)
				last := len(candles) - 1
				return Output{
					Value:          res.Value[last],
					AdditionalData: map[string]float64{"trend": float64(res.Trend[last])},
					TimestampMs:    candles[last].TimestampMs,
				}, nil
			},
		},
		{
			Name:           NameADX,
			RequiredParams: []string{"Period"},
			MinDataPoints:  func(p Params) int { return 2*p.Period + 1 },
			Calculate: func(candles []types.Candle, p Params) (Output, error) {
				res := ADXSeries(highsOf(candles), lowsOf(candles), closesOf(candles), p.Period)
				last := len(candles) - 1
				return Output{
					Value: res.ADX[last],
					AdditionalData: map[string]float64{
						"plusDI":  res.PlusDI[last],
						"minusDI": res.MinusDI[last],
					},
					TimestampMs: candles[last].TimestampMs,
				}, nil
			},
		},
		{
			Name:           NameBollingerBands,
			RequiredParams: []string{"Period", "Multiplier"},
			MinDataPoints:  func(p Params) int { return p.Period },
			Calculate: func(candles []types.Candle, p Params) (Output, error) {
				res := BollingerSeries(closesOf(candles), p.Period, p.Multiplier)
				last := len(candles) - 1
				return Output{
					Value: res.Middle[last],
					AdditionalData: map[string]float64{
						"upper": res.Upper[last],
						"lower": res.Lower[last],
					},
					TimestampMs: candles[last].TimestampMs,
				}, nil
			},
		},
		{
			Name:           NameSupportResistance,
			RequiredParams: []string{"Lookback"},
			MinDataPoints:  func(p Params) int { return p.Lookback },
			Calculate: func(candles []types.Candle, p Params) (Output, error) {
				res := SupportResistanceSeries(highsOf(candles), lowsOf(candles), p.Lookback)
				last := len(candles) - 1
				return Output{
					Value: res.Support[last],
					AdditionalData: map[string]float64{
						"resistance": res.Resistance[last],
					},
					TimestampMs: candles[last].TimestampMs,
				}, nil
			},
		},
	}
}
