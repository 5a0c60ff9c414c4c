// Package regime provides market regime detection using a lightweight HMM.
// Based on research: "HMM for regime detection, adjust strategy per regime"
// Detects the four buckets AnalyzeCandles reports: trending up, trending
// down, ranging, and volatile.
package regime

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegimeType is the market condition the detector assigns to a window of
// returns. It maps 1:1 onto the Classification buckets AnalyzeCandles
// reports; detector and annotator share one vocabulary rather than two.
type RegimeType string

const (
	RegimeTrendingUp   RegimeType = "trending_up"
	RegimeTrendingDown RegimeType = "trending_down"
	RegimeRanging      RegimeType = "ranging"
	RegimeVolatile     RegimeType = "volatile"
	RegimeUnknown      RegimeType = "unknown"
)

// RegimeState represents the current market regime
type RegimeState struct {
	Primary       RegimeType             `json:"primary"`
	Confidence    float64                `json:"confidence"` // 0-1
	Duration      time.Duration          `json:"duration"`   // Time in regime
	StartedAt     time.Time              `json:"started_at"`
	Volatility    float64                `json:"volatility"`     // Current annualized vol
	Trend         float64                `json:"trend"`          // Trend strength (-1 to 1)
	MeanReversion float64                `json:"mean_reversion"` // MR coefficient
	Probabilities map[RegimeType]float64 `json:"probabilities"`
}

// RegimeDetector uses HMM to detect market regimes
type RegimeDetector struct {
	logger *zap.Logger
	config *RegimeConfig

	mu           sync.RWMutex
	currentState *RegimeState
	stateHistory []*RegimeState

	// HMM parameters (learned from data)
	transitionMatrix [][]float64 // State transition probabilities
	emissionMeans    []float64   // Emission means per state
	emissionVars     []float64   // Emission variances per state

	// Data buffers
	returns    []float64
	volatility []float64
	volumes    []float64
	windowSize int
}

// RegimeConfig configures the regime detector
type RegimeConfig struct {
	WindowSize        int           // Lookback window for regime detection
	MinRegimeDuration time.Duration // Minimum time before regime change
	VolatilityWindow  int           // Window for volatility calculation
	TrendWindow       int           // Window for trend calculation
	NumStates         int           // Number of HMM states
	VolThreshold      float64       // Threshold for high/low vol classification
	TrendThreshold    float64       // Threshold for trending classification
	MRThreshold       float64       // Mean reversion threshold
	ConfidenceMin     float64       // Minimum confidence to report regime
}

// DefaultRegimeConfig returns sensible defaults
func DefaultRegimeConfig() *RegimeConfig {
	return &RegimeConfig{
		WindowSize:        100,
		MinRegimeDuration: 1 * time.Hour,
		VolatilityWindow:  20,
		TrendWindow:       50,
		NumStates:         4, // TrendingUp, TrendingDown, Ranging, Volatile
		VolThreshold:      0.25,
		TrendThreshold:    0.3,
		MRThreshold:       -0.1,
		ConfidenceMin:     0.6,
	}
}

// regimeTypes is the fixed state ordering the HMM's transition matrix and
// emission parameters index into.
var regimeTypes = []RegimeType{RegimeTrendingUp, RegimeTrendingDown, RegimeVolatile, RegimeRanging}

// NewRegimeDetector creates a new regime detector
func NewRegimeDetector(logger *zap.Logger, config *RegimeConfig) *RegimeDetector {
	if config == nil {
		config = DefaultRegimeConfig()
	}

	rd := &RegimeDetector{
		logger:       logger,
		config:       config,
		stateHistory: make([]*RegimeState, 0, 1000),
		returns:      make([]float64, 0, config.WindowSize*2),
		volatility:   make([]float64, 0, config.WindowSize*2),
		volumes:      make([]float64, 0, config.WindowSize*2),
		windowSize:   config.WindowSize,
	}

	rd.initializeHMM()

	return rd
}

// initializeHMM sets up initial HMM parameters
func (rd *RegimeDetector) initializeHMM() {
	n := rd.config.NumStates

	rd.transitionMatrix = make([][]float64, n)
	for i := 0; i < n; i++ {
		rd.transitionMatrix[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				rd.transitionMatrix[i][j] = 0.9 // High self-transition
			} else {
				rd.transitionMatrix[i][j] = 0.1 / float64(n-1)
			}
		}
	}

	// Emission means/vars follow regimeTypes order: TrendingUp, TrendingDown, Volatile, Ranging.
	rd.emissionMeans = []float64{0.001, -0.001, 0.0, 0.0}
	rd.emissionVars = []float64{0.0001, 0.0001, 0.0004, 0.00005}
}

// AddDataPoint records a price/volume observation. Returns are derived by
// the caller via AddReturn; this only tracks volume for future emission
// tuning.
func (rd *RegimeDetector) AddDataPoint(price, volume decimal.Decimal, timestamp time.Time) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	volFloat, _ := volume.Float64()
	rd.volumes = append(rd.volumes, volFloat)

	rd.trimBuffers()
}

// AddReturn adds a return observation
func (rd *RegimeDetector) AddReturn(ret float64) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	rd.returns = append(rd.returns, ret)

	if len(rd.returns) >= rd.config.VolatilityWindow {
		vol := rd.calculateVolatility(rd.returns[len(rd.returns)-rd.config.VolatilityWindow:])
		rd.volatility = append(rd.volatility, vol)
	}

	rd.trimBuffers()
	rd.updateRegime()
}

// trimBuffers keeps buffers at manageable size
func (rd *RegimeDetector) trimBuffers() {
	maxSize := rd.windowSize * 2

	if len(rd.returns) > maxSize {
		rd.returns = rd.returns[len(rd.returns)-rd.windowSize:]
	}
	if len(rd.volatility) > maxSize {
		rd.volatility = rd.volatility[len(rd.volatility)-rd.windowSize:]
	}
	if len(rd.volumes) > maxSize {
		rd.volumes = rd.volumes[len(rd.volumes)-rd.windowSize:]
	}
}

// updateRegime recalculates the current regime
func (rd *RegimeDetector) updateRegime() {
	if len(rd.returns) < rd.config.WindowSize {
		return
	}

	recentReturns := rd.returns[len(rd.returns)-rd.config.WindowSize:]

	trend := rd.calculateTrend(recentReturns)
	vol := rd.calculateVolatility(recentReturns) * math.Sqrt(252)
	mr := rd.calculateMeanReversion(recentReturns)
	probs := rd.calculateStateProbabilities(recentReturns)

	primary, confidence := rd.classifyRegime(trend, vol, mr, probs)

	newState := &RegimeState{
		Primary:       primary,
		Confidence:    confidence,
		Volatility:    vol,
		Trend:         trend,
		MeanReversion: mr,
		Probabilities: probs,
		StartedAt:     time.Now(),
	}

	if rd.currentState != nil && rd.currentState.Primary == primary {
		newState.StartedAt = rd.currentState.StartedAt
		newState.Duration = time.Since(rd.currentState.StartedAt)
	}

	rd.currentState = newState
	rd.stateHistory = append(rd.stateHistory, newState)

	if len(rd.stateHistory) > 1000 {
		rd.stateHistory = rd.stateHistory[500:]
	}
}

// calculateTrend calculates trend strength
func (rd *RegimeDetector) calculateTrend(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sum := 0.0
	for _, r := range returns {
		sum += r
	}

	vol := rd.calculateVolatility(returns)
	if vol == 0 {
		return 0
	}

	trend := sum / (vol * math.Sqrt(float64(len(returns))))

	if trend > 1 {
		trend = 1
	} else if trend < -1 {
		trend = -1
	}

	return trend
}

// calculateVolatility calculates standard deviation
func (rd *RegimeDetector) calculateVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance)
}

// calculateMeanReversion calculates autocorrelation (negative = mean reverting)
func (rd *RegimeDetector) calculateMeanReversion(returns []float64) float64 {
	if len(returns) < 3 {
		return 0
	}

	n := len(returns)

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	autocovariance := 0.0
	variance := 0.0

	for i := 1; i < n; i++ {
		autocovariance += (returns[i] - mean) * (returns[i-1] - mean)
		variance += (returns[i] - mean) * (returns[i] - mean)
	}

	if variance == 0 {
		return 0
	}

	return autocovariance / variance
}

// calculateStateProbabilities uses a forward algorithm over the four
// tracked states (trending up, trending down, volatile, ranging).
func (rd *RegimeDetector) calculateStateProbabilities(returns []float64) map[RegimeType]float64 {
	if len(returns) == 0 {
		return make(map[RegimeType]float64)
	}

	n := rd.config.NumStates

	alpha := make([]float64, n)
	for i := 0; i < n; i++ {
		alpha[i] = 1.0 / float64(n)
	}

	for _, ret := range returns {
		newAlpha := make([]float64, n)

		for j := 0; j < n; j++ {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += alpha[i] * rd.transitionMatrix[i][j]
			}

			emission := rd.gaussianPDF(ret, rd.emissionMeans[j], rd.emissionVars[j])
			newAlpha[j] = sum * emission
		}

		total := 0.0
		for _, a := range newAlpha {
			total += a
		}
		if total > 0 {
			for j := 0; j < n; j++ {
				newAlpha[j] /= total
			}
		}

		alpha = newAlpha
	}

	probs := make(map[RegimeType]float64)
	for i, rt := range regimeTypes {
		if i < len(alpha) {
			probs[rt] = alpha[i]
		}
	}

	return probs
}

// gaussianPDF calculates Gaussian probability density
func (rd *RegimeDetector) gaussianPDF(x, mean, variance float64) float64 {
	if variance <= 0 {
		variance = 0.0001
	}

	diff := x - mean
	exponent := -0.5 * diff * diff / variance
	coefficient := 1.0 / math.Sqrt(2*math.Pi*variance)

	return coefficient * math.Exp(exponent)
}

// classifyRegime determines the regime from trend/volatility/mean-reversion
// features, using the HMM's state probabilities as a baseline and
// overriding with rule-based thresholds when a feature gives a strong
// signal. When the HMM's top state probability is below 0.7, low volatility
// folds into RegimeRanging and high volatility into RegimeVolatile; a
// Volatile read is never replaced by the trend rule, since a volatile tape
// makes trend and mean-reversion estimates unreliable.
func (rd *RegimeDetector) classifyRegime(trend, vol, mr float64, probs map[RegimeType]float64) (RegimeType, float64) {
	maxProb := 0.0
	maxRegime := RegimeUnknown
	for regime, prob := range probs {
		if prob > maxProb {
			maxProb = prob
			maxRegime = regime
		}
	}

	if vol > rd.config.VolThreshold {
		if maxProb < 0.7 {
			maxRegime = RegimeVolatile
			maxProb = 0.5 + vol/2
		}
	} else if vol < rd.config.VolThreshold/2 {
		if maxProb < 0.7 {
			maxRegime = RegimeRanging
			maxProb = 0.5 + (rd.config.VolThreshold-vol)/rd.config.VolThreshold
		}
	}

	if math.Abs(trend) > rd.config.TrendThreshold && maxRegime != RegimeVolatile {
		if trend > 0 {
			maxRegime = RegimeTrendingUp
			maxProb = 0.5 + trend/2
		} else {
			maxRegime = RegimeTrendingDown
			maxProb = 0.5 + math.Abs(trend)/2
		}
	}

	if mr < rd.config.MRThreshold && maxProb < 0.6 {
		maxRegime = RegimeRanging
		maxProb = 0.5 + math.Abs(mr)
	}

	if maxProb > 1 {
		maxProb = 1
	}

	return maxRegime, maxProb
}

// GetCurrentRegime returns the current regime state
func (rd *RegimeDetector) GetCurrentRegime() *RegimeState {
	rd.mu.RLock()
	defer rd.mu.RUnlock()

	if rd.currentState == nil {
		return &RegimeState{
			Primary:    RegimeUnknown,
			Confidence: 0,
		}
	}

	state := *rd.currentState
	state.Duration = time.Since(state.StartedAt)

	return &state
}

// IsRegimeTransition checks if we're in a regime transition
func (rd *RegimeDetector) IsRegimeTransition() bool {
	rd.mu.RLock()
	defer rd.mu.RUnlock()

	if rd.currentState == nil || rd.currentState.Duration < rd.config.MinRegimeDuration {
		return true
	}

	return rd.currentState.Confidence < rd.config.ConfidenceMin
}
