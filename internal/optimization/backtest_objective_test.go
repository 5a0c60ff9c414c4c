package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/internal/orchestrator"
	"github.com/atlas-quant/backtestengine/internal/strategy"
	"github.com/atlas-quant/backtestengine/pkg/types"
)

// alwaysLongEvaluator enters long on the second candle (index 1) and
// exits on the last candle of the series, so every trial in a test run
// produces exactly one completed trade regardless of the EmaGapAtr values
// the optimizer is searching over.
type alwaysLongEvaluator struct{}

// MinDataPoints returns a negative value so the orchestrator's
// MinDataPoints+10 warm-up buffer resolves to 1, matching this fixture's
// short 5-candle series.
func (alwaysLongEvaluator) MinDataPoints(cfg *types.StrategyConfig) int { return -9 }

func (alwaysLongEvaluator) Evaluate(cfg *types.StrategyConfig, candles []types.Candle, ctx types.EvaluationContext) (types.EvaluationResult, error) {
	idx := len(candles) - 1
	result := types.EvaluationResult{}
	if idx == 1 {
		result.Entries = []types.EntrySignal{{Direction: types.DirectionLong, Price: candles[idx].Close, Symbol: "BTCUSDT", Timeframe: types.Timeframe1h}}
	}
	if idx == len(candlesFixture)-1 {
		result.Exits = []types.ExitSignal{{Direction: types.ExitDirectionLong, Price: candles[idx].Close, Symbol: "BTCUSDT", Timeframe: types.Timeframe1h}}
	}
	return result, nil
}

var candlesFixture = []types.Candle{
	{TimestampMs: 0, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10, Timeframe: types.Timeframe1h},
	{TimestampMs: 1, Open: 100, High: 102, Low: 99, Close: 101, Volume: 10, Timeframe: types.Timeframe1h},
	{TimestampMs: 2, Open: 101, High: 103, Low: 100, Close: 102, Volume: 10, Timeframe: types.Timeframe1h},
	{TimestampMs: 3, Open: 102, High: 104, Low: 101, Close: 103, Volume: 10, Timeframe: types.Timeframe1h},
	{TimestampMs: 4, Open: 103, High: 106, Low: 102, Close: 105, Volume: 10, Timeframe: types.Timeframe1h},
}

func testOrchestrator() *orchestrator.Orchestrator {
	reg := strategy.NewRegistry()
	reg.Register(types.StrategyKindEmaGapAtr, func() strategy.Evaluator { return alwaysLongEvaluator{} })
	return orchestrator.New(zap.NewNop(), reg)
}

func baseConfig() types.StrategyConfig {
	return types.StrategyConfig{
		Kind:         types.StrategyKindEmaGapAtr,
		Symbol:       "BTCUSDT",
		Timeframe:    types.Timeframe1h,
		Capital:      1000,
		MaxLossPct:   0.5,
		MaxLots:      1,
		PositionSize: 1,
		ExitMode:     types.ExitModeFIFO,
		EmaGapAtr: &types.EmaGapAtrParams{
			EmaFastPeriod: 9, EmaSlowPeriod: 21, AtrPeriod: 14,
			AtrMultiplierEntry: 1.5, AtrMultiplierUnwind: 1.0,
			RsiPeriod: 14, RsiEntryLong: 55, RsiEntryShort: 45,
		},
	}
}

func TestNewEmaGapAtrObjectiveRejectsConfigWithoutParams(t *testing.T) {
	cfg := baseConfig()
	cfg.EmaGapAtr = nil

	_, err := NewEmaGapAtrObjective(testOrchestrator(), cfg, candlesFixture)

	require.Error(t, err)
}

func TestNewEmaGapAtrObjectiveScoresTrialAsSharpe(t *testing.T) {
	objective, err := NewEmaGapAtrObjective(testOrchestrator(), baseConfig(), candlesFixture)
	require.NoError(t, err)

	score, err := objective(ParamSet{
		"emaFastPeriod":      9,
		"emaSlowPeriod":      21,
		"atrMultiplierEntry": 1.5,
	})

	require.NoError(t, err)
	assert.False(t, math.IsNaN(score))
	assert.False(t, math.IsInf(score, 0))
}

func TestNewEmaGapAtrObjectiveRejectsInvertedPeriods(t *testing.T) {
	objective, err := NewEmaGapAtrObjective(testOrchestrator(), baseConfig(), candlesFixture)
	require.NoError(t, err)

	score, err := objective(ParamSet{
		"emaFastPeriod": 30,
		"emaSlowPeriod": 10,
	})

	require.NoError(t, err)
	assert.Equal(t, -1.0, score)
}

func TestApplyParamSetLeavesUnsetFieldsAtBase(t *testing.T) {
	cfg := applyParamSet(baseConfig(), ParamSet{"emaFastPeriod": 5})

	assert.Equal(t, 5, cfg.EmaGapAtr.EmaFastPeriod)
	assert.Equal(t, 21, cfg.EmaGapAtr.EmaSlowPeriod)
	assert.Equal(t, 1.5, cfg.EmaGapAtr.AtrMultiplierEntry)
}
