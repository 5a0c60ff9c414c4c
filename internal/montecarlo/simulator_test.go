package montecarlo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func sampleSequence() *TradeSequence {
	return &TradeSequence{
		Returns: []float64{0.02, -0.01, 0.03, -0.015, 0.01, 0.025, -0.02, 0.015},
	}
}

func seededSimulator() *Simulator {
	return NewSimulator(zap.NewNop(), &SimulatorConfig{
		NumSimulations:   200,
		Seed:             42,
		ConfidenceLevels: []float64{0.05, 0.50, 0.95},
		ParallelWorkers:  4,
		BootstrapBlocks:  10,
		AllowReplacement: true,
	})
}

func TestTradeSequenceFromTradesComputesReturnAsPnlOverNotional(t *testing.T) {
	trades := []types.CompletedTrade{
		{EntryPrice: 100, Quantity: 2, PnL: 20, ExitTimeMs: 1000, Symbol: "BTCUSDT"},
		{EntryPrice: 50, Quantity: 1, PnL: -5, ExitTimeMs: 2000, Symbol: "BTCUSDT"},
	}

	seq := TradeSequenceFromTrades(trades)

	require.Len(t, seq.Returns, 2)
	assert.InDelta(t, 0.1, seq.Returns[0], 1e-9)
	assert.InDelta(t, -0.1, seq.Returns[1], 1e-9)
}

func TestTradeSequenceFromTradesGuardsZeroNotional(t *testing.T) {
	trades := []types.CompletedTrade{
		{EntryPrice: 0, Quantity: 0, PnL: 5, ExitTimeMs: 1000, Symbol: "BTCUSDT"},
	}

	seq := TradeSequenceFromTrades(trades)

	require.Len(t, seq.Returns, 1)
	assert.Equal(t, 0.0, seq.Returns[0])
}

func TestRunSimulationProducesDistributionsForEveryMetric(t *testing.T) {
	sim := seededSimulator()
	result := sim.RunSimulation(sampleSequence(), 10000)

	require.NotNil(t, result)
	assert.Equal(t, 200, result.NumSimulations)
	require.NotNil(t, result.FinalEquity)
	require.NotNil(t, result.MaxDrawdown)
	require.NotNil(t, result.SharpeRatio)
	require.NotNil(t, result.WinRate)
	require.NotNil(t, result.ProfitFactor)
	require.NotNil(t, result.CAGR)

	assert.GreaterOrEqual(t, result.MaxDrawdown.Mean, 0.0)
	assert.GreaterOrEqual(t, result.WinRate.Mean, 0.0)
	assert.LessOrEqual(t, result.WinRate.Mean, 1.0)
}

func TestRunSimulationProbabilitiesAreFractions(t *testing.T) {
	sim := seededSimulator()
	result := sim.RunSimulation(sampleSequence(), 10000)

	assert.GreaterOrEqual(t, result.ProbabilityOfRuin, 0.0)
	assert.LessOrEqual(t, result.ProbabilityOfRuin, 1.0)
	assert.GreaterOrEqual(t, result.ProbabilityOfTarget, 0.0)
	assert.LessOrEqual(t, result.ProbabilityOfTarget, 1.0)
}

func TestRunSimulationWorstCaseNeverBeatsBestCase(t *testing.T) {
	sim := seededSimulator()
	result := sim.RunSimulation(sampleSequence(), 10000)

	require.NotNil(t, result.WorstCase)
	require.NotNil(t, result.BestCase)
	assert.LessOrEqual(t, result.WorstCase.TotalReturn, result.BestCase.TotalReturn)
}

func TestCalculateEquityStatsWithNoReturnsYieldsFlatCurve(t *testing.T) {
	sim := seededSimulator()
	stats := sim.calculateEquityStats(nil, 5000)

	assert.Equal(t, 5000.0, stats.FinalEquity)
	assert.Equal(t, 0, stats.NumTrades)
}

func TestCalculateDistributionOnSingleValueHasZeroSpread(t *testing.T) {
	sim := seededSimulator()
	dist := sim.calculateDistribution([]float64{1.5})

	assert.Equal(t, 1.5, dist.Mean)
	assert.Equal(t, 0.0, dist.StdDev)
	assert.Equal(t, 1.5, dist.Min)
	assert.Equal(t, 1.5, dist.Max)
}
