package walkforward

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func TestGenerateWindowsSplitsEightyTwentyInOutSample(t *testing.T) {
	a := &Analyzer{}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 60)

	windows := a.generateWindows(start, end, 30, 30)

	require.Len(t, windows, 2)
	w := windows[0]
	assert.Equal(t, start, w.InSampleStart)
	assert.Equal(t, start.Add(24*time.Hour*24), w.InSampleEnd)
	assert.Equal(t, w.InSampleEnd, w.OutSampleStart)
	assert.Equal(t, start.Add(30*24*time.Hour), w.OutSampleEnd)
}

func TestGenerateWindowsStepsAcrossRange(t *testing.T) {
	a := &Analyzer{}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 90)

	windows := a.generateWindows(start, end, 30, 15)

	assert.Greater(t, len(windows), 1)
	for i := 1; i < len(windows); i++ {
		assert.True(t, windows[i].InSampleStart.After(windows[i-1].InSampleStart))
	}
}

func TestGenerateWindowsEmptyWhenRangeShorterThanWindow(t *testing.T) {
	a := &Analyzer{}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 10)

	windows := a.generateWindows(start, end, 30, 7)

	assert.Empty(t, windows)
}

func TestCalculateRobustnessClampsAboveTwo(t *testing.T) {
	a := &Analyzer{}
	windows := []types.WalkForwardWindow{
		{
			InSampleMetrics:  &types.PerformanceMetrics{TotalReturn: 0.01},
			OutSampleMetrics: &types.PerformanceMetrics{TotalReturn: 0.10},
		},
	}

	robustness := a.calculateRobustness(windows)

	assert.Equal(t, 2.0, robustness)
}

func TestCalculateRobustnessClampsBelowZero(t *testing.T) {
	a := &Analyzer{}
	windows := []types.WalkForwardWindow{
		{
			InSampleMetrics:  &types.PerformanceMetrics{TotalReturn: 0.10},
			OutSampleMetrics: &types.PerformanceMetrics{TotalReturn: -0.05},
		},
	}

	robustness := a.calculateRobustness(windows)

	assert.Equal(t, 0.0, robustness)
}

func TestCalculateRobustnessZeroWithNoValidWindows(t *testing.T) {
	a := &Analyzer{}

	assert.Equal(t, 0.0, a.calculateRobustness(nil))
	assert.Equal(t, 0.0, a.calculateRobustness([]types.WalkForwardWindow{{}}))
}

func TestRunReturnsNilWhenDisabled(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil)

	result, err := a.Run(types.StrategyConfig{}, time.Now(), time.Now(), types.WalkForwardConfig{Enabled: false})

	require.NoError(t, err)
	assert.Nil(t, result)
}
