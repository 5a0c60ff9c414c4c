package viability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func strongMetrics() *types.PerformanceMetrics {
	return &types.PerformanceMetrics{
		SharpeRatio:      1.2,
		SortinoRatio:     1.8,
		CalmarRatio:      1.5,
		MaxDrawdown:      0.08,
		ProfitFactor:     2.2,
		WinRate:          0.55,
		TotalTrades:      80,
		Expectancy:       0.01,
		AnnualizedReturn: 0.25,
	}
}

func weakMetrics() *types.PerformanceMetrics {
	return &types.PerformanceMetrics{
		SharpeRatio:  0.1,
		SortinoRatio: 0.1,
		CalmarRatio:  0.1,
		MaxDrawdown:  0.45,
		ProfitFactor: 0.8,
		WinRate:      0.2,
		TotalTrades:  5,
		Expectancy:   -0.02,
	}
}

func TestCheckGradesStrongMetricsAsViable(t *testing.T) {
	checker := NewChecker(DefaultThresholds())
	report := checker.Check(strongMetrics(), nil, nil)

	require.NotNil(t, report)
	assert.True(t, report.IsViable)
	assert.GreaterOrEqual(t, report.Score, 60)
}

func TestCheckFlagsWeakMetricsAsNotViable(t *testing.T) {
	checker := NewChecker(DefaultThresholds())
	report := checker.Check(weakMetrics(), nil, nil)

	assert.False(t, report.IsViable)
	assert.NotEmpty(t, report.Issues)
}

func TestCheckToleratesNilRiskAndWalkForward(t *testing.T) {
	checker := NewChecker(DefaultThresholds())
	assert.NotPanics(t, func() {
		checker.Check(strongMetrics(), nil, nil)
	})
}

func TestAggressiveThresholdsArePermissiveThanDefault(t *testing.T) {
	agg := AggressiveThresholds()
	def := DefaultThresholds()
	assert.Less(t, agg.MinSharpeRatio, def.MinSharpeRatio)
	assert.Greater(t, agg.MaxDrawdown, def.MaxDrawdown)
}
