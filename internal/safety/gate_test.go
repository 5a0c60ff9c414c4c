package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func baseConfig() *types.StrategyConfig {
	return &types.StrategyConfig{
		Kind:      types.StrategyKindEmaGapAtr,
		Symbol:    "BTCUSDT",
		Timeframe: types.Timeframe1h,
		Capital:   10000,
		MaxLossPct: 0.1,
		MaxLots:   1,
		EmaGapAtr: &types.EmaGapAtrParams{
			EmaFastPeriod: 9,
			EmaSlowPeriod: 21,
			AtrPeriod:     14,
			RsiEntryLong:  55,
			RsiEntryShort: 45,
		},
	}
}

func TestRunSafetyChecksBlocksZeroMaxLossPct(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxLossPct = 0
	start := time.Now().Add(-30 * 24 * time.Hour)
	end := time.Now().Add(-1 * time.Hour)
	checks := RunSafetyChecks(cfg, start, end, time.Now())
	assert.False(t, Proceed(checks))
}

func TestRunSafetyChecksBlocksMaxLotsAbove15(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxLots = 16
	start := time.Now().Add(-30 * 24 * time.Hour)
	end := time.Now().Add(-1 * time.Hour)
	checks := RunSafetyChecks(cfg, start, end, time.Now())
	assert.False(t, Proceed(checks))
}

func TestRunSafetyChecksBlocksFutureDates(t *testing.T) {
	cfg := baseConfig()
	now := time.Now()
	start := now.Add(24 * time.Hour)
	end := now.Add(48 * time.Hour)
	checks := RunSafetyChecks(cfg, start, end, now)
	assert.False(t, Proceed(checks))
}

func TestValidateConfigAcceptsSaneDefaults(t *testing.T) {
	cfg := baseConfig()
	start := time.Now().Add(-60 * 24 * time.Hour)
	end := time.Now().Add(-1 * time.Hour)
	issues := ValidateConfig(cfg, start, end)
	assert.False(t, HasErrors(issues))
	checks := RunSafetyChecks(cfg, start, end, time.Now())
	assert.True(t, Proceed(checks))
}

func TestValidateConfigRejectsFastNotLessThanSlow(t *testing.T) {
	cfg := baseConfig()
	cfg.EmaGapAtr.EmaFastPeriod = 30
	cfg.EmaGapAtr.EmaSlowPeriod = 20
	start := time.Now().Add(-60 * 24 * time.Hour)
	end := time.Now().Add(-1 * time.Hour)
	issues := ValidateConfig(cfg, start, end)
	assert.True(t, HasErrors(issues))
}
