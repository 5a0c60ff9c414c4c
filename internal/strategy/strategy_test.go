package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func TestRegistryCreatesAllThreeKinds(t *testing.T) {
	r := NewRegistry()
	for _, kind := range []types.StrategyKind{
		types.StrategyKindPriceAction,
		types.StrategyKindTrendFollowing,
		types.StrategyKindEmaGapAtr,
	} {
		ev, err := r.Create(kind)
		require.NoError(t, err)
		assert.NotNil(t, ev)
	}
}

func TestRegistryRejectsUnknownKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(types.StrategyKind("NOT_A_KIND"))
	assert.Error(t, err)
}

func TestRegistryListReturnsThreeEntries(t *testing.T) {
	r := NewRegistry()
	assert.Len(t, r.List(), 3)
}
