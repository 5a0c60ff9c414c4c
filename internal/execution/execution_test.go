package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func TestMockProviderFillsAtRequestedPrice(t *testing.T) {
	p := NewMockProvider(zap.NewNop())
	ack, err := p.PlaceBuyOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Direction: types.DirectionLong, Price: 100, Quantity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, ack.FillPrice)
	assert.Equal(t, 2.0, ack.Quantity)

	positions, err := p.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTCUSDT", positions[0].Symbol)
}

func TestMockProviderRejectsInvalidOrder(t *testing.T) {
	p := NewMockProvider(zap.NewNop())
	_, err := p.PlaceBuyOrder(context.Background(), OrderRequest{Symbol: "BTCUSDT", Price: 0, Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestMockProviderBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	p := NewMockProvider(zap.NewNop())
	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = p.PlaceBuyOrder(context.Background(), OrderRequest{Symbol: "BTCUSDT", Price: 0, Quantity: 1})
	}
	assert.ErrorIs(t, lastErr, ErrInvalidOrder)

	_, err := p.PlaceBuyOrder(context.Background(), OrderRequest{Symbol: "BTCUSDT", Price: 100, Quantity: 1})
	assert.Error(t, err, "breaker should be open after 5 consecutive failures, rejecting even a valid order")
}
