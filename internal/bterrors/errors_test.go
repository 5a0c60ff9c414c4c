package bterrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatsWithAndWithoutCause(t *testing.T) {
	plain := New(KindNoData, "no candles in range")
	assert.Equal(t, "NO_DATA: no candles in range", plain.Error())

	wrapped := Wrap(KindConfigInvalid, "bad timeframe", errors.New("unknown unit"))
	assert.Equal(t, "CONFIG_INVALID: bad timeframe: unknown unit", wrapped.Error())
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("underlying")
	be := Wrap(KindOrderRejected, "rejected", cause)

	assert.Equal(t, cause, errors.Unwrap(be))
}

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	be := New(KindCircuitBreakerTripped, "tripped")
	wrapped := fmt.Errorf("context: %w", be)

	assert.True(t, Is(wrapped, KindCircuitBreakerTripped))
	assert.False(t, Is(wrapped, KindNoData))
}

func TestIsFalseForNonBterrorsError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), KindNoData))
}
