package utils

import (
	"math"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat64ToDecIsExactForShortDecimals(t *testing.T) {
	dec, err := Float64ToDec(3.8)
	require.NoError(t, err)
	assert.True(t, dec.Equal(sdkmath.LegacyMustNewDecFromStr("3.8")), "got %s", dec)

	dec, err = Float64ToDec(-0.7)
	require.NoError(t, err)
	assert.True(t, dec.Equal(sdkmath.LegacyMustNewDecFromStr("-0.7")), "got %s", dec)
}

func TestFloat64ToDecTruncatesLongFractions(t *testing.T) {
	dec, err := Float64ToDec(1e-20)
	require.NoError(t, err)
	assert.True(t, dec.IsZero())
}

func TestFloat64ToDecRejectsNonFinite(t *testing.T) {
	_, err := Float64ToDec(math.NaN())
	assert.ErrorIs(t, err, ErrNotFinite)

	_, err = Float64ToDec(math.Inf(1))
	assert.ErrorIs(t, err, ErrNotFinite)
}

func TestDecRoundTrip(t *testing.T) {
	f, err := DecToFloat64(sdkmath.LegacyMustNewDecFromStr("23.85"))
	require.NoError(t, err)
	assert.InDelta(t, 23.85, f, 1e-12)
}

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite(1, 2, 3))
	assert.False(t, IsFinite(1, math.NaN()))
}
