/*
This file contains common utility functions for moving between float64 values at the
API boundary and the fixed-point decimals used for money and gas arithmetic.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// decimalPlaces is the fixed precision of sdkmath.LegacyDec.
const decimalPlaces = 18

// Float64ToDec converts a float64 to a LegacyDec using its shortest decimal
// representation, so 3.8 becomes exactly 3.8 rather than 3.7999...
func Float64ToDec(value float64) (sdkmath.LegacyDec, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %f", ErrNotFinite, value)
	}
	if value == 0 {
		return sdkmath.LegacyZeroDec(), nil
	}

	str := strconv.FormatFloat(value, 'f', -1, 64)
	if dot := strings.IndexByte(str, '.'); dot >= 0 && len(str)-dot-1 > decimalPlaces {
		str = strconv.FormatFloat(value, 'f', decimalPlaces, 64)
	}

	dec, err := sdkmath.LegacyNewDecFromStr(str)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: failed to create decimal from %q: %w", ErrConversionFailed, str, err)
	}
	return dec, nil
}

// MustFloat64ToDec is Float64ToDec for values already checked to be finite.
// Non-finite input yields zero.
func MustFloat64ToDec(value float64) sdkmath.LegacyDec {
	dec, err := Float64ToDec(value)
	if err != nil {
		return sdkmath.LegacyZeroDec()
	}
	return dec
}

// DecToFloat64 converts a LegacyDec back to float64 for JSON output.
func DecToFloat64(dec sdkmath.LegacyDec) (float64, error) {
	if dec.IsNil() {
		return 0, fmt.Errorf("%w: decimal is nil", ErrConversionFailed)
	}
	f, err := dec.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
}

// MustDecToFloat64 is DecToFloat64 for decimals produced by this package.
func MustDecToFloat64(dec sdkmath.LegacyDec) float64 {
	f, err := DecToFloat64(dec)
	if err != nil {
		return 0
	}
	return f
}

// IsFinite reports whether every value is a finite number.
func IsFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
