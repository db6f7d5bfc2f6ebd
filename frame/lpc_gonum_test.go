//go:build lpc_gonum_check

package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLPCAgainstGonum(t *testing.T) {
	// A small order-2 predictor with a handful of warm-up samples; the
	// float recomputation should track the integer decode within a
	// fraction of an LSB (the two diverge only in rounding direction of
	// the final shift, never in the underlying coefficients).
	coeffs := []int32{120, -60}
	shift := int8(6)
	samples := []int32{100, 150, 0, 0, 0, 0}

	for i := 2; i < len(samples); i++ {
		var pred int64
		for j, c := range coeffs {
			pred += int64(c) * int64(samples[i-1-j])
		}
		samples[i] = int32(pred >> uint(shift))
	}

	maxErr := VerifyLPCPrediction(coeffs, shift, samples, 2)
	require.Less(t, maxErr, 1.5)
}
