//go:build lpc_gonum_check

package frame

import "gonum.org/v1/gonum/mat"

// VerifyLPCPrediction recomputes an LPC subframe's prediction in
// floating point via gonum's mat package and returns the largest
// absolute difference against the integer decode's predicted values.
// Production decode (decodeLPC in subframe.go) always uses pure integer
// arithmetic per RFC 9639's mandate; this function exists only behind
// the lpc_gonum_check build tag, for TestLPCAgainstGonum to cross-check
// that integer decode against a higher-precision reference.
func VerifyLPCPrediction(coeffs []int32, shift int8, samples []int32, order int) float64 {
	n := len(samples)
	if n <= order {
		return 0
	}

	coeffVec := mat.NewVecDense(order, nil)
	for i, c := range coeffs {
		coeffVec.SetVec(i, float64(c))
	}

	var maxAbsErr float64
	history := mat.NewVecDense(order, nil)
	for i := order; i < n; i++ {
		for j := 0; j < order; j++ {
			history.SetVec(j, float64(samples[i-1-j]))
		}
		predFloat := mat.Dot(coeffVec, history) / float64(int64(1)<<uint(shift))

		var predInt int64
		for j, c := range coeffs {
			predInt += int64(c) * int64(samples[i-1-j])
		}
		predInt >>= uint(shift)

		diff := predFloat - float64(predInt)
		if diff < 0 {
			diff = -diff
		}
		if diff > maxAbsErr {
			maxAbsErr = diff
		}
	}
	return maxAbsErr
}
