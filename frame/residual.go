package frame

import (
	"fmt"

	"github.com/farcloser/mediacore/internal/bits"
)

// escapeRiceParam marks a partition coded "raw" (fixed-width binary) instead
// of Rice, RFC 9639 §9.2.6. The escape code is all-ones over the parameter's
// own bit width: 0xF for a 4-bit parameter (coding method 0), 0x1F for a
// 5-bit parameter (coding method 1) — never a single constant, since a 4-bit
// parameter can never equal 0x1F.
func escapeRiceParam(paramBits uint) uint32 {
	if paramBits == 4 {
		return 0xF
	}
	return 0x1F
}

// decodeResidual decodes a RESIDUAL block of blockSize-predOrder values
// (RFC 9639 §9.2.6), partitioned into 2^partitionOrder equal partitions,
// the first partition shortened by predOrder values since those samples
// were carried verbatim as warm-up samples.
func decodeResidual(br *bits.Reader, blockSize, predOrder int) ([]int32, error) {
	codingMethod, err := br.ReadBits(2)
	if err != nil {
		return nil, fmt.Errorf("frame.decodeResidual: coding method: %w", err)
	}

	var paramBits uint
	switch codingMethod {
	case 0:
		paramBits = 4
	case 1:
		paramBits = 5
	default:
		return nil, fmt.Errorf("frame.decodeResidual: reserved residual coding method %d", codingMethod)
	}

	partitionOrder, err := br.ReadBits(4)
	if err != nil {
		return nil, fmt.Errorf("frame.decodeResidual: partition order: %w", err)
	}
	numPartitions := 1 << partitionOrder
	if blockSize%numPartitions != 0 {
		return nil, fmt.Errorf("frame.decodeResidual: block size %d not divisible by %d partitions", blockSize, numPartitions)
	}
	partitionLen := blockSize / numPartitions
	if partitionLen <= predOrder {
		return nil, fmt.Errorf("frame.decodeResidual: partition order %d too high for predictor order %d", partitionOrder, predOrder)
	}

	residual := make([]int32, blockSize-predOrder)
	pos := 0
	for p := 0; p < numPartitions; p++ {
		n := partitionLen
		if p == 0 {
			n -= predOrder
		}

		param, err := br.ReadBits(paramBits)
		if err != nil {
			return nil, fmt.Errorf("frame.decodeResidual: partition %d parameter: %w", p, err)
		}

		if param == escapeRiceParam(paramBits) {
			rawWidth, err := br.ReadBits(5)
			if err != nil {
				return nil, fmt.Errorf("frame.decodeResidual: partition %d raw width: %w", p, err)
			}
			if rawWidth == 0 {
				// Every residual in this partition is exactly 0.
				pos += n
				continue
			}
			for i := 0; i < n; i++ {
				v, err := br.ReadBitsSigned(uint(rawWidth))
				if err != nil {
					return nil, fmt.Errorf("frame.decodeResidual: partition %d raw value %d: %w", p, i, err)
				}
				residual[pos] = v
				pos++
			}
			continue
		}

		for i := 0; i < n; i++ {
			v, err := br.ReadRice(uint(param))
			if err != nil {
				return nil, fmt.Errorf("frame.decodeResidual: partition %d rice value %d: %w", p, i, err)
			}
			residual[pos] = v
			pos++
		}
	}

	return residual, nil
}
