package frame

import (
	"fmt"

	"github.com/farcloser/mediacore/internal/bits"
)

// Pred is the subframe prediction method, RFC 9639 §9.2.1.
type Pred uint8

const (
	PredConstant Pred = iota
	PredVerbatim
	PredFixed
	PredLPC
)

// Subframe holds one channel's decoded samples for a frame, plus the
// prediction metadata used to reconstruct them.
type Subframe struct {
	Pred       Pred
	Order      int // FIXED: 0..4: LPC: 1..32; unused for CONSTANT/VERBATIM.
	WastedBits uint8
	// Coeffs and Shift are populated for PredLPC only.
	Coeffs  []int32
	Shift   int8
	Samples []int32
}

// parseSubframe decodes one subframe of blockSize samples at the given bit
// depth. bitsPerSample already reflects the +1 side-channel adjustment.
func parseSubframe(br *bits.Reader, blockSize int, bitsPerSample uint8) (*Subframe, error) {
	header, err := br.ReadBits(8)
	if err != nil {
		return nil, fmt.Errorf("frame.parseSubframe: header: %w", err)
	}
	if header&0x80 != 0 {
		return nil, fmt.Errorf("frame.parseSubframe: reserved zero-bit set")
	}
	typeCode := uint8(header>>1) & 0x3F
	wastedFlag := header&0x1 != 0

	sub := &Subframe{}
	if wastedFlag {
		n, err := br.ReadUnary()
		if err != nil {
			return nil, fmt.Errorf("frame.parseSubframe: wasted bits: %w", err)
		}
		sub.WastedBits = uint8(n + 1)
	}

	bps := int(bitsPerSample) - int(sub.WastedBits)
	if bps <= 0 {
		return nil, fmt.Errorf("frame.parseSubframe: wasted bits %d >= bit depth %d", sub.WastedBits, bitsPerSample)
	}

	switch {
	case typeCode == 0x00:
		sub.Pred = PredConstant
		if err := decodeConstant(br, sub, blockSize, bps); err != nil {
			return nil, err
		}
	case typeCode == 0x01:
		sub.Pred = PredVerbatim
		if err := decodeVerbatim(br, sub, blockSize, bps); err != nil {
			return nil, err
		}
	case typeCode >= 0x08 && typeCode <= 0x0C:
		sub.Pred = PredFixed
		sub.Order = int(typeCode - 0x08)
		if err := decodeFixed(br, sub, blockSize, bps); err != nil {
			return nil, err
		}
	case typeCode >= 0x20:
		sub.Pred = PredLPC
		sub.Order = int(typeCode-0x20) + 1
		if err := decodeLPC(br, sub, blockSize, bps); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("frame.parseSubframe: reserved subframe type 0x%02x", typeCode)
	}

	if sub.WastedBits > 0 {
		for i, s := range sub.Samples {
			sub.Samples[i] = s << sub.WastedBits
		}
	}

	return sub, nil
}

func decodeConstant(br *bits.Reader, sub *Subframe, blockSize, bps int) error {
	v, err := br.ReadBitsSigned(uint(bps))
	if err != nil {
		return fmt.Errorf("frame.decodeConstant: %w", err)
	}
	sub.Samples = make([]int32, blockSize)
	for i := range sub.Samples {
		sub.Samples[i] = v
	}
	return nil
}

func decodeVerbatim(br *bits.Reader, sub *Subframe, blockSize, bps int) error {
	sub.Samples = make([]int32, blockSize)
	for i := range sub.Samples {
		v, err := br.ReadBitsSigned(uint(bps))
		if err != nil {
			return fmt.Errorf("frame.decodeVerbatim: sample %d: %w", i, err)
		}
		sub.Samples[i] = v
	}
	return nil
}

// fixedCoeffs are the prediction coefficients for FIXED predictors of
// order 0..4, RFC 9639 §9.2.3.
var fixedCoeffs = [5][]int64{
	{},
	{1},
	{2, -1},
	{3, -3, 1},
	{4, -6, 4, -1},
}

func decodeFixed(br *bits.Reader, sub *Subframe, blockSize, bps int) error {
	order := sub.Order
	samples := make([]int32, blockSize)
	for i := 0; i < order; i++ {
		v, err := br.ReadBitsSigned(uint(bps))
		if err != nil {
			return fmt.Errorf("frame.decodeFixed: warm-up %d: %w", i, err)
		}
		samples[i] = v
	}

	residual, err := decodeResidual(br, blockSize, order)
	if err != nil {
		return fmt.Errorf("frame.decodeFixed: %w", err)
	}

	coeffs := fixedCoeffs[order]
	for i := order; i < blockSize; i++ {
		var pred int64
		for j, c := range coeffs {
			pred += c * int64(samples[i-1-j])
		}
		samples[i] = int32(pred) + residual[i-order]
	}

	sub.Samples = samples
	return nil
}

func decodeLPC(br *bits.Reader, sub *Subframe, blockSize, bps int) error {
	order := sub.Order
	samples := make([]int32, blockSize)
	for i := 0; i < order; i++ {
		v, err := br.ReadBitsSigned(uint(bps))
		if err != nil {
			return fmt.Errorf("frame.decodeLPC: warm-up %d: %w", i, err)
		}
		samples[i] = v
	}

	precision, err := br.ReadBits(4)
	if err != nil {
		return fmt.Errorf("frame.decodeLPC: precision: %w", err)
	}
	if precision == 0xF {
		return fmt.Errorf("frame.decodeLPC: reserved precision code")
	}
	coeffPrecision := int(precision) + 1

	shift, err := br.ReadBitsSigned(5)
	if err != nil {
		return fmt.Errorf("frame.decodeLPC: shift: %w", err)
	}
	if shift < 0 {
		return fmt.Errorf("frame.decodeLPC: negative shift is reserved")
	}
	sub.Shift = int8(shift)

	coeffs := make([]int32, order)
	for i := 0; i < order; i++ {
		c, err := br.ReadBitsSigned(uint(coeffPrecision))
		if err != nil {
			return fmt.Errorf("frame.decodeLPC: coeff %d: %w", i, err)
		}
		coeffs[i] = c
	}
	sub.Coeffs = coeffs

	residual, err := decodeResidual(br, blockSize, order)
	if err != nil {
		return fmt.Errorf("frame.decodeLPC: %w", err)
	}

	for i := order; i < blockSize; i++ {
		var pred int64
		for j, c := range coeffs {
			pred += int64(c) * int64(samples[i-1-j])
		}
		samples[i] = int32(pred>>uint(sub.Shift)) + residual[i-order]
	}

	sub.Samples = samples
	return nil
}
