// Package zfpblock implements the per-subband block codec of spec.md
// §4.5: a small fixed-size block (up to 4 samples per active axis) is
// quantized relative to its own exponent, decorrelated with a reversible
// integer lifting transform, shuffled into negabinary form, and coded one
// bit-plane at a time so decoding can stop at any plane and still yield a
// usable (if coarser) reconstruction.
//
// Grounded on original_source/Source/Core/zfp/ (the embedded ZFP codec
// idx2 vendors): the per-axis lifting butterfly and the negabinary
// sign/magnitude shuffle follow the shape of zfp's fwd_lift/inv_lift and
// fwd_order int2uint mapping, simplified to a plain per-bit-plane pass
// (no significance group-testing) since spec.md does not require matching
// zfp's exact compression ratio, only its progressive-decode contract.
package zfpblock

import (
	"math"

	"github.com/hoang-dt/idx2/internal/bitstream"
	"github.com/hoang-dt/idx2/internal/errs"
	"github.com/hoang-dt/idx2/internal/v3"
)

// MaxBlockLen is the largest number of samples one block can hold (4x4x4).
const MaxBlockLen = 64

// EBias is an exponent bias of 1024. The stored exponents do not use it:
// internal/channel writes each block exponent as a zigzag varbyte.
const EBias = 1024

// EMax returns the base-2 exponent of the largest-magnitude value in vals,
// and whether the block is entirely zero (in which case no further coding
// is needed).
func EMax(vals []float64) (emax int, allZero bool) {
	maxAbs := 0.0
	for _, v := range vals {
		a := math.Abs(v)
		if a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return 0, true
	}
	_, exp := math.Frexp(maxAbs)
	return exp - 1, false
}

// Quantize scales vals into fixed-point integers relative to emax, holding
// precision significant bits below the leading one.
func Quantize(vals []float64, emax, precision int) []int64 {
	scale := math.Ldexp(1, precision-2-emax)
	out := make([]int64, len(vals))
	for i, v := range vals {
		out[i] = int64(math.Round(v * scale))
	}
	return out
}

// Dequantize is the inverse of Quantize.
func Dequantize(q []int64, emax, precision int) []float64 {
	scale := math.Ldexp(1, emax+2-precision)
	out := make([]float64, len(q))
	for i, v := range q {
		out[i] = float64(v) * scale
	}
	return out
}

// liftPair is a reversible Haar-style integer lift: d carries the high
// frequency, s the (rounded) low frequency.
func liftPair(a, b int64) (s, d int64) {
	d = b - a
	s = a + (d >> 1)
	return s, d
}

func invLiftPair(s, d int64) (a, b int64) {
	a = s - (d >> 1)
	b = a + d
	return a, b
}

// forward4 runs one reversible 4-point decorrelating butterfly (two
// rounds of liftPair) over a,b,c,d.
func forward4(a, b, c, d int64) (int64, int64, int64, int64) {
	s0, d0 := liftPair(a, b)
	s1, d1 := liftPair(c, d)
	s2, d2 := liftPair(s0, s1)
	s3, d3 := liftPair(d0, d1)
	return s2, d2, s3, d3
}

func inverse4(b0, b1, b2, b3 int64) (int64, int64, int64, int64) {
	s0, s1 := invLiftPair(b0, b1)
	d0, d1 := invLiftPair(b2, b3)
	a, b := invLiftPair(s0, d0)
	c, d := invLiftPair(s1, d1)
	return a, b, c, d
}

// ForwardTransform decorrelates a block in place, one axis at a time, for
// every axis whose extent is 4 (axes with extent 1 carry no correlation
// to remove, matching partial blocks at a volume's trailing edge).
func ForwardTransform(q []int64, dims v3.I3) {
	transformAxis(q, dims, v3.AxisX, true)
	transformAxis(q, dims, v3.AxisY, true)
	transformAxis(q, dims, v3.AxisZ, true)
}

// InverseTransform reverses ForwardTransform; axes must be undone in the
// opposite order.
func InverseTransform(q []int64, dims v3.I3) {
	transformAxis(q, dims, v3.AxisZ, false)
	transformAxis(q, dims, v3.AxisY, false)
	transformAxis(q, dims, v3.AxisX, false)
}

func transformAxis(q []int64, dims v3.I3, axis v3.Axis, forward bool) {
	if dims.Get(axis) != 4 {
		return
	}
	other := otherTwo(axis)
	a1, a2 := other[0], other[1]
	for k2 := 0; k2 < dims.Get(a2); k2++ {
		for k1 := 0; k1 < dims.Get(a1); k1++ {
			idx := func(xv int) int {
				p := v3.I3{}
				p.Set(axis, xv)
				p.Set(a1, k1)
				p.Set(a2, k2)
				return p.X + p.Y*dims.X + p.Z*dims.X*dims.Y
			}
			i0, i1, i2, i3 := idx(0), idx(1), idx(2), idx(3)
			if forward {
				q[i0], q[i1], q[i2], q[i3] = forward4(q[i0], q[i1], q[i2], q[i3])
			} else {
				q[i0], q[i1], q[i2], q[i3] = inverse4(q[i0], q[i1], q[i2], q[i3])
			}
		}
	}
}

func otherTwo(axis v3.Axis) [2]v3.Axis {
	switch axis {
	case v3.AxisX:
		return [2]v3.Axis{v3.AxisY, v3.AxisZ}
	case v3.AxisY:
		return [2]v3.Axis{v3.AxisX, v3.AxisZ}
	default:
		return [2]v3.Axis{v3.AxisX, v3.AxisY}
	}
}

// negaMask is the alternating-bit constant zfp's int2uint/uint2int mapping
// XORs against to turn two's-complement integers into negabinary-ordered
// unsigned ones (sign and magnitude interleave, so bit-plane truncation
// degrades gracefully instead of aliasing).
const negaMask = 0xAAAAAAAAAAAAAAAA

// Int2UInt maps a signed coefficient to its negabinary-ordered unsigned
// form.
func Int2UInt(x int64) uint64 {
	return (uint64(x) + negaMask) ^ negaMask
}

// UInt2Int is the inverse of Int2UInt.
func UInt2Int(y uint64) int64 {
	return int64((y ^ negaMask) - negaMask)
}

// EncodeBitPlanes writes up to maxPlanes bit-planes of uvals (each plane
// one bit per coefficient, MSB-first) and returns how many planes it
// wrote. With accuracy > 0 it stops early once bitsSoFar - 6 >
// realBitPlane - log2(accuracy) + 1, where realBitPlane is emax plus the
// plane index and bitsSoFar is the number of bits this call has written
// so far (planes written times len(uvals)), starting from zero on every
// call.
func EncodeBitPlanes(w *bitstream.Writer, uvals []uint64, emax int, maxPlanes int, accuracy float64) (planesWritten int) {
	bitsSoFar := 0
	for plane := maxPlanes - 1; plane >= 0; plane-- {
		if accuracy > 0 {
			realBP := emax + plane
			if float64(bitsSoFar)-6 > float64(realBP)-log2(accuracy)+1 {
				break
			}
		}
		for _, u := range uvals {
			w.WriteBits((u>>uint(plane))&1, 1)
		}
		bitsSoFar += len(uvals)
		planesWritten++
	}
	return planesWritten
}

// DecodeBitPlanes reads back planes bit-planes previously written by
// EncodeBitPlanes into n coefficients (zero-initialized for any
// un-transmitted low-order bits, matching the encoder's truncation).
func DecodeBitPlanes(r *bitstream.Reader, n, maxPlanes, planes int) ([]uint64, error) {
	uvals := make([]uint64, n)
	for i := 0; i < planes; i++ {
		plane := maxPlanes - 1 - i
		for j := 0; j < n; j++ {
			bit, err := r.ReadBits(1)
			if err != nil {
				return nil, errs.Wrap(errs.TruncatedStream, err)
			}
			uvals[j] |= bit << uint(plane)
		}
	}
	return uvals, nil
}

func log2(x float64) float64 { return math.Log2(x) }
