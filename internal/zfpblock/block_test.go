package zfpblock

import (
	"math/rand"
	"testing"

	"github.com/hoang-dt/idx2/internal/bitstream"
	"github.com/hoang-dt/idx2/internal/v3"
)

func TestForwardInverseTransformRoundTrip(t *testing.T) {
	dims := v3.Make(4, 4, 4)
	r := rand.New(rand.NewSource(7))
	q := make([]int64, 64)
	for i := range q {
		q[i] = int64(r.Intn(2000) - 1000)
	}
	orig := append([]int64(nil), q...)

	ForwardTransform(q, dims)
	InverseTransform(q, dims)

	for i := range orig {
		if orig[i] != q[i] {
			t.Fatalf("index %d: got %d want %d", i, q[i], orig[i])
		}
	}
}

func TestInt2UIntRoundTrip(t *testing.T) {
	for _, x := range []int64{0, 1, -1, 12345, -12345, 1 << 40, -(1 << 40)} {
		y := Int2UInt(x)
		back := UInt2Int(y)
		if back != x {
			t.Fatalf("Int2UInt/UInt2Int(%d) round trip got %d", x, back)
		}
	}
}

func TestEncodeDecodeBitPlanesFullPrecision(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	uvals := make([]uint64, 16)
	for i := range uvals {
		uvals[i] = uint64(r.Intn(1 << 20))
	}
	const maxPlanes = 24

	w := bitstream.NewWriter(256)
	planes := EncodeBitPlanes(w, uvals, 0, maxPlanes, 0)
	if planes != maxPlanes {
		t.Fatalf("expected all %d planes with accuracy=0, got %d", maxPlanes, planes)
	}
	w.FlushByte()

	rd := bitstream.NewReader(w.Bytes())
	got, err := DecodeBitPlanes(rd, len(uvals), maxPlanes, planes)
	if err != nil {
		t.Fatal(err)
	}
	for i := range uvals {
		if got[i] != uvals[i] {
			t.Fatalf("index %d: got %d want %d", i, got[i], uvals[i])
		}
	}
}

func TestEncodeBitPlanesStopsEarlyWithAccuracy(t *testing.T) {
	uvals := make([]uint64, 64)
	for i := range uvals {
		uvals[i] = 0xFFFF
	}
	w := bitstream.NewWriter(256)
	planes := EncodeBitPlanes(w, uvals, 10, 16, 1.0)
	if planes >= 16 {
		t.Fatalf("expected an early stop with a coarse accuracy target, got %d planes", planes)
	}
}

func TestQuantizeDequantizeApproximatesInput(t *testing.T) {
	vals := []float64{1.5, -2.25, 0.125, 3.0}
	emax, allZero := EMax(vals)
	if allZero {
		t.Fatal("unexpected all-zero block")
	}
	q := Quantize(vals, emax, 32)
	back := Dequantize(q, emax, 32)
	for i, v := range vals {
		if diff := v - back[i]; diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("index %d: quantize/dequantize(%v) = %v", i, v, back[i])
		}
	}
}
