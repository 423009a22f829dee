package morton

import (
	"testing"

	"github.com/hoang-dt/idx2/internal/v3"
)

func TestEncodeDecode3RoundTrip(t *testing.T) {
	cases := []v3.I3{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 2, Z: 3},
		{X: 7, Y: 0, Z: 5},
		{X: 1023, Y: 511, Z: 255},
	}
	for _, c := range cases {
		m := Encode3(c)
		got := Decode3(m)
		if got != c {
			t.Fatalf("Decode3(Encode3(%v)) = %v", c, got)
		}
	}
}

func TestIndexToCoordRoundTrip(t *testing.T) {
	seq := []v3.Axis{v3.AxisX, v3.AxisY, v3.AxisZ, v3.AxisX, v3.AxisY, v3.AxisZ}
	for i := int64(0); i < 64; i++ {
		c := IndexToCoord3(seq, i)
		back := CoordToIndex3(seq, c)
		if back != i {
			t.Fatalf("index %d -> coord %v -> index %d", i, c, back)
		}
	}
}

func TestAxisSequenceFlattensLevels(t *testing.T) {
	levels := [][]v3.Axis{
		{v3.AxisZ, v3.AxisY, v3.AxisX},
		{v3.AxisZ},
	}
	seq := AxisSequence(levels)
	if len(seq) != 4 {
		t.Fatalf("expected 4 axis steps, got %d", len(seq))
	}
}
