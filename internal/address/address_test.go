package address

import "testing"

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []struct {
		level, subLevel, bitPlane int
		brickIndex                int64
		groupLog2                 int
	}{
		{level: 0, subLevel: 0, bitPlane: 0, brickIndex: 0, groupLog2: 4},
		{level: 5, subLevel: 12, bitPlane: -7, brickIndex: 1 << 20, groupLog2: 8},
		{level: 15, subLevel: 63, bitPlane: 2047, brickIndex: (1 << 50) - 1, groupLog2: 10},
		{level: 3, subLevel: 1, bitPlane: -2048, brickIndex: 12345, groupLog2: 0},
	}
	for _, c := range cases {
		k := Pack(c.level, c.brickIndex, c.groupLog2, c.subLevel, c.bitPlane)
		if got := k.Level(); got != c.level {
			t.Fatalf("Level() = %d, want %d", got, c.level)
		}
		if got := k.SubLevel(); got != c.subLevel {
			t.Fatalf("SubLevel() = %d, want %d", got, c.subLevel)
		}
		if got := k.BitPlane(); got != c.bitPlane {
			t.Fatalf("BitPlane() = %d, want %d", got, c.bitPlane)
		}
		wantGroup := c.brickIndex >> uint(c.groupLog2)
		if got := k.BrickGroup(); got != wantGroup {
			t.Fatalf("BrickGroup() = %d, want %d", got, wantGroup)
		}
	}
}

func TestPathIsDeterministicAndSharded(t *testing.T) {
	k := Pack(2, 4096, 4, 3, 5)
	p1 := Path("/data/root", "temperature", k, DataFile)
	p2 := Path("/data/root", "temperature", k, DataFile)
	if p1 != p2 {
		t.Fatalf("Path is not deterministic: %q vs %q", p1, p2)
	}
	pe := Path("/data/root", "temperature", k, ExponentFile)
	if p1 == pe {
		t.Fatal("data and exponent paths must differ")
	}
}
