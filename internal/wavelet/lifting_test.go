package wavelet

import (
	"math"
	"math/rand"
	"testing"

	"github.com/hoang-dt/idx2/internal/grid"
	"github.com/hoang-dt/idx2/internal/template"
	"github.com/hoang-dt/idx2/internal/v3"
)

func makeField(dims v3.I3, seed int64) *Field {
	n := int(dims.Prod())
	buf := make([]float64, n)
	r := rand.New(rand.NewSource(seed))
	for i := range buf {
		buf[i] = r.Float64()*200 - 100
	}
	return &Field{Buf: buf, Dims: dims}
}

func almostEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-6 {
			return false
		}
	}
	return true
}

func TestForwardInverseLiftAxisRoundTrip(t *testing.T) {
	dims := v3.Make(8, 5, 4)
	for _, axis := range []v3.Axis{v3.AxisX, v3.AxisY, v3.AxisZ} {
		for _, opt := range []LiftOption{Normal, NoUpdate} {
			f := makeField(dims, 1)
			orig := append([]float64(nil), f.Buf...)

			g := grid.New(v3.Zero(), dims)
			m := dims

			ForwardLiftAxis(f, g, axis, m, opt)
			if err := InverseLiftAxis(f, g, axis, m, opt); err != nil {
				t.Fatalf("axis %v opt %v: %v", axis, opt, err)
			}
			if !almostEqual(orig, f.Buf) {
				t.Fatalf("axis %v opt %v: round trip mismatch", axis, opt)
			}
		}
	}
}

func TestInverseLiftAxisRejectsPartialUpdateLast(t *testing.T) {
	dims := v3.Make(8, 4, 4)
	f := makeField(dims, 2)
	g := grid.New(v3.Zero(), dims)
	if err := InverseLiftAxis(f, g, v3.AxisX, dims, PartialUpdateLast); err == nil {
		t.Fatal("expected an error for PartialUpdateLast inverse")
	}
}

func TestForwardInverseCdf53LevelRoundTrip(t *testing.T) {
	dims := v3.Make(8, 8, 8)
	lvl, err := template.Parse(":210")
	if err != nil {
		t.Fatal(err)
	}

	f := makeField(dims, 3)
	orig := append([]float64(nil), f.Buf...)

	ForwardCdf53Level(f, lvl.Levels[0], dims, Normal)
	if err := InverseCdf53Level(f, lvl.Levels[0], dims, Normal); err != nil {
		t.Fatal(err)
	}
	if !almostEqual(orig, f.Buf) {
		t.Fatal("level round trip mismatch")
	}
}

func TestBuildLevelSubbandsCountsAndSubbandZero(t *testing.T) {
	dims := v3.Make(16, 16, 16)
	lvl, err := template.Parse(":210")
	if err != nil {
		t.Fatal(err)
	}
	norms := ComputeNorms(4)
	subbands := BuildLevelSubbands(lvl.Levels[0], dims, norms)
	if len(subbands) != 8 {
		t.Fatalf("expected 8 subbands for a 3-axis level, got %d", len(subbands))
	}
	if subbands[0].LowHigh != v3.Zero() {
		t.Fatalf("subband 0 must be all-scaling, got %+v", subbands[0].LowHigh)
	}
}

func TestBuildLevelSubbandsRepeatedAxis(t *testing.T) {
	dims := v3.Make(16, 16, 16)
	lvl, err := template.Parse(":210210")
	if err != nil {
		t.Fatal(err)
	}
	norms := ComputeNorms(4)
	subbands := BuildLevelSubbands(lvl.Levels[0], dims, norms)
	if len(subbands) != 64 {
		t.Fatalf("expected 64 subbands for a 6-pass level, got %d", len(subbands))
	}
}
