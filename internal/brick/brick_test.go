package brick

import (
	"math"
	"math/rand"
	"testing"

	"github.com/hoang-dt/idx2/internal/alloc"
	"github.com/hoang-dt/idx2/internal/channel"
	"github.com/hoang-dt/idx2/internal/grid"
	"github.com/hoang-dt/idx2/internal/morton"
	"github.com/hoang-dt/idx2/internal/template"
	"github.com/hoang-dt/idx2/internal/v3"
	"github.com/hoang-dt/idx2/internal/wavelet"
)

func fillRandom(buf []float64, seed int64) {
	r := rand.New(rand.NewSource(seed))
	for i := range buf {
		buf[i] = r.Float64()*200 - 100
	}
}

// collectForDecode flushes both registries of a single-brick encode and
// reshapes their chunks into the per-(subIdx) maps DecodeBrick expects, exactly as
// a higher-level decoder would after reading chunks back from files.
func collectForDecode(t *testing.T, reg, subReg *channel.Registry, dims v3.I3, lvl template.Level, norms wavelet.Norms, axisSeq []v3.Axis) (map[int][]int32, map[int]map[int32][]byte) {
	t.Helper()
	chunkMap, _ := reg.FlushAll()
	_, subChunkMap := subReg.FlushAll()

	subbands := wavelet.BuildLevelSubbands(lvl, dims, norms)

	payloads := make(map[int]map[int32][]byte)
	for key, chunks := range chunkMap {
		for _, ch := range chunks {
			recs, err := channel.ParseChunk(ch.Payload)
			if err != nil {
				t.Fatalf("ParseChunk: %v", err)
			}
			for _, rec := range recs {
				if rec.BrickIndex != 0 {
					continue
				}
				if payloads[key.SubLevel] == nil {
					payloads[key.SubLevel] = make(map[int32][]byte)
				}
				payloads[key.SubLevel][int32(key.BitPlane)] = rec.Payload
			}
		}
	}

	exponents := make(map[int][]int32)
	for key, chunks := range subChunkMap {
		sb := subbands[key.SubLevel]
		_, nBlocks := BlockLayout(sb.Grid.Dims)
		count := CountValidBlocks(nBlocks, axisSeq)
		for _, ch := range chunks {
			recs, err := channel.ParseChunk(ch.Payload)
			if err != nil {
				t.Fatalf("ParseChunk (sub): %v", err)
			}
			for _, rec := range recs {
				if rec.BrickIndex != 0 {
					continue
				}
				exps, err := channel.DecodeExponents(rec.Payload, count)
				if err != nil {
					t.Fatalf("DecodeExponents: %v", err)
				}
				exponents[key.SubLevel] = exps
			}
		}
	}
	return exponents, payloads
}

func TestEncodeDecodeBrickRoundTrip(t *testing.T) {
	dims := v3.Make(16, 16, 16)
	tpl, err := template.Parse(":210")
	if err != nil {
		t.Fatal(err)
	}
	lvl := tpl.Levels[0]
	axisSeq := morton.AxisSequence([][]v3.Axis{lvl.Axes})
	norms := wavelet.ComputeNorms(4)

	pool := alloc.NewPool()
	b := New(pool, dims)
	fillRandom(b.Buf, 7)
	orig := append([]float64(nil), b.Buf...)

	reg := channel.NewRegistry(100, 0)
	subReg := channel.NewRegistry(100, 0)
	encParams := EncodeParams{
		Level:          0,
		Reg:            reg,
		SubReg:         subReg,
		Norms:          norms,
		Accuracy:       0,
		MaxBitPlanes:   64,
		EncodeSubband0: true,
		AxisSeq:        axisSeq,
	}
	EncodeBrick(b, 0, lvl, dims, encParams)

	exponents, payloads := collectForDecode(t, reg, subReg, dims, lvl, norms, axisSeq)
	if len(exponents) == 0 {
		t.Fatal("expected at least one sub-channel of exponents")
	}

	b2 := New(pool, dims)
	decParams := DecodeParams{
		Level:          0,
		Norms:          norms,
		MaxBitPlanes:   64,
		AxisSeq:        axisSeq,
		DecodeSubband0: true,
		Exponents:      exponents,
		Payload:        payloads,
	}
	if err := DecodeBrick(b2, lvl, dims, decParams); err != nil {
		t.Fatalf("DecodeBrick: %v", err)
	}

	maxErr := 0.0
	for i := range orig {
		d := math.Abs(orig[i] - b2.Buf[i])
		if d > maxErr {
			maxErr = d
		}
	}
	// Full precision (MaxBitPlanes=64, Accuracy=0) leaves only the
	// fixed-point quantization error at quantizePrecision bits.
	if maxErr > 1e-9 {
		t.Fatalf("round trip max error = %v, want near zero", maxErr)
	}
}

func TestExtractGridMatchesGatherBlock(t *testing.T) {
	dims := v3.Make(8, 8, 8)
	f := &wavelet.Field{Buf: make([]float64, dims.Prod()), Dims: dims}
	fillRandom(f.Buf, 11)

	g := grid.New(v3.Zero(), v3.Make(4, 4, 4))
	extracted := extractGrid(f, g)
	gathered := gatherBlock(f, g, v3.Zero(), v3.Make(4, 4, 4))
	if len(extracted) != len(gathered) {
		t.Fatalf("length mismatch: %d vs %d", len(extracted), len(gathered))
	}
	for i := range extracted {
		if extracted[i] != gathered[i] {
			t.Fatalf("value mismatch at %d: %v vs %v", i, extracted[i], gathered[i])
		}
	}
}

func TestScatterParentSubbandPlacesOctants(t *testing.T) {
	pool := alloc.NewPool()
	childDims := v3.Make(2, 2, 2)
	parentDims := v3.Make(4, 4, 4)
	parent := New(pool, parentDims)

	samples := make([]float64, childDims.Prod())
	for i := range samples {
		samples[i] = float64(i + 1)
	}

	lvl := template.Level{Axes: []v3.Axis{v3.AxisX, v3.AxisY, v3.AxisZ}}
	ScatterParentSubband(parent, samples, childDims, v3.Make(1, 0, 0), lvl)

	f := parent.field()
	// Octant (1,0,0) should place the child starting at x=2, y=0, z=0.
	got := f.Buf[grid.LinearOffset(v3.Make(2, 0, 0), parentDims)]
	if got != samples[0] {
		t.Fatalf("octant offset wrong: got %v, want %v", got, samples[0])
	}
}

func TestGatherBlockPadsPartialBlock(t *testing.T) {
	dims := v3.Make(6, 6, 6)
	f := &wavelet.Field{Buf: make([]float64, dims.Prod()), Dims: dims}
	for i := range f.Buf {
		f.Buf[i] = float64(i)
	}
	g := grid.New(v3.Zero(), dims)
	blockDims := v3.Make(4, 4, 4)
	// Block (1,0,0) starts at x=4, which only has 2 valid columns (4,5)
	// before the subband's true extent ends; gatherBlock must still
	// return exactly 64 samples.
	vals := gatherBlock(f, g, v3.Make(1, 0, 0), blockDims)
	if len(vals) != 64 {
		t.Fatalf("expected 64 padded samples, got %d", len(vals))
	}
}
