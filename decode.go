package idx2

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/hoang-dt/idx2/internal/brick"
	"github.com/hoang-dt/idx2/internal/decoder"
	"github.com/hoang-dt/idx2/internal/errs"
	"github.com/hoang-dt/idx2/internal/grid"
	"github.com/hoang-dt/idx2/internal/metadata"
	"github.com/hoang-dt/idx2/internal/morton"
	"github.com/hoang-dt/idx2/internal/template"
	"github.com/hoang-dt/idx2/internal/v3"
	"github.com/hoang-dt/idx2/internal/wavelet"
)

// elemSize returns a data type's on-wire width in out, spec.md §3's T in
// {f32, f64}.
func elemSize(dt metadata.DataType) int64 {
	if dt == metadata.Float32 {
		return 4
	}
	return 8
}

// Decode reconstructs f's volume into out (sized Dims3.Prod()*
// elemSize(DataType), row-major z*Ny*Nx+y*Nx+x per spec.md §3), reading
// whatever channel data the store tree currently has and leaving any
// missing coefficient's contribution at zero — the same
// truncate-gracefully behavior internal/decoder documents for a single
// brick. It walks levelSchedule's order in reverse (coarsest to finest),
// scattering each level's reconstruction into its children's subband 0
// (spec.md §4.6 step 4 run backwards) until level 0's bricks are written
// into out. If p.HasDecodeExtent is set, only bricks whose footprint
// could contribute to that sub-extent are decoded at all, at every
// level — spec.md §1's "the engine reads only the chunks that
// contribute to the answer".
func Decode(f *File, p Params, out []byte) error {
	want := f.Desc.Dims3.Prod() * elemSize(f.Desc.DataType)
	if int64(len(out)) != want {
		return errs.E(errs.IncompatibleMetadata, "idx2: out has %d bytes, want %d", len(out), want)
	}

	reqExtent := grid.NewExtent(v3.Zero(), f.Desc.Dims3)
	if p.HasDecodeExtent {
		reqExtent = grid.CropExtent(p.DecodeExtent, reqExtent)
	}

	nLevels := f.Desc.NLevels
	schedule, err := levelSchedule(nLevels)
	if err != nil {
		return err
	}

	dec := decoder.New(f.Params.Root, f.Desc)
	ctx := context.Background()

	maxBitPlanes := p.MaxBitPlanes
	if maxBitPlanes <= 0 {
		maxBitPlanes = 64
	}

	// scale[lv] is a level-lv brick's footprint in level-0 brick units per
	// axis: 2x for every axis a coarser level below it halved. Used only
	// to test whether a brick could possibly contribute to reqExtent
	// before paying to decode it.
	scale := make([]v3.I3, nLevels)
	scale[0] = v3.One()
	for lv := 1; lv < nLevels; lv++ {
		scale[lv] = doubleTouched(scale[lv-1], f.Desc.Template.Levels[lv-1])
	}

	// parentSubbands[lv][idx] holds the subband-0 samples a coarser
	// level's already-decoded brick scattered down for lv's brick idx,
	// ready for DecodeBrickWithParent.
	parentSubbands := make([]map[int64][]float64, nLevels)
	for lv := range parentSubbands {
		parentSubbands[lv] = make(map[int64][]float64)
	}

	for i := len(schedule) - 1; i >= 0; i-- {
		lv := schedule[i]
		lvl := f.Desc.Template.Levels[lv]
		isRoot := lv == nLevels-1
		axisSeq := morton.AxisSequence([][]v3.Axis{lvl.Axes})
		n3 := f.Desc.NBricks3[lv]
		footprint := f.Desc.BrickDims3.Mul(scale[lv])

		var childLvl template.Level
		var childAxisSeq, childTouched []v3.Axis
		var childN3 v3.I3
		var childDims v3.I3
		if lv > 0 {
			childLvl = f.Desc.Template.Levels[lv-1]
			childAxisSeq = morton.AxisSequence([][]v3.Axis{childLvl.Axes})
			childTouched = touchedAxes(childLvl)
			childN3 = f.Desc.NBricks3[lv-1]
			childExtDims := brick.ExtDimsFor(f.Desc.BrickDims3)
			childNorms := wavelet.ComputeNorms(len(childLvl.Axes) + 1)
			childDims = wavelet.BuildLevelSubbands(childLvl, childExtDims, childNorms)[0].Grid.Dims
		}

		total := brickIndexSpan(n3)
		for idx := int64(0); idx < total; idx++ {
			coord := morton.IndexToCoord3(axisSeq, idx)
			if coord.X >= n3.X || coord.Y >= n3.Y || coord.Z >= n3.Z {
				continue
			}
			brickExtent := grid.NewExtent(coord.Mul(footprint), footprint)
			if !extentsIntersect(brickExtent, reqExtent) {
				continue
			}

			var b *brick.Brick
			if isRoot {
				b, err = dec.DecodeBrickTo(ctx, lv, idx, maxBitPlanes)
			} else {
				b, err = dec.DecodeBrickWithParent(ctx, lv, idx, maxBitPlanes, parentSubbands[lv][idx])
				delete(parentSubbands[lv], idx)
			}
			if err != nil {
				return err
			}

			if lv == 0 {
				brickFrom := coord.Mul(f.Desc.BrickDims3)
				scatterNominal(out, f.Desc.DataType, f.Desc.Dims3, brickFrom, f.Desc.BrickDims3, b.ExtDims, b.Buf)
			} else {
				for mask := 0; mask < (1 << len(childTouched)); mask++ {
					childCoord := coord
					childOctant := v3.Zero()
					for i, ax := range childTouched {
						bit := (mask >> i) & 1
						childCoord.Set(ax, coord.Get(ax)*2+bit)
						childOctant.Set(ax, bit)
					}
					if childCoord.X >= childN3.X || childCoord.Y >= childN3.Y || childCoord.Z >= childN3.Z {
						continue
					}
					childIdx := morton.CoordToIndex3(childAxisSeq, childCoord)
					parentSubbands[lv-1][childIdx] = brick.GatherChildSubband(b, childDims, childOctant, childLvl)
				}
			}
			b.Release(dec.Pool())
		}
	}
	if f.Observer != nil {
		f.Observer.OnTimer("decode")
	}
	return nil
}

// touchedAxes returns the distinct axes lvl's passes actually split, in a
// stable x,y,z order (the iteration order octant-bit enumeration relies
// on to stay deterministic).
func touchedAxes(lvl template.Level) []v3.Axis {
	seen := map[v3.Axis]bool{}
	for _, ax := range lvl.Axes {
		seen[ax] = true
	}
	var out []v3.Axis
	for _, ax := range []v3.Axis{v3.AxisX, v3.AxisY, v3.AxisZ} {
		if seen[ax] {
			out = append(out, ax)
		}
	}
	return out
}

// doubleTouched doubles n3 along every axis lvl touches, the inverse of
// idx2.Init's octantShrink, used to grow a coarse brick's level-0
// footprint back up one level at a time.
func doubleTouched(n3 v3.I3, lvl template.Level) v3.I3 {
	out := n3
	for _, ax := range touchedAxes(lvl) {
		out.Set(ax, out.Get(ax)*2)
	}
	return out
}

// extentsIntersect reports whether a and b, as half-open boxes, overlap.
func extentsIntersect(a, b grid.Extent) bool {
	aTo, bTo := a.To(), b.To()
	if aTo.X <= b.From.X || bTo.X <= a.From.X {
		return false
	}
	if aTo.Y <= b.From.Y || bTo.Y <= a.From.Y {
		return false
	}
	if aTo.Z <= b.From.Z || bTo.Z <= a.From.Z {
		return false
	}
	return true
}

// scatterNominal writes a decoded brick's real (unpadded, and at a
// boundary brick, cropped to the volume's true edge) samples into out at
// their true volume position, converting from the brick's
// extended-buffer layout to out's packed f32/f64 byte layout.
func scatterNominal(out []byte, dt metadata.DataType, volDims, brickFrom, brickDims, extDims v3.I3, buf []float64) {
	size := elemSize(dt)
	real := v3.I3{
		X: clampRemaining(brickDims.X, volDims.X-brickFrom.X),
		Y: clampRemaining(brickDims.Y, volDims.Y-brickFrom.Y),
		Z: clampRemaining(brickDims.Z, volDims.Z-brickFrom.Z),
	}
	grid.Iterate(v3.Zero(), real, v3.One(), func(local v3.I3) {
		srcOff := grid.LinearOffset(local, extDims)
		dstPos := brickFrom.Add(local)
		dstOff := grid.LinearOffset(dstPos, volDims) * size
		v := buf[srcOff]
		if dt == metadata.Float32 {
			binary.LittleEndian.PutUint32(out[dstOff:dstOff+4], math.Float32bits(float32(v)))
		} else {
			binary.LittleEndian.PutUint64(out[dstOff:dstOff+8], math.Float64bits(v))
		}
	})
}

// clampRemaining caps a brick's nominal extent along one axis to however
// many real volume samples remain from its starting position, for the
// partial final brick at the volume's edge.
func clampRemaining(nominal, remaining int) int {
	if remaining < nominal {
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	return nominal
}
