// Package brick implements the per-brick encode/decode pipeline of
// spec.md §4.6/§4.7: forward wavelet, per-subband block coding into
// channels, and the inverse path used by the decoder.
//
// Grounded on original_source/Source/Core/idx2Encode.cpp's EncodeBrick
// and EncodeSubband, generalized from their macro-driven per-axis
// duplication into calls against internal/wavelet and internal/zfpblock.
// The "commented-out BlockDelta" experiment in EncodeSubband is not
// ported (see DESIGN.md).
package brick

import (
	"math"

	"github.com/hoang-dt/idx2/internal/alloc"
	"github.com/hoang-dt/idx2/internal/bitstream"
	"github.com/hoang-dt/idx2/internal/channel"
	"github.com/hoang-dt/idx2/internal/grid"
	"github.com/hoang-dt/idx2/internal/morton"
	"github.com/hoang-dt/idx2/internal/template"
	"github.com/hoang-dt/idx2/internal/v3"
	"github.com/hoang-dt/idx2/internal/wavelet"
	"github.com/hoang-dt/idx2/internal/zfpblock"
)

// ZeroBlockEMax marks a block that carried no significant coefficients in
// a sub-channel's exponent list, distinct from a real exponent of 0, so a
// decoder does not mistake "nothing was coded" for "the data's magnitude
// rounds to 2^0".
const ZeroBlockEMax = int32(math.MinInt32)

// quantizePrecision is the fixed-point precision zfpblock.Quantize uses
// for every block: spec.md §4.5 defines precision as total_bits-1-d, and
// a brick's working buffer is f64 throughout, so the widest useful
// integer precision independent of d is used and the bit-plane cutoff
// (driven by Accuracy) does the real work of bounding stream length.
const quantizePrecision = 52

// ExtDimsFor returns a brick's extended working-buffer dimensions given
// its nominal dimensions: one extra sample on every axis whose extent is
// greater than 1, the padding CDF 5/3 lifting's boundary extrapolation
// needs (spec.md §3's BrickDimsExt). Callers that build bricks directly
// from a metadata.Descriptor's BrickDims3 use this to get the dimensions
// New/EncodeBrick/DecodeBrick actually expect.
func ExtDimsFor(brickDims v3.I3) v3.I3 {
	ext := brickDims
	if ext.X > 1 {
		ext.X++
	}
	if ext.Y > 1 {
		ext.Y++
	}
	if ext.Z > 1 {
		ext.Z++
	}
	return ext
}

// Brick is one tile's working buffer during encode or decode, extended
// by one sample per non-unit axis so wavelet lifting can extrapolate at
// its boundary (spec.md §3's BrickDimsExt).
type Brick struct {
	Buf          []float64
	ExtDims      v3.I3
	NChildren    int
	NChildrenMax int
}

// New allocates (from pool) a zero-filled brick sized extDims.
func New(pool *alloc.Pool, extDims v3.I3) *Brick {
	buf := pool.Get(int(extDims.Prod()))
	for i := range buf {
		buf[i] = 0
	}
	return &Brick{Buf: buf, ExtDims: extDims}
}

// Release returns the brick's buffer to pool.
func (b *Brick) Release(pool *alloc.Pool) {
	pool.Put(b.Buf)
	b.Buf = nil
}

func (b *Brick) field() *wavelet.Field { return &wavelet.Field{Buf: b.Buf, Dims: b.ExtDims} }

// EncodeParams bundles the per-level constants EncodeBrick needs.
type EncodeParams struct {
	Level          int
	Reg            *channel.Registry // block bit-plane channels
	SubReg         *channel.Registry // exponent sub-channels
	Norms          wavelet.Norms
	Accuracy       float64
	MaxBitPlanes   int
	EncodeSubband0 bool // true only for the coarsest level, which has no parent
	AxisSeq        []v3.Axis
}

// EncodeBrick runs the forward wavelet transform and emits every subband
// but (unless EncodeSubband0) subband 0, which the caller copies into the
// parent brick instead of encoding here. It returns subband 0's samples
// and local grid for that promotion.
func EncodeBrick(b *Brick, brickIndex int64, lvl template.Level, m v3.I3, p EncodeParams) ([]float64, grid.Grid) {
	f := b.field()
	wavelet.ForwardCdf53Level(f, lvl, m, wavelet.Normal)

	subbands := wavelet.BuildLevelSubbands(lvl, b.ExtDims, p.Norms)
	var lowPass []float64
	var lowPassGrid grid.Grid
	for subIdx, sb := range subbands {
		if subIdx == 0 {
			lowPass = extractGrid(f, sb.Grid)
			lowPassGrid = sb.Grid
			if !p.EncodeSubband0 {
				continue
			}
		}
		encodeSubband(f, sb, subIdx, brickIndex, p)
	}
	return lowPass, lowPassGrid
}

func extractGrid(f *wavelet.Field, g grid.Grid) []float64 {
	out := make([]float64, int(g.Dims.Prod()))
	i := 0
	grid.Iterate(v3.Zero(), g.Dims, v3.One(), func(local v3.I3) {
		out[i] = f.Buf[grid.LinearOffset(g.Position(local), f.Dims)]
		i++
	})
	return out
}

// ScatterSubband0 is the exact inverse of extractGrid: it writes a
// brick's promoted (or, at the root level, freshly decoded) subband-0
// samples into b's buffer at sbGrid's positions, the seed DecodeBrick
// expects to already be in place before it runs.
func ScatterSubband0(b *Brick, samples []float64, sbGrid grid.Grid) {
	f := b.field()
	i := 0
	grid.Iterate(v3.Zero(), sbGrid.Dims, v3.One(), func(local v3.I3) {
		f.Buf[grid.LinearOffset(sbGrid.Position(local), f.Dims)] = samples[i]
		i++
	})
}

// ScatterParentSubband writes a child's promoted subband-0 samples into
// the parent brick buffer, at the octant matching the child's position
// under its own parent (spec.md §4.6 step 4). lvl is the child's own
// level (the level that was just transformed to produce samples), whose
// axes determine which dimensions actually have two octants; axes that
// level does not touch place the child at offset zero regardless of
// childOctant.
func ScatterParentSubband(parent *Brick, samples []float64, childDims v3.I3, childOctant v3.I3, lvl template.Level) {
	f := parent.field()
	offset := octantOffset(childDims, childOctant, lvl)
	i := 0
	grid.Iterate(v3.Zero(), childDims, v3.One(), func(local v3.I3) {
		f.Buf[grid.LinearOffset(offset.Add(local), f.Dims)] = samples[i]
		i++
	})
}

// GatherChildSubband is the inverse of ScatterParentSubband: it reads one
// child's octant-slice back out of its already-decoded parent brick, the
// samples the next-finer level's DecodeBrick call seeds its own subband 0
// with via ScatterSubband0.
func GatherChildSubband(parent *Brick, childDims v3.I3, childOctant v3.I3, lvl template.Level) []float64 {
	f := parent.field()
	offset := octantOffset(childDims, childOctant, lvl)
	out := make([]float64, int(childDims.Prod()))
	i := 0
	grid.Iterate(v3.Zero(), childDims, v3.One(), func(local v3.I3) {
		out[i] = f.Buf[grid.LinearOffset(offset.Add(local), f.Dims)]
		i++
	})
	return out
}

func octantOffset(childDims v3.I3, childOctant v3.I3, lvl template.Level) v3.I3 {
	offset := v3.Zero()
	for _, ax := range lvl.Axes {
		if childOctant.Get(ax) == 1 {
			offset.Set(ax, childDims.Get(ax))
		}
	}
	return offset
}

// BlockLayout returns the block size and block-grid extent encodeSubband
// and decodeSubband both tile a subband with, so a caller assembling a
// SubChannel's raw exponent bytes into a []int32 (or locating how many
// entries a subband owns) uses the same arithmetic the codec does.
func BlockLayout(sbDims v3.I3) (blockDims, nBlocks v3.I3) {
	blockDims = v3.I3{X: minInt(4, sbDims.X), Y: minInt(4, sbDims.Y), Z: minInt(4, sbDims.Z)}
	if blockDims.X == 0 || blockDims.Y == 0 || blockDims.Z == 0 {
		return blockDims, v3.Zero()
	}
	nBlocks = v3.I3{
		X: ceilDiv(sbDims.X, blockDims.X),
		Y: ceilDiv(sbDims.Y, blockDims.Y),
		Z: ceilDiv(sbDims.Z, blockDims.Z),
	}
	return blockDims, nBlocks
}

// CountValidBlocks returns how many of nBlocks' linear indices actually
// land inside bounds once axisSeq distributes their bits across x, y, z —
// the number of exponent entries a subband contributes to a SubChannel.
func CountValidBlocks(nBlocks v3.I3, axisSeq []v3.Axis) int {
	count := 0
	for idx := int64(0); idx < nBlocks.Prod(); idx++ {
		c := morton.IndexToCoord3(axisSeq, idx)
		if c.X < nBlocks.X && c.Y < nBlocks.Y && c.Z < nBlocks.Z {
			count++
		}
	}
	return count
}

func encodeSubband(f *wavelet.Field, sb wavelet.Subband, subIdx int, brickIndex int64, p EncodeParams) {
	blockDims, nBlocks := BlockLayout(sb.Grid.Dims)
	if blockDims.X == 0 || blockDims.Y == 0 || blockDims.Z == 0 {
		return
	}

	var emaxes []int32
	for idx := int64(0); idx < nBlocks.Prod(); idx++ {
		blockCoord := morton.IndexToCoord3(p.AxisSeq, idx)
		if blockCoord.X >= nBlocks.X || blockCoord.Y >= nBlocks.Y || blockCoord.Z >= nBlocks.Z {
			continue
		}
		vals := gatherBlock(f, sb.Grid, blockCoord, blockDims)
		emax, allZero := zfpblock.EMax(vals)
		if allZero {
			emaxes = append(emaxes, ZeroBlockEMax)
			continue
		}
		emaxes = append(emaxes, int32(emax))

		q := zfpblock.Quantize(vals, emax, quantizePrecision)
		zfpblock.ForwardTransform(q, blockDims)

		uvals := make([]uint64, len(q))
		for i, v := range q {
			uvals[i] = zfpblock.Int2UInt(v)
		}

		w := bitstream.NewWriter(64)
		planesWritten := zfpblock.EncodeBitPlanes(w, uvals, emax, p.MaxBitPlanes, p.Accuracy)
		w.FlushByte()

		// Frame each block's record with its own plane count and byte
		// length so several blocks sharing one (subIdx, emax) channel
		// within the same brick can be told apart again on decode.
		rec := bitstream.NewWriter(16 + len(w.Bytes()))
		rec.WriteVarByte(uint64(planesWritten))
		rec.WriteVarByte(uint64(len(w.Bytes())))
		rec.Append(w)

		key := channel.Key{Level: p.Level, SubLevel: subIdx, BitPlane: emax}
		p.Reg.Channel(key).AppendBlock(brickIndex, rec.Bytes())
	}

	if len(emaxes) > 0 {
		subKey := channel.SubKey{Level: p.Level, SubLevel: subIdx}
		p.SubReg.SubChannel(subKey).AppendExponents(brickIndex, emaxes)
	}
}

// gatherBlock reads a 4x4x4 (or smaller, for a subband with a non-unit
// axis thinner than 4) window starting at blockCoord*blockDims, clamping
// any position past the subband's true extent to its last valid sample
// (replication padding keeps every block full-sized for the transform).
func gatherBlock(f *wavelet.Field, sbGrid grid.Grid, blockCoord, blockDims v3.I3) []float64 {
	base := blockCoord.Mul(blockDims)
	out := make([]float64, 0, zfpblock.MaxBlockLen)
	grid.Iterate(v3.Zero(), blockDims, v3.One(), func(local v3.I3) {
		p := base.Add(local)
		p.X = clampMax(p.X, sbGrid.Dims.X-1)
		p.Y = clampMax(p.Y, sbGrid.Dims.Y-1)
		p.Z = clampMax(p.Z, sbGrid.Dims.Z-1)
		out = append(out, f.Buf[grid.LinearOffset(sbGrid.Position(p), f.Dims)])
	})
	return out
}

// DecodeParams bundles a brick's already-located channel data for one
// level's decode: the exponent lists and bit-plane byte blobs produced by
// EncodeBrick for this same brick, keyed by sub-level index and (for
// payloads) by the exponent value that channel was filed under.
type DecodeParams struct {
	Level        int
	Norms        wavelet.Norms
	MaxBitPlanes int
	AxisSeq      []v3.Axis
	// DecodeSubband0 mirrors EncodeParams.EncodeSubband0: true only for
	// the coarsest level, whose subband 0 was itself channel-coded
	// instead of promoted from a child.
	DecodeSubband0 bool
	// Exponents[subIdx] is the full per-block exponent list this brick
	// recorded for that sub-level (nil if no sub-channel chunk for it has
	// been read yet, meaning the subband stays at its current, possibly
	// all-zero, contents).
	Exponents map[int][]int32
	// Payload[subIdx][emax] is the brick's raw byte blob for that
	// (sub-level, exponent) channel.
	Payload map[int]map[int32][]byte
}

// DecodeBrick is the dual of EncodeBrick. With p.DecodeSubband0 set (the
// coarsest level) subband 0 is decoded from p's channel data like the
// others; otherwise it must already be in b.Buf (the caller scatters in the
// slice taken from the parent brick's reconstruction). It decodes every
// other subband from whatever channel data p supplies, then inverts the
// lifting step for lvl. Channels with no data yet for a given block leave that
// block's coefficients at zero, which is the correct contribution for a
// stream truncated by accuracy or by a decode request that never reached
// that bit-plane.
func DecodeBrick(b *Brick, lvl template.Level, m v3.I3, p DecodeParams) error {
	f := b.field()
	subbands := wavelet.BuildLevelSubbands(lvl, b.ExtDims, p.Norms)
	for subIdx, sb := range subbands {
		if subIdx == 0 && !p.DecodeSubband0 {
			continue
		}
		exps, ok := p.Exponents[subIdx]
		if !ok {
			continue
		}
		decodeSubband(f, sb, exps, p.Payload[subIdx], p.MaxBitPlanes, p.AxisSeq)
	}
	return wavelet.InverseCdf53Level(f, lvl, m, wavelet.Normal)
}

func decodeSubband(f *wavelet.Field, sb wavelet.Subband, exps []int32, payloads map[int32][]byte, maxBitPlanes int, axisSeq []v3.Axis) {
	blockDims, nBlocks := BlockLayout(sb.Grid.Dims)
	if blockDims.X == 0 || blockDims.Y == 0 || blockDims.Z == 0 {
		return
	}
	n := int(blockDims.Prod())

	readers := make(map[int32]*bitstream.Reader)
	getReader := func(e int32) *bitstream.Reader {
		r, ok := readers[e]
		if !ok {
			r = bitstream.NewReader(payloads[e])
			readers[e] = r
		}
		return r
	}

	expI := 0
	for idx := int64(0); idx < nBlocks.Prod(); idx++ {
		blockCoord := morton.IndexToCoord3(axisSeq, idx)
		if blockCoord.X >= nBlocks.X || blockCoord.Y >= nBlocks.Y || blockCoord.Z >= nBlocks.Z {
			continue
		}
		if expI >= len(exps) {
			break
		}
		e := exps[expI]
		expI++
		if e == ZeroBlockEMax {
			continue
		}

		r := getReader(e)
		planes, blockBytes, ok := readBlockRecord(r)
		if !ok || planes == 0 {
			continue
		}

		uvals, err := zfpblock.DecodeBitPlanes(bitstream.NewReader(blockBytes), n, maxBitPlanes, planes)
		if err != nil {
			continue
		}
		q := make([]int64, n)
		for i, u := range uvals {
			q[i] = zfpblock.UInt2Int(u)
		}
		zfpblock.InverseTransform(q, blockDims)
		vals := zfpblock.Dequantize(q, int(e), quantizePrecision)
		scatterBlock(f, sb.Grid, blockCoord, blockDims, vals)
	}
}

// readBlockRecord consumes one length-and-plane-framed block record (the
// dual of the framing EncodeBrick writes): a plane count, a byte length,
// then that many raw bytes of bit-plane data. ok is false once r runs out
// of whole records, signalling the caller that this channel's stream
// ended early (truncated by a bounded decode request).
func readBlockRecord(r *bitstream.Reader) (planes int, data []byte, ok bool) {
	p, err := r.ReadVarByte()
	if err != nil {
		return 0, nil, false
	}
	byteLen, err := r.ReadVarByte()
	if err != nil {
		return 0, nil, false
	}
	buf := make([]byte, byteLen)
	for i := range buf {
		bits, err := r.ReadBits(8)
		if err != nil {
			return 0, nil, false
		}
		buf[i] = byte(bits)
	}
	return int(p), buf, true
}

// scatterBlock writes vals back into f at blockCoord's position within
// sbGrid, skipping any local position gatherBlock would have clamped (it
// duplicated a neighboring in-range sample rather than holding unique
// data, so the owning block already wrote the real value there).
func scatterBlock(f *wavelet.Field, sbGrid grid.Grid, blockCoord, blockDims v3.I3, vals []float64) {
	base := blockCoord.Mul(blockDims)
	i := 0
	grid.Iterate(v3.Zero(), blockDims, v3.One(), func(local v3.I3) {
		p := base.Add(local)
		if p.X < sbGrid.Dims.X && p.Y < sbGrid.Dims.Y && p.Z < sbGrid.Dims.Z {
			f.Buf[grid.LinearOffset(sbGrid.Position(p), f.Dims)] = vals[i]
		}
		i++
	})
}

func clampMax(v, max int) int {
	if v > max {
		return max
	}
	return v
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
