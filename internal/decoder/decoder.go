// Package decoder implements the random-access read path of spec.md §4.9:
// given a metadata.Descriptor and a store root, locate the files holding
// one brick's sub-channels and channels, pull out its per-block exponents
// and bit-plane payloads, and run the inverse brick pipeline to recover
// its samples.
//
// Grounded on original_source/Source/Core/idx2Encode.cpp's control flow
// read in reverse (no decoder is present in the excerpted original, so
// this package is built from spec.md §4.9's dual-traversal description),
// using internal/store's Cache (grounded on how
// distr1-distri/cmd/distri/build.go fans out independent package builds
// with errgroup). The decoder opens one file per Cache.OpenMany call, as
// it reaches each file, and reuses cached files afterwards.
//
// A brick's subband 0 (the coarsest quadrant) is only ever channel-coded
// at the pyramid's root level, which has no parent to promote a low-pass
// from (EncodeParams.EncodeSubband0/DecodeParams.DecodeSubband0). Below
// the root, subband 0 instead comes from the parent brick's own
// reconstruction, scattered into the child's position — a cross-level,
// cross-brick operation that belongs to the traversal owning the whole
// pyramid, not to a single brick's decode. This package decodes any one
// level's channel-coded subbands faithfully; wiring that cross-level
// promotion into a full top-to-bottom reconstruction is left to the root
// idx2 package.
package decoder

import (
	"context"
	"errors"

	"github.com/hoang-dt/idx2/internal/address"
	"github.com/hoang-dt/idx2/internal/alloc"
	"github.com/hoang-dt/idx2/internal/brick"
	"github.com/hoang-dt/idx2/internal/channel"
	"github.com/hoang-dt/idx2/internal/errs"
	"github.com/hoang-dt/idx2/internal/metadata"
	"github.com/hoang-dt/idx2/internal/morton"
	"github.com/hoang-dt/idx2/internal/store"
	"github.com/hoang-dt/idx2/internal/v3"
	"github.com/hoang-dt/idx2/internal/wavelet"
)

// Decoder reads bricks back out of one field's store tree. It owns a
// store.Cache across calls so repeated requests touching the same file
// (common in a brick-traversal decode) only pay the read cost once, and
// an alloc.Pool every returned Brick is allocated from.
type Decoder struct {
	root string
	desc metadata.Descriptor

	pool  *alloc.Pool
	cache *store.Cache
}

// New creates a Decoder reading field data rooted at root, per desc.
func New(root string, desc metadata.Descriptor) *Decoder {
	return &Decoder{root: root, desc: desc, pool: alloc.NewPool(), cache: store.NewCache()}
}

// Pool exposes the decoder's buffer pool so a caller can hand bricks back
// (Brick.Release) once it is done with them.
func (d *Decoder) Pool() *alloc.Pool { return d.pool }

// DecodeBrick reconstructs brickIndex at level, reading every bit-plane
// each block coded, for bricks encoded with MaxBitPlanes 64.
func (d *Decoder) DecodeBrick(ctx context.Context, level int, brickIndex int64) (*brick.Brick, error) {
	return d.DecodeBrickTo(ctx, level, brickIndex, 64)
}

// DecodeBrickTo reconstructs brickIndex at level. maxBitPlanes is the
// plane index the stored planes count down from and must equal the
// MaxBitPlanes the brick was encoded with: every plane a block recorded is
// read, and a smaller value places those planes at lower bit positions
// instead of giving a coarser decode.
// Only valid at the pyramid's root level: below the root, subband 0 has
// no channel data of its own and must come from DecodeBrickWithParent.
func (d *Decoder) DecodeBrickTo(ctx context.Context, level int, brickIndex int64, maxBitPlanes int) (*brick.Brick, error) {
	return d.decodeBrickTo(ctx, level, brickIndex, maxBitPlanes, nil)
}

// DecodeBrickWithParent decodes brickIndex at a non-root level, seeding
// subband 0 from parentSubband0 — the slice brick.GatherChildSubband
// pulled out of this brick's already-decoded parent — instead of reading
// it from a channel (spec.md §4.6 step 4's promotion, run in reverse).
func (d *Decoder) DecodeBrickWithParent(ctx context.Context, level int, brickIndex int64, maxBitPlanes int, parentSubband0 []float64) (*brick.Brick, error) {
	return d.decodeBrickTo(ctx, level, brickIndex, maxBitPlanes, parentSubband0)
}

func (d *Decoder) decodeBrickTo(ctx context.Context, level int, brickIndex int64, maxBitPlanes int, parentSubband0 []float64) (*brick.Brick, error) {
	if level < 0 || level >= len(d.desc.Template.Levels) {
		return nil, errs.E(errs.IncompatibleMetadata, "decoder: level %d out of range for %d template levels", level, len(d.desc.Template.Levels))
	}
	lvl := d.desc.Template.Levels[level]
	extDims := brick.ExtDimsFor(d.desc.BrickDims3)
	norms := wavelet.ComputeNorms(len(lvl.Axes) + 1)
	axisSeq := morton.AxisSequence([][]v3.Axis{lvl.Axes})
	subbands := wavelet.BuildLevelSubbands(lvl, extDims, norms)

	isRoot := level == len(d.desc.Template.Levels)-1
	groupLog2 := v3.Log2Ceil(d.desc.BricksPerFile[level])

	exponents := make(map[int][]int32)
	payloads := make(map[int]map[int32][]byte)

	for subIdx, sb := range subbands {
		if subIdx == 0 && !isRoot {
			// Subband 0 below the root comes from the parent brick's
			// reconstruction, not from this level's own channels.
			continue
		}

		_, nBlocks := brick.BlockLayout(sb.Grid.Dims)
		count := brick.CountValidBlocks(nBlocks, axisSeq)

		exps, err := d.loadExponents(ctx, level, brickIndex, subIdx, groupLog2, count)
		if err != nil {
			return nil, err
		}
		if exps == nil {
			continue
		}
		exponents[subIdx] = exps

		subPayloads := make(map[int32][]byte)
		for _, e := range exps {
			if e == brick.ZeroBlockEMax {
				continue
			}
			if _, seen := subPayloads[e]; seen {
				continue
			}
			raw, err := d.loadChannelPayload(ctx, level, brickIndex, subIdx, e, groupLog2)
			if err != nil {
				return nil, err
			}
			if raw != nil {
				subPayloads[e] = raw
			}
		}
		payloads[subIdx] = subPayloads
	}

	b := brick.New(d.pool, extDims)
	if !isRoot {
		brick.ScatterSubband0(b, parentSubband0, subbands[0].Grid)
	}
	decParams := brick.DecodeParams{
		Level:          level,
		Norms:          norms,
		MaxBitPlanes:   maxBitPlanes,
		AxisSeq:        axisSeq,
		DecodeSubband0: isRoot,
		Exponents:      exponents,
		Payload:        payloads,
	}
	if err := brick.DecodeBrick(b, lvl, extDims, decParams); err != nil {
		b.Release(d.pool)
		return nil, err
	}
	return b, nil
}

// loadExponents locates brickIndex's sub-channel chunk for subIdx (if one
// was ever written) and decodes its per-block exponent list. A nil,nil
// return means no sub-channel data exists yet for this subband — a valid
// outcome for a brick whose coefficients were all zero, or a progressive
// write that has not reached this subband.
func (d *Decoder) loadExponents(ctx context.Context, level int, brickIndex int64, subIdx, groupLog2, count int) ([]int32, error) {
	addr := address.Pack(level, brickIndex, groupLog2, subIdx, 0)
	raw, err := d.loadRecord(ctx, addr, address.ExponentFile, brickIndex)
	if err != nil || raw == nil {
		return nil, err
	}
	return channel.DecodeExponents(raw, count)
}

// loadChannelPayload locates brickIndex's bit-plane payload for
// (subIdx, emax), or nil if that channel was never written.
func (d *Decoder) loadChannelPayload(ctx context.Context, level int, brickIndex int64, subIdx int, emax int32, groupLog2 int) ([]byte, error) {
	addr := address.Pack(level, brickIndex, groupLog2, subIdx, int(emax))
	return d.loadRecord(ctx, addr, address.DataFile, brickIndex)
}

// loadRecord opens (or reuses from cache) the file addr maps to, finds
// the chunk entry matching addr exactly, and extracts brickIndex's record
// from it. Missing files are not an error here: a channel or sub-channel
// that was never written simply contributes nothing to the brick.
func (d *Decoder) loadRecord(ctx context.Context, addr address.Key, kind address.Kind, brickIndex int64) ([]byte, error) {
	path := address.Path(d.root, d.desc.Field, addr, kind)
	files, err := d.cache.OpenMany(ctx, []string{path})
	if err != nil {
		if errors.Is(err, errs.FileNotFound) {
			return nil, nil
		}
		return nil, err
	}

	f := files[path]
	for _, e := range f.Entries {
		if e.Addr != addr {
			continue
		}
		recs, err := channel.ParseChunk(f.Chunk(e))
		if err != nil {
			return nil, errs.Wrap(errs.ParseFailed, err)
		}
		for _, rec := range recs {
			if rec.BrickIndex == brickIndex {
				return rec.Payload, nil
			}
		}
	}
	return nil, nil
}
