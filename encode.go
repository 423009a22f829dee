package idx2

import (
	"os"
	"path/filepath"

	"github.com/hoang-dt/idx2/internal/address"
	"github.com/hoang-dt/idx2/internal/brick"
	"github.com/hoang-dt/idx2/internal/channel"
	"github.com/hoang-dt/idx2/internal/errs"
	"github.com/hoang-dt/idx2/internal/grid"
	"github.com/hoang-dt/idx2/internal/metadata"
	"github.com/hoang-dt/idx2/internal/morton"
	"github.com/hoang-dt/idx2/internal/store"
	"github.com/hoang-dt/idx2/internal/template"
	"github.com/hoang-dt/idx2/internal/v3"
	"github.com/hoang-dt/idx2/internal/wavelet"
)

// BrickCopier supplies one brick's samples to Encode. global is the
// brick's window in volume coordinates (its extended dims, which may run
// past the volume's true bounds at the far edge of each axis); local is
// always (0, global.Dims), the corresponding window inside dst. Copy
// fills dst in full — including any boundary replication needed where
// global spills past the volume — and reports the range of values it
// copied, so Encode can accumulate the descriptor's overall value range
// without a second pass.
type BrickCopier interface {
	Copy(global, local grid.Extent, dst []float64) (min, max float64, err error)
}

// Encode runs the forward pipeline over every brick of f's volume,
// walking levelSchedule's finest-to-coarsest order so each level above 0
// has its subband 0 ready before it runs (spec.md §4.6 step 4's
// parent/child promotion), registers every level's channels, flushes
// them to their store files, and writes the metadata descriptor last —
// so a reader never observes a metadata file pointing at channel files
// that were not fully written (distr1-distri's renameio-backed atomic
// writes give each individual file the same guarantee; writing metadata
// last extends it to the whole encode).
func Encode(f *File, p Params, copier BrickCopier) error {
	schedule, err := levelSchedule(f.Desc.NLevels)
	if err != nil {
		return err
	}

	extDims := brick.ExtDimsFor(f.Desc.BrickDims3)

	regs := make([]*channel.Registry, f.Desc.NLevels)
	subRegs := make([]*channel.Registry, f.Desc.NLevels)
	for lv := 0; lv < f.Desc.NLevels; lv++ {
		groupLog2 := v3.Log2Ceil(f.Desc.BricksPerFile[lv])
		regs[lv] = channel.NewRegistry(f.Desc.BricksPerChunk[lv], groupLog2)
		subRegs[lv] = channel.NewRegistry(f.Desc.BricksPerChunk[lv], groupLog2)
	}

	// parentBufs[lv][idx] holds a coarser level's brick, accumulated from
	// its children's promoted subband 0 before lv itself is encoded.
	// Level 0 instead gets its buffer straight from copier.
	parentBufs := make([]map[int64]*brick.Brick, f.Desc.NLevels)
	for lv := range parentBufs {
		parentBufs[lv] = make(map[int64]*brick.Brick)
	}

	valueMin, valueMax := 0.0, 0.0
	first := true

	for _, lv := range schedule {
		lvl := f.Desc.Template.Levels[lv]
		isRoot := lv == f.Desc.NLevels-1
		axisSeq := morton.AxisSequence([][]v3.Axis{lvl.Axes})
		norms := wavelet.ComputeNorms(len(lvl.Axes) + 1)
		n3 := f.Desc.NBricks3[lv]

		encParams := brick.EncodeParams{
			Level:          lv,
			Reg:            regs[lv],
			SubReg:         subRegs[lv],
			Norms:          norms,
			Accuracy:       p.Accuracy,
			MaxBitPlanes:   p.MaxBitPlanes,
			EncodeSubband0: isRoot,
			AxisSeq:        axisSeq,
		}

		var parentAxisSeq []v3.Axis
		if !isRoot {
			parentAxisSeq = morton.AxisSequence([][]v3.Axis{f.Desc.Template.Levels[lv+1].Axes})
		}

		total := brickIndexSpan(n3)
		for idx := int64(0); idx < total; idx++ {
			coord := morton.IndexToCoord3(axisSeq, idx)
			if coord.X >= n3.X || coord.Y >= n3.Y || coord.Z >= n3.Z {
				continue
			}

			var b *brick.Brick
			if lv == 0 {
				brickFrom := coord.Mul(f.Desc.BrickDims3)
				dst := f.pool.Get(int(extDims.Prod()))
				for i := range dst {
					dst[i] = 0
				}
				global := grid.NewExtent(brickFrom, extDims)
				local := grid.NewExtent(v3.Zero(), extDims)
				lo, hi, err := copier.Copy(global, local, dst)
				if err != nil {
					f.pool.Put(dst)
					return err
				}
				if first {
					valueMin, valueMax = lo, hi
					first = false
				} else {
					if lo < valueMin {
						valueMin = lo
					}
					if hi > valueMax {
						valueMax = hi
					}
				}
				b = &brick.Brick{Buf: dst, ExtDims: extDims}
			} else {
				var ok bool
				b, ok = parentBufs[lv][idx]
				if !ok {
					// No child ever contributed to this brick (a boundary
					// brick whose every child fell out of bounds); treat
					// its subband 0 as all-zero.
					b = brick.New(f.pool, extDims)
				}
				delete(parentBufs[lv], idx)
			}

			lowPass, lowPassGrid := brick.EncodeBrick(b, idx, lvl, extDims, encParams)

			if !isRoot {
				parentCoord := parentCoordOf(coord, lvl)
				parentIdx := morton.CoordToIndex3(parentAxisSeq, parentCoord)
				parent, ok := parentBufs[lv+1][parentIdx]
				if !ok {
					parent = brick.New(f.pool, extDims)
					parentBufs[lv+1][parentIdx] = parent
				}
				childOctant := v3.I3{X: coord.X % 2, Y: coord.Y % 2, Z: coord.Z % 2}
				brick.ScatterParentSubband(parent, lowPass, lowPassGrid.Dims, childOctant, lvl)
			}

			b.Release(f.pool)

			if f.Observer != nil {
				f.Observer.OnEncodeBrick(lv, idx)
			}
		}
	}

	f.Desc.ValueMin, f.Desc.ValueMax = valueMin, valueMax

	for lv := 0; lv < f.Desc.NLevels; lv++ {
		chunks, _ := regs[lv].FlushAll()
		_, subChunks := subRegs[lv].FlushAll()
		if err := writeChunkMap(p.Root, p.Field, address.DataFile, chunks, f.Observer); err != nil {
			return err
		}
		if err := writeSubChunkMap(p.Root, p.Field, address.ExponentFile, subChunks, f.Observer); err != nil {
			return err
		}
	}

	return writeMetadata(p.Root, p.Field, f.Desc)
}

// parentCoordOf maps a child brick coordinate at lvl to its parent's
// coordinate one level up: halved (floor) on every axis lvl touches,
// unchanged on every axis it does not — the inverse of the index math
// ScatterParentSubband/GatherChildSubband use for the octant offset.
func parentCoordOf(c v3.I3, lvl template.Level) v3.I3 {
	touched := map[v3.Axis]bool{}
	for _, ax := range lvl.Axes {
		touched[ax] = true
	}
	out := c
	if touched[v3.AxisX] {
		out.X = c.X / 2
	}
	if touched[v3.AxisY] {
		out.Y = c.Y / 2
	}
	if touched[v3.AxisZ] {
		out.Z = c.Z / 2
	}
	return out
}

// brickIndexSpan returns the span of linear Morton indices that cover
// n3's brick grid: the product of each axis's next-power-of-two extent,
// since axisSeq distributes one bit per axis per pass and so only
// indexes a power-of-two cube. Callers walk [0, span) in order and skip
// indices IndexToCoord3 maps outside n3, the same in-bounds test
// CountValidBlocks uses for blocks within a subband.
func brickIndexSpan(n3 v3.I3) int64 {
	return int64(v3.NextPow2(n3.X)) * int64(v3.NextPow2(n3.Y)) * int64(v3.NextPow2(n3.Z))
}

func writeChunkMap(root, field string, kind address.Kind, m map[channel.Key][]channel.Chunk, obs Observer) error {
	for _, chunks := range m {
		if err := writeChunks(root, field, kind, chunks, obs); err != nil {
			return err
		}
	}
	return nil
}

func writeSubChunkMap(root, field string, kind address.Kind, m map[channel.SubKey][]channel.Chunk, obs Observer) error {
	for _, chunks := range m {
		if err := writeChunks(root, field, kind, chunks, obs); err != nil {
			return err
		}
	}
	return nil
}

// writeChunks groups chunks by their target path (several chunks from
// the same channel can share one file once BricksPerFile spans more
// bricks than BricksPerChunk) and writes one file per group.
func writeChunks(root, field string, kind address.Kind, chunks []channel.Chunk, obs Observer) error {
	byPath := make(map[string][]channel.Chunk)
	for _, c := range chunks {
		path := address.Path(root, field, c.Addr, kind)
		byPath[path] = append(byPath[path], c)
	}
	for path, cs := range byPath {
		if err := store.WriteFile(path, cs); err != nil {
			return err
		}
		if obs != nil {
			n := 0
			for _, c := range cs {
				n += len(c.Payload)
			}
			obs.OnFlushChunk(path, n)
		}
	}
	return nil
}

func writeMetadata(root, field string, d metadata.Descriptor) error {
	path := filepath.Join(root, field, "metadata.txt")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.FileWriteFailed, err)
	}
	fh, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.FileWriteFailed, err)
	}
	defer fh.Close()
	return metadata.Write(fh, d)
}
