// Package idx2 is the thin root package exposing the library surface of
// spec.md §6 over the internal/ components: Init/OutputGrid/Encode/Decode/
// Destroy against a metadata.Descriptor-backed store tree, mirroring
// distr1-distri/distri.go's role as a small root package that wires its
// internal/ tree into a usable API rather than doing any work itself.
package idx2

import (
	"github.com/hoang-dt/idx2/internal/alloc"
	"github.com/hoang-dt/idx2/internal/errs"
	"github.com/hoang-dt/idx2/internal/grid"
	"github.com/hoang-dt/idx2/internal/metadata"
	"github.com/hoang-dt/idx2/internal/template"
	"github.com/hoang-dt/idx2/internal/v3"
)

// Params configures one field's encode or decode, the Go form of idx2's
// params argument (spec.md §6).
type Params struct {
	// Root is the store tree's root directory (spec.md §4.8's <root>).
	Root  string
	Field string

	Dims3      v3.I3
	DataType   metadata.DataType
	BrickDims3 v3.I3
	Template   template.Template

	// Accuracy bounds the block codec's bit-plane budget (spec.md §4.5);
	// 0 requests full precision.
	Accuracy     float64
	MaxBitPlanes int

	// BricksPerChunk and BricksPerFile are per-level chunking knobs; nil
	// defaults to one brick per chunk/file (the simplest, always-valid
	// grouping).
	BricksPerChunk []int
	BricksPerFile  []int

	// DecodeExtent restricts Decode (and OutputGrid) to the bricks that
	// intersect a sub-region of the volume, spec.md §1's "a client may
	// request an arbitrary sub-extent at an arbitrary resolution level".
	// HasDecodeExtent false (the zero value) requests the whole volume.
	DecodeExtent    grid.Extent
	HasDecodeExtent bool

	GroupLevels    bool
	GroupSubLevels bool
	GroupBitPlanes bool
}

// File is an opened field: its derived metadata.Descriptor, buffer pool,
// and observer, shared by Encode and Decode.
type File struct {
	Params   Params
	Desc     metadata.Descriptor
	Observer Observer

	pool *alloc.Pool
}

// Init validates p and derives f's Descriptor (per-level brick counts,
// chunk/file grouping defaults). It does not touch disk; Encode writes
// the metadata file once encoding succeeds.
func Init(f *File, p Params) error {
	if len(p.Template.Levels) == 0 {
		return errs.E(errs.IncompatibleMetadata, "idx2: empty transform template")
	}
	if p.BrickDims3.X <= 0 || p.BrickDims3.Y <= 0 || p.BrickDims3.Z <= 0 {
		return errs.E(errs.InvalidBrickDimensions, "idx2: brick dims %+v must be positive", p.BrickDims3)
	}
	if p.Dims3.X <= 0 || p.Dims3.Y <= 0 || p.Dims3.Z <= 0 {
		return errs.E(errs.InvalidBrickDimensions, "idx2: dims %+v must be positive", p.Dims3)
	}

	// The volume edge need not land on a brick boundary: the last brick
	// per axis is simply cropped to whatever real samples remain
	// (spec.md §3's replication padding covers the rest), so the brick
	// count is a ceiling, not an exact, division.
	nLevels := len(p.Template.Levels)
	nBricks3 := make([]v3.I3, nLevels)
	nBricks3[0] = v3.I3{
		X: ceilDiv(p.Dims3.X, p.BrickDims3.X),
		Y: ceilDiv(p.Dims3.Y, p.BrickDims3.Y),
		Z: ceilDiv(p.Dims3.Z, p.BrickDims3.Z),
	}
	for lv := 1; lv < nLevels; lv++ {
		nBricks3[lv] = octantShrink(nBricks3[lv-1], p.Template.Levels[lv-1])
	}

	bpc := p.BricksPerChunk
	if bpc == nil {
		bpc = onesPerLevel(nLevels)
	}
	bpf := p.BricksPerFile
	if bpf == nil {
		bpf = onesPerLevel(nLevels)
	}

	f.Params = p
	f.Desc = metadata.Descriptor{
		Field:          p.Field,
		Dims3:          p.Dims3,
		DataType:       p.DataType,
		NLevels:        nLevels,
		BrickDims3:     p.BrickDims3,
		BricksPerChunk: bpc,
		BricksPerFile:  bpf,
		NBricks3:       nBricks3,
		Template:       p.Template,
		GroupLevels:    p.GroupLevels,
		GroupSubLevels: p.GroupSubLevels,
		GroupBitPlanes: p.GroupBitPlanes,
		Version:        [2]int{1, 0},
	}
	f.pool = alloc.NewPool()
	if f.Observer == nil {
		f.Observer = NewLogrusObserver(nil)
	}
	return nil
}

// octantShrink halves nBricks3 along every axis lvl actually transforms
// (the parent brick grid is coarser only where the level split that
// axis), rounding up so a trailing odd brick still gets a parent.
func octantShrink(n3 v3.I3, lvl template.Level) v3.I3 {
	touched := map[v3.Axis]bool{}
	for _, ax := range lvl.Axes {
		touched[ax] = true
	}
	out := n3
	if touched[v3.AxisX] {
		out.X = (n3.X + 1) / 2
	}
	if touched[v3.AxisY] {
		out.Y = (n3.Y + 1) / 2
	}
	if touched[v3.AxisZ] {
		out.Z = (n3.Z + 1) / 2
	}
	return out
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func onesPerLevel(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// OutputGrid returns the grid a decode of p's requested extent against f
// would actually cover, cropped to the volume's true bounds.
func (f *File) OutputGrid(p Params) (grid.Grid, error) {
	full := grid.New(v3.Zero(), f.Desc.Dims3)
	req := grid.NewExtent(v3.Zero(), f.Desc.Dims3)
	if p.HasDecodeExtent {
		req = grid.CropExtent(p.DecodeExtent, req)
	}
	return grid.Crop(full, req), nil
}

// Destroy releases f's buffer pool. Per spec.md §5, this is the only
// teardown a File needs: its pool has no other resources (file handles
// live in the short-lived store.Cache an Encode/Decode call owns, not on
// File itself).
func (f *File) Destroy() error {
	f.pool = nil
	return nil
}
