// Package grid implements grid algebra (spec.md §4.2): strided
// axis-aligned sub-regions of a volume, plus crop/split/merge.
//
// Grounded on original_source/Source/Core/Wavelet.h's use of
// (From, Dims, Spacing) grids for every lifting call, generalized from the
// C++ `grid` struct.
package grid

import "github.com/hoang-dt/idx2/internal/v3"

// Grid is the (From, Dims, Spacing) triple of spec.md §3: a regular
// sub-lattice of a volume. Invariant: From + Spacing*(Dims-1) lies within
// the enclosing volume.
type Grid struct {
	From    v3.I3
	Dims    v3.I3
	Spacing v3.I3
}

// New builds a grid with unit spacing.
func New(from, dims v3.I3) Grid {
	return Grid{From: from, Dims: dims, Spacing: v3.One()}
}

// Extent is a simple axis-aligned box (From, Dims), used for requests and
// for the traversal extents in internal/address.
type Extent struct {
	From v3.I3
	Dims v3.I3
}

func NewExtent(from, dims v3.I3) Extent { return Extent{From: from, Dims: dims} }

// To returns the exclusive upper corner (From + Dims).
func (e Extent) To() v3.I3 { return e.From.Add(e.Dims) }

// Crop returns the largest sub-grid of g contained in extent e.
func Crop(g Grid, e Extent) Grid {
	gTo := g.From.Add(g.Spacing.Mul(v3.I3{
		X: maxi(g.Dims.X-1, 0),
		Y: maxi(g.Dims.Y-1, 0),
		Z: maxi(g.Dims.Z-1, 0),
	}))
	lo := v3.Max(g.From, e.From)
	hi := v3.Min(gTo, e.To().Sub(v3.One()))

	var out Grid
	out.Spacing = g.Spacing
	out.From = alignUp(lo, g.From, g.Spacing)
	if hi.X < out.From.X || hi.Y < out.From.Y || hi.Z < out.From.Z {
		return Grid{From: out.From, Dims: v3.Zero(), Spacing: g.Spacing}
	}
	out.Dims = v3.I3{
		X: dimsBetween(out.From.X, hi.X, g.Spacing.X),
		Y: dimsBetween(out.From.Y, hi.Y, g.Spacing.Y),
		Z: dimsBetween(out.From.Z, hi.Z, g.Spacing.Z),
	}
	return out
}

// CropExtent crops an Extent to another Extent (used for bounding boxes of
// requests against the volume's true extent).
func CropExtent(a, b Extent) Extent {
	lo := v3.Max(a.From, b.From)
	hi := v3.Min(a.To(), b.To())
	dims := hi.Sub(lo)
	if dims.X < 0 || dims.Y < 0 || dims.Z < 0 {
		return Extent{From: lo, Dims: v3.Zero()}
	}
	return Extent{From: lo, Dims: dims}
}

func alignUp(pos, from v3.I3, spacing v3.I3) v3.I3 {
	return v3.I3{
		X: alignUp1(pos.X, from.X, spacing.X),
		Y: alignUp1(pos.Y, from.Y, spacing.Y),
		Z: alignUp1(pos.Z, from.Z, spacing.Z),
	}
}

func alignUp1(pos, from, spacing int) int {
	if spacing <= 0 {
		spacing = 1
	}
	d := pos - from
	if d <= 0 {
		return from
	}
	r := d % spacing
	if r != 0 {
		d += spacing - r
	}
	return from + d
}

func dimsBetween(from, to, spacing int) int {
	if spacing <= 0 {
		spacing = 1
	}
	if to < from {
		return 0
	}
	return (to-from)/spacing + 1
}

// SplitAlternate partitions g along axis into an even ("Scaling") half and
// an odd ("Wavelet") half, the first step of one level of CDF 5/3 lifting.
func SplitAlternate(g Grid, axis v3.Axis) (scaling, wavelet Grid) {
	scaling, wavelet = g, g
	d := g.Dims.Get(axis)
	s := g.Spacing.Get(axis)

	scalingDims := (d + 1) / 2
	waveletDims := d / 2

	scaling.Dims.Set(axis, scalingDims)
	scaling.Spacing.Set(axis, s*2)

	wavelet.Dims.Set(axis, waveletDims)
	wavelet.Spacing.Set(axis, s*2)
	wFrom := g.From
	wFrom.Set(axis, g.From.Get(axis)+s)
	wavelet.From = wFrom

	return scaling, wavelet
}

// MergeSubbands forms the enclosing grid of two subbands produced by one
// lifting split (the dual of SplitAlternate).
func MergeSubbands(a, b Grid) Grid {
	from := v3.Min(a.From, b.From)
	// The enclosing grid runs at half the child spacing (one lifting level
	// coarser) and spans both children's extents.
	spacing := v3.I3{
		X: a.Spacing.X / 2,
		Y: a.Spacing.Y / 2,
		Z: a.Spacing.Z / 2,
	}
	if spacing.X == 0 {
		spacing.X = 1
	}
	if spacing.Y == 0 {
		spacing.Y = 1
	}
	if spacing.Z == 0 {
		spacing.Z = 1
	}
	to := v3.Max(lastPos(a), lastPos(b))
	dims := v3.I3{
		X: dimsBetween(from.X, to.X, spacing.X),
		Y: dimsBetween(from.Y, to.Y, spacing.Y),
		Z: dimsBetween(from.Z, to.Z, spacing.Z),
	}
	return Grid{From: from, Dims: dims, Spacing: spacing}
}

func lastPos(g Grid) v3.I3 {
	return g.From.Add(g.Spacing.Mul(v3.I3{
		X: maxi(g.Dims.X-1, 0),
		Y: maxi(g.Dims.Y-1, 0),
		Z: maxi(g.Dims.Z-1, 0),
	}))
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Position maps a local index (0, 0, 0) .. (Dims-1) inside g to its
// actual position in the enclosing volume.
func (g Grid) Position(localIdx v3.I3) v3.I3 {
	return g.From.Add(g.Spacing.Mul(localIdx))
}

// LinearOffset returns the linear offset of a point inside a volume of
// dimensions n, following spec.md's z*Ny*Nx + y*Nx + x convention.
func LinearOffset(p, n v3.I3) int64 {
	return int64(p.Z)*int64(n.Y)*int64(n.X) + int64(p.Y)*int64(n.X) + int64(p.X)
}

// Iterate calls fn for every point in [from, from+dims) with the given
// step, in z-major, y, x order (matching the C++ idx2_BeginFor3 macros).
func Iterate(from, dims, step v3.I3, fn func(p v3.I3)) {
	for z := 0; z < dims.Z; z++ {
		for y := 0; y < dims.Y; y++ {
			for x := 0; x < dims.X; x++ {
				fn(v3.I3{
					X: from.X + x*step.X,
					Y: from.Y + y*step.Y,
					Z: from.Z + z*step.Z,
				})
			}
		}
	}
}
