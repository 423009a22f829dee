// Package morton implements the Morton (Z-order) brick enumeration of
// spec.md §5.1: bricks inside a chunk or file are visited in an order
// derived from the transform template's axis sequence, not a plain
// round-robin interleave, so that sibling bricks created by the same
// lifting passes land next to each other on disk.
//
// Grounded on original_source/Source/Core/idx2Lookup.h's
// idx2_BrickTraverse/idx2_ChunkTraverse/idx2_FileTraverse macros, which
// walk a linear index one template digit at a time rather than
// interleaving bits uniformly across x, y, z.
package morton

import "github.com/hoang-dt/idx2/internal/v3"

// AxisSequence flattens a transform template into the single ordered list
// of axis steps used to distribute the bits of a linear brick index
// across x, y, z: level 0's passes first, in the order the template string
// lists them (the reverse of template.Level.ApplyOrder), then level 1's,
// and so on.
func AxisSequence(levels [][]v3.Axis) []v3.Axis {
	var seq []v3.Axis
	for _, lvl := range levels {
		seq = append(seq, lvl...)
	}
	return seq
}

// IndexToCoord3 distributes the bits of index across x, y, z following
// seq: the i-th step in seq consumes the i-th least-significant bit of
// index and ORs it into the next free bit position of the named axis.
func IndexToCoord3(seq []v3.Axis, index int64) v3.I3 {
	var c v3.I3
	var nextBit [3]uint
	for _, ax := range seq {
		bit := index & 1
		index >>= 1
		shift := nextBit[ax]
		nextBit[ax]++
		cur := c.Get(ax)
		c.Set(ax, cur|int(bit)<<shift)
	}
	return c
}

// CoordToIndex3 is the inverse of IndexToCoord3.
func CoordToIndex3(seq []v3.Axis, c v3.I3) int64 {
	var consumed [3]uint
	var index int64
	for i, ax := range seq {
		shift := consumed[ax]
		consumed[ax]++
		bit := (c.Get(ax) >> shift) & 1
		index |= int64(bit) << uint(i)
	}
	return index
}

// Encode3 is the plain bitwise Morton (Z-order) interleave of a 3D
// coordinate (21 bits per axis), independent of any transform template.
func Encode3(c v3.I3) uint64 {
	return spread(uint64(c.X)) | spread(uint64(c.Y))<<1 | spread(uint64(c.Z))<<2
}

// Decode3 is the inverse of Encode3.
func Decode3(m uint64) v3.I3 {
	return v3.I3{
		X: int(compact(m)),
		Y: int(compact(m >> 1)),
		Z: int(compact(m >> 2)),
	}
}

// spread inserts two zero bits after every bit of x's low 21 bits, the
// standard 3D Morton bit-spreading trick.
func spread(x uint64) uint64 {
	x &= 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}

// compact is the inverse of spread.
func compact(x uint64) uint64 {
	x &= 0x1249249249249249
	x = (x | x>>2) & 0x10c30c30c30c30c3
	x = (x | x>>4) & 0x100f00f00f00f00f
	x = (x | x>>8) & 0x1f0000ff0000ff
	x = (x | x>>16) & 0x1f00000000ffff
	x = (x | x>>32) & 0x1fffff
	return x
}
