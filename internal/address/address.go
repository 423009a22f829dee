// Package address implements the 64-bit packed addressing scheme and
// file-naming convention of spec.md §3/§4.8.
//
// Grounded on original_source/Source/Core/idx2Lookup.h, which packs the
// same four fields into a uint64 and derives directory names from a hash
// of its high bits; the packing here is a direct, explicit port (no
// macro-instantiated traversal stack is needed since Go lets the four
// fields be named struct members instead of bit-twiddled inline).
package address

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
)

// bit widths and shifts of the packed key, per spec.md §3.
const (
	bitPlaneBits = 12
	subLevelBits = 6
	brickIdxBits = 42
	levelBits    = 4

	bitPlaneShift = 0
	subLevelShift = bitPlaneBits
	brickIdxShift = bitPlaneBits + subLevelBits
	levelShift    = bitPlaneBits + subLevelBits + brickIdxBits

	bitPlaneMask = uint64(1)<<bitPlaneBits - 1
	subLevelMask = uint64(1)<<subLevelBits - 1
	brickIdxMask = uint64(1)<<brickIdxBits - 1
	levelMask    = uint64(1)<<levelBits - 1

	// bitPlane is a 12-bit two's-complement field.
	bitPlaneSignBit = int64(1) << (bitPlaneBits - 1)
)

// Key is a packed address: level (4 bits), brick-index-over-group (42
// bits), sub-level (6 bits), and bit-plane (12-bit two's complement).
type Key uint64

// Pack builds a file (or chunk, if groupLog2 is taken from BricksPerChunk
// instead of BricksPerFile) address key. brickIndex is the brick's linear Morton
// index at its level; groupLog2 is log2(BricksPerFile[level]) (or
// BricksPerChunk for a chunk key).
func Pack(level int, brickIndex int64, groupLog2 int, subLevel int, bitPlane int) Key {
	group := brickIndex >> uint(groupLog2)
	var k uint64
	k |= (uint64(level) & levelMask) << levelShift
	k |= (uint64(group) & brickIdxMask) << brickIdxShift
	k |= (uint64(subLevel) & subLevelMask) << subLevelShift
	k |= (encodeBitPlane(bitPlane) & bitPlaneMask) << bitPlaneShift
	return Key(k)
}

func encodeBitPlane(bp int) uint64 {
	return uint64(int64(bp)) & bitPlaneMask
}

func decodeBitPlane(field uint64) int {
	v := int64(field)
	if v >= bitPlaneSignBit {
		v -= bitPlaneSignBit << 1
	}
	return int(v)
}

// Level, BrickGroup, SubLevel, and BitPlane unpack the corresponding
// field from k; the round trip Unpack(Pack(...)) reproduces every field
// exactly (testable property 1 of spec.md §8), except that the original
// brickIndex's low groupLog2 bits are lost by design (BrickGroup is the
// brick index already shifted right by groupLog2).
func (k Key) Level() int       { return int((uint64(k) >> levelShift) & levelMask) }
func (k Key) BrickGroup() int64 { return int64((uint64(k) >> brickIdxShift) & brickIdxMask) }
func (k Key) SubLevel() int    { return int((uint64(k) >> subLevelShift) & subLevelMask) }
func (k Key) BitPlane() int    { return decodeBitPlane((uint64(k) >> bitPlaneShift) & bitPlaneMask) }

// TopBits returns the high 52 bits used for directory hashing (sub-level,
// level, and brick-group bits — everything except the bit-plane field).
func (k Key) TopBits() uint64 { return uint64(k) >> bitPlaneBits }

// dirHash splits a fnv.New64a hash of k's top bits into two bytes, used
// as the two directory-sharding components of the file path. A single
// multiplicative hash is enough here: the goal is only to keep any one
// directory from accumulating too many files, not cryptographic
// distribution (spec.md §9).
func dirHash(k Key) (hi, lo byte) {
	h := fnv.New64a()
	var b [8]byte
	top := k.TopBits()
	for i := 0; i < 8; i++ {
		b[i] = byte(top >> (8 * i))
	}
	_, _ = h.Write(b[:])
	sum := h.Sum64()
	return byte(sum >> 8), byte(sum)
}

// Kind distinguishes a data payload file from an exponent payload file.
type Kind int

const (
	DataFile Kind = iota
	ExponentFile
)

func (kind Kind) ext() string {
	if kind == ExponentFile {
		return ".bex"
	}
	return ".bin"
}

// Path builds the on-disk path for a file address, per spec.md §4.8:
// <root>/<field>/<level>/<hash(addr)[hi]>/<hash(addr)[lo]>/<addr-hex>.bin
func Path(root, field string, k Key, kind Kind) string {
	hi, lo := dirHash(k)
	return filepath.Join(
		root,
		field,
		fmt.Sprintf("%d", k.Level()),
		fmt.Sprintf("%02x", hi),
		fmt.Sprintf("%02x", lo),
		fmt.Sprintf("%016x%s", uint64(k), kind.ext()),
	)
}
