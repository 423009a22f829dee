// Package v3 provides small 3D integer/float vector helpers shared across
// the grid, wavelet, and addressing packages. IDX2 only ever deals with
// volumes of up to three dimensions; lower-dimensional volumes simply carry
// 1 in the unused components (so they drop out of products/strides for
// free).
package v3

// I3 is a 3-component integer vector (brick/grid coordinates, dimensions,
// strides, ...).
type I3 struct {
	X, Y, Z int
}

// Axis names the three axes a lifting/traversal step can operate on.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "?"
	}
}

func Make(x, y, z int) I3 { return I3{x, y, z} }

func One() I3  { return I3{1, 1, 1} }
func Zero() I3 { return I3{0, 0, 0} }

func (v I3) Get(a Axis) int {
	switch a {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

func (v *I3) Set(a Axis, val int) {
	switch a {
	case AxisX:
		v.X = val
	case AxisY:
		v.Y = val
	default:
		v.Z = val
	}
}

func (v I3) Add(o I3) I3 { return I3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v I3) Sub(o I3) I3 { return I3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v I3) Mul(o I3) I3 { return I3{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }

// Div performs element-wise integer division, as used for parent brick
// coordinates (Brick3 / GroupBrick3).
func (v I3) Div(o I3) I3 {
	return I3{divFloor(v.X, o.X), divFloor(v.Y, o.Y), divFloor(v.Z, o.Z)}
}

// Mod performs element-wise remainder matching Div's floor semantics.
func (v I3) Mod(o I3) I3 {
	d := v.Div(o)
	return v.Sub(d.Mul(o))
}

func divFloor(a, b int) int {
	if b == 0 {
		return 0
	}
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func (v I3) Scale(s int) I3 { return I3{v.X * s, v.Y * s, v.Z * s} }

func (v I3) Prod() int64 { return int64(v.X) * int64(v.Y) * int64(v.Z) }

func Min(a, b I3) I3 {
	return I3{minInt(a.X, b.X), minInt(a.Y, b.Y), minInt(a.Z, b.Z)}
}

func Max(a, b I3) I3 {
	return I3{maxInt(a.X, b.X), maxInt(a.Y, b.Y), maxInt(a.Z, b.Z)}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Less is the strict component-wise "<" used by extent-intersection tests
// in the traversal macros (`Second.FileFrom3 < To(ExtentInFiles)`).
func Less(a, b I3) bool { return a.X < b.X && a.Y < b.Y && a.Z < b.Z }

// NumDims returns how many axes have an extent greater than one, i.e. the
// effective dimensionality of a block/grid whose Dims is d (d <= 3).
func NumDims(dims I3) int {
	n := 0
	if dims.X > 1 {
		n++
	}
	if dims.Y > 1 {
		n++
	}
	if dims.Z > 1 {
		n++
	}
	return n
}

// IsPow2 reports whether x is a positive power of two.
func IsPow2(x int) bool { return x > 0 && x&(x-1) == 0 }

// IsEven reports whether x is even.
func IsEven(x int) bool { return x%2 == 0 }

// Log2Ceil returns ceil(log2(x)) for x >= 1.
func Log2Ceil(x int) int {
	if x <= 1 {
		return 0
	}
	n := 0
	v := 1
	for v < x {
		v <<= 1
		n++
	}
	return n
}

// NextPow2 returns the smallest power of two >= x.
func NextPow2(x int) int {
	if x <= 1 {
		return 1
	}
	n := 1
	for n < x {
		n <<= 1
	}
	return n
}
