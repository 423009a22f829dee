// Package wavelet implements the CDF 5/3 lifting transform and subband
// planner of spec.md §4.3/§4.4.
//
// Grounded directly on original_source/Source/Core/Wavelet.h's
// idx2_FLiftCdf53/idx2_ILiftCdf53 macros: this file is the generalization
// the macros were textually instantiated for (one function parametrized on
// an axis enum instead of three near-identical expansions), per spec.md
// §9's Design Note on macro-generated per-axis variants.
package wavelet

import (
	"github.com/hoang-dt/idx2/internal/assert"
	"github.com/hoang-dt/idx2/internal/errs"
	"github.com/hoang-dt/idx2/internal/grid"
	"github.com/hoang-dt/idx2/internal/v3"
)

// LiftOption gates the update step, as in spec.md §4.3.
type LiftOption int

const (
	Normal LiftOption = iota
	PartialUpdateLast
	NoUpdateLast
	NoUpdate
)

// Field is a flat row-major volume buffer big enough to index with
// grid.LinearOffset against Dims.
type Field struct {
	Buf  []float64
	Dims v3.I3
}

func (f *Field) at(p v3.I3) int64 { return grid.LinearOffset(p, f.Dims) }

func otherAxes(axis v3.Axis) [2]v3.Axis {
	switch axis {
	case v3.AxisX:
		return [2]v3.Axis{v3.AxisY, v3.AxisZ}
	case v3.AxisY:
		return [2]v3.Axis{v3.AxisX, v3.AxisZ}
	default:
		return [2]v3.Axis{v3.AxisX, v3.AxisY}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ForwardLiftAxis performs one forward CDF 5/3 lifting pass along axis, in
// place, over g (spec.md §4.3 steps 1-3). m is the exclusive logical end
// per axis (normally f.Dims): the extrapolated and last positions along
// axis are clamped to m-1. When the grid reaches m-1 with an even extent,
// the extrapolated value is stored in the last odd position itself.
func ForwardLiftAxis(f *Field, g grid.Grid, axis v3.Axis, m v3.I3, opt LiftOption) {
	P, D, S := g.From, g.Dims, g.Spacing
	d := D.Get(axis)
	if d == 1 {
		return
	}
	s := S.Get(axis)
	p := P.Get(axis)
	mAxis := m.Get(axis)

	assert.True(v3.IsPow2(S.X) && v3.IsPow2(S.Y) && v3.IsPow2(S.Z), "lifting: spacing must be a power of two")
	assert.True(d >= 2, "lifting: dims along lifted axis must be >= 2")
	assert.True(v3.IsEven(p), "lifting: from along lifted axis must be even")
	assert.True(p+s*(d-2) < mAxis, "lifting: grid exceeds logical bound on lifted axis")

	x0 := minInt(p+s*d, mAxis-1)
	x1 := minInt(p+s*(d-1), mAxis-1)
	x2 := p + s*(d-2)
	x3 := p + s*(d-3)
	ext := v3.IsEven(d)

	oAxes := otherAxes(axis)
	a1, a2 := oAxes[0], oAxes[1]

	for k2 := 0; k2 < D.Get(a2); k2++ {
		pos2 := minInt(P.Get(a2)+k2*S.Get(a2), m.Get(a2))
		for k1 := 0; k1 < D.Get(a1); k1++ {
			pos1 := minInt(P.Get(a1)+k1*S.Get(a1), m.Get(a1))

			at := func(xv int) int64 {
				pt := v3.I3{}
				pt.Set(axis, xv)
				pt.Set(a1, pos1)
				pt.Set(a2, pos2)
				return f.at(pt)
			}

			if ext {
				a := f.Buf[at(x2)]
				b := f.Buf[at(x1)]
				f.Buf[at(x0)] = 2*b - a
			}
			for x := p + s; x < p+s*(d-2); x += 2 * s {
				f.Buf[at(x)] -= (f.Buf[at(x-s)] + f.Buf[at(x+s)]) / 2
			}
			if !ext {
				f.Buf[at(x2)] -= (f.Buf[at(x1)] + f.Buf[at(x3)]) / 2
			} else if x0 != x1 {
				f.Buf[at(x1)] = 0
			}
			if opt != NoUpdate {
				for x := p + s; x < p+s*(d-2); x += 2 * s {
					val := f.Buf[at(x)]
					f.Buf[at(x-s)] += val / 4
					f.Buf[at(x+s)] += val / 4
				}
				if !ext {
					val := f.Buf[at(x2)]
					f.Buf[at(x3)] += val / 4
					switch opt {
					case Normal:
						f.Buf[at(x1)] += val / 4
					case PartialUpdateLast:
						f.Buf[at(x1)] = val / 4
					}
				}
			}
		}
	}
}

// InverseLiftAxis reverses ForwardLiftAxis: inverse update, inverse
// predict, then (when the axis was extrapolated) reconstruction of the
// last odd position. PartialUpdateLast has no defined inverse upstream
// (spec.md §9 Open Questions) and is rejected here rather than guessed.
func InverseLiftAxis(f *Field, g grid.Grid, axis v3.Axis, m v3.I3, opt LiftOption) error {
	if opt == PartialUpdateLast {
		return errs.E(errs.UnsupportedDataType, "wavelet: PartialUpdateLast has no defined inverse")
	}

	P, D, S := g.From, g.Dims, g.Spacing
	d := D.Get(axis)
	if d == 1 {
		return nil
	}
	s := S.Get(axis)
	p := P.Get(axis)
	mAxis := m.Get(axis)

	assert.True(v3.IsPow2(S.X) && v3.IsPow2(S.Y) && v3.IsPow2(S.Z), "lifting: spacing must be a power of two")
	assert.True(d >= 2, "lifting: dims along lifted axis must be >= 2")
	assert.True(v3.IsEven(p), "lifting: from along lifted axis must be even")
	assert.True(p+s*(d-2) < mAxis, "lifting: grid exceeds logical bound on lifted axis")

	x0 := minInt(p+s*d, mAxis-1)
	x1 := minInt(p+s*(d-1), mAxis-1)
	x2 := p + s*(d-2)
	x3 := p + s*(d-3)
	ext := v3.IsEven(d)

	oAxes := otherAxes(axis)
	a1, a2 := oAxes[0], oAxes[1]

	for k2 := 0; k2 < D.Get(a2); k2++ {
		pos2 := minInt(P.Get(a2)+k2*S.Get(a2), m.Get(a2))
		for k1 := 0; k1 < D.Get(a1); k1++ {
			pos1 := minInt(P.Get(a1)+k1*S.Get(a1), m.Get(a1))

			at := func(xv int) int64 {
				pt := v3.I3{}
				pt.Set(axis, xv)
				pt.Set(a1, pos1)
				pt.Set(a2, pos2)
				return f.at(pt)
			}

			if opt != NoUpdate {
				for x := p + s; x < p+s*(d-2); x += 2 * s {
					val := f.Buf[at(x)]
					f.Buf[at(x-s)] -= val / 4
					f.Buf[at(x+s)] -= val / 4
				}
				if !ext {
					val := f.Buf[at(x2)]
					f.Buf[at(x3)] -= val / 4
					if opt == Normal {
						f.Buf[at(x1)] -= val / 4
					}
				}
			}
			if ext {
				a := f.Buf[at(x0)]
				b := f.Buf[at(x2)]
				f.Buf[at(x1)] = (a + b) / 2
			}
			for x := p + s; x < p+s*(d-2); x += 2 * s {
				f.Buf[at(x)] += (f.Buf[at(x-s)] + f.Buf[at(x+s)]) / 2
			}
			if !ext {
				f.Buf[at(x2)] += (f.Buf[at(x1)] + f.Buf[at(x3)]) / 2
			}
		}
	}
	return nil
}
