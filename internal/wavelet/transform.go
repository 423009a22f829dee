package wavelet

import (
	"github.com/hoang-dt/idx2/internal/grid"
	"github.com/hoang-dt/idx2/internal/template"
	"github.com/hoang-dt/idx2/internal/v3"
)

// ForwardCdf53Level runs every axis pass of one template level, in
// application order, over the whole of f. Each pass is a full separable
// 1D lift: it does not need to know about earlier passes within the same
// level, since CDF 5/3 lifting along one axis is linear and leaves the
// other axes' extents untouched.
func ForwardCdf53Level(f *Field, lvl template.Level, m v3.I3, opt LiftOption) {
	full := grid.New(v3.Zero(), f.Dims)
	for _, ax := range lvl.ApplyOrder() {
		ForwardLiftAxis(f, full, ax, m, opt)
	}
}

// InverseCdf53Level reverses ForwardCdf53Level: the same axes, in the
// opposite order.
func InverseCdf53Level(f *Field, lvl template.Level, m v3.I3, opt LiftOption) error {
	full := grid.New(v3.Zero(), f.Dims)
	order := lvl.ApplyOrder()
	for i := len(order) - 1; i >= 0; i-- {
		if err := InverseLiftAxis(f, full, order[i], m, opt); err != nil {
			return err
		}
	}
	return nil
}

// ForwardCdf53 applies every level of tpl in turn to f, Levels[0] first
// (the order the template string lists levels in; Encode treats
// Levels[0] as the finest level).
// Between levels, the caller is expected to restrict subsequent work to
// the subband-0 (all-scaling) quadrant of the previous level when
// building a pyramid; ForwardCdf53 itself does not recurse into
// subbands — that bookkeeping belongs to the brick pipeline, since it
// interacts with brick boundaries the transform has no notion of.
func ForwardCdf53(f *Field, tpl template.Template, m v3.I3, opt LiftOption) {
	for _, lvl := range tpl.Levels {
		ForwardCdf53Level(f, lvl, m, opt)
	}
}

// InverseCdf53 is the dual of ForwardCdf53, applying levels in reverse.
func InverseCdf53(f *Field, tpl template.Template, m v3.I3, opt LiftOption) error {
	for i := len(tpl.Levels) - 1; i >= 0; i-- {
		if err := InverseCdf53Level(f, tpl.Levels[i], m, opt); err != nil {
			return err
		}
	}
	return nil
}
