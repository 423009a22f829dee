package wavelet

import (
	"math"

	"github.com/hoang-dt/idx2/internal/grid"
	"github.com/hoang-dt/idx2/internal/template"
	"github.com/hoang-dt/idx2/internal/v3"
)

// Subband is one leaf of the binary tree a template Level splits a grid
// into: Grid is its local sub-lattice, LowHigh tags each axis as 0
// (scaling/low-pass) or 1 (wavelet/high-pass) for its most recent split.
// Subband 0, the all-scaling quadrant, is always the first element a
// planner returns.
type Subband struct {
	Grid     grid.Grid
	LowHigh  v3.I3
	Norm     float64
}

// BuildLevelSubbands applies lvl's axis passes (in lifting-application
// order) to a grid spanning dims, returning every resulting subband.
// Subband index 0 is the low-pass (all-scaling) quadrant, matching the
// channel numbering of spec.md §5: SubLevel 0 is the coarsest child.
func BuildLevelSubbands(lvl template.Level, dims v3.I3, norms Norms) []Subband {
	root := Subband{Grid: grid.New(v3.Zero(), dims), LowHigh: v3.Zero()}
	nodes := []Subband{root}
	depth := map[v3.Axis]int{}

	for _, ax := range lvl.ApplyOrder() {
		next := make([]Subband, 0, len(nodes)*2)
		for _, n := range nodes {
			scalingG, waveletG := grid.SplitAlternate(n.Grid, ax)

			sLH := n.LowHigh
			sLH.Set(ax, 0)
			wLH := n.LowHigh
			wLH.Set(ax, 1)

			next = append(next, Subband{Grid: scalingG, LowHigh: sLH})
			next = append(next, Subband{Grid: waveletG, LowHigh: wLH})
		}
		nodes = next
		depth[ax]++
	}

	for i := range nodes {
		nodes[i].Norm = norms.Combined(nodes[i].LowHigh, depth)
	}
	return nodes
}

// Norms holds precomputed per-axis-depth CDF 5/3 basis norms (spec.md
// §4.3's normalization table), one entry per recursion depth along a
// single axis.
//
// Grounded on original_source/Source/Core/Wavelet.h's GetCdf53NormsFast,
// which advances the same two running numerators (3 and 23) across
// levels instead of recomputing an inner product from scratch each time.
type Norms struct {
	Scaling []float64
	Wavelet []float64
}

// ComputeNorms precomputes scaling/wavelet norms for up to nLevels
// recursive splits along one axis.
func ComputeNorms(nLevels int) Norms {
	n := Norms{Scaling: make([]float64, nLevels), Wavelet: make([]float64, nLevels)}
	num1, num2 := 3.0, 23.0
	for i := 0; i < nLevels; i++ {
		n.Scaling[i] = math.Sqrt(num1 / math.Pow(2, float64(i+1)))
		num1 = num1*4 - 1
		n.Wavelet[i] = math.Sqrt(num2 / math.Pow(2, float64(i+5)))
		num2 = num2*4 - 33
	}
	return n
}

// Combined multiplies the per-axis norm factor for each of x, y, z: an
// axis never touched by this level contributes a factor of 1 (no
// transform occurred along it at this level), and a touched axis
// contributes its Scaling or Wavelet norm at the depth it was split to.
func (n Norms) Combined(lowHigh v3.I3, depth map[v3.Axis]int) float64 {
	out := 1.0
	for _, ax := range []v3.Axis{v3.AxisX, v3.AxisY, v3.AxisZ} {
		d := depth[ax]
		if d == 0 {
			continue
		}
		if lowHigh.Get(ax) == 0 {
			out *= n.Scaling[d-1]
		} else {
			out *= n.Wavelet[d-1]
		}
	}
	return out
}
