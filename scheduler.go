package idx2

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/hoang-dt/idx2/internal/errs"
)

// levelSchedule returns the order Encode/Decode should visit nLevels
// pyramid levels in, finest (0) to coarsest (nLevels-1): every level
// above 0 depends on the level below it supplying its subband-0 input
// (DESIGN.md's cross-level promotion note), so the schedule is always
// just increasing level order. It is built as a real dependency graph
// and run through topo.Sort — the same validate-before-run discipline
// internal/batch/batch.go uses for its package build graph, via
// gonum.org/v1/gonum/graph/simple and graph/topo — so a future change
// that adds more than one edge per level (e.g. a level depending on two
// coarser neighbors for boundary bricks) still gets its cycles caught
// here rather than silently mis-scheduled.
func levelSchedule(nLevels int) ([]int, error) {
	if nLevels <= 0 {
		return nil, errs.E(errs.IncompatibleMetadata, "idx2: nLevels must be positive, got %d", nLevels)
	}

	g := simple.NewDirectedGraph()
	for lv := 0; lv < nLevels; lv++ {
		g.AddNode(simple.Node(lv))
	}
	for lv := 1; lv < nLevels; lv++ {
		// lv depends on lv-1: lv's subband 0 comes from lv-1's own
		// reconstruction.
		g.SetEdge(g.NewEdge(simple.Node(lv-1), simple.Node(lv)))
	}

	ordered, err := topo.Sort(g)
	if err != nil {
		return nil, errs.E(errs.IncompatibleMetadata, "idx2: level dependency graph has a cycle: %v", err)
	}

	out := make([]int, len(ordered))
	for i, n := range ordered {
		out[i] = int(n.ID())
	}
	return out, nil
}
