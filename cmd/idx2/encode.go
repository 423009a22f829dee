package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	idx2 "github.com/hoang-dt/idx2"
	"github.com/hoang-dt/idx2/internal/grid"
	"github.com/hoang-dt/idx2/internal/metadata"
	"github.com/hoang-dt/idx2/internal/template"
	"github.com/hoang-dt/idx2/internal/v3"
)

var (
	encodeRoot         string
	encodeField        string
	encodeInput        string
	encodeDims         [3]int
	encodeBrickDims    [3]int
	encodeTemplate     string
	encodeDataType     string
	encodeAccuracy     float64
	encodeMaxBitPlanes int
)

func init() {
	f := encodeCmd.Flags()
	f.StringVar(&encodeRoot, "root", "", "store tree root directory")
	f.StringVar(&encodeField, "field", "", "field name")
	f.StringVar(&encodeInput, "input", "", "raw binary volume to encode, row-major z*ny*nx+y*nx+x")
	f.IntVar(&encodeDims[0], "dims-x", 0, "volume extent along x")
	f.IntVar(&encodeDims[1], "dims-y", 0, "volume extent along y")
	f.IntVar(&encodeDims[2], "dims-z", 0, "volume extent along z")
	f.IntVar(&encodeBrickDims[0], "brick-x", 0, "brick extent along x")
	f.IntVar(&encodeBrickDims[1], "brick-y", 0, "brick extent along y")
	f.IntVar(&encodeBrickDims[2], "brick-z", 0, "brick extent along z")
	f.StringVar(&encodeTemplate, "template", ":210", "transform template string")
	f.StringVar(&encodeDataType, "datatype", "f64", "element type: f32 or f64")
	f.Float64Var(&encodeAccuracy, "accuracy", 0, "bit-plane accuracy bound, 0 for full precision")
	f.IntVar(&encodeMaxBitPlanes, "max-bitplanes", 64, "maximum bit-planes per block")
	rootCmd.AddCommand(encodeCmd)
}

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "encode a raw binary volume into an IDX2 store tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		dt, err := parseDataType(encodeDataType)
		if err != nil {
			return err
		}
		tpl, err := template.Parse(encodeTemplate)
		if err != nil {
			return err
		}

		dims := v3.Make(encodeDims[0], encodeDims[1], encodeDims[2])
		brickDims := v3.Make(encodeBrickDims[0], encodeBrickDims[1], encodeBrickDims[2])

		raw, err := os.ReadFile(encodeInput)
		if err != nil {
			return err
		}

		var f idx2.File
		p := idx2.Params{
			Root:         encodeRoot,
			Field:        encodeField,
			Dims3:        dims,
			DataType:     dt,
			BrickDims3:   brickDims,
			Template:     tpl,
			Accuracy:     encodeAccuracy,
			MaxBitPlanes: encodeMaxBitPlanes,
		}
		if err := idx2.Init(&f, p); err != nil {
			return err
		}
		defer f.Destroy()

		copier := &flatFileCopier{dims: dims, dt: dt, raw: raw}
		if err := idx2.Encode(&f, p, copier); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "encoded %s/%s: value range [%g, %g]\n",
			encodeRoot, encodeField, f.Desc.ValueMin, f.Desc.ValueMax)
		return nil
	},
}

func parseDataType(s string) (metadata.DataType, error) {
	switch s {
	case "f32":
		return metadata.Float32, nil
	case "f64":
		return metadata.Float64, nil
	default:
		return 0, fmt.Errorf("idx2: unknown --datatype %q, want f32 or f64", s)
	}
}

// flatFileCopier implements idx2.BrickCopier over a raw, fully in-memory
// row-major volume, clamping out-of-bounds positions to the nearest
// in-bounds sample (the replication padding spec.md §3 expects at the
// volume's boundary).
type flatFileCopier struct {
	dims v3.I3
	dt   metadata.DataType
	raw  []byte
}

func (c *flatFileCopier) elemSize() int64 {
	if c.dt == metadata.Float32 {
		return 4
	}
	return 8
}

func (c *flatFileCopier) at(p v3.I3) float64 {
	clamp := func(v, max int) int {
		if v < 0 {
			return 0
		}
		if v > max {
			return max
		}
		return v
	}
	p = v3.I3{X: clamp(p.X, c.dims.X-1), Y: clamp(p.Y, c.dims.Y-1), Z: clamp(p.Z, c.dims.Z-1)}
	off := grid.LinearOffset(p, c.dims) * c.elemSize()
	if c.dt == metadata.Float32 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(c.raw[off : off+4])))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(c.raw[off : off+8]))
}

func (c *flatFileCopier) Copy(global, local grid.Extent, dst []float64) (float64, float64, error) {
	min, max := math.Inf(1), math.Inf(-1)
	grid.Iterate(v3.Zero(), global.Dims, v3.One(), func(p v3.I3) {
		v := c.at(global.From.Add(p))
		dst[grid.LinearOffset(p, global.Dims)] = v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	})
	return min, max, nil
}
