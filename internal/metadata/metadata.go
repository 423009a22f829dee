// Package metadata implements the human-readable descriptor file of
// spec.md §6: field name, dimensions, element type, level/brick layout,
// the transform template, grouping flags, and the observed value range.
//
// Grounded on distr1-distri/internal/squashfs's superblock
// reader/writer for the discipline (explicit field-by-field
// marshal/unmarshal, defensive parsing with named errors), adapted from
// a fixed binary layout to the s-expression-like textual format spec.md
// §6 calls for — closer in spirit to a small Lisp/META-II config than a
// squashfs superblock, so the format itself is bespoke to §6's
// description rather than ported from any one teacher file.
package metadata

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hoang-dt/idx2/internal/errs"
	"github.com/hoang-dt/idx2/internal/template"
	"github.com/hoang-dt/idx2/internal/v3"
)

// DataType names the supported element types (spec.md §3: T in {f32,
// f64}).
type DataType int

const (
	Float32 DataType = iota
	Float64
)

func (d DataType) String() string {
	if d == Float32 {
		return "f32"
	}
	return "f64"
}

func parseDataType(s string) (DataType, error) {
	switch s {
	case "f32":
		return Float32, nil
	case "f64":
		return Float64, nil
	default:
		return 0, errs.E(errs.ParseFailed, "metadata: unknown data type %q", s)
	}
}

// Descriptor is the full metadata record written at end-of-encode and
// read at start-of-decode.
type Descriptor struct {
	Field    string
	Dims3    v3.I3
	DataType DataType

	NLevels        int
	BrickDims3     v3.I3
	BricksPerChunk []int // one entry per level
	BricksPerFile  []int // one entry per level
	NBricks3       []v3.I3

	Template template.Template

	GroupLevels    bool
	GroupSubLevels bool
	GroupBitPlanes bool
	GroupBrick3    v3.I3

	ValueMin, ValueMax float64
	Version            [2]int // major, minor
}

// Write serializes d in the s-expression-like textual form of spec.md
// §6: one `(key value...)` form per line.
func Write(w io.Writer, d Descriptor) error {
	bw := bufio.NewWriter(w)
	writeLine(bw, "field", d.Field)
	writeLine(bw, "dims3", v3fmt(d.Dims3))
	writeLine(bw, "datatype", d.DataType.String())
	writeLine(bw, "nlevels", strconv.Itoa(d.NLevels))
	writeLine(bw, "brickdims3", v3fmt(d.BrickDims3))
	writeLine(bw, "bricksperchunk", intsFmt(d.BricksPerChunk))
	writeLine(bw, "bricksperfile", intsFmt(d.BricksPerFile))
	for i, n := range d.NBricks3 {
		writeLine(bw, "nbricks3", fmt.Sprintf("%d %s", i, v3fmt(n)))
	}
	writeLine(bw, "template", d.Template.String())
	writeLine(bw, "grouplevels", boolFmt(d.GroupLevels))
	writeLine(bw, "groupsublevels", boolFmt(d.GroupSubLevels))
	writeLine(bw, "groupbitplanes", boolFmt(d.GroupBitPlanes))
	writeLine(bw, "groupbrick3", v3fmt(d.GroupBrick3))
	writeLine(bw, "valuerange", fmt.Sprintf("%g %g", d.ValueMin, d.ValueMax))
	writeLine(bw, "version", fmt.Sprintf("%d %d", d.Version[0], d.Version[1]))
	return bw.Flush()
}

func writeLine(w *bufio.Writer, key, val string) {
	fmt.Fprintf(w, "(%s %s)\n", key, val)
}

func v3fmt(v v3.I3) string { return fmt.Sprintf("%d %d %d", v.X, v.Y, v.Z) }

func intsFmt(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, " ")
}

func boolFmt(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Read parses the form Write produces. Unknown keys are ignored, so a
// future field can be added without breaking old readers.
func Read(r io.Reader) (Descriptor, error) {
	var d Descriptor
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "(") || !strings.HasSuffix(line, ")") {
			return Descriptor{}, errs.E(errs.SyntaxError, "metadata: malformed line %q", line)
		}
		body := line[1 : len(line)-1]
		fields := strings.Fields(body)
		if len(fields) == 0 {
			return Descriptor{}, errs.E(errs.SyntaxError, "metadata: empty form")
		}
		key, rest := fields[0], fields[1:]
		if err := applyField(&d, key, rest); err != nil {
			return Descriptor{}, err
		}
	}
	if err := sc.Err(); err != nil {
		return Descriptor{}, errs.Wrap(errs.FileReadFailed, err)
	}
	return d, nil
}

func applyField(d *Descriptor, key string, vals []string) error {
	switch key {
	case "field":
		d.Field = strings.Join(vals, " ")
	case "dims3":
		v, err := parseV3(vals)
		if err != nil {
			return err
		}
		d.Dims3 = v
	case "datatype":
		dt, err := parseDataType(vals[0])
		if err != nil {
			return err
		}
		d.DataType = dt
	case "nlevels":
		n, err := strconv.Atoi(vals[0])
		if err != nil {
			return errs.Wrap(errs.ParseFailed, err)
		}
		d.NLevels = n
	case "brickdims3":
		v, err := parseV3(vals)
		if err != nil {
			return err
		}
		d.BrickDims3 = v
	case "bricksperchunk":
		xs, err := parseInts(vals)
		if err != nil {
			return err
		}
		d.BricksPerChunk = xs
	case "bricksperfile":
		xs, err := parseInts(vals)
		if err != nil {
			return err
		}
		d.BricksPerFile = xs
	case "nbricks3":
		if len(vals) != 4 {
			return errs.E(errs.SyntaxError, "metadata: nbricks3 wants 4 fields, got %d", len(vals))
		}
		idx, err := strconv.Atoi(vals[0])
		if err != nil {
			return errs.Wrap(errs.ParseFailed, err)
		}
		v, err := parseV3(vals[1:])
		if err != nil {
			return err
		}
		for len(d.NBricks3) <= idx {
			d.NBricks3 = append(d.NBricks3, v3.Zero())
		}
		d.NBricks3[idx] = v
	case "template":
		t, err := template.Parse(strings.Join(vals, ""))
		if err != nil {
			return err
		}
		d.Template = t
	case "grouplevels":
		d.GroupLevels = vals[0] == "1"
	case "groupsublevels":
		d.GroupSubLevels = vals[0] == "1"
	case "groupbitplanes":
		d.GroupBitPlanes = vals[0] == "1"
	case "groupbrick3":
		v, err := parseV3(vals)
		if err != nil {
			return err
		}
		d.GroupBrick3 = v
	case "valuerange":
		if len(vals) != 2 {
			return errs.E(errs.SyntaxError, "metadata: valuerange wants 2 fields")
		}
		lo, err1 := strconv.ParseFloat(vals[0], 64)
		hi, err2 := strconv.ParseFloat(vals[1], 64)
		if err1 != nil || err2 != nil {
			return errs.E(errs.ParseFailed, "metadata: bad valuerange %v", vals)
		}
		d.ValueMin, d.ValueMax = lo, hi
	case "version":
		if len(vals) != 2 {
			return errs.E(errs.SyntaxError, "metadata: version wants 2 fields")
		}
		maj, err1 := strconv.Atoi(vals[0])
		min, err2 := strconv.Atoi(vals[1])
		if err1 != nil || err2 != nil {
			return errs.E(errs.ParseFailed, "metadata: bad version %v", vals)
		}
		d.Version = [2]int{maj, min}
	}
	return nil
}

func parseV3(vals []string) (v3.I3, error) {
	if len(vals) != 3 {
		return v3.I3{}, errs.E(errs.SyntaxError, "metadata: expected 3 integers, got %d", len(vals))
	}
	x, err1 := strconv.Atoi(vals[0])
	y, err2 := strconv.Atoi(vals[1])
	z, err3 := strconv.Atoi(vals[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return v3.I3{}, errs.E(errs.ParseFailed, "metadata: bad vector %v", vals)
	}
	return v3.Make(x, y, z), nil
}

func parseInts(vals []string) ([]int, error) {
	out := make([]int, len(vals))
	for i, v := range vals {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errs.Wrap(errs.ParseFailed, err)
		}
		out[i] = n
	}
	return out, nil
}
