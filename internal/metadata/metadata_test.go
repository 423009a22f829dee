package metadata

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hoang-dt/idx2/internal/template"
	"github.com/hoang-dt/idx2/internal/v3"
)

func TestWriteReadRoundTrip(t *testing.T) {
	tpl, err := template.Parse(":210210:210:210")
	if err != nil {
		t.Fatal(err)
	}
	d := Descriptor{
		Field:          "temperature",
		Dims3:          v3.Make(512, 512, 256),
		DataType:       Float32,
		NLevels:        3,
		BrickDims3:     v3.Make(32, 32, 32),
		BricksPerChunk: []int{16, 16, 8},
		BricksPerFile:  []int{256, 256, 64},
		NBricks3:       []v3.I3{v3.Make(16, 16, 8), v3.Make(8, 8, 4), v3.Make(4, 4, 2)},
		Template:       tpl,
		GroupLevels:    true,
		GroupSubLevels: false,
		GroupBitPlanes: true,
		GroupBrick3:    v3.Make(2, 2, 2),
		ValueMin:       -40.5,
		ValueMax:       212.75,
		Version:        [2]int{1, 0},
	}

	var buf bytes.Buffer
	if err := Write(&buf, d); err != nil {
		t.Fatal(err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(d, got); diff != "" {
		t.Fatalf("round trip through Write/Read: diff (-want +got):\n%s", diff)
	}
}

func TestReadRejectsMalformedLine(t *testing.T) {
	_, err := Read(bytes.NewBufferString("not a form\n"))
	if err == nil {
		t.Fatal("expected an error for a malformed line")
	}
}
