package channel

import "testing"

func TestAppendBlockFlushesOnChunkBoundary(t *testing.T) {
	c := NewChannel(Key{Level: 0, SubLevel: 1, BitPlane: 3}, 4, 8)
	for i := int64(0); i < 10; i++ {
		c.AppendBlock(i, []byte{byte(i)})
	}
	chunks := c.Flush()
	// bricks 0-3, 4-7, 8-9: three chunks.
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Payload) == 0 || len(chunks[2].Payload) == 0 {
		t.Fatal("expected non-empty chunk payloads")
	}
}

func TestAppendBlockMergesSameBrick(t *testing.T) {
	c := NewChannel(Key{Level: 0, SubLevel: 0, BitPlane: 0}, 100, 8)
	c.AppendBlock(5, []byte{1, 2})
	c.AppendBlock(5, []byte{3, 4})
	chunks := c.Flush()
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSubChannelExponentsShareOneChunk(t *testing.T) {
	s := NewSubChannel(SubKey{Level: 1, SubLevel: 2}, 4, 8)
	s.AppendExponents(0, []int32{-5, 10, 0})
	s.AppendExponents(1, []int32{3})
	chunks := s.Flush()
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestParseChunkRoundTrip(t *testing.T) {
	c := NewChannel(Key{Level: 0, SubLevel: 0, BitPlane: 2}, 100, 8)
	c.AppendBlock(3, []byte{1, 2, 3})
	c.AppendBlock(7, []byte{4, 5})
	c.AppendBlock(7, []byte{6})
	chunks := c.Flush()
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	records, err := ParseChunk(chunks[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].BrickIndex != 3 || string(records[0].Payload) != "\x01\x02\x03" {
		t.Fatalf("record 0 mismatch: %+v", records[0])
	}
	if records[1].BrickIndex != 7 || string(records[1].Payload) != "\x04\x05\x06" {
		t.Fatalf("record 1 mismatch: %+v", records[1])
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 1000, -1000, 1 << 20, -(1 << 20)} {
		if got := unzigzag(zigzag(v)); got != v {
			t.Fatalf("zigzag round trip(%d) = %d", v, got)
		}
	}
}
