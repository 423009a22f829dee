package alloc

import "testing"

func TestGetPutReuse(t *testing.T) {
	p := NewPool()
	a := p.Get(100)
	if len(a) != 100 {
		t.Fatalf("len = %d, want 100", len(a))
	}
	a[0] = 42
	p.Put(a)
	if p.Live() != 0 {
		t.Fatalf("Live() = %d, want 0", p.Live())
	}
	b := p.Get(100)
	if cap(b) != cap(a) {
		t.Fatal("expected Get to reuse the freed buffer's backing array")
	}
}

func TestDeallocAllResetsLiveCount(t *testing.T) {
	p := NewPool()
	p.Get(10)
	p.Get(20)
	if p.Live() != 2 {
		t.Fatalf("Live() = %d, want 2", p.Live())
	}
	p.DeallocAll()
	if p.Live() != 0 {
		t.Fatalf("Live() = %d, want 0 after DeallocAll", p.Live())
	}
}
