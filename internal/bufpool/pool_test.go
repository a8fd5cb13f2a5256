package bufpool

import "testing"

func TestPool_GetPut(t *testing.T) {
	pool := New(1028)

	buf := pool.Get()
	if len(buf) != 1028 {
		t.Fatalf("expected length 1028, got %d", len(buf))
	}
	pool.Put(buf[:10])

	again := pool.Get()
	if len(again) != 1028 {
		t.Fatalf("expected resliced buffer of 1028, got %d", len(again))
	}
	if pool.BufSize() != 1028 {
		t.Fatalf("BufSize mismatch: %d", pool.BufSize())
	}
}

func TestPool_DropsSmallBuffers(t *testing.T) {
	pool := New(64)
	pool.Put(make([]byte, 16))
	for i := 0; i < 4; i++ {
		if buf := pool.Get(); len(buf) != 64 {
			t.Fatalf("expected 64-byte buffer, got %d", len(buf))
		}
	}
}

func TestPool_CountsAllocations(t *testing.T) {
	pool := New(32)
	a := pool.Get()
	b := pool.Get()
	if pool.Allocs() < 2 {
		t.Fatalf("expected at least 2 allocations, got %d", pool.Allocs())
	}
	pool.Put(a)
	pool.Put(b)
}

func TestPool_PanicsOnInvalidSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for zero size")
		}
	}()
	New(0)
}
