package reassembly

import "testing"

func TestBitmapBasics(t *testing.T) {
	b := NewBitmap(10)
	if b.LenBits() != 10 {
		t.Fatalf("LenBits mismatch: got %d", b.LenBits())
	}
	b.Set(0)
	b.Set(3)
	b.Set(9)
	b.Set(10) // out of range, ignored

	if !b.Get(0) || !b.Get(3) || !b.Get(9) {
		t.Fatalf("expected bits to be set")
	}
	if b.Get(1) || b.Get(8) || b.Get(10) {
		t.Fatalf("unexpected bits set")
	}
	if count := b.CountBelow(16); count != 3 {
		t.Fatalf("CountBelow mismatch: got %d", count)
	}
	if count := b.CountBelow(9); count != 2 {
		t.Fatalf("CountBelow(9) mismatch: got %d", count)
	}
	if count := b.CountBelow(0); count != 0 {
		t.Fatalf("CountBelow(0) mismatch: got %d", count)
	}
}

func TestBitmapFirstUnset(t *testing.T) {
	b := NewBitmap(64)
	if got := b.FirstUnset(0); got != -1 {
		t.Fatalf("expected -1 for empty range, got %d", got)
	}
	if got := b.FirstUnset(5); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}

	for i := 0; i < 20; i++ {
		b.Set(i)
	}
	if got := b.FirstUnset(20); got != -1 {
		t.Fatalf("expected full prefix, got %d", got)
	}
	if got := b.FirstUnset(21); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}

	b.Set(20)
	b.Set(22)
	if got := b.FirstUnset(30); got != 21 {
		t.Fatalf("expected 21, got %d", got)
	}
	if got := b.FirstUnset(100); got != 21 {
		t.Fatalf("expected 21 with limit beyond size, got %d", got)
	}
}

func TestBitmapFirstUnsetBeyondSize(t *testing.T) {
	b := NewBitmap(8)
	for i := 0; i < 8; i++ {
		b.Set(i)
	}
	if got := b.FirstUnset(8); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
	if got := b.FirstUnset(9); got != 8 {
		t.Fatalf("expected 8, got %d", got)
	}

	var nilBitmap *Bitmap
	if got := nilBitmap.FirstUnset(3); got != 0 {
		t.Fatalf("expected 0 for nil bitmap, got %d", got)
	}
}
