package reassembly

import "math/bits"

// Bitmap is a compact bitset recording which packet numbers have arrived.
type Bitmap struct {
	bits int
	data []byte
}

// NewBitmap allocates a bitmap sized for the given number of bits.
func NewBitmap(bits int) *Bitmap {
	if bits < 0 {
		bits = 0
	}
	return &Bitmap{
		bits: bits,
		data: make([]byte, (bits+7)/8),
	}
}

// LenBits returns the number of bits in the bitmap.
func (b *Bitmap) LenBits() int {
	if b == nil {
		return 0
	}
	return b.bits
}

// Set marks the bit at index i.
func (b *Bitmap) Set(i int) {
	if b == nil || i < 0 || i >= b.bits {
		return
	}
	b.data[i/8] |= 1 << uint(i%8)
}

// Get reports whether the bit at index i is set.
func (b *Bitmap) Get(i int) bool {
	if b == nil || i < 0 || i >= b.bits {
		return false
	}
	return b.data[i/8]&(1<<uint(i%8)) != 0
}

// CountBelow returns the number of set bits in [0, limit).
func (b *Bitmap) CountBelow(limit int) int {
	end := min(limit, b.LenBits())
	if end <= 0 {
		return 0
	}
	count := 0
	full := end / 8
	for _, v := range b.data[:full] {
		count += bits.OnesCount8(v)
	}
	for i := full * 8; i < end; i++ {
		if b.Get(i) {
			count++
		}
	}
	return count
}

// FirstUnset returns the lowest clear index below limit, or -1 when every
// index in [0, limit) is set. Indices beyond the bitmap count as clear.
func (b *Bitmap) FirstUnset(limit int) int {
	if limit <= 0 {
		return -1
	}
	bits := b.LenBits()
	end := limit
	if end > bits {
		end = bits
	}
	for i := 0; i < end; {
		if i%8 == 0 && i+8 <= end && b.data[i/8] == 0xFF {
			i += 8
			continue
		}
		if !b.Get(i) {
			return i
		}
		i++
	}
	if limit > bits {
		return bits
	}
	return -1
}
