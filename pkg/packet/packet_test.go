package packet

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		id     byte
		header string
	}{
		{name: "plain", raw: []byte{0, 1, 't', 'e', 's', 't'}, id: 1, header: "test"},
		// Bit 1 is not reserved; on a Header it carries no meaning.
		{name: "last bit set", raw: []byte{0x02, 9, 'a', 'b'}, id: 9, header: "ab"},
		{name: "one byte name", raw: []byte{0, 3, 'x'}, id: 3, header: "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			h, ok := pkt.(Header)
			if !ok {
				t.Fatalf("expected Header, got %T", pkt)
			}
			if h.ID != tt.id || h.Name != tt.header {
				t.Fatalf("unexpected header: %+v", h)
			}
			if pkt.FileID() != tt.id {
				t.Fatalf("FileID mismatch: got %d", pkt.FileID())
			}
		})
	}
}

func TestDecodeData(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		id      byte
		number  uint16
		last    bool
		payload []byte
	}{
		{
			name:    "not last",
			raw:     []byte{1, 1, 0, 1, 'd', 'a', 't', 'a'},
			id:      1,
			number:  1,
			last:    false,
			payload: []byte("data"),
		},
		{
			name:    "last",
			raw:     []byte{3, 7, 0, 1, 'd', 'a', 't', 'a'},
			id:      7,
			number:  1,
			last:    true,
			payload: []byte("data"),
		},
		{
			name:    "big endian number",
			raw:     []byte{1, 2, 0x12, 0x34, 9},
			id:      2,
			number:  0x1234,
			payload: []byte{9},
		},
		{
			name:    "empty payload",
			raw:     []byte{1, 1, 0, 0},
			id:      1,
			number:  0,
			payload: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			d, ok := pkt.(Data)
			if !ok {
				t.Fatalf("expected Data, got %T", pkt)
			}
			if d.ID != tt.id || d.Number != tt.number || d.Last != tt.last {
				t.Fatalf("unexpected data: id=%d number=%d last=%v", d.ID, d.Number, d.Last)
			}
			if !bytes.Equal(d.Payload, tt.payload) {
				t.Fatalf("payload mismatch: got %v want %v", d.Payload, tt.payload)
			}
		})
	}
}

func TestDecodeLargePayload(t *testing.T) {
	raw := append([]byte{1, 1, 0, 1}, bytes.Repeat([]byte{'x'}, 1024)...)
	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := len(pkt.(Data).Payload); got != 1024 {
		t.Fatalf("payload length mismatch: got %d", got)
	}
}

func TestDecodeCopiesPayload(t *testing.T) {
	raw := []byte{1, 1, 0, 0, 'a', 'b'}
	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	raw[4] = 'z'
	if got := pkt.(Data).Payload; !bytes.Equal(got, []byte("ab")) {
		t.Fatalf("payload aliased input buffer: %q", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{name: "empty", raw: nil, want: ErrTooShort},
		{name: "two bytes", raw: []byte{0, 1}, want: ErrTooShort},
		{name: "data three bytes", raw: []byte{1, 1, 0}, want: ErrTooShort},
		{name: "reserved bits data", raw: []byte{0xFF, 1, 0, 0, 'd'}, want: ErrInvalidFormat},
		{name: "reserved bits header", raw: []byte{0x04, 1, 'a'}, want: ErrInvalidFormat},
		{name: "invalid utf8 name", raw: []byte{0, 1, 0xFF, 0xFE, 0xFD}, want: ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := Decode(tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v (packet %v)", tt.want, err, pkt)
			}
		})
	}
}

func TestDecodeIsPure(t *testing.T) {
	raw := []byte{3, 4, 0, 2, 1, 2, 3}
	first, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	second, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	a, b := first.(Data), second.(Data)
	if a.ID != b.ID || a.Number != b.Number || a.Last != b.Last || !bytes.Equal(a.Payload, b.Payload) {
		t.Fatalf("decode results differ: %+v vs %+v", a, b)
	}
}

func TestEncodeMatchesDecode(t *testing.T) {
	raw, err := Header{ID: 9, Name: "dir/ünïcode.txt"}.Marshal()
	if err != nil {
		t.Fatalf("Marshal header: %v", err)
	}
	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode header: %v", err)
	}
	if h := pkt.(Header); h.ID != 9 || h.Name != "dir/ünïcode.txt" {
		t.Fatalf("header mismatch: %+v", h)
	}

	raw = AppendData(nil, 3, 513, true, []byte{4, 5})
	if !bytes.Equal(raw, []byte{3, 3, 2, 1, 4, 5}) {
		t.Fatalf("unexpected data encoding: %v", raw)
	}
}

func TestAppendHeaderRejectsInvalidUTF8(t *testing.T) {
	if _, err := AppendHeader(nil, 1, string([]byte{0xFF})); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}
