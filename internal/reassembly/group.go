package reassembly

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sheerbytes/segfs/pkg/packet"
)

// maxPackets is the size of the 16-bit packet number space.
const maxPackets = 1 << 16

var (
	// ErrMissingFileName indicates no Header has arrived for the transfer.
	ErrMissingFileName = errors.New("missing file name")
	// ErrMissingPacketCount indicates no Data packet flagged last has arrived.
	ErrMissingPacketCount = errors.New("missing packet count")
	// ErrMissingPacket is matched by every *MissingPacketError.
	ErrMissingPacket = errors.New("missing packet")
)

// MissingPacketError reports the lowest packet number absent at assembly time.
type MissingPacketError struct {
	Number uint16
}

func (e *MissingPacketError) Error() string {
	return fmt.Sprintf("missing packet: %d", e.Number)
}

func (e *MissingPacketError) Is(target error) bool {
	return target == ErrMissingPacket
}

// Summary is a point-in-time view of a group, used for progress and diagnostics.
type Summary struct {
	Name     string
	Named    bool
	Expected int // -1 until a last packet has been seen
	Received int
	Missing  int // Numbers below Expected not yet seen; -1 while Expected is unknown
	Bytes    int64
	Complete bool
}

// Group accumulates the packets of a single file transfer.
// It is not safe for concurrent use.
type Group struct {
	name     string
	named    bool
	expected int // -1 until a last packet has been seen

	fragments map[uint16][]byte
	seen      *Bitmap
	bytes     int64

	lastClaims map[uint16]struct{}
}

// NewGroup returns an empty group.
func NewGroup() *Group {
	return &Group{
		expected:   -1,
		fragments:  make(map[uint16][]byte),
		seen:       NewBitmap(maxPackets),
		lastClaims: make(map[uint16]struct{}),
	}
}

// Apply folds a packet into the group. A later Header replaces the name and a
// later last packet replaces the expected count; re-delivered Data replaces
// the stored payload.
func (g *Group) Apply(p packet.Packet) {
	switch p := p.(type) {
	case packet.Header:
		g.applyHeader(p)
	case packet.Data:
		g.applyData(p)
	}
}

func (g *Group) applyHeader(h packet.Header) {
	g.name = h.Name
	g.named = true
}

func (g *Group) applyData(d packet.Data) {
	if prev, ok := g.fragments[d.Number]; ok {
		g.bytes -= int64(len(prev))
	}
	g.fragments[d.Number] = d.Payload
	g.bytes += int64(len(d.Payload))
	g.seen.Set(int(d.Number))

	if d.Last {
		g.expected = int(d.Number) + 1
		g.lastClaims[d.Number] = struct{}{}
	}
}

// Name returns the file name and whether a Header has arrived.
func (g *Group) Name() (string, bool) {
	return g.name, g.named
}

// Named reports whether a Header has arrived.
func (g *Group) Named() bool {
	return g.named
}

// ExpectedCount returns the inferred packet count and whether it is known.
func (g *Group) ExpectedCount() (int, bool) {
	return g.expected, g.expected >= 0
}

// Received returns the number of distinct packet numbers stored.
func (g *Group) Received() int {
	return len(g.fragments)
}

// Bytes returns the total payload size currently stored.
func (g *Group) Bytes() int64 {
	return g.bytes
}

// LastClaims returns every distinct packet number that was flagged last, in
// ascending order. More than one entry means the sender disagreed with itself;
// the most recently applied claim is the one in effect.
func (g *Group) LastClaims() []uint16 {
	claims := make([]uint16, 0, len(g.lastClaims))
	for n := range g.lastClaims {
		claims = append(claims, n)
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i] < claims[j] })
	return claims
}

// Complete reports whether the expected count is known, exactly that many
// fragments are stored and every number below it is present.
func (g *Group) Complete() bool {
	if g.expected < 0 || len(g.fragments) != g.expected {
		return false
	}
	return g.seen.FirstUnset(g.expected) == -1
}

// MissingCount returns how many packet numbers below the expected count have
// not arrived, or -1 while the count is unknown. Fragments at or above the
// expected count, left by a superseded last claim, are not counted.
func (g *Group) MissingCount() int {
	if g.expected < 0 {
		return -1
	}
	return g.expected - g.seen.CountBelow(g.expected)
}

// Missing returns up to limit of the lowest packet numbers below the expected
// count that have not arrived. It returns nil while the count is unknown.
func (g *Group) Missing(limit int) []uint16 {
	if g.expected < 0 || limit <= 0 {
		return nil
	}
	var missing []uint16
	for i := 0; i < g.expected && len(missing) < limit; i++ {
		if !g.seen.Get(i) {
			missing = append(missing, uint16(i))
		}
	}
	return missing
}

// Summary returns a snapshot of the group's progress.
func (g *Group) Summary() Summary {
	return Summary{
		Name:     g.name,
		Named:    g.named,
		Expected: g.expected,
		Received: len(g.fragments),
		Missing:  g.MissingCount(),
		Bytes:    g.bytes,
		Complete: g.Complete(),
	}
}

// Assemble verifies the group and returns the file content with fragments in
// ascending packet-number order. Checks run in a fixed order: name, count,
// then coverage, reporting the lowest missing packet.
func (g *Group) Assemble() ([]byte, error) {
	if !g.named {
		return nil, ErrMissingFileName
	}
	if g.expected < 0 {
		return nil, ErrMissingPacketCount
	}
	if first := g.seen.FirstUnset(g.expected); first >= 0 {
		return nil, &MissingPacketError{Number: uint16(first)}
	}

	size := 0
	for i := 0; i < g.expected; i++ {
		size += len(g.fragments[uint16(i)])
	}
	out := make([]byte, 0, size)
	for i := 0; i < g.expected; i++ {
		out = append(out, g.fragments[uint16(i)]...)
	}
	return out, nil
}
