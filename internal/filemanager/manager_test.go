package filemanager

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sheerbytes/segfs/internal/reassembly"
	"github.com/sheerbytes/segfs/internal/store"
	"github.com/sheerbytes/segfs/pkg/packet"
)

type memStore struct {
	files  map[string][]byte
	order  []string
	failOn string
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte)}
}

var errDiskFull = errors.New("disk full")

func (s *memStore) Put(ctx context.Context, name string, data []byte) error {
	if name == s.failOn {
		return errDiskFull
	}
	s.files[name] = append([]byte(nil), data...)
	s.order = append(s.order, name)
	return nil
}

func (s *memStore) Location() string { return "memory" }

func scenario() []packet.Packet {
	return []packet.Packet{
		packet.Header{ID: 1, Name: "a.txt"},
		packet.Data{ID: 1, Number: 0, Payload: []byte{1, 2, 3}},
		packet.Data{ID: 1, Number: 1, Last: true, Payload: []byte{4, 5, 6}},
	}
}

func TestEmptyManagerNotComplete(t *testing.T) {
	m := New()
	if m.AllComplete() {
		t.Fatalf("empty manager must not be complete")
	}
}

func TestEndToEndWritesFile(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewDirStore(dir)
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	m := New()
	for _, p := range scenario() {
		m.Route(p)
	}
	if !m.AllComplete() {
		t.Fatalf("expected all transfers complete")
	}
	if err := m.FinalizeAll(context.Background(), st); err != nil {
		t.Fatalf("FinalizeAll: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("content mismatch: %v", got)
	}
}

func TestReverseOrderSameOutput(t *testing.T) {
	pkts := scenario()
	m := New()
	for i := len(pkts) - 1; i >= 0; i-- {
		m.Route(pkts[i])
		if i > 0 && m.AllComplete() {
			t.Fatalf("complete before header arrived")
		}
	}
	if !m.AllComplete() {
		t.Fatalf("expected all transfers complete")
	}

	st := newMemStore()
	if err := m.FinalizeAll(context.Background(), st); err != nil {
		t.Fatalf("FinalizeAll: %v", err)
	}
	if !bytes.Equal(st.files["a.txt"], []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("content mismatch: %v", st.files["a.txt"])
	}
}

func TestIncompleteTransfer(t *testing.T) {
	m := New()
	m.Route(packet.Header{ID: 1, Name: "test_file"})
	m.Route(packet.Data{ID: 1, Number: 0, Payload: []byte{1, 2, 3}})

	if m.AllComplete() {
		t.Fatalf("expected incomplete")
	}
	g, ok := m.Group(1)
	if !ok {
		t.Fatalf("expected group for id 1")
	}
	if name, _ := g.Name(); name != "test_file" {
		t.Fatalf("name mismatch: %q", name)
	}
	if g.Received() != 1 {
		t.Fatalf("expected 1 fragment, got %d", g.Received())
	}
	if s := g.Summary(); s.Bytes != 3 || s.Missing != -1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestMultiplexedTransfers(t *testing.T) {
	m := New()
	steps := []packet.Packet{
		packet.Data{ID: 2, Number: 1, Last: true, Payload: []byte("BB")},
		packet.Header{ID: 1, Name: "one.bin"},
		packet.Data{ID: 1, Number: 1, Payload: []byte("bb")},
		packet.Header{ID: 2, Name: "two.bin"},
		packet.Data{ID: 1, Number: 0, Payload: []byte("aa")},
		packet.Data{ID: 2, Number: 0, Payload: []byte("AA")},
		packet.Data{ID: 1, Number: 2, Last: true, Payload: []byte("cc")},
	}
	for i, p := range steps {
		m.Route(p)
		if i < len(steps)-1 && m.AllComplete() {
			t.Fatalf("complete too early at step %d", i)
		}
	}
	if !m.AllComplete() {
		t.Fatalf("expected all complete")
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 transfers, got %d", m.Len())
	}

	st := newMemStore()
	if err := m.FinalizeAll(context.Background(), st); err != nil {
		t.Fatalf("FinalizeAll: %v", err)
	}
	if got := string(st.files["one.bin"]); got != "aabbcc" {
		t.Fatalf("one.bin mismatch: %q", got)
	}
	if got := string(st.files["two.bin"]); got != "AABB" {
		t.Fatalf("two.bin mismatch: %q", got)
	}
	if len(st.order) != 2 || st.order[0] != "one.bin" {
		t.Fatalf("expected file-id order, got %v", st.order)
	}
}

func TestUnnamedTransferBlocksCompletion(t *testing.T) {
	m := New()
	m.Route(packet.Data{ID: 5, Number: 0, Last: true, Payload: []byte{1}})
	if m.AllComplete() {
		t.Fatalf("unnamed transfer must not count as complete")
	}
	err := m.FinalizeAll(context.Background(), newMemStore())
	if !errors.Is(err, reassembly.ErrMissingFileName) {
		t.Fatalf("expected ErrMissingFileName, got %v", err)
	}
}

func TestFinalizeAllStopsAtFirstError(t *testing.T) {
	m := New()
	for _, id := range []byte{1, 2, 3} {
		m.Route(packet.Header{ID: id, Name: string(rune('a'+id-1)) + ".txt"})
		m.Route(packet.Data{ID: id, Number: 0, Last: true, Payload: []byte{id}})
	}

	st := newMemStore()
	st.failOn = "b.txt"
	err := m.FinalizeAll(context.Background(), st)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected disk full error, got %v", err)
	}
	if _, ok := st.files["a.txt"]; !ok {
		t.Fatalf("earlier artifact should be kept")
	}
	if _, ok := st.files["c.txt"]; ok {
		t.Fatalf("later artifact should not be written")
	}
}

func TestFinalizeAllReportsMissingPacket(t *testing.T) {
	m := New()
	g := reassembly.NewGroup()
	g.Apply(packet.Header{ID: 1, Name: "gap"})
	g.Apply(packet.Data{ID: 1, Number: 0})
	g.Apply(packet.Data{ID: 1, Number: 2, Last: true})
	m.Insert(1, g)

	err := m.FinalizeAll(context.Background(), newMemStore())
	var missing *reassembly.MissingPacketError
	if !errors.As(err, &missing) || missing.Number != 1 {
		t.Fatalf("expected MissingPacket(1), got %v", err)
	}
}

func TestSummariesAndReset(t *testing.T) {
	m := New()
	m.Route(packet.Header{ID: 9, Name: "z"})
	m.Route(packet.Header{ID: 3, Name: "c"})

	sums := m.Summaries()
	if len(sums) != 2 || sums[0].ID != 3 || sums[1].ID != 9 {
		t.Fatalf("unexpected summaries: %+v", sums)
	}
	if sums[0].Name != "c" || sums[0].Expected != -1 {
		t.Fatalf("unexpected summary: %+v", sums[0])
	}

	m.Reset()
	if m.Len() != 0 || m.AllComplete() {
		t.Fatalf("expected empty manager after reset")
	}
}
