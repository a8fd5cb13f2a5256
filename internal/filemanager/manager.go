package filemanager

import (
	"context"
	"fmt"
	"sort"

	"github.com/sheerbytes/segfs/internal/reassembly"
	"github.com/sheerbytes/segfs/internal/store"
	"github.com/sheerbytes/segfs/pkg/packet"
)

// FileSummary is a group summary tagged with its file id.
type FileSummary struct {
	ID byte
	reassembly.Summary
}

// Manager routes packets to one reassembly group per file id.
// It holds the state of a single receive session and is not safe for
// concurrent use; callers sharing it across goroutines must lock around it.
type Manager struct {
	files map[byte]*reassembly.Group
}

// New returns an empty manager.
func New() *Manager {
	return &Manager{files: make(map[byte]*reassembly.Group)}
}

// Route applies p to the group for its file id, creating the group on first
// sight, and returns that group.
func (m *Manager) Route(p packet.Packet) *reassembly.Group {
	id := p.FileID()
	g, ok := m.files[id]
	if !ok {
		g = reassembly.NewGroup()
		m.files[id] = g
	}
	g.Apply(p)
	return g
}

// AllComplete reports whether at least one transfer has been seen and every
// transfer is both named and complete.
func (m *Manager) AllComplete() bool {
	if len(m.files) == 0 {
		return false
	}
	for _, g := range m.files {
		if !g.Named() || !g.Complete() {
			return false
		}
	}
	return true
}

// Group returns the group for a file id.
func (m *Manager) Group(id byte) (*reassembly.Group, bool) {
	g, ok := m.files[id]
	return g, ok
}

// Insert replaces the group for a file id.
func (m *Manager) Insert(id byte, g *reassembly.Group) {
	m.files[id] = g
}

// Len returns the number of transfers seen.
func (m *Manager) Len() int {
	return len(m.files)
}

// Reset drops all session state.
func (m *Manager) Reset() {
	m.files = make(map[byte]*reassembly.Group)
}

// IDs returns the known file ids in ascending order.
func (m *Manager) IDs() []byte {
	ids := make([]byte, 0, len(m.files))
	for id := range m.files {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Summaries returns a summary per transfer, ordered by file id.
func (m *Manager) Summaries() []FileSummary {
	ids := m.IDs()
	out := make([]FileSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, FileSummary{ID: id, Summary: m.files[id].Summary()})
	}
	return out
}

// FinalizeAll assembles every transfer in file-id order and writes it to st.
// It stops at the first failure; files written before it are kept.
func (m *Manager) FinalizeAll(ctx context.Context, st store.Store) error {
	for _, id := range m.IDs() {
		g := m.files[id]
		data, err := g.Assemble()
		if err != nil {
			return fmt.Errorf("file %d: %w", id, err)
		}
		name, _ := g.Name()
		if err := st.Put(ctx, name, data); err != nil {
			return fmt.Errorf("write file %d (%s): %w", id, name, err)
		}
	}
	return nil
}
