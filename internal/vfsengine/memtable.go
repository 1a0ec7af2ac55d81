package vfsengine

import "github.com/shibudb/vfsdb/internal/vfsvector"

// memtable is an insertion-order-preserving map from id to vector value,
// grounded on storage_manager.rs's IndexMap-backed memtable.
type memtable struct {
	order []uint64
	data  map[uint64]vfsvector.Value
}

func newMemtable() *memtable {
	return &memtable{data: make(map[uint64]vfsvector.Value)}
}

func (m *memtable) len() int { return len(m.order) }

func (m *memtable) get(id uint64) (vfsvector.Value, bool) {
	v, ok := m.data[id]
	return v, ok
}

func (m *memtable) put(id uint64, v vfsvector.Value) {
	if _, exists := m.data[id]; !exists {
		m.order = append(m.order, id)
	}
	m.data[id] = v
}

// popFront removes and returns the oldest entry. Must not be called on an
// empty memtable.
func (m *memtable) popFront() (uint64, vfsvector.Value) {
	id := m.order[0]
	v := m.data[id]
	m.order = m.order[1:]
	delete(m.data, id)
	return id, v
}
