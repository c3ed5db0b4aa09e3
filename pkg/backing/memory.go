package backing

import (
	"io"
	"sync"
)

// Extent is a byte range [Offset, Offset+Length) written to a Memory volume.
type Extent struct {
	Offset int64
	Length int64
}

// Memory is a fixed-capacity Volume held in memory.
//
// Besides backing tests, it records every write extent so callers can check
// exactly which bytes a store operation touched.
//
// Thread Safety: Safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	data     []byte
	capacity int64
	writes   []Extent
	syncs    int
}

// NewMemory creates an empty in-memory volume of the given capacity.
func NewMemory(capacity int64) *Memory {
	return &Memory{capacity: capacity}
}

// ReadAt implements io.ReaderAt.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := off + int64(len(p))
	if end > m.capacity {
		return 0, ErrNoSpace
	}
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[off:], p)
	m.writes = append(m.writes, Extent{Offset: off, Length: int64(len(p))})
	return len(p), nil
}

// Sync implements Volume.
func (m *Memory) Sync() error {
	m.mu.Lock()
	m.syncs++
	m.mu.Unlock()
	return nil
}

// Capacity implements Volume.
func (m *Memory) Capacity() (int64, error) {
	return m.capacity, nil
}

// Name implements Volume.
func (m *Memory) Name() string {
	return "memory"
}

// Close implements Volume. The contents survive Close so a store can be
// reopened on the same Memory.
func (m *Memory) Close() error {
	return nil
}

// Syncs returns how many times Sync was called.
func (m *Memory) Syncs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncs
}

// Writes returns the extents written so far, in order.
func (m *Memory) Writes() []Extent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Extent, len(m.writes))
	copy(out, m.writes)
	return out
}

// ResetWrites forgets the recorded write extents.
func (m *Memory) ResetWrites() {
	m.mu.Lock()
	m.writes = nil
	m.mu.Unlock()
}

// Bytes returns a copy of the volume contents.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}
