package store

import (
	"context"
	"sync"
)

// RowWrite carries the changed fields of a single row.
type RowWrite struct {
	ID     RowID
	Fields map[uint8][]byte
}

// Backend persists rows. ApplyWrites must be all-or-nothing.
type Backend interface {
	LoadRow(ctx context.Context, id RowID) (map[uint8][]byte, bool, error)
	ApplyWrites(ctx context.Context, writes []RowWrite) error
}

// MemoryBackend keeps rows in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	rows map[string]map[uint8][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rows: make(map[string]map[uint8][]byte)}
}

func (b *MemoryBackend) LoadRow(_ context.Context, id RowID) (map[uint8][]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	row, ok := b.rows[id.storageKey()]
	if !ok {
		return nil, false, nil
	}
	return copyFields(row), true, nil
}

func (b *MemoryBackend) ApplyWrites(_ context.Context, writes []RowWrite) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, write := range writes {
		key := write.ID.storageKey()
		row, ok := b.rows[key]
		if !ok {
			row = make(map[uint8][]byte, len(write.Fields))
			b.rows[key] = row
		}
		for slot, data := range write.Fields {
			row[slot] = append([]byte(nil), data...)
		}
	}
	return nil
}

func copyFields(fields map[uint8][]byte) map[uint8][]byte {
	out := make(map[uint8][]byte, len(fields))
	for slot, data := range fields {
		out[slot] = append([]byte(nil), data...)
	}
	return out
}
