package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrMissingBackend = errors.New("store: backend required")
	ErrReadOnly       = errors.New("store: write attempted in read-only transaction")
	ErrTxClosed       = errors.New("store: transaction already finished")
)

// Store is the typed table store. Mutating transactions are serialized;
// read-only transactions share a read lock.
type Store struct {
	backend Backend

	mu sync.RWMutex

	schemaMu sync.RWMutex
	schemas  map[TableID]Table
}

func New(backend Backend) (*Store, error) {
	if backend == nil {
		return nil, ErrMissingBackend
	}
	return &Store{
		backend: backend,
		schemas: make(map[TableID]Table),
	}, nil
}

// Register records table schemas. Registering the same layout twice is a no-op.
func (s *Store) Register(tables ...Table) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	for _, table := range tables {
		existing, ok := s.schemas[table.ID]
		if ok {
			if !existing.sameLayout(table) {
				return fmt.Errorf("%w: %s", ErrSchemaMismatch, table.Name)
			}
			continue
		}
		s.schemas[table.ID] = table
	}
	return nil
}

// Schema returns the registered schema for id.
func (s *Store) Schema(id TableID) (Table, bool) {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()
	table, ok := s.schemas[id]
	return table, ok
}

// Update runs fn in a writable transaction and commits when fn returns nil.
// Any error discards every buffered write.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(ctx, s, true)
	defer tx.finish()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx := newTx(ctx, s, false)
	defer tx.finish()
	return fn(tx)
}

// Tx buffers reads and writes for a single top-level call.
type Tx struct {
	ctx      context.Context
	store    *Store
	writable bool
	done     bool
	rows     map[string]*txRow
}

type txRow struct {
	id     RowID
	exists bool
	fields map[uint8][]byte
	dirty  map[uint8]struct{}
}

func newTx(ctx context.Context, s *Store, writable bool) *Tx {
	return &Tx{
		ctx:      ctx,
		store:    s,
		writable: writable,
		rows:     make(map[string]*txRow),
	}
}

// Context returns the context the transaction was opened with.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Writable reports whether writes are accepted.
func (tx *Tx) Writable() bool {
	return tx.writable
}

func (tx *Tx) row(id RowID) (*txRow, error) {
	if tx.done {
		return nil, ErrTxClosed
	}
	key := id.storageKey()
	if row, ok := tx.rows[key]; ok {
		return row, nil
	}
	if err := tx.ctx.Err(); err != nil {
		return nil, err
	}
	fields, exists, err := tx.store.backend.LoadRow(tx.ctx, id)
	if err != nil {
		return nil, fmt.Errorf("store: load row %s: %w", id.Table, err)
	}
	if fields == nil {
		fields = make(map[uint8][]byte)
	}
	row := &txRow{id: id, exists: exists, fields: fields}
	tx.rows[key] = row
	return row, nil
}

// SetField writes a single column of a row, creating the row if needed.
func (tx *Tx) SetField(table TableID, key Key, slot uint8, data []byte) error {
	if !tx.writable {
		return ErrReadOnly
	}
	schema, ok := tx.store.Schema(table)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := schema.validateField(slot, data); err != nil {
		return err
	}
	row, err := tx.row(RowID{Table: table, Key: key})
	if err != nil {
		return err
	}
	tx.put(row, slot, data)
	return nil
}

// SetRecord writes the leading len(fields) columns of a row.
func (tx *Tx) SetRecord(table TableID, key Key, fields [][]byte) error {
	if !tx.writable {
		return ErrReadOnly
	}
	schema, ok := tx.store.Schema(table)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if len(fields) > schema.FieldCount() {
		return fmt.Errorf("%w: %s has %d fields", ErrSlotOutOfRange, schema.Name, schema.FieldCount())
	}
	for slot, data := range fields {
		if err := schema.validateField(uint8(slot), data); err != nil {
			return err
		}
	}
	row, err := tx.row(RowID{Table: table, Key: key})
	if err != nil {
		return err
	}
	for slot, data := range fields {
		tx.put(row, uint8(slot), data)
	}
	return nil
}

func (tx *Tx) put(row *txRow, slot uint8, data []byte) {
	if row.dirty == nil {
		row.dirty = make(map[uint8]struct{})
	}
	row.fields[slot] = append([]byte(nil), data...)
	row.dirty[slot] = struct{}{}
	row.exists = true
}

// GetField returns the stored bytes or nil when the slot was never written.
func (tx *Tx) GetField(table TableID, key Key, slot uint8) ([]byte, error) {
	row, err := tx.row(RowID{Table: table, Key: key})
	if err != nil {
		return nil, err
	}
	data, ok := row.fields[slot]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// GetRecord returns fieldCount columns; missing slots are nil (zero value).
func (tx *Tx) GetRecord(table TableID, key Key, fieldCount int) ([][]byte, error) {
	row, err := tx.row(RowID{Table: table, Key: key})
	if err != nil {
		return nil, err
	}
	out := make([][]byte, fieldCount)
	for slot := 0; slot < fieldCount && slot < 256; slot++ {
		if data, ok := row.fields[uint8(slot)]; ok {
			out[slot] = append([]byte(nil), data...)
		}
	}
	return out, nil
}

// HasRecord reports whether any field of the row was ever written.
func (tx *Tx) HasRecord(table TableID, key Key) (bool, error) {
	row, err := tx.row(RowID{Table: table, Key: key})
	if err != nil {
		return false, err
	}
	return row.exists, nil
}

func (tx *Tx) commit() error {
	if tx.done {
		return ErrTxClosed
	}
	keys := make([]string, 0, len(tx.rows))
	for key, row := range tx.rows {
		if len(row.dirty) > 0 {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	writes := make([]RowWrite, 0, len(keys))
	for _, key := range keys {
		row := tx.rows[key]
		fields := make(map[uint8][]byte, len(row.dirty))
		for slot := range row.dirty {
			fields[slot] = row.fields[slot]
		}
		writes = append(writes, RowWrite{ID: row.id, Fields: fields})
	}
	if err := tx.store.backend.ApplyWrites(tx.ctx, writes); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (tx *Tx) finish() {
	tx.done = true
	tx.rows = nil
}
