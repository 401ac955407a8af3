package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

var (
	badgerRecordPrefix = []byte("r/")
	badgerFieldPrefix  = []byte("f/")
)

// BadgerBackend persists rows in a badger key space:
// "r/"+row marks existence, "f/"+row+slot holds a column value.
type BadgerBackend struct {
	db *badger.DB
}

func NewBadgerBackend(db *badger.DB) (*BadgerBackend, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &BadgerBackend{db: db}, nil
}

func badgerRecordKey(id RowID) []byte {
	return append(append([]byte(nil), badgerRecordPrefix...), id.storageKey()...)
}

func badgerFieldPrefixFor(id RowID) []byte {
	return append(append([]byte(nil), badgerFieldPrefix...), id.storageKey()...)
}

func (b *BadgerBackend) LoadRow(ctx context.Context, id RowID) (map[uint8][]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var (
		fields map[uint8][]byte
		exists bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerRecordKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		fields = make(map[uint8][]byte)

		prefix := badgerFieldPrefixFor(id)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != len(prefix)+1 {
				continue
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			fields[key[len(key)-1]] = value
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return fields, exists, nil
}

func (b *BadgerBackend) ApplyWrites(ctx context.Context, writes []RowWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, write := range writes {
			if err := txn.Set(badgerRecordKey(write.ID), []byte{1}); err != nil {
				return err
			}
			prefix := badgerFieldPrefixFor(write.ID)
			for slot, value := range write.Fields {
				key := append(append([]byte(nil), prefix...), slot)
				if err := txn.Set(key, append([]byte(nil), value...)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
