// Package collection implements an insertion-ordered set of uint256 values
// with a per-value reference count, persisted in the table store.
package collection

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrNotMember     = errors.New("collection: value is not in the set")
	ErrIndexOutRange = errors.New("collection: index out of range")
)

// SetTable holds every counted set. A set is addressed by a caller-chosen key
// prefix; rows below it are the length header, the ordered elements and the
// per-value entries.
var SetTable = store.DefineTable("eno", "StoreU256SetTable",
	store.Field{Name: "Value", Type: store.FieldUint256},
	store.Field{Name: "Position", Type: store.FieldUint256},
)

var (
	lengthMarker  = crypto.Keccak256Hash([]byte("StoreU256Set.length"))
	elementMarker = crypto.Keccak256Hash([]byte("StoreU256Set.element"))
	entryMarker   = crypto.Keccak256Hash([]byte("StoreU256Set.entry"))
)

// Storage is the subset of store access a counted set needs.
type Storage interface {
	GetField(table store.TableID, key store.Key, slot uint8) ([]byte, error)
	SetField(table store.TableID, key store.Key, slot uint8, data []byte) error
}

// CountedSet is a handle on the set stored under Key.
type CountedSet struct {
	Key store.Key
}

func New(key store.Key) CountedSet {
	return CountedSet{Key: key}
}

func (s CountedSet) lengthKey() store.Key {
	return s.Key.Append(lengthMarker)
}

func (s CountedSet) elementKey(index uint64) store.Key {
	return s.Key.Append(elementMarker, store.Uint64Word(index))
}

func (s CountedSet) entryKey(value *big.Int) store.Key {
	return s.Key.Append(entryMarker, store.BigWord(value))
}

func readUint(st Storage, key store.Key, slot uint8) (*big.Int, error) {
	data, err := st.GetField(SetTable.ID, key, slot)
	if err != nil {
		return nil, err
	}
	return store.DecodeUint256(data)
}

func readUint64(st Storage, key store.Key, slot uint8) (uint64, error) {
	data, err := st.GetField(SetTable.ID, key, slot)
	if err != nil {
		return 0, err
	}
	return store.DecodeUint64(data)
}

// Len returns the number of distinct values.
func (s CountedSet) Len(st Storage) (uint64, error) {
	return readUint64(st, s.lengthKey(), 0)
}

// Count returns how many times value was added without being removed.
func (s CountedSet) Count(st Storage, value *big.Int) (uint64, error) {
	return readUint64(st, s.entryKey(value), 0)
}

func (s CountedSet) Contains(st Storage, value *big.Int) (bool, error) {
	count, err := s.Count(st, value)
	return count > 0, err
}

// At returns the distinct value at index in insertion order.
func (s CountedSet) At(st Storage, index uint64) (*big.Int, error) {
	length, err := s.Len(st)
	if err != nil {
		return nil, err
	}
	if index >= length {
		return nil, fmt.Errorf("%w: %d >= %d", ErrIndexOutRange, index, length)
	}
	return readUint(st, s.elementKey(index), 0)
}

// Add increments the count of value, appending it when first seen.
// It returns the new count.
func (s CountedSet) Add(st Storage, value *big.Int) (uint64, error) {
	entry := s.entryKey(value)
	count, err := readUint64(st, entry, 0)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		length, err := s.Len(st)
		if err != nil {
			return 0, err
		}
		if err := st.SetField(SetTable.ID, s.elementKey(length), 0, store.EncodeUint256(value)); err != nil {
			return 0, err
		}
		if err := st.SetField(SetTable.ID, entry, 1, store.EncodeUint64(length+1)); err != nil {
			return 0, err
		}
		if err := st.SetField(SetTable.ID, s.lengthKey(), 0, store.EncodeUint64(length+1)); err != nil {
			return 0, err
		}
	}
	count++
	if err := st.SetField(SetTable.ID, entry, 0, store.EncodeUint64(count)); err != nil {
		return 0, err
	}
	return count, nil
}

// Remove decrements the count of value. When it reaches zero the value is
// removed and later elements shift down one position, keeping their order.
// It returns the remaining count.
func (s CountedSet) Remove(st Storage, value *big.Int) (uint64, error) {
	entry := s.entryKey(value)
	count, err := readUint64(st, entry, 0)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotMember, value)
	}
	count--
	if err := st.SetField(SetTable.ID, entry, 0, store.EncodeUint64(count)); err != nil {
		return 0, err
	}
	if count > 0 {
		return count, nil
	}

	position, err := readUint64(st, entry, 1)
	if err != nil {
		return 0, err
	}
	length, err := s.Len(st)
	if err != nil {
		return 0, err
	}
	for index := position; index < length; index++ {
		next, err := readUint(st, s.elementKey(index), 0)
		if err != nil {
			return 0, err
		}
		if err := st.SetField(SetTable.ID, s.elementKey(index-1), 0, store.EncodeUint256(next)); err != nil {
			return 0, err
		}
		if err := st.SetField(SetTable.ID, s.entryKey(next), 1, store.EncodeUint64(index)); err != nil {
			return 0, err
		}
	}
	if err := st.SetField(SetTable.ID, s.elementKey(length-1), 0, store.EncodeUint64(0)); err != nil {
		return 0, err
	}
	if err := st.SetField(SetTable.ID, entry, 1, store.EncodeUint64(0)); err != nil {
		return 0, err
	}
	if err := st.SetField(SetTable.ID, s.lengthKey(), 0, store.EncodeUint64(length-1)); err != nil {
		return 0, err
	}
	return 0, nil
}

// Values returns every distinct value in insertion order.
func (s CountedSet) Values(st Storage) ([]*big.Int, error) {
	length, err := s.Len(st)
	if err != nil {
		return nil, err
	}
	return s.read(st, 0, length)
}

// Page returns up to limit values starting at offset. Out of range offsets
// yield an empty page and limit is clamped to the remaining length.
func (s CountedSet) Page(st Storage, offset, limit uint64) ([]*big.Int, error) {
	length, err := s.Len(st)
	if err != nil {
		return nil, err
	}
	if offset >= length {
		return []*big.Int{}, nil
	}
	end := length
	if limit < length-offset {
		end = offset + limit
	}
	return s.read(st, offset, end)
}

func (s CountedSet) read(st Storage, from, to uint64) ([]*big.Int, error) {
	values := make([]*big.Int, 0, to-from)
	for index := from; index < to; index++ {
		value, err := readUint(st, s.elementKey(index), 0)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}
