package store

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// TableID identifies a table. It is derived from the table namespace and name.
type TableID common.Hash

// NewTableID returns keccak256("tableId" + namespace + name).
func NewTableID(namespace, name string) TableID {
	return TableID(crypto.Keccak256Hash([]byte("tableId"), []byte(namespace), []byte(name)))
}

func (t TableID) Hex() string {
	return common.Hash(t).Hex()
}

func (t TableID) String() string {
	return t.Hex()
}

// Key is the ordered list of 32-byte words addressing a row.
type Key []common.Hash

// KeyOf builds a Key from the provided words.
func KeyOf(words ...common.Hash) Key {
	return Key(words)
}

// Bytes concatenates the key words.
func (k Key) Bytes() []byte {
	out := make([]byte, 0, len(k)*common.HashLength)
	for _, word := range k {
		out = append(out, word.Bytes()...)
	}
	return out
}

// Append returns a new key extended with the provided words.
func (k Key) Append(words ...common.Hash) Key {
	out := make(Key, 0, len(k)+len(words))
	out = append(out, k...)
	return append(out, words...)
}

// Uint64Word encodes v as a big-endian key word.
func Uint64Word(v uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(v))
}

// BigWord encodes a non-negative integer as a key word.
func BigWord(v *big.Int) common.Hash {
	if v == nil {
		return common.Hash{}
	}
	return common.BigToHash(v)
}

// AddressWord left-pads an address into a key word.
func AddressWord(address common.Address) common.Hash {
	return common.BytesToHash(address.Bytes())
}

// RowID addresses a single row.
type RowID struct {
	Table TableID
	Key   Key
}

func (r RowID) storageKey() string {
	buf := make([]byte, 0, common.HashLength*(len(r.Key)+1)+1)
	buf = append(buf, r.Table[:]...)
	buf = append(buf, byte(len(r.Key)))
	buf = append(buf, r.Key.Bytes()...)
	return string(buf)
}
