package store

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNegativeUint256 = errors.New("store: negative value cannot be encoded as uint256")
	ErrUint256Overflow = errors.New("store: value exceeds 256 bits")
	ErrValueOverflow   = errors.New("store: stored value overflows uint64")
	ErrMalformedField  = errors.New("store: malformed field value")
)

var (
	uint256Arguments = mustArguments("uint256")
	addressArguments = mustArguments("address")
	boolArguments    = mustArguments("bool")
	bytes32Arguments = mustArguments("bytes32")
)

func mustArguments(typeName string) abi.Arguments {
	abiType, err := abi.NewType(typeName, "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: abiType}}
}

// CheckUint256 reports whether v can be packed by EncodeUint256. A nil value
// encodes as zero.
func CheckUint256(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeUint256, v)
	}
	if v.BitLen() > 256 {
		return ErrUint256Overflow
	}
	return nil
}

// EncodeUint256 packs v as a single ABI word. Callers holding untrusted or
// computed values check them with CheckUint256 first; out of range values panic.
func EncodeUint256(v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	if err := CheckUint256(v); err != nil {
		panic(err)
	}
	packed, err := uint256Arguments.Pack(v)
	if err != nil {
		panic(err)
	}
	return packed
}

func EncodeUint64(v uint64) []byte {
	return EncodeUint256(new(big.Int).SetUint64(v))
}

func EncodeAddress(address common.Address) []byte {
	packed, err := addressArguments.Pack(address)
	if err != nil {
		panic(err)
	}
	return packed
}

func EncodeBool(v bool) []byte {
	packed, err := boolArguments.Pack(v)
	if err != nil {
		panic(err)
	}
	return packed
}

func EncodeHash(v common.Hash) []byte {
	packed, err := bytes32Arguments.Pack([32]byte(v))
	if err != nil {
		panic(err)
	}
	return packed
}

// EncodeString stores strings as raw UTF-8 bytes.
func EncodeString(v string) []byte {
	return []byte(v)
}

// DecodeUint256 unpacks an ABI word. Empty data decodes to zero.
func DecodeUint256(data []byte) (*big.Int, error) {
	if len(data) == 0 {
		return new(big.Int), nil
	}
	values, err := uint256Arguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedField, err)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, ErrMalformedField
	}
	return value, nil
}

func DecodeUint64(data []byte) (uint64, error) {
	value, err := DecodeUint256(data)
	if err != nil {
		return 0, err
	}
	if !value.IsUint64() {
		return 0, ErrValueOverflow
	}
	return value.Uint64(), nil
}

func DecodeAddress(data []byte) (common.Address, error) {
	if len(data) == 0 {
		return common.Address{}, nil
	}
	values, err := addressArguments.Unpack(data)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedField, err)
	}
	address, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, ErrMalformedField
	}
	return address, nil
}

func DecodeBool(data []byte) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	values, err := boolArguments.Unpack(data)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedField, err)
	}
	value, ok := values[0].(bool)
	if !ok {
		return false, ErrMalformedField
	}
	return value, nil
}

func DecodeHash(data []byte) (common.Hash, error) {
	if len(data) == 0 {
		return common.Hash{}, nil
	}
	values, err := bytes32Arguments.Unpack(data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrMalformedField, err)
	}
	value, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, ErrMalformedField
	}
	return common.Hash(value), nil
}

func DecodeString(data []byte) string {
	return string(data)
}

// Decoder reads typed values out of a record and keeps the first error.
type Decoder struct {
	fields [][]byte
	err    error
}

func NewDecoder(fields [][]byte) *Decoder {
	return &Decoder{fields: fields}
}

func (d *Decoder) field(slot int) []byte {
	if slot < 0 || slot >= len(d.fields) {
		return nil
	}
	return d.fields[slot]
}

func (d *Decoder) Uint256(slot int) *big.Int {
	value, err := DecodeUint256(d.field(slot))
	if err != nil {
		d.fail(slot, err)
		return new(big.Int)
	}
	return value
}

func (d *Decoder) Uint64(slot int) uint64 {
	value, err := DecodeUint64(d.field(slot))
	if err != nil {
		d.fail(slot, err)
	}
	return value
}

func (d *Decoder) Address(slot int) common.Address {
	value, err := DecodeAddress(d.field(slot))
	if err != nil {
		d.fail(slot, err)
	}
	return value
}

func (d *Decoder) Bool(slot int) bool {
	value, err := DecodeBool(d.field(slot))
	if err != nil {
		d.fail(slot, err)
	}
	return value
}

func (d *Decoder) Hash(slot int) common.Hash {
	value, err := DecodeHash(d.field(slot))
	if err != nil {
		d.fail(slot, err)
	}
	return value
}

func (d *Decoder) String(slot int) string {
	return DecodeString(d.field(slot))
}

// Err reports the first decoding failure.
func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) fail(slot int, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("slot %d: %w", slot, err)
	}
}
