package store

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownTable      = errors.New("store: table is not registered")
	ErrSlotOutOfRange    = errors.New("store: field slot outside table schema")
	ErrInvalidFieldValue = errors.New("store: field value does not match schema type")
	ErrSchemaMismatch    = errors.New("store: table already registered with a different schema")
)

// FieldType is the declared type of a table column.
type FieldType uint8

const (
	FieldUint256 FieldType = iota + 1
	FieldAddress
	FieldBool
	FieldBytes32
	FieldString
)

func (t FieldType) String() string {
	switch t {
	case FieldUint256:
		return "uint256"
	case FieldAddress:
		return "address"
	case FieldBool:
		return "bool"
	case FieldBytes32:
		return "bytes32"
	case FieldString:
		return "string"
	default:
		return "unknown"
	}
}

func (t FieldType) fixedWidth() bool {
	return t != FieldString
}

// Field describes one column of a table.
type Field struct {
	Name string
	Type FieldType
}

// Table is a schema: a table id plus its ordered, fixed column list.
type Table struct {
	ID        TableID
	Namespace string
	Name      string
	Fields    []Field
}

// DefineTable derives the table id and captures the column layout.
func DefineTable(namespace, name string, fields ...Field) Table {
	return Table{
		ID:        NewTableID(namespace, name),
		Namespace: namespace,
		Name:      name,
		Fields:    append([]Field(nil), fields...),
	}
}

func (t Table) FieldCount() int {
	return len(t.Fields)
}

func (t Table) validateField(slot uint8, data []byte) error {
	if int(slot) >= len(t.Fields) {
		return fmt.Errorf("%w: %s slot %d", ErrSlotOutOfRange, t.Name, slot)
	}
	field := t.Fields[slot]
	if field.Type.fixedWidth() && len(data) != common.HashLength {
		return fmt.Errorf("%w: %s.%s expects %s", ErrInvalidFieldValue, t.Name, field.Name, field.Type)
	}
	return nil
}

func (t Table) sameLayout(other Table) bool {
	if len(t.Fields) != len(other.Fields) {
		return false
	}
	for i := range t.Fields {
		if t.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}
