package store

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("store: database handle required")

// RecordRow marks that a row exists.
type RecordRow struct {
	TableID          string `gorm:"column:table_id;primaryKey;size:66;not null"`
	RowKey           string `gorm:"column:row_key;primaryKey;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

func (RecordRow) TableName() string {
	return "store_records"
}

// FieldRow stores one column value of a row.
type FieldRow struct {
	TableID          string `gorm:"column:table_id;primaryKey;size:66;not null"`
	RowKey           string `gorm:"column:row_key;primaryKey;not null"`
	Slot             int    `gorm:"column:slot;primaryKey;not null"`
	Value            []byte `gorm:"column:value"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

func (FieldRow) TableName() string {
	return "store_fields"
}

// SQLModels lists the gorm models backing SQLBackend.
func SQLModels() []any {
	return []any{&RecordRow{}, &FieldRow{}}
}

// SQLBackend persists rows through gorm.
type SQLBackend struct {
	db    *gorm.DB
	clock func() time.Time
}

func NewSQLBackend(db *gorm.DB) (*SQLBackend, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &SQLBackend{db: db, clock: time.Now}, nil
}

func sqlRowKey(id RowID) (string, string) {
	return id.Table.Hex(), hexutil.Encode(append([]byte{byte(len(id.Key))}, id.Key.Bytes()...))
}

func (b *SQLBackend) LoadRow(ctx context.Context, id RowID) (map[uint8][]byte, bool, error) {
	tableID, rowKey := sqlRowKey(id)
	var record RecordRow
	err := b.db.WithContext(ctx).
		Where("table_id = ? AND row_key = ?", tableID, rowKey).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rows []FieldRow
	if err := b.db.WithContext(ctx).
		Where("table_id = ? AND row_key = ?", tableID, rowKey).
		Find(&rows).Error; err != nil {
		return nil, false, err
	}
	fields := make(map[uint8][]byte, len(rows))
	for _, row := range rows {
		fields[uint8(row.Slot)] = row.Value
	}
	return fields, true, nil
}

func (b *SQLBackend) ApplyWrites(ctx context.Context, writes []RowWrite) error {
	now := b.clock().UTC().Unix()
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, write := range writes {
			tableID, rowKey := sqlRowKey(write.ID)
			record := RecordRow{TableID: tableID, RowKey: rowKey, CreatedAtSeconds: now}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
				return err
			}
			for slot, value := range write.Fields {
				field := FieldRow{
					TableID:          tableID,
					RowKey:           rowKey,
					Slot:             int(slot),
					Value:            value,
					UpdatedAtSeconds: now,
				}
				err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "table_id"}, {Name: "row_key"}, {Name: "slot"}},
					DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at_s"}),
				}).Create(&field).Error
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}
