package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationIndexFieldsByTable  = "2026-09-14_index_store_fields_by_table"
	migrationIndexRecordsByTable = "2026-09-14_index_store_records_by_table"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migration struct {
	name  string
	apply func(*gorm.DB) error
}

// migrations run in order, each at most once per database.
func migrations() []migration {
	return []migration{
		{name: migrationIndexFieldsByTable, apply: indexFieldsByTable},
		{name: migrationIndexRecordsByTable, apply: indexRecordsByTable},
	}
}

// applyMigrations runs every pending migration in its own transaction together
// with its bookkeeping row and returns the names it applied.
func applyMigrations(db *gorm.DB, logger *zap.Logger) ([]string, error) {
	var applied []string
	for _, step := range migrations() {
		err := db.Transaction(func(tx *gorm.DB) error {
			var record migrationRecord
			err := tx.Where("name = ?", step.name).Take(&record).Error
			if err == nil {
				return errMigrationDone
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err := step.apply(tx); err != nil {
				return fmt.Errorf("migration %s: %w", step.name, err)
			}
			return tx.Create(&migrationRecord{Name: step.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if errors.Is(err, errMigrationDone) {
			continue
		}
		if err != nil {
			return applied, err
		}
		applied = append(applied, step.name)
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", step.name))
		}
	}
	return applied, nil
}

var errMigrationDone = errors.New("migration already applied")

// Paged collection reads and operator exports scan by table.
func indexFieldsByTable(db *gorm.DB) error {
	return db.Exec("CREATE INDEX IF NOT EXISTS idx_store_fields_table_updated ON store_fields (table_id, updated_at_s)").Error
}

func indexRecordsByTable(db *gorm.DB) error {
	return db.Exec("CREATE INDEX IF NOT EXISTS idx_store_records_table_created ON store_records (table_id, created_at_s)").Error
}
