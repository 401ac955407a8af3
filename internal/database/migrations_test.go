package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsCreatesIndexesOnce(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	models := append(store.SQLModels(), &migrationRecord{})
	if err := database.AutoMigrate(models...); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	first, err := applyMigrations(database, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}
	if len(first) != len(migrations()) {
		testContext.Fatalf("expected every migration to apply, got %v", first)
	}
	second, err := applyMigrations(database, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to re-apply migrations: %v", err)
	}
	if len(second) != 0 {
		testContext.Fatalf("expected no pending migrations, got %v", second)
	}

	for _, index := range []string{"idx_store_fields_table_updated", "idx_store_records_table_created"} {
		var count int64
		if err := database.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", index).Scan(&count).Error; err != nil {
			testContext.Fatalf("failed to inspect indexes: %v", err)
		}
		if count != 1 {
			testContext.Fatalf("expected index %s to exist", index)
		}
	}

	var records []migrationRecord
	if err := database.Order("name").Find(&records).Error; err != nil {
		testContext.Fatalf("failed to load migration records: %v", err)
	}
	if len(records) != len(migrations()) {
		testContext.Fatalf("expected %d migration records, got %d", len(migrations()), len(records))
	}
	for _, record := range records {
		if record.AppliedAtSeconds == 0 {
			testContext.Fatalf("expected migration %s timestamp to be set", record.Name)
		}
	}
}

func TestOpenSQLiteBacksTableStore(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "store.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	backend, err := store.NewSQLBackend(database)
	if err != nil {
		testContext.Fatalf("failed to create backend: %v", err)
	}
	backing, err := store.New(backend)
	if err != nil {
		testContext.Fatalf("failed to create store: %v", err)
	}
	table := store.DefineTable("test", "CounterTable", store.Field{Name: "Value", Type: store.FieldUint256})
	if err := backing.Register(table); err != nil {
		testContext.Fatalf("failed to register table: %v", err)
	}

	key := store.KeyOf()
	err = backing.Update(context.Background(), func(tx *store.Tx) error {
		return tx.SetField(table.ID, key, 0, store.EncodeUint64(9))
	})
	if err != nil {
		testContext.Fatalf("failed to write: %v", err)
	}

	reopened, err := OpenSQLite(databasePath, nil)
	if err != nil {
		testContext.Fatalf("failed to reopen sqlite: %v", err)
	}
	reopenedBackend, err := store.NewSQLBackend(reopened)
	if err != nil {
		testContext.Fatalf("failed to create backend: %v", err)
	}
	reopenedStore, err := store.New(reopenedBackend)
	if err != nil {
		testContext.Fatalf("failed to create store: %v", err)
	}
	if err := reopenedStore.Register(table); err != nil {
		testContext.Fatalf("failed to register table: %v", err)
	}
	err = reopenedStore.View(context.Background(), func(tx *store.Tx) error {
		data, err := tx.GetField(table.ID, key, 0)
		if err != nil {
			return err
		}
		value, err := store.DecodeUint64(data)
		if err != nil {
			return err
		}
		if value != 9 {
			testContext.Fatalf("expected persisted value 9, got %d", value)
		}
		return nil
	})
	if err != nil {
		testContext.Fatalf("failed to read: %v", err)
	}
}

func TestOpenSQLiteCreatesParentDirectory(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "nested", "data", "store.db")
	database, err := OpenSQLite(databasePath, nil)
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	var journalMode string
	if err := database.Raw("PRAGMA journal_mode").Scan(&journalMode).Error; err != nil {
		testContext.Fatalf("failed to read journal mode: %v", err)
	}
	if journalMode != "wal" {
		testContext.Fatalf("expected wal journal mode, got %q", journalMode)
	}
	if _, err := OpenSQLite("  ", nil); err == nil {
		testContext.Fatalf("expected an empty path to be rejected")
	}
}

func TestOpenBadgerInMemory(testContext *testing.T) {
	db, err := OpenBadger("", zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open badger: %v", err)
	}
	defer db.Close()

	if _, err := store.NewBadgerBackend(db); err != nil {
		testContext.Fatalf("failed to create backend: %v", err)
	}
}
