package database

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var errMissingDatabasePath = errors.New("database path is required")

// The table store serializes writers itself; WAL lets views read while a
// call commits.
var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// OpenSQLite opens the table store database at path, creating its parent
// directory when needed, and brings the schema up to date.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errMissingDatabasePath
	}
	inMemory := strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory")
	if !inMemory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if !inMemory {
		for _, pragma := range sqlitePragmas {
			if err := db.Exec(pragma).Error; err != nil {
				return nil, err
			}
		}
	}

	models := append(store.SQLModels(), &migrationRecord{})
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}

	applied, err := applyMigrations(db, logger)
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("table store database ready",
			zap.String("driver", "sqlite"),
			zap.String("path", path),
			zap.Strings("migrations_applied", applied))
	}

	return db, nil
}
