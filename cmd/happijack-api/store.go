package main

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/config"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/database"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"go.uber.org/zap"
)

// openStore builds the table store for the configured driver and returns a
// function releasing the underlying handle.
func openStore(appConfig config.AppConfig, logger *zap.Logger) (*store.Store, func(), error) {
	switch appConfig.DatabaseDriver {
	case config.DriverSQLite:
		db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() { _ = sqlDB.Close() }
		backend, err := store.NewSQLBackend(db)
		if err != nil {
			closeDB()
			return nil, nil, err
		}
		backing, err := store.New(backend)
		if err != nil {
			closeDB()
			return nil, nil, err
		}
		return backing, closeDB, nil
	case config.DriverBadger:
		db, err := database.OpenBadger(appConfig.BadgerDir, logger)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.Warn("badger close failed", zap.Error(err))
			}
		}
		backend, err := store.NewBadgerBackend(db)
		if err != nil {
			closeDB()
			return nil, nil, err
		}
		backing, err := store.New(backend)
		if err != nil {
			closeDB()
			return nil, nil, err
		}
		return backing, closeDB, nil
	case config.DriverMemory:
		backing, err := store.New(store.NewMemoryBackend())
		if err != nil {
			return nil, nil, err
		}
		return backing, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", appConfig.DatabaseDriver)
	}
}
