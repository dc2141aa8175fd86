package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/harvestbot/harvester/internal/config"
	"github.com/harvestbot/harvester/internal/database"
)

// migrateDumps imports every SQLite dump in dir into the configured recording database.
func migrateDumps(dir string) error {
	start := time.Now()
	gormCfg := config.GetStorageConfig().Gorm

	db := database.NewManager(Zerolog.With().Str("component", "migrate").Logger())
	db.SqliteFilePath = gormCfg.SqlitePath

	var err error
	if gormCfg.Dialect == "postgres" {
		err = db.Connect()
	} else {
		if gormCfg.SqlitePath == "" {
			return errors.New("storage.gorm.sqlitePath must name a target file for sqlite imports")
		}
		err = db.ConnectSqlite(gormCfg.SqlitePath)
	}
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := db.Setup(); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	paths, err := database.GetBackupDBPaths(dir)
	if err != nil {
		return fmt.Errorf("listing dumps in %s: %w", dir, err)
	}
	if len(paths) == 0 {
		Logger.Info("No dumps found", "dir", dir)
		return nil
	}

	var total database.ImportResult
	var failed int
	for _, path := range paths {
		res, err := db.ImportDump(path)
		if err != nil {
			failed++
			Logger.Error("Failed to import dump", "path", path, "error", err)
			continue
		}
		total.Sessions += res.Sessions
		total.Skipped += res.Skipped
		total.Ticks += res.Ticks
		total.Assignments += res.Assignments
	}

	Logger.Info("Dump migration finished",
		"dumps", len(paths),
		"failed", failed,
		"sessions", total.Sessions,
		"skipped", total.Skipped,
		"ticks", total.Ticks,
		"assignments", total.Assignments,
		"duration", time.Since(start))

	if failed > 0 {
		return fmt.Errorf("%d of %d dumps failed", failed, len(paths))
	}
	return nil
}
