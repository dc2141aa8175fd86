package storage

import (
	"fmt"
	"log/slog"

	"github.com/harvestbot/harvester/internal/config"
	gormstorage "github.com/harvestbot/harvester/internal/storage/gorm"
	"github.com/harvestbot/harvester/internal/storage/memory"
	sqlitestorage "github.com/harvestbot/harvester/internal/storage/sqlite"
	"github.com/harvestbot/harvester/internal/storage/websocket"
)

// NewBackend creates a recording backend based on configuration.
// It returns nil for storage type "none".
func NewBackend(cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.New(cfg.Memory, logger), nil
	case "gorm":
		return gormstorage.New(gormstorage.Dependencies{
			Dialect:       cfg.Gorm.Dialect,
			SqlitePath:    cfg.Gorm.SqlitePath,
			Logger:        logger,
			FlushInterval: cfg.Gorm.FlushInterval,
		}), nil
	case "sqlite":
		b, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval:  cfg.SQLite.DumpInterval,
			DumpPath:      cfg.SQLite.DumpPath,
			FlushInterval: cfg.Gorm.FlushInterval,
		}, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "websocket":
		return websocket.New(websocket.Config{
			URL:        cfg.WebSocket.URL,
			Secret:     cfg.WebSocket.Secret,
			AckTimeout: cfg.WebSocket.AckTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
