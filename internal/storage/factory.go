package storage

import (
	"fmt"

	"github.com/GamesCrafters/gamesplane/internal/config"
	"github.com/GamesCrafters/gamesplane/internal/storage/memory"
	"github.com/GamesCrafters/gamesplane/internal/storage/postgres"
	sqlitestorage "github.com/GamesCrafters/gamesplane/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(postgres.Dependencies{Config: cfg.Postgres, Logger: log}), nil
	case "sqlite", "":
		return sqlitestorage.New(sqlitestorage.Config{Dir: cfg.Dir}, log), nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
