// Package postgres implements the storage.Backend interface with a single
// overlays table in Postgres, scoped by game and variant columns.
package postgres

import (
	"context"
	"fmt"

	"github.com/GamesCrafters/gamesplane/internal/config"
	"github.com/GamesCrafters/gamesplane/internal/database"
	gormstorage "github.com/GamesCrafters/gamesplane/internal/storage/gorm"
	"github.com/GamesCrafters/gamesplane/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	Config config.PostgresConfig
	// DB overrides the connection built from Config. The backend does not
	// close an injected DB.
	DB     *gorm.DB
	Logger zerolog.Logger
}

// Backend implements storage.Backend on a shared Postgres table.
type Backend struct {
	deps  Dependencies
	owned bool
	store *gormstorage.Store
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init connects if needed and migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres(b.deps.Config, b.deps.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.deps.DB = db
		b.owned = true
	}

	b.store = gormstorage.New(b.deps.DB, b.deps.Logger)
	if err := b.store.Migrate(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	return nil
}

// Close closes the connection if the backend opened it.
func (b *Backend) Close() error {
	if !b.owned || b.deps.DB == nil {
		return nil
	}
	b.owned = false
	return database.Close(b.deps.DB)
}

func (b *Backend) ready() error {
	if b.store == nil {
		return fmt.Errorf("postgres backend not initialized")
	}
	return nil
}

// Load returns the scope's records.
func (b *Backend) Load(ctx context.Context, scope core.Scope) ([]core.OverlayRecord, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.store.Load(ctx, scope)
}

// Save upserts the scope's records.
func (b *Backend) Save(ctx context.Context, scope core.Scope, records []core.OverlayRecord) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.store.Save(ctx, scope, records)
}

// Erase deletes the scope's rows and leaves other scopes untouched.
func (b *Backend) Erase(ctx context.Context, scope core.Scope) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.store.Erase(ctx, scope)
}
