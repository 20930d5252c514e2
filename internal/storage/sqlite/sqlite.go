// Package sqlitestorage implements the storage.Backend interface with one
// SQLite file per game and variant, so erasing a cache is deleting a file.
package sqlitestorage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/GamesCrafters/gamesplane/internal/database"
	gormstorage "github.com/GamesCrafters/gamesplane/internal/storage/gorm"
	"github.com/GamesCrafters/gamesplane/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	Dir string // directory holding <game>__<variant>.db files
}

type handle struct {
	db    *gorm.DB
	store *gormstorage.Store
}

// Backend opens scope files lazily and keeps them open until Close or Erase.
type Backend struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	handles map[core.Scope]*handle
}

// New creates a new SQLite storage backend.
func New(cfg Config, log zerolog.Logger) *Backend {
	return &Backend{
		cfg:     cfg,
		log:     log,
		handles: make(map[core.Scope]*handle),
	}
}

// Init creates the cache directory.
func (b *Backend) Init() error {
	if b.cfg.Dir == "" {
		return fmt.Errorf("sqlite storage directory not set")
	}
	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("error creating cache directory: %w", err)
	}
	return nil
}

// Close closes every open scope file.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for scope, h := range b.handles {
		if err := database.Close(h.db); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", scope, err))
		}
		delete(b.handles, scope)
	}
	return errors.Join(errs...)
}

// Path returns the file that holds the scope's overlays. Distinct scopes
// always map to distinct files.
func (b *Backend) Path(scope core.Scope) string {
	return filepath.Join(b.cfg.Dir, fileSafe(scope.Game)+scopeSeparator+fileSafe(scope.Variant)+".db")
}

// Files lists the scope files present in the cache directory.
func (b *Backend) Files() ([]string, error) {
	return database.ListDBFiles(b.cfg.Dir)
}

// scopeSeparator never appears in fileSafe output, where every '_' is
// followed by two hex digits.
const scopeSeparator = "__"

// fileSafe keeps letters, digits, '-' and '.' and escapes every other byte
// as '_' plus its hex value, so it never maps two names to one.
func fileSafe(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.':
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "_%02x", c)
		}
	}
	return sb.String()
}

// open returns the scope's store, opening the file when create is set or the
// file already exists. A nil store means there is nothing on disk.
func (b *Backend) open(scope core.Scope, create bool) (*gormstorage.Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.handles[scope]; ok {
		return h.store, nil
	}

	path := b.Path(scope)
	if !create {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
	}

	db, err := database.OpenSqlite(path, b.log)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	store := gormstorage.New(db, b.log)
	if err := store.Migrate(); err != nil {
		database.Close(db)
		return nil, err
	}

	b.handles[scope] = &handle{db: db, store: store}
	return store, nil
}

// Load returns the scope's records; a missing file yields none.
func (b *Backend) Load(ctx context.Context, scope core.Scope) ([]core.OverlayRecord, error) {
	store, err := b.open(scope, false)
	if err != nil || store == nil {
		return nil, err
	}
	return store.Load(ctx, scope)
}

// Save writes records into the scope's file, creating it if needed.
func (b *Backend) Save(ctx context.Context, scope core.Scope, records []core.OverlayRecord) error {
	if len(records) == 0 {
		return nil
	}
	store, err := b.open(scope, true)
	if err != nil {
		return err
	}
	return store.Save(ctx, scope, records)
}

// Erase closes and deletes the scope's file.
func (b *Backend) Erase(ctx context.Context, scope core.Scope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.handles[scope]; ok {
		if err := database.Close(h.db); err != nil {
			return fmt.Errorf("closing %s: %w", scope, err)
		}
		delete(b.handles, scope)
	}

	path := b.Path(scope)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}

	b.log.Info().Str("scope", scope.String()).Str("path", path).Msg("Erased overlay cache file")
	return nil
}
