package storage_test

import (
	"testing"

	"github.com/GamesCrafters/gamesplane/internal/config"
	"github.com/GamesCrafters/gamesplane/internal/storage"
	"github.com/GamesCrafters/gamesplane/internal/storage/memory"
	"github.com/GamesCrafters/gamesplane/internal/storage/postgres"
	sqlitestorage "github.com/GamesCrafters/gamesplane/internal/storage/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend = (*memory.Backend)(nil)
	_ storage.Backend = (*postgres.Backend)(nil)
	_ storage.Backend = (*sqlitestorage.Backend)(nil)
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		typ  string
		want any
	}{
		{"memory", &memory.Backend{}},
		{"sqlite", &sqlitestorage.Backend{}},
		{"", &sqlitestorage.Backend{}},
		{"postgres", &postgres.Backend{}},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			b, err := storage.NewBackend(config.StorageConfig{Type: tt.typ, Dir: t.TempDir()}, zerolog.Nop())
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := storage.NewBackend(config.StorageConfig{Type: "s3"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown storage type")
}
