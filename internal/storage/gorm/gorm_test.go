package gormstorage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/GamesCrafters/gamesplane/internal/database"
	"github.com/GamesCrafters/gamesplane/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	dao       = core.Scope{Game: "dao", Variant: "regular"}
	tictactoe = core.Scope{Game: "tictactoe", Variant: "regular"}
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenSqlite(filepath.Join(t.TempDir(), "overlays.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	s := New(db, zerolog.Nop())
	require.NoError(t, s.Migrate())
	return s
}

func TestSaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	in := []core.OverlayRecord{
		{Key: "1_X--O", Image: []byte{1, 2, 3}, FetchedAt: at},
		{Key: "1_---", Failed: true, Reason: "no overlay", FetchedAt: at},
	}
	require.NoError(t, s.Save(ctx, dao, in))

	out, err := s.Load(ctx, dao)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// ordered by key
	assert.Equal(t, "1_---", out[0].Key)
	assert.True(t, out[0].Failed)
	assert.Equal(t, "no overlay", out[0].Reason)
	assert.Empty(t, out[0].Image)

	assert.Equal(t, "1_X--O", out[1].Key)
	assert.False(t, out[1].Failed)
	assert.Equal(t, []byte{1, 2, 3}, out[1].Image)
	assert.True(t, at.Equal(out[1].FetchedAt), "fetchedAt %v", out[1].FetchedAt)
}

func TestSave_UpsertsByKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, dao, []core.OverlayRecord{
		{Key: "k", Failed: true, Reason: "timeout", FetchedAt: time.Now()},
	}))
	require.NoError(t, s.Save(ctx, dao, []core.OverlayRecord{
		{Key: "k", Image: []byte{9}, FetchedAt: time.Now()},
	}))

	out, err := s.Load(ctx, dao)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].Failed)
	assert.Empty(t, out[0].Reason)
	assert.Equal(t, []byte{9}, out[0].Image)
}

func TestSave_Empty(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Save(context.Background(), dao, nil))
}

func TestScopesAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, dao, []core.OverlayRecord{{Key: "same", Image: []byte{1}, FetchedAt: time.Now()}}))
	require.NoError(t, s.Save(ctx, tictactoe, []core.OverlayRecord{{Key: "same", Image: []byte{2}, FetchedAt: time.Now()}}))

	out, err := s.Load(ctx, tictactoe)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []byte{2}, out[0].Image)

	require.NoError(t, s.Erase(ctx, tictactoe))

	out, err = s.Load(ctx, tictactoe)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = s.Load(ctx, dao)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestLoad_UnknownScope(t *testing.T) {
	s := newTestStore(t)

	out, err := s.Load(context.Background(), core.Scope{Game: "nope"})
	require.NoError(t, err)
	assert.Empty(t, out)
}
