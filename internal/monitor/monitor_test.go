package monitor

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GamesCrafters/gamesplane/internal/session"
	"github.com/GamesCrafters/gamesplane/internal/timeutil"
	"github.com/GamesCrafters/gamesplane/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	scope = core.Scope{Game: "dao", Variant: "regular"}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetStatus(t *testing.T) {
	clock := timeutil.NewManualClock(start)
	clock.Advance(90 * time.Second)

	svc := NewService(Dependencies{
		Session: session.NewContext("abc", scope, start),
		Logger:  quietLogger(),
		Clock:   clock,
	})

	st := svc.GetStatus()
	assert.Equal(t, "abc", st.SessionID)
	assert.Equal(t, "dao", st.Game)
	assert.Equal(t, "regular", st.Variant)
	assert.Equal(t, "1m30s", st.Uptime)
	assert.Equal(t, 0, st.Frames)
	assert.Empty(t, st.Estimate)
	assert.Nil(t, st.Overlays)
}

func TestStart_WritesStatusFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "status.json")
	svc := NewService(Dependencies{
		Session:    session.NewContext("abc", scope, start),
		Logger:     quietLogger(),
		StatusFile: file,
		Interval:   5 * time.Millisecond,
	})

	require.NoError(t, svc.Start())
	assert.True(t, svc.IsRunning())
	require.NoError(t, svc.Start(), "starting twice is a no-op")

	require.Eventually(t, func() bool {
		_, err := os.Stat(file)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	svc.Stop()
	assert.False(t, svc.IsRunning())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, "abc", st.SessionID)
}

func TestStart_RequiresSession(t *testing.T) {
	svc := NewService(Dependencies{Logger: quietLogger()})
	assert.Error(t, svc.Start())
	assert.False(t, svc.IsRunning())
	svc.Stop()
}
