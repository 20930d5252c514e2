package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GamesCrafters/gamesplane/internal/cache"
	"github.com/GamesCrafters/gamesplane/internal/dispatcher"
	"github.com/GamesCrafters/gamesplane/internal/encoder"
	"github.com/GamesCrafters/gamesplane/internal/estimator"
	"github.com/GamesCrafters/gamesplane/internal/game"
	"github.com/GamesCrafters/gamesplane/internal/geo"
	"github.com/GamesCrafters/gamesplane/internal/influx"
	"github.com/GamesCrafters/gamesplane/internal/localize"
	"github.com/GamesCrafters/gamesplane/internal/pose"
	"github.com/GamesCrafters/gamesplane/internal/timeutil"
	"github.com/GamesCrafters/gamesplane/pkg/core"
	"github.com/GamesCrafters/gamesplane/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

var errNoOverlay = errors.New("no overlay")

// the board plane faces the camera; board units are 5cm
var facing = geo.RotX(math.Pi)

// corners projects a marker lying on the tic-tac-toe board at (bx, by).
func corners(t *testing.T, cam pose.Camera, edge, bx, by float64) core.Corners {
	t.Helper()
	tr := geo.Vec3{-5 + bx*5, 5 - by*5, 60}
	var c core.Corners
	for i, p := range pose.ObjectPoints(edge) {
		px, ok := cam.Project(facing.MulVec(p).Add(tr))
		require.True(t, ok)
		c[i] = px
	}
	return c
}

func anchorDetections(t *testing.T, cam pose.Camera, ids ...int) []core.Detection {
	t.Helper()
	pos := map[int][2]float64{10: {-1, 2}, 11: {3, 2}, 12: {-1, 0}, 13: {3, 0}}
	var out []core.Detection
	for _, id := range ids {
		p := pos[id]
		out = append(out, core.Detection{MarkerID: id, Corners: corners(t, cam, 5, p[0], p[1])})
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
	last   streaming.OverlayPayload
	states []streaming.FrameStatePayload
}

func (p *fakePublisher) add(e string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *fakePublisher) StartSession(streaming.StartSessionPayload) error {
	p.add(streaming.TypeStartSession)
	return nil
}

func (p *fakePublisher) EndSession(streaming.EndSessionPayload) error {
	p.add(streaming.TypeEndSession)
	return nil
}

func (p *fakePublisher) FrameState(s streaming.FrameStatePayload) error {
	p.add(streaming.TypeFrameState)
	p.mu.Lock()
	p.states = append(p.states, s)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) Estimate(s streaming.EstimatePayload) error {
	p.add(streaming.TypeEstimate + ":" + s.Symbol)
	return nil
}

func (p *fakePublisher) Overlay(s streaming.OverlayPayload) error {
	p.add(streaming.TypeOverlay + ":" + s.State)
	p.mu.Lock()
	p.last = s
	p.mu.Unlock()
	return nil
}

type fakeRecorder struct {
	samples []influx.FrameSample
}

func (r *fakeRecorder) RecordFrame(s influx.FrameSample) error {
	r.samples = append(r.samples, s)
	return nil
}

type fixture struct {
	session *Session
	cache   *cache.OverlayCache
	cam     pose.Camera
	pub     *fakePublisher
	rec     *fakeRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	def, ok := game.Builtin("tictactoe")
	require.True(t, ok)

	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := timeutil.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	c, err := cache.New(context.Background(), cache.Dependencies{
		Fetcher: cache.FetcherFunc(func(context.Context, string) ([]byte, error) {
			return nil, errNoOverlay
		}),
		Dispatcher: d,
		Logger:     logger,
		Clock:      clock,
	}, cache.Options{Scope: def.Scope(), Size: 16, Workers: 1})
	require.NoError(t, err)

	est, err := estimator.New(estimator.Config{Strategy: estimator.StrategyMajority, WindowSize: 3}, clock)
	require.NoError(t, err)

	f := &fixture{
		cache: c,
		cam:   pose.DefaultCamera(1280, 720),
		pub:   &fakePublisher{},
		rec:   &fakeRecorder{},
	}
	f.session, err = New(Dependencies{
		Definition: def,
		Camera:     f.cam,
		Estimator:  est,
		Cache:      c,
		Logger:     logger,
		Clock:      clock,
		Recorder:   f.rec,
		Publisher:  f.pub,
	}, Options{OffBoardTolerance: 0.5})
	require.NoError(t, err)
	return f
}

func (f *fixture) frame(t *testing.T, turn int, pieces map[int][2]float64, anchors ...int) core.Frame {
	t.Helper()
	fr := core.Frame{Turn: turn, Detections: anchorDetections(t, f.cam, anchors...)}
	for id, p := range pieces {
		fr.Detections = append(fr.Detections, core.Detection{MarkerID: id, Corners: corners(t, f.cam, 3, p[0], p[1])})
	}
	return fr
}

func TestProcessFrame_FullBoard(t *testing.T) {
	f := newFixture(t)

	fr := f.frame(t, 1, map[int][2]float64{1: {0, 2}, 2: {1, 1}}, 10, 11, 12, 13)
	res := f.session.ProcessFrame(context.Background(), fr)

	require.True(t, res.Localized.Located)
	assert.Equal(t, localize.Observed, res.Quality)
	assert.Len(t, res.Localized.Anchors, 4)
	require.Len(t, res.Localized.Pieces, 2)
	require.NoError(t, res.SymbolErr)
	assert.Equal(t, "1_x---o----", res.Symbol)
	assert.True(t, res.HasEstimate)
	assert.Equal(t, "1_x---o----", res.Estimate)
	assert.Less(t, res.ReprojectionError, 1e-3)

	require.NotNil(t, res.Overlay)
	assert.Equal(t, cache.Loading, res.Overlay.State)
	assert.Equal(t, "1_x---o----", res.Overlay.Key)

	// corner i of overlay anchor i, anchors ordered 10, 11, 13, 12
	require.Len(t, res.Quad, 4)
	byID := map[int]core.Corners{}
	for _, d := range fr.Detections {
		byID[d.MarkerID] = d.Corners
	}
	assert.Equal(t, byID[10][0], res.Quad[0])
	assert.Equal(t, byID[11][1], res.Quad[1])
	assert.Equal(t, byID[13][2], res.Quad[2])
	assert.Equal(t, byID[12][3], res.Quad[3])
}

func TestProcessFrame_SingleAnchorIsEnough(t *testing.T) {
	f := newFixture(t)

	res := f.session.ProcessFrame(context.Background(), f.frame(t, 2, map[int][2]float64{1: {2, 0}}, 13))
	require.True(t, res.Localized.Located)
	assert.Equal(t, "2_--------x", res.Symbol)
	assert.Nil(t, res.Quad, "overlay anchors missing")
}

func TestProcessFrame_NoAnchors(t *testing.T) {
	f := newFixture(t)

	res := f.session.ProcessFrame(context.Background(), f.frame(t, 1, map[int][2]float64{1: {0, 0}}))
	assert.False(t, res.Localized.Located)
	assert.Equal(t, localize.NotObserved, res.Quality)
	assert.Empty(t, res.Symbol)
	assert.False(t, res.HasEstimate)
	assert.Nil(t, res.Overlay)
	assert.Equal(t, 0, f.cache.Len())
}

func TestProcessFrame_UnknownAndDropped(t *testing.T) {
	f := newFixture(t)

	fr := f.frame(t, 1, nil, 10)
	fr.Detections = append(fr.Detections,
		core.Detection{MarkerID: 99, Corners: corners(t, f.cam, 3, 1, 1)},
		core.Detection{MarkerID: 1}, // every corner at the origin
	)
	res := f.session.ProcessFrame(context.Background(), fr)

	assert.Equal(t, []int{99}, res.Unknown)
	assert.Equal(t, 1, res.Dropped)
	assert.True(t, res.Localized.Located)
	assert.Empty(t, res.Localized.Pieces)
	assert.Equal(t, "1_---------", res.Symbol)
}

func TestProcessFrame_InvalidStateIsNotObserved(t *testing.T) {
	f := newFixture(t)

	fr := f.frame(t, 1, map[int][2]float64{1: {1, 1}}, 10, 11)
	fr.Detections = append(fr.Detections, core.Detection{MarkerID: 2, Corners: corners(t, f.cam, 3, 1, 1)})

	res := f.session.ProcessFrame(context.Background(), fr)
	assert.ErrorIs(t, res.SymbolErr, encoder.ErrInvalidBoardState)
	assert.Empty(t, res.Symbol)
	assert.False(t, res.HasEstimate)
}

func TestProcessFrame_EstimateSmoothsNoise(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := map[int][2]float64{1: {0, 0}}
	b := map[int][2]float64{1: {2, 2}}

	f.session.ProcessFrame(ctx, f.frame(t, 1, a, 10))
	f.session.ProcessFrame(ctx, f.frame(t, 1, a, 10))
	res := f.session.ProcessFrame(ctx, f.frame(t, 1, b, 10))

	assert.Equal(t, "1_--x------", res.Symbol)
	assert.Equal(t, "1_------x--", res.Estimate)
}

func TestProcessFrame_PublishesChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))

	fr := f.frame(t, 1, map[int][2]float64{2: {1, 1}}, 10, 11, 12, 13)
	f.session.ProcessFrame(ctx, fr)
	f.cache.Wait()
	f.session.ProcessFrame(ctx, fr)
	f.session.ProcessFrame(ctx, fr)
	require.NoError(t, f.session.End(ctx))

	assert.Equal(t, []string{
		streaming.TypeStartSession,
		streaming.TypeFrameState,
		streaming.TypeEstimate + ":1_----o----",
		streaming.TypeOverlay + ":loading",
		streaming.TypeFrameState,
		streaming.TypeOverlay + ":failed",
		streaming.TypeFrameState,
		streaming.TypeEndSession,
	}, f.pub.events)

	assert.Len(t, f.pub.last.Quad, 4)
	require.Len(t, f.pub.states, 3)
	assert.Len(t, f.pub.states[0].Anchors, 4)
	require.Len(t, f.pub.states[0].Pieces, 1)
	assert.Equal(t, "O", f.pub.states[0].Pieces[0].Tag)
}

func TestProcessFrame_RecordsTelemetry(t *testing.T) {
	f := newFixture(t)

	f.session.ProcessFrame(context.Background(), f.frame(t, 1, map[int][2]float64{1: {0, 0}}, 10, 12))
	f.session.ProcessFrame(context.Background(), f.frame(t, 1, nil))

	require.Len(t, f.rec.samples, 2)
	s := f.rec.samples[0]
	assert.Equal(t, core.Scope{Game: "tictactoe", Variant: "regular"}, s.Scope)
	assert.Equal(t, f.session.Context().ID(), s.SessionID)
	assert.Equal(t, 2, s.AnchorsSeen)
	assert.Equal(t, 1, s.PiecesLocated)
	assert.True(t, s.Located)
	assert.Equal(t, "observed", s.Quality)
	assert.Equal(t, "1_------x--", s.Symbol)

	assert.False(t, f.rec.samples[1].Located)
	assert.Equal(t, "not_observed", f.rec.samples[1].Quality)
}

func TestContext_Counters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.session.ProcessFrame(ctx, f.frame(t, 1, map[int][2]float64{1: {0, 0}}, 10))
	f.session.ProcessFrame(ctx, f.frame(t, 1, nil))

	frames, located, encoded := f.session.Context().Counters()
	assert.Equal(t, 2, frames)
	assert.Equal(t, 1, located)
	assert.Equal(t, 1, encoded)
	assert.Equal(t, "1_------x--", f.session.Context().Estimate())

	attrs := f.session.Context().Attrs()
	require.Len(t, attrs, 3)
	assert.Equal(t, "session", attrs[0].Key)
	assert.Equal(t, "tictactoe", attrs[1].Value.String())
	assert.Equal(t, "1_------x--", attrs[2].Value.String())
}

func TestNew_InvalidCamera(t *testing.T) {
	f := newFixture(t)

	deps := f.session.deps
	deps.Camera = pose.Camera{}
	_, err := New(deps, Options{})
	assert.ErrorIs(t, err, pose.ErrInvalidCamera)

	deps = f.session.deps
	deps.Estimator = nil
	_, err = New(deps, Options{})
	assert.Error(t, err)
}
