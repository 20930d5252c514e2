// Package session runs the per-frame pipeline for one game: pose estimation,
// localization, encoding, smoothing and overlay lookup.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GamesCrafters/gamesplane/internal/board"
	"github.com/GamesCrafters/gamesplane/internal/cache"
	"github.com/GamesCrafters/gamesplane/internal/encoder"
	"github.com/GamesCrafters/gamesplane/internal/estimator"
	"github.com/GamesCrafters/gamesplane/internal/game"
	"github.com/GamesCrafters/gamesplane/internal/influx"
	"github.com/GamesCrafters/gamesplane/internal/localize"
	"github.com/GamesCrafters/gamesplane/internal/pose"
	"github.com/GamesCrafters/gamesplane/internal/timeutil"
	"github.com/GamesCrafters/gamesplane/pkg/core"
	"github.com/GamesCrafters/gamesplane/pkg/streaming"
	"github.com/google/uuid"
)

// FrameRecorder stores per-frame telemetry.
type FrameRecorder interface {
	RecordFrame(s influx.FrameSample) error
}

// Publisher streams session events to a renderer.
type Publisher interface {
	StartSession(streaming.StartSessionPayload) error
	EndSession(streaming.EndSessionPayload) error
	FrameState(streaming.FrameStatePayload) error
	Estimate(streaming.EstimatePayload) error
	Overlay(streaming.OverlayPayload) error
}

// Dependencies are the collaborators of a Session. Recorder, Publisher and
// Context are optional.
type Dependencies struct {
	Definition game.Definition
	Camera     pose.Camera
	Estimator  estimator.Estimator
	Cache      *cache.OverlayCache
	Logger     *slog.Logger
	Clock      timeutil.Clock

	Recorder  FrameRecorder
	Publisher Publisher
	Context   *Context
}

// Options tune frame processing.
type Options struct {
	OffBoardTolerance float64
}

// Result is everything one frame produced.
type Result struct {
	Frame     int
	Timestamp time.Time

	Localized localize.FrameResult
	Quality   localize.Quality

	// Unknown lists detected ids that are not part of the game.
	Unknown []int
	// Dropped counts markers whose pose could not be estimated.
	Dropped int

	// Symbol is this frame's encoded state; empty when SymbolErr is set or
	// the board was not located.
	Symbol    string
	SymbolErr error

	Estimate    string
	HasEstimate bool

	// Overlay is the cache entry for Estimate. Quad holds the overlay anchors'
	// outer corners in top-left, top-right, bottom-right, bottom-left order,
	// or nil when one of them was not seen this frame.
	Overlay *cache.Entry
	Quad    []core.Pixel

	ReprojectionError float64
	// Duration is wall time spent in ProcessFrame, independent of Clock.
	Duration time.Duration
}

// Session is not safe for concurrent ProcessFrame calls. Its Context may be
// read from any goroutine.
type Session struct {
	deps    Dependencies
	opts    Options
	layout  *board.Layout
	encoder encoder.Encoder
	ctx     *Context
	logger  *slog.Logger

	frame        int
	lastEstimate string
	lastOverlay  string
}

// New validates the camera and game and prepares a session.
func New(deps Dependencies, opts Options) (*Session, error) {
	if deps.Estimator == nil {
		return nil, errors.New("session needs an estimator")
	}
	if deps.Cache == nil {
		return nil, errors.New("session needs an overlay cache")
	}
	if err := deps.Camera.Validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	layout, err := deps.Definition.Layout()
	if err != nil {
		return nil, err
	}
	enc, err := deps.Definition.NewEncoder()
	if err != nil {
		return nil, err
	}

	sctx := deps.Context
	if sctx == nil {
		sctx = NewContext(uuid.NewString(), deps.Definition.Scope(), deps.Clock.Now())
	}

	return &Session{
		deps:    deps,
		opts:    opts,
		layout:  layout,
		encoder: enc,
		ctx:     sctx,
		logger:  deps.Logger.With("component", "session"),
	}, nil
}

// Context returns the session's shared state.
func (s *Session) Context() *Context {
	return s.ctx
}

// Layout returns the board layout.
func (s *Session) Layout() *board.Layout {
	return s.layout
}

// Start announces the session to the publisher.
func (s *Session) Start(ctx context.Context) error {
	s.logger.Info("session started", "id", s.ctx.ID(), "game", s.deps.Definition.Name)
	if s.deps.Publisher == nil {
		return nil
	}
	return s.deps.Publisher.StartSession(streaming.StartSessionPayload{
		SessionID: s.ctx.ID(),
		Game:      s.ctx.Scope().Game,
		Variant:   s.ctx.Scope().Variant,
		StartedAt: s.ctx.StartedAt(),
	})
}

// End closes the session on the publisher.
func (s *Session) End(ctx context.Context) error {
	frames, located, encoded := s.ctx.Counters()
	s.logger.Info("session ended", "frames", frames, "located", located, "encoded", encoded)
	if s.deps.Publisher == nil {
		return nil
	}
	return s.deps.Publisher.EndSession(streaming.EndSessionPayload{
		SessionID: s.ctx.ID(),
		Frames:    frames,
	})
}

// ProcessFrame runs one frame through the pipeline. It never blocks on an
// overlay fetch.
func (s *Session) ProcessFrame(ctx context.Context, frame core.Frame) Result {
	began := time.Now()
	s.frame++

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = s.deps.Clock.Now()
	}
	res := Result{Frame: s.frame, Timestamp: ts}

	detected, reproj := s.estimatePoses(frame, &res)
	res.ReprojectionError = reproj

	res.Localized = localize.Frame(detected, s.layout, localize.Options{OffBoardTolerance: s.opts.OffBoardTolerance})
	res.Quality = res.Localized.Quality()

	if res.Localized.Located {
		sym, err := s.encoder.Encode(frame.Turn, res.Localized.Pieces)
		if err != nil {
			res.SymbolErr = err
			s.logger.Debug("board state not encoded", "frame", s.frame, "error", err)
		} else {
			res.Symbol = sym
			s.deps.Estimator.Observe(sym)
		}
	}

	res.Estimate, res.HasEstimate = s.deps.Estimator.Estimate()
	if res.HasEstimate {
		res.Overlay = s.deps.Cache.GetOrFetch(res.Estimate)
		res.Quad = s.overlayQuad(res.Localized.Anchors)
	}

	res.Duration = time.Since(began)
	s.ctx.record(res.Localized.Located, res.Symbol != "", res.Estimate)

	s.publish(res)
	s.recordTelemetry(res)
	return res
}

func (s *Session) estimatePoses(frame core.Frame, res *Result) ([]pose.Detected, float64) {
	detected := make([]pose.Detected, 0, len(frame.Detections))
	var reprojSum float64
	for _, d := range frame.Detections {
		m, ok := s.layout.Marker(d.MarkerID)
		if !ok {
			res.Unknown = append(res.Unknown, d.MarkerID)
			continue
		}
		p, err := pose.Estimate(d.MarkerID, d.Corners, m.EdgeLength, s.deps.Camera)
		if err != nil {
			res.Dropped++
			s.logger.Debug("marker dropped", "frame", s.frame, "id", d.MarkerID, "error", err)
			continue
		}
		reprojSum += p.ReprojectionError
		detected = append(detected, p)
	}
	if len(detected) == 0 {
		return detected, 0
	}
	return detected, reprojSum / float64(len(detected))
}

// overlayQuad picks corner i of overlay anchor i, which is the corner
// facing away from the board.
func (s *Session) overlayQuad(anchors []localize.Marker) []core.Pixel {
	ids := s.deps.Definition.OverlayAnchors
	if len(ids) != 4 {
		return nil
	}
	quad := make([]core.Pixel, 4)
	for i, id := range ids {
		found := false
		for _, a := range anchors {
			if a.MarkerID == id {
				quad[i] = a.Corners[i]
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	}
	return quad
}

func (s *Session) publish(res Result) {
	pub := s.deps.Publisher
	if pub == nil {
		return
	}
	id := s.ctx.ID()

	state := streaming.FrameStatePayload{
		SessionID: id,
		Timestamp: res.Timestamp,
		Located:   res.Localized.Located,
		Symbol:    res.Symbol,
	}
	for _, a := range res.Localized.Anchors {
		state.Anchors = append(state.Anchors, a.Placed())
	}
	for _, p := range res.Localized.Pieces {
		state.Pieces = append(state.Pieces, p.Placed())
	}
	if err := pub.FrameState(state); err != nil {
		s.logger.Warn("frame state not published", "error", err)
	}

	if res.HasEstimate && res.Estimate != s.lastEstimate {
		s.lastEstimate = res.Estimate
		if err := pub.Estimate(streaming.EstimatePayload{SessionID: id, Timestamp: res.Timestamp, Symbol: res.Estimate}); err != nil {
			s.logger.Warn("estimate not published", "error", err)
		}
	}

	if res.Overlay != nil {
		tag := fmt.Sprintf("%s/%s", res.Overlay.Key, res.Overlay.State)
		if tag != s.lastOverlay {
			s.lastOverlay = tag
			err := pub.Overlay(streaming.OverlayPayload{
				SessionID: id,
				Key:       res.Overlay.Key,
				State:     res.Overlay.State.String(),
				Quad:      res.Quad,
			})
			if err != nil {
				s.logger.Warn("overlay not published", "error", err)
			}
		}
	}
}

func (s *Session) recordTelemetry(res Result) {
	if s.deps.Recorder == nil {
		return
	}
	err := s.deps.Recorder.RecordFrame(influx.FrameSample{
		Scope:             s.ctx.Scope(),
		SessionID:         s.ctx.ID(),
		Timestamp:         res.Timestamp,
		AnchorsSeen:       len(res.Localized.Anchors),
		PiecesLocated:     len(res.Localized.Pieces),
		Unknown:           len(res.Unknown),
		Located:           res.Localized.Located,
		Quality:           res.Quality.String(),
		Symbol:            res.Symbol,
		Estimate:          res.Estimate,
		ReprojectionError: res.ReprojectionError,
		Duration:          res.Duration,
	})
	if err != nil {
		s.logger.Debug("frame telemetry not recorded", "error", err)
	}
}
