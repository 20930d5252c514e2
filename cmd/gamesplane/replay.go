package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/GamesCrafters/gamesplane/internal/cache"
	"github.com/GamesCrafters/gamesplane/internal/config"
	"github.com/GamesCrafters/gamesplane/internal/dispatcher"
	"github.com/GamesCrafters/gamesplane/internal/estimator"
	"github.com/GamesCrafters/gamesplane/internal/fetch"
	"github.com/GamesCrafters/gamesplane/internal/game"
	"github.com/GamesCrafters/gamesplane/internal/influx"
	"github.com/GamesCrafters/gamesplane/internal/logging"
	"github.com/GamesCrafters/gamesplane/internal/monitor"
	intOtel "github.com/GamesCrafters/gamesplane/internal/otel"
	"github.com/GamesCrafters/gamesplane/internal/overlay"
	"github.com/GamesCrafters/gamesplane/internal/pose"
	"github.com/GamesCrafters/gamesplane/internal/session"
	"github.com/GamesCrafters/gamesplane/internal/storage"
	"github.com/GamesCrafters/gamesplane/internal/stream"
	"github.com/GamesCrafters/gamesplane/internal/timeutil"
	"github.com/GamesCrafters/gamesplane/pkg/core"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const frameBuffer = 64

func replayFlags(fs *pflag.FlagSet) {
	fs.String("frames", "-", "JSON-lines detector frames, - for stdin")
	fs.Bool("write-cache", true, "persist resolved overlays when the replay ends")
	fs.Bool("wait", true, "wait for pending overlay fetches before exiting")
	fs.Bool("stream", false, "publish the session over the configured websocket")
	fs.Float64("off-board-tolerance", 0.5, "board units a piece may land outside the board")
	fs.String("status-file", "", "rewrite this file with the session status while running")
	fs.Duration("status-interval", time.Second, "how often the status is logged")
}

func runReplay(ctx context.Context, fs *pflag.FlagSet) error {
	def, err := resolveGame()
	if err != nil {
		return err
	}

	sctx := session.NewContext(uuid.NewString(), def.Scope(), SessionStartTime)
	closeLogs, err := setupLogging(sctx.Attrs, intOtel.SessionAttributes(sctx.ID(), def.Scope())...)
	if err != nil {
		return err
	}
	defer closeLogs()

	cam, err := loadCamera(config.GetCameraConfig())
	if err != nil {
		return err
	}

	backend, err := storage.NewBackend(config.GetStorageConfig(), StorageLogger)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			Logger.Warn("closing storage", "error", err)
		}
	}()

	disp, err := dispatcher.New(logging.NewDispatcherLogger(StorageLogger))
	if err != nil {
		return err
	}
	defer disp.Close()

	overlays, err := newOverlayCache(ctx, def, backend, disp)
	if err != nil {
		return err
	}

	estCfg, err := config.GetEstimatorConfig()
	if err != nil {
		return err
	}
	clock := timeutil.NewManualClock(SessionStartTime)
	est, err := estimator.New(toEstimatorConfig(estCfg), clock)
	if err != nil {
		return err
	}

	deps := session.Dependencies{
		Definition: def,
		Camera:     cam,
		Estimator:  est,
		Cache:      overlays,
		Logger:     Logger,
		Clock:      clock,
		Context:    sctx,
	}

	backupPath := filepath.Join(config.GetString("logsDir"), "frames.lp.gz")
	recorder := influx.NewRecorder(config.GetInfluxConfig(), StorageLogger, backupPath)
	switch err := recorder.Connect(ctx); {
	case errors.Is(err, influx.ErrDisabled):
	case err != nil:
		Logger.Warn("frame telemetry disabled", "error", err)
	default:
		deps.Recorder = recorder
		defer recorder.Close()
	}

	streamCfg := config.GetStreamConfig()
	if on, _ := fs.GetBool("stream"); on {
		streamCfg.Enabled = true
	}
	if streamCfg.Enabled {
		pub := stream.New(streamCfg, Logger)
		if err := pub.Init(ctx); err != nil {
			return fmt.Errorf("connecting stream: %w", err)
		}
		defer pub.Close()
		deps.Publisher = pub
	}

	tolerance, _ := fs.GetFloat64("off-board-tolerance")
	sess, err := session.New(deps, session.Options{OffBoardTolerance: tolerance})
	if err != nil {
		return err
	}

	statusFile, _ := fs.GetString("status-file")
	interval, _ := fs.GetDuration("status-interval")
	mon := monitor.NewService(monitor.Dependencies{
		Session:    sctx,
		Cache:      overlays,
		Logger:     Logger,
		StatusFile: statusFile,
		Interval:   interval,
	})
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()

	if err := sess.Start(ctx); err != nil {
		Logger.Warn("session start not acknowledged", "error", err)
	}

	in, closeIn, err := openFrames(fs)
	if err != nil {
		return err
	}
	defer closeIn()

	final, err := replayFrames(ctx, in, sess, clock)
	if err != nil {
		return err
	}

	if err := sess.End(ctx); err != nil {
		Logger.Warn("session end not acknowledged", "error", err)
	}

	if wait, _ := fs.GetBool("wait"); wait {
		overlays.Wait()
	}
	if write, _ := fs.GetBool("write-cache"); write {
		if err := overlays.Write(ctx); err != nil {
			return fmt.Errorf("writing overlay cache: %w", err)
		}
	}

	frames, located, encoded := sctx.Counters()
	Logger.Info("replay finished",
		"frames", frames,
		"located", located,
		"encoded", encoded,
		"estimate", final,
		"overlays", overlays.Len(),
	)
	fmt.Println(final)
	return nil
}

func openFrames(fs *pflag.FlagSet) (io.Reader, func(), error) {
	path, _ := fs.GetString("frames")
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening frames: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// frameProcessor is the part of a session the replay loop drives.
type frameProcessor interface {
	ProcessFrame(ctx context.Context, frame core.Frame) session.Result
}

// replayFrames decodes frames on one goroutine and feeds them to the session
// on another, returning the last estimate. clock follows the recorded frame
// timestamps so age-bounded estimators see recorded time, not replay speed.
func replayFrames(ctx context.Context, in io.Reader, sess frameProcessor, clock *timeutil.ManualClock) (string, error) {
	g, ctx := errgroup.WithContext(ctx)
	frames := make(chan core.Frame, frameBuffer)

	g.Go(func() error {
		defer close(frames)
		return readFrames(ctx, in, frames)
	})

	var final string
	g.Go(func() error {
		last := ""
		prev := time.Now()
		for frame := range frames {
			prev = stepClock(clock, frame, prev)
			res := sess.ProcessFrame(ctx, frame)
			if res.HasEstimate && res.Estimate != last {
				last = res.Estimate
				Logger.Info("estimate changed", "frame", res.Frame, "estimate", last)
			}
		}
		final = last
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", err
	}
	return final, nil
}

// stepClock moves clock to the frame's timestamp. Frames without one advance
// it by the wall time since the previous frame. It returns the wall time of
// this step.
func stepClock(clock *timeutil.ManualClock, frame core.Frame, prev time.Time) time.Time {
	now := time.Now()
	if frame.Timestamp.IsZero() {
		clock.Advance(now.Sub(prev))
	} else {
		clock.Set(frame.Timestamp)
	}
	return now
}

// readFrames decodes one JSON frame per line. Blank lines are skipped.
func readFrames(ctx context.Context, in io.Reader, out chan<- core.Frame) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var frame core.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("frame on line %d: %w", line, err)
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func loadCamera(cfg config.CameraConfig) (pose.Camera, error) {
	if cfg.Calibration == "" {
		return pose.DefaultCamera(cfg.Width, cfg.Height), nil
	}
	return pose.LoadCalibration(cfg.Calibration)
}

func newOverlayCache(ctx context.Context, def game.Definition, backend storage.Backend, disp *dispatcher.Dispatcher) (*cache.OverlayCache, error) {
	oc := config.GetOverlayConfig()

	opts := cache.Options{
		Scope:     def.Scope(),
		Size:      oc.Size,
		Workers:   oc.Workers,
		QueueSize: oc.QueueSize,
	}
	if oc.LoadingPlaceholder != "" {
		img, err := overlay.LoadPlaceholder(oc.LoadingPlaceholder, oc.Size)
		if err != nil {
			return nil, err
		}
		opts.LoadingImage = img
	}
	if oc.FailedPlaceholder != "" {
		img, err := overlay.LoadPlaceholder(oc.FailedPlaceholder, oc.Size)
		if err != nil {
			return nil, err
		}
		opts.FailedImage = img
	}

	client := fetch.New(oc.BaseURL, def.Route, def.Variant, oc.FetchTimeout)
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Warn("overlay server unreachable, overlays will fail", "url", oc.BaseURL, "error", err)
	}

	return cache.New(ctx, cache.Dependencies{
		Fetcher:    client,
		Store:      backend,
		Dispatcher: disp,
		Logger:     Logger,
		Clock:      timeutil.RealClock{},
	}, opts)
}

func toEstimatorConfig(c config.EstimatorConfig) estimator.Config {
	out := estimator.Config{
		Strategy:          c.Strategy,
		WindowSize:        c.WindowSize,
		WindowAge:         c.WindowAge,
		MinAgreeingFrames: c.MinAgreeingFrames,
	}
	for _, m := range c.Members {
		out.Members = append(out.Members, toEstimatorConfig(m))
	}
	return out
}
