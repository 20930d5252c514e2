// Package influx records per-frame pipeline telemetry as InfluxDB points.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/GamesCrafters/gamesplane/internal/config"
	"github.com/GamesCrafters/gamesplane/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Measurement is the name of the per-frame point.
const Measurement = "frame"

// ErrDisabled is returned by Connect when influx is turned off in config.
var ErrDisabled = errors.New("influx disabled")

// FrameSample summarizes one processed frame.
type FrameSample struct {
	Scope             core.Scope
	SessionID         string
	Timestamp         time.Time
	AnchorsSeen       int
	PiecesLocated     int
	Unknown           int
	Located           bool
	Quality           string
	Symbol            string
	Estimate          string
	ReprojectionError float64
	Duration          time.Duration
}

// FramePoint converts a sample into a line protocol point.
func FramePoint(s FrameSample) *influxdb2_write.Point {
	tags := map[string]string{
		"game":    s.Scope.Game,
		"variant": s.Scope.Variant,
		"session": s.SessionID,
	}
	fields := map[string]any{
		"anchors":     s.AnchorsSeen,
		"pieces":      s.PiecesLocated,
		"unknown":     s.Unknown,
		"located":     s.Located,
		"quality":     s.Quality,
		"reproj_rms":  s.ReprojectionError,
		"duration_us": s.Duration.Microseconds(),
	}
	if s.Symbol != "" {
		fields["symbol"] = s.Symbol
	}
	if s.Estimate != "" {
		fields["estimate"] = s.Estimate
	}
	return influxdb2_write.NewPoint(Measurement, tags, fields, s.Timestamp)
}

// Recorder writes frame points to InfluxDB, or to a gzip line protocol
// backup file when the server cannot be reached.
type Recorder struct {
	cfg        config.InfluxConfig
	log        zerolog.Logger
	backupPath string

	client     influxdb2.Client
	writer     influxdb2_api.WriteAPI
	mu         sync.Mutex
	backupFile *os.File
	backup     *gzip.Writer
}

// NewRecorder creates a recorder; nothing is opened until Connect.
func NewRecorder(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Recorder {
	return &Recorder{cfg: cfg, log: log, backupPath: backupPath}
}

// Connect pings the server and prepares the bucket. An unreachable server
// switches the recorder to the backup file instead of failing.
func (r *Recorder) Connect(ctx context.Context) error {
	if !r.cfg.Enabled {
		return ErrDisabled
	}

	r.client = influxdb2.NewClientWithOptions(
		r.cfg.URL(),
		r.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := r.client.Ping(ctx)
	if err != nil || !running {
		r.log.Warn().Err(err).Str("backupPath", r.backupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		r.client.Close()
		r.client = nil
		return r.openBackup()
	}

	if err := r.ensureBucket(ctx); err != nil {
		return err
	}

	r.writer = r.client.WriteAPI(r.cfg.Org, r.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			r.log.Error().Err(writeErr).Str("bucket", r.cfg.Bucket).Msg("Error sending data to InfluxDB")
		}
	}(r.writer.Errors())

	r.log.Info().Str("url", r.cfg.URL()).Str("bucket", r.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (r *Recorder) openBackup() error {
	if r.backupPath == "" {
		return errors.New("influx unreachable and no backup path set")
	}
	file, err := os.OpenFile(r.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	r.backupFile = file
	r.backup = gzip.NewWriter(file)
	return nil
}

func (r *Recorder) ensureBucket(ctx context.Context) error {
	orgs := r.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, r.cfg.Org)
	if err != nil {
		r.log.Info().Str("org", r.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, r.cfg.Org)
		if err != nil {
			return fmt.Errorf("creating influx org %s: %w", r.cfg.Org, err)
		}
	}

	buckets := r.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, r.cfg.Bucket); err == nil {
		return nil
	}

	r.log.Info().Str("bucket", r.cfg.Bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, r.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: 60 * 60 * 24 * 30,
	})
	if err != nil {
		return fmt.Errorf("creating influx bucket %s: %w", r.cfg.Bucket, err)
	}
	return nil
}

// RecordFrame queues one frame point.
func (r *Recorder) RecordFrame(s FrameSample) error {
	point := FramePoint(s)

	if r.writer != nil {
		r.writer.WritePoint(point)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backup == nil {
		return errors.New("influx recorder not connected")
	}
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(lineProtocol, "\n") {
		lineProtocol += "\n"
	}
	if _, err := r.backup.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending points and releases the client or backup file.
func (r *Recorder) Close() error {
	if r.writer != nil {
		r.writer.Flush()
	}
	if r.client != nil {
		r.client.Close()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backup == nil {
		return nil
	}
	err := errors.Join(r.backup.Close(), r.backupFile.Close())
	r.backup, r.backupFile = nil, nil
	return err
}
