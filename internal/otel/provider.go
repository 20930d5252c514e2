// Package otel wires the OpenTelemetry log pipeline: a file exporter for the
// session log directory and an optional OTLP/HTTP exporter. Exported records
// carry the session and game on their resource.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/GamesCrafters/gamesplane/internal/config"
	"github.com/GamesCrafters/gamesplane/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ErrNoExporter is returned when OTel is enabled with nowhere to export to.
var ErrNoExporter = errors.New("OTel enabled but no log writer or endpoint configured")

// Provider owns the log provider for one process run.
type Provider struct {
	logProvider *sdklog.LoggerProvider
	enabled     bool
}

// SessionAttributes describes a replay session as resource attributes.
func SessionAttributes(sessionID string, scope core.Scope) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ServiceInstanceID(sessionID),
		attribute.String("game.route", scope.Game),
		attribute.String("game.variant", scope.Variant),
	}
}

// New creates a provider. When OTel is disabled the provider is inert and
// LoggerProvider returns nil. logWriter may be nil when an endpoint is set.
// extra is merged into the resource next to the service name.
func New(cfg config.OTelConfig, logWriter io.Writer, extra ...attribute.KeyValue) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	ctx := context.Background()

	attrs := append([]attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}, extra...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	exporters, err := newExporters(ctx, cfg, logWriter)
	if err != nil {
		return nil, err
	}
	if len(exporters) == 0 {
		return nil, ErrNoExporter
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdklog.WithProcessor(
			sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout)),
		))
	}

	return &Provider{
		logProvider: sdklog.NewLoggerProvider(opts...),
		enabled:     true,
	}, nil
}

func newExporters(ctx context.Context, cfg config.OTelConfig, logWriter io.Writer) ([]sdklog.Exporter, error) {
	var out []sdklog.Exporter

	if logWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(logWriter))
		if err != nil {
			return nil, fmt.Errorf("creating file log exporter: %w", err)
		}
		out = append(out, exp)
	}

	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP log exporter: %w", err)
		}
		out = append(out, exp)
	}

	return out, nil
}

// LoggerProvider returns the log provider for the otelslog bridge, or nil
// when OTel is off.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Meter returns a meter from the global provider. The dispatcher and the
// overlay cache record through the same global provider.
func (p *Provider) Meter(name string) metric.Meter {
	return otel.Meter(name)
}

func (p *Provider) Flush(ctx context.Context) error {
	if p.logProvider == nil {
		return nil
	}
	if err := p.logProvider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("flushing logs: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logProvider == nil {
		return nil
	}
	if err := p.logProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down logs: %w", err)
	}
	return nil
}

func (p *Provider) Enabled() bool {
	return p.enabled
}
