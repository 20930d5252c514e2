package cache

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/GamesCrafters/gamesplane/internal/cache"

type metrics struct {
	hits     metric.Int64Counter
	misses   metric.Int64Counter
	resolves metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	var (
		out metrics
		err error
	)

	out.hits, err = m.Int64Counter("overlay.cache.hits",
		metric.WithDescription("Lookups answered from the cache"))
	if err != nil {
		return nil, fmt.Errorf("creating hits counter: %w", err)
	}
	out.misses, err = m.Int64Counter("overlay.cache.misses",
		metric.WithDescription("Lookups that queued a fetch"))
	if err != nil {
		return nil, fmt.Errorf("creating misses counter: %w", err)
	}
	out.resolves, err = m.Int64Counter("overlay.cache.resolved",
		metric.WithDescription("Fetches resolved, by outcome"))
	if err != nil {
		return nil, fmt.Errorf("creating resolved counter: %w", err)
	}
	return &out, nil
}

func (m *metrics) hit()  { m.hits.Add(context.Background(), 1) }
func (m *metrics) miss() { m.misses.Add(context.Background(), 1) }

func (m *metrics) resolved(s State) {
	m.resolves.Add(context.Background(), 1, metric.WithAttributes(attribute.String("state", s.String())))
}
