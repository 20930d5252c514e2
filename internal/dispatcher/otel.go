package dispatcher

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/GamesCrafters/gamesplane/internal/dispatcher"

// instruments are the per-kind job metrics. Every measurement carries a
// "kind" attribute, which for overlay fetches names the cache scope.
type instruments struct {
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

// newInstruments uses the global meter provider, which is a no-op until
// the otel package installs one.
func newInstruments() (metric.Meter, instruments, error) {
	m := otel.Meter(instrumentationName)

	var (
		in  instruments
		err error
	)
	in.queueSize, err = m.Int64ObservableGauge(
		"gamesplane.jobs.queued",
		metric.WithDescription("Jobs waiting for a worker"),
	)
	if err != nil {
		return nil, in, fmt.Errorf("creating queue size gauge: %w", err)
	}
	in.processed, err = m.Int64Counter(
		"gamesplane.jobs.processed",
		metric.WithDescription("Jobs a handler has finished"),
	)
	if err != nil {
		return nil, in, fmt.Errorf("creating processed counter: %w", err)
	}
	in.dropped, err = m.Int64Counter(
		"gamesplane.jobs.dropped",
		metric.WithDescription("Jobs refused because their queue was full"),
	)
	if err != nil {
		return nil, in, fmt.Errorf("creating dropped counter: %w", err)
	}
	in.failed, err = m.Int64Counter(
		"gamesplane.jobs.failed",
		metric.WithDescription("Jobs whose handler returned an error"),
	)
	if err != nil {
		return nil, in, fmt.Errorf("creating failed counter: %w", err)
	}
	return m, in, nil
}
