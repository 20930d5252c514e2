// Package cache memoizes board overlays by board state key. Lookups never
// block: an unseen key gets a loading placeholder at once and is fetched on
// the dispatcher's worker pool.
package cache

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/GamesCrafters/gamesplane/internal/dispatcher"
	"github.com/GamesCrafters/gamesplane/internal/overlay"
	"github.com/GamesCrafters/gamesplane/internal/storage"
	"github.com/GamesCrafters/gamesplane/internal/timeutil"
	"github.com/GamesCrafters/gamesplane/pkg/core"
)

// ErrScopeRegistered is returned by New when the dispatcher already serves a
// cache for the same scope.
var ErrScopeRegistered = errors.New("overlay cache already registered for scope")

// State of a cache entry.
type State int

const (
	Loading State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Entry is an immutable cache value. Resolving a key replaces its entry
// rather than mutating it, so callers may hold on to the pointer.
type Entry struct {
	Key   string
	State State
	// Image is the overlay when Ready and the matching placeholder otherwise.
	Image *image.RGBA
	// Loaded is set once the key is resolved, successfully or not.
	Loaded    bool
	Reason    string
	FetchedAt time.Time
}

// Fetcher retrieves the raw overlay bytes for a board state key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, key string) ([]byte, error) {
	return f(ctx, key)
}

// Dependencies are the collaborators an OverlayCache needs.
type Dependencies struct {
	Fetcher    Fetcher
	Store      storage.Backend // may be nil for a cache that is never persisted
	Dispatcher *dispatcher.Dispatcher
	Logger     *slog.Logger
	Clock      timeutil.Clock
}

// Options tune an OverlayCache.
type Options struct {
	Scope     core.Scope
	Size      int // canonical overlay edge, overlay.DefaultSize when zero
	Workers   int
	QueueSize int
	// Placeholders override the drawn loading and failed images.
	LoadingImage *image.RGBA
	FailedImage  *image.RGBA
}

// OverlayCache is safe for concurrent use.
type OverlayCache struct {
	deps    Dependencies
	scope   core.Scope
	size    int
	kind    string
	loading *image.RGBA
	failed  *image.RGBA
	metrics *metrics

	mu      sync.RWMutex
	entries map[string]*Entry
	// fetching holds keys with a fetch queued or running. Erase leaves it
	// alone, so a key never has two fetches at once.
	fetching map[string]struct{}
	inflight sync.WaitGroup
}

// New builds the cache, registers its fetch handler on the dispatcher and
// loads the scope's persisted entries.
func New(ctx context.Context, deps Dependencies, opts Options) (*OverlayCache, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("overlay cache needs a fetcher")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("overlay cache needs a dispatcher")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}

	size := opts.Size
	if size <= 0 {
		size = overlay.DefaultSize
	}
	queue := opts.QueueSize
	if queue <= 0 {
		queue = 64
	}

	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	c := &OverlayCache{
		deps:     deps,
		scope:    opts.Scope,
		size:     size,
		kind:     fmt.Sprintf("overlay.fetch:%q:%q", opts.Scope.Game, opts.Scope.Variant),
		loading:  opts.LoadingImage,
		failed:   opts.FailedImage,
		metrics:  m,
		entries:  make(map[string]*Entry),
		fetching: make(map[string]struct{}),
	}
	if c.loading == nil {
		c.loading = overlay.Placeholder(overlay.Loading, size)
	}
	if c.failed == nil {
		c.failed = overlay.Placeholder(overlay.Failed, size)
	}

	// one cache per scope and dispatcher
	if deps.Dispatcher.HasHandler(c.kind) {
		return nil, fmt.Errorf("%w: %s", ErrScopeRegistered, opts.Scope)
	}
	deps.Dispatcher.Register(c.kind, c.handleFetch,
		dispatcher.Buffered(queue),
		dispatcher.Workers(max(opts.Workers, 1)),
		dispatcher.Logged(),
	)

	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Scope returns the game and variant the cache serves.
func (c *OverlayCache) Scope() core.Scope {
	return c.scope
}

// Lookup returns the entry for key without side effects.
func (c *OverlayCache) Lookup(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// GetOrFetch returns the entry for key. The first request for a key inserts
// a loading placeholder and queues exactly one fetch; every caller until the
// fetch resolves gets that same placeholder. If the fetch queue is full the
// placeholder is removed again so a later call retries.
func (c *OverlayCache) GetOrFetch(key string) *Entry {
	if e, ok := c.Lookup(key); ok {
		c.metrics.hit()
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.metrics.hit()
		return e
	}

	c.metrics.miss()
	placeholder := &Entry{Key: key, State: Loading, Image: c.loading}
	c.entries[key] = placeholder

	// erased while its fetch was still running: that fetch fills the new placeholder
	if _, running := c.fetching[key]; running {
		return placeholder
	}

	c.fetching[key] = struct{}{}
	c.inflight.Add(1)
	err := c.deps.Dispatcher.Dispatch(dispatcher.Job{
		Kind:      c.kind,
		Key:       key,
		Timestamp: c.deps.Clock.Now(),
	})
	if err != nil {
		c.inflight.Done()
		delete(c.fetching, key)
		delete(c.entries, key)
		c.deps.Logger.Warn("overlay fetch not queued", "key", key, "error", err)
	}
	return placeholder
}

// Wait blocks until every queued fetch has resolved.
func (c *OverlayCache) Wait() {
	c.inflight.Wait()
}

// Len returns the number of entries, placeholders included.
func (c *OverlayCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats counts entries by state.
func (c *OverlayCache) Stats() map[State]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := make(map[State]int, 3)
	for _, e := range c.entries {
		stats[e.State]++
	}
	return stats
}

func (c *OverlayCache) handleFetch(ctx context.Context, job dispatcher.Job) error {
	defer c.inflight.Done()

	entry, err := c.resolve(ctx, job.Key)

	c.mu.Lock()
	delete(c.fetching, job.Key)
	// an Erase while the fetch was running drops the result
	if cur, ok := c.entries[job.Key]; ok && cur.State == Loading {
		c.entries[job.Key] = entry
	}
	c.mu.Unlock()

	c.metrics.resolved(entry.State)
	if err != nil {
		c.deps.Logger.Debug("overlay unavailable", "key", job.Key, "error", err)
	}
	return err
}

func (c *OverlayCache) resolve(ctx context.Context, key string) (*Entry, error) {
	start := c.deps.Clock.Now()

	data, err := c.deps.Fetcher.Fetch(ctx, key)
	if err != nil {
		return c.failedEntry(key, err.Error()), err
	}

	img, format, err := overlay.Decode(data)
	if err != nil {
		return c.failedEntry(key, err.Error()), err
	}

	c.deps.Logger.Debug("overlay fetched",
		"key", key,
		"format", format,
		"bytes", len(data),
		"duration", c.deps.Clock.Since(start),
	)
	return &Entry{
		Key:       key,
		State:     Ready,
		Image:     overlay.Normalize(img, c.size),
		Loaded:    true,
		FetchedAt: c.deps.Clock.Now(),
	}, nil
}

func (c *OverlayCache) failedEntry(key, reason string) *Entry {
	return &Entry{
		Key:       key,
		State:     Failed,
		Image:     c.failed,
		Loaded:    true,
		Reason:    reason,
		FetchedAt: c.deps.Clock.Now(),
	}
}
