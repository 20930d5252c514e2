package cache

import (
	"context"
	"fmt"

	"github.com/GamesCrafters/gamesplane/internal/overlay"
	"github.com/GamesCrafters/gamesplane/pkg/core"
)

// Load merges the scope's persisted entries into the cache. Keys already in
// memory are kept. Stored images that no longer decode are skipped.
func (c *OverlayCache) Load(ctx context.Context) error {
	if c.deps.Store == nil {
		return nil
	}

	records, err := c.deps.Store.Load(ctx, c.scope)
	if err != nil {
		return fmt.Errorf("loading overlay cache: %w", err)
	}

	loaded := make(map[string]*Entry, len(records))
	for _, r := range records {
		if r.Failed {
			e := c.failedEntry(r.Key, r.Reason)
			e.FetchedAt = r.FetchedAt
			loaded[r.Key] = e
			continue
		}
		img, err := overlay.DecodeStored(r.Image)
		if err != nil {
			c.deps.Logger.Warn("skipping stored overlay", "key", r.Key, "error", err)
			continue
		}
		loaded[r.Key] = &Entry{
			Key:       r.Key,
			State:     Ready,
			Image:     overlay.Normalize(img, c.size),
			Loaded:    true,
			FetchedAt: r.FetchedAt,
		}
	}

	c.mu.Lock()
	for k, e := range loaded {
		if _, ok := c.entries[k]; !ok {
			c.entries[k] = e
		}
	}
	c.mu.Unlock()

	c.deps.Logger.Info("overlay cache loaded", "scope", c.scope.String(), "entries", len(loaded))
	return nil
}

// Write persists every resolved entry, ready and failed alike. Placeholders
// for fetches still in flight are not written.
func (c *OverlayCache) Write(ctx context.Context) error {
	if c.deps.Store == nil {
		return nil
	}

	c.mu.RLock()
	resolved := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Loaded {
			resolved = append(resolved, e)
		}
	}
	c.mu.RUnlock()

	records := make([]core.OverlayRecord, 0, len(resolved))
	for _, e := range resolved {
		r := core.OverlayRecord{
			Key:       e.Key,
			Failed:    e.State == Failed,
			Reason:    e.Reason,
			FetchedAt: e.FetchedAt,
		}
		if e.State == Ready {
			data, err := overlay.EncodeStored(e.Image)
			if err != nil {
				return fmt.Errorf("writing overlay %q: %w", e.Key, err)
			}
			r.Image = data
		}
		records = append(records, r)
	}

	if err := c.deps.Store.Save(ctx, c.scope, records); err != nil {
		return fmt.Errorf("writing overlay cache: %w", err)
	}

	c.deps.Logger.Info("overlay cache written", "scope", c.scope.String(), "entries", len(records))
	return nil
}

// Erase clears the cache in memory and in storage. Fetches already running
// finish but their results are dropped.
func (c *OverlayCache) Erase(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	if c.deps.Store == nil {
		return nil
	}
	if err := c.deps.Store.Erase(ctx, c.scope); err != nil {
		return fmt.Errorf("erasing overlay cache: %w", err)
	}
	return nil
}
