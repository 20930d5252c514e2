// Package memory implements storage.Backend in process memory. Nothing
// survives a restart; it backs tests and cache-less sessions.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/GamesCrafters/gamesplane/pkg/core"
)

// Backend keeps records per scope, keyed by board state.
type Backend struct {
	mu     sync.RWMutex
	scopes map[core.Scope]map[string]core.OverlayRecord
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{
		scopes: make(map[core.Scope]map[string]core.OverlayRecord),
	}
}

func (b *Backend) Init() error  { return nil }
func (b *Backend) Close() error { return nil }

// Load returns copies of the scope's records ordered by key.
func (b *Backend) Load(_ context.Context, scope core.Scope) ([]core.OverlayRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	records := make([]core.OverlayRecord, 0, len(b.scopes[scope]))
	for _, r := range b.scopes[scope] {
		r.Image = slices.Clone(r.Image)
		records = append(records, r)
	}
	slices.SortFunc(records, func(a, b core.OverlayRecord) int {
		return strings.Compare(a.Key, b.Key)
	})
	return records, nil
}

// Save stores copies of records, replacing any with the same key.
func (b *Backend) Save(_ context.Context, scope core.Scope, records []core.OverlayRecord) error {
	if len(records) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.scopes[scope]
	if !ok {
		m = make(map[string]core.OverlayRecord, len(records))
		b.scopes[scope] = m
	}
	for _, r := range records {
		r.Image = slices.Clone(r.Image)
		m[r.Key] = r
	}
	return nil
}

// Erase drops the scope.
func (b *Backend) Erase(_ context.Context, scope core.Scope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.scopes, scope)
	return nil
}

// Len returns how many records the scope holds.
func (b *Backend) Len(scope core.Scope) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.scopes[scope])
}
