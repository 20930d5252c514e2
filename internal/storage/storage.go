// Package storage persists resolved board overlays so a restarted session
// does not fetch them again.
package storage

import (
	"context"

	"github.com/GamesCrafters/gamesplane/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Load returns every record saved for the scope. A scope that was never
	// written yields no records and no error.
	Load(ctx context.Context, scope core.Scope) ([]core.OverlayRecord, error)
	// Save inserts or replaces records by key.
	Save(ctx context.Context, scope core.Scope, records []core.OverlayRecord) error
	// Erase removes everything saved for the scope.
	Erase(ctx context.Context, scope core.Scope) error
}
