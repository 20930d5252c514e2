package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/GamesCrafters/gamesplane/pkg/core"
)

// Context holds the live state of a session that other goroutines read:
// the log handler, the status monitor and the stream publisher.
type Context struct {
	mu        sync.RWMutex
	id        string
	scope     core.Scope
	startedAt time.Time
	estimate  string
	frames    int
	located   int
	encoded   int
}

// NewContext creates the context for a session that starts at startedAt.
func NewContext(id string, scope core.Scope, startedAt time.Time) *Context {
	return &Context{id: id, scope: scope, startedAt: startedAt}
}

// ID returns the session id.
func (c *Context) ID() string {
	return c.id
}

// Scope returns the game and variant being played.
func (c *Context) Scope() core.Scope {
	return c.scope
}

// StartedAt returns when the session started.
func (c *Context) StartedAt() time.Time {
	return c.startedAt
}

// Estimate returns the current board state estimate, empty when there is none.
func (c *Context) Estimate() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.estimate
}

// Counters returns how many frames were processed, located and encoded.
func (c *Context) Counters() (frames, located, encoded int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames, c.located, c.encoded
}

func (c *Context) record(located, encoded bool, estimate string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	if located {
		c.located++
	}
	if encoded {
		c.encoded++
	}
	c.estimate = estimate
}

// Attrs is a logging.ContextProvider adding the session to every record.
func (c *Context) Attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("session", c.id),
		slog.String("game", c.scope.Game),
	}
	if est := c.Estimate(); est != "" {
		attrs = append(attrs, slog.String("estimate", est))
	}
	return attrs
}
