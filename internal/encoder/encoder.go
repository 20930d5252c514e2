package encoder

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GamesCrafters/gamesplane/internal/localize"
)

// ErrInvalidBoardState means the located pieces do not form a legal position.
var ErrInvalidBoardState = errors.New("invalid board state")

// ErrUnknownEncoder is returned by Lookup for unregistered names.
var ErrUnknownEncoder = errors.New("unknown encoder")

// Encoder turns the located pieces of one frame into a state symbol.
type Encoder interface {
	Encode(turn int, pieces []localize.Marker) (string, error)
}

// Func adapts a plain function to Encoder.
type Func func(turn int, pieces []localize.Marker) (string, error)

// Encode calls f.
func (f Func) Encode(turn int, pieces []localize.Marker) (string, error) {
	return f(turn, pieces)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Encoder{}
)

// Register makes an encoder available by name. Registering a name twice replaces it.
func Register(name string, e Encoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = e
}

// Lookup returns the encoder registered under name.
func Lookup(name string) (Encoder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoder, name)
	}
	return e, nil
}

// Names lists registered encoders in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("dao", Dao())
}
