package estimator

import "sync"

// Agreeing holds its current symbol until a different symbol is observed
// minFrames times in a row. Any observation of the current symbol, or of a
// different challenger, restarts the count. The very first observation is
// adopted immediately.
type Agreeing struct {
	mu         sync.Mutex
	minFrames  int
	current    string
	hasCurrent bool
	challenger string
	count      int
}

// NewAgreeing creates a hysteresis estimator. minFrames below 1 is treated as 1.
func NewAgreeing(minFrames int) *Agreeing {
	if minFrames < 1 {
		minFrames = 1
	}
	return &Agreeing{minFrames: minFrames}
}

// Observe implements Estimator.
func (a *Agreeing) Observe(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case !a.hasCurrent:
		a.current, a.hasCurrent = symbol, true
		a.challenger, a.count = "", 0
	case symbol == a.current:
		a.challenger, a.count = "", 0
	case symbol == a.challenger:
		a.count++
	default:
		a.challenger, a.count = symbol, 1
	}

	if a.count >= a.minFrames {
		a.current = a.challenger
		a.challenger, a.count = "", 0
	}
}

// Estimate implements Estimator.
func (a *Agreeing) Estimate() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.hasCurrent
}
