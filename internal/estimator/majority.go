package estimator

import (
	"sync"
	"time"

	"github.com/GamesCrafters/gamesplane/internal/timeutil"
)

type record struct {
	symbol string
	at     time.Time
}

// Majority reports the most frequent symbol in a sliding window. The window
// is bounded by count, by age, or both; a zero bound is ignored. Ties go to
// the symbol seen most recently.
type Majority struct {
	mu       sync.Mutex
	clock    timeutil.Clock
	maxCount int
	maxAge   time.Duration
	window   []record
}

// NewMajority creates a majority-vote estimator.
func NewMajority(maxCount int, maxAge time.Duration, clock timeutil.Clock) *Majority {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Majority{clock: clock, maxCount: maxCount, maxAge: maxAge}
}

// Observe implements Estimator.
func (m *Majority) Observe(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = append(m.window, record{symbol: symbol, at: m.clock.Now()})
	m.prune()
}

// Estimate implements Estimator.
func (m *Majority) Estimate() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	if len(m.window) == 0 {
		return "", false
	}

	counts := make(map[string]int, len(m.window))
	last := make(map[string]int, len(m.window))
	for i, r := range m.window {
		counts[r.symbol]++
		last[r.symbol] = i
	}

	best := m.window[len(m.window)-1].symbol
	for sym, n := range counts {
		if n > counts[best] || (n == counts[best] && last[sym] > last[best]) {
			best = sym
		}
	}
	return best, true
}

// Len returns the number of records currently in the window.
func (m *Majority) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	return len(m.window)
}

// prune drops records older than maxAge wherever they sit, since a clock
// driven by recorded timestamps can step backwards, then trims to maxCount.
func (m *Majority) prune() {
	if m.maxAge > 0 {
		kept := m.window[:0]
		for _, r := range m.window {
			if m.clock.Since(r.at) <= m.maxAge {
				kept = append(kept, r)
			}
		}
		m.window = kept
	}
	if m.maxCount > 0 && len(m.window) > m.maxCount {
		m.window = append(m.window[:0], m.window[len(m.window)-m.maxCount:]...)
	}
}
