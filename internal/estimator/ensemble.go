package estimator

// Ensemble forwards every observation to its members and reports the
// majority among the members that have an estimate. Ties go to the symbol
// whose first supporter comes earliest in member order.
type Ensemble struct {
	members []Estimator
}

// NewEnsemble wraps the given estimators. Members must be safe for
// concurrent use; Ensemble adds no locking of its own.
func NewEnsemble(members ...Estimator) *Ensemble {
	return &Ensemble{members: append([]Estimator(nil), members...)}
}

// Observe implements Estimator.
func (e *Ensemble) Observe(symbol string) {
	for _, m := range e.members {
		m.Observe(symbol)
	}
}

// Estimate implements Estimator.
func (e *Ensemble) Estimate() (string, bool) {
	counts := make(map[string]int, len(e.members))
	var order []string
	for _, m := range e.members {
		sym, ok := m.Estimate()
		if !ok {
			continue
		}
		if counts[sym] == 0 {
			order = append(order, sym)
		}
		counts[sym]++
	}
	if len(order) == 0 {
		return "", false
	}

	best := order[0]
	for _, sym := range order[1:] {
		if counts[sym] > counts[best] {
			best = sym
		}
	}
	return best, true
}
