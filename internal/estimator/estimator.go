// Package estimator smooths a noisy stream of per-frame board-state symbols
// into one stable estimate.
package estimator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GamesCrafters/gamesplane/internal/timeutil"
)

// ErrUnknownStrategy is returned by New for an unrecognized strategy name.
var ErrUnknownStrategy = errors.New("unknown estimator strategy")

// ErrUnboundedWindow is returned by New for a majority window with neither a
// count nor an age bound.
var ErrUnboundedWindow = errors.New("majority window needs a size or an age bound")

// Estimator accepts observed symbols and reports the current best guess.
// Estimate returns false until there is something to report.
type Estimator interface {
	Observe(symbol string)
	Estimate() (string, bool)
}

// Strategy names accepted by New.
const (
	StrategyMajority = "majority"
	StrategyAgreeing = "agreeing"
	StrategyEnsemble = "ensemble"
)

// Config describes an estimator. Members is only used by the ensemble
// strategy; an ensemble without members gets one majority and one agreeing
// estimator built from the same settings.
type Config struct {
	Strategy          string        `mapstructure:"strategy"`
	WindowSize        int           `mapstructure:"windowSize"`
	WindowAge         time.Duration `mapstructure:"windowAge"`
	MinAgreeingFrames int           `mapstructure:"minAgreeingFrames"`
	Members           []Config      `mapstructure:"members"`
}

// New builds the estimator described by cfg.
func New(cfg Config, clock timeutil.Clock) (Estimator, error) {
	switch strings.ToLower(cfg.Strategy) {
	case StrategyMajority, "":
		if cfg.WindowSize <= 0 && cfg.WindowAge <= 0 {
			return nil, ErrUnboundedWindow
		}
		return NewMajority(cfg.WindowSize, cfg.WindowAge, clock), nil
	case StrategyAgreeing:
		return NewAgreeing(cfg.MinAgreeingFrames), nil
	case StrategyEnsemble:
		members := cfg.Members
		if len(members) == 0 {
			members = []Config{
				{Strategy: StrategyMajority, WindowSize: cfg.WindowSize, WindowAge: cfg.WindowAge},
				{Strategy: StrategyAgreeing, MinAgreeingFrames: cfg.MinAgreeingFrames},
			}
		}
		subs := make([]Estimator, 0, len(members))
		for i, m := range members {
			if strings.EqualFold(m.Strategy, StrategyEnsemble) && len(m.Members) == 0 {
				return nil, fmt.Errorf("ensemble member %d: nested ensemble needs members", i)
			}
			sub, err := New(m, clock)
			if err != nil {
				return nil, fmt.Errorf("ensemble member %d: %w", i, err)
			}
			subs = append(subs, sub)
		}
		return NewEnsemble(subs...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}
