package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/GamesCrafters/gamesplane/internal/cache"
	"github.com/GamesCrafters/gamesplane/internal/session"
	"github.com/GamesCrafters/gamesplane/internal/timeutil"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Session *session.Context
	Cache   *cache.OverlayCache // optional
	Logger  *slog.Logger
	Clock   timeutil.Clock

	// StatusFile is rewritten with the latest status on every tick when set.
	StatusFile string
	Interval   time.Duration
}

// Status is a snapshot of a running session.
type Status struct {
	Time      time.Time      `json:"time"`
	SessionID string         `json:"sessionId"`
	Game      string         `json:"game"`
	Variant   string         `json:"variant"`
	Uptime    string         `json:"uptime"`
	Frames    int            `json:"frames"`
	Located   int            `json:"located"`
	Encoded   int            `json:"encoded"`
	Estimate  string         `json:"estimate,omitempty"`
	Overlays  map[string]int `json:"overlays,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current session status
func (s *Service) GetStatus() Status {
	sc := s.deps.Session
	now := s.deps.Clock.Now()
	frames, located, encoded := sc.Counters()

	st := Status{
		Time:      now,
		SessionID: sc.ID(),
		Game:      sc.Scope().Game,
		Variant:   sc.Scope().Variant,
		Uptime:    now.Sub(sc.StartedAt()).Truncate(time.Second).String(),
		Frames:    frames,
		Located:   located,
		Encoded:   encoded,
		Estimate:  sc.Estimate(),
	}
	if s.deps.Cache != nil {
		st.Overlays = make(map[string]int)
		for state, n := range s.deps.Cache.Stats() {
			st.Overlays[state.String()] = n
		}
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.Session == nil {
		s.mu.Unlock()
		return fmt.Errorf("status monitor needs a session")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				st := s.GetStatus()
				logger.Info("session status",
					"frames", st.Frames,
					"located", st.Located,
					"encoded", st.Encoded,
					"overlays", st.Overlays,
				)
				if s.deps.StatusFile != "" {
					if err := s.writeStatus(st); err != nil {
						logger.Error("Error writing status file", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

func (s *Service) writeStatus(st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.deps.StatusFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.deps.StatusFile)
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
