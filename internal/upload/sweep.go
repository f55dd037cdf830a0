package upload

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically reclaims expired upload sessions. It runs off the
// request path; the coordinator's status guards keep it from touching
// sessions a finalize claimed.
type Sweeper struct {
	coordinator *Coordinator
	ttl         time.Duration
	interval    time.Duration
	ticker      *time.Ticker
	done        chan bool
}

func NewSweeper(coordinator *Coordinator, ttl, interval time.Duration) *Sweeper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}

	return &Sweeper{
		coordinator: coordinator,
		ttl:         ttl,
		interval:    interval,
		done:        make(chan bool),
	}
}

// Start begins periodic sweeping.
func (s *Sweeper) Start() {
	log.Info().
		Dur("ttl", s.ttl).
		Dur("interval", s.interval).
		Msg("[SWEEP] Expiry sweeper started")

	s.ticker = time.NewTicker(s.interval)
	go s.loop()
}

func (s *Sweeper) loop() {
	for {
		select {
		case <-s.ticker.C:
			s.runSweep()
		case <-s.done:
			s.ticker.Stop()
			return
		}
	}
}

func (s *Sweeper) runSweep() {
	log.Info().
		Dur("ttl", s.ttl).
		Msg("[SWEEP] Starting expired session sweep")

	reclaimed, err := s.coordinator.SweepExpired(context.Background(), s.ttl)
	if err != nil {
		log.Error().
			Err(err).
			Msg("[SWEEP] Failed to sweep expired sessions")
		return
	}

	log.Info().
		Int("reclaimed", reclaimed).
		Msg("[SWEEP] Sweep completed")
}

// Stop stops the sweeper.
func (s *Sweeper) Stop() {
	log.Info().Msg("[SWEEP] Stopping expiry sweeper")
	if s.ticker != nil {
		s.done <- true
	}
}

// RunNow executes one sweep immediately (useful for testing or manual
// triggers).
func (s *Sweeper) RunNow() {
	s.runSweep()
}
